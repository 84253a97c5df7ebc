package sqlstore

import (
	"context"
	"errors"
	"time"

	"github.com/guilherme-santos/compasssync/internal"
)

// Events with a provider id are matched by it, the others by id.
var (
	upsertEventByGEventID = upsertEvent(`(user_id, g_event_id) WHERE g_event_id <> ''`)
	upsertEventByID       = upsertEvent(`(id)`)
)

func upsertEvent(target string) string {
	return `
	INSERT INTO events (` + eventColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT ` + target + ` DO UPDATE SET
		calendar_id = excluded.calendar_id,
		g_event_id = excluded.g_event_id,
		g_recurring_event_id = excluded.g_recurring_event_id,
		title = excluded.title,
		description = excluded.description,
		start_date = excluded.start_date,
		start_ts = excluded.start_ts,
		end_date = excluded.end_date,
		time_zone = excluded.time_zone,
		is_all_day = excluded.is_all_day,
		is_someday = excluded.is_someday,
		priority = excluded.priority,
		recurrence_rule = excluded.recurrence_rule,
		recurrence_event_id = excluded.recurrence_event_id,
		updated_at = excluded.updated_at
	RETURNING id`
}

func (s *Storage) UpsertEvents(ctx context.Context, events ...*internal.Event) error {
	for _, e := range events {
		if e.ID == "" {
			return internal.E(internal.ErrValidation, "upsert event", "event without id", nil)
		}
		if e.UpdatedAt.IsZero() {
			e.UpdatedAt = time.Now().UTC()
		}
		row, err := newEvent(e)
		if err != nil {
			return internal.E(internal.ErrValidation, "upsert event", e.ID, err)
		}
		query := upsertEventByGEventID
		if row.GEventID == "" {
			query = upsertEventByID
		}
		var id string
		err = s.get(ctx, &id, query,
			row.ID, row.UserID, row.CalendarID, row.GEventID, row.GRecurringEventID, row.Title, row.Description,
			row.StartDate, row.StartTS, row.EndDate, row.TimeZone, row.IsAllDay, row.IsSomeday, row.Priority, row.Origin,
			row.RecurrenceRule, row.RecurrenceEventID, row.UpdatedAt,
		)
		if err != nil {
			return notFound("upsert event", err)
		}
		e.ID = id
	}
	return nil
}

func (s *Storage) EventByID(ctx context.Context, userID, id string) (*internal.Event, error) {
	var row Event
	err := s.get(ctx, &row, `SELECT `+eventColumns+` FROM events WHERE user_id = ? AND id = ?`, userID, id)
	if err != nil {
		return nil, notFound("event by id", err)
	}
	return row.Convert(), nil
}

func (s *Storage) EventByGEventID(ctx context.Context, userID, gEventID string) (*internal.Event, error) {
	if gEventID == "" {
		return nil, internal.E(internal.ErrNotFound, "event by provider id", "empty provider id", nil)
	}
	var row Event
	err := s.get(ctx, &row, `SELECT `+eventColumns+` FROM events WHERE user_id = ? AND g_event_id = ?`, userID, gEventID)
	if err != nil {
		return nil, notFound("event by provider id", err)
	}
	return row.Convert(), nil
}

func (s *Storage) Events(ctx context.Context, userID string) ([]*internal.Event, error) {
	var rows []Event
	err := s.selectAll(ctx, &rows, `
		SELECT `+eventColumns+` FROM events
		WHERE user_id = ?
		ORDER BY start_ts, id
	`, userID)
	if err != nil {
		return nil, internal.StoreErr("events", err)
	}
	return convertEvents(rows), nil
}

// Instances returns the instances of a series starting at or after from,
// ordered by start date. A zero from returns every instance.
func (s *Storage) Instances(ctx context.Context, userID, baseID string, from time.Time) ([]*internal.Event, error) {
	var fromTS int64
	if !from.IsZero() {
		fromTS = from.Unix()
	} else {
		fromTS = -1 << 62
	}
	var rows []Event
	err := s.selectAll(ctx, &rows, `
		SELECT `+eventColumns+` FROM events
		WHERE user_id = ? AND recurrence_event_id = ? AND start_ts >= ?
		ORDER BY start_ts, id
	`, userID, baseID, fromTS)
	if err != nil {
		return nil, internal.StoreErr("instances", err)
	}
	return convertEvents(rows), nil
}

func (s *Storage) CountSeries(ctx context.Context, userID, baseID string) (int64, error) {
	var n int64
	err := s.get(ctx, &n, `
		SELECT COUNT(*) FROM events
		WHERE user_id = ? AND (id = ? OR recurrence_event_id = ?)
	`, userID, baseID, baseID)
	return n, internal.StoreErr("count series", err)
}

func (s *Storage) UpdateEvent(ctx context.Context, e *internal.Event) error {
	e.UpdatedAt = time.Now().UTC()
	row, err := newEvent(e)
	if err != nil {
		return internal.E(internal.ErrValidation, "update event", e.ID, err)
	}
	n, err := s.execN(ctx, "update event", `
		UPDATE events SET
			calendar_id = ?, g_event_id = ?, g_recurring_event_id = ?, title = ?, description = ?,
			start_date = ?, start_ts = ?, end_date = ?, time_zone = ?, is_all_day = ?, is_someday = ?,
			priority = ?, origin = ?, recurrence_rule = ?, recurrence_event_id = ?, updated_at = ?
		WHERE user_id = ? AND id = ?
	`,
		row.CalendarID, row.GEventID, row.GRecurringEventID, row.Title, row.Description,
		row.StartDate, row.StartTS, row.EndDate, row.TimeZone, row.IsAllDay, row.IsSomeday,
		row.Priority, row.Origin, row.RecurrenceRule, row.RecurrenceEventID, row.UpdatedAt,
		row.UserID, row.ID,
	)
	if err != nil {
		return err
	}
	if n == 0 {
		return internal.E(internal.ErrNotFound, "update event", e.ID, nil)
	}
	return nil
}

// UpdateSeriesFields applies the shared fields to a base and all its instances
// in one statement.
func (s *Storage) UpdateSeriesFields(ctx context.Context, userID, baseID string, f internal.SeriesFields) (int64, error) {
	priority := f.Priority
	if priority == "" {
		priority = internal.PriorityUnassigned
	}
	return s.execN(ctx, "update series", `
		UPDATE events SET title = ?, description = ?, priority = ?, is_someday = ?, updated_at = ?
		WHERE user_id = ? AND (id = ? OR recurrence_event_id = ?)
	`, f.Title, f.Description, priority.String(), f.IsSomeday, formatTime(time.Now().UTC()), userID, baseID, baseID)
}

func (s *Storage) SetRecurrenceRule(ctx context.Context, userID, id string, rule []string) error {
	e := &internal.Event{Recurrence: &internal.Recurrence{Rule: rule}}
	row, err := newEvent(e)
	if err != nil {
		return internal.E(internal.ErrValidation, "set rule", id, err)
	}
	n, err := s.execN(ctx, "set rule", `
		UPDATE events SET recurrence_rule = ?, updated_at = ?
		WHERE user_id = ? AND id = ?
	`, row.RecurrenceRule, formatTime(time.Now().UTC()), userID, id)
	if err != nil {
		return err
	}
	if n == 0 {
		return internal.E(internal.ErrNotFound, "set rule", id, nil)
	}
	return nil
}

func (s *Storage) DeleteEvent(ctx context.Context, userID, id string) (int64, error) {
	return s.execN(ctx, "delete event", `DELETE FROM events WHERE user_id = ? AND id = ?`, userID, id)
}

func (s *Storage) DeleteSeries(ctx context.Context, userID, baseID string) (int64, error) {
	return s.execN(ctx, "delete series", `
		DELETE FROM events WHERE user_id = ? AND (id = ? OR recurrence_event_id = ?)
	`, userID, baseID, baseID)
}

func (s *Storage) DeleteInstancesFrom(ctx context.Context, userID, baseID string, from time.Time) (int64, error) {
	return s.execN(ctx, "delete instances", `
		DELETE FROM events WHERE user_id = ? AND recurrence_event_id = ? AND start_ts >= ?
	`, userID, baseID, from.Unix())
}

func (s *Storage) DeleteUserEvents(ctx context.Context, userID string) (int64, error) {
	return s.execN(ctx, "delete user events", `DELETE FROM events WHERE user_id = ?`, userID)
}

// IsNotFound is a shorthand for errors.Is(err, internal.ErrNotFound).
func IsNotFound(err error) bool {
	return errors.Is(err, internal.ErrNotFound)
}
