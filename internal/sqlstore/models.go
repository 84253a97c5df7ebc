package sqlstore

import (
	"encoding/json"
	"time"

	"github.com/guilherme-santos/compasssync/internal"
)

const timeFormat = time.RFC3339Nano

type Event struct {
	ID                string `db:"id"`
	UserID            string `db:"user_id"`
	CalendarID        string `db:"calendar_id"`
	GEventID          string `db:"g_event_id"`
	GRecurringEventID string `db:"g_recurring_event_id"`
	Title             string `db:"title"`
	Description       string `db:"description"`
	StartDate         string `db:"start_date"`
	StartTS           int64  `db:"start_ts"`
	EndDate           string `db:"end_date"`
	TimeZone          string `db:"time_zone"`
	IsAllDay          bool   `db:"is_all_day"`
	IsSomeday         bool   `db:"is_someday"`
	Priority          string `db:"priority"`
	Origin            string `db:"origin"`
	RecurrenceRule    string `db:"recurrence_rule"`
	RecurrenceEventID string `db:"recurrence_event_id"`
	UpdatedAt         string `db:"updated_at"`
}

const eventColumns = `id, user_id, calendar_id, g_event_id, g_recurring_event_id, title, description,
	start_date, start_ts, end_date, time_zone, is_all_day, is_someday, priority, origin,
	recurrence_rule, recurrence_event_id, updated_at`

func newEvent(e *internal.Event) (*Event, error) {
	row := &Event{
		ID:                e.ID,
		UserID:            e.UserID,
		CalendarID:        e.CalendarID,
		GEventID:          e.GEventID,
		GRecurringEventID: e.GRecurringEventID,
		Title:             e.Title,
		Description:       e.Description,
		StartDate:         e.StartDate.Format(timeFormat),
		StartTS:           e.StartDate.Unix(),
		EndDate:           e.EndDate.Format(timeFormat),
		TimeZone:          zoneName(e.StartDate),
		IsAllDay:          e.IsAllDay,
		IsSomeday:         e.IsSomeday,
		Priority:          e.Priority.String(),
		Origin:            e.Origin.String(),
		UpdatedAt:         formatTime(e.UpdatedAt),
	}
	if row.Priority == "" {
		row.Priority = internal.PriorityUnassigned.String()
	}
	if r := e.Recurrence; r != nil {
		row.RecurrenceEventID = r.EventID
		if len(r.Rule) > 0 {
			rule, err := json.Marshal(r.Rule)
			if err != nil {
				return nil, err
			}
			row.RecurrenceRule = string(rule)
		}
	}
	return row, nil
}

func (e Event) Convert() *internal.Event {
	loc := loadLocation(e.TimeZone)
	event := &internal.Event{
		ID:                e.ID,
		UserID:            e.UserID,
		CalendarID:        e.CalendarID,
		GEventID:          e.GEventID,
		GRecurringEventID: e.GRecurringEventID,
		Title:             e.Title,
		Description:       e.Description,
		StartDate:         parseTime(e.StartDate, loc),
		EndDate:           parseTime(e.EndDate, loc),
		IsAllDay:          e.IsAllDay,
		IsSomeday:         e.IsSomeday,
		Priority:          internal.Priority(e.Priority),
		Origin:            internal.Origin(e.Origin),
		UpdatedAt:         parseTime(e.UpdatedAt, nil),
	}
	var rule []string
	if e.RecurrenceRule != "" {
		_ = json.Unmarshal([]byte(e.RecurrenceRule), &rule)
	}
	if len(rule) > 0 || e.RecurrenceEventID != "" {
		event.Recurrence = &internal.Recurrence{Rule: rule, EventID: e.RecurrenceEventID}
	}
	return event
}

func convertEvents(rows []Event) []*internal.Event {
	res := make([]*internal.Event, len(rows))
	for i, r := range rows {
		res[i] = r.Convert()
	}
	return res
}

type SyncCursor struct {
	UserID        string `db:"user_id"`
	Resource      string `db:"resource"`
	CalendarID    string `db:"calendar_id"`
	NextSyncToken string `db:"next_sync_token"`
	NextPageToken string `db:"next_page_token"`
	LastSyncedAt  string `db:"last_synced_at"`
	ChannelID     string `db:"channel_id"`
	ResourceID    string `db:"resource_id"`
	Expiration    int64  `db:"expiration"`
	PendingEvents string `db:"pending_events"`
}

func (c SyncCursor) Convert() *internal.SyncCursor {
	cur := &internal.SyncCursor{
		UserID:        c.UserID,
		Resource:      internal.Resource(c.Resource),
		CalendarID:    c.CalendarID,
		NextSyncToken: c.NextSyncToken,
		NextPageToken: c.NextPageToken,
		LastSyncedAt:  parseTime(c.LastSyncedAt, nil),
		ChannelID:     c.ChannelID,
		ResourceID:    c.ResourceID,
	}
	if c.Expiration > 0 {
		cur.Expiration = time.UnixMilli(c.Expiration).UTC()
	}
	if c.PendingEvents != "" {
		_ = json.Unmarshal([]byte(c.PendingEvents), &cur.Pending)
	}
	return cur
}

type User struct {
	ID           string `db:"id"`
	Email        string `db:"email"`
	Platform     string `db:"platform"`
	Auth         string `db:"auth"`
	ImportStatus string `db:"import_status"`
	ImportReason string `db:"import_reason"`
	Heartbeat    int64  `db:"import_heartbeat"`
	CreatedAt    string `db:"created_at"`
}

func (u User) Convert() *internal.User {
	user := &internal.User{
		ID:           u.ID,
		Email:        u.Email,
		Platform:     u.Platform,
		Auth:         u.Auth,
		ImportStatus: internal.ImportStatus(u.ImportStatus),
		ImportReason: u.ImportReason,
		CreatedAt:    parseTime(u.CreatedAt, nil),
	}
	if u.Heartbeat > 0 {
		user.ImportHeartbeat = time.Unix(u.Heartbeat, 0).UTC()
	}
	return user
}

func zoneName(t time.Time) string {
	if name := t.Location().String(); name != "" && name != "Local" {
		return name
	}
	return ""
}

func loadLocation(name string) *time.Location {
	if name == "" {
		return nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil
	}
	return loc
}

func parseTime(v string, loc *time.Location) time.Time {
	if v == "" {
		return time.Time{}
	}
	t, err := time.Parse(timeFormat, v)
	if err != nil {
		return time.Time{}
	}
	if loc != nil {
		t = t.In(loc)
	}
	return t
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(timeFormat)
}
