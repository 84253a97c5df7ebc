package sqlstore_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guilherme-santos/compasssync/internal"
	"github.com/guilherme-santos/compasssync/internal/sqlstore"
)

func newStorage(t *testing.T) *sqlstore.Storage {
	t.Helper()
	s, err := sqlstore.Open(sqlstore.DriverSQLite, filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newUser(t *testing.T, s *sqlstore.Storage) *internal.User {
	t.Helper()
	u := &internal.User{Email: "jane@example.com", Platform: "google", Auth: `{"access_token":"x"}`}
	require.NoError(t, s.AddUser(context.Background(), u))
	return u
}

func series(userID string) (*internal.Event, []*internal.Event) {
	start := time.Date(2025, 4, 2, 9, 0, 0, 0, time.UTC)
	base := &internal.Event{
		ID:         uuid.NewString(),
		UserID:     userID,
		GEventID:   "g1",
		Title:      "standup",
		StartDate:  start,
		EndDate:    start.Add(30 * time.Minute),
		Priority:   internal.PriorityWork,
		Origin:     internal.OriginGoogleImport,
		Recurrence: &internal.Recurrence{Rule: []string{"RRULE:FREQ=DAILY;COUNT=3"}},
	}
	var instances []*internal.Event
	for i := 1; i < 3; i++ {
		inst := base.Clone()
		inst.ID = uuid.NewString()
		inst.StartDate = start.AddDate(0, 0, i)
		inst.EndDate = inst.StartDate.Add(30 * time.Minute)
		inst.GEventID = "g1_" + inst.StartDate.Format("20060102T150405Z")
		inst.GRecurringEventID = "g1"
		inst.Recurrence = &internal.Recurrence{EventID: base.ID}
		instances = append(instances, inst)
	}
	return base, instances
}

func TestOpen(t *testing.T) {
	_, err := sqlstore.Open("mysql", "x")
	require.Error(t, err)

	_, err = sqlstore.Open(sqlstore.DriverSQLite, " ")
	require.Error(t, err)
}

func TestUpsertEvents(t *testing.T) {
	ctx := context.Background()
	s := newStorage(t)
	u := newUser(t, s)

	base, instances := series(u.ID)
	require.NoError(t, s.UpsertEvents(ctx, append([]*internal.Event{base}, instances...)...))

	events, err := s.Events(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, base.ID, events[0].ID)
	assert.Equal(t, []string{"RRULE:FREQ=DAILY;COUNT=3"}, events[0].Recurrence.Rule)
	assert.Equal(t, base.ID, events[1].Recurrence.EventID)
	assert.True(t, events[1].StartDate.Equal(instances[0].StartDate))

	t.Run("same provider id keeps the stored id", func(t *testing.T) {
		again := base.Clone()
		again.ID = uuid.NewString()
		again.Title = "daily standup"
		require.NoError(t, s.UpsertEvents(ctx, again))
		assert.Equal(t, base.ID, again.ID)

		n, err := s.CountSeries(ctx, u.ID, base.ID)
		require.NoError(t, err)
		assert.EqualValues(t, 3, n)

		got, err := s.EventByGEventID(ctx, u.ID, "g1")
		require.NoError(t, err)
		assert.Equal(t, "daily standup", got.Title)
	})

	t.Run("event without id", func(t *testing.T) {
		err := s.UpsertEvents(ctx, &internal.Event{UserID: u.ID})
		assert.True(t, errors.Is(err, internal.ErrValidation))
	})
}

func TestEventTimezoneRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newStorage(t)
	u := newUser(t, s)

	chicago, err := time.LoadLocation("America/Chicago")
	require.NoError(t, err)
	start := time.Date(2025, 4, 2, 7, 0, 0, 0, chicago)
	e := &internal.Event{
		ID:        uuid.NewString(),
		UserID:    u.ID,
		Title:     "coffee",
		StartDate: start,
		EndDate:   start.Add(time.Hour),
	}
	require.NoError(t, s.UpsertEvents(ctx, e))

	got, err := s.EventByID(ctx, u.ID, e.ID)
	require.NoError(t, err)
	assert.Equal(t, "America/Chicago", got.StartDate.Location().String())
	assert.True(t, got.StartDate.Equal(start))
	assert.Equal(t, time.Hour, got.Duration())
	assert.Nil(t, got.Recurrence)
	assert.Equal(t, internal.PriorityUnassigned, got.Priority)
}

func TestSeriesUpdatesAndDeletes(t *testing.T) {
	ctx := context.Background()
	s := newStorage(t)
	u := newUser(t, s)

	base, instances := series(u.ID)
	require.NoError(t, s.UpsertEvents(ctx, append([]*internal.Event{base}, instances...)...))

	n, err := s.UpdateSeriesFields(ctx, u.ID, base.ID, internal.SeriesFields{Title: "sync", Priority: internal.PrioritySelf})
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	all, err := s.Instances(ctx, u.ID, base.ID, time.Time{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	for _, e := range all {
		assert.Equal(t, "sync", e.Title)
		assert.Equal(t, internal.PrioritySelf, e.Priority)
	}

	later, err := s.Instances(ctx, u.ID, base.ID, instances[1].StartDate)
	require.NoError(t, err)
	require.Len(t, later, 1)
	assert.Equal(t, instances[1].ID, later[0].ID)

	require.NoError(t, s.SetRecurrenceRule(ctx, u.ID, base.ID, []string{"RRULE:FREQ=DAILY;UNTIL=20250403T235959Z"}))
	got, err := s.EventByID(ctx, u.ID, base.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"RRULE:FREQ=DAILY;UNTIL=20250403T235959Z"}, got.Recurrence.Rule)

	deleted, err := s.DeleteInstancesFrom(ctx, u.ID, base.ID, instances[1].StartDate)
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)

	deleted, err = s.DeleteSeries(ctx, u.ID, base.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, deleted)

	_, err = s.EventByID(ctx, u.ID, base.ID)
	assert.True(t, sqlstore.IsNotFound(err))

	err = s.UpdateEvent(ctx, base)
	assert.True(t, errors.Is(err, internal.ErrNotFound))
}

func TestInTxRollback(t *testing.T) {
	ctx := context.Background()
	s := newStorage(t)
	u := newUser(t, s)

	base, _ := series(u.ID)
	boom := errors.New("boom")
	err := s.InTx(ctx, func(tx internal.Store) error {
		require.NoError(t, tx.UpsertEvents(ctx, base))
		return boom
	})
	require.ErrorIs(t, err, boom)

	events, err := s.Events(ctx, u.ID)
	require.NoError(t, err)
	assert.Empty(t, events)

	err = s.InTx(ctx, func(tx internal.Store) error {
		return tx.InTx(ctx, func(nested internal.Store) error {
			return nested.UpsertEvents(ctx, base)
		})
	})
	require.NoError(t, err)
	events, err = s.Events(ctx, u.ID)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestNestedInTxRollsBackOnlyItsOwnWrites(t *testing.T) {
	ctx := context.Background()
	s := newStorage(t)
	u := newUser(t, s)

	base, instances := series(u.ID)
	boom := errors.New("boom")
	err := s.InTx(ctx, func(tx internal.Store) error {
		require.NoError(t, tx.UpsertEvents(ctx, base))

		err := tx.InTx(ctx, func(nested internal.Store) error {
			require.NoError(t, nested.UpsertEvents(ctx, instances[0]))
			require.NoError(t, nested.SetRecurrenceRule(ctx, u.ID, base.ID, []string{"RRULE:FREQ=DAILY;BYDAY=ZZ"}))
			return boom
		})
		require.ErrorIs(t, err, boom)

		return tx.InTx(ctx, func(nested internal.Store) error {
			return nested.UpsertEvents(ctx, instances[1])
		})
	})
	require.NoError(t, err)

	events, err := s.Events(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, base.ID, events[0].ID)
	assert.Equal(t, []string{"RRULE:FREQ=DAILY;COUNT=3"}, events[0].Recurrence.Rule)
	assert.Equal(t, instances[1].ID, events[1].ID)
}
