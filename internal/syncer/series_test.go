package syncer_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guilherme-santos/compasssync/internal"
)

func standup(rule string) *internal.ProviderEvent {
	return &internal.ProviderEvent{
		ID: "g1", Status: internal.StatusConfirmed, Summary: "standup",
		Start: start, End: start.Add(30 * time.Minute),
		Recurrence: []string{rule},
	}
}

// hours maps the day of every stored event to the hours it starts at.
func hours(events []*internal.Event) map[string][]int {
	out := make(map[string][]int)
	for _, ev := range events {
		day := ev.StartDate.UTC().Format("2006-01-02")
		out[day] = append(out[day], ev.StartDate.UTC().Hour())
	}
	return out
}

func labelsOf(changes []internal.Change) []string {
	out := make([]string, len(changes))
	for i, c := range changes {
		out[i] = c.Transition.Label()
	}
	return out
}

func TestInstanceBeforeItsSeriesIsDeferred(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.provider.Pages["primary"] = []*internal.Page{
		{Items: []*internal.ProviderEvent{
			{ID: "g1_20250403T090000Z", Status: internal.StatusCancelled},
		}},
		{Items: []*internal.ProviderEvent{standup("RRULE:FREQ=DAILY;COUNT=3")}},
	}
	e.provider.FailOnce["page-1"] = assert.AnError

	_, err := e.syncer.Start(ctx, e.user.ID, internal.Date{})
	require.Error(t, err)
	cur, err := e.store.FindSyncCursor(ctx, internal.EventsCursor(e.user.ID, "primary"))
	require.NoError(t, err)
	require.Len(t, cur.Pending, 1)
	assert.Equal(t, "g1_20250403T090000Z", cur.Pending[0].ID)

	require.NoError(t, e.syncer.Restart(ctx, e.user.ID, false))
	res, err := e.syncer.Start(ctx, e.user.ID, internal.Date{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Processed)
	assert.Zero(t, res.Skipped)

	events := e.events(t)
	require.Len(t, events, 2)
	for _, ev := range events {
		assert.NotEqual(t, "g1_20250403T090000Z", ev.GEventID)
	}
	assert.Equal(t, map[string][]int{"2025-04-02": {9}, "2025-04-04": {9}}, hours(events))

	cur, err = e.store.FindSyncCursor(ctx, internal.EventsCursor(e.user.ID, "primary"))
	require.NoError(t, err)
	assert.Empty(t, cur.Pending)
}

func TestInstanceOfMissingSeriesIsSkipped(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.provider.Pages["primary"] = []*internal.Page{
		{Items: []*internal.ProviderEvent{
			{ID: "g9_20250403T090000Z", RecurringEventID: "g9", Status: internal.StatusCancelled},
		}},
		{Items: []*internal.ProviderEvent{standup("RRULE:FREQ=DAILY;COUNT=3")}},
	}

	res, err := e.syncer.Start(ctx, e.user.ID, internal.Date{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Deferred)
	assert.Equal(t, 1, res.Skipped)
	assert.Len(t, e.events(t), 3)
}

func TestSplitChangingTime(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.provider.Pages["primary"] = []*internal.Page{
		{Items: []*internal.ProviderEvent{standup("RRULE:FREQ=DAILY;COUNT=5")}},
	}
	_, err := e.syncer.Start(ctx, e.user.ID, internal.Date{})
	require.NoError(t, err)
	require.Len(t, e.events(t), 5)

	// "this and following" from the third day, moved from 09:00 to 10:00
	splitStart := start.AddDate(0, 0, 2).Add(time.Hour)
	e.provider.Changes["sync-primary"] = &internal.Page{
		Items: []*internal.ProviderEvent{
			standup("RRULE:FREQ=DAILY;UNTIL=20250403T235959Z"),
			{
				ID: "g1_R20250404T090000Z", Status: internal.StatusConfirmed, Summary: "standup",
				Start: splitStart, End: splitStart.Add(45 * time.Minute),
				Recurrence: []string{"RRULE:FREQ=DAILY;COUNT=3"},
			},
		},
		NextSyncToken: "sync-2",
	}
	res, err := e.syncer.SyncCalendar(ctx, e.user.ID, "primary")
	require.NoError(t, err)
	assert.Equal(t, []string{"RECURRENCE_BASE_UPDATED", "RECURRENCE_BASE_CREATED"}, labelsOf(res.Changes))

	events := e.events(t)
	assert.Equal(t, map[string][]int{
		"2025-04-02": {9},
		"2025-04-03": {9},
		"2025-04-04": {10},
		"2025-04-05": {10},
		"2025-04-06": {10},
	}, hours(events))
	for _, ev := range events {
		if ev.StartDate.Hour() == 10 {
			assert.Equal(t, 45*time.Minute, ev.Duration(), ev.GEventID)
		}
	}

	base, err := e.store.EventByGEventID(ctx, e.user.ID, "g1")
	require.NoError(t, err)
	assert.Equal(t, []string{"RRULE:FREQ=DAILY;UNTIL=20250403T235959Z"}, base.Recurrence.Rule)
}

func TestInvalidSplitLeavesSeriesUntouched(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.provider.Pages["primary"] = []*internal.Page{
		{Items: []*internal.ProviderEvent{standup("RRULE:FREQ=DAILY;COUNT=5")}},
	}
	_, err := e.syncer.Start(ctx, e.user.ID, internal.Date{})
	require.NoError(t, err)

	splitStart := start.AddDate(0, 0, 2)
	e.provider.Changes["sync-primary"] = &internal.Page{
		Items: []*internal.ProviderEvent{
			standup("RRULE:FREQ=DAILY;UNTIL=20250403T235959Z"),
			{
				ID: "g1_R20250404T090000Z", Status: internal.StatusConfirmed, Summary: "standup",
				Start: splitStart, End: splitStart.Add(30 * time.Minute),
				Recurrence: []string{"RRULE:FREQ=DAILY;BYDAY=ZZ"},
			},
			{
				ID: "s2", Status: internal.StatusConfirmed, Summary: "retro",
				Start: start.Add(5 * time.Hour), End: start.Add(6 * time.Hour),
			},
		},
		NextSyncToken: "sync-2",
	}
	res, err := e.syncer.SyncCalendar(ctx, e.user.ID, "primary")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 1, res.Processed)

	base, err := e.store.EventByGEventID(ctx, e.user.ID, "g1")
	require.NoError(t, err)
	assert.Equal(t, []string{"RRULE:FREQ=DAILY;COUNT=5"}, base.Recurrence.Rule)
	n, err := e.store.CountSeries(ctx, e.user.ID, base.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 5, n)

	_, err = e.store.EventByGEventID(ctx, e.user.ID, "g1_R20250404T090000Z")
	assert.ErrorIs(t, err, internal.ErrNotFound)
	_, err = e.store.EventByGEventID(ctx, e.user.ID, "s2")
	require.NoError(t, err)
}

func TestFirstOccurrenceEdited(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	moved := start.Add(2 * time.Hour)
	e.provider.Pages["primary"] = []*internal.Page{
		{Items: []*internal.ProviderEvent{
			standup("RRULE:FREQ=DAILY;COUNT=3"),
			{
				ID: "g1_20250402T090000Z", RecurringEventID: "g1", Status: internal.StatusConfirmed, Summary: "kickoff",
				Start: moved, End: moved.Add(time.Hour), OriginalStart: start,
			},
		}},
	}

	res, err := e.syncer.Start(ctx, e.user.ID, internal.Date{})
	require.NoError(t, err)
	assert.Equal(t, []string{"RECURRENCE_BASE_CREATED", "RECURRENCE_BASE_UPDATED"}, labelsOf(res.Changes))

	base, err := e.store.EventByGEventID(ctx, e.user.ID, "g1")
	require.NoError(t, err)
	assert.Equal(t, "kickoff", base.Title)
	assert.True(t, base.StartDate.Equal(moved))
	assert.Equal(t, time.Hour, base.Duration())

	events := e.events(t)
	assert.Equal(t, map[string][]int{"2025-04-02": {11}, "2025-04-03": {9}, "2025-04-04": {9}}, hours(events))
	for _, ev := range events {
		if ev.ID != base.ID {
			assert.Equal(t, "standup", ev.Title)
		}
	}
}

func TestFirstOccurrenceCancelled(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.provider.Pages["primary"] = []*internal.Page{
		{Items: []*internal.ProviderEvent{
			standup("RRULE:FREQ=DAILY;COUNT=3"),
			{ID: "g1_20250402T090000Z", RecurringEventID: "g1", Status: internal.StatusCancelled, OriginalStart: start},
		}},
	}

	res, err := e.syncer.Start(ctx, e.user.ID, internal.Date{})
	require.NoError(t, err)
	assert.Zero(t, res.Skipped)
	assert.Equal(t, 2, res.Processed)

	base, err := e.store.EventByGEventID(ctx, e.user.ID, "g1")
	require.NoError(t, err)
	assert.True(t, base.StartDate.Equal(start.AddDate(0, 0, 1)))
	assert.Equal(t, []string{"RRULE:FREQ=DAILY;COUNT=2"}, base.Recurrence.Rule)

	events := e.events(t)
	assert.Equal(t, map[string][]int{"2025-04-03": {9}, "2025-04-04": {9}}, hours(events))

	// the same cancellation again leaves the moved base alone
	e.provider.Changes["sync-primary"] = &internal.Page{
		Items:         []*internal.ProviderEvent{{ID: "g1_20250402T090000Z", RecurringEventID: "g1", Status: internal.StatusCancelled, OriginalStart: start}},
		NextSyncToken: "sync-2",
	}
	_, err = e.syncer.SyncCalendar(ctx, e.user.ID, "primary")
	require.NoError(t, err)
	assert.Len(t, e.events(t), 2)
	base, err = e.store.EventByGEventID(ctx, e.user.ID, "g1")
	require.NoError(t, err)
	assert.True(t, base.StartDate.Equal(start.AddDate(0, 0, 1)))
}
