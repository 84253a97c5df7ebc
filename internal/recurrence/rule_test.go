package recurrence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRule(t *testing.T) {
	r, err := ParseRule("RRULE:FREQ=WEEKLY;BYDAY=MO,TU;COUNT=4")
	require.NoError(t, err)
	assert.Equal(t, "WEEKLY", r.Freq())
	assert.Equal(t, 4, r.Count())
	assert.Equal(t, "RRULE:FREQ=WEEKLY;BYDAY=MO,TU;COUNT=4", r.String())

	r.SetUntil(time.Date(2025, 4, 3, 4, 59, 59, 0, time.UTC))
	assert.Equal(t, "RRULE:FREQ=WEEKLY;BYDAY=MO,TU;UNTIL=20250403T045959Z", r.String())

	until, ok := r.Until()
	require.True(t, ok)
	assert.Equal(t, time.Date(2025, 4, 3, 4, 59, 59, 0, time.UTC), until)

	_, err = ParseRule("RRULE:")
	assert.Error(t, err)
	_, err = ParseRule("RRULE:COUNT=3")
	assert.Error(t, err)
}

func TestRRules(t *testing.T) {
	lines := []string{
		"EXDATE;TZID=America/Chicago:20250405T070000",
		"RRULE:FREQ=DAILY",
	}
	assert.Equal(t, []string{"RRULE:FREQ=DAILY"}, RRules(lines))
}

func TestSameCadenceAndEndsBefore(t *testing.T) {
	open, err := ParseRule("RRULE:FREQ=DAILY")
	require.NoError(t, err)
	cut, err := ParseRule("RRULE:FREQ=DAILY;UNTIL=20250403T045959Z")
	require.NoError(t, err)
	weekly, err := ParseRule("RRULE:FREQ=WEEKLY")
	require.NoError(t, err)

	assert.True(t, open.SameCadence(cut))
	assert.False(t, open.SameCadence(weekly))
	assert.True(t, cut.EndsBefore(open))
	assert.False(t, open.EndsBefore(cut))
}

func TestUntilBefore_Daily(t *testing.T) {
	loc := chicago(t)
	dtstart := time.Date(2025, 4, 2, 7, 0, 0, 0, loc)
	split := time.Date(2025, 4, 3, 7, 0, 0, 0, loc)

	until, err := UntilBefore([]string{"RRULE:FREQ=DAILY"}, dtstart, split)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 4, 3, 4, 59, 59, 0, time.UTC), until)
}

func TestUntilBefore_SameDayOccurrence(t *testing.T) {
	dtstart := time.Date(2025, 4, 2, 7, 0, 0, 0, time.UTC)
	split := time.Date(2025, 4, 3, 19, 0, 0, 0, time.UTC)

	until, err := UntilBefore([]string{"RRULE:FREQ=DAILY;BYHOUR=7,19"}, dtstart, split)
	require.NoError(t, err)
	assert.Equal(t, split.Add(-time.Second), until)
}

func TestTruncate(t *testing.T) {
	loc := chicago(t)
	dtstart := time.Date(2025, 4, 2, 7, 0, 0, 0, loc)
	split := time.Date(2025, 4, 3, 7, 0, 0, 0, loc)

	rules, err := Truncate([]string{"RRULE:FREQ=DAILY;COUNT=10"}, dtstart, split)
	require.NoError(t, err)
	assert.Equal(t, []string{"RRULE:FREQ=DAILY;UNTIL=20250403T045959Z"}, rules)
}

func TestRemainder(t *testing.T) {
	dtstart := time.Date(2025, 4, 2, 7, 0, 0, 0, time.UTC)
	split := time.Date(2025, 4, 4, 7, 0, 0, 0, time.UTC)

	rules, err := Remainder([]string{"RRULE:FREQ=DAILY;COUNT=5"}, dtstart, split)
	require.NoError(t, err)
	assert.Equal(t, []string{"RRULE:FREQ=DAILY;COUNT=3"}, rules)

	rules, err = Remainder([]string{"RRULE:FREQ=DAILY"}, dtstart, split)
	require.NoError(t, err)
	assert.Equal(t, []string{"RRULE:FREQ=DAILY"}, rules)
}
