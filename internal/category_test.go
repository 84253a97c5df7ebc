package internal

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCategorize(t *testing.T) {
	tests := []struct {
		name  string
		event *Event
		want  Category
	}{
		{"no recurrence", &Event{ID: "a"}, CategoryStandalone},
		{"empty recurrence", &Event{ID: "a", Recurrence: &Recurrence{}}, CategoryStandalone},
		{"base", &Event{ID: "b", Recurrence: &Recurrence{Rule: []string{"RRULE:FREQ=DAILY"}}}, CategoryRecurrenceBase},
		{"instance", &Event{ID: "i", Recurrence: &Recurrence{EventID: "b"}}, CategoryRecurrenceInstance},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Categorize(tt.event)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCategorize_Malformed(t *testing.T) {
	_, err := Categorize(&Event{ID: "x", Recurrence: &Recurrence{Rule: []string{"RRULE:FREQ=DAILY"}, EventID: "b"}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrValidation))

	_, err = Categorize(nil)
	assert.True(t, errors.Is(err, ErrValidation))
}

func TestClassify_ExactlyOneShape(t *testing.T) {
	events := []*Event{
		{ID: "s"},
		{ID: "b", Recurrence: &Recurrence{Rule: []string{"RRULE:FREQ=WEEKLY"}}},
		{ID: "i", Recurrence: &Recurrence{EventID: "b"}},
	}
	for _, e := range events {
		shape, err := Classify(e)
		require.NoError(t, err)

		matches := 0
		switch s := shape.(type) {
		case Standalone:
			matches++
			assert.Nil(t, s.Event().Recurrence)
		case RecurrenceBase:
			matches++
			assert.NotEmpty(t, s.Rule())
		case RecurrenceInstance:
			matches++
			assert.Equal(t, "b", s.BaseID())
		}
		assert.Equal(t, 1, matches)
		assert.Same(t, e, shape.Event())
	}
}

func TestTransition(t *testing.T) {
	tr := NewTransition(CategoryNone, CategoryRecurrenceBase, ChangeConfirmed)
	assert.Equal(t, "RECURRENCE_BASE_CONFIRMED", tr.Label())
	assert.Equal(t, "null->RECURRENCE_BASE_CONFIRMED", tr.String())

	tr = NewTransition(CategoryStandalone, CategoryRecurrenceBase, ChangeUpdated)
	assert.Equal(t, "STANDALONE->RECURRENCE_BASE_UPDATED", tr.String())
}

func TestEventClone(t *testing.T) {
	e := &Event{ID: "b", Recurrence: &Recurrence{Rule: []string{"RRULE:FREQ=DAILY"}}}
	c := e.Clone()
	c.Recurrence.Rule[0] = "RRULE:FREQ=WEEKLY"
	assert.Equal(t, "RRULE:FREQ=DAILY", e.Recurrence.Rule[0])
}
