package recurrence

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/guilherme-santos/compasssync/internal"
)

const DefaultMaxInstances = 100

// Expand turns a recurrence base into its instances, ordered by start date.
// The base is the first occurrence of its own series and is never emitted.
// At most maxInstances occurrences are enumerated (the base included), fewer
// when the rule has its own COUNT or UNTIL.
func Expand(base *internal.Event, maxInstances int) ([]*internal.Event, error) {
	starts, err := Occurrences(base, maxInstances)
	if err != nil {
		return nil, err
	}
	instances := make([]*internal.Event, 0, len(starts))
	for _, start := range starts {
		instances = append(instances, NewInstance(base, start))
	}
	return instances, nil
}

// Occurrences returns the start dates of the instances Expand would build.
func Occurrences(base *internal.Event, maxInstances int) ([]time.Time, error) {
	if err := validate(base); err != nil {
		return nil, err
	}
	if maxInstances <= 0 {
		maxInstances = DefaultMaxInstances
	}
	first, err := FirstRule(base.Recurrence.Rule)
	if err != nil {
		return nil, err
	}
	r, err := newRRule(first, base.StartDate)
	if err != nil {
		return nil, err
	}

	var (
		next  = r.Iterator()
		out   []time.Time
		total = 1 // the base
	)
	for total < maxInstances {
		occ, ok := next()
		if !ok {
			break
		}
		if !occ.After(base.StartDate) {
			continue
		}
		out = append(out, occ.In(base.StartDate.Location()))
		total++
	}
	return out, nil
}

// NewInstance clones base into the instance starting at start. The duration of
// the base is kept in absolute time so DST transitions do not stretch it.
func NewInstance(base *internal.Event, start time.Time) *internal.Event {
	start = start.In(base.StartDate.Location())

	inst := base.Clone()
	inst.ID = uuid.NewString()
	inst.StartDate = start
	inst.EndDate = instanceEnd(base, start)
	inst.Recurrence = &internal.Recurrence{EventID: base.ID}
	inst.GRecurringEventID = base.GEventID
	inst.GEventID = ""
	if base.GEventID != "" {
		inst.GEventID = InstanceGEventID(base.GEventID, start, base.IsAllDay)
	}
	return inst
}

func instanceEnd(base *internal.Event, start time.Time) time.Time {
	dur := base.Duration()
	if base.IsAllDay {
		days := int(math.Round(dur.Hours() / 24))
		return start.AddDate(0, 0, days)
	}
	return start.Add(dur)
}

// InstanceGEventID is the id the provider gives to the instance of a series
// starting at start.
func InstanceGEventID(baseGEventID string, start time.Time, allDay bool) string {
	if allDay {
		return baseGEventID + "_" + start.Format("20060102")
	}
	return baseGEventID + "_" + start.UTC().Format(UntilFormat)
}

func validate(base *internal.Event) error {
	const op = "expand"
	switch {
	case base == nil:
		return internal.E(internal.ErrInvalidRecurrence, op, "nil base", nil)
	case base.Recurrence == nil || len(base.Recurrence.Rule) == 0:
		return internal.E(internal.ErrInvalidRecurrence, op, fmt.Sprintf("event %s has no recurrence rule", base.ID), nil)
	case base.Recurrence.EventID != "":
		return internal.E(internal.ErrInvalidRecurrence, op, fmt.Sprintf("event %s is an instance", base.ID), nil)
	case base.StartDate.IsZero() || base.EndDate.IsZero():
		return internal.E(internal.ErrInvalidRecurrence, op, fmt.Sprintf("event %s has no start or end date", base.ID), nil)
	case base.EndDate.Before(base.StartDate):
		return internal.E(internal.ErrInvalidRecurrence, op, fmt.Sprintf("event %s ends before it starts", base.ID), nil)
	}
	return nil
}
