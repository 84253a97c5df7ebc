package mapper

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/guilherme-santos/compasssync/internal"
	"github.com/guilherme-santos/compasssync/internal/recurrence"
)

// A base created by a "this and following" edit gets the id of the series it
// was cut from followed by _R and the original start of the occurrence it
// was cut at. Instances get the id of their series followed by their
// original start.
var (
	splitID    = regexp.MustCompile(`^(.+)_R(\d{8}(?:T\d{6}Z?)?)$`)
	instanceID = regexp.MustCompile(`^(.+)_(\d{8}(?:T\d{6}Z)?)$`)
)

// ErrUnknownSeries is the cause of the mapping error of an instance whose
// series is not stored yet. Such an instance may be retried once the series
// arrives.
var ErrUnknownSeries = errors.New("series is not stored")

// SplitOrigin returns the provider id of the series a split base was cut from.
func SplitOrigin(id string) (string, bool) {
	m := splitID.FindStringSubmatch(id)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// SplitStart returns the original start of the occurrence a split base was
// cut at. Date-only suffixes are midnight in loc.
func SplitStart(id string, loc *time.Location) (time.Time, bool) {
	m := splitID.FindStringSubmatch(id)
	if m == nil {
		return time.Time{}, false
	}
	return suffixTime(m[2], loc)
}

// InstanceOf splits the provider id of an instance into the id of its series
// and its original start.
func InstanceOf(id string, loc *time.Location) (string, time.Time, bool) {
	m := instanceID.FindStringSubmatch(id)
	if m == nil {
		return "", time.Time{}, false
	}
	start, ok := suffixTime(m[2], loc)
	if !ok {
		return "", time.Time{}, false
	}
	return m[1], start, true
}

func suffixTime(v string, loc *time.Location) (time.Time, bool) {
	if loc == nil {
		loc = time.UTC
	}
	if len(v) == len("20060102") {
		t, err := time.ParseInLocation("20060102", v, loc)
		return t, err == nil
	}
	t, err := time.Parse("20060102T150405", strings.TrimSuffix(v, "Z"))
	return t, err == nil
}

// Lookup is the read side of the event store the mapper needs.
type Lookup interface {
	EventByID(_ context.Context, userID, id string) (*internal.Event, error)
	EventByGEventID(_ context.Context, userID, gEventID string) (*internal.Event, error)
}

// Payload is one unit of change found in a provider page. NewBase is set when
// the provider split the series of Event.
type Payload struct {
	Event   *internal.ProviderEvent
	NewBase *internal.ProviderEvent
}

func (p Payload) String() string {
	if p.Event == nil {
		return "<empty>"
	}
	if p.NewBase != nil {
		return p.Event.ID + "+" + p.NewBase.ID
	}
	return p.Event.ID
}

// Mapper turns provider events of one calendar into summaries of local changes.
// Lookups go through events, which must be the store the summaries are applied
// to so that earlier changes of the same page are visible.
type Mapper struct {
	UserID     string
	CalendarID string
	Origin     internal.Origin
	events     Lookup
}

func New(events Lookup, userID, calendarID string, origin internal.Origin) *Mapper {
	return &Mapper{
		UserID:     userID,
		CalendarID: calendarID,
		Origin:     origin,
		events:     events,
	}
}

// Group orders the items of a page so that bases come before the standalone
// events and instances that may depend on them, and pairs a split base with
// its original series when both are in the page and the series is stored.
func (m *Mapper) Group(ctx context.Context, items []*internal.ProviderEvent) ([]Payload, error) {
	var bases, splits, singles, instances []Payload
	for _, pe := range items {
		if pe == nil || pe.ID == "" {
			continue
		}
		switch {
		case pe.IsInstance():
			instances = append(instances, Payload{Event: pe})
		case pe.IsBase():
			if _, ok := SplitOrigin(pe.ID); ok {
				splits = append(splits, Payload{Event: pe})
				continue
			}
			bases = append(bases, Payload{Event: pe})
		default:
			singles = append(singles, Payload{Event: pe})
		}
	}

	index := make(map[string]int, len(bases))
	for i, p := range bases {
		index[p.Event.ID] = i
	}
	out := make([]Payload, 0, len(items))
	var orphans []Payload
	for _, sp := range splits {
		origin, _ := SplitOrigin(sp.Event.ID)
		i, ok := index[origin]
		if ok && bases[i].NewBase == nil {
			local, err := m.find(ctx, origin)
			if err != nil {
				return nil, err
			}
			if isBase(local) {
				bases[i].NewBase = sp.Event
				continue
			}
		}
		orphans = append(orphans, sp)
	}
	out = append(out, bases...)
	out = append(out, orphans...)
	out = append(out, singles...)
	out = append(out, instances...)
	return out, nil
}

// state is what the store knows about a payload.
type state struct {
	// local has the provider id of the payload's event
	local *internal.Event
	// base is the stored series the payload belongs to or splits
	base    *internal.Event
	newBase *internal.ProviderEvent
	// orphan is set for instances whose series is unknown
	orphan bool
}

func (m *Mapper) resolve(ctx context.Context, p Payload) (*state, error) {
	pe := p.Event
	if pe == nil || pe.ID == "" {
		return nil, internal.E(internal.ErrMapping, "map", "payload without event", nil)
	}
	local, err := m.find(ctx, pe.ID)
	if err != nil {
		return nil, err
	}
	st := &state{local: local}

	switch {
	case p.NewBase != nil:
		if isBase(local) {
			st.base = local
			st.newBase = p.NewBase
		}
	case pe.IsBase():
		origin, ok := SplitOrigin(pe.ID)
		if !ok || local != nil {
			break
		}
		base, err := m.find(ctx, origin)
		if err != nil {
			return nil, err
		}
		if isBase(base) {
			st.base = base
			st.newBase = pe
		}
	case pe.IsInstance():
		if st.base, err = m.find(ctx, pe.RecurringEventID); err != nil {
			return nil, err
		}
	case local == nil && pe.Cancelled():
		// cancelled instances may come without their recurring event id
		if origin, _, ok := InstanceOf(pe.ID, nil); ok {
			if st.base, err = m.find(ctx, origin); err != nil {
				return nil, err
			}
			st.orphan = st.base == nil
		}
	case local != nil && local.Recurrence != nil && local.Recurrence.EventID != "":
		// cancelled instances may come without their recurring event id
		base, err := m.events.EventByID(ctx, m.UserID, local.Recurrence.EventID)
		if err != nil && !errors.Is(err, internal.ErrNotFound) {
			return nil, internal.StoreErr("map", err)
		}
		st.base = base
	}
	return st, nil
}

// InferAction decides what a payload means for the local store.
func (m *Mapper) InferAction(ctx context.Context, p Payload) (internal.Action, error) {
	st, err := m.resolve(ctx, p)
	if err != nil {
		return "", err
	}
	return m.infer(p, st)
}

func (m *Mapper) infer(p Payload, st *state) (internal.Action, error) {
	pe := p.Event
	if pe.Cancelled() {
		if st.local == nil {
			if isBase(st.base) {
				return internal.ActionDeleteInstances, nil
			}
			if st.orphan || pe.IsInstance() {
				return "", internal.E(internal.ErrMapping, "infer action", fmt.Sprintf("cancelled instance %s of unknown series", pe.ID), ErrUnknownSeries)
			}
			return "", internal.E(internal.ErrMapping, "infer action", fmt.Sprintf("cancelled event %s is not stored", pe.ID), nil)
		}
		shape, err := internal.Classify(st.local)
		if err != nil {
			return "", internal.E(internal.ErrMapping, "infer action", pe.ID, err)
		}
		switch shape.(type) {
		case internal.RecurrenceBase:
			return internal.ActionDeleteSeries, nil
		case internal.RecurrenceInstance:
			return internal.ActionDeleteInstances, nil
		default:
			return internal.ActionDeleteEvent, nil
		}
	}

	switch {
	case st.newBase != nil:
		return internal.ActionUpdateSeries, nil
	case pe.IsBase():
		if !isBase(st.local) {
			return internal.ActionCreateSeries, nil
		}
		if _, ok := truncation(st.local, pe); ok {
			return internal.ActionDeleteInstances, nil
		}
		return internal.ActionUpdateSeries, nil
	case pe.IsInstance():
		if st.base == nil {
			return "", internal.E(internal.ErrMapping, "infer action", fmt.Sprintf("instance %s of unknown series %s", pe.ID, pe.RecurringEventID), ErrUnknownSeries)
		}
		return internal.ActionUpdateInstance, nil
	}
	return internal.ActionUpsertEvent, nil
}

// Map infers the action of a payload and builds its summary.
func (m *Mapper) Map(ctx context.Context, p Payload) (*internal.SeriesChangeSummary, error) {
	st, err := m.resolve(ctx, p)
	if err != nil {
		return nil, err
	}
	action, err := m.infer(p, st)
	if err != nil {
		return nil, err
	}
	return m.build(p, st, action)
}

// MapEvents converts the provider events a given action refers to into the
// local schema. It fails with a mapping error when the payload lacks what the
// action needs.
func (m *Mapper) MapEvents(ctx context.Context, p Payload, action internal.Action) (*internal.SeriesChangeSummary, error) {
	st, err := m.resolve(ctx, p)
	if err != nil {
		return nil, err
	}
	return m.build(p, st, action)
}

func (m *Mapper) build(p Payload, st *state, action internal.Action) (*internal.SeriesChangeSummary, error) {
	pe := p.Event
	missing := func(what string) error {
		return internal.E(internal.ErrMapping, "map events", fmt.Sprintf("%s for %s: %s", what, action, pe.ID), nil)
	}
	summary := &internal.SeriesChangeSummary{Action: action}

	switch action {
	case internal.ActionCreateSeries:
		if !pe.IsBase() || pe.Cancelled() {
			return nil, missing("no recurrence")
		}
		summary.BaseEvent = m.withLocalID(m.ToEvent(pe), st.local)

	case internal.ActionUpdateSeries:
		if st.newBase != nil {
			if st.base == nil {
				return nil, missing("no stored series to split")
			}
			nb := m.ToEvent(st.newBase)
			summary.BaseEvent = st.base
			summary.NewBaseEvent = nb
			summary.DeleteFrom = nb.StartDate
			if at, ok := SplitStart(st.newBase.ID, st.base.StartDate.Location()); ok {
				summary.DeleteFrom = at
			}
			summary.OriginalStart = summary.DeleteFrom
			break
		}
		if !pe.IsBase() {
			return nil, missing("no newBaseEvent")
		}
		if !isBase(st.local) {
			return nil, missing("no stored base")
		}
		summary.BaseEvent = st.local
		summary.NewBaseEvent = m.withLocalID(m.ToEvent(pe), st.local)

	case internal.ActionDeleteSeries:
		if !isBase(st.local) {
			return nil, missing("no stored base")
		}
		summary.BaseEvent = st.local

	case internal.ActionDeleteInstances:
		if pe.Cancelled() {
			summary.BaseEvent = st.base
			summary.OriginalStart = m.originalStart(pe, st.base)
			if st.local == nil && isBase(st.base) {
				// never stored, or the first occurrence the base holds
				inst := m.ToEvent(pe)
				inst.Recurrence = &internal.Recurrence{EventID: st.base.ID}
				inst.GRecurringEventID = st.base.GEventID
				if inst.StartDate.IsZero() {
					inst.StartDate = summary.OriginalStart
					inst.EndDate = summary.OriginalStart.Add(st.base.Duration())
				}
				summary.ModifiedInstance = inst
				break
			}
			if st.local == nil || st.local.Recurrence == nil || st.local.Recurrence.EventID == "" {
				return nil, missing("no stored instance")
			}
			summary.ModifiedInstance = st.local
			break
		}
		from, ok := truncation(st.local, pe)
		if !ok {
			return nil, missing("no truncated rule")
		}
		summary.BaseEvent = m.withLocalID(m.ToEvent(pe), st.local)
		summary.DeleteFrom = from

	case internal.ActionUpdateInstance:
		if st.base == nil {
			return nil, missing("no stored base")
		}
		inst := m.withLocalID(m.ToEvent(pe), st.local)
		inst.Recurrence = &internal.Recurrence{EventID: st.base.ID}
		inst.GRecurringEventID = st.base.GEventID
		summary.BaseEvent = st.base
		summary.ModifiedInstance = inst
		summary.OriginalStart = m.originalStart(pe, st.base)

	case internal.ActionUpsertEvent:
		e := m.withLocalID(m.ToEvent(pe), st.local)
		e.Recurrence = nil
		summary.Event = e

	case internal.ActionDeleteEvent:
		if st.local == nil {
			return nil, missing("no stored event")
		}
		summary.Event = st.local

	default:
		return nil, internal.E(internal.ErrMapping, "map events", fmt.Sprintf("unknown action %q", action), nil)
	}
	return summary, nil
}

// ToEvent converts a provider event into a new local event. Instances get
// their base reference from the mapper, as the provider only knows the base's
// provider id.
func (m *Mapper) ToEvent(pe *internal.ProviderEvent) *internal.Event {
	start, end := pe.Start, pe.End
	if loc := location(pe.TimeZone); loc != nil {
		start, end = start.In(loc), end.In(loc)
	}
	e := &internal.Event{
		ID:                uuid.NewString(),
		UserID:            m.UserID,
		CalendarID:        m.CalendarID,
		GEventID:          pe.ID,
		GRecurringEventID: pe.RecurringEventID,
		Title:             pe.Summary,
		Description:       pe.Description,
		StartDate:         start,
		EndDate:           end,
		IsAllDay:          pe.AllDay,
		Priority:          pe.Priority,
		Origin:            m.Origin,
		UpdatedAt:         pe.Updated,
	}
	if e.Priority == "" {
		e.Priority = internal.PriorityUnassigned
	}
	if e.Origin == "" {
		e.Origin = pe.Origin
	}
	if pe.IsBase() {
		e.Recurrence = &internal.Recurrence{Rule: append([]string(nil), pe.Recurrence...)}
	}
	return e
}

// ToProvider converts a local event into the shape the provider accepts.
func ToProvider(e *internal.Event) *internal.ProviderEvent {
	pe := &internal.ProviderEvent{
		ID:               e.GEventID,
		RecurringEventID: e.GRecurringEventID,
		Status:           internal.StatusConfirmed,
		Summary:          e.Title,
		Description:      e.Description,
		Start:            e.StartDate,
		End:              e.EndDate,
		AllDay:           e.IsAllDay,
		Priority:         e.Priority,
		Origin:           e.Origin,
	}
	if name := e.StartDate.Location().String(); name != "Local" {
		pe.TimeZone = name
	}
	if e.Recurrence != nil && len(e.Recurrence.Rule) > 0 {
		pe.Recurrence = append([]string(nil), e.Recurrence.Rule...)
	}
	return pe
}

// originalStart is when the rule scheduled the instance pe: its original start
// time, else the start its id carries, else its start.
func (m *Mapper) originalStart(pe *internal.ProviderEvent, base *internal.Event) time.Time {
	if !pe.OriginalStart.IsZero() {
		return pe.OriginalStart
	}
	loc := time.UTC
	if base != nil {
		loc = base.StartDate.Location()
	}
	if _, start, ok := InstanceOf(pe.ID, loc); ok {
		return start
	}
	return pe.Start
}

func (m *Mapper) withLocalID(e, local *internal.Event) *internal.Event {
	if local != nil {
		e.ID = local.ID
	}
	return e
}

func (m *Mapper) find(ctx context.Context, gEventID string) (*internal.Event, error) {
	if gEventID == "" {
		return nil, nil
	}
	e, err := m.events.EventByGEventID(ctx, m.UserID, gEventID)
	if errors.Is(err, internal.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, internal.StoreErr("map", err)
	}
	return e, nil
}

// truncation reports whether pe only ends the stored series earlier, and from
// when its instances are gone.
func truncation(local *internal.Event, pe *internal.ProviderEvent) (time.Time, bool) {
	if !isBase(local) || !pe.Start.Equal(local.StartDate) || !pe.End.Equal(local.EndDate) {
		return time.Time{}, false
	}
	if pe.Summary != local.Title || pe.Description != local.Description {
		return time.Time{}, false
	}
	oldRule, err := recurrence.FirstRule(local.Recurrence.Rule)
	if err != nil {
		return time.Time{}, false
	}
	newRule, err := recurrence.FirstRule(pe.Recurrence)
	if err != nil {
		return time.Time{}, false
	}
	if !newRule.SameCadence(oldRule) || !newRule.EndsBefore(oldRule) {
		return time.Time{}, false
	}
	until, _ := newRule.Until()
	// a date-only UNTIL includes the whole day
	if len(newRule.Get("UNTIL")) == len("20060102") {
		return until.AddDate(0, 0, 1), true
	}
	return until.Add(time.Second), true
}

func isBase(e *internal.Event) bool {
	if e == nil {
		return false
	}
	c, err := internal.Categorize(e)
	return err == nil && c == internal.CategoryRecurrenceBase
}

func location(name string) *time.Location {
	if name == "" {
		return nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil
	}
	return loc
}
