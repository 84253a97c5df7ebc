package internal

import "time"

// Event is the local (Compass) representation of a calendar event. Its shape is
// decided by Recurrence: nil for standalone events, a rule for the base of a
// series and an EventID for one of its instances.
type Event struct {
	ID                string
	UserID            string
	CalendarID        string
	GEventID          string
	GRecurringEventID string
	Title             string
	Description       string
	StartDate         time.Time
	EndDate           time.Time
	IsAllDay          bool
	IsSomeday         bool
	Priority          Priority
	Origin            Origin
	Recurrence        *Recurrence
	UpdatedAt         time.Time
}

type Recurrence struct {
	Rule    []string
	EventID string
}

// Duration is the absolute distance between start and end.
func (e *Event) Duration() time.Duration {
	return e.EndDate.Sub(e.StartDate)
}

func (e *Event) Clone() *Event {
	if e == nil {
		return nil
	}
	c := *e
	if e.Recurrence != nil {
		r := *e.Recurrence
		r.Rule = append([]string(nil), e.Recurrence.Rule...)
		c.Recurrence = &r
	}
	return &c
}

type Priority string

func (p Priority) String() string {
	return string(p)
}

var (
	PriorityUnassigned Priority = "unassigned"
	PriorityWork       Priority = "work"
	PriorityRelations  Priority = "relations"
	PrioritySelf       Priority = "self"
)

type Origin string

func (o Origin) String() string {
	return string(o)
}

var (
	OriginCompass      Origin = "compass"
	OriginGoogle       Origin = "google"
	OriginGoogleImport Origin = "googleimport"
)

// ProviderEvent is an event as the calendar provider describes it, before it is
// mapped into the local schema.
type ProviderEvent struct {
	ID               string
	RecurringEventID string
	Status           EventStatus
	Summary          string
	Description      string
	Start            time.Time
	End              time.Time
	AllDay           bool
	TimeZone         string
	OriginalStart    time.Time
	Recurrence       []string
	Priority         Priority
	Origin           Origin
	Updated          time.Time
}

func (e *ProviderEvent) Cancelled() bool {
	return e.Status == StatusCancelled
}

// IsBase reports whether the provider event carries its own recurrence.
func (e *ProviderEvent) IsBase() bool {
	return len(e.Recurrence) > 0
}

func (e *ProviderEvent) IsInstance() bool {
	return e.RecurringEventID != ""
}

type EventStatus string

func (s EventStatus) String() string {
	return string(s)
}

var (
	StatusConfirmed EventStatus = "confirmed"
	StatusTentative EventStatus = "tentative"
	StatusCancelled EventStatus = "cancelled"
)
