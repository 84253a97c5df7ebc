package internal

import "fmt"

// Category is the shape of an event, derived from its recurrence fields.
type Category string

func (c Category) String() string {
	if c == "" {
		return "null"
	}
	return string(c)
}

const (
	CategoryNone               Category = ""
	CategoryStandalone         Category = "STANDALONE"
	CategoryRecurrenceBase     Category = "RECURRENCE_BASE"
	CategoryRecurrenceInstance Category = "RECURRENCE_INSTANCE"
)

// Categorize returns the category of a well-formed event. An event carrying both
// a rule and a base reference is malformed.
func Categorize(e *Event) (Category, error) {
	if e == nil {
		return CategoryNone, E(ErrValidation, "categorize", "nil event", nil)
	}
	r := e.Recurrence
	switch {
	case r == nil || (len(r.Rule) == 0 && r.EventID == ""):
		return CategoryStandalone, nil
	case len(r.Rule) > 0 && r.EventID == "":
		return CategoryRecurrenceBase, nil
	case len(r.Rule) == 0 && r.EventID != "":
		return CategoryRecurrenceInstance, nil
	}
	return CategoryNone, E(ErrValidation, "categorize", fmt.Sprintf("event %s has both a rule and a base reference", e.ID), nil)
}

// Shape is the sum type an event is turned into right after it is loaded.
// Exactly one of Standalone, RecurrenceBase and RecurrenceInstance implements it
// for a given event.
type Shape interface {
	Category() Category
	Event() *Event
	shape()
}

type Standalone struct{ E *Event }

func (s Standalone) Category() Category { return CategoryStandalone }
func (s Standalone) Event() *Event      { return s.E }
func (Standalone) shape()               {}

type RecurrenceBase struct{ E *Event }

func (s RecurrenceBase) Category() Category { return CategoryRecurrenceBase }
func (s RecurrenceBase) Event() *Event      { return s.E }
func (s RecurrenceBase) Rule() []string     { return s.E.Recurrence.Rule }
func (RecurrenceBase) shape()               {}

type RecurrenceInstance struct{ E *Event }

func (s RecurrenceInstance) Category() Category { return CategoryRecurrenceInstance }
func (s RecurrenceInstance) Event() *Event      { return s.E }
func (s RecurrenceInstance) BaseID() string     { return s.E.Recurrence.EventID }
func (RecurrenceInstance) shape()               {}

func Classify(e *Event) (Shape, error) {
	c, err := Categorize(e)
	if err != nil {
		return nil, err
	}
	switch c {
	case CategoryRecurrenceBase:
		return RecurrenceBase{e}, nil
	case CategoryRecurrenceInstance:
		return RecurrenceInstance{e}, nil
	default:
		return Standalone{e}, nil
	}
}

type ChangeStatus string

const (
	ChangeConfirmed ChangeStatus = "CONFIRMED"
	ChangeCreated   ChangeStatus = "CREATED"
	ChangeUpdated   ChangeStatus = "UPDATED"
	ChangeDeleted   ChangeStatus = "DELETED"
	ChangeCancelled ChangeStatus = "CANCELLED"
)

// Transition describes a category change, used for change logs only.
type Transition struct {
	From   Category
	To     Category
	Status ChangeStatus
}

func NewTransition(from, to Category, status ChangeStatus) Transition {
	return Transition{From: from, To: to, Status: status}
}

// Label is the change-log entry, e.g. RECURRENCE_BASE_UPDATED.
func (t Transition) Label() string {
	return fmt.Sprintf("%s_%s", t.To, t.Status)
}

func (t Transition) String() string {
	return t.From.String() + "->" + t.Label()
}

// Change is one entry of the change log produced while processing a summary.
type Change struct {
	Transition Transition
	Event      *Event
}

func (c Change) String() string {
	if c.Event == nil {
		return c.Transition.String()
	}
	return fmt.Sprintf("%s (%s %q)", c.Transition, c.Event.ID, c.Event.Title)
}
