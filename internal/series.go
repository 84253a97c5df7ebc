package internal

import "time"

// Action is what a provider change means for the local store.
type Action string

func (a Action) String() string {
	return string(a)
}

const (
	ActionCreateSeries    Action = "CREATE_SERIES"
	ActionUpdateInstance  Action = "UPDATE_INSTANCE"
	ActionUpdateSeries    Action = "UPDATE_SERIES"
	ActionDeleteInstances Action = "DELETE_INSTANCES"
	ActionDeleteSeries    Action = "DELETE_SERIES"
	ActionUpsertEvent     Action = "UPSERT_EVENT"
	ActionDeleteEvent     Action = "DELETE_EVENT"
)

// SeriesChangeSummary describes a change to apply. It is consumed right away
// and never persisted. Event is only set for standalone actions.
type SeriesChangeSummary struct {
	Action           Action
	BaseEvent        *Event
	NewBaseEvent     *Event
	ModifiedInstance *Event
	// DeleteFrom is where a truncated or split series ends. For a split it is
	// the original start of the occurrence the new series begins at.
	DeleteFrom time.Time
	// OriginalStart is when ModifiedInstance was scheduled by the rule.
	OriginalStart time.Time
	Event         *Event
}

// IsSplit reports whether the summary asks to split BaseEvent at NewBaseEvent.
func (s *SeriesChangeSummary) IsSplit() bool {
	return s.Action == ActionUpdateSeries && !s.DeleteFrom.IsZero() && s.NewBaseEvent != nil
}
