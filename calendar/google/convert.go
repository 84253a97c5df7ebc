package google

import (
	"time"

	"google.golang.org/api/calendar/v3"

	"github.com/guilherme-santos/compasssync/internal"
)

const (
	dateLayout = "2006-01-02"

	propPriority = "priority"
	propOrigin   = "origin"
)

// newProviderEvent converts an API event. calTZ is the calendar time zone,
// used for all-day events that carry none.
func newProviderEvent(event *calendar.Event, calTZ string) *internal.ProviderEvent {
	pe := &internal.ProviderEvent{
		ID:               event.Id,
		RecurringEventID: event.RecurringEventId,
		Status:           internal.EventStatus(event.Status),
	}
	if event.OriginalStartTime != nil {
		pe.OriginalStart, _ = parseEventTime(event.OriginalStartTime, calTZ)
	}
	if pe.Cancelled() {
		return pe
	}
	if pe.Status == "" {
		pe.Status = internal.StatusConfirmed
	}

	pe.Summary = event.Summary
	pe.Description = event.Description
	pe.Recurrence = event.Recurrence
	if event.Start != nil {
		pe.Start, pe.AllDay = parseEventTime(event.Start, calTZ)
		pe.TimeZone = event.Start.TimeZone
	}
	if event.End != nil {
		pe.End, _ = parseEventTime(event.End, calTZ)
	}
	pe.Updated, _ = time.Parse(time.RFC3339, event.Updated)

	if event.ExtendedProperties != nil {
		props := event.ExtendedProperties.Private
		pe.Priority = internal.Priority(props[propPriority])
		pe.Origin = internal.Origin(props[propOrigin])
	}
	return pe
}

// parseEventTime returns the instant of dt and whether it is a whole day.
// Unparseable values yield the zero time, which fails validation later on.
func parseEventTime(dt *calendar.EventDateTime, calTZ string) (time.Time, bool) {
	loc := location(dt.TimeZone, calTZ)
	if dt.Date != "" {
		t, err := time.ParseInLocation(dateLayout, dt.Date, loc)
		if err != nil {
			return time.Time{}, true
		}
		return t, true
	}
	t, err := time.Parse(time.RFC3339, dt.DateTime)
	if err != nil {
		return time.Time{}, false
	}
	return t.In(loc), false
}

func location(names ...string) *time.Location {
	for _, name := range names {
		if name == "" {
			continue
		}
		if loc, err := time.LoadLocation(name); err == nil {
			return loc
		}
	}
	return time.UTC
}

func newGoogleEvent(e *internal.ProviderEvent) *calendar.Event {
	event := &calendar.Event{
		Summary:     e.Summary,
		Description: e.Description,
		Start:       newEventDateTime(e.Start, e.AllDay, e.TimeZone),
		End:         newEventDateTime(e.End, e.AllDay, e.TimeZone),
		Recurrence:  e.Recurrence,
		Reminders: &calendar.EventReminders{
			UseDefault: true,
		},
	}
	props := map[string]string{}
	if e.Priority != "" {
		props[propPriority] = e.Priority.String()
	}
	if e.Origin != "" {
		props[propOrigin] = e.Origin.String()
	}
	if len(props) > 0 {
		event.ExtendedProperties = &calendar.EventExtendedProperties{Private: props}
	}
	return event
}

func newEventDateTime(t time.Time, allDay bool, tz string) *calendar.EventDateTime {
	if allDay {
		return &calendar.EventDateTime{Date: t.Format(dateLayout)}
	}
	if tz == "" {
		tz = t.Location().String()
	}
	// recurring events must name an IANA zone
	if tz == "Local" {
		tz = "UTC"
	}
	return &calendar.EventDateTime{DateTime: t.Format(time.RFC3339), TimeZone: tz}
}
