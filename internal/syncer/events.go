package syncer

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/guilherme-santos/compasssync/internal"
	"github.com/guilherme-santos/compasssync/internal/mapper"
	"github.com/guilherme-santos/compasssync/internal/processor"
)

const DefaultCalendarID = "primary"

// CreateEvent creates a local event, standalone or the base of a series, and
// pushes it to the provider first unless it is a someday event.
func (s *Syncer) CreateEvent(ctx context.Context, userID string, e *internal.Event) (*internal.Event, error) {
	const op = "create event"

	user, err := s.store.User(ctx, userID)
	if err != nil {
		return nil, err
	}
	shape, err := internal.Classify(e)
	if err != nil {
		return nil, err
	}
	if _, ok := shape.(internal.RecurrenceInstance); ok {
		return nil, internal.E(internal.ErrValidation, op, "instances are created by their series", nil)
	}
	if e.StartDate.IsZero() || e.EndDate.Before(e.StartDate) {
		return nil, internal.E(internal.ErrValidation, op, "invalid start or end date", nil)
	}

	e.ID = uuid.NewString()
	e.UserID = user.ID
	e.Origin = internal.OriginCompass
	if e.CalendarID == "" {
		e.CalendarID = DefaultCalendarID
	}
	if e.Priority == "" {
		e.Priority = internal.PriorityUnassigned
	}
	logger := s.logger.With(internal.UserAttr(user.ID), internal.CalendarAttr(e.CalendarID))

	var provider internal.Provider
	if !e.IsSomeday {
		if provider, err = s.provider(user); err != nil {
			return nil, err
		}
		created, err := provider.CreateEvent(ctx, user, e.CalendarID, mapper.ToProvider(e))
		if err != nil {
			return nil, internal.ProviderErr(op, err)
		}
		e.GEventID = created.ID
		logger.Debug("Event created on the provider", slog.String("event", created.ID))
	}

	proc := processor.New(s.store, s.MaxInstances, logger)
	switch shape.(type) {
	case internal.RecurrenceBase:
		_, err = proc.CreateSeries(ctx, e)
	default:
		err = proc.UpsertEvent(ctx, e)
	}
	if err != nil {
		logger.Error("Unable to store event", slog.Any("error", err))

		// Remove it from the provider as well, otherwise the next sync would
		// import it as a new event.
		if provider != nil {
			_ = provider.DeleteEvent(context.WithoutCancel(ctx), user, e.CalendarID, e.GEventID)
		}
		return nil, err
	}
	s.notifier.EventsChanged(user.ID)
	logger.Info("Event created", slog.String("event", e.ID), slog.String("category", shape.Category().String()))
	return e, nil
}

// DeleteEvent deletes a local event from the provider and the local store.
// Deleting a base deletes its whole series.
func (s *Syncer) DeleteEvent(ctx context.Context, userID, eventID string) error {
	const op = "delete event"

	user, err := s.store.User(ctx, userID)
	if err != nil {
		return err
	}
	e, err := s.store.EventByID(ctx, userID, eventID)
	if err != nil {
		return err
	}
	logger := s.logger.With(internal.UserAttr(user.ID), internal.CalendarAttr(e.CalendarID))

	if e.GEventID != "" && !e.IsSomeday {
		provider, err := s.provider(user)
		if err != nil {
			return err
		}
		err = provider.DeleteEvent(ctx, user, e.CalendarID, e.GEventID)
		if err != nil && !errors.Is(err, internal.ErrNotFound) {
			return internal.ProviderErr(op, err)
		}
	}
	if err := processor.New(s.store, s.MaxInstances, logger).DeleteEvent(ctx, e); err != nil {
		return err
	}
	s.notifier.EventsChanged(user.ID)
	logger.Info("Event deleted", slog.String("event", e.ID))
	return nil
}
