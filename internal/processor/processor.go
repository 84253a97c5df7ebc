package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/guilherme-santos/compasssync/internal"
	"github.com/guilherme-santos/compasssync/internal/recurrence"
)

// RecurringEventProcessor applies series changes to a store.
type RecurringEventProcessor interface {
	Process(context.Context, *internal.SeriesChangeSummary) ([]internal.Change, error)
	CreateSeries(_ context.Context, base *internal.Event) (string, error)
	UpdateEntireSeries(_ context.Context, oldBase, newBase *internal.Event) error
	UpdateSeriesWithSplit(_ context.Context, oldBase, splitInstance *internal.Event) (*internal.Event, error)
	SplitSeriesAt(_ context.Context, oldBase, newBase *internal.Event, at time.Time) (*internal.Event, error)
	UpdateInstance(_ context.Context, instance *internal.Event) error
	DeleteSeries(_ context.Context, base *internal.Event) (int64, error)
	DeleteInstancesFromDate(_ context.Context, base *internal.Event, from time.Time) (int64, error)
	DeleteSingleInstance(_ context.Context, instance *internal.Event) error
}

// LocalStoreProcessor applies series changes to the local store. Every
// operation is safe to apply twice: documents with a provider id are upserted
// by that id.
type LocalStoreProcessor struct {
	store        internal.Store
	maxInstances int
	logger       *slog.Logger
}

var _ RecurringEventProcessor = (*LocalStoreProcessor)(nil)

func New(store internal.Store, maxInstances int, logger *slog.Logger) *LocalStoreProcessor {
	if maxInstances <= 0 {
		maxInstances = recurrence.DefaultMaxInstances
	}
	if logger == nil {
		logger = internal.DiscardLogger()
	}
	return &LocalStoreProcessor{
		store:        store,
		maxInstances: maxInstances,
		logger:       logger,
	}
}

// with returns a processor bound to store, used inside transactions.
func (p *LocalStoreProcessor) with(store internal.Store) *LocalStoreProcessor {
	return &LocalStoreProcessor{store: store, maxInstances: p.maxInstances, logger: p.logger}
}

// Process applies a summary and returns the change log of what it did.
func (p *LocalStoreProcessor) Process(ctx context.Context, s *internal.SeriesChangeSummary) ([]internal.Change, error) {
	if s == nil {
		return nil, internal.E(internal.ErrValidation, "process", "nil summary", nil)
	}
	var changes []internal.Change
	err := p.store.InTx(ctx, func(tx internal.Store) error {
		var err error
		changes, err = p.with(tx).process(ctx, s)
		return err
	})
	if err != nil {
		return nil, err
	}
	for _, c := range changes {
		p.logger.Debug("change applied", slog.String("action", s.Action.String()), slog.String("change", c.String()))
	}
	return changes, nil
}

func (p *LocalStoreProcessor) process(ctx context.Context, s *internal.SeriesChangeSummary) ([]internal.Change, error) {
	missing := func(what string) error {
		return internal.E(internal.ErrValidation, "process", fmt.Sprintf("%s without %s", s.Action, what), nil)
	}

	switch s.Action {
	case internal.ActionCreateSeries:
		if s.BaseEvent == nil {
			return nil, missing("base event")
		}
		before, err := p.existing(ctx, s.BaseEvent)
		if err != nil {
			return nil, err
		}
		if _, err := p.CreateSeries(ctx, s.BaseEvent); err != nil {
			return nil, err
		}
		if before == nil {
			return []internal.Change{change(internal.CategoryNone, internal.CategoryRecurrenceBase, internal.ChangeCreated, s.BaseEvent)}, nil
		}
		return []internal.Change{change(category(before), internal.CategoryRecurrenceBase, internal.ChangeUpdated, s.BaseEvent)}, nil

	case internal.ActionUpdateSeries:
		if s.BaseEvent == nil {
			return nil, missing("base event")
		}
		if s.NewBaseEvent == nil {
			return nil, internal.E(internal.ErrMapping, "process", "UPDATE_SERIES without newBaseEvent", nil)
		}
		if s.IsSplit() {
			newBase, err := p.SplitSeriesAt(ctx, s.BaseEvent, s.NewBaseEvent, s.DeleteFrom)
			if err != nil {
				return nil, err
			}
			oldBase, err := p.store.EventByID(ctx, s.BaseEvent.UserID, s.BaseEvent.ID)
			if err != nil {
				return nil, internal.StoreErr("process", err)
			}
			return []internal.Change{
				change(internal.CategoryRecurrenceBase, internal.CategoryRecurrenceBase, internal.ChangeUpdated, oldBase),
				change(internal.CategoryNone, internal.CategoryRecurrenceBase, internal.ChangeCreated, newBase),
			}, nil
		}
		if err := p.UpdateEntireSeries(ctx, s.BaseEvent, s.NewBaseEvent); err != nil {
			return nil, err
		}
		return []internal.Change{change(internal.CategoryRecurrenceBase, internal.CategoryRecurrenceBase, internal.ChangeUpdated, s.NewBaseEvent)}, nil

	case internal.ActionUpdateInstance:
		if s.ModifiedInstance == nil {
			return nil, missing("modified instance")
		}
		before, err := p.existing(ctx, s.ModifiedInstance)
		if err != nil {
			return nil, err
		}
		if err := p.updateInstance(ctx, s.ModifiedInstance, s.OriginalStart); err != nil {
			if errors.Is(err, errFirstOccurrence) {
				return p.updateFirstOccurrence(ctx, s.ModifiedInstance)
			}
			return nil, err
		}
		if before == nil {
			return []internal.Change{change(internal.CategoryNone, internal.CategoryRecurrenceInstance, internal.ChangeCreated, s.ModifiedInstance)}, nil
		}
		return []internal.Change{change(category(before), internal.CategoryRecurrenceInstance, internal.ChangeUpdated, s.ModifiedInstance)}, nil

	case internal.ActionDeleteInstances:
		if s.ModifiedInstance != nil && s.DeleteFrom.IsZero() {
			if s.BaseEvent != nil {
				first, err := p.firstOccurrence(ctx, s.BaseEvent, s.ModifiedInstance, s.OriginalStart)
				if err != nil {
					return nil, err
				}
				if first {
					return p.cancelFirstOccurrence(ctx, s.BaseEvent)
				}
			}
			if err := p.DeleteSingleInstance(ctx, s.ModifiedInstance); err != nil {
				return nil, err
			}
			return []internal.Change{change(internal.CategoryRecurrenceInstance, internal.CategoryRecurrenceInstance, internal.ChangeCancelled, s.ModifiedInstance)}, nil
		}
		if s.BaseEvent == nil || s.DeleteFrom.IsZero() {
			return nil, missing("base event and deleteFrom")
		}
		if s.BaseEvent.Recurrence != nil && len(s.BaseEvent.Recurrence.Rule) > 0 {
			if err := p.store.SetRecurrenceRule(ctx, s.BaseEvent.UserID, s.BaseEvent.ID, s.BaseEvent.Recurrence.Rule); err != nil {
				return nil, err
			}
		}
		if _, err := p.DeleteInstancesFromDate(ctx, s.BaseEvent, s.DeleteFrom); err != nil {
			return nil, err
		}
		return []internal.Change{change(internal.CategoryRecurrenceBase, internal.CategoryRecurrenceBase, internal.ChangeUpdated, s.BaseEvent)}, nil

	case internal.ActionDeleteSeries:
		if s.BaseEvent == nil {
			return nil, missing("base event")
		}
		if _, err := p.DeleteSeries(ctx, s.BaseEvent); err != nil {
			return nil, err
		}
		return []internal.Change{change(internal.CategoryRecurrenceBase, internal.CategoryRecurrenceBase, internal.ChangeDeleted, s.BaseEvent)}, nil

	case internal.ActionUpsertEvent:
		if s.Event == nil {
			return nil, missing("event")
		}
		before, err := p.existing(ctx, s.Event)
		if err != nil {
			return nil, err
		}
		if err := p.UpsertEvent(ctx, s.Event); err != nil {
			return nil, err
		}
		if before == nil {
			return []internal.Change{change(internal.CategoryNone, internal.CategoryStandalone, internal.ChangeCreated, s.Event)}, nil
		}
		return []internal.Change{change(category(before), internal.CategoryStandalone, internal.ChangeUpdated, s.Event)}, nil

	case internal.ActionDeleteEvent:
		if s.Event == nil {
			return nil, missing("event")
		}
		if err := p.DeleteEvent(ctx, s.Event); err != nil {
			return nil, err
		}
		return []internal.Change{change(category(s.Event), category(s.Event), internal.ChangeDeleted, s.Event)}, nil
	}
	return nil, internal.E(internal.ErrValidation, "process", fmt.Sprintf("unknown action %q", s.Action), nil)
}

// CreateSeries stores base and its expanded instances and returns the id the
// base is stored under.
func (p *LocalStoreProcessor) CreateSeries(ctx context.Context, base *internal.Event) (string, error) {
	const op = "create series"

	instances, err := recurrence.Expand(base, p.maxInstances)
	if err != nil {
		return "", err
	}
	err = p.store.InTx(ctx, func(tx internal.Store) error {
		if err := tx.UpsertEvents(ctx, base); err != nil {
			if errors.Is(err, internal.ErrNotFound) {
				return internal.E(internal.ErrDeveloper, op, "store returned no id for the inserted base", err)
			}
			return err
		}
		if base.ID == "" {
			return internal.E(internal.ErrDeveloper, op, "store returned no id for the inserted base", nil)
		}
		if base.GEventID == "" {
			// nothing to upsert local instances by
			if _, err := tx.DeleteInstancesFrom(ctx, base.UserID, base.ID, time.Time{}); err != nil {
				return err
			}
		}
		for _, inst := range instances {
			inst.Recurrence.EventID = base.ID
		}
		return tx.UpsertEvents(ctx, instances...)
	})
	if err != nil {
		return "", err
	}
	return base.ID, nil
}

// UpdateEntireSeries applies the shared fields of newBase to the whole series.
// A new rule, start or duration regenerates the instances.
func (p *LocalStoreProcessor) UpdateEntireSeries(ctx context.Context, oldBase, newBase *internal.Event) error {
	const op = "update series"

	return p.store.InTx(ctx, func(tx internal.Store) error {
		n, err := tx.UpdateSeriesFields(ctx, oldBase.UserID, oldBase.ID, internal.FieldsOf(newBase))
		if err != nil {
			return err
		}
		if n == 0 {
			return internal.E(internal.ErrNotFound, op, oldBase.ID, nil)
		}
		if !reshaped(oldBase, newBase) {
			return nil
		}

		updated := oldBase.Clone()
		updated.StartDate = newBase.StartDate
		updated.EndDate = newBase.EndDate
		updated.IsAllDay = newBase.IsAllDay
		applyFields(updated, internal.FieldsOf(newBase))
		if newBase.Recurrence != nil && len(newBase.Recurrence.Rule) > 0 {
			updated.Recurrence = &internal.Recurrence{Rule: append([]string(nil), newBase.Recurrence.Rule...)}
		}
		instances, err := recurrence.Expand(updated, p.maxInstances)
		if err != nil {
			return err
		}
		if err := tx.UpdateEvent(ctx, updated); err != nil {
			return err
		}
		if _, err := tx.DeleteInstancesFrom(ctx, updated.UserID, updated.ID, time.Time{}); err != nil {
			return err
		}
		return tx.UpsertEvents(ctx, instances...)
	})
}

// UpdateSeriesWithSplit ends oldBase right before splitInstance and starts a
// new series from it with the original cadence. It returns the new base.
func (p *LocalStoreProcessor) UpdateSeriesWithSplit(ctx context.Context, oldBase, splitInstance *internal.Event) (*internal.Event, error) {
	return p.SplitSeriesAt(ctx, oldBase, splitInstance, splitInstance.StartDate)
}

// SplitSeriesAt ends oldBase right before the occurrence scheduled at at and
// starts the series of newBase from there. The new series may start at
// another time of day: the instances that move over are shifted to the new
// time and duration, those the new rule does not produce are dropped, and
// the ones it produces that are missing are added. No instance is left
// outside the rule of its base. It returns the stored new base.
func (p *LocalStoreProcessor) SplitSeriesAt(ctx context.Context, oldBase, newBase *internal.Event, at time.Time) (*internal.Event, error) {
	const op = "split series"

	if oldBase.Recurrence == nil || len(oldBase.Recurrence.Rule) == 0 {
		return nil, internal.E(internal.ErrInvalidRecurrence, op, fmt.Sprintf("event %s has no recurrence rule", oldBase.ID), nil)
	}
	if at.IsZero() {
		at = newBase.StartDate
	}
	if !at.After(oldBase.StartDate) {
		return nil, internal.E(internal.ErrValidation, op, "the split must follow the first occurrence", nil)
	}
	truncated, err := recurrence.Truncate(oldBase.Recurrence.Rule, oldBase.StartDate, at)
	if err != nil {
		return nil, err
	}
	splitInstance := newBase
	newBase, err = p.newSeries(oldBase, newBase, at)
	if err != nil {
		return nil, err
	}
	starts, err := recurrence.Occurrences(newBase, p.maxInstances)
	if err != nil {
		return nil, err
	}
	scheduled := make(map[int64]bool, len(starts))
	for _, t := range starts {
		scheduled[t.Unix()] = true
	}

	err = p.store.InTx(ctx, func(tx internal.Store) error {
		if err := tx.SetRecurrenceRule(ctx, oldBase.UserID, oldBase.ID, truncated); err != nil {
			return err
		}
		if err := tx.UpsertEvents(ctx, newBase); err != nil {
			if errors.Is(err, internal.ErrNotFound) {
				return internal.E(internal.ErrDeveloper, op, "store returned no id for the new base", err)
			}
			return err
		}

		moved, err := tx.Instances(ctx, oldBase.UserID, oldBase.ID, at)
		if err != nil {
			return err
		}
		kept := make(map[int64]bool, len(moved))
		for _, inst := range moved {
			start := shift(inst.StartDate, at, newBase.StartDate, oldBase.StartDate.Location())
			if inst.ID == splitInstance.ID || !scheduled[start.Unix()] || kept[start.Unix()] {
				// the new base is this occurrence, or the new rule has no room for it
				if _, err := tx.DeleteEvent(ctx, inst.UserID, inst.ID); err != nil {
					return err
				}
				continue
			}
			shifted := recurrence.NewInstance(newBase, start)
			shifted.ID = inst.ID
			if err := tx.UpdateEvent(ctx, shifted); err != nil {
				return err
			}
			kept[start.Unix()] = true
		}

		var missing []*internal.Event
		for _, t := range starts {
			if !kept[t.Unix()] {
				missing = append(missing, recurrence.NewInstance(newBase, t))
			}
		}
		return tx.UpsertEvents(ctx, missing...)
	})
	if err != nil {
		return nil, err
	}
	p.logger.Debug("series split",
		slog.String("base", oldBase.ID),
		slog.String("new_base", newBase.ID),
		slog.Time("split", at),
	)
	return newBase, nil
}

// newSeries prepares the base of the series split from oldBase at at.
func (p *LocalStoreProcessor) newSeries(oldBase, splitInstance *internal.Event, at time.Time) (*internal.Event, error) {
	newBase := splitInstance.Clone()
	if newBase.Recurrence == nil || len(newBase.Recurrence.Rule) == 0 {
		rules, err := recurrence.Remainder(oldBase.Recurrence.Rule, oldBase.StartDate, at)
		if err != nil {
			return nil, err
		}
		if newBase.Recurrence != nil && newBase.Recurrence.EventID != "" {
			// an edited instance: its provider id belongs to the old series
			newBase.ID = ""
			newBase.GEventID = ""
		}
		newBase.Recurrence = &internal.Recurrence{Rule: rules}
	}
	if newBase.ID == "" || newBase.ID == oldBase.ID {
		newBase.ID = uuid.NewString()
	}
	newBase.GRecurringEventID = ""
	if newBase.UserID == "" {
		newBase.UserID = oldBase.UserID
	}
	if newBase.CalendarID == "" {
		newBase.CalendarID = oldBase.CalendarID
	}
	if newBase.Origin == "" {
		newBase.Origin = oldBase.Origin
	}
	if newBase.Priority == "" {
		newBase.Priority = oldBase.Priority
	}
	// the new rule is checked before anything is written
	if _, err := recurrence.Occurrences(newBase, 1); err != nil {
		return nil, err
	}
	return newBase, nil
}

// shift moves start, scheduled at or after the split at, to the same day
// offset from the start of the new series. Days are counted in loc.
func shift(start, at, newStart time.Time, loc *time.Location) time.Time {
	return newStart.AddDate(0, 0, civilDays(at.In(loc), start.In(loc)))
}

func civilDays(from, to time.Time) int {
	a := time.Date(from.Year(), from.Month(), from.Day(), 12, 0, 0, 0, time.UTC)
	b := time.Date(to.Year(), to.Month(), to.Day(), 12, 0, 0, 0, time.UTC)
	return int(b.Sub(a).Hours() / 24)
}

var errFirstOccurrence = errors.New("instance is the first occurrence of its series")

// UpdateInstance stores a single instance. The instance of the base's own
// start is the base itself and is not stored twice.
func (p *LocalStoreProcessor) UpdateInstance(ctx context.Context, instance *internal.Event) error {
	return p.updateInstance(ctx, instance, time.Time{})
}

func (p *LocalStoreProcessor) updateInstance(ctx context.Context, instance *internal.Event, originalStart time.Time) error {
	const op = "update instance"

	shape, err := internal.Classify(instance)
	if err != nil {
		return err
	}
	inst, ok := shape.(internal.RecurrenceInstance)
	if !ok {
		return internal.E(internal.ErrValidation, op, fmt.Sprintf("event %s is a %s", instance.ID, shape.Category()), nil)
	}
	base, err := p.store.EventByID(ctx, instance.UserID, inst.BaseID())
	if err != nil {
		if errors.Is(err, internal.ErrNotFound) {
			return internal.E(internal.ErrValidation, op, fmt.Sprintf("instance %s references unknown base %s", instance.ID, inst.BaseID()), nil)
		}
		return err
	}
	first, err := p.firstOccurrence(ctx, base, instance, originalStart)
	if err != nil {
		return err
	}
	if first {
		p.logger.Debug("instance is the base's first occurrence", slog.String("base", base.ID), slog.String("instance", instance.GEventID))
		return errFirstOccurrence
	}
	return p.save(ctx, instance)
}

// DeleteSeries deletes base and every instance of it. Deleting fewer documents
// than the series holds is reported.
func (p *LocalStoreProcessor) DeleteSeries(ctx context.Context, base *internal.Event) (int64, error) {
	const op = "delete series"

	var deleted int64
	err := p.store.InTx(ctx, func(tx internal.Store) error {
		expected, err := tx.CountSeries(ctx, base.UserID, base.ID)
		if err != nil {
			return err
		}
		deleted, err = tx.DeleteSeries(ctx, base.UserID, base.ID)
		if err != nil {
			return err
		}
		if deleted < expected {
			return internal.E(internal.ErrStore, op, fmt.Sprintf("deleted %d of %d documents", deleted, expected), nil)
		}
		return nil
	})
	return deleted, err
}

// DeleteInstancesFromDate deletes the instances of base starting at or after
// from. The base and earlier instances stay.
func (p *LocalStoreProcessor) DeleteInstancesFromDate(ctx context.Context, base *internal.Event, from time.Time) (int64, error) {
	if from.IsZero() {
		return 0, internal.E(internal.ErrValidation, "delete instances", "no date to delete from", nil)
	}
	return p.store.DeleteInstancesFrom(ctx, base.UserID, base.ID, from)
}

func (p *LocalStoreProcessor) DeleteSingleInstance(ctx context.Context, instance *internal.Event) error {
	n, err := p.store.DeleteEvent(ctx, instance.UserID, instance.ID)
	if err != nil {
		return err
	}
	if n == 0 {
		p.logger.Debug("instance already deleted", slog.String("instance", instance.ID))
	}
	return nil
}

// UpsertEvent stores a standalone event. An event that used to be a series
// loses its instances.
func (p *LocalStoreProcessor) UpsertEvent(ctx context.Context, e *internal.Event) error {
	e.Recurrence = nil
	return p.store.InTx(ctx, func(tx internal.Store) error {
		if err := p.with(tx).save(ctx, e); err != nil {
			return err
		}
		_, err := tx.DeleteInstancesFrom(ctx, e.UserID, e.ID, time.Time{})
		return err
	})
}

// DeleteEvent deletes a standalone event, or a whole series when e is a base.
func (p *LocalStoreProcessor) DeleteEvent(ctx context.Context, e *internal.Event) error {
	shape, err := internal.Classify(e)
	if err != nil {
		return err
	}
	switch s := shape.(type) {
	case internal.RecurrenceBase:
		_, err = p.DeleteSeries(ctx, s.E)
	case internal.RecurrenceInstance:
		err = p.DeleteSingleInstance(ctx, s.E)
	default:
		_, err = p.store.DeleteEvent(ctx, e.UserID, e.ID)
	}
	return err
}

// save updates the document with e's id, inserting it when there is none.
func (p *LocalStoreProcessor) save(ctx context.Context, e *internal.Event) error {
	err := p.store.UpdateEvent(ctx, e)
	if errors.Is(err, internal.ErrNotFound) {
		return p.store.UpsertEvents(ctx, e)
	}
	return err
}

// existing returns the stored copy of e, or nil when there is none.
func (p *LocalStoreProcessor) existing(ctx context.Context, e *internal.Event) (*internal.Event, error) {
	if e.ID == "" {
		return nil, nil
	}
	found, err := p.store.EventByID(ctx, e.UserID, e.ID)
	if errors.Is(err, internal.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, internal.StoreErr("process", err)
	}
	return found, nil
}

// firstOccurrence reports whether instance stands for the occurrence the base
// itself holds. It is the one scheduled at the base's start, or, once the base
// was moved within its day, the unstored occurrence of that day scheduled
// before every stored instance.
func (p *LocalStoreProcessor) firstOccurrence(ctx context.Context, base, instance *internal.Event, originalStart time.Time) (bool, error) {
	if base.GEventID != "" && instance.GEventID == recurrence.InstanceGEventID(base.GEventID, base.StartDate, base.IsAllDay) {
		return true, nil
	}
	scheduled := originalStart
	if scheduled.IsZero() {
		scheduled = instance.StartDate
	}
	if scheduled.Equal(base.StartDate) {
		return true, nil
	}
	if civilDays(base.StartDate, scheduled.In(base.StartDate.Location())) != 0 {
		return false, nil
	}
	stored, err := p.existing(ctx, instance)
	if err != nil || stored != nil {
		return false, err
	}
	instances, err := p.store.Instances(ctx, base.UserID, base.ID, time.Time{})
	if err != nil {
		return false, err
	}
	return len(instances) == 0 || scheduled.Before(instances[0].StartDate), nil
}

// updateFirstOccurrence applies an edit of the first occurrence to the base.
// The instances keep their times.
func (p *LocalStoreProcessor) updateFirstOccurrence(ctx context.Context, instance *internal.Event) ([]internal.Change, error) {
	base, err := p.store.EventByID(ctx, instance.UserID, instance.Recurrence.EventID)
	if err != nil {
		return nil, internal.StoreErr("update first occurrence", err)
	}
	if sameOccurrence(base, instance) {
		return []internal.Change{change(internal.CategoryRecurrenceBase, internal.CategoryRecurrenceBase, internal.ChangeConfirmed, base)}, nil
	}
	updated := base.Clone()
	updated.Title = instance.Title
	updated.Description = instance.Description
	updated.StartDate = instance.StartDate
	updated.EndDate = instance.EndDate
	updated.IsAllDay = instance.IsAllDay
	if err := p.store.UpdateEvent(ctx, updated); err != nil {
		return nil, err
	}
	return []internal.Change{change(internal.CategoryRecurrenceBase, internal.CategoryRecurrenceBase, internal.ChangeUpdated, updated)}, nil
}

// cancelFirstOccurrence moves the base to the next occurrence of its series,
// which stops being an instance. A base with no instance left is deleted.
func (p *LocalStoreProcessor) cancelFirstOccurrence(ctx context.Context, base *internal.Event) ([]internal.Change, error) {
	const op = "cancel first occurrence"

	base, err := p.store.EventByID(ctx, base.UserID, base.ID)
	if err != nil {
		return nil, internal.StoreErr(op, err)
	}
	instances, err := p.store.Instances(ctx, base.UserID, base.ID, time.Time{})
	if err != nil {
		return nil, err
	}
	if len(instances) == 0 {
		if _, err := p.DeleteSeries(ctx, base); err != nil {
			return nil, err
		}
		return []internal.Change{change(internal.CategoryRecurrenceBase, internal.CategoryRecurrenceBase, internal.ChangeDeleted, base)}, nil
	}

	next := instances[0]
	rules, err := recurrence.Remainder(base.Recurrence.Rule, base.StartDate, next.StartDate)
	if err != nil {
		return nil, err
	}
	updated := base.Clone()
	updated.StartDate = next.StartDate
	updated.EndDate = next.EndDate
	updated.Recurrence = &internal.Recurrence{Rule: rules}
	if err := p.store.UpdateEvent(ctx, updated); err != nil {
		return nil, err
	}
	if _, err := p.store.DeleteEvent(ctx, next.UserID, next.ID); err != nil {
		return nil, err
	}
	p.logger.Debug("first occurrence cancelled", slog.String("base", base.ID), slog.Time("start", updated.StartDate))
	return []internal.Change{change(internal.CategoryRecurrenceBase, internal.CategoryRecurrenceBase, internal.ChangeUpdated, updated)}, nil
}

func sameOccurrence(base, instance *internal.Event) bool {
	return base.StartDate.Equal(instance.StartDate) &&
		base.EndDate.Equal(instance.EndDate) &&
		base.IsAllDay == instance.IsAllDay &&
		base.Title == instance.Title &&
		base.Description == instance.Description
}

// reshaped reports whether newBase changes when the series occurs.
func reshaped(oldBase, newBase *internal.Event) bool {
	if !oldBase.StartDate.Equal(newBase.StartDate) || oldBase.Duration() != newBase.Duration() {
		return true
	}
	if oldBase.IsAllDay != newBase.IsAllDay {
		return true
	}
	if newBase.Recurrence == nil || len(newBase.Recurrence.Rule) == 0 {
		return false
	}
	if oldBase.Recurrence == nil || len(oldBase.Recurrence.Rule) != len(newBase.Recurrence.Rule) {
		return true
	}
	for i, r := range newBase.Recurrence.Rule {
		if oldBase.Recurrence.Rule[i] != r {
			return true
		}
	}
	return false
}

func applyFields(e *internal.Event, f internal.SeriesFields) {
	e.Title = f.Title
	e.Description = f.Description
	e.Priority = f.Priority
	e.IsSomeday = f.IsSomeday
}

func category(e *internal.Event) internal.Category {
	c, err := internal.Categorize(e)
	if err != nil {
		return internal.CategoryNone
	}
	return c
}

func change(from, to internal.Category, status internal.ChangeStatus, e *internal.Event) internal.Change {
	return internal.Change{Transition: internal.NewTransition(from, to, status), Event: e}
}
