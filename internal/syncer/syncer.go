package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/guilherme-santos/compasssync/internal"
	"github.com/guilherme-santos/compasssync/internal/mapper"
	"github.com/guilherme-santos/compasssync/internal/processor"
)

// DefaultStaleAfter is how long an import may go without a heartbeat before
// it is considered dead.
const DefaultStaleAfter = 15 * time.Minute

// Syncer drives imports and incremental syncs of provider calendars into the
// local store. The import status of every user lives in the store, so many
// processes may share it; the only state kept here is the set of imports
// running in the background.
type Syncer struct {
	logger   *slog.Logger
	mux      internal.Mux
	store    internal.Store
	notifier internal.Notifier
	now      func() time.Time

	base context.Context
	stop context.CancelFunc
	runs sync.WaitGroup

	YearsBack    int
	MaxInstances int
	// StaleAfter is how long an import may go without a heartbeat before
	// another start or restart reclaims it.
	StaleAfter time.Duration
}

func New(logger *slog.Logger, providers internal.Mux, store internal.Store, notifier internal.Notifier) *Syncer {
	if logger == nil {
		logger = internal.DiscardLogger()
	}
	if notifier == nil {
		notifier = internal.NopNotifier{}
	}
	base, stop := context.WithCancel(context.Background())
	return &Syncer{
		logger:     logger,
		mux:        providers,
		store:      store,
		notifier:   notifier,
		now:        time.Now,
		base:       base,
		stop:       stop,
		YearsBack:  1,
		StaleAfter: DefaultStaleAfter,
	}
}

// Shutdown interrupts the imports running in the background and waits for
// them to record their status, or for ctx to be done.
func (s *Syncer) Shutdown(ctx context.Context) error {
	s.stop()
	done := make(chan struct{})
	go func() {
		s.runs.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Result counts what a run did.
type Result struct {
	Calendars int
	Pages     int
	Processed int
	Skipped   int
	// Deferred counts the instances held back until their series arrived.
	Deferred int
	Changes  []internal.Change
}

func (r *Result) add(o *Result) {
	r.Pages += o.Pages
	r.Processed += o.Processed
	r.Skipped += o.Skipped
	r.Deferred += o.Deferred
	r.Changes = append(r.Changes, o.Changes...)
}

func (r *Result) String() string {
	return fmt.Sprintf("%d calendar(s), %d page(s), %d event(s) processed, %d skipped", r.Calendars, r.Pages, r.Processed, r.Skipped)
}

// Status returns the import status of a user and the reason of its last change.
func (s *Syncer) Status(ctx context.Context, userID string) (internal.ImportStatus, string, error) {
	user, err := s.store.User(ctx, userID)
	if err != nil {
		return "", "", err
	}
	return user.ImportStatus, user.ImportReason, nil
}

func (s *Syncer) provider(user *internal.User) (internal.Provider, error) {
	provider, err := s.mux.Get(user.Platform)
	if err != nil {
		return nil, internal.E(internal.ErrProvider, "provider", user.Platform, err)
	}
	return provider, nil
}

// applyPage maps and applies the items of one provider page and runs
// checkpoint, all in one transaction. Every item is applied in a savepoint of
// its own: items that cannot be mapped are rolled back, skipped and counted,
// and instances of a series not stored yet are handed to checkpoint and
// returned so a later page may retry them. Any other failure discards the
// whole page.
func (s *Syncer) applyPage(ctx context.Context, user *internal.User, calID string, origin internal.Origin, items []*internal.ProviderEvent, checkpoint func(tx internal.Store, deferred []*internal.ProviderEvent) error) (*Result, []*internal.ProviderEvent, error) {
	logger := s.logger.With(internal.UserAttr(user.ID), internal.CalendarAttr(calID))

	var (
		res      *Result
		deferred []*internal.ProviderEvent
	)
	err := s.store.InTx(ctx, func(tx internal.Store) error {
		res = &Result{Pages: 1}
		deferred = nil

		payloads, err := mapper.New(tx, user.ID, calID, origin).Group(ctx, items)
		if err != nil {
			return err
		}
		for _, p := range payloads {
			var changes []internal.Change
			err := tx.InTx(ctx, func(ptx internal.Store) error {
				summary, err := mapper.New(ptx, user.ID, calID, origin).Map(ctx, p)
				if err != nil {
					return err
				}
				changes, err = processor.New(ptx, s.MaxInstances, logger).Process(ctx, summary)
				return err
			})
			switch {
			case errors.Is(err, mapper.ErrUnknownSeries):
				logger.Debug("Deferring provider event", slog.String("event", p.String()))
				deferred = append(deferred, p.Event)
				res.Deferred++
				continue
			case err != nil && skippable(err):
				logger.Warn("Skipping provider event", slog.String("event", p.String()), slog.String("reason", internal.Reason(err)))
				res.Skipped++
				continue
			case err != nil:
				return err
			}
			res.Changes = append(res.Changes, changes...)
			res.Processed++
		}
		if checkpoint == nil {
			return nil
		}
		return checkpoint(tx, deferred)
	})
	if err != nil {
		return nil, nil, err
	}
	return res, deferred, nil
}

// dropDeferred gives up on the instances of the last page whose series never
// arrived.
func (s *Syncer) dropDeferred(logger *slog.Logger, res *Result, deferred []*internal.ProviderEvent) {
	for _, pe := range deferred {
		logger.Warn("Skipping provider event", slog.String("event", pe.ID), slog.String("reason", "instance of unknown series"))
		res.Deferred--
		res.Skipped++
	}
}

func skippable(err error) bool {
	return errors.Is(err, internal.ErrMapping) || errors.Is(err, internal.ErrValidation)
}
