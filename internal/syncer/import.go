package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/guilherme-santos/compasssync/internal"
)

// Start imports every calendar of a user. It only proceeds from the idle,
// errored and restart statuses; any other status is rejected with a reason
// and nothing is changed. A zero from imports the default window.
//
// Progress is checkpointed after every page, so a failed or interrupted run
// resumes from its last page once restarted. An import left in progress by a
// process that died is taken over once its heartbeat is older than
// StaleAfter.
func (s *Syncer) Start(ctx context.Context, userID string, from internal.Date) (*Result, error) {
	user, err := s.begin(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.run(ctx, user, from)
}

// StartAsync claims the import like Start and runs it in the background. The
// outcome is only visible through Status. Shutdown interrupts it.
func (s *Syncer) StartAsync(ctx context.Context, userID string, from internal.Date) error {
	user, err := s.begin(ctx, userID)
	if err != nil {
		return err
	}
	s.runs.Add(1)
	go func() {
		defer s.runs.Done()
		ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		defer cancel()
		defer context.AfterFunc(s.base, cancel)()
		s.run(ctx, user, from)
	}()
	return nil
}

// errTakenOver stops a run whose import was reclaimed by another one.
var errTakenOver = errors.New("import is no longer owned by this run")

func (s *Syncer) begin(ctx context.Context, userID string) (*internal.User, error) {
	ok, err := s.store.TransitionImportStatus(ctx, userID, internal.CanStart, internal.ImportImporting, "")
	if err != nil {
		return nil, err
	}
	user, err := s.store.User(ctx, userID)
	if err != nil {
		return nil, err
	}
	if ok {
		return user, nil
	}
	if user.ImportStatus == internal.ImportImporting {
		reclaimed, err := s.reclaim(ctx, userID, internal.ImportImporting)
		if err != nil {
			return nil, err
		}
		if reclaimed {
			return s.store.User(ctx, userID)
		}
	}
	return nil, internal.E(internal.ErrAlreadyInProgress, "start import", rejection(user.ImportStatus), nil)
}

// reclaim takes over an import whose heartbeat is older than StaleAfter.
func (s *Syncer) reclaim(ctx context.Context, userID string, to internal.ImportStatus) (bool, error) {
	ok, err := s.store.ReclaimStaleImport(ctx, userID, s.now().Add(-s.StaleAfter), to, "stale import reclaimed")
	if err != nil || !ok {
		return false, err
	}
	s.logger.Warn("Stale import reclaimed", internal.UserAttr(userID), slog.Duration("stale_after", s.StaleAfter))
	return true, nil
}

func (s *Syncer) run(ctx context.Context, user *internal.User, from internal.Date) (*Result, error) {
	logger := s.logger.With(internal.UserAttr(user.ID))
	logger.Info("Import started")

	res, err := s.importAll(ctx, user, from)
	if errors.Is(err, errTakenOver) {
		logger.Warn("Import taken over by another run", slog.Int("processed", res.Processed))
		return res, err
	}
	if err != nil {
		cause := internal.Reason(err)
		if errors.Is(err, context.Canceled) {
			cause = "import interrupted"
		}
		reason := fmt.Sprintf("%s (%d events processed)", cause, res.Processed)
		if serr := s.store.SetImportStatus(context.WithoutCancel(ctx), user.ID, internal.ImportErrored, reason); serr != nil {
			logger.Error("Unable to save import status", slog.Any("error", serr))
		}
		logger.Error("Import failed", slog.String("reason", reason))
		return res, err
	}

	if err := s.store.SetImportStatus(ctx, user.ID, internal.ImportCompleted, res.String()); err != nil {
		return res, err
	}
	s.notifier.EventsChanged(user.ID)
	logger.Info("Import completed", slog.String("result", res.String()))
	return res, nil
}

func rejection(status internal.ImportStatus) string {
	switch status {
	case internal.ImportImporting:
		return "import already in progress"
	case internal.ImportCompleted:
		return "import already completed; restart to re-import"
	}
	return fmt.Sprintf("import cannot start from status %s", status)
}

// Restart allows a new import. A full restart also drops the stored tokens so
// every calendar is imported again from the start of the window; otherwise
// completed calendars are skipped and an interrupted one resumes.
func (s *Syncer) Restart(ctx context.Context, userID string, full bool) error {
	const op = "restart import"

	ok, err := s.store.TransitionImportStatus(ctx, userID, internal.CanRestart, internal.ImportRestart, "restart requested")
	if err != nil {
		return err
	}
	if !ok {
		user, err := s.store.User(ctx, userID)
		if err != nil {
			return err
		}
		switch user.ImportStatus {
		case internal.ImportRestart:
		case internal.ImportImporting:
			reclaimed, err := s.reclaim(ctx, userID, internal.ImportRestart)
			if err != nil {
				return err
			}
			if !reclaimed {
				return internal.E(internal.ErrAlreadyInProgress, op, rejection(user.ImportStatus), nil)
			}
		default:
			return internal.E(internal.ErrAlreadyInProgress, op, rejection(user.ImportStatus), nil)
		}
	}
	if full {
		if err := s.store.ResetSyncTokens(ctx, userID); err != nil {
			return err
		}
	}
	s.logger.Info("Import restarted", internal.UserAttr(userID), slog.Bool("full", full))
	return nil
}

func (s *Syncer) importAll(ctx context.Context, user *internal.User, from internal.Date) (*Result, error) {
	res := &Result{}
	provider, err := s.provider(user)
	if err != nil {
		return res, err
	}
	calIDs, err := provider.CalendarIDs(ctx, user)
	if err != nil {
		return res, internal.ProviderErr("calendar list", err)
	}
	for _, calID := range calIDs {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Calendars++
		if err := s.importCalendar(ctx, provider, user, calID, from, res); err != nil {
			return res, err
		}
	}
	return res, nil
}

func (s *Syncer) importCalendar(ctx context.Context, provider internal.Provider, user *internal.User, calID string, from internal.Date, res *Result) error {
	logger := s.logger.With(internal.UserAttr(user.ID), internal.CalendarAttr(calID))
	key := internal.EventsCursor(user.ID, calID)

	if err := s.store.EnsureSyncCursor(ctx, key); err != nil {
		return err
	}
	cur, err := s.store.FindSyncCursor(ctx, key)
	if err != nil {
		return err
	}
	if cur.Completed() {
		logger.Debug("Calendar already imported")
		return nil
	}

	pending := cur.Pending
	opts := internal.ListOptions{PageToken: cur.NextPageToken}
	if opts.PageToken == "" {
		opts.TimeMin = from.Time
		if from.IsZero() {
			opts.TimeMin = internal.ImportWindowStart(s.now(), s.YearsBack)
		}
		logger.Info("Importing calendar", slog.Time("from", opts.TimeMin))
	} else {
		logger.Info("Resuming calendar import")
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		page, err := provider.ListEvents(ctx, user, calID, opts)
		if err != nil {
			return internal.ProviderErr("list events", err)
		}
		items := append(append([]*internal.ProviderEvent(nil), page.Items...), pending...)
		pageRes, deferred, err := s.applyPage(ctx, user, calID, internal.OriginGoogleImport, items, func(tx internal.Store, deferred []*internal.ProviderEvent) error {
			if err := tx.TouchImport(ctx, user.ID, s.now()); err != nil {
				if errors.Is(err, internal.ErrNotFound) {
					return errTakenOver
				}
				return err
			}
			if page.NextPageToken != "" {
				if err := tx.UpdatePageToken(ctx, key, page.NextPageToken); err != nil {
					return err
				}
				return tx.SavePending(ctx, key, deferred)
			}
			return tx.UpdateSyncToken(ctx, key, page.NextSyncToken, s.now().UTC())
		})
		if err != nil {
			return err
		}
		pending = deferred
		if page.NextPageToken == "" {
			s.dropDeferred(logger, pageRes, pending)
		}
		res.add(pageRes)
		logger.Debug("Page imported",
			slog.Int("page", res.Pages),
			slog.Int("processed", pageRes.Processed),
			slog.Int("skipped", pageRes.Skipped),
		)

		if page.NextPageToken == "" {
			return nil
		}
		opts = internal.ListOptions{PageToken: page.NextPageToken}
	}
}
