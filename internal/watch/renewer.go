package watch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/guilherme-santos/compasssync/internal"
)

const renewTimeout = 5 * time.Minute

// Renewer runs RenewExpiring on a cron schedule.
type Renewer struct {
	logger  *slog.Logger
	manager *Manager
	window  time.Duration
	cron    *cron.Cron
}

func NewRenewer(logger *slog.Logger, m *Manager, schedule string, window time.Duration) (*Renewer, error) {
	if logger == nil {
		logger = internal.DiscardLogger()
	}
	clog := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelDebug))
	r := &Renewer{
		logger:  logger,
		manager: m,
		window:  window,
		cron:    cron.New(cron.WithLogger(clog), cron.WithChain(cron.SkipIfStillRunning(clog))),
	}
	if _, err := r.cron.AddFunc(schedule, r.run); err != nil {
		return nil, internal.E(internal.ErrValidation, "watch renewer", fmt.Sprintf("invalid schedule %q", schedule), err)
	}
	return r, nil
}

func (r *Renewer) Start() {
	r.cron.Start()
	r.logger.Info("Watch renewer started", slog.Duration("window", r.window))
}

// Stop waits for a running renewal until ctx is done.
func (r *Renewer) Stop(ctx context.Context) {
	select {
	case <-r.cron.Stop().Done():
	case <-ctx.Done():
	}
}

func (r *Renewer) run() {
	ctx, cancel := context.WithTimeout(context.Background(), renewTimeout)
	defer cancel()

	n, err := r.manager.RenewExpiring(ctx, r.window)
	if err != nil {
		r.logger.Error("Watch renewal failed", slog.Int("renewed", n), slog.Any("error", err))
		return
	}
	if n > 0 {
		r.logger.Info("Watches renewed", slog.Int("renewed", n))
	}
}
