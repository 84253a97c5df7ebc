// Package watch manages the provider push channels that trigger incremental
// syncs. Channel state lives in the sync cursors only.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/guilherme-santos/compasssync/internal"
)

// DefaultTTL is how long a channel is requested for.
const DefaultTTL = 7 * 24 * time.Hour

type Manager struct {
	logger *slog.Logger
	mux    internal.Mux
	store  internal.Store
	now    func() time.Time

	// Address receives the notifications of every channel.
	Address string
	// Token is echoed back by the provider on every notification.
	Token string
	TTL   time.Duration
}

func New(logger *slog.Logger, providers internal.Mux, store internal.Store) *Manager {
	if logger == nil {
		logger = internal.DiscardLogger()
	}
	return &Manager{
		logger: logger,
		mux:    providers,
		store:  store,
		now:    time.Now,
		TTL:    DefaultTTL,
	}
}

// Start opens a channel on a calendar of the user. A calendar is watched by
// one live channel at most.
func (m *Manager) Start(ctx context.Context, userID, calID string) (*internal.WatchChannel, error) {
	const op = "start watch"

	if m.Address == "" {
		return nil, internal.E(internal.ErrValidation, op, "webhook address is not configured", nil)
	}
	user, err := m.store.User(ctx, userID)
	if err != nil {
		return nil, err
	}
	key := internal.EventsCursor(userID, calID)
	cur, err := m.store.FindSyncCursor(ctx, key)
	if err != nil && !errors.Is(err, internal.ErrNotFound) {
		return nil, err
	}
	now := m.now()
	if cur != nil && cur.IsWatching(now) {
		reason := fmt.Sprintf("calendar %s is watched by channel %s until %s", calID, cur.ChannelID, cur.Expiration.Format(time.RFC3339))
		return nil, internal.E(internal.ErrAlreadyWatching, op, reason, nil)
	}
	provider, err := m.provider(user)
	if err != nil {
		return nil, err
	}

	req := internal.WatchRequest{
		ChannelID:  uuid.NewString(),
		Address:    m.Address,
		Token:      m.Token,
		Expiration: now.Add(m.ttl()).UTC(),
	}
	ch, err := provider.Watch(ctx, user, calID, req)
	if err != nil {
		return nil, internal.ProviderErr(op, err)
	}
	if ch.ChannelID == "" {
		ch.ChannelID = req.ChannelID
	}
	if ch.Expiration.IsZero() {
		ch.Expiration = req.Expiration
	}

	logger := m.logger.With(internal.UserAttr(userID), internal.CalendarAttr(calID), slog.String("channel", ch.ChannelID))
	if err := m.store.UpdateWatch(ctx, key, *ch); err != nil {
		// nobody would ever stop a channel we can't remember
		if serr := provider.StopChannel(context.WithoutCancel(ctx), user, ch.ChannelID, ch.ResourceID); serr != nil {
			logger.Warn("Unable to stop unsaved channel", slog.Any("error", serr))
		}
		return nil, err
	}
	logger.Info("Watch started", slog.Time("expiration", ch.Expiration))
	return ch, nil
}

// Stop closes a channel and forgets it. A channel the provider no longer
// knows is forgotten as well.
func (m *Manager) Stop(ctx context.Context, userID, channelID, resourceID string) error {
	const op = "stop watch"
	logger := m.logger.With(internal.UserAttr(userID), slog.String("channel", channelID))

	user, err := m.store.User(ctx, userID)
	if err != nil {
		return err
	}
	provider, err := m.provider(user)
	if err != nil {
		return err
	}
	err = provider.StopChannel(ctx, user, channelID, resourceID)
	switch {
	case errors.Is(err, internal.ErrChannelGone), errors.Is(err, internal.ErrNotFound):
		logger.Warn("Channel already gone", slog.String("reason", internal.Reason(err)))
	case err != nil:
		return internal.ProviderErr(op, err)
	}
	if err := m.store.ClearWatch(ctx, userID, channelID); err != nil {
		return err
	}
	logger.Info("Watch stopped")
	return nil
}

// StopAll stops every events channel of the user and returns how many were
// stopped.
func (m *Manager) StopAll(ctx context.Context, userID string) (int, error) {
	curs, err := m.store.SyncCursors(ctx, userID, internal.ResourceEvents)
	if err != nil {
		return 0, err
	}
	var stopped int
	for _, cur := range curs {
		if cur.ChannelID == "" || cur.ResourceID == "" {
			m.logger.Debug("No watch to stop", internal.UserAttr(userID), internal.CalendarAttr(cur.CalendarID))
			continue
		}
		if err := m.Stop(ctx, userID, cur.ChannelID, cur.ResourceID); err != nil {
			return stopped, err
		}
		stopped++
	}
	return stopped, nil
}

// RenewExpiring replaces every channel expiring within window with a new one.
// A failed renewal does not stop the others.
func (m *Manager) RenewExpiring(ctx context.Context, window time.Duration) (int, error) {
	curs, err := m.store.ListExpiringSoon(ctx, m.now().Add(window))
	if err != nil {
		return 0, err
	}

	var (
		renewed int
		errs    []error
	)
	for _, cur := range curs {
		if err := ctx.Err(); err != nil {
			return renewed, err
		}
		if cur.ResourceID != "" {
			err = m.Stop(ctx, cur.UserID, cur.ChannelID, cur.ResourceID)
		} else {
			err = m.store.ClearWatch(ctx, cur.UserID, cur.ChannelID)
		}
		if err == nil {
			_, err = m.Start(ctx, cur.UserID, cur.CalendarID)
		}
		if err != nil {
			m.logger.Error("Unable to renew watch",
				internal.UserAttr(cur.UserID),
				internal.CalendarAttr(cur.CalendarID),
				slog.Any("error", err),
			)
			errs = append(errs, err)
			continue
		}
		renewed++
	}
	return renewed, errors.Join(errs...)
}

func (m *Manager) ttl() time.Duration {
	if m.TTL <= 0 {
		return DefaultTTL
	}
	return m.TTL
}

func (m *Manager) provider(user *internal.User) (internal.Provider, error) {
	provider, err := m.mux.Get(user.Platform)
	if err != nil {
		return nil, internal.E(internal.ErrProvider, "provider", user.Platform, err)
	}
	return provider, nil
}
