package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/guilherme-santos/compasssync/internal"
)

// ResourceStateSync is the state of the handshake notification the provider
// sends when a channel is created.
const ResourceStateSync = "sync"

const tokenExpiredReason = "sync token expired, restart required"

// Notification is a push notification received for a watch channel.
type Notification struct {
	ChannelID     string
	ResourceID    string
	ResourceState string
}

// HandleNotification runs an incremental sync of the calendar a channel
// watches. Handshakes and notifications for unknown channels are ignored.
func (s *Syncer) HandleNotification(ctx context.Context, n Notification) (*Result, error) {
	logger := s.logger.With(slog.String("channel", n.ChannelID))

	if n.ResourceState == ResourceStateSync {
		logger.Debug("Channel handshake received")
		return &Result{}, nil
	}
	cur, err := s.store.SyncCursorByChannel(ctx, n.ChannelID)
	if errors.Is(err, internal.ErrNotFound) {
		logger.Info("Notification for unknown channel ignored")
		return &Result{}, nil
	}
	if err != nil {
		return nil, err
	}
	if n.ResourceID != "" && cur.ResourceID != "" && n.ResourceID != cur.ResourceID {
		logger.Warn("Notification resource does not match the channel", slog.String("resource", n.ResourceID))
		return &Result{}, nil
	}
	return s.SyncCalendar(ctx, cur.UserID, cur.CalendarID)
}

// SyncCalendar fetches the changes of a calendar since its stored sync token.
// The token only moves once every page is applied, so a failed run fetches
// the same changes again.
func (s *Syncer) SyncCalendar(ctx context.Context, userID, calID string) (*Result, error) {
	const op = "sync calendar"
	logger := s.logger.With(internal.UserAttr(userID), internal.CalendarAttr(calID))

	user, err := s.store.User(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.ImportStatus == internal.ImportImporting {
		return nil, internal.E(internal.ErrAlreadyInProgress, op, "import in progress", nil)
	}
	key := internal.EventsCursor(userID, calID)
	cur, err := s.store.FindSyncCursor(ctx, key)
	if err != nil && !errors.Is(err, internal.ErrNotFound) {
		return nil, err
	}
	if cur == nil || cur.NextSyncToken == "" {
		return nil, internal.E(internal.ErrValidation, op, fmt.Sprintf("calendar %s was not imported yet", calID), nil)
	}
	provider, err := s.provider(user)
	if err != nil {
		return nil, err
	}

	res := &Result{Calendars: 1}
	opts := internal.ListOptions{SyncToken: cur.NextSyncToken}
	var pending []*internal.ProviderEvent
	for {
		page, err := provider.ListEvents(ctx, user, calID, opts)
		if errors.Is(err, internal.ErrSyncTokenExpired) {
			s.expireToken(ctx, logger, key, cur)
			return res, internal.E(internal.ErrSyncTokenExpired, op, tokenExpiredReason, err)
		}
		if err != nil {
			return res, internal.ProviderErr("list events", err)
		}

		var checkpoint func(internal.Store, []*internal.ProviderEvent) error
		if page.NextPageToken == "" {
			checkpoint = func(tx internal.Store, _ []*internal.ProviderEvent) error {
				return tx.UpdateSyncToken(ctx, key, page.NextSyncToken, s.now().UTC())
			}
		}
		items := append(append([]*internal.ProviderEvent(nil), page.Items...), pending...)
		pageRes, deferred, err := s.applyPage(ctx, user, calID, internal.OriginGoogle, items, checkpoint)
		if err != nil {
			return res, err
		}
		pending = deferred
		if page.NextPageToken == "" {
			s.dropDeferred(logger, pageRes, pending)
		}
		res.add(pageRes)

		if page.NextPageToken == "" {
			break
		}
		opts = internal.ListOptions{SyncToken: cur.NextSyncToken, PageToken: page.NextPageToken}
	}

	if res.Processed > 0 {
		s.notifier.EventsChanged(userID)
	}
	logger.Info("Calendar synced", slog.String("result", res.String()))
	return res, nil
}

func (s *Syncer) expireToken(ctx context.Context, logger *slog.Logger, key internal.CursorKey, cur *internal.SyncCursor) {
	ctx = context.WithoutCancel(ctx)
	logger.Warn("Sync token expired")

	if err := s.store.UpdateSyncToken(ctx, key, "", cur.LastSyncedAt); err != nil {
		logger.Error("Unable to clear sync token", slog.Any("error", err))
	}
	if err := s.store.SetImportStatus(ctx, key.UserID, internal.ImportErrored, tokenExpiredReason); err != nil {
		logger.Error("Unable to save import status", slog.Any("error", err))
	}
}
