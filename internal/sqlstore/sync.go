package sqlstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/guilherme-santos/compasssync/internal"
)

const syncCursorColumns = `user_id, resource, calendar_id, next_sync_token, next_page_token,
	last_synced_at, channel_id, resource_id, expiration, pending_events`

func (s *Storage) EnsureSyncCursor(ctx context.Context, key internal.CursorKey) error {
	_, err := s.exec(ctx, `
		INSERT INTO sync_cursors (user_id, resource, calendar_id)
		VALUES (?, ?, ?)
		ON CONFLICT (user_id, resource, calendar_id) DO NOTHING
	`, key.UserID, string(key.Resource), key.CalendarID)
	return internal.StoreErr("ensure sync cursor", err)
}

func (s *Storage) FindSyncCursor(ctx context.Context, key internal.CursorKey) (*internal.SyncCursor, error) {
	var row SyncCursor
	err := s.get(ctx, &row, `
		SELECT `+syncCursorColumns+` FROM sync_cursors
		WHERE user_id = ? AND resource = ? AND calendar_id = ?
	`, key.UserID, string(key.Resource), key.CalendarID)
	if err != nil {
		return nil, notFound("find sync cursor", err)
	}
	return row.Convert(), nil
}

func (s *Storage) SyncCursors(ctx context.Context, userID string, resource internal.Resource) ([]*internal.SyncCursor, error) {
	var rows []SyncCursor
	err := s.selectAll(ctx, &rows, `
		SELECT `+syncCursorColumns+` FROM sync_cursors
		WHERE user_id = ? AND resource = ?
		ORDER BY calendar_id
	`, userID, string(resource))
	if err != nil {
		return nil, internal.StoreErr("sync cursors", err)
	}
	return convertCursors(rows), nil
}

func (s *Storage) SyncCursorByChannel(ctx context.Context, channelID string) (*internal.SyncCursor, error) {
	if channelID == "" {
		return nil, internal.E(internal.ErrNotFound, "sync cursor by channel", "empty channel id", nil)
	}
	var row SyncCursor
	err := s.get(ctx, &row, `
		SELECT `+syncCursorColumns+` FROM sync_cursors
		WHERE channel_id = ?
	`, channelID)
	if err != nil {
		return nil, notFound("sync cursor by channel", err)
	}
	return row.Convert(), nil
}

func (s *Storage) UpdatePageToken(ctx context.Context, key internal.CursorKey, pageToken string) error {
	return s.updateCursor(ctx, "update page token", key, `next_page_token = ?`, pageToken)
}

// SavePending stores the provider events held back until the series they
// belong to is known. An empty list clears them.
func (s *Storage) SavePending(ctx context.Context, key internal.CursorKey, items []*internal.ProviderEvent) error {
	var pending string
	if len(items) > 0 {
		data, err := json.Marshal(items)
		if err != nil {
			return internal.E(internal.ErrValidation, "save pending events", "", err)
		}
		pending = string(data)
	}
	return s.updateCursor(ctx, "save pending events", key, `pending_events = ?`, pending)
}

// UpdateSyncToken records a finished sync: the sync token is stored and the
// page token and pending events cleared in the same statement.
func (s *Storage) UpdateSyncToken(ctx context.Context, key internal.CursorKey, syncToken string, syncedAt time.Time) error {
	return s.updateCursor(ctx, "update sync token", key,
		`next_sync_token = ?, next_page_token = '', pending_events = '', last_synced_at = ?`, syncToken, formatTime(syncedAt))
}

func (s *Storage) ResetSyncTokens(ctx context.Context, userID string) error {
	_, err := s.exec(ctx, `
		UPDATE sync_cursors SET next_sync_token = '', next_page_token = '', pending_events = ''
		WHERE user_id = ?
	`, userID)
	return internal.StoreErr("reset sync tokens", err)
}

func (s *Storage) UpdateWatch(ctx context.Context, key internal.CursorKey, ch internal.WatchChannel) error {
	if ch.ChannelID == "" || ch.Expiration.IsZero() {
		return internal.E(internal.ErrValidation, "update watch", "a channel needs an id and an expiration", nil)
	}
	if err := s.EnsureSyncCursor(ctx, key); err != nil {
		return err
	}
	return s.updateCursor(ctx, "update watch", key,
		`channel_id = ?, resource_id = ?, expiration = ?`, ch.ChannelID, ch.ResourceID, ch.Expiration.UnixMilli())
}

func (s *Storage) ClearWatch(ctx context.Context, userID, channelID string) error {
	_, err := s.exec(ctx, `
		UPDATE sync_cursors SET channel_id = '', resource_id = '', expiration = 0
		WHERE user_id = ? AND channel_id = ?
	`, userID, channelID)
	return internal.StoreErr("clear watch", err)
}

// ListExpiringSoon returns the watched cursors whose channel expires before
// the given time.
func (s *Storage) ListExpiringSoon(ctx context.Context, before time.Time) ([]*internal.SyncCursor, error) {
	var rows []SyncCursor
	err := s.selectAll(ctx, &rows, `
		SELECT `+syncCursorColumns+` FROM sync_cursors
		WHERE channel_id <> '' AND expiration < ?
		ORDER BY expiration
	`, before.UnixMilli())
	if err != nil {
		return nil, internal.StoreErr("list expiring watches", err)
	}
	return convertCursors(rows), nil
}

func (s *Storage) updateCursor(ctx context.Context, op string, key internal.CursorKey, set string, args ...any) error {
	args = append(args, key.UserID, string(key.Resource), key.CalendarID)
	n, err := s.execN(ctx, op, `
		UPDATE sync_cursors SET `+set+`
		WHERE user_id = ? AND resource = ? AND calendar_id = ?
	`, args...)
	if err != nil {
		return err
	}
	if n == 0 {
		return internal.E(internal.ErrNotFound, op, key.UserID+"/"+key.CalendarID, nil)
	}
	return nil
}

func convertCursors(rows []SyncCursor) []*internal.SyncCursor {
	res := make([]*internal.SyncCursor, len(rows))
	for i, r := range rows {
		res[i] = r.Convert()
	}
	return res
}
