package internal

import (
	"context"
	"time"
)

// SeriesFields are the editable fields shared by every document of a series.
type SeriesFields struct {
	Title       string
	Description string
	Priority    Priority
	IsSomeday   bool
}

func FieldsOf(e *Event) SeriesFields {
	return SeriesFields{
		Title:       e.Title,
		Description: e.Description,
		Priority:    e.Priority,
		IsSomeday:   e.IsSomeday,
	}
}

type EventStore interface {
	// UpsertEvents inserts events, matching existing documents by provider id
	// when one is set. The ids of matched documents are written back to events.
	UpsertEvents(_ context.Context, events ...*Event) error
	EventByID(_ context.Context, userID, id string) (*Event, error)
	EventByGEventID(_ context.Context, userID, gEventID string) (*Event, error)
	Events(_ context.Context, userID string) ([]*Event, error)
	Instances(_ context.Context, userID, baseID string, from time.Time) ([]*Event, error)
	CountSeries(_ context.Context, userID, baseID string) (int64, error)
	UpdateEvent(_ context.Context, _ *Event) error
	UpdateSeriesFields(_ context.Context, userID, baseID string, _ SeriesFields) (int64, error)
	SetRecurrenceRule(_ context.Context, userID, id string, rule []string) error
	DeleteEvent(_ context.Context, userID, id string) (int64, error)
	DeleteSeries(_ context.Context, userID, baseID string) (int64, error)
	DeleteInstancesFrom(_ context.Context, userID, baseID string, from time.Time) (int64, error)
	DeleteUserEvents(_ context.Context, userID string) (int64, error)
}

// SyncStore persists sync cursors. Writes only touch the columns they own so
// that concurrent token and watch updates on the same cursor never clobber
// each other.
type SyncStore interface {
	EnsureSyncCursor(_ context.Context, _ CursorKey) error
	FindSyncCursor(_ context.Context, _ CursorKey) (*SyncCursor, error)
	SyncCursors(_ context.Context, userID string, _ Resource) ([]*SyncCursor, error)
	SyncCursorByChannel(_ context.Context, channelID string) (*SyncCursor, error)
	UpdatePageToken(_ context.Context, _ CursorKey, pageToken string) error
	UpdateSyncToken(_ context.Context, _ CursorKey, syncToken string, syncedAt time.Time) error
	SavePending(_ context.Context, _ CursorKey, items []*ProviderEvent) error
	ResetSyncTokens(_ context.Context, userID string) error
	UpdateWatch(_ context.Context, _ CursorKey, _ WatchChannel) error
	ClearWatch(_ context.Context, userID, channelID string) error
	ListExpiringSoon(_ context.Context, before time.Time) ([]*SyncCursor, error)
}

type UserStore interface {
	AddUser(_ context.Context, _ *User) error
	User(_ context.Context, id string) (*User, error)
	UserByEmail(_ context.Context, email string) (*User, error)
	// TransitionImportStatus atomically moves the import status to `to` when
	// the current status is one of `from`. It reports whether it did.
	TransitionImportStatus(_ context.Context, userID string, from []ImportStatus, to ImportStatus, reason string) (bool, error)
	SetImportStatus(_ context.Context, userID string, _ ImportStatus, reason string) error
	TouchImport(_ context.Context, userID string, at time.Time) error
	// ReclaimStaleImport moves an import whose heartbeat is older than before
	// to `to`. It reports whether it did.
	ReclaimStaleImport(_ context.Context, userID string, before time.Time, to ImportStatus, reason string) (bool, error)
}

type Store interface {
	EventStore
	SyncStore
	UserStore
	// InTx runs fn with a store whose writes commit together.
	InTx(_ context.Context, fn func(Store) error) error
}
