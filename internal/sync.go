package internal

import "time"

type User struct {
	ID           string
	Email        string
	Platform     string
	Auth         string
	ImportStatus ImportStatus
	ImportReason string
	// ImportHeartbeat is the last sign of life of the running import.
	ImportHeartbeat time.Time
	CreatedAt       time.Time
}

func (u User) String() string {
	if u.Email != "" {
		return u.Platform + "/" + u.Email
	}
	return u.ID
}

// ImportStatus is the per-user import state machine:
//
//	idle --start--> importing --success--> completed
//	importing --failure--> errored
//	completed|errored|idle --restart--> restart --start--> importing
type ImportStatus string

func (s ImportStatus) String() string {
	return string(s)
}

const (
	ImportIdle      ImportStatus = "idle"
	ImportImporting ImportStatus = "importing"
	ImportCompleted ImportStatus = "completed"
	ImportErrored   ImportStatus = "errored"
	ImportRestart   ImportStatus = "restart"
)

// CanStart lists the statuses a new import may start from.
var CanStart = []ImportStatus{ImportIdle, ImportErrored, ImportRestart}

// CanRestart lists the statuses an explicit restart may leave.
var CanRestart = []ImportStatus{ImportIdle, ImportErrored, ImportCompleted}

func (s ImportStatus) In(statuses ...ImportStatus) bool {
	for _, st := range statuses {
		if s == st {
			return true
		}
	}
	return false
}

// Resource is the provider stream a cursor follows.
type Resource string

const (
	ResourceCalendarList Resource = "calendarlist"
	ResourceEvents       Resource = "events"
)

type CursorKey struct {
	UserID     string
	Resource   Resource
	CalendarID string
}

func EventsCursor(userID, calendarID string) CursorKey {
	return CursorKey{UserID: userID, Resource: ResourceEvents, CalendarID: calendarID}
}

// SyncCursor holds the incremental sync state of one (user, resource, calendar).
// NextPageToken is only set while an import is in flight and a set ChannelID
// always comes with an Expiration.
type SyncCursor struct {
	UserID        string
	Resource      Resource
	CalendarID    string
	NextSyncToken string
	NextPageToken string
	LastSyncedAt  time.Time
	ChannelID     string
	ResourceID    string
	Expiration    time.Time
	// Pending are instances seen before their series, kept until it arrives.
	Pending []*ProviderEvent
}

func (c *SyncCursor) Key() CursorKey {
	return CursorKey{UserID: c.UserID, Resource: c.Resource, CalendarID: c.CalendarID}
}

func (c *SyncCursor) IsWatching(now time.Time) bool {
	return c.ChannelID != "" && c.Expiration.After(now)
}

func (c *SyncCursor) Completed() bool {
	return c.NextPageToken == "" && c.NextSyncToken != ""
}
