package internal

import (
	"context"
	"time"
)

type Mux interface {
	Get(platform string) (Provider, error)
}

type ListOptions struct {
	TimeMin   time.Time
	PageToken string
	SyncToken string
}

type Page struct {
	Items         []*ProviderEvent
	NextPageToken string
	NextSyncToken string
}

type WatchRequest struct {
	ChannelID  string
	Address    string
	Token      string
	Expiration time.Time
}

type WatchChannel struct {
	ChannelID  string
	ResourceID string
	Expiration time.Time
}

type Provider interface {
	Login(context.Context) ([]byte, error)
	Email(_ context.Context, _ *User) (string, error)
	CalendarIDs(_ context.Context, _ *User) ([]string, error)
	ListEvents(_ context.Context, _ *User, calendarID string, _ ListOptions) (*Page, error)
	GetEvent(_ context.Context, _ *User, calendarID, id string) (*ProviderEvent, error)
	CreateEvent(_ context.Context, _ *User, calendarID string, _ *ProviderEvent) (*ProviderEvent, error)
	UpdateEvent(_ context.Context, _ *User, calendarID string, _ *ProviderEvent) (*ProviderEvent, error)
	DeleteEvent(_ context.Context, _ *User, calendarID, id string) error
	Watch(_ context.Context, _ *User, calendarID string, _ WatchRequest) (*WatchChannel, error)
	StopChannel(_ context.Context, _ *User, channelID, resourceID string) error
}

// Notifier announces that the events of a user changed. Delivery is best
// effort and never acknowledged.
type Notifier interface {
	EventsChanged(userID string)
}

type NopNotifier struct{}

func (NopNotifier) EventsChanged(string) {}
