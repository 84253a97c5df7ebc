// Package providertest provides an in-memory calendar provider for tests.
package providertest

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/guilherme-santos/compasssync/internal"
)

const Platform = "fake"

// Provider serves scripted pages. Import pages are addressed by page tokens
// "page-N"; incremental pages by sync token, or by "<sync token>#<page token>"
// past the first page.
type Provider struct {
	mu sync.Mutex

	Calendars []string
	// Pages per calendar, served in order for imports.
	Pages map[string][]*internal.Page
	// Changes per sync token, served for incremental syncs.
	Changes map[string]*internal.Page
	// Errors returned once for the given page or sync token.
	FailOnce map[string]error
	// StopErr is returned by StopChannel.
	StopErr error
	// Hold, when set, makes ListEvents wait until it is closed or the
	// context is done.
	Hold chan struct{}

	Lists    []internal.ListOptions
	Created  []*internal.ProviderEvent
	Deleted  []string
	Watches  []internal.WatchRequest
	Stopped  []string
	nextID   int
	resource int
}

func New(calendars ...string) *Provider {
	return &Provider{
		Calendars: calendars,
		Pages:     make(map[string][]*internal.Page),
		Changes:   make(map[string]*internal.Page),
		FailOnce:  make(map[string]error),
	}
}

// Mux serves the provider under Platform.
type Mux struct {
	P *Provider
}

func (m Mux) Get(platform string) (internal.Provider, error) {
	if platform != Platform {
		return nil, fmt.Errorf("provider %q not supported", platform)
	}
	return m.P, nil
}

func (p *Provider) Login(context.Context) ([]byte, error) {
	return []byte(`{"access_token":"fake"}`), nil
}

func (p *Provider) Email(context.Context, *internal.User) (string, error) {
	return "jane@example.com", nil
}

func (p *Provider) CalendarIDs(context.Context, *internal.User) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.Calendars...), nil
}

func (p *Provider) ListEvents(ctx context.Context, _ *internal.User, calendarID string, opts internal.ListOptions) (*internal.Page, error) {
	if p.Hold != nil {
		select {
		case <-p.Hold:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Lists = append(p.Lists, opts)

	if opts.SyncToken != "" {
		key := opts.SyncToken
		if opts.PageToken != "" {
			key += "#" + opts.PageToken
		}
		if err := p.fail(key); err != nil {
			return nil, err
		}
		page, ok := p.Changes[key]
		if !ok {
			return &internal.Page{NextSyncToken: opts.SyncToken}, nil
		}
		return page, nil
	}

	if err := p.fail(opts.PageToken); err != nil {
		return nil, err
	}
	pages := p.Pages[calendarID]
	i := 0
	if opts.PageToken != "" {
		n, err := strconv.Atoi(strings.TrimPrefix(opts.PageToken, "page-"))
		if err != nil || n >= len(pages) {
			return nil, fmt.Errorf("invalid page token %q", opts.PageToken)
		}
		i = n
	}
	if len(pages) == 0 {
		return &internal.Page{NextSyncToken: "sync-" + calendarID}, nil
	}
	page := *pages[i]
	if i+1 < len(pages) {
		page.NextPageToken = fmt.Sprintf("page-%d", i+1)
	} else if page.NextSyncToken == "" {
		page.NextSyncToken = "sync-" + calendarID
	}
	return &page, nil
}

func (p *Provider) fail(token string) error {
	if token == "" {
		token = "page-0"
	}
	err, ok := p.FailOnce[token]
	if !ok {
		return nil
	}
	delete(p.FailOnce, token)
	return err
}

func (p *Provider) GetEvent(_ context.Context, _ *internal.User, _, id string) (*internal.ProviderEvent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range p.Created {
		if e.ID == id {
			return e, nil
		}
	}
	return nil, internal.E(internal.ErrNotFound, "get event", id, nil)
}

func (p *Provider) CreateEvent(_ context.Context, _ *internal.User, _ string, e *internal.ProviderEvent) (*internal.ProviderEvent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	created := *e
	created.ID = fmt.Sprintf("created-%d", p.nextID)
	p.Created = append(p.Created, &created)
	return &created, nil
}

func (p *Provider) UpdateEvent(_ context.Context, _ *internal.User, _ string, e *internal.ProviderEvent) (*internal.ProviderEvent, error) {
	return e, nil
}

func (p *Provider) DeleteEvent(_ context.Context, _ *internal.User, _, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Deleted = append(p.Deleted, id)
	return nil
}

func (p *Provider) Watch(_ context.Context, _ *internal.User, _ string, req internal.WatchRequest) (*internal.WatchChannel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Watches = append(p.Watches, req)
	p.resource++
	return &internal.WatchChannel{
		ChannelID:  req.ChannelID,
		ResourceID: fmt.Sprintf("resource-%d", p.resource),
		Expiration: req.Expiration.Truncate(time.Millisecond),
	}, nil
}

func (p *Provider) StopChannel(_ context.Context, _ *internal.User, channelID, _ string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Stopped = append(p.Stopped, channelID)
	return p.StopErr
}

// Notifier counts the notifications sent per user.
type Notifier struct {
	mu    sync.Mutex
	calls map[string]int
}

func (n *Notifier) EventsChanged(userID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.calls == nil {
		n.calls = make(map[string]int)
	}
	n.calls[userID]++
}

func (n *Notifier) Calls(userID string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls[userID]
}
