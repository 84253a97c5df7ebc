// Package notify fans "events changed" signals out to the websocket clients
// of each user.
package notify

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/guilherme-santos/compasssync/internal"
)

const (
	TypeEventsChanged = "EVENTS_CHANGED"

	writeTimeout = 10 * time.Second
	// messages waiting for a slow client before new ones are dropped
	bufferSize = 16
)

type Message struct {
	Type   string `json:"type"`
	UserID string `json:"userId"`
}

// Hub implements internal.Notifier. Delivery is best effort: a client that
// is not connected when a signal is sent never sees it.
type Hub struct {
	logger *slog.Logger

	mu   sync.Mutex
	subs map[string]map[chan Message]struct{}
}

var _ internal.Notifier = (*Hub)(nil)

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = internal.DiscardLogger()
	}
	return &Hub{
		logger: logger,
		subs:   make(map[string]map[chan Message]struct{}),
	}
}

func (h *Hub) EventsChanged(userID string) {
	h.publish(Message{Type: TypeEventsChanged, UserID: userID})
}

func (h *Hub) publish(msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.subs[msg.UserID] {
		select {
		case ch <- msg:
		default:
			h.logger.Warn("Dropping notification for slow client", internal.UserAttr(msg.UserID))
		}
	}
}

// Subscribe registers a receiver of the messages of a user until cancel is
// called.
func (h *Hub) Subscribe(userID string) (msgs <-chan Message, cancel func()) {
	ch := make(chan Message, bufferSize)

	h.mu.Lock()
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[chan Message]struct{})
	}
	h.subs[userID][ch] = struct{}{}
	h.mu.Unlock()

	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.subs[userID], ch)
		if len(h.subs[userID]) == 0 {
			delete(h.subs, userID)
		}
	}
}

// Subscribers returns how many clients of a user are connected.
func (h *Hub) Subscribers(userID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[userID])
}

// ServeWS upgrades the request and streams the messages of a user until the
// client goes away.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, userID string) error {
	c, err := websocket.Accept(w, r, nil)
	if err != nil {
		return err
	}
	defer c.CloseNow()

	msgs, cancel := h.Subscribe(userID)
	defer cancel()
	h.logger.Debug("Client connected", internal.UserAttr(userID))

	// only control frames are expected from clients
	ctx := c.CloseRead(r.Context())
	for {
		select {
		case <-ctx.Done():
			h.logger.Debug("Client disconnected", internal.UserAttr(userID))
			return nil
		case msg := <-msgs:
			if err := write(ctx, c, msg); err != nil {
				return err
			}
		}
	}
}

func write(ctx context.Context, c *websocket.Conn, msg Message) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, c, msg)
}
