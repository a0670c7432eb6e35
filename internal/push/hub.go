package push

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"nhooyr.io/websocket"
)

// writeTimeout bounds a single event write to one subscriber.
const writeTimeout = 5 * time.Second

// Conn is the subset of *websocket.Conn the hub needs, extracted so tests
// can observe writes without a network socket.
type Conn interface {
	Write(ctx context.Context, typ websocket.MessageType, p []byte) error
}

// subscriber is one live push connection of a member. A member may hold
// several (one per device or session).
type subscriber struct {
	mu   sync.Mutex // serializes writes on the connection
	conn Conn
}

func (s *subscriber) send(ctx context.Context, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.Write(ctx, websocket.MessageText, data)
}

// Hub tracks the live push connections per member and fans events out to
// them. Safe for concurrent use.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[*subscriber]struct{} // memberID → connections
	logger *slog.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		subs:   make(map[string]map[*subscriber]struct{}),
		logger: logger,
	}
}

// Subscribe registers a connection for a member and returns the function
// that removes it again. The caller must invoke the returned function when
// the connection ends.
func (h *Hub) Subscribe(memberID string, conn Conn) func() {
	sub := &subscriber{conn: conn}

	h.mu.Lock()
	if h.subs[memberID] == nil {
		h.subs[memberID] = make(map[*subscriber]struct{})
	}
	h.subs[memberID][sub] = struct{}{}
	h.mu.Unlock()

	h.logger.Debug("push subscriber added", "member", memberID)

	return func() {
		h.mu.Lock()
		if set, ok := h.subs[memberID]; ok {
			delete(set, sub)
			if len(set) == 0 {
				delete(h.subs, memberID)
			}
		}
		h.mu.Unlock()
		h.logger.Debug("push subscriber removed", "member", memberID)
	}
}

// ConnectionCount returns the number of live connections for a member.
func (h *Hub) ConnectionCount(memberID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[memberID])
}

// Notify sends an event to every live connection of a member. Write
// failures are logged and otherwise ignored; the failing connection's own
// read loop will observe the error and unsubscribe.
func (h *Hub) Notify(ctx context.Context, memberID string, event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("failed to marshal push event", "error", err)
		return
	}

	h.mu.RLock()
	targets := make([]*subscriber, 0, len(h.subs[memberID]))
	for sub := range h.subs[memberID] {
		targets = append(targets, sub)
	}
	h.mu.RUnlock()

	for _, sub := range targets {
		if err := sub.send(ctx, data); err != nil {
			h.logger.Warn("push write failed",
				"member", memberID,
				"event", event.Type,
				"error", err,
			)
		}
	}
}
