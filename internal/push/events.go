// Package push maintains per-member WebSocket connections and the real-time
// events sent over them.
package push

import (
	"github.com/cem-sucu/ia-familiale/internal/store"
)

// Event types carried on the push channel.
const (
	// EventReload tells the client to discard incremental assumptions and
	// re-fetch a full snapshot.
	EventReload = "reload"

	// EventMessage carries a single freshly created or delivered message.
	EventMessage = "message"
)

// Event is the envelope for everything sent on the push channel.
type Event struct {
	Type    string         `json:"type"`
	Message *store.Message `json:"message,omitempty"`
}

// Reload builds a reload event.
func Reload() Event {
	return Event{Type: EventReload}
}

// NewMessage builds a message event.
func NewMessage(msg *store.Message) Event {
	return Event{Type: EventMessage, Message: msg}
}
