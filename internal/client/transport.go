package client

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"nhooyr.io/websocket"

	"github.com/cem-sucu/ia-familiale/internal/push"
	"github.com/cem-sucu/ia-familiale/internal/store"
)

// Adapter connection states.
const (
	StateConnected = "connected"
	StateDegraded  = "degraded"
	StateClosed    = "closed"
)

// DefaultPollInterval is how often the adapter polls a snapshot while the
// WebSocket is down.
const DefaultPollInterval = 5 * time.Second

// Update is one change of the merged feed.
type Update struct {
	// Messages is the full merged feed after the change.
	Messages []*store.Message

	// Fresh is set when a single pushed message caused the update, so the
	// consumer can raise a local notification for it.
	Fresh *store.Message
}

// Adapter keeps the feed fresh over an unreliable connection. While the
// WebSocket is up it applies pushed events; when it drops, the adapter
// degrades to snapshot polling and keeps redialing with backoff. All timers
// live in the single Run loop, so there is never more than one poll ticker.
type Adapter struct {
	client       *Client
	recon        *Reconciler
	pollInterval time.Duration
	logger       *slog.Logger

	updates   chan Update
	closed    chan struct{}
	closeOnce sync.Once

	mu    sync.Mutex
	state string
}

// NewAdapter creates an adapter over an authenticated client.
func NewAdapter(c *Client, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{
		client:       c,
		recon:        NewReconciler(),
		pollInterval: DefaultPollInterval,
		logger:       logger,
		updates:      make(chan Update, 16),
		closed:       make(chan struct{}),
		state:        StateDegraded,
	}
}

// Updates returns the feed update channel. It is closed when Run returns.
func (a *Adapter) Updates() <-chan Update { return a.updates }

// State returns the current connection state.
func (a *Adapter) State() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *Adapter) setState(state string) {
	a.mu.Lock()
	if a.state != StateClosed {
		a.state = state
	}
	a.mu.Unlock()
}

// Close tears the adapter down. No updates are emitted after Close returns
// and Run unblocks.
func (a *Adapter) Close() {
	a.closeOnce.Do(func() {
		a.mu.Lock()
		a.state = StateClosed
		a.mu.Unlock()
		close(a.closed)
	})
}

// NoteLocal records a local echo of a just-sent message and emits the
// updated feed.
func (a *Adapter) NoteLocal(msg *store.Message) {
	a.recon.ApplyLocal(msg)
	a.emit(Update{Messages: a.recon.Messages()})
}

// emit delivers an update unless the adapter is closed. A slow consumer
// drops intermediate updates; the next one carries the full feed anyway.
func (a *Adapter) emit(update Update) {
	select {
	case <-a.closed:
		return
	default:
	}
	select {
	case a.updates <- update:
	default:
		a.logger.Debug("dropping feed update for slow consumer")
	}
}

// Run drives the adapter until ctx is canceled or Close is called. It is
// the only goroutine that owns timers or touches the connection.
func (a *Adapter) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-a.closed:
			cancel()
		case <-ctx.Done():
		}
	}()

	defer close(a.updates)
	defer a.setState(StateClosed)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.MaxInterval = 30 * time.Second

	for {
		if ctx.Err() != nil {
			return
		}

		conn, err := a.dial(ctx)
		if err != nil {
			a.setState(StateDegraded)
			wait := bo.NextBackOff()
			a.logger.Debug("websocket dial failed, polling", "retry_in", wait, "error", err)
			// Fetch right away; the ticker only covers the rest of the wait.
			a.reload(ctx)
			if !a.pollFor(ctx, wait) {
				return
			}
			continue
		}

		bo.Reset()
		a.setState(StateConnected)
		a.reload(ctx)
		a.readLoop(ctx, conn)
		conn.Close(websocket.StatusNormalClosure, "")
		a.setState(StateDegraded)
	}
}

// dial opens the WebSocket connection with the session token.
func (a *Adapter) dial(ctx context.Context) (*websocket.Conn, error) {
	wsBase := strings.Replace(a.client.baseURL, "http", "ws", 1)
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, wsBase+"/ws", &websocket.DialOptions{
		HTTPHeader: map[string][]string{
			"Authorization": {"Bearer " + a.client.token},
		},
	})
	return conn, err
}

// reload fetches a full snapshot and replaces the feed with it.
func (a *Adapter) reload(ctx context.Context) {
	msgs, err := a.client.Snapshot(ctx)
	if err != nil {
		a.logger.Warn("snapshot failed", "error", err)
		return
	}
	a.recon.ApplySnapshot(msgs)
	a.emit(Update{Messages: a.recon.Messages()})
}

// readLoop applies pushed events until the connection fails.
func (a *Adapter) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() == nil {
				a.logger.Debug("websocket read failed", "error", err)
			}
			return
		}

		var event push.Event
		if err := json.Unmarshal(data, &event); err != nil {
			a.logger.Warn("invalid push event", "error", err)
			continue
		}

		switch event.Type {
		case push.EventReload:
			a.reload(ctx)
		case push.EventMessage:
			if event.Message == nil {
				continue
			}
			a.recon.ApplyPush(event.Message)
			a.emit(Update{Messages: a.recon.Messages(), Fresh: event.Message})
		default:
			a.logger.Debug("ignoring unknown push event", "type", event.Type)
		}
	}
}

// pollFor polls snapshots every pollInterval for the given duration, then
// returns true so the caller can try redialing. It returns false when the
// adapter shut down. The ticker is created and stopped here, inside the
// Run loop.
func (a *Adapter) pollFor(ctx context.Context, wait time.Duration) bool {
	ticker := time.NewTicker(a.pollInterval)
	defer ticker.Stop()

	deadline := time.NewTimer(wait)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-deadline.C:
			return true
		case <-ticker.C:
			a.reload(ctx)
		}
	}
}
