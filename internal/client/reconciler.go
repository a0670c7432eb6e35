package client

import (
	"sort"
	"sync"

	"github.com/cem-sucu/ia-familiale/internal/store"
)

// statusRank orders message statuses for the never-downgrade rule. A
// message already seen as delivered or canceled must not revert to pending
// because a stale push arrived late.
func statusRank(status string) int {
	switch status {
	case store.StatusPending:
		return 0
	case store.StatusDelivered, store.StatusCanceled:
		return 1
	default:
		return 0
	}
}

type entry struct {
	msg *store.Message
	// provisional marks a local echo not yet confirmed by the server.
	provisional bool
}

// Reconciler merges the three message sources into one consistent feed:
//
//   - snapshots replace everything wholesale (the server is authoritative),
//   - push events insert if absent and otherwise only upgrade,
//   - local echoes are provisional until any server copy replaces them.
//
// Safe for concurrent use.
type Reconciler struct {
	mu      sync.Mutex
	entries map[string]entry
}

// NewReconciler creates an empty reconciler.
func NewReconciler() *Reconciler {
	return &Reconciler{entries: make(map[string]entry)}
}

// ApplySnapshot replaces the whole feed with the server's view. Provisional
// entries absent from the snapshot are dropped: either the send failed or
// the server never saw it, and the next send will re-echo it.
func (r *Reconciler) ApplySnapshot(msgs []*store.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries = make(map[string]entry, len(msgs))
	for _, msg := range msgs {
		r.entries[msg.ID] = entry{msg: msg.Clone()}
	}
}

// ApplyPush merges one pushed message. Unknown ids are inserted; known ids
// are replaced unless that would downgrade a terminal status back to
// pending. A push always supersedes a provisional echo with the same id.
func (r *Reconciler) ApplyPush(msg *store.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.entries[msg.ID]
	if ok && !current.provisional && statusRank(msg.Status) < statusRank(current.msg.Status) {
		return
	}
	r.entries[msg.ID] = entry{msg: msg.Clone()}
}

// ApplyLocal records a local echo of a just-sent message. It never
// overwrites a server-confirmed copy.
func (r *Reconciler) ApplyLocal(msg *store.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.entries[msg.ID]; ok && !current.provisional {
		return
	}
	r.entries[msg.ID] = entry{msg: msg.Clone(), provisional: true}
}

// Messages returns the merged feed ordered by send time, then id for
// stability. The returned messages are copies.
func (r *Reconciler) Messages() []*store.Message {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*store.Message, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.msg.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].SentAt.Equal(out[j].SentAt) {
			return out[i].SentAt.Before(out[j].SentAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Len returns the number of messages in the feed.
func (r *Reconciler) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
