// Package memory implements an in-memory persistence driver, used by tests
// and the dev mode.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cem-sucu/ia-familiale/internal/store"
)

func init() {
	store.Register("memory", NewDriver)
}

// Driver implements store.Driver with plain maps. Safe for concurrent use.
type Driver struct {
	mu          sync.RWMutex
	members     map[string]*store.Member
	circles     map[string]*store.Circle
	invitations map[string]*store.Invitation
	messages    map[string]*store.Message
	closed      bool
}

// NewDriver creates a new in-memory driver instance.
func NewDriver(cfg *store.DriverConfig) (store.Driver, error) {
	return &Driver{
		members:     make(map[string]*store.Member),
		circles:     make(map[string]*store.Circle),
		invitations: make(map[string]*store.Invitation),
		messages:    make(map[string]*store.Message),
	}, nil
}

// New creates an in-memory driver for direct use in tests.
func New() *Driver {
	d, _ := NewDriver(nil)
	return d.(*Driver)
}

func (d *Driver) Name() string { return "memory" }

func (d *Driver) Init(ctx context.Context) error { return nil }

func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

func (d *Driver) checkOpen() error {
	if d.closed {
		return store.ErrClosed
	}
	return nil
}

// Member operations

func (d *Driver) CreateMember(ctx context.Context, member *store.Member) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkOpen(); err != nil {
		return err
	}
	if _, ok := d.members[member.ID]; ok {
		return store.ErrAlreadyExists
	}
	cp := *member
	d.members[member.ID] = &cp
	return nil
}

func (d *Driver) GetMember(ctx context.Context, id string) (*store.Member, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if err := d.checkOpen(); err != nil {
		return nil, err
	}
	m, ok := d.members[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (d *Driver) UpdateMember(ctx context.Context, member *store.Member) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkOpen(); err != nil {
		return err
	}
	if _, ok := d.members[member.ID]; !ok {
		return store.ErrNotFound
	}
	cp := *member
	d.members[member.ID] = &cp
	return nil
}

func (d *Driver) ListMembers(ctx context.Context, circleID string) ([]*store.Member, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if err := d.checkOpen(); err != nil {
		return nil, err
	}
	var out []*store.Member
	for _, m := range d.members {
		if m.CircleID == circleID {
			cp := *m
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Circle operations

func (d *Driver) CreateCircle(ctx context.Context, circle *store.Circle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkOpen(); err != nil {
		return err
	}
	if _, ok := d.circles[circle.ID]; ok {
		return store.ErrAlreadyExists
	}
	cp := *circle
	d.circles[circle.ID] = &cp
	return nil
}

func (d *Driver) GetCircle(ctx context.Context, id string) (*store.Circle, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if err := d.checkOpen(); err != nil {
		return nil, err
	}
	c, ok := d.circles[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

// Invitation operations

func (d *Driver) CreateInvitation(ctx context.Context, inv *store.Invitation) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkOpen(); err != nil {
		return err
	}
	if _, ok := d.invitations[inv.Token]; ok {
		return store.ErrAlreadyExists
	}
	cp := *inv
	d.invitations[inv.Token] = &cp
	return nil
}

func (d *Driver) GetInvitation(ctx context.Context, token string) (*store.Invitation, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if err := d.checkOpen(); err != nil {
		return nil, err
	}
	inv, ok := d.invitations[token]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *inv
	if inv.UsedAt != nil {
		t := *inv.UsedAt
		cp.UsedAt = &t
	}
	return &cp, nil
}

func (d *Driver) RedeemInvitation(ctx context.Context, token, memberID string, usedAt time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkOpen(); err != nil {
		return err
	}
	inv, ok := d.invitations[token]
	if !ok || inv.UsedAt != nil {
		return store.ErrNotFound
	}
	t := usedAt
	inv.UsedAt = &t
	inv.UsedBy = memberID
	return nil
}

// Message operations

func (d *Driver) CreateMessage(ctx context.Context, msg *store.Message) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkOpen(); err != nil {
		return err
	}
	if _, ok := d.messages[msg.ID]; ok {
		return store.ErrAlreadyExists
	}
	d.messages[msg.ID] = msg.Clone()
	return nil
}

func (d *Driver) GetMessage(ctx context.Context, id string) (*store.Message, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if err := d.checkOpen(); err != nil {
		return nil, err
	}
	m, ok := d.messages[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return m.Clone(), nil
}

func (d *Driver) UpdateMessage(ctx context.Context, msg *store.Message) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkOpen(); err != nil {
		return err
	}
	if _, ok := d.messages[msg.ID]; !ok {
		return store.ErrNotFound
	}
	d.messages[msg.ID] = msg.Clone()
	return nil
}

func (d *Driver) ListVisibleMessages(ctx context.Context, memberID, circleID string) ([]*store.Message, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if err := d.checkOpen(); err != nil {
		return nil, err
	}
	var out []*store.Message
	for _, m := range d.messages {
		if m.CircleID != circleID {
			continue
		}
		if m.VisibleTo(memberID) {
			out = append(out, m.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SentAt.Equal(out[j].SentAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].SentAt.Before(out[j].SentAt)
	})
	return out, nil
}

func (d *Driver) DeliverPending(ctx context.Context, memberID, circleID string, triggers []string, deliveredAt time.Time) ([]*store.Message, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkOpen(); err != nil {
		return nil, err
	}
	released := make(map[string]bool, len(triggers))
	for _, t := range triggers {
		released[t] = true
	}
	var delivered []*store.Message
	for _, m := range d.messages {
		if m.Status != store.StatusPending || !released[m.Trigger] {
			continue
		}
		addressed := m.RecipientID == memberID ||
			(m.CircleWide() && m.CircleID == circleID && m.SenderID != memberID)
		if !addressed {
			continue
		}
		t := deliveredAt
		m.Status = store.StatusDelivered
		m.DeliveredAt = &t
		delivered = append(delivered, m.Clone())
	}
	sort.Slice(delivered, func(i, j int) bool {
		if delivered[i].SentAt.Equal(delivered[j].SentAt) {
			return delivered[i].ID < delivered[j].ID
		}
		return delivered[i].SentAt.Before(delivered[j].SentAt)
	})
	return delivered, nil
}

var _ store.Driver = (*Driver)(nil)
