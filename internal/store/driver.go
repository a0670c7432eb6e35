// Package store provides persistence primitives and driver abstractions.
package store

import (
	"context"
	"errors"
	"time"
)

// Common errors for store operations.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrClosed        = errors.New("store closed")
)

// Message statuses. Delivered and canceled are terminal.
const (
	StatusPending   = "pending"
	StatusDelivered = "delivered"
	StatusCanceled  = "canceled"
)

// Driver defines the interface for a persistence backend.
// Implementations must be safe for concurrent use.
type Driver interface {
	MemberStore
	CircleStore
	InviteStore
	MessageStore

	// Init initializes the driver (create tables, load data, etc).
	Init(ctx context.Context) error

	// Close releases resources held by the driver.
	Close() error

	// Name returns the driver name (memory, sqlite).
	Name() string
}

// MemberStore defines operations for member persistence.
type MemberStore interface {
	// CreateMember creates a new member. Returns ErrAlreadyExists if the id is taken.
	CreateMember(ctx context.Context, member *Member) error

	// GetMember retrieves a member by id. Returns ErrNotFound if not found.
	GetMember(ctx context.Context, id string) (*Member, error)

	// UpdateMember updates an existing member.
	UpdateMember(ctx context.Context, member *Member) error

	// ListMembers returns all members of a circle, ordered by id.
	ListMembers(ctx context.Context, circleID string) ([]*Member, error)
}

// CircleStore defines operations for circle persistence.
type CircleStore interface {
	CreateCircle(ctx context.Context, circle *Circle) error
	GetCircle(ctx context.Context, id string) (*Circle, error)
}

// InviteStore defines operations for invitation persistence.
type InviteStore interface {
	CreateInvitation(ctx context.Context, inv *Invitation) error

	// GetInvitation retrieves an invitation by token. Returns ErrNotFound if unknown.
	GetInvitation(ctx context.Context, token string) (*Invitation, error)

	// RedeemInvitation atomically marks an unused invitation as used by the
	// given member. Returns ErrNotFound if the token is unknown or already used.
	RedeemInvitation(ctx context.Context, token, memberID string, usedAt time.Time) error
}

// MessageStore defines operations for message persistence.
type MessageStore interface {
	CreateMessage(ctx context.Context, msg *Message) error

	// GetMessage retrieves a message by id. Returns ErrNotFound if not found.
	GetMessage(ctx context.Context, id string) (*Message, error)

	// UpdateMessage updates an existing message.
	UpdateMessage(ctx context.Context, msg *Message) error

	// ListVisibleMessages returns the full snapshot visible to a member:
	// their own messages regardless of status, plus messages addressed to
	// them (directly or circle-wide) that are already delivered. Ordered by
	// sent time ascending.
	ListVisibleMessages(ctx context.Context, memberID, circleID string) ([]*Message, error)

	// DeliverPending atomically transitions every pending message released
	// for the member by the given triggers to delivered, stamping the
	// delivery time. Circle-wide messages from other senders in the same
	// circle are included. Returns the messages transitioned by this call;
	// already-delivered messages are untouched, so repeating the call is a
	// no-op.
	DeliverPending(ctx context.Context, memberID, circleID string, triggers []string, deliveredAt time.Time) ([]*Message, error)
}

// Member represents a person in a circle.
type Member struct {
	ID           string    `json:"id" gorm:"primaryKey"`
	Name         string    `json:"name"`
	State        string    `json:"state"`
	CircleID     string    `json:"circle_id" gorm:"index"`
	PasswordHash string    `json:"-"`
	PushToken    string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Circle is a closed group of members.
type Circle struct {
	ID        string    `json:"id" gorm:"primaryKey"`
	Name      string    `json:"name"`
	FounderID string    `json:"founder_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Invitation is a single-use token for joining a circle.
type Invitation struct {
	Token     string     `json:"token" gorm:"primaryKey"`
	CircleID  string     `json:"circle_id" gorm:"index"`
	CreatedBy string     `json:"created_by"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt time.Time  `json:"expires_at"`
	UsedBy    string     `json:"used_by,omitempty"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
}

// Used reports whether the invitation has already been redeemed.
func (i *Invitation) Used() bool {
	return i.UsedAt != nil
}

// Expired reports whether the invitation has expired at the given time.
func (i *Invitation) Expired(now time.Time) bool {
	return now.After(i.ExpiresAt)
}

// Message is a deferred (or immediate) message between circle members.
// An empty RecipientID addresses the whole circle.
type Message struct {
	ID          string     `json:"id" gorm:"primaryKey"`
	SenderID    string     `json:"sender_id" gorm:"index"`
	RecipientID string     `json:"recipient_id" gorm:"index"`
	CircleID    string     `json:"circle_id" gorm:"index"`
	Text        string     `json:"text"`
	Trigger     string     `json:"trigger" gorm:"column:trigger_id;index"`
	Status      string     `json:"status"`
	SentAt      time.Time  `json:"sent_at"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
}

// Pending reports whether the message still awaits delivery.
func (m *Message) Pending() bool {
	return m.Status == StatusPending
}

// CircleWide reports whether the message is addressed to the whole circle.
func (m *Message) CircleWide() bool {
	return m.RecipientID == ""
}

// VisibleTo reports whether the message may be shown to the given member.
// Senders always see their own messages; everyone else only sees the
// message once it is delivered.
func (m *Message) VisibleTo(memberID string) bool {
	if m.SenderID == memberID {
		return true
	}
	if m.Status != StatusDelivered {
		return false
	}
	return m.RecipientID == memberID || m.CircleWide()
}

// Clone returns a deep copy of the message.
func (m *Message) Clone() *Message {
	out := *m
	if m.DeliveredAt != nil {
		t := *m.DeliveredAt
		out.DeliveredAt = &t
	}
	return &out
}
