// Package delivery owns the message lifecycle: pending → delivered,
// pending → canceled, and text edits while still pending.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cem-sucu/ia-familiale/internal/store"
	"github.com/cem-sucu/ia-familiale/internal/trigger"
)

var (
	// ErrInvalidTransition is returned for any edit or cancel attempt on a
	// message that is not pending, or that the caller did not send. The
	// rejected request leaves the message unchanged.
	ErrInvalidTransition = errors.New("invalid transition")

	ErrUnknownTrigger   = errors.New("unknown trigger")
	ErrUnknownState     = errors.New("unknown state")
	ErrEmptyText        = errors.New("empty message text")
	ErrRecipientOutside = errors.New("recipient is not in the sender's circle")
)

// ChangeStateResult reports the outcome of a member state change.
type ChangeStateResult struct {
	State     string           `json:"state"`
	Delivered []*store.Message `json:"-"`
}

// DeliveredCount returns how many messages the state change released.
func (r *ChangeStateResult) DeliveredCount() int {
	return len(r.Delivered)
}

// Machine applies message lifecycle transitions against the store. It never
// mutates a message outside the transitions below, and a rejected request
// never partially applies.
type Machine struct {
	members  store.MemberStore
	messages store.MessageStore
	registry *trigger.Registry
	now      func() time.Time
	logger   *slog.Logger
}

// NewMachine creates a delivery state machine.
func NewMachine(members store.MemberStore, messages store.MessageStore, registry *trigger.Registry, logger *slog.Logger) *Machine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Machine{
		members:  members,
		messages: messages,
		registry: registry,
		now:      time.Now,
		logger:   logger,
	}
}

// SetClock overrides the machine's clock. Intended for tests.
func (m *Machine) SetClock(now func() time.Time) {
	m.now = now
}

// Create stores a new message. The initial status is derived from the
// trigger: the immediate trigger delivers at creation time with
// delivered-timestamp equal to the sent-timestamp, everything else starts
// pending. An empty recipient addresses the whole circle.
func (m *Machine) Create(ctx context.Context, senderID, recipientID, circleID, text, triggerID string) (*store.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyText
	}
	if !m.registry.ValidTrigger(triggerID) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTrigger, triggerID)
	}

	sender, err := m.members.GetMember(ctx, senderID)
	if err != nil {
		return nil, fmt.Errorf("load sender: %w", err)
	}
	if circleID == "" {
		circleID = sender.CircleID
	}
	if sender.CircleID != circleID {
		return nil, ErrRecipientOutside
	}
	if recipientID != "" {
		recipient, err := m.members.GetMember(ctx, recipientID)
		if err != nil {
			return nil, fmt.Errorf("load recipient: %w", err)
		}
		if recipient.CircleID != circleID {
			return nil, ErrRecipientOutside
		}
	}

	now := m.now()
	msg := &store.Message{
		ID:          uuid.NewString(),
		SenderID:    senderID,
		RecipientID: recipientID,
		CircleID:    circleID,
		Text:        text,
		Trigger:     triggerID,
		Status:      store.StatusPending,
		SentAt:      now,
	}
	if triggerID == trigger.TriggerImmediate {
		msg.Status = store.StatusDelivered
		t := now
		msg.DeliveredAt = &t
	}

	if err := m.messages.CreateMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}

	m.logger.Info("message created",
		"message_id", msg.ID,
		"sender", senderID,
		"trigger", triggerID,
		"status", msg.Status,
	)
	return msg, nil
}

// Edit replaces the text of a pending message. Identifier, trigger, and
// sent-timestamp are held. Only the sender may edit, and only while the
// message is still pending.
func (m *Machine) Edit(ctx context.Context, callerID, messageID, text string) (*store.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyText
	}

	msg, err := m.messages.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.SenderID != callerID || !msg.Pending() {
		return nil, ErrInvalidTransition
	}

	msg.Text = text
	if err := m.messages.UpdateMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("update message: %w", err)
	}

	m.logger.Info("message edited", "message_id", msg.ID, "sender", callerID)
	return msg, nil
}

// Cancel transitions a pending message to canceled. Canceled is terminal:
// the message becomes permanently invisible to the recipient.
func (m *Machine) Cancel(ctx context.Context, callerID, messageID string) (*store.Message, error) {
	msg, err := m.messages.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.SenderID != callerID || !msg.Pending() {
		return nil, ErrInvalidTransition
	}

	msg.Status = store.StatusCanceled
	if err := m.messages.UpdateMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("update message: %w", err)
	}

	m.logger.Info("message canceled", "message_id", msg.ID, "sender", callerID)
	return msg, nil
}

// ChangeState records the member's new state and delivers every pending
// message released by it. The store-level transition is atomic per message
// and keyed on the pending status, so a duplicate state-change event
// delivers nothing the second time.
func (m *Machine) ChangeState(ctx context.Context, memberID, stateID string) (*ChangeStateResult, error) {
	if !m.registry.ValidState(stateID) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownState, stateID)
	}

	member, err := m.members.GetMember(ctx, memberID)
	if err != nil {
		return nil, fmt.Errorf("load member: %w", err)
	}

	member.State = stateID
	if err := m.members.UpdateMember(ctx, member); err != nil {
		return nil, fmt.Errorf("update member state: %w", err)
	}

	released := m.registry.Released(stateID)
	var delivered []*store.Message
	if len(released) > 0 {
		delivered, err = m.messages.DeliverPending(ctx, memberID, member.CircleID, released, m.now())
		if err != nil {
			return nil, fmt.Errorf("deliver pending: %w", err)
		}
	}

	if len(delivered) > 0 {
		m.logger.Info("messages delivered",
			"member", memberID,
			"state", stateID,
			"count", len(delivered),
		)
	}
	return &ChangeStateResult{State: stateID, Delivered: delivered}, nil
}
