// Package circle manages closed member groups and their invitation tokens.
package circle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/cem-sucu/ia-familiale/internal/store"
)

var (
	ErrNotMember       = errors.New("not a member of this circle")
	ErrAlreadyInCircle = errors.New("member already belongs to a circle")
	ErrInviteNotFound  = errors.New("invitation not found")
	ErrInviteUsed      = errors.New("invitation already used")
	ErrInviteExpired   = errors.New("invitation expired")
)

// InvitationTTL is how long a freshly minted invitation stays redeemable.
const InvitationTTL = 7 * 24 * time.Hour

// Service implements circle creation, invitations, and joining.
type Service struct {
	circles store.CircleStore
	invites store.InviteStore
	members store.MemberStore
	now     func() time.Time
	logger  *slog.Logger
}

// NewService creates a circle service.
func NewService(circles store.CircleStore, invites store.InviteStore, members store.MemberStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		circles: circles,
		invites: invites,
		members: members,
		now:     time.Now,
		logger:  logger,
	}
}

// Create creates a circle founded by the given member and makes the founder
// its first member. A member can only belong to one circle.
func (s *Service) Create(ctx context.Context, founderID, name string) (*store.Circle, error) {
	founder, err := s.members.GetMember(ctx, founderID)
	if err != nil {
		return nil, fmt.Errorf("load founder: %w", err)
	}
	if founder.CircleID != "" {
		return nil, ErrAlreadyInCircle
	}

	circle := &store.Circle{
		ID:        uuid.NewString(),
		Name:      name,
		FounderID: founderID,
		CreatedAt: s.now(),
	}
	if err := s.circles.CreateCircle(ctx, circle); err != nil {
		return nil, fmt.Errorf("create circle: %w", err)
	}

	founder.CircleID = circle.ID
	if err := s.members.UpdateMember(ctx, founder); err != nil {
		return nil, fmt.Errorf("attach founder: %w", err)
	}

	s.logger.Info("circle created", "circle_id", circle.ID, "founder", founderID)
	return circle, nil
}

// Invite mints a single-use invitation token for the circle. Only current
// circle members can invite.
func (s *Service) Invite(ctx context.Context, circleID, memberID string) (*store.Invitation, error) {
	member, err := s.members.GetMember(ctx, memberID)
	if err != nil {
		return nil, fmt.Errorf("load member: %w", err)
	}
	if member.CircleID != circleID {
		return nil, ErrNotMember
	}

	now := s.now()
	inv := &store.Invitation{
		Token:     uuid.NewString(),
		CircleID:  circleID,
		CreatedBy: memberID,
		CreatedAt: now,
		ExpiresAt: now.Add(InvitationTTL),
	}
	if err := s.invites.CreateInvitation(ctx, inv); err != nil {
		return nil, fmt.Errorf("create invitation: %w", err)
	}

	s.logger.Info("invitation created", "circle_id", circleID, "created_by", memberID)
	return inv, nil
}

// Join redeems an invitation token for the given member. The token is
// single-use: the first redemption wins, every later attempt fails.
func (s *Service) Join(ctx context.Context, token, memberID string) (*store.Circle, error) {
	member, err := s.members.GetMember(ctx, memberID)
	if err != nil {
		return nil, fmt.Errorf("load member: %w", err)
	}
	if member.CircleID != "" {
		return nil, ErrAlreadyInCircle
	}

	inv, err := s.invites.GetInvitation(ctx, token)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInviteNotFound
		}
		return nil, fmt.Errorf("load invitation: %w", err)
	}

	now := s.now()
	if inv.Expired(now) {
		return nil, ErrInviteExpired
	}
	if inv.Used() {
		return nil, ErrInviteUsed
	}

	// The store-level redemption is atomic; losing a race surfaces as used.
	if err := s.invites.RedeemInvitation(ctx, token, memberID, now); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInviteUsed
		}
		return nil, fmt.Errorf("redeem invitation: %w", err)
	}

	circle, err := s.circles.GetCircle(ctx, inv.CircleID)
	if err != nil {
		return nil, fmt.Errorf("load circle: %w", err)
	}

	member.CircleID = circle.ID
	if err := s.members.UpdateMember(ctx, member); err != nil {
		return nil, fmt.Errorf("attach member: %w", err)
	}

	s.logger.Info("member joined circle", "circle_id", circle.ID, "member", memberID)
	return circle, nil
}
