package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cem-sucu/ia-familiale/internal/api"
	"github.com/cem-sucu/ia-familiale/internal/appctx"
	"github.com/cem-sucu/ia-familiale/internal/circle"
	"github.com/cem-sucu/ia-familiale/internal/delivery"
	"github.com/cem-sucu/ia-familiale/internal/push"
	"github.com/cem-sucu/ia-familiale/internal/store"
	"github.com/cem-sucu/ia-familiale/internal/trigger"
)

// --- Circles ---

// CreateCircleRequest is the request body for circle creation.
type CreateCircleRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleCreateCircle(w http.ResponseWriter, r *http.Request) {
	member := MemberFromContext(r.Context())

	var req CreateCircleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteBadRequest(w, api.ReasonBadRequest, "invalid JSON body")
		return
	}
	if req.Name == "" {
		api.WriteBadRequest(w, api.ReasonMissingField, "name is required")
		return
	}

	created, err := s.deps.Circles.Create(r.Context(), member.ID, req.Name)
	if err != nil {
		if errors.Is(err, circle.ErrAlreadyInCircle) {
			api.WriteConflict(w, api.ReasonConflict, "member already belongs to a circle")
			return
		}
		api.WriteInternalError(w, "failed to create circle")
		return
	}

	api.WriteJSON(w, http.StatusCreated, created)
}

func (s *Server) handleCreateInvitation(w http.ResponseWriter, r *http.Request) {
	member := MemberFromContext(r.Context())
	circleID := chi.URLParam(r, "circleID")

	invitation, err := s.deps.Circles.Invite(r.Context(), circleID, member.ID)
	if err != nil {
		if errors.Is(err, circle.ErrNotMember) {
			api.WriteError(w, http.StatusForbidden, api.ReasonUnauthorized, "not a member of this circle")
			return
		}
		if errors.Is(err, store.ErrNotFound) {
			api.WriteNotFound(w, "circle not found")
			return
		}
		api.WriteInternalError(w, "failed to create invitation")
		return
	}

	api.WriteJSON(w, http.StatusCreated, invitation)
}

// JoinCircleRequest is the request body for joining a circle.
type JoinCircleRequest struct {
	Token string `json:"token"`
}

func (s *Server) handleJoinCircle(w http.ResponseWriter, r *http.Request) {
	member := MemberFromContext(r.Context())

	var req JoinCircleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteBadRequest(w, api.ReasonBadRequest, "invalid JSON body")
		return
	}
	if req.Token == "" {
		api.WriteBadRequest(w, api.ReasonMissingField, "token is required")
		return
	}

	joined, err := s.deps.Circles.Join(r.Context(), req.Token, member.ID)
	if err != nil {
		switch {
		case errors.Is(err, circle.ErrInviteNotFound):
			api.WriteNotFound(w, "invitation not found")
		case errors.Is(err, circle.ErrInviteUsed):
			api.WriteConflict(w, api.ReasonConflict, "invitation already used")
		case errors.Is(err, circle.ErrInviteExpired):
			api.WriteConflict(w, api.ReasonConflict, "invitation expired")
		case errors.Is(err, circle.ErrAlreadyInCircle):
			api.WriteConflict(w, api.ReasonConflict, "member already belongs to a circle")
		default:
			api.WriteInternalError(w, "failed to join circle")
		}
		return
	}

	api.WriteJSON(w, http.StatusOK, joined)
}

// --- Members ---

func (s *Server) handleListMembers(w http.ResponseWriter, r *http.Request) {
	member := MemberFromContext(r.Context())
	if member.CircleID == "" {
		api.WriteJSON(w, http.StatusOK, []*store.Member{member})
		return
	}

	members, err := s.deps.Store.ListMembers(r.Context(), member.CircleID)
	if err != nil {
		api.WriteInternalError(w, "failed to list members")
		return
	}
	api.WriteJSON(w, http.StatusOK, members)
}

// ChangeStateRequest is the request body for a state change.
type ChangeStateRequest struct {
	State string `json:"state"`
}

// ChangeStateResponse reports the new state and the released messages.
type ChangeStateResponse struct {
	State          string `json:"state"`
	DeliveredCount int    `json:"delivered_count"`
}

func (s *Server) handleChangeState(w http.ResponseWriter, r *http.Request) {
	member := MemberFromContext(r.Context())
	if chi.URLParam(r, "memberID") != member.ID {
		api.WriteError(w, http.StatusForbidden, api.ReasonUnauthorized, "members can only change their own state")
		return
	}

	var req ChangeStateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteBadRequest(w, api.ReasonBadRequest, "invalid JSON body")
		return
	}

	result, err := s.deps.Machine.ChangeState(r.Context(), member.ID, req.State)
	if err != nil {
		if errors.Is(err, delivery.ErrUnknownState) {
			api.WriteBadRequest(w, api.ReasonInvalidField, "unknown state")
			return
		}
		api.WriteInternalError(w, "failed to change state")
		return
	}

	s.fanOutDeliveries(r.Context(), result.Delivered)
	// The member's feed shape may have changed; tell their sessions to refetch.
	s.notifyHub(r.Context(), member.ID, push.Reload())

	api.WriteJSON(w, http.StatusOK, ChangeStateResponse{
		State:          result.State,
		DeliveredCount: result.DeliveredCount(),
	})
}

// SavePushTokenRequest is the request body for registering a device token.
type SavePushTokenRequest struct {
	Token string `json:"token"`
}

func (s *Server) handleSavePushToken(w http.ResponseWriter, r *http.Request) {
	member := MemberFromContext(r.Context())
	if chi.URLParam(r, "memberID") != member.ID {
		api.WriteError(w, http.StatusForbidden, api.ReasonUnauthorized, "members can only register their own device")
		return
	}

	var req SavePushTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteBadRequest(w, api.ReasonBadRequest, "invalid JSON body")
		return
	}

	member.PushToken = req.Token
	if err := s.deps.Store.UpdateMember(r.Context(), member); err != nil {
		api.WriteInternalError(w, "failed to save push token")
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- Vocabulary ---

// VocabularyResponse lists the states and triggers clients may use.
type VocabularyResponse struct {
	States   []trigger.State   `json:"states"`
	Triggers []trigger.Trigger `json:"triggers"`
}

func (s *Server) handleVocabulary(w http.ResponseWriter, r *http.Request) {
	api.WriteJSON(w, http.StatusOK, VocabularyResponse{
		States:   s.deps.Registry.States(),
		Triggers: s.deps.Registry.Triggers(),
	})
}

// --- Messages ---

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	member := MemberFromContext(r.Context())

	messages, err := s.deps.Store.ListVisibleMessages(r.Context(), member.ID, member.CircleID)
	if err != nil {
		api.WriteInternalError(w, "failed to list messages")
		return
	}
	api.WriteJSON(w, http.StatusOK, messages)
}

// SendMessageRequest is the request body for sending a message. An empty
// recipient addresses the whole circle.
type SendMessageRequest struct {
	RecipientID string `json:"recipient_id"`
	Text        string `json:"text"`
	Trigger     string `json:"trigger"`
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	member := MemberFromContext(r.Context())

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteBadRequest(w, api.ReasonBadRequest, "invalid JSON body")
		return
	}

	msg, err := s.deps.Machine.Create(r.Context(), member.ID, req.RecipientID, member.CircleID, req.Text, req.Trigger)
	if err != nil {
		switch {
		case errors.Is(err, delivery.ErrEmptyText):
			api.WriteBadRequest(w, api.ReasonMissingField, "text is required")
		case errors.Is(err, delivery.ErrUnknownTrigger):
			api.WriteBadRequest(w, api.ReasonInvalidField, "unknown trigger")
		case errors.Is(err, delivery.ErrRecipientOutside):
			api.WriteBadRequest(w, api.ReasonInvalidField, "recipient is not in your circle")
		default:
			api.WriteInternalError(w, "failed to send message")
		}
		return
	}

	if msg.Pending() {
		// Pending messages are the sender's secret: only their own other
		// sessions hear about them.
		s.notifyHub(r.Context(), msg.SenderID, push.NewMessage(msg))
	} else {
		s.fanOutDeliveries(r.Context(), []*store.Message{msg})
	}

	api.WriteJSON(w, http.StatusCreated, msg)
}

// EditMessageRequest is the request body for editing a pending message.
type EditMessageRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleEditMessage(w http.ResponseWriter, r *http.Request) {
	member := MemberFromContext(r.Context())
	messageID := chi.URLParam(r, "messageID")

	var req EditMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteBadRequest(w, api.ReasonBadRequest, "invalid JSON body")
		return
	}

	msg, err := s.deps.Machine.Edit(r.Context(), member.ID, messageID, req.Text)
	if err != nil {
		s.writeLifecycleError(w, err, "failed to edit message")
		return
	}

	s.notifyHub(r.Context(), msg.SenderID, push.NewMessage(msg))
	api.WriteJSON(w, http.StatusOK, msg)
}

func (s *Server) handleCancelMessage(w http.ResponseWriter, r *http.Request) {
	member := MemberFromContext(r.Context())
	messageID := chi.URLParam(r, "messageID")

	msg, err := s.deps.Machine.Cancel(r.Context(), member.ID, messageID)
	if err != nil {
		s.writeLifecycleError(w, err, "failed to cancel message")
		return
	}

	s.notifyHub(r.Context(), msg.SenderID, push.NewMessage(msg))
	api.WriteJSON(w, http.StatusOK, msg)
}

// writeLifecycleError maps message lifecycle errors to API responses.
func (s *Server) writeLifecycleError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		api.WriteNotFound(w, "message not found")
	case errors.Is(err, delivery.ErrInvalidTransition):
		api.WriteConflict(w, api.ReasonInvalidTransition, "message is no longer pending")
	case errors.Is(err, delivery.ErrEmptyText):
		api.WriteBadRequest(w, api.ReasonMissingField, "text is required")
	default:
		api.WriteInternalError(w, fallback)
	}
}

// --- WebSocket ---

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.deps.Hub == nil {
		api.WriteNotFound(w, "push channel disabled")
		return
	}
	member := MemberFromContext(r.Context())
	s.deps.Hub.Handler(member.ID)(w, r)
}

// --- Push fan-out ---

// notifyHub sends an event to a member's live connections, if any.
func (s *Server) notifyHub(ctx context.Context, memberID string, event push.Event) {
	if s.deps.Hub == nil {
		return
	}
	s.deps.Hub.Notify(ctx, memberID, event)
}

// fanOutDeliveries announces freshly delivered messages on the push channel
// and through the out-of-app notifier. Direct messages go to sender and
// recipient; circle-wide ones to the whole circle.
func (s *Server) fanOutDeliveries(ctx context.Context, delivered []*store.Message) {
	logger := appctx.GetLogger(ctx)

	for _, msg := range delivered {
		event := push.NewMessage(msg)

		sender, err := s.deps.Store.GetMember(ctx, msg.SenderID)
		senderName := msg.SenderID
		if err == nil {
			senderName = sender.Name
		}

		var audience []*store.Member
		if msg.CircleWide() {
			members, err := s.deps.Store.ListMembers(ctx, msg.CircleID)
			if err != nil {
				logger.Warn("failed to list circle members for fan-out", "error", err)
				continue
			}
			audience = members
		} else {
			recipient, err := s.deps.Store.GetMember(ctx, msg.RecipientID)
			if err != nil {
				logger.Warn("failed to load recipient for fan-out", "error", err)
				continue
			}
			audience = []*store.Member{recipient}
		}

		s.notifyHub(ctx, msg.SenderID, event)
		for _, target := range audience {
			if target.ID == msg.SenderID {
				continue
			}
			s.notifyHub(ctx, target.ID, event)
			if err := s.deps.Notifier.Notify(ctx, target.PushToken, senderName, msg.Text); err != nil {
				logger.Warn("out-of-app notification failed",
					"member", target.ID,
					"error", err,
				)
			}
		}
	}
}
