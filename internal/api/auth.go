package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/cem-sucu/ia-familiale/internal/identity"
	"github.com/cem-sucu/ia-familiale/internal/store"
	"github.com/cem-sucu/ia-familiale/internal/trigger"
)

// SessionTTL is the default session duration.
const SessionTTL = 24 * time.Hour

// AuthHandler handles authentication endpoints.
type AuthHandler struct {
	members  store.MemberStore
	sessions identity.SessionRepo
	auth     *identity.UserAuth
}

// NewAuthHandler creates a new authentication handler.
func NewAuthHandler(members store.MemberStore, sessions identity.SessionRepo, auth *identity.UserAuth) *AuthHandler {
	return &AuthHandler{
		members:  members,
		sessions: sessions,
		auth:     auth,
	}
}

// RegisterRequest is the request body for member registration.
type RegisterRequest struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

// LoginRequest is the request body for login.
type LoginRequest struct {
	ID       string `json:"id"`
	Password string `json:"password"`
}

// LoginResponse is the response for a successful login.
type LoginResponse struct {
	Token     string        `json:"token"`
	ExpiresAt time.Time     `json:"expires_at"`
	Member    *store.Member `json:"member"`
}

// Register handles POST /api/auth/register.
// New members start in the default state and outside any circle.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, ReasonBadRequest, "invalid JSON body")
		return
	}
	if req.ID == "" || req.Name == "" {
		WriteBadRequest(w, ReasonMissingField, "id and name are required")
		return
	}
	if len(req.Password) < 4 {
		WriteBadRequest(w, ReasonInvalidField, "password too short")
		return
	}

	hash, err := h.auth.HashPassword(req.Password)
	if err != nil {
		WriteInternalError(w, "failed to hash password")
		return
	}

	member := &store.Member{
		ID:           req.ID,
		Name:         req.Name,
		State:        trigger.DefaultState,
		PasswordHash: hash,
		CreatedAt:    time.Now(),
	}
	if err := h.members.CreateMember(r.Context(), member); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			WriteConflict(w, ReasonConflict, "member already exists")
			return
		}
		WriteInternalError(w, "failed to create member")
		return
	}

	WriteJSON(w, http.StatusCreated, member)
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, ReasonBadRequest, "invalid JSON body")
		return
	}
	if req.ID == "" || req.Password == "" {
		WriteBadRequest(w, ReasonMissingField, "id and password are required")
		return
	}

	member, err := h.auth.Authenticate(r.Context(), h.members, req.ID, req.Password)
	if err != nil {
		// Identical response for unknown member and wrong password.
		WriteUnauthorized(w, ReasonInvalidCredentials, "invalid credentials")
		return
	}

	session, err := h.sessions.Create(r.Context(), member.ID, SessionTTL)
	if err != nil {
		WriteInternalError(w, "failed to create session")
		return
	}

	WriteJSON(w, http.StatusOK, LoginResponse{
		Token:     session.Token,
		ExpiresAt: session.ExpiresAt,
		Member:    member,
	})
}

// Logout handles POST /api/auth/logout.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token := BearerToken(r)
	if token != "" {
		if err := h.sessions.Delete(r.Context(), token); err != nil {
			WriteInternalError(w, "failed to delete session")
			return
		}
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// BearerToken extracts the session token from the Authorization header or
// the session cookie.
func BearerToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); len(auth) > 7 && auth[:7] == "Bearer " {
		return auth[7:]
	}
	if cookie, err := r.Cookie("session"); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	return ""
}
