package identity

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"sync"
	"time"
)

// Session represents an active member session.
type Session struct {
	Token     string    `json:"token"`
	MemberID  string    `json:"member_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IsExpired returns true if the session has expired.
func (s *Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}

// SessionRepo provides session storage operations.
type SessionRepo interface {
	// Create creates a new session for the member.
	Create(ctx context.Context, memberID string, ttl time.Duration) (*Session, error)

	// Get retrieves a session by token. Returns ErrSessionNotFound if not found.
	Get(ctx context.Context, token string) (*Session, error)

	// Delete removes a session (logout).
	Delete(ctx context.Context, token string) error

	// DeleteByMember removes all sessions for a member.
	DeleteByMember(ctx context.Context, memberID string) error

	// DeleteExpired removes all expired sessions.
	DeleteExpired(ctx context.Context) (int, error)
}

// GenerateToken creates a cryptographically secure random token.
func GenerateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// MemorySessionRepo is an in-memory implementation of SessionRepo.
type MemorySessionRepo struct {
	mu       sync.RWMutex
	sessions map[string]*Session // by token
	byMember map[string][]string // memberID -> tokens
}

// NewMemorySessionRepo creates a new in-memory session repository.
func NewMemorySessionRepo() *MemorySessionRepo {
	return &MemorySessionRepo{
		sessions: make(map[string]*Session),
		byMember: make(map[string][]string),
	}
}

func (r *MemorySessionRepo) Create(ctx context.Context, memberID string, ttl time.Duration) (*Session, error) {
	token, err := GenerateToken()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	session := &Session{
		Token:     token,
		MemberID:  memberID,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions[token] = session
	r.byMember[memberID] = append(r.byMember[memberID], token)

	return session, nil
}

func (r *MemorySessionRepo) Get(ctx context.Context, token string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, ok := r.sessions[token]
	if !ok {
		return nil, ErrSessionNotFound
	}

	if session.IsExpired() {
		return nil, ErrSessionExpired
	}

	return session, nil
}

func (r *MemorySessionRepo) Delete(ctx context.Context, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[token]
	if !ok {
		return nil
	}

	delete(r.sessions, token)
	r.removeMemberToken(session.MemberID, token)
	return nil
}

func (r *MemorySessionRepo) DeleteByMember(ctx context.Context, memberID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, token := range r.byMember[memberID] {
		delete(r.sessions, token)
	}
	delete(r.byMember, memberID)
	return nil
}

func (r *MemorySessionRepo) DeleteExpired(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for token, session := range r.sessions {
		if session.IsExpired() {
			delete(r.sessions, token)
			r.removeMemberToken(session.MemberID, token)
			count++
		}
	}
	return count, nil
}

// removeMemberToken removes one token from the member index. Caller holds the lock.
func (r *MemorySessionRepo) removeMemberToken(memberID, token string) {
	tokens := r.byMember[memberID]
	for i, t := range tokens {
		if t == token {
			r.byMember[memberID] = append(tokens[:i], tokens[i+1:]...)
			break
		}
	}
	if len(r.byMember[memberID]) == 0 {
		delete(r.byMember, memberID)
	}
}

var _ SessionRepo = (*MemorySessionRepo)(nil)
