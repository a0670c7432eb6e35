// Package client implements the API client used by terminal tooling: an
// HTTP client, a merge layer for the three message sources (snapshot, push,
// local echo), and a transport adapter that degrades from WebSocket to
// polling.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cem-sucu/ia-familiale/internal/api"
	"github.com/cem-sucu/ia-familiale/internal/store"
	"github.com/cem-sucu/ia-familiale/internal/trigger"
)

var (
	// ErrAuthExpired is returned when the session is no longer valid.
	ErrAuthExpired = errors.New("session expired or invalid")

	// ErrInvalidTransition is returned when a message can no longer be
	// edited or canceled.
	ErrInvalidTransition = errors.New("message is no longer pending")

	// ErrBackendUnavailable is returned for network failures and 5xx
	// responses.
	ErrBackendUnavailable = errors.New("backend unavailable")
)

// Client is an authenticated HTTP client for the API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      string
	member     *store.Member
}

// New creates a client for the given base URL, e.g. "http://localhost:8787".
func New(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// Token returns the current session token.
func (c *Client) Token() string { return c.token }

// Member returns the member returned by the last successful Login.
func (c *Client) Member() *store.Member { return c.member }

// SetToken installs an existing session token.
func (c *Client) SetToken(token string) { c.token = token }

// do performs a request and decodes the response into out (when non-nil).
// Error mapping: 401 → ErrAuthExpired, 409 → ErrInvalidTransition,
// network errors and 5xx → ErrBackendUnavailable; other error statuses
// surface the server's message.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return ErrAuthExpired
	case resp.StatusCode == http.StatusConflict:
		return ErrInvalidTransition
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: status %d", ErrBackendUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		var envelope api.ErrorEnvelope
		if err := json.NewDecoder(resp.Body).Decode(&envelope); err == nil && envelope.Error.Message != "" {
			return fmt.Errorf("%s (%s)", envelope.Error.Message, envelope.Error.ReasonCode)
		}
		return fmt.Errorf("request failed with status %d", resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// Login authenticates and stores the session token on the client.
func (c *Client) Login(ctx context.Context, memberID, password string) error {
	var resp api.LoginResponse
	err := c.do(ctx, http.MethodPost, "/api/auth/login", map[string]string{
		"id":       memberID,
		"password": password,
	}, &resp)
	if err != nil {
		// A 401 on login means bad credentials, not an expired session.
		if errors.Is(err, ErrAuthExpired) {
			return errors.New("invalid credentials")
		}
		return err
	}
	c.token = resp.Token
	c.member = resp.Member
	return nil
}

// Register creates a new member account.
func (c *Client) Register(ctx context.Context, memberID, name, password string) error {
	return c.do(ctx, http.MethodPost, "/api/auth/register", map[string]string{
		"id":       memberID,
		"name":     name,
		"password": password,
	}, nil)
}

// Members lists the members of the caller's circle.
func (c *Client) Members(ctx context.Context) ([]*store.Member, error) {
	var members []*store.Member
	if err := c.do(ctx, http.MethodGet, "/api/members", nil, &members); err != nil {
		return nil, err
	}
	return members, nil
}

// Snapshot fetches the caller's full visible message list.
func (c *Client) Snapshot(ctx context.Context) ([]*store.Message, error) {
	var messages []*store.Message
	if err := c.do(ctx, http.MethodGet, "/api/messages/", nil, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

// Vocabulary fetches the state and trigger vocabulary.
func (c *Client) Vocabulary(ctx context.Context) ([]trigger.State, []trigger.Trigger, error) {
	var vocab struct {
		States   []trigger.State   `json:"states"`
		Triggers []trigger.Trigger `json:"triggers"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/vocabulary", nil, &vocab); err != nil {
		return nil, nil, err
	}
	return vocab.States, vocab.Triggers, nil
}

// Send creates a message. An empty recipientID addresses the whole circle.
func (c *Client) Send(ctx context.Context, recipientID, text, triggerID string) (*store.Message, error) {
	var msg store.Message
	err := c.do(ctx, http.MethodPost, "/api/messages/", map[string]string{
		"recipient_id": recipientID,
		"text":         text,
		"trigger":      triggerID,
	}, &msg)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// Edit rewrites the text of a pending message.
func (c *Client) Edit(ctx context.Context, messageID, text string) (*store.Message, error) {
	var msg store.Message
	err := c.do(ctx, http.MethodPatch, "/api/messages/"+messageID, map[string]string{
		"text": text,
	}, &msg)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// Cancel withdraws a pending message.
func (c *Client) Cancel(ctx context.Context, messageID string) (*store.Message, error) {
	var msg store.Message
	err := c.do(ctx, http.MethodDelete, "/api/messages/"+messageID, nil, &msg)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// ChangeState updates the caller's own state and returns how many deferred
// messages the transition released.
func (c *Client) ChangeState(ctx context.Context, stateID string) (int, error) {
	var resp struct {
		State          string `json:"state"`
		DeliveredCount int    `json:"delivered_count"`
	}
	memberID := ""
	if c.member != nil {
		memberID = c.member.ID
	}
	err := c.do(ctx, http.MethodPost, "/api/members/"+memberID+"/state", map[string]string{
		"state": stateID,
	}, &resp)
	if err != nil {
		return 0, err
	}
	return resp.DeliveredCount, nil
}

// SavePushToken registers a device push token for the caller.
func (c *Client) SavePushToken(ctx context.Context, token string) error {
	memberID := ""
	if c.member != nil {
		memberID = c.member.ID
	}
	return c.do(ctx, http.MethodPost, "/api/members/"+memberID+"/push-token", map[string]string{
		"token": token,
	}, nil)
}
