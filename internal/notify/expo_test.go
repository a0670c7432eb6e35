package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestExpoSenderPostsNotification(t *testing.T) {
	var got expoRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %q, want application/json", ct)
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("invalid request body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sender := NewExpoSender(ExpoSettings{Endpoint: server.URL}, nil)
	err := sender.Notify(context.Background(), "ExponentPushToken[abc]", "Maman", "Achète du pain")
	if err != nil {
		t.Fatalf("Notify: %v", err)
	}

	if got.To != "ExponentPushToken[abc]" {
		t.Errorf("to = %q, want the push token", got.To)
	}
	if !strings.Contains(got.Title, "Maman") {
		t.Errorf("title = %q, want it to contain the sender name", got.Title)
	}
	if got.Body != "Achète du pain" {
		t.Errorf("body = %q, want the message text", got.Body)
	}
}

func TestExpoSenderSkipsMembersWithoutToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("unexpected request for empty push token")
	}))
	defer server.Close()

	sender := NewExpoSender(ExpoSettings{Endpoint: server.URL}, nil)
	if err := sender.Notify(context.Background(), "", "Maman", "hello"); err != nil {
		t.Fatalf("Notify with empty token: %v", err)
	}
}

func TestExpoSenderReportsServiceErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	sender := NewExpoSender(ExpoSettings{Endpoint: server.URL}, nil)
	err := sender.Notify(context.Background(), "ExponentPushToken[abc]", "Papa", "hello")
	if err == nil {
		t.Fatal("expected an error for a 502 response")
	}
}
