package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// DefaultExpoEndpoint is the public Expo push API.
const DefaultExpoEndpoint = "https://exp.host/--/api/v2/push/send"

// ExpoSettings configures the Expo push sender. Decoded from the
// [components.expo] table of the server configuration.
type ExpoSettings struct {
	Endpoint string `mapstructure:"endpoint"`
	Timeout  string `mapstructure:"timeout"`
}

// expoRequest is the payload accepted by the Expo push API.
type expoRequest struct {
	To    string `json:"to"`
	Title string `json:"title"`
	Body  string `json:"body"`
	Sound string `json:"sound"`
}

// ExpoSender delivers notifications through the Expo push service.
type ExpoSender struct {
	endpoint string
	client   *http.Client
	logger   *slog.Logger
}

// NewExpoSender creates an Expo push sender from settings. Zero-value
// settings fall back to the public endpoint and a 10s timeout.
func NewExpoSender(settings ExpoSettings, logger *slog.Logger) *ExpoSender {
	if logger == nil {
		logger = slog.Default()
	}
	endpoint := settings.Endpoint
	if endpoint == "" {
		endpoint = DefaultExpoEndpoint
	}
	timeout := 10 * time.Second
	if settings.Timeout != "" {
		if d, err := time.ParseDuration(settings.Timeout); err == nil {
			timeout = d
		}
	}
	return &ExpoSender{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		logger:   logger,
	}
}

// Notify posts one push notification. A member without a push token is
// skipped silently.
func (s *ExpoSender) Notify(ctx context.Context, pushToken, senderName, text string) error {
	if pushToken == "" {
		return nil
	}

	payload, err := json.Marshal(expoRequest{
		To:    pushToken,
		Title: fmt.Sprintf("Message de %s 💬", senderName),
		Body:  text,
		Sound: "default",
	})
	if err != nil {
		return fmt.Errorf("failed to marshal push payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("push request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("push service returned status %d", resp.StatusCode)
	}

	s.logger.Debug("push notification sent", "sender", senderName)
	return nil
}
