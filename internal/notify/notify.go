// Package notify sends out-of-app notifications when a message is
// delivered while the recipient has no live connection.
package notify

import (
	"context"
	"log/slog"
)

// Notifier delivers a user-facing notification about a freshly delivered
// message.
type Notifier interface {
	Notify(ctx context.Context, pushToken, senderName, text string) error
}

// LogNotifier writes notifications to the log instead of an external
// service. Used in dev mode and as a fallback when no push provider is
// configured.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a notifier that only logs.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

// Notify logs the notification.
func (n *LogNotifier) Notify(_ context.Context, pushToken, senderName, text string) error {
	n.logger.Info("notification",
		"sender", senderName,
		"text", text,
		"has_token", pushToken != "",
	)
	return nil
}
