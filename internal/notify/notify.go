// Package notify delivers batched operator notifications.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/marketsafe/kestrel/internal/domain"
)

// New creates a notifier based on configuration.
func New(cfg domain.NotifierConfig) (domain.Notifier, error) {
	switch cfg.Type {
	case "log", "":
		return &LogNotifier{}, nil

	case "webhook":
		return NewWebhookNotifier(cfg.WebhookURL, cfg.WebhookTimeout)

	default:
		return nil, fmt.Errorf("unsupported notifier type: %s", cfg.Type)
	}
}

// LogNotifier writes notifications to the structured log. Used as the
// Community tier notifier and as a fallback in development.
type LogNotifier struct{}

// SendBatchAlert logs the notification.
func (n *LogNotifier) SendBatchAlert(ctx context.Context, subject, body string) error {
	slog.Warn("operator notification",
		"subject", subject,
		"body", body,
	)
	return nil
}
