// Package audit records pipeline events from the bus into the structured
// log, leaving a reviewable trail of every alert, enforcement action, and
// report without querying the store.
package audit

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/marketsafe/kestrel/internal/domain"
)

// Recorder subscribes to the pipeline topics and logs each event.
type Recorder struct {
	bus  domain.EventBus
	subs []domain.Subscription
}

// NewRecorder creates a recorder over the given bus.
func NewRecorder(bus domain.EventBus) *Recorder {
	return &Recorder{bus: bus}
}

// Start subscribes to the alert, action, and report topics. A failed
// subscription tears down any already established before returning.
func (r *Recorder) Start(ctx context.Context) error {
	topics := []string{domain.TopicAlert, domain.TopicAction, domain.TopicReport}
	for _, topic := range topics {
		sub, err := r.bus.Subscribe(ctx, topic, r.record)
		if err != nil {
			r.Stop()
			return fmt.Errorf("subscribe %s: %w", topic, err)
		}
		r.subs = append(r.subs, sub)
	}
	return nil
}

// Stop unsubscribes from all topics.
func (r *Recorder) Stop() {
	for _, sub := range r.subs {
		if err := sub.Unsubscribe(); err != nil {
			slog.Warn("audit unsubscribe failed", "topic", sub.Topic(), "error", err)
		}
	}
	r.subs = nil
}

func (r *Recorder) record(ctx context.Context, msg *domain.Message) error {
	slog.Info("audit event",
		"topic", msg.Topic,
		"message_id", msg.ID,
		"payload", string(msg.Payload),
	)
	return nil
}
