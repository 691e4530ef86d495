// Package enforce provides enforcement-side-effect implementations. The
// engine decides what action to request; these collaborators carry it to
// the account system.
package enforce

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/marketsafe/kestrel/internal/domain"
)

// LogEnforcer records requested actions in the structured log without
// touching any account. Used in Community tier and dry runs.
type LogEnforcer struct{}

// ApplyAction logs the requested mitigation and confirms it.
func (e *LogEnforcer) ApplyAction(ctx context.Context, creatorID string, action domain.Action) (string, error) {
	slog.Warn("enforcement action requested",
		"creator_id", creatorID,
		"action", action,
	)
	return fmt.Sprintf("requested %s for creator %s", action, creatorID), nil
}

// BusEnforcer publishes enforcement requests to the event bus, where the
// account service picks them up.
type BusEnforcer struct {
	bus domain.EventBus
}

// NewBusEnforcer creates a bus-backed enforcer.
func NewBusEnforcer(bus domain.EventBus) *BusEnforcer {
	return &BusEnforcer{bus: bus}
}

type actionEvent struct {
	CreatorID   string        `json:"creatorId"`
	Action      domain.Action `json:"action"`
	RequestedAt time.Time     `json:"requestedAt"`
}

// ApplyAction publishes the enforcement request.
func (e *BusEnforcer) ApplyAction(ctx context.Context, creatorID string, action domain.Action) (string, error) {
	payload, err := json.Marshal(actionEvent{
		CreatorID:   creatorID,
		Action:      action,
		RequestedAt: time.Now().UTC(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal action event: %w", err)
	}

	if err := e.bus.Publish(ctx, domain.TopicAction, payload); err != nil {
		return "", fmt.Errorf("failed to publish action event: %w", err)
	}

	return fmt.Sprintf("published %s request for creator %s", action, creatorID), nil
}
