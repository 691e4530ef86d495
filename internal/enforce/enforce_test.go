package enforce

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/marketsafe/kestrel/internal/bus"
	"github.com/marketsafe/kestrel/internal/domain"
)

func TestLogEnforcerConfirms(t *testing.T) {
	e := &LogEnforcer{}

	confirmation, err := e.ApplyAction(context.Background(), "creator-1", domain.ActionSuspend)
	if err != nil {
		t.Fatalf("ApplyAction failed: %v", err)
	}
	if !strings.Contains(confirmation, "suspend") || !strings.Contains(confirmation, "creator-1") {
		t.Errorf("confirmation missing detail: %s", confirmation)
	}
}

func TestBusEnforcerPublishes(t *testing.T) {
	b := bus.NewChannelBus(10)
	defer b.Close()

	received := make(chan *domain.Message, 1)
	if _, err := b.Subscribe(context.Background(), domain.TopicAction, func(ctx context.Context, msg *domain.Message) error {
		received <- msg
		return nil
	}); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	e := NewBusEnforcer(b)
	confirmation, err := e.ApplyAction(context.Background(), "creator-1", domain.ActionBlock)
	if err != nil {
		t.Fatalf("ApplyAction failed: %v", err)
	}
	if !strings.Contains(confirmation, "block") {
		t.Errorf("confirmation missing action: %s", confirmation)
	}

	var msg *domain.Message
	select {
	case msg = <-received:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for action event")
	}

	var event struct {
		CreatorID string        `json:"creatorId"`
		Action    domain.Action `json:"action"`
	}
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		t.Fatalf("bad event payload: %v", err)
	}
	if event.CreatorID != "creator-1" || event.Action != domain.ActionBlock {
		t.Errorf("unexpected event: %+v", event)
	}
}
