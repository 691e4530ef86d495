package audit

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/marketsafe/kestrel/internal/bus"
	"github.com/marketsafe/kestrel/internal/domain"
)

// syncBuffer guards the log buffer: the bus delivers on its own goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestRecorderLogsPublishedEvents(t *testing.T) {
	var buf syncBuffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	defer slog.SetDefault(prev)

	b := bus.NewChannelBus(16)
	defer b.Close()

	rec := NewRecorder(b)
	if err := rec.Start(context.Background()); err != nil {
		t.Fatalf("failed to start recorder: %v", err)
	}
	defer rec.Stop()

	if err := b.Publish(context.Background(), domain.TopicAlert, []byte(`{"id":"alert-1"}`)); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	// Delivery is asynchronous; poll with a deadline.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		out := buf.String()
		if strings.Contains(out, domain.TopicAlert) && strings.Contains(out, "alert-1") {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("alert event never reached the audit log: %s", buf.String())
}

func TestRecorderStartFailsOnClosedBus(t *testing.T) {
	b := bus.NewChannelBus(16)
	b.Close()

	rec := NewRecorder(b)
	if err := rec.Start(context.Background()); err == nil {
		t.Fatal("expected error starting recorder on a closed bus")
	}
}
