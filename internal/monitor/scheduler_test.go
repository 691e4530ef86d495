package monitor

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/marketsafe/kestrel/internal/domain"
)

// countingLedger counts window fetches so tests can observe cycles.
type countingLedger struct {
	fetches atomic.Int32
}

func (c *countingLedger) ListTransactions(ctx context.Context, since, until time.Time, creatorID string) ([]*domain.Transaction, error) {
	c.fetches.Add(1)
	return nil, nil
}

func (c *countingLedger) CountTransactions(ctx context.Context, creatorID string, from, to time.Time) (int64, error) {
	return 0, nil
}

func newSchedulerMonitor(t *testing.T, ledger domain.Ledger) *Monitor {
	t.Helper()
	base := newTestMonitor(t, &fakeLedger{}, nil, nil, nil, nil)
	base.deps.Ledger = ledger
	return base
}

func TestSchedulerRunsCycles(t *testing.T) {
	ledger := &countingLedger{}
	m := newSchedulerMonitor(t, ledger)

	s := NewScheduler(m, 20*time.Millisecond)
	s.Start()

	time.Sleep(90 * time.Millisecond)
	s.Stop()

	if got := ledger.fetches.Load(); got < 2 {
		t.Errorf("expected at least 2 scheduled cycles, got %d", got)
	}
}

func TestSchedulerDisabledWithoutInterval(t *testing.T) {
	ledger := &countingLedger{}
	m := newSchedulerMonitor(t, ledger)

	s := NewScheduler(m, 0)
	s.Start()
	time.Sleep(30 * time.Millisecond)
	s.Stop()

	if got := ledger.fetches.Load(); got != 0 {
		t.Errorf("disabled scheduler must not run cycles, got %d", got)
	}
}

func TestSchedulerStopIsIdempotentAfterDisabledStart(t *testing.T) {
	m := newSchedulerMonitor(t, &countingLedger{})

	s := NewScheduler(m, 0)
	s.Start()
	s.Stop()
	// Stop on a never-started loop must not hang.
}
