package velocity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/marketsafe/kestrel/internal/domain"
)

var testNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

type fakeLedger struct {
	count int64
	calls int
	err   error

	lastFrom time.Time
	lastTo   time.Time
}

func (f *fakeLedger) ListTransactions(ctx context.Context, since, until time.Time, creatorID string) ([]*domain.Transaction, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeLedger) CountTransactions(ctx context.Context, creatorID string, from, to time.Time) (int64, error) {
	f.calls++
	f.lastFrom = from
	f.lastTo = to
	if f.err != nil {
		return 0, f.err
	}
	return f.count, nil
}

type memCache struct {
	values map[string][]byte
}

func newMemCache() *memCache {
	return &memCache{values: make(map[string][]byte)}
}

func (c *memCache) Get(ctx context.Context, key string) ([]byte, error) {
	return c.values[key], nil
}

func (c *memCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.values[key] = value
	return nil
}

func (c *memCache) Delete(ctx context.Context, key string) error {
	delete(c.values, key)
	return nil
}

func (c *memCache) IncrementCounter(ctx context.Context, key string, window time.Duration) (int64, error) {
	return 0, errors.New("not implemented")
}

func (c *memCache) Ping(ctx context.Context) error { return nil }
func (c *memCache) Close() error                   { return nil }

func newTestService(ledger *fakeLedger, cache domain.Cache) *Service {
	s := NewService(ledger, cache)
	s.Now = func() time.Time { return testNow }
	return s
}

func TestNormalDailyRate(t *testing.T) {
	ledger := &fakeLedger{count: 58}
	s := newTestService(ledger, nil)

	rate, err := s.NormalDailyRate(context.Background(), "creator-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rate != 2 {
		t.Errorf("expected 58/29 = 2 transactions/day, got %f", rate)
	}

	// Window excludes the most recent day so an ongoing burst does not
	// inflate its own baseline.
	wantFrom := testNow.Add(-30 * 24 * time.Hour)
	wantTo := testNow.Add(-24 * time.Hour)
	if !ledger.lastFrom.Equal(wantFrom) || !ledger.lastTo.Equal(wantTo) {
		t.Errorf("wrong window: [%v, %v), want [%v, %v)", ledger.lastFrom, ledger.lastTo, wantFrom, wantTo)
	}
}

func TestNormalDailyRateCached(t *testing.T) {
	ledger := &fakeLedger{count: 29}
	s := newTestService(ledger, newMemCache())

	first, err := s.NormalDailyRate(context.Background(), "creator-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := s.NormalDailyRate(context.Background(), "creator-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if first != second {
		t.Errorf("cached rate differs: %f vs %f", first, second)
	}
	if ledger.calls != 1 {
		t.Errorf("expected 1 ledger count, got %d", ledger.calls)
	}
}

func TestNormalDailyRateRequiresCreator(t *testing.T) {
	s := newTestService(&fakeLedger{}, nil)

	if _, err := s.NormalDailyRate(context.Background(), ""); err == nil {
		t.Error("expected error for empty creator ID")
	}
}

func TestNormalDailyRateLedgerFailure(t *testing.T) {
	ledger := &fakeLedger{err: errors.New("ledger unavailable")}
	s := newTestService(ledger, nil)

	if _, err := s.NormalDailyRate(context.Background(), "creator-1"); err == nil {
		t.Error("expected error when the count fails")
	}
}
