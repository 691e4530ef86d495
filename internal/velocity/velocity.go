// Package velocity derives a creator's baseline transaction rate from
// ledger history.
package velocity

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/marketsafe/kestrel/internal/domain"
)

const (
	// The baseline window: trailing [30d, 1d) ago, divided by 29 days.
	baselineLookback = 30 * 24 * time.Hour
	baselineExclude  = 24 * time.Hour
	baselineDays     = 29.0

	cacheTTL = 10 * time.Minute
)

// Service computes normal transactions/day per creator, memoized in the
// cache so repeated scans do not re-count the same 30-day window.
type Service struct {
	ledger domain.Ledger
	cache  domain.Cache

	// Now is the clock used for the baseline window. Overridable in tests.
	Now func() time.Time
}

// NewService creates a velocity service. The cache is optional.
func NewService(ledger domain.Ledger, cache domain.Cache) *Service {
	return &Service{
		ledger: ledger,
		cache:  cache,
		Now:    time.Now,
	}
}

// NormalDailyRate returns the creator's baseline transactions/day over
// the trailing [30d, 1d) window. This is the BaselineRateFn consumed by
// the rule evaluator.
func (s *Service) NormalDailyRate(ctx context.Context, creatorID string) (float64, error) {
	if creatorID == "" {
		return 0, fmt.Errorf("creatorID is required")
	}

	cacheKey := "velocity:" + creatorID
	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, cacheKey); err == nil && cached != nil {
			if rate, err := strconv.ParseFloat(string(cached), 64); err == nil {
				return rate, nil
			}
		}
	}

	now := s.Now().UTC()
	from := now.Add(-baselineLookback)
	to := now.Add(-baselineExclude)

	count, err := s.ledger.CountTransactions(ctx, creatorID, from, to)
	if err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}

	rate := float64(count) / baselineDays

	if s.cache != nil {
		value := strconv.FormatFloat(rate, 'g', -1, 64)
		if err := s.cache.Set(ctx, cacheKey, []byte(value), cacheTTL); err != nil {
			slog.Debug("failed to cache baseline rate",
				"creator_id", creatorID,
				"error", err,
			)
		}
	}

	return rate, nil
}
