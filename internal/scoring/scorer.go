// Package scoring computes the composite 0-100 fraud score per creator
// from four weighted factors.
package scoring

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/marketsafe/kestrel/internal/anomaly"
	"github.com/marketsafe/kestrel/internal/domain"
	"github.com/marketsafe/kestrel/internal/stats"
)

// Factor weights. The four weighted factors sum to at most 100 before
// clamping.
const (
	weightAccountAge = 30.0
	weightPatterns   = 25.0
	weightPayouts    = 20.0
	weightVolume     = 25.0
	baselinePerDay   = 50.0 // credits/day considered normal earnings
	maxOverall       = 100.0
)

// Factor names reported in the contributing-factors breakdown.
const (
	FactorAccountAge = "account_age_earnings"
	FactorPatterns   = "transaction_patterns"
	FactorPayouts    = "payout_behavior"
	FactorVolume     = "volume_anomalies"
)

// Scorer combines the four weighted sub-scores into one composite score
// and a discrete risk level.
type Scorer struct {
	accounts domain.Accounts
	detector *anomaly.Detector

	// Now is the clock used for score timestamps. Overridable in tests.
	Now func() time.Time
}

// NewScorer creates a scorer over the given account store and detector.
func NewScorer(accounts domain.Accounts, detector *anomaly.Detector) *Scorer {
	return &Scorer{
		accounts: accounts,
		detector: detector,
		Now:      time.Now,
	}
}

// Score computes one creator's fraud score from their windowed
// transactions. A failed account lookup degrades that factor to zero
// rather than failing the score.
func (s *Scorer) Score(ctx context.Context, creatorID string, txs []*domain.Transaction) *domain.FraudScore {
	factors := []domain.ScoreFactor{
		{
			Factor: FactorAccountAge,
			Score:  s.accountAgeFactor(ctx, creatorID, txs),
			Weight: weightAccountAge,
		},
		{
			Factor: FactorPatterns,
			Score:  stats.Clamp(s.detector.PatternVariance(txs), 0, 1) * weightPatterns,
			Weight: weightPatterns,
		},
		{
			Factor: FactorPayouts,
			Score:  stats.Clamp(s.detector.PayoutCorrelation(txs), 0, 1) * weightPayouts,
			Weight: weightPayouts,
		},
		{
			Factor: FactorVolume,
			Score:  stats.Clamp(s.detector.VolumeAnomaly(txs), 0, 1) * weightVolume,
			Weight: weightVolume,
		},
	}

	overall := 0.0
	for i := range factors {
		factors[i].Score = stats.Clamp(factors[i].Score, 0, factors[i].Weight)
		overall += factors[i].Score
	}
	if overall > maxOverall {
		overall = maxOverall
	}

	return &domain.FraudScore{
		CreatorID:      creatorID,
		OverallScore:   overall,
		RiskLevel:      domain.RiskLevelForScore(overall),
		Factors:        factors,
		LastCalculated: s.Now().UTC(),
	}
}

// accountAgeFactor scores royalty earnings per day of account age against
// a baseline of 50 credits/day. A zero-day-old account with any royalties
// saturates the factor; without royalties it contributes nothing.
func (s *Scorer) accountAgeFactor(ctx context.Context, creatorID string, txs []*domain.Transaction) float64 {
	var royaltySum int64
	for _, tx := range txs {
		if tx.Type == domain.TxRoyalty {
			royaltySum += tx.Amount
		}
	}
	if royaltySum == 0 {
		return 0
	}

	ageDays := s.accountAgeDays(ctx, creatorID)
	if ageDays <= 0 {
		return weightAccountAge
	}

	earningsPerDay := float64(royaltySum) / float64(ageDays)
	return stats.Clamp(earningsPerDay/baselinePerDay, 0, 1) * weightAccountAge
}

// accountAgeDays degrades to zero on any lookup failure.
func (s *Scorer) accountAgeDays(ctx context.Context, creatorID string) int {
	createdAt, err := s.accounts.GetAccountCreatedAt(ctx, creatorID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			slog.Warn("account age lookup failed",
				"creator_id", creatorID,
				"error", err,
			)
		}
		return 0
	}

	age := int(s.Now().UTC().Sub(createdAt).Hours() / 24)
	if age < 0 {
		age = 0
	}
	return age
}
