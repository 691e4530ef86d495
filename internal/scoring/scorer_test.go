package scoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/marketsafe/kestrel/internal/anomaly"
	"github.com/marketsafe/kestrel/internal/domain"
)

var testNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

type fakeAccounts struct {
	created map[string]time.Time
	err     error
}

func (f *fakeAccounts) GetAccountCreatedAt(ctx context.Context, creatorID string) (time.Time, error) {
	if f.err != nil {
		return time.Time{}, f.err
	}
	createdAt, ok := f.created[creatorID]
	if !ok {
		return time.Time{}, domain.ErrNotFound
	}
	return createdAt, nil
}

func newTestScorer(accounts domain.Accounts) *Scorer {
	detector := anomaly.NewDetector(nil)
	detector.Now = func() time.Time { return testNow }

	s := NewScorer(accounts, detector)
	s.Now = func() time.Time { return testNow }
	return s
}

func tx(txType domain.TransactionType, amount int64, age time.Duration) *domain.Transaction {
	return &domain.Transaction{
		ID:        "tx",
		CreatorID: "creator-1",
		Type:      txType,
		Amount:    amount,
		CreatedAt: testNow.Add(-age),
	}
}

func factorScore(score *domain.FraudScore, name string) (float64, bool) {
	for _, f := range score.Factors {
		if f.Factor == name {
			return f.Score, true
		}
	}
	return 0, false
}

func TestScoreEmptyWindow(t *testing.T) {
	s := newTestScorer(&fakeAccounts{})

	score := s.Score(context.Background(), "creator-1", nil)
	if score.OverallScore != 0 {
		t.Errorf("expected 0 for an empty window, got %f", score.OverallScore)
	}
	if score.RiskLevel != domain.RiskLow {
		t.Errorf("expected low risk, got %s", score.RiskLevel)
	}
	if len(score.Factors) != 4 {
		t.Errorf("expected 4 contributing factors, got %d", len(score.Factors))
	}
}

func TestAccountAgeFactorSaturates(t *testing.T) {
	// Unknown account with royalties: age degrades to zero and the factor
	// saturates at its full weight of 30.
	s := newTestScorer(&fakeAccounts{})

	score := s.Score(context.Background(), "ghost", []*domain.Transaction{
		tx(domain.TxRoyalty, 500, time.Hour),
	})

	got, ok := factorScore(score, FactorAccountAge)
	if !ok {
		t.Fatal("account_age_earnings factor missing")
	}
	if got != 30 {
		t.Errorf("expected saturated factor of 30, got %f", got)
	}
}

func TestAccountAgeFactorScales(t *testing.T) {
	// 10-day-old account earning 250 credits: 25/day against the 50/day
	// baseline gives half the weight.
	accounts := &fakeAccounts{created: map[string]time.Time{
		"creator-1": testNow.AddDate(0, 0, -10),
	}}
	s := newTestScorer(accounts)

	score := s.Score(context.Background(), "creator-1", []*domain.Transaction{
		tx(domain.TxRoyalty, 250, time.Hour),
	})

	got, _ := factorScore(score, FactorAccountAge)
	if got != 15 {
		t.Errorf("expected factor of 15, got %f", got)
	}
}

func TestAccountAgeFactorNoRoyalties(t *testing.T) {
	s := newTestScorer(&fakeAccounts{})

	score := s.Score(context.Background(), "creator-1", []*domain.Transaction{
		tx(domain.TxPayout, 500, time.Hour),
	})

	got, _ := factorScore(score, FactorAccountAge)
	if got != 0 {
		t.Errorf("payouts alone must not feed the earnings factor, got %f", got)
	}
}

func TestAccountLookupFailureDegrades(t *testing.T) {
	// A hard store failure degrades age to zero instead of failing the
	// score; with royalties present the factor saturates.
	s := newTestScorer(&fakeAccounts{err: errors.New("store is down")})

	score := s.Score(context.Background(), "creator-1", []*domain.Transaction{
		tx(domain.TxRoyalty, 100, time.Hour),
	})

	got, _ := factorScore(score, FactorAccountAge)
	if got != 30 {
		t.Errorf("expected degraded factor to saturate at 30, got %f", got)
	}
}

func TestOverallScoreClamped(t *testing.T) {
	// Build a window that maxes every factor: unknown account with heavy
	// royalties, wild amount variance, instant payouts, and outliers.
	s := newTestScorer(&fakeAccounts{})

	base := testNow.Add(-6 * time.Hour)
	txs := []*domain.Transaction{
		{ID: "r1", CreatorID: "c", Type: domain.TxRoyalty, Amount: 1, CreatedAt: base},
		{ID: "r2", CreatorID: "c", Type: domain.TxRoyalty, Amount: 1, CreatedAt: base},
		{ID: "r3", CreatorID: "c", Type: domain.TxRoyalty, Amount: 1, CreatedAt: base},
		{ID: "r4", CreatorID: "c", Type: domain.TxRoyalty, Amount: 100000, CreatedAt: base},
		{ID: "p1", CreatorID: "c", Type: domain.TxPayout, Amount: 90000, CreatedAt: base.Add(10 * time.Minute)},
	}

	score := s.Score(context.Background(), "c", txs)
	if score.OverallScore > 100 {
		t.Errorf("overall score must be clamped to 100, got %f", score.OverallScore)
	}
	for _, f := range score.Factors {
		if f.Score < 0 || f.Score > f.Weight {
			t.Errorf("factor %s outside [0,%f]: %f", f.Factor, f.Weight, f.Score)
		}
	}
}

func TestRiskLevelBoundaries(t *testing.T) {
	cases := []struct {
		score float64
		want  domain.RiskLevel
	}{
		{0, domain.RiskLow},
		{25, domain.RiskLow},
		{25.1, domain.RiskMedium},
		{50, domain.RiskMedium},
		{50.1, domain.RiskHigh},
		{75, domain.RiskHigh},
		{75.1, domain.RiskCritical},
		{100, domain.RiskCritical},
	}

	for _, tc := range cases {
		if got := domain.RiskLevelForScore(tc.score); got != tc.want {
			t.Errorf("score %.1f: expected %s, got %s", tc.score, tc.want, got)
		}
	}
}

func TestScoreIdempotentWithFrozenClock(t *testing.T) {
	accounts := &fakeAccounts{created: map[string]time.Time{
		"creator-1": testNow.AddDate(0, 0, -10),
	}}
	s := newTestScorer(accounts)

	txs := []*domain.Transaction{
		tx(domain.TxRoyalty, 250, time.Hour),
		tx(domain.TxRoyalty, 80, 2*time.Hour),
		tx(domain.TxPayout, 100, 90*time.Minute),
	}

	first := s.Score(context.Background(), "creator-1", txs)
	second := s.Score(context.Background(), "creator-1", txs)

	if first.OverallScore != second.OverallScore {
		t.Errorf("scores differ with a frozen clock: %f vs %f", first.OverallScore, second.OverallScore)
	}
	if !first.LastCalculated.Equal(second.LastCalculated) {
		t.Errorf("timestamps differ with a frozen clock")
	}
}
