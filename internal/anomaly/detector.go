// Package anomaly implements the statistical detectors: timing regularity,
// transaction-pattern variance, payout correlation, volume anomalies, and
// pairwise cross-creator similarity.
package anomaly

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/marketsafe/kestrel/internal/domain"
	"github.com/marketsafe/kestrel/internal/stats"
)

const (
	// minTimingSample is the minimum transaction count for the timing
	// histogram to be meaningful.
	minTimingSample = 5

	// timingVarianceCeiling is the bucket-count variance below which
	// timing is considered machine-regular.
	timingVarianceCeiling = 2.0

	// suspicionThreshold is the score above which a detector emits a
	// SuspiciousActivity.
	suspicionThreshold = 0.7

	// similarityThreshold is the Jaccard value both dimensions must
	// exceed for a multi-account alert.
	similarityThreshold = 0.8

	// payoutLag is how soon after a royalty a payout looks suspicious.
	payoutLag = time.Hour
)

// Detector runs the per-creator and cross-creator statistical heuristics.
type Detector struct {
	coordination CoordinationStrategy

	// Now is the clock used for finding timestamps. Overridable in tests.
	Now func() time.Time
}

// NewDetector creates a detector. A nil strategy falls back to the
// always-zero coordination detector.
func NewDetector(coordination CoordinationStrategy) *Detector {
	if coordination == nil {
		coordination = ZeroCoordination{}
	}
	return &Detector{
		coordination: coordination,
		Now:          time.Now,
	}
}

// Detect runs the per-creator activity detectors.
func (d *Detector) Detect(creatorID string, txs []*domain.Transaction) []*domain.SuspiciousActivity {
	var activities []*domain.SuspiciousActivity

	if a := d.detectTimingPattern(creatorID, txs); a != nil {
		activities = append(activities, a)
	}
	if a := d.detectCoordination(creatorID, txs); a != nil {
		activities = append(activities, a)
	}

	return activities
}

// detectTimingPattern builds a 24-bucket hour-of-day histogram and flags
// creators whose bucket counts have near-zero variance, a signature of
// scripted activity.
func (d *Detector) detectTimingPattern(creatorID string, txs []*domain.Transaction) *domain.SuspiciousActivity {
	if len(txs) < minTimingSample {
		return nil
	}

	var buckets [24]float64
	histogram := make(map[int]int)
	for _, tx := range txs {
		hour := tx.CreatedAt.UTC().Hour()
		buckets[hour]++
		histogram[hour]++
	}

	variance := stats.Variance(buckets[:])

	suspicion := 0.0
	if variance < timingVarianceCeiling {
		suspicion = 0.8
	}
	if suspicion <= suspicionThreshold {
		return nil
	}

	return &domain.SuspiciousActivity{
		ID:          uuid.New().String(),
		CreatorID:   creatorID,
		Type:        domain.ActivityTimingPattern,
		Description: fmt.Sprintf("transaction timing across %d transactions is unusually regular", len(txs)),
		RiskScore:   100 * suspicion,
		Evidence: map[string]any{
			"histogram": histogram,
			"variance":  variance,
		},
		DetectedAt: d.Now().UTC(),
		Status:     domain.StatusNew,
	}
}

// detectCoordination delegates to the pluggable strategy. The default
// strategy always scores zero.
func (d *Detector) detectCoordination(creatorID string, txs []*domain.Transaction) *domain.SuspiciousActivity {
	suspicion := d.coordination.Score(creatorID, txs)
	if suspicion <= suspicionThreshold {
		return nil
	}

	return &domain.SuspiciousActivity{
		ID:          uuid.New().String(),
		CreatorID:   creatorID,
		Type:        domain.ActivityCoordinated,
		Description: "activity appears coordinated with other accounts",
		RiskScore:   100 * suspicion,
		DetectedAt:  d.Now().UTC(),
		Status:      domain.StatusNew,
	}
}

// PatternVariance returns variance(amounts)/mean(amounts) clamped to
// [0,1], or 0 when the mean is zero. Used as a fraud-score factor.
func (d *Detector) PatternVariance(txs []*domain.Transaction) float64 {
	amounts := amountValues(txs)
	mean := stats.Mean(amounts)
	if mean == 0 {
		return 0
	}
	return stats.Clamp(stats.Variance(amounts)/mean, 0, 1)
}

// PayoutCorrelation returns the fraction of payouts that land within one
// hour after some royalty, a pay-and-immediately-withdraw signature.
// Returns 0 when there are no royalties.
func (d *Detector) PayoutCorrelation(txs []*domain.Transaction) float64 {
	var royalties, payouts []*domain.Transaction
	for _, tx := range txs {
		switch tx.Type {
		case domain.TxRoyalty:
			royalties = append(royalties, tx)
		case domain.TxPayout:
			payouts = append(payouts, tx)
		}
	}
	if len(royalties) == 0 || len(payouts) == 0 {
		return 0
	}

	correlated := 0
	for _, payout := range payouts {
		for _, royalty := range royalties {
			delta := payout.CreatedAt.Sub(royalty.CreatedAt)
			if delta >= 0 && delta <= payoutLag {
				correlated++
				break
			}
		}
	}

	return stats.Ratio(correlated, len(payouts))
}

// VolumeAnomaly returns the fraction of transactions whose amount exceeds
// three times the creator's mean. Requires at least three transactions.
func (d *Detector) VolumeAnomaly(txs []*domain.Transaction) float64 {
	if len(txs) < 3 {
		return 0
	}

	amounts := amountValues(txs)
	mean := stats.Mean(amounts)

	outliers := 0
	for _, amount := range amounts {
		if amount > 3*mean {
			outliers++
		}
	}

	return stats.Ratio(outliers, len(txs))
}

// CrossCreatorAlerts compares every unordered pair of creators by Jaccard
// similarity over raw amount sets and hour-of-day sets, and raises a
// multi-account alert when both exceed the similarity threshold.
//
// This is O(n²) in creator count per scan, acceptable at marketplace
// scale.
func (d *Detector) CrossCreatorAlerts(byCreator map[string][]*domain.Transaction) []*domain.Alert {
	creators := make([]string, 0, len(byCreator))
	for id := range byCreator {
		creators = append(creators, id)
	}
	sort.Strings(creators)

	var alerts []*domain.Alert
	for i := 0; i < len(creators); i++ {
		for j := i + 1; j < len(creators); j++ {
			a, b := creators[i], creators[j]

			amountSim := stats.Jaccard(amountSet(byCreator[a]), amountSet(byCreator[b]))
			hourSim := stats.Jaccard(hourSet(byCreator[a]), hourSet(byCreator[b]))
			if amountSim <= similarityThreshold || hourSim <= similarityThreshold {
				continue
			}

			alerts = append(alerts, &domain.Alert{
				ID:          uuid.New().String(),
				Type:        domain.AlertMultiAccount,
				Severity:    domain.SeverityHigh,
				CreatorID:   a,
				Description: fmt.Sprintf("transaction behavior of %s closely mirrors %s", a, b),
				Evidence: map[string]any{
					"creator_a":         a,
					"creator_b":         b,
					"amount_similarity": amountSim,
					"hour_similarity":   hourSim,
				},
				DetectedAt: d.Now().UTC(),
				Status:     domain.StatusNew,
				AutoAction: domain.ActionFlag,
			})
		}
	}

	return alerts
}

func amountValues(txs []*domain.Transaction) []float64 {
	amounts := make([]float64, len(txs))
	for i, tx := range txs {
		amounts[i] = float64(tx.Amount)
	}
	return amounts
}

func amountSet(txs []*domain.Transaction) map[int64]struct{} {
	amounts := make([]int64, len(txs))
	for i, tx := range txs {
		amounts[i] = tx.Amount
	}
	return stats.Set(amounts)
}

func hourSet(txs []*domain.Transaction) map[int]struct{} {
	hours := make([]int, len(txs))
	for i, tx := range txs {
		hours[i] = tx.CreatedAt.UTC().Hour()
	}
	return stats.Set(hours)
}
