package rules

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/marketsafe/kestrel/internal/domain"
	"github.com/marketsafe/kestrel/internal/stats"
)

// BaselineRateFn returns a creator's normal transactions/day. Lookup
// failures degrade to a zero baseline rather than failing the rule.
type BaselineRateFn func(ctx context.Context, creatorID string) (float64, error)

// Evaluator runs the built-in rule catalog over one creator's windowed
// transactions, producing at most one alert per rule per creator per scan.
type Evaluator struct {
	accounts domain.Accounts
	baseline BaselineRateFn
	catalog  []domain.Rule

	// Now is the clock used for window cutoffs. Overridable in tests.
	Now func() time.Time
}

// NewEvaluator creates an evaluator over the given catalog.
func NewEvaluator(accounts domain.Accounts, baseline BaselineRateFn, catalog []domain.Rule) *Evaluator {
	return &Evaluator{
		accounts: accounts,
		baseline: baseline,
		catalog:  catalog,
		Now:      time.Now,
	}
}

// Catalog returns the rules the evaluator runs.
func (e *Evaluator) Catalog() []domain.Rule {
	return e.catalog
}

// Evaluate runs every enabled rule for one creator. A failure in one rule
// is logged and treated as "no alert from this rule"; evaluation continues
// for the remaining rules.
func (e *Evaluator) Evaluate(ctx context.Context, creatorID string, txs []*domain.Transaction) []*domain.Alert {
	var alerts []*domain.Alert
	for _, rule := range e.catalog {
		if !rule.Enabled {
			continue
		}

		alert, err := e.evaluateRule(ctx, rule, creatorID, txs)
		if err != nil {
			slog.Error("rule evaluation failed",
				"rule", rule.Kind,
				"creator_id", creatorID,
				"error", err,
			)
			continue
		}
		if alert != nil {
			alerts = append(alerts, alert)
		}
	}
	return alerts
}

// evaluateRule dispatches on the rule kind. Each rule sees only the
// transactions inside its own window.
func (e *Evaluator) evaluateRule(ctx context.Context, rule domain.Rule, creatorID string, txs []*domain.Transaction) (*domain.Alert, error) {
	now := e.Now().UTC()
	windowed := inWindow(txs, now.Add(-time.Duration(rule.WindowHours)*time.Hour))

	switch rule.Kind {
	case domain.RuleLargeSingleTransaction:
		return e.largeSingleTransaction(rule, creatorID, windowed, now), nil
	case domain.RuleRapidPayouts:
		return e.rapidPayouts(rule, creatorID, windowed, now), nil
	case domain.RuleNewAccountHighEarnings:
		return e.newAccountHighEarnings(ctx, rule, creatorID, windowed, now)
	case domain.RuleRoundNumberPattern:
		return e.roundNumberPattern(rule, creatorID, windowed, now), nil
	case domain.RuleVelocitySpike:
		return e.velocitySpike(ctx, rule, creatorID, windowed, now)
	default:
		return nil, fmt.Errorf("unknown rule kind: %s", rule.Kind)
	}
}

// largeSingleTransaction fires on any royalty strictly above the threshold.
func (e *Evaluator) largeSingleTransaction(rule domain.Rule, creatorID string, txs []*domain.Transaction, now time.Time) *domain.Alert {
	for _, tx := range txs {
		if tx.Type != domain.TxRoyalty {
			continue
		}
		if float64(tx.Amount) > rule.Threshold {
			alert := e.newAlert(rule, creatorID, now)
			alert.Amount = tx.Amount
			alert.Description = fmt.Sprintf("royalty of %d credits exceeds the %.0f credit limit", tx.Amount, rule.Threshold)
			alert.Evidence = map[string]any{
				"transaction_id": tx.ID,
				"amount":         tx.Amount,
				"threshold":      rule.Threshold,
			}
			return alert
		}
	}
	return nil
}

// rapidPayouts fires when the payout count reaches the threshold.
func (e *Evaluator) rapidPayouts(rule domain.Rule, creatorID string, txs []*domain.Transaction, now time.Time) *domain.Alert {
	payouts := 0
	var total int64
	for _, tx := range txs {
		if tx.Type == domain.TxPayout {
			payouts++
			total += tx.Amount
		}
	}
	if float64(payouts) < rule.Threshold {
		return nil
	}

	alert := e.newAlert(rule, creatorID, now)
	alert.Amount = total
	alert.Description = fmt.Sprintf("%d payout transactions within %dh", payouts, rule.WindowHours)
	alert.Evidence = map[string]any{
		"payout_count": payouts,
		"payout_total": total,
		"threshold":    rule.Threshold,
	}
	return alert
}

// newAccountHighEarnings fires when a young account earns strictly more
// than the threshold in royalties. An unknown account counts as age zero.
func (e *Evaluator) newAccountHighEarnings(ctx context.Context, rule domain.Rule, creatorID string, txs []*domain.Transaction, now time.Time) (*domain.Alert, error) {
	ageDays, err := e.accountAgeDays(ctx, creatorID, now)
	if err != nil {
		return nil, err
	}

	maxAgeDays := rule.WindowHours / 24

	var royaltySum int64
	for _, tx := range txs {
		if tx.Type == domain.TxRoyalty {
			royaltySum += tx.Amount
		}
	}

	if ageDays > maxAgeDays || float64(royaltySum) <= rule.Threshold {
		return nil, nil
	}

	alert := e.newAlert(rule, creatorID, now)
	alert.Amount = royaltySum
	alert.Description = fmt.Sprintf("account is %d days old and earned %d credits in the last %dh", ageDays, royaltySum, rule.WindowHours)
	alert.Evidence = map[string]any{
		"account_age_days": ageDays,
		"royalty_sum":      royaltySum,
		"threshold":        rule.Threshold,
	}
	return alert, nil
}

// roundNumberPattern fires when the fraction of round amounts over 100
// credits reaches the threshold.
func (e *Evaluator) roundNumberPattern(rule domain.Rule, creatorID string, txs []*domain.Transaction, now time.Time) *domain.Alert {
	if len(txs) == 0 {
		return nil
	}

	round := 0
	for _, tx := range txs {
		if tx.Amount%100 == 0 && tx.Amount > 100 {
			round++
		}
	}

	fraction := stats.Ratio(round, len(txs))
	if fraction < rule.Threshold {
		return nil
	}

	alert := e.newAlert(rule, creatorID, now)
	alert.Description = fmt.Sprintf("%.0f%% of %d transactions are round amounts over 100 credits", fraction*100, len(txs))
	alert.Evidence = map[string]any{
		"round_count":    round,
		"total_count":    len(txs),
		"round_fraction": fraction,
		"threshold":      rule.Threshold,
	}
	return alert
}

// velocitySpike fires when the windowed daily rate exceeds the creator's
// baseline by the threshold multiplier. A zero baseline suppresses the
// rule entirely.
func (e *Evaluator) velocitySpike(ctx context.Context, rule domain.Rule, creatorID string, txs []*domain.Transaction, now time.Time) (*domain.Alert, error) {
	normal, err := e.baseline(ctx, creatorID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			normal = 0
		} else {
			return nil, err
		}
	}
	if normal <= 0 {
		return nil, nil
	}

	days := float64(rule.WindowHours) / 24
	rate := float64(len(txs)) / days
	if rate <= normal*rule.Threshold {
		return nil, nil
	}

	alert := e.newAlert(rule, creatorID, now)
	alert.Description = fmt.Sprintf("%.1f transactions/day against a baseline of %.1f/day", rate, normal)
	alert.Evidence = map[string]any{
		"window_rate":   rate,
		"baseline_rate": normal,
		"threshold":     rule.Threshold,
	}
	return alert, nil
}

func (e *Evaluator) newAlert(rule domain.Rule, creatorID string, now time.Time) *domain.Alert {
	return &domain.Alert{
		ID:         uuid.New().String(),
		Type:       string(rule.Kind),
		Severity:   rule.Severity,
		CreatorID:  creatorID,
		DetectedAt: now,
		Status:     domain.StatusNew,
		AutoAction: rule.Action,
	}
}

// accountAgeDays derives the whole-day account age. An unknown account is
// age zero, not an error.
func (e *Evaluator) accountAgeDays(ctx context.Context, creatorID string, now time.Time) (int, error) {
	createdAt, err := e.accounts.GetAccountCreatedAt(ctx, creatorID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}

	age := int(now.Sub(createdAt).Hours() / 24)
	if age < 0 {
		age = 0
	}
	return age, nil
}

// inWindow keeps transactions at or after the cutoff.
func inWindow(txs []*domain.Transaction, cutoff time.Time) []*domain.Transaction {
	var out []*domain.Transaction
	for _, tx := range txs {
		if !tx.CreatedAt.Before(cutoff) {
			out = append(out, tx)
		}
	}
	return out
}
