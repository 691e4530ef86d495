// Package rules provides the built-in detection rule catalog, its
// evaluator, and the CEL engine for operator-defined expression rules.
package rules

import (
	"github.com/marketsafe/kestrel/internal/domain"
)

// DefaultCatalog returns the five shipped detection rules. Each rule can be
// disabled or re-parameterized independently before handing the catalog to
// the evaluator.
func DefaultCatalog() []domain.Rule {
	return []domain.Rule{
		{
			Kind:        domain.RuleLargeSingleTransaction,
			Severity:    domain.SeverityMedium,
			Enabled:     true,
			Threshold:   1000, // credits
			WindowHours: 1,
			Action:      domain.ActionFlag,
		},
		{
			Kind:        domain.RuleRapidPayouts,
			Severity:    domain.SeverityHigh,
			Enabled:     true,
			Threshold:   3, // payout count
			WindowHours: 24,
			Action:      domain.ActionSuspend,
		},
		{
			Kind:        domain.RuleNewAccountHighEarnings,
			Severity:    domain.SeverityHigh,
			Enabled:     true,
			Threshold:   500, // royalty credits
			WindowHours: 168,
			Action:      domain.ActionFlag,
		},
		{
			Kind:        domain.RuleRoundNumberPattern,
			Severity:    domain.SeverityLow,
			Enabled:     true,
			Threshold:   0.7, // fraction of round amounts
			WindowHours: 168,
			Action:      domain.ActionFlag,
		},
		{
			Kind:        domain.RuleVelocitySpike,
			Severity:    domain.SeverityMedium,
			Enabled:     true,
			Threshold:   5, // multiplier over baseline daily rate
			WindowHours: 24,
			Action:      domain.ActionFlag,
		},
	}
}
