package domain

// Severity is the qualitative urgency of a finding.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank orders severities for comparison. Unknown severities rank lowest.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	}
	return 0
}

// Action is the mitigation a rule recommends. Kestrel requests actions;
// enforcement happens outside this engine.
type Action string

const (
	ActionFlag    Action = "flag"
	ActionSuspend Action = "suspend"
	ActionBlock   Action = "block"
)

// RuleKind identifies a built-in detection rule.
type RuleKind string

const (
	RuleLargeSingleTransaction RuleKind = "large_single_transaction"
	RuleRapidPayouts           RuleKind = "rapid_payouts"
	RuleNewAccountHighEarnings RuleKind = "new_account_high_earnings"
	RuleRoundNumberPattern     RuleKind = "round_number_pattern"
	RuleVelocitySpike          RuleKind = "velocity_spike"
)

// Rule is a configurable detection policy from the built-in catalog.
// Rules are data, not code: each can be toggled and re-parameterized
// independently, and the evaluator dispatches on Kind.
type Rule struct {
	Kind     RuleKind `json:"kind"`
	Severity Severity `json:"severity"`
	Enabled  bool     `json:"enabled"`

	// Threshold meaning depends on Kind: a credit amount for
	// large_single_transaction and new_account_high_earnings, a count for
	// rapid_payouts, a fraction for round_number_pattern, and a multiplier
	// over the baseline daily rate for velocity_spike.
	Threshold float64 `json:"threshold"`

	WindowHours int    `json:"windowHours"`
	Action      Action `json:"action"`
}

// CustomRule is an operator-defined expression rule evaluated against a
// creator's window aggregates. The expression is CEL and must yield a bool.
type CustomRule struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Expression  string   `json:"expression"`
	Severity    Severity `json:"severity"`
	Action      Action   `json:"action"`
	Enabled     bool     `json:"enabled"`
}
