package rules

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/uuid"
	"github.com/marketsafe/kestrel/internal/domain"
)

// CreatorSnapshot holds the per-creator window aggregates a custom rule
// expression can reference.
type CreatorSnapshot struct {
	CreatorID      string
	TxCount        int64
	RoyaltySum     int64
	RoyaltyCount   int64
	PayoutSum      int64
	PayoutCount    int64
	MaxAmount      int64
	MeanAmount     float64
	AccountAgeDays int64
	DailyVelocity  float64
}

// Snapshot computes the window aggregates for one creator.
func Snapshot(creatorID string, txs []*domain.Transaction, accountAgeDays int, dailyVelocity float64) *CreatorSnapshot {
	snap := &CreatorSnapshot{
		CreatorID:      creatorID,
		TxCount:        int64(len(txs)),
		AccountAgeDays: int64(accountAgeDays),
		DailyVelocity:  dailyVelocity,
	}

	var total int64
	for _, tx := range txs {
		total += tx.Amount
		if tx.Amount > snap.MaxAmount {
			snap.MaxAmount = tx.Amount
		}
		switch tx.Type {
		case domain.TxRoyalty:
			snap.RoyaltySum += tx.Amount
			snap.RoyaltyCount++
		case domain.TxPayout:
			snap.PayoutSum += tx.Amount
			snap.PayoutCount++
		}
	}
	if len(txs) > 0 {
		snap.MeanAmount = float64(total) / float64(len(txs))
	}
	return snap
}

// Engine is the CEL-based evaluator for operator-defined expression rules.
type Engine struct {
	mu            sync.RWMutex
	env           *cel.Env
	compiledRules map[string]*CompiledRule

	// Now is the clock used for alert timestamps. Overridable in tests.
	Now func() time.Time
}

// CompiledRule holds a pre-compiled CEL program.
type CompiledRule struct {
	Config  *domain.CustomRule
	Program cel.Program
}

// NewEngine creates a custom-rule engine with the creator-snapshot
// variables declared.
func NewEngine() (*Engine, error) {
	env, err := cel.NewEnv(
		cel.Variable("creator_id", cel.StringType),
		cel.Variable("tx_count", cel.IntType),
		cel.Variable("royalty_sum", cel.IntType),
		cel.Variable("royalty_count", cel.IntType),
		cel.Variable("payout_sum", cel.IntType),
		cel.Variable("payout_count", cel.IntType),
		cel.Variable("max_amount", cel.IntType),
		cel.Variable("mean_amount", cel.DoubleType),
		cel.Variable("account_age_days", cel.IntType),
		cel.Variable("daily_velocity", cel.DoubleType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:           env,
		compiledRules: make(map[string]*CompiledRule),
		Now:           time.Now,
	}, nil
}

// ValidateRule compiles a rule without mutating loaded engine rules.
func (e *Engine) ValidateRule(cfg *domain.CustomRule) error {
	if cfg == nil {
		return fmt.Errorf("rule config is required")
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	_, err := e.compileRule(cfg)
	return err
}

// LoadRule compiles and loads a rule into the engine.
func (e *Engine) LoadRule(cfg *domain.CustomRule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	compiled, err := e.compileRule(cfg)
	if err != nil {
		return err
	}

	e.compiledRules[cfg.ID] = compiled
	return nil
}

// LoadRules compiles and loads the enabled rules of a set.
func (e *Engine) LoadRules(configs []*domain.CustomRule) error {
	for _, cfg := range configs {
		if cfg.Enabled {
			if err := e.LoadRule(cfg); err != nil {
				return err
			}
		}
	}
	return nil
}

// ReloadRules clears all existing rules and loads new ones.
func (e *Engine) ReloadRules(configs []*domain.CustomRule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	newRules := make(map[string]*CompiledRule)
	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}
		compiled, err := e.compileRule(cfg)
		if err != nil {
			return err
		}
		newRules[cfg.ID] = compiled
	}

	e.compiledRules = newRules
	return nil
}

// EvaluateCreator runs every loaded rule against one creator's snapshot.
// An evaluation failure in one rule is logged and skipped; remaining rules
// still run.
func (e *Engine) EvaluateCreator(ctx context.Context, snap *CreatorSnapshot) []*domain.Alert {
	e.mu.RLock()
	rules := make([]*CompiledRule, 0, len(e.compiledRules))
	for _, rule := range e.compiledRules {
		rules = append(rules, rule)
	}
	e.mu.RUnlock()

	if len(rules) == 0 {
		return nil
	}

	activation := map[string]any{
		"creator_id":       snap.CreatorID,
		"tx_count":         snap.TxCount,
		"royalty_sum":      snap.RoyaltySum,
		"royalty_count":    snap.RoyaltyCount,
		"payout_sum":       snap.PayoutSum,
		"payout_count":     snap.PayoutCount,
		"max_amount":       snap.MaxAmount,
		"mean_amount":      snap.MeanAmount,
		"account_age_days": snap.AccountAgeDays,
		"daily_velocity":   snap.DailyVelocity,
	}

	var alerts []*domain.Alert
	for _, rule := range rules {
		out, _, err := rule.Program.Eval(activation)
		if err != nil {
			slog.Error("custom rule evaluation failed",
				"rule_id", rule.Config.ID,
				"creator_id", snap.CreatorID,
				"error", err,
			)
			continue
		}

		fired, ok := out.(types.Bool)
		if !ok || !bool(fired) {
			continue
		}

		alerts = append(alerts, &domain.Alert{
			ID:          uuid.New().String(),
			Type:        domain.CustomRulePrefix + rule.Config.ID,
			Severity:    rule.Config.Severity,
			CreatorID:   snap.CreatorID,
			Description: fmt.Sprintf("%s: %s", rule.Config.Name, rule.Config.Expression),
			Evidence: map[string]any{
				"expression":  rule.Config.Expression,
				"tx_count":    snap.TxCount,
				"royalty_sum": snap.RoyaltySum,
				"payout_sum":  snap.PayoutSum,
			},
			DetectedAt: e.Now().UTC(),
			Status:     domain.StatusNew,
			AutoAction: rule.Config.Action,
		})
	}

	return alerts
}

// RulesCount returns the number of loaded rules.
func (e *Engine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiledRules)
}

// LoadedRules returns the currently loaded rule configurations.
func (e *Engine) LoadedRules() []*domain.CustomRule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rules := make([]*domain.CustomRule, 0, len(e.compiledRules))
	for _, compiled := range e.compiledRules {
		rules = append(rules, compiled.Config)
	}
	return rules
}

// Close cleans up the engine.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiledRules = make(map[string]*CompiledRule)
	return nil
}

func (e *Engine) compileRule(cfg *domain.CustomRule) (*CompiledRule, error) {
	ast, issues := e.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", cfg.ID, issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("rule %s: expression must return bool, got %s", cfg.ID, ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", cfg.ID, err)
	}

	return &CompiledRule{
		Config:  cfg,
		Program: program,
	}, nil
}
