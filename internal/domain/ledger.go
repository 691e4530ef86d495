package domain

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by stores when a record does not exist.
// Account lookups treat it as "age zero", not as a failure.
var ErrNotFound = errors.New("record not found")

// Ledger is the transaction query interface consumed by the engine.
type Ledger interface {
	// ListTransactions returns transactions in [since, until] ordered by
	// created_at descending. An empty creatorID selects all creators.
	ListTransactions(ctx context.Context, since, until time.Time, creatorID string) ([]*Transaction, error)

	// CountTransactions returns the number of a creator's transactions
	// in [from, to). Used for baseline velocity.
	CountTransactions(ctx context.Context, creatorID string, from, to time.Time) (int64, error)
}

// Accounts is the account-metadata interface consumed by the engine.
type Accounts interface {
	// GetAccountCreatedAt returns the creation time of a creator account.
	// Returns ErrNotFound when the account is unknown.
	GetAccountCreatedAt(ctx context.Context, creatorID string) (time.Time, error)
}

// RuleStore persists operator-defined expression rules.
type RuleStore interface {
	SaveRuleConfig(ctx context.Context, rule *CustomRule) error
	GetRuleConfig(ctx context.Context, ruleID string) (*CustomRule, error)
	ListRuleConfigs(ctx context.Context) ([]*CustomRule, error)
}

// Notifier delivers operator notifications. One batched notification is
// sent per cycle; failures are logged and never abort the cycle.
type Notifier interface {
	SendBatchAlert(ctx context.Context, subject, body string) error
}

// Enforcer applies a recommended mitigation to a creator account and
// returns a textual confirmation. The engine only requests actions; the
// actual account mutation is owned by the collaborator.
type Enforcer interface {
	ApplyAction(ctx context.Context, creatorID string, action Action) (string, error)
}
