// Package repository provides the SQL-backed ledger, account and rule
// stores.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/marketsafe/kestrel/internal/domain"
)

var (
	ErrInvalidInput = errors.New("invalid input")
)

// Store implements domain.Ledger, domain.Accounts and domain.RuleStore
// over database/sql. Works with both the SQLite and PostgreSQL drivers.
type Store struct {
	db     *sql.DB
	driver string
}

// New creates a new store based on configuration.
func New(cfg domain.StoreConfig) (*Store, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	store := &Store{
		db:     db,
		driver: cfg.Driver,
	}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

func (s *Store) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := s.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveTransaction stores a ledger record.
func (s *Store) SaveTransaction(ctx context.Context, tx *domain.Transaction) error {
	if tx.ID == "" || tx.CreatorID == "" {
		return fmt.Errorf("%w: id and creatorID are required", ErrInvalidInput)
	}
	if tx.Amount < 0 {
		return fmt.Errorf("%w: amount must be non-negative", ErrInvalidInput)
	}

	query := `
		INSERT INTO transactions (id, creator_id, type, amount, created_at)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, s.rebind(query),
		tx.ID, tx.CreatorID, string(tx.Type), tx.Amount, tx.CreatedAt,
	)
	return err
}

// ListTransactions returns transactions in [since, until] ordered by
// created_at descending. An empty creatorID selects all creators.
func (s *Store) ListTransactions(ctx context.Context, since, until time.Time, creatorID string) ([]*domain.Transaction, error) {
	query := `
		SELECT id, creator_id, type, amount, created_at
		FROM transactions
		WHERE created_at >= ? AND created_at <= ?
	`
	args := []any{since, until}

	if creatorID != "" {
		query += ` AND creator_id = ?`
		args = append(args, creatorID)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transactions []*domain.Transaction
	for rows.Next() {
		var tx domain.Transaction
		var txType string

		if err := rows.Scan(&tx.ID, &tx.CreatorID, &txType, &tx.Amount, &tx.CreatedAt); err != nil {
			return nil, err
		}
		tx.Type = domain.TransactionType(txType)
		transactions = append(transactions, &tx)
	}

	return transactions, rows.Err()
}

// CountTransactions returns the number of a creator's transactions in
// [from, to).
func (s *Store) CountTransactions(ctx context.Context, creatorID string, from, to time.Time) (int64, error) {
	if creatorID == "" {
		return 0, fmt.Errorf("%w: creatorID is required", ErrInvalidInput)
	}

	query := `
		SELECT COUNT(*) FROM transactions
		WHERE creator_id = ? AND created_at >= ? AND created_at < ?
	`

	var count int64
	err := s.db.QueryRowContext(ctx, s.rebind(query), creatorID, from, to).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}

	return count, nil
}

// SaveAccount records a creator account's creation time.
func (s *Store) SaveAccount(ctx context.Context, creatorID string, createdAt time.Time) error {
	if creatorID == "" {
		return fmt.Errorf("%w: creatorID is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO accounts (creator_id, created_at)
		VALUES (?, ?)
		ON CONFLICT(creator_id) DO UPDATE SET created_at = excluded.created_at
	`

	_, err := s.db.ExecContext(ctx, s.rebind(query), creatorID, createdAt)
	return err
}

// GetAccountCreatedAt returns the creation time of a creator account.
func (s *Store) GetAccountCreatedAt(ctx context.Context, creatorID string) (time.Time, error) {
	if creatorID == "" {
		return time.Time{}, fmt.Errorf("%w: creatorID is required", ErrInvalidInput)
	}

	query := `SELECT created_at FROM accounts WHERE creator_id = ?`

	var createdAt time.Time
	err := s.db.QueryRowContext(ctx, s.rebind(query), creatorID).Scan(&createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, domain.ErrNotFound
	}
	if err != nil {
		return time.Time{}, err
	}

	return createdAt, nil
}

// SaveRuleConfig stores a custom rule.
func (s *Store) SaveRuleConfig(ctx context.Context, rule *domain.CustomRule) error {
	if rule.ID == "" || rule.Expression == "" {
		return fmt.Errorf("%w: id and expression are required", ErrInvalidInput)
	}

	enabled := 0
	if rule.Enabled {
		enabled = 1
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO custom_rules (id, name, description, expression, severity, action, enabled, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			expression = excluded.expression,
			severity = excluded.severity,
			action = excluded.action,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := s.db.ExecContext(ctx, s.rebind(query),
		rule.ID, rule.Name, rule.Description, rule.Expression,
		string(rule.Severity), string(rule.Action), enabled, now, now,
	)
	return err
}

// GetRuleConfig retrieves a custom rule by ID.
func (s *Store) GetRuleConfig(ctx context.Context, ruleID string) (*domain.CustomRule, error) {
	if ruleID == "" {
		return nil, fmt.Errorf("%w: ruleID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, name, description, expression, severity, action, enabled
		FROM custom_rules
		WHERE id = ?
	`

	rule, err := scanRule(s.db.QueryRowContext(ctx, s.rebind(query), ruleID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return rule, err
}

// ListRuleConfigs returns all custom rules.
func (s *Store) ListRuleConfigs(ctx context.Context) ([]*domain.CustomRule, error) {
	query := `
		SELECT id, name, description, expression, severity, action, enabled
		FROM custom_rules
		ORDER BY id
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*domain.CustomRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}

	return rules, rows.Err()
}

// Ping verifies database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (*domain.CustomRule, error) {
	var rule domain.CustomRule
	var description sql.NullString
	var severity, action string
	var enabled int

	if err := row.Scan(&rule.ID, &rule.Name, &description, &rule.Expression, &severity, &action, &enabled); err != nil {
		return nil, err
	}

	rule.Description = description.String
	rule.Severity = domain.Severity(severity)
	rule.Action = domain.Action(action)
	rule.Enabled = enabled != 0
	return &rule, nil
}

// rebind converts ? placeholders to $N for PostgreSQL.
func (s *Store) rebind(query string) string {
	if s.driver != "postgres" {
		return query
	}

	var sb strings.Builder
	n := 0
	for _, ch := range query {
		if ch == '?' {
			n++
			sb.WriteString("$" + strconv.Itoa(n))
			continue
		}
		sb.WriteRune(ch)
	}
	return sb.String()
}
