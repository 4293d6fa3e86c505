// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jmoiron/sqlx"
	"github.com/khannas43/smart-eligibility/internal/domain"
)

// Re-exported for callers that only import repository.
var (
	ErrNotFound     = domain.ErrNotFound
	ErrInvalidInput = domain.ErrInvalidInput
)

const defaultQueryTimeout = 10 * time.Second

// SQLRepository implements domain.Repository on sqlx.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db           *sqlx.DB
	driver       string
	queryTimeout time.Duration
}

// Option configures a SQLRepository.
type Option func(*SQLRepository)

// WithQueryTimeout bounds every database call.
func WithQueryTimeout(d time.Duration) Option {
	return func(r *SQLRepository) {
		if d > 0 {
			r.queryTimeout = d
		}
	}
}

// New opens the configured database, retrying the initial connection with
// exponential backoff, and bootstraps the schema.
func New(ctx context.Context, cfg domain.RepositoryConfig, opts ...Option) (*SQLRepository, error) {
	var db *sqlx.DB
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
	if cfg.MaxOpenConns > 0 && cfg.Driver == "postgres" {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := ping(ctx, db, cfg); err != nil {
		db.Close()
		return nil, err
	}

	repo := &SQLRepository{
		db:           db,
		driver:       cfg.Driver,
		queryTimeout: defaultQueryTimeout,
	}
	for _, opt := range opts {
		opt(repo)
	}

	if err := repo.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func ping(ctx context.Context, db *sqlx.DB, cfg domain.RepositoryConfig) error {
	retries := cfg.ConnectRetries
	if retries <= 0 {
		retries = 5
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = 200 * time.Millisecond
	exp.MaxInterval = 5 * time.Second

	b := backoff.WithContext(backoff.WithMaxRetries(exp, uint64(retries-1)), ctx)

	err := backoff.RetryNotify(func() error {
		return db.PingContext(ctx)
	}, b, func(err error, wait time.Duration) {
		slog.Warn("database ping failed, retrying",
			"driver", cfg.Driver,
			"error", err,
			"wait", wait.String(),
		)
	})
	if err != nil {
		return fmt.Errorf("failed to ping %s database: %w", cfg.Driver, err)
	}
	return nil
}

func (r *SQLRepository) migrate(ctx context.Context) error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.ExecContext(ctx, schema); err != nil {
			return err
		}
	}
	return nil
}

// DB exposes the underlying handle for tooling and tests.
func (r *SQLRepository) DB() *sqlx.DB {
	return r.db
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

func (r *SQLRepository) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.queryTimeout)
}

// get runs a single-row query and maps sql.ErrNoRows to ErrNotFound.
func (r *SQLRepository) get(ctx context.Context, dest any, query string, args ...any) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	err := r.db.GetContext(ctx, dest, r.db.Rebind(query), args...)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (r *SQLRepository) selectAll(ctx context.Context, dest any, query string, args ...any) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	return r.db.SelectContext(ctx, dest, r.db.Rebind(query), args...)
}

// inTx runs fn in a transaction, rolling back on error.
func (r *SQLRepository) inTx(ctx context.Context, fn func(ctx context.Context, tx *sqlx.Tx) error) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(ctx, tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			slog.Error("rollback failed", "error", rbErr)
		}
		return err
	}
	return tx.Commit()
}

// --- Rules -------------------------------------------------------------------

const ruleColumns = `rule_id, scheme_code, name, rule_type, expression, priority,
	is_mandatory, weight, version, effective_from, effective_to, is_active`

// ListRules returns every rule of a scheme.
func (r *SQLRepository) ListRules(ctx context.Context, schemeCode string) ([]domain.SchemeEligibilityRule, error) {
	var rules []domain.SchemeEligibilityRule
	err := r.selectAll(ctx, &rules, `
		SELECT `+ruleColumns+`
		FROM scheme_rules
		WHERE scheme_code = ?
		ORDER BY priority DESC, rule_id ASC
	`, schemeCode)
	if err != nil {
		return nil, fmt.Errorf("list rules %s: %w", schemeCode, err)
	}
	return rules, nil
}

// ActiveRules returns active rules ordered by priority DESC, rule_id ASC.
// Effective-date filtering is left to the caller's clock.
func (r *SQLRepository) ActiveRules(ctx context.Context, schemeCode string) ([]domain.SchemeEligibilityRule, error) {
	var rules []domain.SchemeEligibilityRule
	err := r.selectAll(ctx, &rules, `
		SELECT `+ruleColumns+`
		FROM scheme_rules
		WHERE scheme_code = ? AND is_active = ?
		ORDER BY priority DESC, rule_id ASC
	`, schemeCode, true)
	if err != nil {
		return nil, fmt.Errorf("active rules %s: %w", schemeCode, err)
	}
	return rules, nil
}

// SaveRule inserts or replaces a rule.
func (r *SQLRepository) SaveRule(ctx context.Context, rule *domain.SchemeEligibilityRule) error {
	if rule.RuleID == "" || rule.SchemeCode == "" {
		return fmt.Errorf("%w: rule_id and scheme_code are required", ErrInvalidInput)
	}
	if rule.EffectiveFrom.IsZero() {
		rule.EffectiveFrom = time.Now().UTC().AddDate(-1, 0, 0)
	}
	if rule.Version == "" {
		rule.Version = "1"
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query := `
		INSERT INTO scheme_rules (` + ruleColumns + `)
		VALUES (:rule_id, :scheme_code, :name, :rule_type, :expression, :priority,
			:is_mandatory, :weight, :version, :effective_from, :effective_to, :is_active)
		ON CONFLICT (rule_id) DO UPDATE SET
			scheme_code = excluded.scheme_code,
			name = excluded.name,
			rule_type = excluded.rule_type,
			expression = excluded.expression,
			priority = excluded.priority,
			is_mandatory = excluded.is_mandatory,
			weight = excluded.weight,
			version = excluded.version,
			effective_from = excluded.effective_from,
			effective_to = excluded.effective_to,
			is_active = excluded.is_active
	`
	_, err := r.db.NamedExecContext(ctx, query, rule)
	return err
}
