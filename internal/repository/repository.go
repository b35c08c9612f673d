// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
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

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveAnalysis stores a complete analysis result: the summary row, every
// suspicious account in rank order, and every ring. The write is
// transactional so readers never observe a partial run.
func (r *SQLRepository) SaveAnalysis(ctx context.Context, tenantID string, result *domain.AnalysisResult) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if result == nil || result.ID == "" {
		return fmt.Errorf("%w: analysis result with id is required", ErrInvalidInput)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO analyses (
			id, tenant_id, created_at, total_accounts, flagged_accounts, ring_count, processing_seconds
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	if _, err := tx.ExecContext(ctx, r.rebind(query),
		result.ID, tenantID, result.CreatedAt,
		result.Summary.TotalAccounts, result.Summary.FlaggedAccounts,
		result.Summary.RingCount, result.Summary.ProcessingSeconds,
	); err != nil {
		return fmt.Errorf("failed to save analysis: %w", err)
	}

	accountQuery := `
		INSERT INTO suspicious_accounts (
			analysis_id, tenant_id, account_id, score, patterns, ring_id, position
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	for i, acct := range result.SuspiciousAccounts {
		patterns, _ := json.Marshal(acct.Patterns)
		if _, err := tx.ExecContext(ctx, r.rebind(accountQuery),
			result.ID, tenantID, acct.AccountID, acct.Score, string(patterns), acct.RingID, i,
		); err != nil {
			return fmt.Errorf("failed to save account %s: %w", acct.AccountID, err)
		}
	}

	ringQuery := `
		INSERT INTO fraud_rings (
			analysis_id, tenant_id, ring_id, pattern_type, members, risk_score
		) VALUES (?, ?, ?, ?, ?, ?)
	`
	for _, ring := range result.Rings {
		members, _ := json.Marshal(ring.Members)
		if _, err := tx.ExecContext(ctx, r.rebind(ringQuery),
			result.ID, tenantID, ring.ID, ring.PatternType, string(members), ring.RiskScore,
		); err != nil {
			return fmt.Errorf("failed to save ring %d: %w", ring.ID, err)
		}
	}

	return tx.Commit()
}

// GetAnalysis retrieves a full analysis result with tenant isolation.
func (r *SQLRepository) GetAnalysis(ctx context.Context, tenantID string, analysisID string) (*domain.AnalysisResult, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, created_at, total_accounts, flagged_accounts, ring_count, processing_seconds
		FROM analyses
		WHERE tenant_id = ? AND id = ?
	`

	var result domain.AnalysisResult
	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, analysisID).Scan(
		&result.ID, &result.TenantID, &result.CreatedAt,
		&result.Summary.TotalAccounts, &result.Summary.FlaggedAccounts,
		&result.Summary.RingCount, &result.Summary.ProcessingSeconds,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if result.SuspiciousAccounts, err = r.ListSuspiciousAccounts(ctx, tenantID, analysisID); err != nil {
		return nil, err
	}
	if result.Rings, err = r.ListRings(ctx, tenantID, analysisID); err != nil {
		return nil, err
	}

	return &result, nil
}

// ListAnalyses retrieves analysis summaries for a tenant since the given
// time, newest first. Account and ring lists are not populated.
func (r *SQLRepository) ListAnalyses(ctx context.Context, tenantID string, since time.Time) ([]*domain.AnalysisResult, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, created_at, total_accounts, flagged_accounts, ring_count, processing_seconds
		FROM analyses
		WHERE tenant_id = ? AND created_at >= ?
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*domain.AnalysisResult
	for rows.Next() {
		var result domain.AnalysisResult
		if err := rows.Scan(
			&result.ID, &result.TenantID, &result.CreatedAt,
			&result.Summary.TotalAccounts, &result.Summary.FlaggedAccounts,
			&result.Summary.RingCount, &result.Summary.ProcessingSeconds,
		); err != nil {
			return nil, err
		}
		results = append(results, &result)
	}

	return results, rows.Err()
}

// ListSuspiciousAccounts retrieves the ranked account list of an analysis.
func (r *SQLRepository) ListSuspiciousAccounts(ctx context.Context, tenantID string, analysisID string) ([]domain.SuspiciousAccount, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT account_id, score, patterns, ring_id
		FROM suspicious_accounts
		WHERE tenant_id = ? AND analysis_id = ?
		ORDER BY position
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, analysisID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []domain.SuspiciousAccount
	for rows.Next() {
		var acct domain.SuspiciousAccount
		var patterns string
		if err := rows.Scan(&acct.AccountID, &acct.Score, &patterns, &acct.RingID); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(patterns), &acct.Patterns); err != nil {
			return nil, fmt.Errorf("failed to parse patterns for %s: %w", acct.AccountID, err)
		}
		accounts = append(accounts, acct)
	}

	return accounts, rows.Err()
}

// ListRings retrieves the ring list of an analysis in discovery order.
func (r *SQLRepository) ListRings(ctx context.Context, tenantID string, analysisID string) ([]domain.FraudRing, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT ring_id, pattern_type, members, risk_score
		FROM fraud_rings
		WHERE tenant_id = ? AND analysis_id = ?
		ORDER BY ring_id
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, analysisID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rings []domain.FraudRing
	for rows.Next() {
		var ring domain.FraudRing
		var members string
		if err := rows.Scan(&ring.ID, &ring.PatternType, &members, &ring.RiskScore); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(members), &ring.Members); err != nil {
			return nil, fmt.Errorf("failed to parse members for ring %d: %w", ring.ID, err)
		}
		rings = append(rings, ring)
	}

	return rings, rows.Err()
}

// SaveRuleConfig stores a rule configuration with tenant isolation.
func (r *SQLRepository) SaveRuleConfig(ctx context.Context, tenantID string, rule *domain.RuleConfig) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	enabled := 0
	if rule.Enabled {
		enabled = 1
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO rule_configs (
			id, tenant_id, name, description, version, expression, tag, points, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, tenant_id, version) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			expression = excluded.expression,
			tag = excluded.tag,
			points = excluded.points,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, tenantID, rule.Name, rule.Description,
		rule.Version, rule.Expression, rule.Tag, rule.Points, enabled,
		now, now,
	)
	return err
}

// GetRuleConfig retrieves a rule configuration with tenant isolation.
func (r *SQLRepository) GetRuleConfig(ctx context.Context, tenantID string, ruleID string) (*domain.RuleConfig, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, name, description, version, expression, tag, points, enabled
		FROM rule_configs
		WHERE tenant_id = ? AND id = ? AND enabled = 1
		ORDER BY version DESC
		LIMIT 1
	`

	var cfg domain.RuleConfig
	var enabled int

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, ruleID).Scan(
		&cfg.ID, &cfg.TenantID, &cfg.Name, &cfg.Description,
		&cfg.Version, &cfg.Expression, &cfg.Tag, &cfg.Points, &enabled,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	cfg.Enabled = enabled == 1

	return &cfg, nil
}

// ListRuleConfigs retrieves all active rule configurations for a tenant.
func (r *SQLRepository) ListRuleConfigs(ctx context.Context, tenantID string) ([]*domain.RuleConfig, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, name, description, version, expression, tag, points, enabled
		FROM rule_configs
		WHERE tenant_id = ? AND enabled = 1
		ORDER BY name
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var configs []*domain.RuleConfig
	for rows.Next() {
		var cfg domain.RuleConfig
		var enabled int

		if err := rows.Scan(
			&cfg.ID, &cfg.TenantID, &cfg.Name, &cfg.Description,
			&cfg.Version, &cfg.Expression, &cfg.Tag, &cfg.Points, &enabled,
		); err != nil {
			return nil, err
		}

		cfg.Enabled = enabled == 1
		configs = append(configs, &cfg)
	}

	return configs, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	// Convert ? to $1, $2, etc.
	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
