// Package postgres provides a PostgreSQL-backed scope store.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"github.com/castwatch/castwatch/pkg/scopes"
)

// psq is a statement builder configured for PostgreSQL placeholders.
var psq = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

const (
	kindSubject = "subject"
	kindGroup   = "group"
)

// Store persists scope configurations and filter entries in PostgreSQL.
type Store struct {
	db *sql.DB
}

// New creates a new PostgreSQL-backed scope store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Get retrieves a scope's configuration. Returns nil, nil when unknown.
func (s *Store) Get(ctx context.Context, scopeID string) (*scopes.Config, error) {
	query, args, err := psq.Select(
		"scope_id", "role_marker", "required_group", "game_whitelist", "mode",
		"alert_channel", "alert_autodelete", "stats_enabled", "retention_days", "top_limit",
	).
		From("scope_configs").
		Where(sq.Eq{"scope_id": scopeID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building scope query: %w", err)
	}

	var cfg scopes.Config
	var mode string
	err = s.db.QueryRowContext(ctx, query, args...).Scan(
		&cfg.ScopeID, &cfg.RoleMarker, &cfg.RequiredGroup, pq.Array(&cfg.GameWhitelist), &mode,
		&cfg.AlertChannel, &cfg.AlertAutodelete, &cfg.StatsEnabled, &cfg.RetentionDays, &cfg.TopLimit,
	)
	if err == sql.ErrNoRows {
		return nil, nil //nolint:nilnil // Store interface specifies nil,nil for not-found
	}
	if err != nil {
		return nil, fmt.Errorf("querying scope config: %w", err)
	}
	cfg.Mode = scopes.Mode(mode)

	return &cfg, nil
}

// Put stores a scope's configuration after normalizing it.
func (s *Store) Put(ctx context.Context, cfg scopes.Config) error {
	cfg.Normalize()

	query, args, err := psq.Insert("scope_configs").
		Columns(
			"scope_id", "role_marker", "required_group", "game_whitelist", "mode",
			"alert_channel", "alert_autodelete", "stats_enabled", "retention_days", "top_limit",
		).
		Values(
			cfg.ScopeID, cfg.RoleMarker, cfg.RequiredGroup, pq.Array(cfg.GameWhitelist), string(cfg.Mode),
			cfg.AlertChannel, cfg.AlertAutodelete, cfg.StatsEnabled, cfg.RetentionDays, cfg.TopLimit,
		).
		Suffix(`ON CONFLICT (scope_id) DO UPDATE SET
			role_marker = EXCLUDED.role_marker,
			required_group = EXCLUDED.required_group,
			game_whitelist = EXCLUDED.game_whitelist,
			mode = EXCLUDED.mode,
			alert_channel = EXCLUDED.alert_channel,
			alert_autodelete = EXCLUDED.alert_autodelete,
			stats_enabled = EXCLUDED.stats_enabled,
			retention_days = EXCLUDED.retention_days,
			top_limit = EXCLUDED.top_limit`).
		ToSql()
	if err != nil {
		return fmt.Errorf("building scope upsert: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upserting scope config: %w", err)
	}
	return nil
}

// Delete removes a scope's configuration and its filter entries.
func (s *Store) Delete(ctx context.Context, scopeID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	delCfg, args, err := psq.Delete("scope_configs").
		Where(sq.Eq{"scope_id": scopeID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("building scope delete: %w", err)
	}
	if _, err := tx.ExecContext(ctx, delCfg, args...); err != nil {
		return fmt.Errorf("deleting scope config: %w", err)
	}

	delFilters, args, err := psq.Delete("filter_entries").
		Where(sq.Eq{"scope_id": scopeID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("building filter delete: %w", err)
	}
	if _, err := tx.ExecContext(ctx, delFilters, args...); err != nil {
		return fmt.Errorf("deleting filter entries: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing scope delete: %w", err)
	}
	return nil
}

// Scopes returns all configured scope IDs, sorted.
func (s *Store) Scopes(ctx context.Context) ([]string, error) {
	query, args, err := psq.Select("scope_id").
		From("scope_configs").
		OrderBy("scope_id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building scopes query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying scopes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning scope id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating scopes: %w", err)
	}
	return ids, nil
}

// SubjectFlags returns the filter entry for a subject.
func (s *Store) SubjectFlags(ctx context.Context, scopeID, subject string) (scopes.Flags, error) {
	return s.flags(ctx, scopeID, kindSubject, subject)
}

// SetSubjectFlags stores the filter entry for a subject.
func (s *Store) SetSubjectFlags(ctx context.Context, scopeID, subject string, f scopes.Flags) error {
	return s.setFlags(ctx, scopeID, kindSubject, subject, f)
}

// GroupFlags returns the filter entry for a group.
func (s *Store) GroupFlags(ctx context.Context, scopeID, group string) (scopes.Flags, error) {
	return s.flags(ctx, scopeID, kindGroup, group)
}

// SetGroupFlags stores the filter entry for a group.
func (s *Store) SetGroupFlags(ctx context.Context, scopeID, group string, f scopes.Flags) error {
	return s.setFlags(ctx, scopeID, kindGroup, group, f)
}

func (s *Store) flags(ctx context.Context, scopeID, kind, entryID string) (scopes.Flags, error) {
	query, args, err := psq.Select("blacklisted", "whitelisted").
		From("filter_entries").
		Where(sq.Eq{"scope_id": scopeID, "entry_kind": kind, "entry_id": entryID}).
		ToSql()
	if err != nil {
		return scopes.Flags{}, fmt.Errorf("building flags query: %w", err)
	}

	var f scopes.Flags
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&f.Blacklisted, &f.Whitelisted)
	if err == sql.ErrNoRows {
		return scopes.Flags{}, nil
	}
	if err != nil {
		return scopes.Flags{}, fmt.Errorf("querying filter entry: %w", err)
	}
	return f, nil
}

func (s *Store) setFlags(ctx context.Context, scopeID, kind, entryID string, f scopes.Flags) error {
	query, args, err := psq.Insert("filter_entries").
		Columns("scope_id", "entry_kind", "entry_id", "blacklisted", "whitelisted").
		Values(scopeID, kind, entryID, f.Blacklisted, f.Whitelisted).
		Suffix(`ON CONFLICT (scope_id, entry_kind, entry_id) DO UPDATE SET
			blacklisted = EXCLUDED.blacklisted,
			whitelisted = EXCLUDED.whitelisted`).
		ToSql()
	if err != nil {
		return fmt.Errorf("building filter upsert: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upserting filter entry: %w", err)
	}
	return nil
}

// Close is a no-op. The caller owns the database handle.
func (*Store) Close() error {
	return nil
}

// Verify interface compliance.
var _ scopes.Store = (*Store)(nil)
