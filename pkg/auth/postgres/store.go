// Package postgres persists per-scope API token hashes in PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

// psq is a statement builder configured for PostgreSQL placeholders.
var psq = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Store persists bcrypt token hashes keyed by scope ID.
type Store struct {
	db *sql.DB
}

// New creates a new PostgreSQL-backed token store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Put stores the token hash for a scope, replacing any previous one.
func (s *Store) Put(ctx context.Context, scopeID, tokenHash string) error {
	query, args, err := psq.Insert("api_tokens").
		Columns("scope_id", "token_hash").
		Values(scopeID, tokenHash).
		Suffix("ON CONFLICT (scope_id) DO UPDATE SET token_hash = EXCLUDED.token_hash").
		ToSql()
	if err != nil {
		return fmt.Errorf("building token upsert: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upserting token: %w", err)
	}
	return nil
}

// All returns every stored token hash keyed by scope ID.
func (s *Store) All(ctx context.Context) (map[string]string, error) {
	query, args, err := psq.Select("scope_id", "token_hash").
		From("api_tokens").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building token query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying tokens: %w", err)
	}
	defer func() { _ = rows.Close() }()

	hashes := make(map[string]string)
	for rows.Next() {
		var scopeID, hash string
		if err := rows.Scan(&scopeID, &hash); err != nil {
			return nil, fmt.Errorf("scanning token row: %w", err)
		}
		hashes[scopeID] = hash
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating token rows: %w", err)
	}
	return hashes, nil
}
