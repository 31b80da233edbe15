// Package postgres provides PostgreSQL storage for session logs.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/castwatch/castwatch/pkg/stream"
)

// psq is the PostgreSQL statement builder with dollar placeholders.
var psq = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// sessionColumns lists columns returned by session SELECT queries.
var sessionColumns = []string{
	"start_at", "end_at", "duration_seconds", "category", "platform", "url",
}

// Store implements stream.Store using PostgreSQL. Appends run in a single
// transaction (insert + retention prune), so a reader never observes a
// partially appended log and concurrent appends on one key cannot lose rows.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// New creates a new PostgreSQL session store.
func New(db *sql.DB) *Store {
	return &Store{
		db:  db,
		now: time.Now,
	}
}

// Append inserts a session and prunes entries older than the retention
// window inside one transaction.
func (s *Store) Append(ctx context.Context, scope, subject string, sess stream.Session, retentionDays int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning append transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	insert, args, err := psq.Insert("sessions").
		Columns("scope", "subject", "start_at", "end_at", "duration_seconds", "category", "platform", "url").
		Values(scope, subject, sess.Start, sess.End, sess.DurationSeconds, sess.Category, sess.Platform, sess.URL).
		ToSql()
	if err != nil {
		return fmt.Errorf("building session insert: %w", err)
	}
	if _, err := tx.ExecContext(ctx, insert, args...); err != nil {
		return fmt.Errorf("inserting session: %w", err)
	}

	cutoff := stream.RetentionCutoff(s.now(), retentionDays)
	prune, args, err := psq.Delete("sessions").
		Where(sq.Eq{"scope": scope, "subject": subject}).
		Where(sq.Lt{"start_at": cutoff}).
		ToSql()
	if err != nil {
		return fmt.Errorf("building retention prune: %w", err)
	}
	if _, err := tx.ExecContext(ctx, prune, args...); err != nil {
		return fmt.Errorf("pruning sessions: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing append: %w", err)
	}
	return nil
}

// Query returns the subject's sessions with start >= since, ascending by start.
func (s *Store) Query(ctx context.Context, scope, subject string, since time.Time) ([]stream.Session, error) {
	qb := psq.Select(sessionColumns...).
		From("sessions").
		Where(sq.Eq{"scope": scope, "subject": subject}).
		OrderBy("start_at ASC")
	if !since.IsZero() {
		qb = qb.Where(sq.GtOrEq{"start_at": since})
	}

	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building session query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sessions []stream.Session
	for rows.Next() {
		var sess stream.Session
		if err := rows.Scan(&sess.Start, &sess.End, &sess.DurationSeconds, &sess.Category, &sess.Platform, &sess.URL); err != nil {
			return nil, fmt.Errorf("scanning session row: %w", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating session rows: %w", err)
	}
	return sessions, nil
}

// DeleteBefore removes sessions with start < cutoff for the subject.
func (s *Store) DeleteBefore(ctx context.Context, scope, subject string, cutoff time.Time) (int, error) {
	query, args, err := psq.Delete("sessions").
		Where(sq.Eq{"scope": scope, "subject": subject}).
		Where(sq.Lt{"start_at": cutoff}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("building bulk delete: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("deleting sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting deleted sessions: %w", err)
	}
	return int(n), nil
}

// Subjects returns the subjects with recorded sessions in the scope, sorted.
func (s *Store) Subjects(ctx context.Context, scope string) ([]string, error) {
	query, args, err := psq.Select("DISTINCT subject").
		From("sessions").
		Where(sq.Eq{"scope": scope}).
		OrderBy("subject ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building subject query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying subjects: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var subjects []string
	for rows.Next() {
		var subject string
		if err := rows.Scan(&subject); err != nil {
			return nil, fmt.Errorf("scanning subject row: %w", err)
		}
		subjects = append(subjects, subject)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating subject rows: %w", err)
	}
	return subjects, nil
}

// Close releases resources. The database handle is owned by the caller.
func (*Store) Close() error {
	return nil
}

// Verify interface compliance.
var _ stream.Store = (*Store)(nil)
