package stream

import (
	"context"
	"time"
)

// Store defines the interface for session persistence. Each (scope, subject)
// key owns an ordered-by-start session log. Appends to the same key are
// serialized read-modify-write operations; different keys may be written
// fully concurrently. Readers always observe a consistent snapshot: a query
// never sees a partially appended session.
type Store interface {
	// Append inserts a finalized session and prunes every session with
	// start < now - retentionDays from the same log. Insert and prune are
	// atomic with respect to concurrent appends on the same key.
	Append(ctx context.Context, scope, subject string, s Session, retentionDays int) error

	// Query returns the subject's sessions with start >= since, ascending by
	// start. The zero time means unrestricted. Unknown scopes or subjects
	// yield an empty result, not an error.
	Query(ctx context.Context, scope, subject string, since time.Time) ([]Session, error)

	// DeleteBefore removes every session with start < cutoff and reports how
	// many were removed. Used by batch retention sweeps and
	// summarize-then-delete workflows.
	DeleteBefore(ctx context.Context, scope, subject string, cutoff time.Time) (int, error)

	// Subjects returns the subjects with at least one recorded session in
	// the scope, in a deterministic order.
	Subjects(ctx context.Context, scope string) ([]string, error)

	// Close releases resources.
	Close() error
}
