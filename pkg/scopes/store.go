package scopes

import (
	"context"
)

// Store defines the interface for scope configuration persistence.
// It is the single source of truth for scope settings; callers that want
// cheaper reads wrap it in Cached rather than keeping their own copies.
type Store interface {
	// Get retrieves a scope's configuration. Returns nil, nil when the scope
	// is unknown.
	Get(ctx context.Context, scopeID string) (*Config, error)

	// Put stores a scope's configuration, normalizing it first.
	Put(ctx context.Context, cfg Config) error

	// Delete removes a scope's configuration and filter entries.
	Delete(ctx context.Context, scopeID string) error

	// Scopes returns all configured scope IDs in a deterministic order.
	Scopes(ctx context.Context) ([]string, error)

	// SubjectFlags returns the filter entry for a subject. Unknown subjects
	// yield zero Flags.
	SubjectFlags(ctx context.Context, scopeID, subject string) (Flags, error)

	// SetSubjectFlags stores the filter entry for a subject.
	SetSubjectFlags(ctx context.Context, scopeID, subject string, f Flags) error

	// GroupFlags returns the filter entry for a group. Unknown groups yield
	// zero Flags.
	GroupFlags(ctx context.Context, scopeID, group string) (Flags, error)

	// SetGroupFlags stores the filter entry for a group.
	SetGroupFlags(ctx context.Context, scopeID, group string, f Flags) error

	// Close releases resources.
	Close() error
}
