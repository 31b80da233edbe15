package platform

import (
	"database/sql"
	"log/slog"

	"github.com/castwatch/castwatch/pkg/eligibility"
	"github.com/castwatch/castwatch/pkg/rolesink"
	"github.com/castwatch/castwatch/pkg/scopes"
	"github.com/castwatch/castwatch/pkg/stream"
)

// Options configures the engine.
type Options struct {
	// Config is the engine configuration.
	Config *Config

	// DB is the database connection (optional, opened from config if not
	// provided).
	DB *sql.DB

	// SessionStore (optional, created from config if not provided).
	SessionStore stream.Store

	// ScopeStore (optional, created from config if not provided).
	ScopeStore scopes.Store

	// Sink (optional, created from config if not provided).
	Sink rolesink.RoleSink

	// Memberships (optional, built from config if not provided).
	Memberships eligibility.MembershipProvider

	// Logger (optional, built from config if not provided).
	Logger *slog.Logger
}

// Option is a functional option for configuring the engine.
type Option func(*Options)

// WithConfig sets the configuration.
func WithConfig(cfg *Config) Option {
	return func(o *Options) {
		o.Config = cfg
	}
}

// WithDB sets the database connection.
func WithDB(db *sql.DB) Option {
	return func(o *Options) {
		o.DB = db
	}
}

// WithSessionStore sets the session store.
func WithSessionStore(store stream.Store) Option {
	return func(o *Options) {
		o.SessionStore = store
	}
}

// WithScopeStore sets the scope configuration store.
func WithScopeStore(store scopes.Store) Option {
	return func(o *Options) {
		o.ScopeStore = store
	}
}

// WithSink sets the role and alert sink.
func WithSink(sink rolesink.RoleSink) Option {
	return func(o *Options) {
		o.Sink = sink
	}
}

// WithMemberships sets the group membership provider.
func WithMemberships(members eligibility.MembershipProvider) Option {
	return func(o *Options) {
		o.Memberships = members
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}
