package platform

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"

	// Registers the postgres driver.
	_ "github.com/lib/pq"

	"github.com/castwatch/castwatch/pkg/auth"
	authpg "github.com/castwatch/castwatch/pkg/auth/postgres"
	"github.com/castwatch/castwatch/pkg/badges"
	"github.com/castwatch/castwatch/pkg/database/migrate"
	"github.com/castwatch/castwatch/pkg/eligibility"
	"github.com/castwatch/castwatch/pkg/health"
	"github.com/castwatch/castwatch/pkg/ingest"
	"github.com/castwatch/castwatch/pkg/presence"
	"github.com/castwatch/castwatch/pkg/rolesink"
	"github.com/castwatch/castwatch/pkg/scopes"
	scopespg "github.com/castwatch/castwatch/pkg/scopes/postgres"
	"github.com/castwatch/castwatch/pkg/stats"
	"github.com/castwatch/castwatch/pkg/stream"
	streampg "github.com/castwatch/castwatch/pkg/stream/postgres"
)

// Platform is the assembled session engine.
type Platform struct {
	config *Config
	logger *slog.Logger

	lifecycle *Lifecycle
	logCloser io.Closer

	db *sql.DB

	// Stores
	sessions   stream.Store
	scopeStore scopes.Store

	// Tracking pipeline
	sink       rolesink.RoleSink
	gate       *eligibility.Gate
	reconciler *presence.Reconciler
	dispatcher *ingest.Dispatcher

	// Query side
	aggregator *stats.Aggregator
	badges     *badges.Engine

	// Auth
	tokens     *auth.ScopeTokens
	tokenStore *authpg.Store
	verifier   auth.Verifier

	checker *health.Checker
}

// New creates an engine instance from the given options.
func New(opts ...Option) (*Platform, error) {
	options := &Options{}
	for _, opt := range opts {
		opt(options)
	}

	if options.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	applyDefaults(options.Config)
	if err := options.Config.Validate(); err != nil {
		return nil, err
	}

	p := &Platform{
		config:    options.Config,
		lifecycle: NewLifecycle(),
		checker:   health.NewChecker(),
	}

	if options.Logger != nil {
		p.logger = options.Logger
	} else {
		p.logger, p.logCloser = NewLogger(options.Config.Logging)
	}

	if err := p.initializeComponents(options); err != nil {
		p.closeAll()
		return nil, fmt.Errorf("initializing components: %w", err)
	}

	return p, nil
}

// initializeComponents initializes all engine components.
func (p *Platform) initializeComponents(opts *Options) error {
	if err := p.initStores(opts); err != nil {
		return err
	}
	if err := p.initAuth(); err != nil {
		return err
	}
	p.initTracking(opts)
	p.initQuerySide()
	if err := p.seedScopes(); err != nil {
		return err
	}
	return nil
}

// initStores opens the session and scope stores per the configured provider.
func (p *Platform) initStores(opts *Options) error {
	if opts.SessionStore != nil && opts.ScopeStore != nil {
		p.sessions = opts.SessionStore
		p.scopeStore = opts.ScopeStore
		return nil
	}

	switch p.config.Database.Provider {
	case ProviderMemory:
		if p.sessions = opts.SessionStore; p.sessions == nil {
			p.sessions = stream.NewMemoryStore()
		}
		if p.scopeStore = opts.ScopeStore; p.scopeStore == nil {
			p.scopeStore = scopes.NewMemoryStore()
		}
		return nil

	case ProviderPostgres:
		db := opts.DB
		if db == nil {
			var err error
			db, err = sql.Open("postgres", p.config.Database.DSN)
			if err != nil {
				return fmt.Errorf("opening database: %w", err)
			}
			db.SetMaxOpenConns(p.config.Database.MaxOpenConns)
			p.db = db
		}

		if p.config.Database.Migrate {
			if err := migrate.Run(db); err != nil {
				return fmt.Errorf("migrating database: %w", err)
			}
		}

		if p.sessions = opts.SessionStore; p.sessions == nil {
			p.sessions = streampg.New(db)
		}
		if p.scopeStore = opts.ScopeStore; p.scopeStore == nil {
			p.scopeStore = scopes.NewCached(scopespg.New(db))
		}
		p.tokenStore = authpg.New(db)

		// Startup verifies database connectivity before the engine is
		// marked ready.
		p.lifecycle.OnStart(func(ctx context.Context) error {
			if err := db.PingContext(ctx); err != nil {
				return fmt.Errorf("pinging database: %w", err)
			}
			return nil
		})
		p.checker.Register("database", func(ctx context.Context) error {
			return db.PingContext(ctx)
		})
		return nil

	default:
		return fmt.Errorf("database provider %q is not recognized", p.config.Database.Provider)
	}
}

// initAuth builds scope token verification from config. With a postgres
// store, hashes persisted in api_tokens load first and config tokens are
// written through, so tokens issued out of band survive restarts.
func (p *Platform) initAuth() error {
	ctx := context.Background()
	p.tokens = auth.NewScopeTokens()

	if p.tokenStore != nil {
		stored, err := p.tokenStore.All(ctx)
		if err != nil {
			return fmt.Errorf("loading stored tokens: %w", err)
		}
		for scopeID, hash := range stored {
			p.tokens.SetTokenHash(scopeID, []byte(hash))
		}
	}

	if p.config.Auth.AdminToken != "" {
		if err := p.tokens.SetAdminToken(p.config.Auth.AdminToken); err != nil {
			return fmt.Errorf("setting admin token: %w", err)
		}
	}
	for scopeID, token := range p.config.Auth.Tokens {
		hash, err := auth.HashToken(token)
		if err != nil {
			return fmt.Errorf("hashing token for scope %s: %w", scopeID, err)
		}
		p.tokens.SetTokenHash(scopeID, []byte(hash))
		if p.tokenStore != nil {
			if err := p.tokenStore.Put(ctx, scopeID, hash); err != nil {
				return fmt.Errorf("persisting token for scope %s: %w", scopeID, err)
			}
		}
	}

	if p.config.Auth.JWTSecret != "" {
		p.verifier = auth.Multi{p.tokens, auth.NewJWTVerifier([]byte(p.config.Auth.JWTSecret))}
	} else {
		p.verifier = p.tokens
	}
	return nil
}

// initTracking wires the sink, gate, reconciler, and dispatcher.
func (p *Platform) initTracking(opts *Options) {
	if opts.Sink != nil {
		p.sink = opts.Sink
	} else {
		p.sink = p.createSink()
	}

	members := opts.Memberships
	if members == nil {
		static := eligibility.StaticMemberships{}
		for subject, groups := range p.config.Members {
			static[subject] = groups
		}
		members = static
	}
	p.gate = eligibility.NewGate(members, p.scopeStore)

	recognizer := presence.DefaultRecognizer()
	if len(p.config.Tracking.Platforms) > 0 || len(p.config.Tracking.URLHosts) > 0 {
		recognizer = presence.Recognizer{
			Platforms: p.config.Tracking.Platforms,
			URLHosts:  p.config.Tracking.URLHosts,
		}
	}

	p.reconciler = presence.NewReconciler(p.scopeStore, p.sessions, p.gate, p.sink, p.logger,
		presence.WithRecognizer(recognizer),
		presence.WithSinkTimeout(p.config.Tracking.SinkTimeout),
	)
	p.dispatcher = ingest.NewDispatcher(p.reconciler, p.logger, p.config.Tracking.Workers)
}

// initQuerySide wires aggregation and badge evaluation over the session store.
func (p *Platform) initQuerySide() {
	p.aggregator = stats.NewAggregator(p.sessions)
	p.badges = badges.NewEngine(p.sessions)
}

// seedScopes writes configured scope definitions into the scope store.
// Existing stored configuration wins over the file.
func (p *Platform) seedScopes() error {
	return p.applyScopes(context.Background(), p.config.Scopes, false)
}

// applyScopes writes scope definitions into the store. When overwrite is
// false, scopes already present in the store are left alone.
func (p *Platform) applyScopes(ctx context.Context, defs map[string]ScopeDef, overwrite bool) error {
	for scopeID, def := range defs {
		if !overwrite {
			existing, err := p.scopeStore.Get(ctx, scopeID)
			if err != nil {
				return fmt.Errorf("checking scope %s: %w", scopeID, err)
			}
			if existing != nil {
				continue
			}
		}
		if err := p.scopeStore.Put(ctx, def.scopeConfig(scopeID)); err != nil {
			return fmt.Errorf("seeding scope %s: %w", scopeID, err)
		}
	}
	return nil
}

// createSink builds the role sink per config.
func (p *Platform) createSink() rolesink.RoleSink {
	if p.config.Sink.Provider != SinkWebhook {
		return rolesink.Noop{}
	}
	sinkOpts := []rolesink.WebhookOption{rolesink.WithTimeout(p.config.Sink.Timeout)}
	if p.config.Sink.Token != "" {
		sinkOpts = append(sinkOpts, rolesink.WithToken(p.config.Sink.Token))
	}
	return rolesink.NewWebhook(p.config.Sink.URL, sinkOpts...)
}

// WatchConfig starts hot-reloading of the scopes, members, and token
// sections from the configuration file at path. Other sections require a
// restart. The watcher is stopped when the engine shuts down.
func (p *Platform) WatchConfig(path string) error {
	watcher, err := NewWatcher(path)
	if err != nil {
		return err
	}
	p.lifecycle.RegisterCloser(watcher)

	go func() {
		for range watcher.Events() {
			if err := p.reloadConfig(path); err != nil {
				p.logger.Warn("config reload failed", "path", path, "error", err)
			}
		}
	}()
	return nil
}

// reloadConfig re-reads the file and applies the hot-reloadable sections.
func (p *Platform) reloadConfig(path string) error {
	cfg, err := LoadConfig(path)
	if err != nil {
		return err
	}

	ctx := context.Background()
	if err := p.applyScopes(ctx, cfg.Scopes, true); err != nil {
		return err
	}
	for scopeID, token := range cfg.Auth.Tokens {
		if err := p.tokens.SetToken(scopeID, token); err != nil {
			return fmt.Errorf("updating token for scope %s: %w", scopeID, err)
		}
	}

	p.logger.Info("config reloaded", "path", path, "scopes", len(cfg.Scopes))
	return nil
}

// Start starts the engine and marks it ready.
func (p *Platform) Start(ctx context.Context) error {
	if err := p.lifecycle.Start(ctx); err != nil {
		return err
	}
	p.checker.SetReady()
	p.logger.Info("engine started",
		"store", p.config.Database.Provider,
		"sink", p.config.Sink.Provider)
	return nil
}

// Stop drains the engine: in-flight events finish, live sessions are
// finalized, and lifecycle closers run.
func (p *Platform) Stop(ctx context.Context) error {
	p.checker.SetDraining()
	p.dispatcher.Wait()
	p.reconciler.Shutdown(ctx)
	return p.lifecycle.Stop(ctx)
}

// Config returns the engine configuration.
func (p *Platform) Config() *Config {
	return p.config
}

// Logger returns the engine logger.
func (p *Platform) Logger() *slog.Logger {
	return p.logger
}

// Lifecycle returns the lifecycle manager.
func (p *Platform) Lifecycle() *Lifecycle {
	return p.lifecycle
}

// Sessions returns the session store.
func (p *Platform) Sessions() stream.Store {
	return p.sessions
}

// ScopeStore returns the scope configuration store.
func (p *Platform) ScopeStore() scopes.Store {
	return p.scopeStore
}

// Dispatcher returns the event dispatcher.
func (p *Platform) Dispatcher() *ingest.Dispatcher {
	return p.dispatcher
}

// Reconciler returns the presence reconciler.
func (p *Platform) Reconciler() *presence.Reconciler {
	return p.reconciler
}

// Aggregator returns the statistics aggregator.
func (p *Platform) Aggregator() *stats.Aggregator {
	return p.aggregator
}

// Badges returns the badge engine.
func (p *Platform) Badges() *badges.Engine {
	return p.badges
}

// Tokens returns the scope token registry.
func (p *Platform) Tokens() *auth.ScopeTokens {
	return p.tokens
}

// Verifier returns the request verifier.
func (p *Platform) Verifier() auth.Verifier {
	return p.verifier
}

// Checker returns the health checker.
func (p *Platform) Checker() *health.Checker {
	return p.checker
}

// closeResource closes a resource and appends any error.
func closeResource(errs *[]error, closer Closer) {
	if closer == nil {
		return
	}
	if err := closer.Close(); err != nil {
		*errs = append(*errs, err)
	}
}

// closeAll releases stores, the database handle, and the log writer.
func (p *Platform) closeAll() error {
	var errs []error

	if p.sessions != nil {
		closeResource(&errs, p.sessions)
	}
	if p.scopeStore != nil {
		closeResource(&errs, p.scopeStore)
	}
	if p.db != nil {
		closeResource(&errs, p.db)
	}
	if p.logCloser != nil {
		closeResource(&errs, p.logCloser)
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors closing engine: %v", errs)
	}
	return nil
}

// Close closes all engine resources.
func (p *Platform) Close() error {
	return p.closeAll()
}
