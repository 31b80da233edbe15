package presence

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/castwatch/castwatch/pkg/eligibility"
	"github.com/castwatch/castwatch/pkg/rolesink"
	"github.com/castwatch/castwatch/pkg/scopes"
	"github.com/castwatch/castwatch/pkg/stream"
)

const defaultSinkTimeout = 5 * time.Second

// trackKey identifies one subject's state within one scope.
type trackKey struct {
	scope   string
	subject string
}

// liveTracking is the Tracking-state record for one subject. It remembers
// the last observed activity metadata so a finalize can still describe the
// session when the closing event carries none.
type liveTracking struct {
	mu          sync.Mutex
	startedAt   time.Time
	last        Activity
	roleGranted bool
	alert       *rolesink.AlertHandle

	// done marks a finalized record so a duplicate closing event cannot
	// append the session twice.
	done bool
}

// Reconciler consumes activity-change events and drives session start/stop,
// role grants, and alert messages. Events for distinct subjects reconcile
// concurrently; events for the same subject serialize on its tracking record.
type Reconciler struct {
	configs   scopes.Store
	sessions  stream.Store
	gate      *eligibility.Gate
	sink      rolesink.RoleSink
	recognize Recognizer
	logger    *slog.Logger

	sinkTimeout time.Duration
	now         func() time.Time

	mu   sync.Mutex
	live map[trackKey]*liveTracking
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithRecognizer overrides the default platform recognizer.
func WithRecognizer(r Recognizer) Option {
	return func(rec *Reconciler) { rec.recognize = r }
}

// WithSinkTimeout bounds each role-sink call.
func WithSinkTimeout(d time.Duration) Option {
	return func(rec *Reconciler) { rec.sinkTimeout = d }
}

// WithClock overrides the time source. Used in tests.
func WithClock(now func() time.Time) Option {
	return func(rec *Reconciler) { rec.now = now }
}

// NewReconciler creates a Reconciler.
func NewReconciler(configs scopes.Store, sessions stream.Store, gate *eligibility.Gate, sink rolesink.RoleSink, logger *slog.Logger, opts ...Option) *Reconciler {
	r := &Reconciler{
		configs:     configs,
		sessions:    sessions,
		gate:        gate,
		sink:        sink,
		recognize:   DefaultRecognizer(),
		logger:      logger,
		sinkTimeout: defaultSinkTimeout,
		now:         time.Now,
		live:        make(map[trackKey]*liveTracking),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reconcile processes one activity-change event for a subject. It is
// idempotent under duplicate delivery: re-seeing the same activity while
// Tracking refreshes metadata without re-granting the role or re-posting
// the alert, and an event with no qualifying activity while Idle does
// nothing.
func (r *Reconciler) Reconcile(ctx context.Context, scopeID, subject string, activities []Activity) error {
	cfg, err := r.configs.Get(ctx, scopeID)
	if err != nil {
		return err
	}
	if cfg == nil {
		defaults := scopes.DefaultConfig(scopeID)
		cfg = &defaults
	}

	key := trackKey{scopeID, subject}
	state, tracking := r.lookup(key)

	act := r.recognize.FirstStreaming(activities)

	if tracking {
		state.mu.Lock()
		defer state.mu.Unlock()

		if state.done {
			// Finalized by a concurrent event after our lookup. A fresh
			// qualifying activity will start a new session on the next event.
			return nil
		}
		if act == nil {
			r.finalizeLocked(ctx, key, *cfg, state)
			return nil
		}

		allowed, err := r.gate.Allowed(ctx, *cfg, subject)
		if err != nil {
			// Keep tracking on a transient eligibility failure rather than
			// cut a session short on bad data.
			r.logger.Warn("eligibility check failed, keeping session open",
				"scope", scopeID, "subject", subject, "error", err)
			state.last = *act
			return nil
		}
		if !allowed {
			r.finalizeLocked(ctx, key, *cfg, state)
			return nil
		}

		state.last = *act
		return nil
	}

	if act == nil {
		return nil
	}
	if !cfg.GameAllowed(act.Category) {
		return nil
	}
	allowed, err := r.gate.Allowed(ctx, *cfg, subject)
	if err != nil {
		return err
	}
	if !allowed {
		return nil
	}

	state = r.start(key, *act)
	if state == nil {
		// Another event won the race; it owns the tracking record.
		return nil
	}
	state.mu.Lock()
	defer state.mu.Unlock()

	r.logger.Info("tracking started",
		"scope", scopeID, "subject", subject, "platform", act.Platform, "category", act.Category)

	if cfg.RoleMarker != "" {
		if r.sinkCall(ctx, "grant role", key, func(ctx context.Context) error {
			return r.sink.GrantRole(ctx, scopeID, subject, cfg.RoleMarker)
		}) {
			state.roleGranted = true
		}
	}
	if cfg.AlertChannel != "" {
		r.postAlert(ctx, key, *cfg, state, *act)
	}
	return nil
}

// SubjectJoined handles a membership join. It reconciles the subject's
// current activities and, if the subject ends up Idle, revokes any stale
// role marker carried over from a previous membership.
func (r *Reconciler) SubjectJoined(ctx context.Context, scopeID, subject string, activities []Activity) error {
	if err := r.Reconcile(ctx, scopeID, subject, activities); err != nil {
		return err
	}

	if _, tracking := r.lookup(trackKey{scopeID, subject}); tracking {
		return nil
	}

	cfg, err := r.configs.Get(ctx, scopeID)
	if err != nil || cfg == nil || cfg.RoleMarker == "" {
		return err
	}
	r.sinkCall(ctx, "revoke stale role", trackKey{scopeID, subject}, func(ctx context.Context) error {
		return r.sink.RevokeRole(ctx, scopeID, subject, cfg.RoleMarker)
	})
	return nil
}

// Tracking reports whether the subject is currently in the Tracking state.
func (r *Reconciler) Tracking(scopeID, subject string) bool {
	_, tracking := r.lookup(trackKey{scopeID, subject})
	return tracking
}

// Shutdown finalizes every live session, recording the shutdown moment as
// its end.
func (r *Reconciler) Shutdown(ctx context.Context) {
	r.mu.Lock()
	states := make(map[trackKey]*liveTracking, len(r.live))
	for key, state := range r.live {
		states[key] = state
	}
	r.mu.Unlock()

	for key, state := range states {
		cfg, err := r.configs.Get(ctx, key.scope)
		if err != nil || cfg == nil {
			defaults := scopes.DefaultConfig(key.scope)
			cfg = &defaults
		}
		state.mu.Lock()
		r.finalizeLocked(ctx, key, *cfg, state)
		state.mu.Unlock()
	}
}

func (r *Reconciler) lookup(key trackKey) (*liveTracking, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	state, ok := r.live[key]
	return state, ok
}

// start creates the tracking record for key. Returns nil when another
// caller created it first.
func (r *Reconciler) start(key trackKey, act Activity) *liveTracking {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.live[key]; ok {
		return nil
	}
	state := &liveTracking{startedAt: r.now(), last: act}
	r.live[key] = state
	return state
}

// finalizeLocked ends the session: append to the store when stats are
// enabled, revoke the role, delete the alert. Caller holds state.mu.
func (r *Reconciler) finalizeLocked(ctx context.Context, key trackKey, cfg scopes.Config, state *liveTracking) {
	if state.done {
		return
	}
	state.done = true

	r.mu.Lock()
	delete(r.live, key)
	r.mu.Unlock()

	end := r.now()
	sess := stream.NewSession(state.startedAt, end, state.last.Category, state.last.Platform, state.last.URL)

	r.logger.Info("tracking finished",
		"scope", key.scope, "subject", key.subject, "duration_seconds", sess.DurationSeconds)

	if cfg.StatsEnabled {
		if err := r.sessions.Append(ctx, key.scope, key.subject, sess, cfg.RetentionDays); err != nil {
			r.logger.Error("recording session failed",
				"scope", key.scope, "subject", key.subject, "error", err)
		}
	}

	if state.roleGranted && cfg.RoleMarker != "" {
		r.sinkCall(ctx, "revoke role", key, func(ctx context.Context) error {
			return r.sink.RevokeRole(ctx, key.scope, key.subject, cfg.RoleMarker)
		})
	}
	if state.alert != nil && cfg.AlertAutodelete {
		handle := *state.alert
		r.sinkCall(ctx, "delete alert", key, func(ctx context.Context) error {
			return r.sink.DeleteAlert(ctx, key.scope, handle)
		})
	}
	state.roleGranted = false
	state.alert = nil
}

func (r *Reconciler) postAlert(ctx context.Context, key trackKey, cfg scopes.Config, state *liveTracking, act Activity) {
	alert := rolesink.Alert{
		ChannelID: cfg.AlertChannel,
		Subject:   key.subject,
		Category:  act.Category,
		URL:       act.URL,
	}
	callCtx, cancel := context.WithTimeout(ctx, r.sinkTimeout)
	defer cancel()

	handle, err := r.sink.PostAlert(callCtx, key.scope, alert)
	if err != nil {
		r.logger.Warn("role sink call failed",
			"op", "post alert", "scope", key.scope, "subject", key.subject, "error", err)
		return
	}
	state.alert = &handle
}

// sinkCall runs a role-sink operation with a bounded timeout. Failures are
// logged and dropped; they never block session state.
func (r *Reconciler) sinkCall(ctx context.Context, op string, key trackKey, fn func(context.Context) error) bool {
	callCtx, cancel := context.WithTimeout(ctx, r.sinkTimeout)
	defer cancel()

	if err := fn(callCtx); err != nil {
		r.logger.Warn("role sink call failed",
			"op", op, "scope", key.scope, "subject", key.subject, "error", err)
		return false
	}
	return true
}
