// Package ingest accepts presence-source events and dispatches them to the
// reconciler. Events for different subjects process concurrently; per-key
// ordering is enforced downstream by the reconciler's tracking locks.
package ingest

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/castwatch/castwatch/pkg/presence"
)

// Type discriminates event kinds.
type Type string

const (
	// TypeActivity is an activity-list change.
	TypeActivity Type = "activity"

	// TypeJoin is a membership join.
	TypeJoin Type = "join"
)

// Event is one presence-source notification.
type Event struct {
	ID         string              `json:"id"`
	Type       Type                `json:"type"`
	ScopeID    string              `json:"scope_id"`
	SubjectID  string              `json:"subject_id"`
	Activities []presence.Activity `json:"activities"`
	Timestamp  time.Time           `json:"timestamp"`
}

// ErrInvalidEvent rejects an event missing its scope or subject.
var ErrInvalidEvent = errors.New("invalid event")

// Validate fills defaults and checks required fields. A missing ID is
// assigned; a missing type defaults to activity.
func (e *Event) Validate() error {
	if e.ScopeID == "" || e.SubjectID == "" {
		return ErrInvalidEvent
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Type == "" {
		e.Type = TypeActivity
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	return nil
}

const (
	defaultWorkers = 32

	// processTimeout bounds one event's trip through the reconciler,
	// including store and sink calls.
	processTimeout = 30 * time.Second
)

// Dispatcher fans events out to the reconciler with bounded concurrency.
type Dispatcher struct {
	reconciler *presence.Reconciler
	logger     *slog.Logger

	sem chan struct{}
	wg  sync.WaitGroup
}

// NewDispatcher creates a Dispatcher. workers bounds how many events
// process at once; values below one use the default.
func NewDispatcher(reconciler *presence.Reconciler, logger *slog.Logger, workers int) *Dispatcher {
	if workers < 1 {
		workers = defaultWorkers
	}
	return &Dispatcher{
		reconciler: reconciler,
		logger:     logger,
		sem:        make(chan struct{}, workers),
	}
}

// Dispatch validates the event and processes it asynchronously. Processing
// errors are logged, not returned: a misbehaving scope must not stop the
// stream of events for other scopes.
func (d *Dispatcher) Dispatch(ctx context.Context, event Event) error {
	if err := event.Validate(); err != nil {
		return err
	}

	select {
	case d.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	// The caller's context governs only the semaphore wait above. An
	// accepted event must outlive the request that delivered it, so
	// processing runs on a detached context with its own deadline.
	procCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), processTimeout)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer cancel()
		defer func() { <-d.sem }()
		d.process(procCtx, event)
	}()
	return nil
}

// DispatchSync processes the event on the calling goroutine.
func (d *Dispatcher) DispatchSync(ctx context.Context, event Event) error {
	if err := event.Validate(); err != nil {
		return err
	}
	d.process(ctx, event)
	return nil
}

func (d *Dispatcher) process(ctx context.Context, event Event) {
	var err error
	switch event.Type {
	case TypeJoin:
		err = d.reconciler.SubjectJoined(ctx, event.ScopeID, event.SubjectID, event.Activities)
	default:
		err = d.reconciler.Reconcile(ctx, event.ScopeID, event.SubjectID, event.Activities)
	}
	if err != nil {
		d.logger.Error("processing event failed",
			"event_id", event.ID, "type", event.Type,
			"scope", event.ScopeID, "subject", event.SubjectID, "error", err)
	}
}

// Wait blocks until all in-flight events finish.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
