package ingest

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castwatch/castwatch/pkg/eligibility"
	"github.com/castwatch/castwatch/pkg/presence"
	"github.com/castwatch/castwatch/pkg/rolesink"
	"github.com/castwatch/castwatch/pkg/scopes"
	"github.com/castwatch/castwatch/pkg/stream"
)

const (
	testScopeID = "scope-42"
	testSubject = "subject-7"
)

func newDispatcher(t *testing.T) (*Dispatcher, *stream.MemoryStore, *time.Time) {
	t.Helper()

	configs := scopes.NewMemoryStore()
	cfg := scopes.DefaultConfig(testScopeID)
	require.NoError(t, configs.Put(context.Background(), cfg))

	now := time.Unix(1000, 0).UTC()
	clock := &now

	sessions := stream.NewMemoryStore(stream.WithClock(func() time.Time { return *clock }))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	gate := eligibility.NewGate(eligibility.StaticMemberships{}, configs)
	rec := presence.NewReconciler(configs, sessions, gate, rolesink.Noop{}, logger,
		presence.WithClock(func() time.Time { return *clock }))

	return NewDispatcher(rec, logger, 4), sessions, clock
}

func streamingEvent() Event {
	return Event{
		ScopeID:   testScopeID,
		SubjectID: testSubject,
		Activities: []presence.Activity{
			presence.Streaming("twitch", "https://twitch.tv/someone", "Factorio", "live"),
		},
	}
}

func TestValidateRejectsMissingKey(t *testing.T) {
	err := (&Event{SubjectID: testSubject}).Validate()
	assert.ErrorIs(t, err, ErrInvalidEvent)

	err = (&Event{ScopeID: testScopeID}).Validate()
	assert.ErrorIs(t, err, ErrInvalidEvent)
}

func TestValidateFillsDefaults(t *testing.T) {
	event := Event{ScopeID: testScopeID, SubjectID: testSubject}
	require.NoError(t, event.Validate())

	assert.NotEmpty(t, event.ID)
	assert.Equal(t, TypeActivity, event.Type)
	assert.False(t, event.Timestamp.IsZero())
}

func TestValidateKeepsExplicitFields(t *testing.T) {
	ts := time.Unix(5000, 0).UTC()
	event := Event{ID: "evt-1", Type: TypeJoin, ScopeID: testScopeID, SubjectID: testSubject, Timestamp: ts}
	require.NoError(t, event.Validate())

	assert.Equal(t, "evt-1", event.ID)
	assert.Equal(t, TypeJoin, event.Type)
	assert.Equal(t, ts, event.Timestamp)
}

func TestDispatchSyncRecordsSession(t *testing.T) {
	ctx := context.Background()
	dispatcher, sessions, clock := newDispatcher(t)

	require.NoError(t, dispatcher.DispatchSync(ctx, streamingEvent()))

	*clock = time.Unix(4600, 0).UTC()
	stop := Event{ScopeID: testScopeID, SubjectID: testSubject}
	require.NoError(t, dispatcher.DispatchSync(ctx, stop))

	recorded, err := sessions.Query(ctx, testScopeID, testSubject, time.Time{})
	require.NoError(t, err)
	require.Len(t, recorded, 1)
	assert.Equal(t, int64(3600), recorded[0].DurationSeconds)
}

func TestDispatchAsyncCompletesBeforeWait(t *testing.T) {
	ctx := context.Background()
	dispatcher, sessions, clock := newDispatcher(t)

	require.NoError(t, dispatcher.Dispatch(ctx, streamingEvent()))
	dispatcher.Wait()

	*clock = time.Unix(2000, 0).UTC()
	require.NoError(t, dispatcher.Dispatch(ctx, Event{ScopeID: testScopeID, SubjectID: testSubject}))
	dispatcher.Wait()

	recorded, err := sessions.Query(ctx, testScopeID, testSubject, time.Time{})
	require.NoError(t, err)
	assert.Len(t, recorded, 1)
}

// ctxCheckedConfigs fails reads once the context is canceled, the way a
// database-backed store does.
type ctxCheckedConfigs struct {
	scopes.Store
}

func (s ctxCheckedConfigs) Get(ctx context.Context, scopeID string) (*scopes.Config, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.Store.Get(ctx, scopeID)
}

func TestDispatchOutlivesCallerContext(t *testing.T) {
	configs := scopes.NewMemoryStore()
	require.NoError(t, configs.Put(context.Background(), scopes.DefaultConfig(testScopeID)))
	checked := ctxCheckedConfigs{Store: configs}

	sessions := stream.NewMemoryStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	gate := eligibility.NewGate(eligibility.StaticMemberships{}, checked)
	rec := presence.NewReconciler(checked, sessions, gate, rolesink.Noop{}, logger)
	dispatcher := NewDispatcher(rec, logger, 4)

	// The source cancels its context as soon as Dispatch accepts the
	// event, as an HTTP handler does after writing its response.
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, dispatcher.Dispatch(ctx, streamingEvent()))
	cancel()
	dispatcher.Wait()

	assert.True(t, rec.Tracking(testScopeID, testSubject))
}

func TestDispatchRejectsInvalidEvent(t *testing.T) {
	dispatcher, _, _ := newDispatcher(t)

	err := dispatcher.Dispatch(context.Background(), Event{})
	assert.ErrorIs(t, err, ErrInvalidEvent)
}

func TestDispatchManySubjectsConcurrently(t *testing.T) {
	ctx := context.Background()
	dispatcher, sessions, clock := newDispatcher(t)

	subjects := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	for _, subject := range subjects {
		event := streamingEvent()
		event.SubjectID = subject
		require.NoError(t, dispatcher.Dispatch(ctx, event))
	}
	dispatcher.Wait()

	*clock = time.Unix(2000, 0).UTC()
	for _, subject := range subjects {
		require.NoError(t, dispatcher.Dispatch(ctx, Event{ScopeID: testScopeID, SubjectID: subject}))
	}
	dispatcher.Wait()

	got, err := sessions.Subjects(ctx, testScopeID)
	require.NoError(t, err)
	assert.Len(t, got, len(subjects))
}
