package platform

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLifecycleStartStop(t *testing.T) {
	lc := NewLifecycle()

	var order []string
	lc.OnStart(func(context.Context) error {
		order = append(order, "start-a")
		return nil
	})
	lc.OnStart(func(context.Context) error {
		order = append(order, "start-b")
		return nil
	})
	lc.OnStop(func(context.Context) error {
		order = append(order, "stop-a")
		return nil
	})
	lc.OnStop(func(context.Context) error {
		order = append(order, "stop-b")
		return nil
	})

	ctx := context.Background()
	require.NoError(t, lc.Start(ctx))
	require.NoError(t, lc.Stop(ctx))

	// Stops run in reverse registration order.
	assert.Equal(t, []string{"start-a", "start-b", "stop-b", "stop-a"}, order)
}

func TestLifecycleDoubleStart(t *testing.T) {
	lc := NewLifecycle()
	ctx := context.Background()

	require.NoError(t, lc.Start(ctx))
	err := lc.Start(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already started")
}

func TestLifecycleStopWithoutStart(t *testing.T) {
	lc := NewLifecycle()
	assert.NoError(t, lc.Stop(context.Background()))
}

func TestLifecycleStartFailureRollsBack(t *testing.T) {
	lc := NewLifecycle()

	var stopped []string
	lc.OnStart(func(context.Context) error { return nil })
	lc.OnStop(func(context.Context) error {
		stopped = append(stopped, "first")
		return nil
	})
	lc.OnStart(func(context.Context) error { return errors.New("boom") })

	err := lc.Start(context.Background())
	require.Error(t, err)
	// The already-started component was rolled back.
	assert.Equal(t, []string{"first"}, stopped)
}

func TestLifecycleStopCollectsErrors(t *testing.T) {
	lc := NewLifecycle()

	lc.OnStop(func(context.Context) error { return errors.New("stop failed") })

	ctx := context.Background()
	require.NoError(t, lc.Start(ctx))

	err := lc.Stop(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "errors during shutdown")
}

type testCloser struct {
	closed bool
	err    error
}

func (c *testCloser) Close() error {
	c.closed = true
	return c.err
}

func TestLifecycleRegisterCloser(t *testing.T) {
	lc := NewLifecycle()
	closer := &testCloser{}
	lc.RegisterCloser(closer)

	ctx := context.Background()
	require.NoError(t, lc.Start(ctx))
	require.NoError(t, lc.Stop(ctx))
	assert.True(t, closer.closed)
}
