package platform

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcherSignalsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n"), 0o600))

	w, err := NewWatcher(path)
	require.NoError(t, err)
	defer func() { _ = w.Close() }()

	require.NoError(t, os.WriteFile(path, []byte("server:\n  address: \":9090\"\n"), 0o600))

	select {
	case <-w.Events():
	case <-time.After(5 * time.Second):
		t.Fatal("no change signal after write")
	}
}

func TestWatcherMissingFile(t *testing.T) {
	_, err := NewWatcher(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestWatcherCloseIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n"), 0o600))

	w, err := NewWatcher(path)
	require.NoError(t, err)

	assert.NoError(t, w.Close())
	assert.NoError(t, w.Close())
}

func TestWatcherCloseEndsEvents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n"), 0o600))

	w, err := NewWatcher(path)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	// Consumers range over Events; the channel must close so they exit.
	select {
	case _, ok := <-w.Events():
		assert.False(t, ok)
	case <-time.After(5 * time.Second):
		t.Fatal("events channel still open after Close")
	}
}

func TestWatchConfigReloadsScopes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("scopes:\n  guild-1:\n    role_marker: before\n"), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	p, err := New(
		WithConfig(cfg),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	require.NoError(t, err)
	defer func() { _ = p.Close() }()

	ctx := context.Background()
	require.NoError(t, p.Start(ctx))
	defer func() { _ = p.Stop(ctx) }()

	require.NoError(t, p.WatchConfig(path))

	require.NoError(t, os.WriteFile(path, []byte("scopes:\n  guild-1:\n    role_marker: after\n"), 0o600))

	assert.Eventually(t, func() bool {
		stored, err := p.ScopeStore().Get(ctx, "guild-1")
		return err == nil && stored != nil && stored.RoleMarker == "after"
	}, 5*time.Second, 50*time.Millisecond)
}
