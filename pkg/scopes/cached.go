package scopes

import (
	"context"
	"sync"
)

// Cached wraps a Store with a read-through cache of scope configurations,
// invalidated on write. Filter entries pass through uncached since they are
// read far less often than configs on the hot ingest path.
type Cached struct {
	inner Store

	mu    sync.RWMutex
	cache map[string]*Config
}

// NewCached wraps inner with a config cache.
func NewCached(inner Store) *Cached {
	return &Cached{
		inner: inner,
		cache: make(map[string]*Config),
	}
}

// Get returns the cached config for a scope, falling back to the inner store
// on a miss. Negative results are not cached.
func (c *Cached) Get(ctx context.Context, scopeID string) (*Config, error) {
	c.mu.RLock()
	cfg, ok := c.cache[scopeID]
	c.mu.RUnlock()
	if ok {
		copied := *cfg
		return &copied, nil
	}

	cfg, err := c.inner.Get(ctx, scopeID)
	if err != nil || cfg == nil {
		return cfg, err
	}

	c.mu.Lock()
	c.cache[scopeID] = cfg
	c.mu.Unlock()

	copied := *cfg
	return &copied, nil
}

// Put writes through to the inner store and invalidates the cached entry.
func (c *Cached) Put(ctx context.Context, cfg Config) error {
	if err := c.inner.Put(ctx, cfg); err != nil {
		return err
	}

	c.mu.Lock()
	delete(c.cache, cfg.ScopeID)
	c.mu.Unlock()
	return nil
}

// Delete removes the scope from the inner store and the cache.
func (c *Cached) Delete(ctx context.Context, scopeID string) error {
	if err := c.inner.Delete(ctx, scopeID); err != nil {
		return err
	}

	c.mu.Lock()
	delete(c.cache, scopeID)
	c.mu.Unlock()
	return nil
}

// Scopes delegates to the inner store.
func (c *Cached) Scopes(ctx context.Context) ([]string, error) {
	return c.inner.Scopes(ctx)
}

// SubjectFlags delegates to the inner store.
func (c *Cached) SubjectFlags(ctx context.Context, scopeID, subject string) (Flags, error) {
	return c.inner.SubjectFlags(ctx, scopeID, subject)
}

// SetSubjectFlags delegates to the inner store.
func (c *Cached) SetSubjectFlags(ctx context.Context, scopeID, subject string, f Flags) error {
	return c.inner.SetSubjectFlags(ctx, scopeID, subject, f)
}

// GroupFlags delegates to the inner store.
func (c *Cached) GroupFlags(ctx context.Context, scopeID, group string) (Flags, error) {
	return c.inner.GroupFlags(ctx, scopeID, group)
}

// SetGroupFlags delegates to the inner store.
func (c *Cached) SetGroupFlags(ctx context.Context, scopeID, group string, f Flags) error {
	return c.inner.SetGroupFlags(ctx, scopeID, group, f)
}

// Close closes the inner store.
func (c *Cached) Close() error {
	return c.inner.Close()
}

// Verify interface compliance.
var _ Store = (*Cached)(nil)
