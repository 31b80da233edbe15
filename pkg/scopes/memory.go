package scopes

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore implements Store using in-memory maps.
type MemoryStore struct {
	mu      sync.RWMutex
	configs map[string]Config
	filters map[filterKey]Flags
}

type filterKey struct {
	scope string
	kind  string // "subject" or "group"
	id    string
}

// NewMemoryStore creates a new in-memory scope store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		configs: make(map[string]Config),
		filters: make(map[filterKey]Flags),
	}
}

// Get retrieves a scope's configuration. Returns nil, nil when unknown.
func (m *MemoryStore) Get(_ context.Context, scopeID string) (*Config, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cfg, ok := m.configs[scopeID]
	if !ok {
		return nil, nil //nolint:nilnil // Store interface specifies nil,nil for not-found
	}
	return &cfg, nil
}

// Put stores a scope's configuration after normalizing it.
func (m *MemoryStore) Put(_ context.Context, cfg Config) error {
	cfg.Normalize()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.configs[cfg.ScopeID] = cfg
	return nil
}

// Delete removes a scope's configuration and its filter entries.
func (m *MemoryStore) Delete(_ context.Context, scopeID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.configs, scopeID)
	for key := range m.filters {
		if key.scope == scopeID {
			delete(m.filters, key)
		}
	}
	return nil
}

// Scopes returns all configured scope IDs, sorted.
func (m *MemoryStore) Scopes(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.configs))
	for id := range m.configs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// SubjectFlags returns the filter entry for a subject.
func (m *MemoryStore) SubjectFlags(_ context.Context, scopeID, subject string) (Flags, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.filters[filterKey{scopeID, "subject", subject}], nil
}

// SetSubjectFlags stores the filter entry for a subject.
func (m *MemoryStore) SetSubjectFlags(_ context.Context, scopeID, subject string, f Flags) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.filters[filterKey{scopeID, "subject", subject}] = f
	return nil
}

// GroupFlags returns the filter entry for a group.
func (m *MemoryStore) GroupFlags(_ context.Context, scopeID, group string) (Flags, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.filters[filterKey{scopeID, "group", group}], nil
}

// SetGroupFlags stores the filter entry for a group.
func (m *MemoryStore) SetGroupFlags(_ context.Context, scopeID, group string, f Flags) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.filters[filterKey{scopeID, "group", group}] = f
	return nil
}

// Close releases resources. The memory store holds none.
func (*MemoryStore) Close() error {
	return nil
}

// Verify interface compliance.
var _ Store = (*MemoryStore)(nil)
