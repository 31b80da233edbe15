package stream

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore implements Store using in-memory per-key session logs.
// Each key owns its own lock, so appends on one key serialize while other
// keys proceed in parallel.
type MemoryStore struct {
	mu   sync.RWMutex
	logs map[logKey]*subjectLog

	now func() time.Time
}

type logKey struct {
	scope   string
	subject string
}

// subjectLog holds one key's sessions, ascending by start. The log mutex
// serializes the read-modify-write append path per key.
type subjectLog struct {
	mu       sync.Mutex
	sessions []Session
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithClock overrides the time source used for retention cutoffs. Used in
// tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *MemoryStore) { m.now = now }
}

// NewMemoryStore creates a new in-memory session store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	m := &MemoryStore{
		logs: make(map[logKey]*subjectLog),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// log returns the subject log for key, creating it when create is set.
func (m *MemoryStore) log(key logKey, create bool) *subjectLog {
	m.mu.RLock()
	l, ok := m.logs[key]
	m.mu.RUnlock()
	if ok || !create {
		return l
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if l, ok = m.logs[key]; ok {
		return l
	}
	l = &subjectLog{}
	m.logs[key] = l
	return l
}

// Append inserts a session in start order and prunes entries older than the
// retention window. Insert and prune run under the key's lock.
func (m *MemoryStore) Append(_ context.Context, scope, subject string, s Session, retentionDays int) error {
	l := m.log(logKey{scope, subject}, true)

	l.mu.Lock()
	defer l.mu.Unlock()

	i := sort.Search(len(l.sessions), func(i int) bool {
		return l.sessions[i].Start.After(s.Start)
	})
	l.sessions = append(l.sessions, Session{})
	copy(l.sessions[i+1:], l.sessions[i:])
	l.sessions[i] = s

	cutoff := RetentionCutoff(m.now(), retentionDays)
	l.sessions = pruneBefore(l.sessions, cutoff)
	return nil
}

// Query returns a copy of the subject's sessions with start >= since.
func (m *MemoryStore) Query(_ context.Context, scope, subject string, since time.Time) ([]Session, error) {
	l := m.log(logKey{scope, subject}, false)
	if l == nil {
		return nil, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Session, 0, len(l.sessions))
	for _, s := range l.sessions {
		if !s.Start.Before(since) {
			out = append(out, s)
		}
	}
	return out, nil
}

// DeleteBefore removes sessions with start < cutoff from the subject's log.
func (m *MemoryStore) DeleteBefore(_ context.Context, scope, subject string, cutoff time.Time) (int, error) {
	l := m.log(logKey{scope, subject}, false)
	if l == nil {
		return 0, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	before := len(l.sessions)
	l.sessions = pruneBefore(l.sessions, cutoff)
	return before - len(l.sessions), nil
}

// Subjects returns the subjects with recorded sessions in the scope, sorted.
func (m *MemoryStore) Subjects(_ context.Context, scope string) ([]string, error) {
	m.mu.RLock()
	subjects := make([]string, 0)
	for key, l := range m.logs {
		if key.scope != scope {
			continue
		}
		l.mu.Lock()
		n := len(l.sessions)
		l.mu.Unlock()
		if n > 0 {
			subjects = append(subjects, key.subject)
		}
	}
	m.mu.RUnlock()

	sort.Strings(subjects)
	return subjects, nil
}

// Close releases resources. The memory store holds none.
func (*MemoryStore) Close() error {
	return nil
}

// pruneBefore drops sessions with start < cutoff. The input is ascending by
// start, so the survivors are a suffix.
func pruneBefore(sessions []Session, cutoff time.Time) []Session {
	i := sort.Search(len(sessions), func(i int) bool {
		return !sessions[i].Start.Before(cutoff)
	})
	if i == 0 {
		return sessions
	}
	return append(sessions[:0], sessions[i:]...)
}

// Verify interface compliance.
var _ Store = (*MemoryStore)(nil)
