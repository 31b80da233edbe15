package stats

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/castwatch/castwatch/pkg/scopes"
	"github.com/castwatch/castwatch/pkg/stream"
)

// Aggregator computes read-side statistics over the session store. It never
// mutates the store and may run concurrently with writers.
type Aggregator struct {
	store stream.Store
	now   func() time.Time
}

// AggregatorOption configures an Aggregator.
type AggregatorOption func(*Aggregator)

// WithClock overrides the time source. Used in tests.
func WithClock(now func() time.Time) AggregatorOption {
	return func(a *Aggregator) { a.now = now }
}

// NewAggregator creates an Aggregator over store.
func NewAggregator(store stream.Store, opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{store: store, now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// MemberStats summarizes one subject's sessions over a period.
type MemberStats struct {
	SubjectID     string           `json:"subject_id"`
	Period        string           `json:"period"`
	TotalSessions int              `json:"total_sessions"`
	TotalSeconds  int64            `json:"total_seconds"`
	AvgSeconds    float64          `json:"avg_seconds"`
	PerWeek       float64          `json:"per_week"`
	PerMonth      float64          `json:"per_month"`
	Sessions      []stream.Session `json:"sessions"`
}

// Member computes a subject's totals and rates over the period. An unknown
// subject yields zero-valued aggregates.
func (a *Aggregator) Member(ctx context.Context, scopeID, subject string, period Period) (MemberStats, error) {
	now := a.now()
	sessions, err := a.store.Query(ctx, scopeID, subject, period.Since(now))
	if err != nil {
		return MemberStats{}, fmt.Errorf("querying sessions: %w", err)
	}

	out := MemberStats{
		SubjectID:     subject,
		Period:        period.String(),
		TotalSessions: len(sessions),
		Sessions:      sessions,
	}
	for _, s := range sessions {
		out.TotalSeconds += s.DurationSeconds
	}
	if len(sessions) > 0 {
		out.AvgSeconds = float64(out.TotalSeconds) / float64(len(sessions))
	}

	spanDays := a.spanDays(period, sessions, now)
	out.PerWeek = float64(len(sessions)) / (spanDays / 7)
	out.PerMonth = float64(len(sessions)) / (spanDays / 30)

	return out, nil
}

// spanDays is the number of days the rate normalization covers: exactly N
// for an "Nd" period, now minus the earliest session start for "all",
// floored at one day either way.
func (a *Aggregator) spanDays(period Period, sessions []stream.Session, now time.Time) float64 {
	var span float64
	if period.All {
		if len(sessions) > 0 {
			span = now.Sub(sessions[0].Start).Hours() / 24
		}
	} else {
		span = float64(period.Days)
	}
	if span < 1 {
		span = 1
	}
	return span
}

// TopEntry is one row of a ranking.
type TopEntry struct {
	SubjectID  string  `json:"subject_id"`
	Value      int64   `json:"value"`
	ValueHours float64 `json:"value_hours,omitempty"`
}

// Top ranks a scope's subjects by the metric over the period. Subjects with
// no sessions in the window are excluded. Ordering is deterministic: value
// descending, then subject ID ascending. The limit is clamped to the
// administrative ceiling.
func (a *Aggregator) Top(ctx context.Context, scopeID string, metric Metric, period Period, limit int) ([]TopEntry, error) {
	if limit < 1 {
		limit = scopes.DefaultTopLimit
	}
	if limit > scopes.MaxTopLimit {
		limit = scopes.MaxTopLimit
	}

	subjects, err := a.store.Subjects(ctx, scopeID)
	if err != nil {
		return nil, fmt.Errorf("listing subjects: %w", err)
	}

	since := period.Since(a.now())
	entries := make([]TopEntry, 0, len(subjects))
	for _, subject := range subjects {
		sessions, err := a.store.Query(ctx, scopeID, subject, since)
		if err != nil {
			return nil, fmt.Errorf("querying sessions: %w", err)
		}
		if len(sessions) == 0 {
			continue
		}

		entry := TopEntry{SubjectID: subject}
		switch metric {
		case MetricCount:
			entry.Value = int64(len(sessions))
		default:
			for _, s := range sessions {
				entry.Value += s.DurationSeconds
			}
			entry.ValueHours = float64(entry.Value) / 3600
		}
		entries = append(entries, entry)
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Value != entries[j].Value {
			return entries[i].Value > entries[j].Value
		}
		return entries[i].SubjectID < entries[j].SubjectID
	})

	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// HeatCell is one (day, hour) bucket of a weekly heatmap. Day 0 is Sunday,
// matching time.Weekday.
type HeatCell struct {
	Day   int `json:"day"`
	Hour  int `json:"hour"`
	Count int `json:"count"`
}

// Heatmap buckets session starts into a 7x24 UTC grid. Always returns all
// 168 cells in (day, hour) order. An empty subject aggregates the whole
// scope.
func (a *Aggregator) Heatmap(ctx context.Context, scopeID, subject string, period Period) ([]HeatCell, error) {
	cells := make([]HeatCell, 7*24)
	for i := range cells {
		cells[i] = HeatCell{Day: i / 24, Hour: i % 24}
	}

	subjects := []string{subject}
	if subject == "" {
		var err error
		subjects, err = a.store.Subjects(ctx, scopeID)
		if err != nil {
			return nil, fmt.Errorf("listing subjects: %w", err)
		}
	}

	since := period.Since(a.now())
	for _, subj := range subjects {
		sessions, err := a.store.Query(ctx, scopeID, subj, since)
		if err != nil {
			return nil, fmt.Errorf("querying sessions: %w", err)
		}
		for _, s := range sessions {
			start := s.Start.UTC()
			cells[int(start.Weekday())*24+start.Hour()].Count++
		}
	}
	return cells, nil
}
