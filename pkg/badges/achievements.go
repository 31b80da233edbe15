package badges

import (
	"context"
	"fmt"
	"time"

	"github.com/castwatch/castwatch/pkg/stream"
)

// Achievement is a scope-wide superlative held by at most one subject.
type Achievement struct {
	ID          string
	Name        string
	Description string
	Emoji       string
	Minimum     float64
	Value       func(sessions []stream.Session) float64
}

// AchievementStatus is the evaluation result for one achievement.
type AchievementStatus struct {
	HolderID    string  `json:"holder_id,omitempty"`
	HasHolder   bool    `json:"has_holder"`
	Value       float64 `json:"value"`
	Minimum     float64 `json:"minimum"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Emoji       string  `json:"emoji"`
}

// Achievements returns the full achievement table.
func Achievements() []Achievement {
	return []Achievement{
		{
			ID:          "marathon_king",
			Name:        "Marathon King/Queen",
			Description: "Longest single stream session in the community (minimum 1 hour)",
			Emoji:       "👑",
			Minimum:     1,
			Value: func(sessions []stream.Session) float64 {
				return float64(longestSeconds(sessions)) / 3600
			},
		},
		{
			ID:          "consistency_master",
			Name:        "Consistency Master",
			Description: "Longest streaming streak in the community (minimum 2 days)",
			Emoji:       "🎯",
			Minimum:     2,
			Value: func(sessions []stream.Session) float64 {
				return float64(maxStreakDays(sessions))
			},
		},
		{
			ID:          "time_champion",
			Name:        "Time Champion",
			Description: "Most total hours streamed in the community (minimum 1 hour)",
			Emoji:       "⏱️",
			Minimum:     1,
			Value: func(sessions []stream.Session) float64 {
				return float64(totalSeconds(sessions)) / 3600
			},
		},
		{
			ID:          "stream_champion",
			Name:        "Stream Champion",
			Description: "Most streams completed in the community (minimum 1 stream)",
			Emoji:       "🏅",
			Minimum:     1,
			Value: func(sessions []stream.Session) float64 {
				return float64(len(sessions))
			},
		},
		{
			ID:          "weekly_legend",
			Name:        "Weekly Legend",
			Description: "Most hours in a single week in the community (minimum 1 hour)",
			Emoji:       "📆",
			Minimum:     1,
			Value: func(sessions []stream.Session) float64 {
				return float64(maxBucketHours(sessions, isoWeekKey))
			},
		},
		{
			ID:          "monthly_master",
			Name:        "Monthly Master",
			Description: "Most hours in a single month in the community (minimum 1 hour)",
			Emoji:       "📊",
			Minimum:     1,
			Value: func(sessions []stream.Session) float64 {
				return float64(maxBucketHours(sessions, monthKey))
			},
		},
	}
}

// Engine evaluates badges and achievements against the session store.
type Engine struct {
	store stream.Store
}

// NewEngine creates an Engine over store.
func NewEngine(store stream.Store) *Engine {
	return &Engine{store: store}
}

// MemberBadges evaluates every badge for one subject. An unknown subject
// yields all-unearned results.
func (e *Engine) MemberBadges(ctx context.Context, scopeID, subject string) (map[string]Status, error) {
	sessions, err := e.store.Query(ctx, scopeID, subject, time.Time{})
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	return Evaluate(sessions), nil
}

// ScopeAchievements evaluates every achievement across a scope's subjects.
// The highest value clearing the minimum wins; ties keep the earlier subject
// in the scope's stable subject order, so results are deterministic.
func (e *Engine) ScopeAchievements(ctx context.Context, scopeID string) (map[string]AchievementStatus, error) {
	subjects, err := e.store.Subjects(ctx, scopeID)
	if err != nil {
		return nil, fmt.Errorf("listing subjects: %w", err)
	}

	sessionsBySubject := make(map[string][]stream.Session, len(subjects))
	for _, subject := range subjects {
		sessions, err := e.store.Query(ctx, scopeID, subject, time.Time{})
		if err != nil {
			return nil, fmt.Errorf("querying sessions: %w", err)
		}
		sessionsBySubject[subject] = sessions
	}

	result := make(map[string]AchievementStatus)
	for _, ach := range Achievements() {
		status := AchievementStatus{
			Minimum:     ach.Minimum,
			Name:        ach.Name,
			Description: ach.Description,
			Emoji:       ach.Emoji,
		}
		for _, subject := range subjects {
			value := ach.Value(sessionsBySubject[subject])
			if value >= ach.Minimum && value > status.Value {
				status.Value = value
				status.HolderID = subject
				status.HasHolder = true
			}
		}
		result[ach.ID] = status
	}
	return result, nil
}
