// Package badges evaluates stateless rules over session lists: per-subject
// badges with earned/progress results and scope-wide single-winner
// achievements.
package badges

import (
	"fmt"
	"time"

	"github.com/castwatch/castwatch/pkg/stream"
)

// CheckFunc evaluates one badge rule over a subject's sessions.
type CheckFunc func(sessions []stream.Session) (earned bool, progress float64)

// Badge is one rule of the badge table.
type Badge struct {
	ID          string
	Name        string
	Description string
	Emoji       string
	Category    string
	Check       CheckFunc
}

// Status is the evaluation result for one badge.
type Status struct {
	Earned      bool    `json:"earned"`
	Progress    float64 `json:"progress"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Emoji       string  `json:"emoji"`
	Category    string  `json:"category"`
}

// Badges returns the full badge table.
func Badges() []Badge {
	return []Badge{
		{"first_stream", "First Steps", "Complete your first stream", "🌱", "beginner", countBadge(1)},
		{"10_streams", "Getting Started", "Complete 10 streams", "🌿", "streams", countBadge(10)},
		{"50_streams", "Regular Streamer", "Complete 50 streams", "🍃", "streams", countBadge(50)},
		{"100_streams", "Streaming Veteran", "Complete 100 streams", "🌳", "streams", countBadge(100)},
		{"10_hours", "10 Hour Club", "Stream for a total of 10 hours", "⏰", "time", hoursBadge(10)},
		{"50_hours", "50 Hour Club", "Stream for a total of 50 hours", "⌚", "time", hoursBadge(50)},
		{"100_hours", "Century Streamer", "Stream for a total of 100 hours", "⏳", "time", hoursBadge(100)},
		{"300_hours", "Legendary Streamer", "Stream for a total of 300 hours", "🏆", "time", hoursBadge(300)},
		{"2_day_streak", "On a Roll", "Stream for 2 consecutive days", "🔥", "consistency", streakBadge(2)},
		{"3_day_streak", "Stream Warrior", "Stream for 3 consecutive days", "💪", "consistency", streakBadge(3)},
		{"5_day_streak", "Unstoppable", "Stream for 5 consecutive days", "⚡", "consistency", streakBadge(5)},
		{"8_hours_week", "Weekly Grind", "Stream 8 hours in a single week", "📅", "dedication", weeklyHoursBadge(8)},
		{"15_hours_week", "Week Warrior Pro", "Stream 15 hours in a single week", "💎", "dedication", weeklyHoursBadge(15)},
		{"40_hours_month", "Monthly Champion", "Stream 40 hours in a single month", "👑", "dedication", monthlyHoursBadge(40)},
		{"marathon_session", "Marathon Runner", "Complete a single stream of 6+ hours", "🏃", "endurance", marathonBadge(6)},
	}
}

// Evaluate runs every badge rule over the session list.
func Evaluate(sessions []stream.Session) map[string]Status {
	result := make(map[string]Status)
	for _, badge := range Badges() {
		earned, progress := badge.Check(sessions)
		result[badge.ID] = Status{
			Earned:      earned,
			Progress:    progress,
			Name:        badge.Name,
			Description: badge.Description,
			Emoji:       badge.Emoji,
			Category:    badge.Category,
		}
	}
	return result
}

func countBadge(target int) CheckFunc {
	return func(sessions []stream.Session) (bool, float64) {
		count := len(sessions)
		return count >= target, capped(float64(count) / float64(target))
	}
}

func hoursBadge(targetHours int64) CheckFunc {
	target := targetHours * 3600
	return func(sessions []stream.Session) (bool, float64) {
		total := totalSeconds(sessions)
		return total >= target, capped(float64(total) / float64(target))
	}
}

func streakBadge(targetDays int) CheckFunc {
	return func(sessions []stream.Session) (bool, float64) {
		streak := maxStreakDays(sessions)
		return streak >= targetDays, capped(float64(streak) / float64(targetDays))
	}
}

func weeklyHoursBadge(targetHours int64) CheckFunc {
	return func(sessions []stream.Session) (bool, float64) {
		best := maxBucketHours(sessions, isoWeekKey)
		return best >= targetHours, capped(float64(best) / float64(targetHours))
	}
}

func monthlyHoursBadge(targetHours int64) CheckFunc {
	return func(sessions []stream.Session) (bool, float64) {
		best := maxBucketHours(sessions, monthKey)
		return best >= targetHours, capped(float64(best) / float64(targetHours))
	}
}

func marathonBadge(targetHours int64) CheckFunc {
	target := targetHours * 3600
	return func(sessions []stream.Session) (bool, float64) {
		longest := longestSeconds(sessions)
		return longest >= target, capped(float64(longest) / float64(target))
	}
}

func capped(progress float64) float64 {
	if progress > 1 {
		return 1
	}
	return progress
}

func totalSeconds(sessions []stream.Session) int64 {
	var total int64
	for _, s := range sessions {
		total += s.DurationSeconds
	}
	return total
}

func longestSeconds(sessions []stream.Session) int64 {
	var longest int64
	for _, s := range sessions {
		if s.DurationSeconds > longest {
			longest = s.DurationSeconds
		}
	}
	return longest
}

// maxStreakDays finds the longest run of consecutive UTC calendar days with
// at least one session start.
func maxStreakDays(sessions []stream.Session) int {
	if len(sessions) == 0 {
		return 0
	}

	days := make(map[int64]struct{}, len(sessions))
	for _, s := range sessions {
		days[epochDay(s.Start)] = struct{}{}
	}

	best := 0
	for day := range days {
		// Count runs only from their first day.
		if _, ok := days[day-1]; ok {
			continue
		}
		run := 1
		for {
			if _, ok := days[day+int64(run)]; !ok {
				break
			}
			run++
		}
		if run > best {
			best = run
		}
	}
	return best
}

// epochDay is the UTC calendar day as days since the Unix epoch.
func epochDay(t time.Time) int64 {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC).Unix() / 86400
}

// maxBucketHours sums durations per bucket and returns the best bucket in
// whole hours.
func maxBucketHours(sessions []stream.Session, key func(time.Time) string) int64 {
	buckets := make(map[string]int64)
	for _, s := range sessions {
		buckets[key(s.Start)] += s.DurationSeconds
	}

	var best int64
	for _, seconds := range buckets {
		if hours := seconds / 3600; hours > best {
			best = hours
		}
	}
	return best
}

func isoWeekKey(t time.Time) string {
	year, week := t.UTC().ISOWeek()
	return fmt.Sprintf("%04d-W%02d", year, week)
}

func monthKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}
