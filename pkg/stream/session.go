// Package stream provides the session record model and the Store interface
// for per-subject session persistence. A Session is one finalized start→end
// streaming interval; sessions are immutable once created and owned by a
// (scope, subject) key. Implementations must serialize appends per key while
// allowing unrelated keys to proceed concurrently.
package stream

import (
	"time"
)

// Session represents one finalized streaming interval. It is created only at
// finalize time and never mutated afterwards.
type Session struct {
	// Start is when the stream was first observed.
	Start time.Time `json:"start"`

	// End is when the stream ended. End is never before Start.
	End time.Time `json:"end"`

	// DurationSeconds is End minus Start in whole seconds.
	DurationSeconds int64 `json:"duration_seconds"`

	// Category is the game or content label active at session start, if known.
	Category string `json:"category,omitempty"`

	// Platform is the streaming platform tag, if known.
	Platform string `json:"platform,omitempty"`

	// URL is the stream source URL, if known.
	URL string `json:"url,omitempty"`
}

// NewSession builds a finalized Session from a start/end pair and the
// last-known activity metadata. An end before start is clamped to start so
// the duration invariant (duration == end-start, duration >= 0) always holds.
func NewSession(start, end time.Time, category, platform, url string) Session {
	if end.Before(start) {
		end = start
	}
	return Session{
		Start:           start,
		End:             end,
		DurationSeconds: int64(end.Sub(start) / time.Second),
		Category:        category,
		Platform:        platform,
		URL:             url,
	}
}

// RetentionCutoff returns the oldest session start still retained for a
// retention window of the given number of days. Windows below one day are
// floored to one day.
func RetentionCutoff(now time.Time, days int) time.Time {
	if days < 1 {
		days = 1
	}
	return now.AddDate(0, 0, -days)
}
