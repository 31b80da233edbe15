// Package presence turns activity-change events into session boundaries.
// The reconciler owns the Idle/Tracking state machine per (scope, subject)
// and drives the session store and role sink from it.
package presence

import (
	"strings"
)

// Kind discriminates activity variants.
type Kind string

const (
	// KindStreaming is a live broadcast on some platform.
	KindStreaming Kind = "streaming"

	// KindOther covers every activity that is not a broadcast: games,
	// listening, custom statuses. Only its presence matters.
	KindOther Kind = "other"
)

// Activity is one entry of a subject's observable activity list.
type Activity struct {
	Kind Kind `json:"kind"`

	// Streaming fields. Empty for KindOther.
	Platform string `json:"platform,omitempty"`
	URL      string `json:"url,omitempty"`
	Category string `json:"category,omitempty"`
	Title    string `json:"title,omitempty"`
}

// Streaming constructs a streaming activity.
func Streaming(platform, url, category, title string) Activity {
	return Activity{Kind: KindStreaming, Platform: platform, URL: url, Category: category, Title: title}
}

// Other constructs a non-streaming activity.
func Other() Activity {
	return Activity{Kind: KindOther}
}

// Recognizer decides which streaming activities count as trackable. An
// activity qualifies when its platform name matches, or failing that when
// its URL host matches.
type Recognizer struct {
	Platforms []string
	URLHosts  []string
}

// DefaultRecognizer tracks Twitch broadcasts, matching the platform label
// or a twitch.tv URL.
func DefaultRecognizer() Recognizer {
	return Recognizer{
		Platforms: []string{"twitch"},
		URLHosts:  []string{"twitch.tv", "www.twitch.tv"},
	}
}

// Recognized reports whether the activity is a streaming activity on a
// tracked platform. Matching is case-insensitive.
func (r Recognizer) Recognized(a Activity) bool {
	if a.Kind != KindStreaming {
		return false
	}
	for _, p := range r.Platforms {
		if strings.EqualFold(a.Platform, p) {
			return true
		}
	}
	host := urlHost(a.URL)
	for _, h := range r.URLHosts {
		if strings.EqualFold(host, h) {
			return true
		}
	}
	return false
}

// FirstStreaming returns the first recognized streaming activity in the
// list, or nil when none qualifies.
func (r Recognizer) FirstStreaming(activities []Activity) *Activity {
	for i := range activities {
		if r.Recognized(activities[i]) {
			return &activities[i]
		}
	}
	return nil
}

// urlHost extracts the host portion of a URL without a full parse; activity
// URLs arrive from the presence source and may be bare hostnames.
func urlHost(raw string) string {
	s := raw
	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
	}
	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		s = s[:i]
	}
	return s
}
