// Package scopes provides per-scope configuration and filter-entry storage.
// A scope is the administrative boundary (one server or community) under
// which sessions, eligibility filters, and settings are partitioned.
package scopes

import (
	"slices"
)

// Mode selects how filter entries are interpreted by the eligibility gate.
type Mode string

const (
	// ModeBlacklist allows everyone except flagged subjects and groups.
	ModeBlacklist Mode = "blacklist"

	// ModeWhitelist allows only flagged subjects and groups.
	ModeWhitelist Mode = "whitelist"
)

// Limits for scope settings.
const (
	// MinRetentionDays is the smallest permitted retention window.
	MinRetentionDays = 1

	// MaxTopLimit caps ranked queries to bound their cost.
	MaxTopLimit = 50

	// DefaultRetentionDays keeps sessions for one year.
	DefaultRetentionDays = 365

	// DefaultTopLimit is the ranking size used when a query names none.
	DefaultTopLimit = 10
)

// Config holds one scope's settings.
type Config struct {
	// ScopeID identifies the scope.
	ScopeID string `json:"scope_id" yaml:"scope_id"`

	// RoleMarker is the role-sink identity granted to live streamers.
	RoleMarker string `json:"role_marker" yaml:"role_marker"`

	// RequiredGroup, when set, must be among a subject's groups for any
	// eligibility at all.
	RequiredGroup string `json:"required_group,omitempty" yaml:"required_group"`

	// GameWhitelist restricts tracking to the named categories. Empty means
	// unrestricted.
	GameWhitelist []string `json:"game_whitelist,omitempty" yaml:"game_whitelist"`

	// Mode is the filter-list interpretation: blacklist or whitelist.
	Mode Mode `json:"mode" yaml:"mode"`

	// AlertChannel receives go-live alert messages. Empty disables alerts.
	AlertChannel string `json:"alert_channel,omitempty" yaml:"alert_channel"`

	// AlertAutodelete removes the alert message when the session ends.
	AlertAutodelete bool `json:"alert_autodelete" yaml:"alert_autodelete"`

	// StatsEnabled controls whether finished sessions are recorded.
	StatsEnabled bool `json:"stats_enabled" yaml:"stats_enabled"`

	// RetentionDays is the maximum session age before pruning, at least 1.
	RetentionDays int `json:"retention_days" yaml:"retention_days"`

	// TopLimit is the default ranking size for this scope, capped at 50.
	TopLimit int `json:"top_limit" yaml:"top_limit"`
}

// DefaultConfig returns a Config with the source defaults: blacklist mode,
// alert autodeletion, stats collection, one year of retention.
func DefaultConfig(scopeID string) Config {
	return Config{
		ScopeID:         scopeID,
		Mode:            ModeBlacklist,
		AlertAutodelete: true,
		StatsEnabled:    true,
		RetentionDays:   DefaultRetentionDays,
		TopLimit:        DefaultTopLimit,
	}
}

// Normalize clamps settings into their permitted ranges.
func (c *Config) Normalize() {
	if c.Mode != ModeWhitelist {
		c.Mode = ModeBlacklist
	}
	if c.RetentionDays < MinRetentionDays {
		c.RetentionDays = MinRetentionDays
	}
	if c.TopLimit < 1 {
		c.TopLimit = DefaultTopLimit
	}
	if c.TopLimit > MaxTopLimit {
		c.TopLimit = MaxTopLimit
	}
}

// GameAllowed reports whether the category passes the game whitelist.
// An empty whitelist allows everything; matching is exact, as the category
// must match the label shown by the platform.
func (c Config) GameAllowed(category string) bool {
	if len(c.GameWhitelist) == 0 {
		return true
	}
	return slices.Contains(c.GameWhitelist, category)
}

// Flags is one filter entry: the blacklist/whitelist marks kept per subject
// and per group, consulted by the eligibility gate.
type Flags struct {
	Blacklisted bool `json:"blacklisted"`
	Whitelisted bool `json:"whitelisted"`
}
