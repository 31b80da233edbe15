// Package eligibility decides whether a subject may receive the live role
// under a scope's filter policy.
package eligibility

import (
	"context"
	"fmt"
	"slices"

	"github.com/castwatch/castwatch/pkg/scopes"
)

// MembershipProvider answers which groups a subject currently belongs to
// within a scope.
type MembershipProvider interface {
	Groups(ctx context.Context, scopeID, subject string) ([]string, error)
}

// StaticMemberships is a MembershipProvider backed by a fixed map, keyed by
// subject. Used for tests and single-scope embeddings.
type StaticMemberships map[string][]string

// Groups returns the fixed group list for the subject.
func (s StaticMemberships) Groups(_ context.Context, _, subject string) ([]string, error) {
	return s[subject], nil
}

// Gate composes the required-group check with the scope's blacklist or
// whitelist policy.
type Gate struct {
	members MembershipProvider
	filters scopes.Store
}

// NewGate creates a Gate reading filter entries from the scope store.
func NewGate(members MembershipProvider, filters scopes.Store) *Gate {
	return &Gate{members: members, filters: filters}
}

// Allowed reports whether the subject is eligible under the scope's policy.
//
// A configured required group is evaluated first and independently: its
// absence denies regardless of mode. Under blacklist mode the subject is
// allowed unless it or any of its groups is flagged blacklisted; under
// whitelist mode it is allowed only if it or one of its groups is flagged
// whitelisted.
func (g *Gate) Allowed(ctx context.Context, cfg scopes.Config, subject string) (bool, error) {
	groups, err := g.members.Groups(ctx, cfg.ScopeID, subject)
	if err != nil {
		return false, fmt.Errorf("resolving memberships: %w", err)
	}

	if cfg.RequiredGroup != "" && !slices.Contains(groups, cfg.RequiredGroup) {
		return false, nil
	}

	subjectFlags, err := g.filters.SubjectFlags(ctx, cfg.ScopeID, subject)
	if err != nil {
		return false, fmt.Errorf("reading subject flags: %w", err)
	}

	switch cfg.Mode {
	case scopes.ModeWhitelist:
		if subjectFlags.Whitelisted {
			return true, nil
		}
		for _, group := range groups {
			flags, err := g.filters.GroupFlags(ctx, cfg.ScopeID, group)
			if err != nil {
				return false, fmt.Errorf("reading group flags: %w", err)
			}
			if flags.Whitelisted {
				return true, nil
			}
		}
		return false, nil

	default: // blacklist
		if subjectFlags.Blacklisted {
			return false, nil
		}
		for _, group := range groups {
			flags, err := g.filters.GroupFlags(ctx, cfg.ScopeID, group)
			if err != nil {
				return false, fmt.Errorf("reading group flags: %w", err)
			}
			if flags.Blacklisted {
				return false, nil
			}
		}
		return true, nil
	}
}

// HasGroup reports whether the subject currently holds the named group.
// The reconciler uses this to detect required-group loss mid-session.
func (g *Gate) HasGroup(ctx context.Context, scopeID, subject, group string) (bool, error) {
	groups, err := g.members.Groups(ctx, scopeID, subject)
	if err != nil {
		return false, fmt.Errorf("resolving memberships: %w", err)
	}
	return slices.Contains(groups, group), nil
}
