// Package rolesink delivers role and alert side effects to an external chat
// platform. Sink calls are best-effort: the tracking engine treats failures
// as retriable once and then drops them, so session state never blocks on
// the sink.
package rolesink

import (
	"context"
)

// AlertHandle identifies a posted alert message so it can be deleted later.
type AlertHandle struct {
	ChannelID string `json:"channel_id"`
	MessageID string `json:"message_id"`
}

// Alert describes a go-live announcement.
type Alert struct {
	ChannelID string `json:"channel_id"`
	Subject   string `json:"subject"`
	Category  string `json:"category,omitempty"`
	URL       string `json:"url,omitempty"`
}

// RoleSink applies role changes and alert messages on the external platform.
type RoleSink interface {
	// GrantRole marks the subject with the scope's live role.
	GrantRole(ctx context.Context, scopeID, subject, role string) error

	// RevokeRole removes the scope's live role from the subject.
	RevokeRole(ctx context.Context, scopeID, subject, role string) error

	// PostAlert announces a live session and returns a handle for later
	// deletion.
	PostAlert(ctx context.Context, scopeID string, alert Alert) (AlertHandle, error)

	// DeleteAlert removes a previously posted alert.
	DeleteAlert(ctx context.Context, scopeID string, handle AlertHandle) error
}

// Noop is a RoleSink that does nothing. Used when no sink endpoint is
// configured and in tests.
type Noop struct{}

// GrantRole does nothing.
func (Noop) GrantRole(context.Context, string, string, string) error { return nil }

// RevokeRole does nothing.
func (Noop) RevokeRole(context.Context, string, string, string) error { return nil }

// PostAlert does nothing and returns an empty handle.
func (Noop) PostAlert(context.Context, string, Alert) (AlertHandle, error) {
	return AlertHandle{}, nil
}

// DeleteAlert does nothing.
func (Noop) DeleteAlert(context.Context, string, AlertHandle) error { return nil }

// Verify interface compliance.
var _ RoleSink = Noop{}
