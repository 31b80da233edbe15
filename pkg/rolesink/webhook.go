package rolesink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

const defaultTimeout = 5 * time.Second

// Webhook delivers sink calls to an HTTP endpoint. Each call is retried at
// most once with a short backoff; the engine logs and drops failures beyond
// that.
type Webhook struct {
	baseURL string
	token   string
	client  *retryablehttp.Client
}

// WebhookOption configures a Webhook sink.
type WebhookOption func(*Webhook)

// WithToken sets the bearer token sent on every sink request.
func WithToken(token string) WebhookOption {
	return func(w *Webhook) { w.token = token }
}

// WithTimeout overrides the per-request timeout.
func WithTimeout(d time.Duration) WebhookOption {
	return func(w *Webhook) { w.client.HTTPClient.Timeout = d }
}

// NewWebhook creates a sink that POSTs to baseURL.
func NewWebhook(baseURL string, opts ...WebhookOption) *Webhook {
	client := retryablehttp.NewClient()
	client.RetryMax = 1
	client.RetryWaitMin = 250 * time.Millisecond
	client.RetryWaitMax = time.Second
	client.HTTPClient.Timeout = defaultTimeout
	client.Logger = nil // suppress retryablehttp's default logging

	w := &Webhook{baseURL: baseURL, client: client}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

type rolePayload struct {
	ScopeID string `json:"scope_id"`
	Subject string `json:"subject"`
	Role    string `json:"role"`
}

// GrantRole POSTs a role grant to the endpoint.
func (w *Webhook) GrantRole(ctx context.Context, scopeID, subject, role string) error {
	return w.post(ctx, "/roles/grant", rolePayload{scopeID, subject, role}, nil)
}

// RevokeRole POSTs a role revocation to the endpoint.
func (w *Webhook) RevokeRole(ctx context.Context, scopeID, subject, role string) error {
	return w.post(ctx, "/roles/revoke", rolePayload{scopeID, subject, role}, nil)
}

type alertPayload struct {
	ScopeID string `json:"scope_id"`
	Alert
}

// PostAlert POSTs an announcement and decodes the returned handle.
func (w *Webhook) PostAlert(ctx context.Context, scopeID string, alert Alert) (AlertHandle, error) {
	var handle AlertHandle
	err := w.post(ctx, "/alerts", alertPayload{ScopeID: scopeID, Alert: alert}, &handle)
	return handle, err
}

type deletePayload struct {
	ScopeID string `json:"scope_id"`
	AlertHandle
}

// DeleteAlert POSTs an alert deletion.
func (w *Webhook) DeleteAlert(ctx context.Context, scopeID string, handle AlertHandle) error {
	return w.post(ctx, "/alerts/delete", deletePayload{ScopeID: scopeID, AlertHandle: handle}, nil)
}

func (w *Webhook) post(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding sink payload: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, w.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building sink request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if w.token != "" {
		req.Header.Set("Authorization", "Bearer "+w.token)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("calling sink %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("sink %s returned status %d", path, resp.StatusCode)
	}

	if out != nil {
		data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		if err != nil {
			return fmt.Errorf("reading sink response: %w", err)
		}
		if len(data) > 0 {
			if err := json.Unmarshal(data, out); err != nil {
				return fmt.Errorf("decoding sink response: %w", err)
			}
		}
	}
	return nil
}

// Verify interface compliance.
var _ RoleSink = (*Webhook)(nil)
