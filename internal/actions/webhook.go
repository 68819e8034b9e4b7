package actions

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ent0n29/horizon/internal/reliability"
	"github.com/ent0n29/horizon/internal/turn"
)

var (
	errNoWebhookURL         = errors.New("no webhook url configured")
	ErrWebhookHostForbidden = errors.New("webhook host is not allowed")
)

// WebhookSender posts turn events as JSON and retries retryable statuses.
// A target other than the configured url must be on the host allowlist; the
// configured url's host is always allowed.
type WebhookSender struct {
	url     string
	allowed map[string]bool
	client  *http.Client
	policy  reliability.Policy
}

func NewWebhookSender(defaultURL string, allowedHosts []string, client *http.Client, policy reliability.Policy) *WebhookSender {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	allowed := make(map[string]bool, len(allowedHosts)+1)
	for _, h := range allowedHosts {
		allowed[strings.ToLower(strings.TrimSpace(h))] = true
	}
	if u, err := url.Parse(defaultURL); err == nil && u.Host != "" {
		allowed[strings.ToLower(u.Host)] = true
	}
	return &WebhookSender{url: defaultURL, allowed: allowed, client: client, policy: policy}
}

type webhookEvent struct {
	Event    string         `json:"event"`
	ChatID   string         `json:"chat_id"`
	TurnID   string         `json:"turn_id"`
	Intent   turn.Intent    `json:"intent"`
	Params   map[string]any `json:"params,omitempty"`
	Resolved map[string]any `json:"resolved,omitempty"`
	SentAt   time.Time      `json:"sent_at"`
}

// Post delivers payload to target, or the default url when target is empty.
func (w *WebhookSender) Post(ctx context.Context, target string, payload any) (int, error) {
	if target == "" {
		target = w.url
	}
	if target == "" {
		return 0, errNoWebhookURL
	}
	u, err := url.Parse(target)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return 0, fmt.Errorf("invalid webhook url %q", target)
	}
	if !w.allowed[strings.ToLower(u.Host)] {
		return 0, fmt.Errorf("%w: %s", ErrWebhookHostForbidden, u.Host)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("encode webhook: %w", err)
	}

	var status int
	err = reliability.Do(ctx, w.policy, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := w.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			return reliability.Retryable(err)
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, resp.Body)
		status = resp.StatusCode
		if status >= 200 && status < 300 {
			return nil
		}
		serr := fmt.Errorf("webhook returned status %d", status)
		if reliability.IsRetryableHTTPStatus(status) {
			return reliability.Retryable(serr)
		}
		return serr
	})
	return status, err
}

func (e *Executor) sendWebhook(ctx context.Context, params map[string]any, in Input) (map[string]any, error) {
	if e.webhook == nil {
		return nil, errNoWebhookURL
	}
	event := webhookEvent{
		Event:    "turn.completed",
		ChatID:   in.Snapshot.ChatID,
		TurnID:   in.Snapshot.TurnID,
		Intent:   in.Snapshot.Intent,
		Params:   params,
		Resolved: in.Resolved,
		SentAt:   e.now().UTC(),
	}
	status, err := e.webhook.Post(ctx, turn.StringParam(params, "url"), event)
	if err != nil {
		return nil, err
	}
	return map[string]any{"status": status}, nil
}
