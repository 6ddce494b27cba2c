// Warden - Behavioral Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/warden/internal/config"
)

// WebhookChannel POSTs a JSON document per message.
type WebhookChannel struct {
	client *http.Client
	url    string
	guard  *guard
	now    func() time.Time
}

// WebhookPayload is the body sent to the webhook.
type WebhookPayload struct {
	Event     string         `json:"event"`
	Severity  string         `json:"severity"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Fields    map[string]any `json:"fields,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// NewWebhookChannel validates cfg.URL.
func NewWebhookChannel(cfg config.WebhookConfig) (*WebhookChannel, error) {
	if err := ValidateWebhookURL(cfg.URL); err != nil {
		return nil, err
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookChannel{
		client: &http.Client{Timeout: timeout},
		url:    cfg.URL,
		guard:  newGuard("webhook", 0),
		now:    time.Now,
	}, nil
}

// Name returns ChannelWebhook.
func (c *WebhookChannel) Name() string { return ChannelWebhook }

// Send posts msg. Any non-2xx status is an error.
func (c *WebhookChannel) Send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(WebhookPayload{
		Event:     msg.Kind,
		Severity:  msg.Severity,
		Title:     msg.Title,
		Message:   msg.Body,
		Fields:    msg.Fields,
		Timestamp: c.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	return c.guard.do(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create webhook request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", "Warden-Alerts/1.0")

		resp, err := c.client.Do(req)
		if err != nil {
			return fmt.Errorf("send webhook: %w", err)
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096)) //nolint:errcheck // drain for keep-alive

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("webhook returned status %d", resp.StatusCode)
		}
		return nil
	})
}
