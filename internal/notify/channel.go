// Warden - Behavioral Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

// Package notify delivers alert messages over in-app notifications, Telegram,
// email and generic webhooks.
//
// Each Channel sends one Message. A Set maps channel names to configured
// channels and fans a message out to a list of names; names that are not
// configured are skipped, so an alert rule targeting "all" degrades to
// whatever is enabled. External channels sit behind a circuit breaker and a
// send-rate limiter.
package notify

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/tomtom215/warden/internal/metrics"
)

// Channel names. They match detection.Channel values.
const (
	ChannelInApp    = "notification"
	ChannelEmail    = "email"
	ChannelTelegram = "telegram"
	ChannelWebhook  = "webhook"
)

// Message kinds, stored on in-app notifications.
const (
	KindAnomaly  = "anomaly"
	KindAlert    = "alert"
	KindHoneypot = "honeypot"
)

// Severity levels understood by the formatters.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// ErrInvalidConfig is returned when a channel is constructed without the
// settings it needs.
var ErrInvalidConfig = errors.New("invalid channel configuration")

// Message is one alert to deliver.
type Message struct {
	Kind     string
	Severity string
	Title    string
	Body     string

	// Audience lists the roles whose principals receive in-app and email
	// copies.
	Audience []string

	// Fields are optional structured details for webhook payloads.
	Fields map[string]any
}

// Channel delivers messages to one destination.
type Channel interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

// Set is a registry of configured channels.
type Set struct {
	channels map[string]Channel
	logger   zerolog.Logger
}

// NewSet returns a Set holding channels.
func NewSet(logger zerolog.Logger, channels ...Channel) *Set {
	s := &Set{
		channels: make(map[string]Channel, len(channels)),
		logger:   logger.With().Str("component", "notify").Logger(),
	}
	for _, c := range channels {
		s.Register(c)
	}
	return s
}

// Register adds or replaces a channel.
func (s *Set) Register(c Channel) {
	s.channels[c.Name()] = c
}

// Has reports whether name is configured.
func (s *Set) Has(name string) bool {
	_, ok := s.channels[name]
	return ok
}

// Names returns the configured channel names, sorted.
func (s *Set) Names() []string {
	names := make([]string, 0, len(s.channels))
	for n := range s.channels {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Send delivers msg on each named channel. Every channel is attempted; the
// returned error joins the individual failures.
func (s *Set) Send(ctx context.Context, names []string, msg Message) error {
	var errs []error
	for _, name := range names {
		c, ok := s.channels[name]
		if !ok {
			s.logger.Debug().Str("channel", name).Msg("channel not configured, skipping")
			continue
		}
		err := c.Send(ctx, msg)
		metrics.RecordNotification(name, err)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// EscapeHTML escapes the characters Telegram's HTML parse mode reserves.
func EscapeHTML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}

// TruncateContent shortens content to maxLen bytes, ending with "...".
func TruncateContent(content string, maxLen int) string {
	if maxLen <= 0 || len(content) <= maxLen {
		return content
	}
	if maxLen <= 3 {
		return content[:maxLen]
	}
	return content[:maxLen-3] + "..."
}

// ValidateWebhookURL requires an absolute http(s) URL.
func ValidateWebhookURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("%w: webhook URL is required", ErrInvalidConfig)
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if parsed.Scheme != "https" && parsed.Scheme != "http" {
		return fmt.Errorf("%w: webhook URL must use http or https scheme", ErrInvalidConfig)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%w: webhook URL must have a host", ErrInvalidConfig)
	}
	return nil
}
