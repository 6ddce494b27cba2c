// Warden - Behavioral Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks the configuration for values the engine cannot run with.
func (c *Config) Validate() error {
	validators := []func() error{
		c.validateServer,
		c.validateModel,
		c.validateScan,
		c.validateTraining,
		c.validateResponse,
		c.validateAlerting,
		c.validateEvents,
		c.validateChannels,
		c.validateSecurity,
		c.validateLogging,
	}
	for _, v := range validators {
		if err := v(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535")
	}
	return nil
}

func (c *Config) validateModel() error {
	m := c.Model
	if m.Contamination <= 0 || m.Contamination > 0.5 {
		return fmt.Errorf("MODEL_CONTAMINATION must be in (0, 0.5], got %v", m.Contamination)
	}
	if m.Trees < 1 {
		return fmt.Errorf("MODEL_TREES must be at least 1")
	}
	if m.MaxSamples < 2 {
		return fmt.Errorf("MODEL_MAX_SAMPLES must be at least 2")
	}
	if m.MinSamples < 10 {
		return fmt.Errorf("MODEL_MIN_SAMPLES must be at least 10")
	}
	switch m.Backend {
	case "file", "badger":
	default:
		return fmt.Errorf("MODEL_BACKEND must be file or badger, got %q", m.Backend)
	}
	if m.Dir == "" {
		return errors.New("MODEL_DIR is required")
	}
	return nil
}

func (c *Config) validateScan() error {
	s := c.Scan
	if s.Interval <= 0 || s.Window <= 0 || s.DedupWindow <= 0 {
		return errors.New("scan interval, window and dedup_window must be positive")
	}
	if s.HighMultiplier < 1 || s.CriticalMultiplier < s.HighMultiplier {
		return fmt.Errorf("scan multipliers must satisfy 1 <= high (%v) <= critical (%v)",
			s.HighMultiplier, s.CriticalMultiplier)
	}
	if s.Threshold < 0 || s.Threshold >= 1 {
		return fmt.Errorf("SCAN_THRESHOLD must be in [0, 1), got %v", s.Threshold)
	}
	if s.TopFeatures < 1 {
		return errors.New("SCAN_TOP_FEATURES must be at least 1")
	}
	return nil
}

func (c *Config) validateTraining() error {
	t := c.Training
	if t.Interval <= 0 || t.Window <= 0 {
		return errors.New("training interval and window must be positive")
	}
	if t.Folds < 2 {
		return errors.New("TRAIN_FOLDS must be at least 2")
	}
	return nil
}

func (c *Config) validateResponse() error {
	r := c.Response
	if r.WarningThreshold <= 0 || r.CriticalThreshold > 1 || r.WarningThreshold >= r.CriticalThreshold {
		return fmt.Errorf("response thresholds must satisfy 0 < warning (%v) < critical (%v) <= 1",
			r.WarningThreshold, r.CriticalThreshold)
	}
	// The normalized scale ends at 1, so a severity tier above 1/warning
	// never fires.
	if m := c.Scan.CriticalMultiplier; m*r.WarningThreshold > 1 {
		return fmt.Errorf("SCAN_CRITICAL_MULTIPLIER %v is unreachable with warning threshold %v (max %.2f)",
			m, r.WarningThreshold, 1/r.WarningThreshold)
	}
	switch r.ExternalChannel {
	case "", "none", "telegram", "email", "webhook":
	default:
		return fmt.Errorf("RESPONSE_EXTERNAL_CHANNEL %q is not supported", r.ExternalChannel)
	}
	if len(r.AdminRoles) == 0 {
		return errors.New("RESPONSE_ADMIN_ROLES must name at least one role")
	}
	return nil
}

func (c *Config) validateAlerting() error {
	if !c.Alerting.Enabled {
		return nil
	}
	if c.Alerting.Interval <= 0 || c.Alerting.RateLimitWindow <= 0 {
		return errors.New("alerting interval and rate_limit_window must be positive")
	}
	return nil
}

func (c *Config) validateEvents() error {
	switch c.Events.Transport {
	case "memory":
		return nil
	case "nats":
		if c.Events.NATSURL == "" && !c.Events.EmbeddedServer {
			return errors.New("NATS_URL is required when the embedded server is disabled")
		}
		return nil
	default:
		return fmt.Errorf("EVENTS_TRANSPORT must be memory or nats, got %q", c.Events.Transport)
	}
}

func (c *Config) validateChannels() error {
	if c.Telegram.Enabled && (c.Telegram.BotToken == "" || c.Telegram.ChatID == "") {
		return errors.New("TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID are required when Telegram is enabled")
	}
	if c.Email.Enabled && (c.Email.Host == "" || c.Email.From == "" || len(c.Email.To) == 0) {
		return errors.New("SMTP_HOST, SMTP_FROM and SMTP_TO are required when email is enabled")
	}
	if c.Webhook.Enabled && !strings.HasPrefix(c.Webhook.URL, "http") {
		return errors.New("WEBHOOK_URL must be an http(s) URL when webhooks are enabled")
	}
	return nil
}

func (c *Config) validateSecurity() error {
	if !c.Security.AuthEnabled {
		return nil
	}
	if len(c.Security.JWTSecret) < 32 {
		return errors.New("JWT_SECRET must be at least 32 characters when auth is enabled")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "warning", "error", "fatal", "panic", "disabled":
	default:
		return fmt.Errorf("LOG_LEVEL %q is not recognized", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
		return nil
	default:
		return fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.Logging.Format)
	}
}
