// Warden - Behavioral Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package response

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/tomtom215/warden/internal/detection"
	"github.com/tomtom215/warden/internal/events"
	"github.com/tomtom215/warden/internal/logging"
	"github.com/tomtom215/warden/internal/metrics"
	"github.com/tomtom215/warden/internal/notify"
)

// SessionStore revokes sessions.
type SessionStore interface {
	RevokeAllActiveSessions(ctx context.Context, principalID string) (int, error)
}

// Notifier delivers a message on named channels.
type Notifier interface {
	Send(ctx context.Context, channels []string, msg notify.Message) error
}

// Config controls who is alerted and how.
type Config struct {
	Bands Bands

	// AdminRoles receive anomaly alerts.
	AdminRoles []string
	// SecurityRoles receive alert-rule notifications.
	SecurityRoles []string
	// ExternalChannel is an optional extra channel for anomaly alerts.
	ExternalChannel string
	TopN            int
}

// DefaultConfig returns the default recipients and bands.
func DefaultConfig() Config {
	return Config{
		Bands:         DefaultBands(),
		AdminRoles:    []string{"super_admin", "qomita_rahbar"},
		SecurityRoles: []string{"super_admin", "security_auditor", "it_admin"},
		TopN:          3,
	}
}

// Outcome reports what Handle did.
type Outcome struct {
	Band            Band
	SessionsRevoked int
	Alerted         bool
}

// Dispatcher performs the side effects for each band.
type Dispatcher struct {
	cfg      Config
	sessions SessionStore
	notifier Notifier
	logger   zerolog.Logger
}

// NewDispatcher returns a dispatcher.
func NewDispatcher(cfg Config, sessions SessionStore, notifier Notifier, logger zerolog.Logger) *Dispatcher {
	if cfg.TopN <= 0 {
		cfg.TopN = 3
	}
	return &Dispatcher{
		cfg:      cfg,
		sessions: sessions,
		notifier: notifier,
		logger:   logger.With().Str("component", "response").Logger(),
	}
}

// Handle acts on an anomaly event: normal is logged, warning alerts, critical
// revokes the principal's sessions and alerts. The alert is still attempted
// when revocation fails.
func (d *Dispatcher) Handle(ctx context.Context, e events.AnomalyEvent) (Outcome, error) {
	out := Outcome{Band: d.cfg.Bands.Classify(e.Normalized)}
	log := d.logger.With().
		Str("principal", e.PrincipalID).
		Int64("anomaly_id", e.AnomalyID).
		Float64("normalized_score", e.Normalized).
		Str("band", string(out.Band)).
		Logger()

	if out.Band == BandNormal {
		log.Debug().Msg("score within normal band")
		metrics.RecordDispatch(string(out.Band), nil)
		return out, nil
	}

	var errs []error
	severity := notify.SeverityHigh
	if out.Band == BandCritical {
		severity = notify.SeverityCritical
		n, err := d.sessions.RevokeAllActiveSessions(ctx, e.PrincipalID)
		if err != nil {
			errs = append(errs, &DispatchError{Principal: e.PrincipalID, Op: OpRevoke, Err: err})
		} else {
			out.SessionsRevoked = n
			metrics.RecordSessionsRevoked(n)
			logging.LogSecurityEvent(ctx, logging.SecurityEvent{
				Event:     "sessions_revoked",
				Principal: e.PrincipalID,
				Severity:  string(out.Band),
				Score:     e.Normalized,
				Count:     n,
				Reason:    "critical anomaly",
			})
		}
	} else {
		log.Warn().Msg("anomaly warning")
	}

	if err := d.notifier.Send(ctx, d.anomalyChannels(), d.anomalyMessage(e, severity)); err != nil {
		errs = append(errs, &DispatchError{Principal: e.PrincipalID, Op: OpAlert, Err: err})
	} else {
		out.Alerted = true
	}

	err := errors.Join(errs...)
	metrics.RecordDispatch(string(out.Band), err)
	return out, err
}

func (d *Dispatcher) anomalyChannels() []string {
	channels := []string{notify.ChannelInApp}
	if d.cfg.ExternalChannel != "" && d.cfg.ExternalChannel != notify.ChannelInApp {
		channels = append(channels, d.cfg.ExternalChannel)
	}
	return channels
}

func (d *Dispatcher) anomalyMessage(e events.AnomalyEvent, severity string) notify.Message {
	who := e.PrincipalEmail
	if who == "" {
		who = e.PrincipalID
	}
	kind := notify.KindAnomaly
	title := fmt.Sprintf("AI Alert: %s anomaly detected", strings.ToUpper(severity))
	if e.Source == string(detection.SourceHoneypot) {
		kind = notify.KindHoneypot
		if e.Title != "" {
			title = e.Title
		}
	}

	return notify.Message{
		Kind:     kind,
		Severity: severity,
		Title:    title,
		Body: fmt.Sprintf("User %s anomaly score: %.4f (threshold %.4f).\nTop features: %s",
			who, e.Score, e.Threshold, d.FeatureSummary(e)),
		Audience: d.cfg.AdminRoles,
		Fields: map[string]any{
			"anomaly_id":       e.AnomalyID,
			"principal_id":     e.PrincipalID,
			"score":            e.Score,
			"normalized_score": e.Normalized,
			"severity":         e.Severity,
			"source":           e.Source,
		},
	}
}

// FeatureSummary renders the top contributions as "name: value" pairs.
func (d *Dispatcher) FeatureSummary(e events.AnomalyEvent) string {
	top := e.TopFeatures
	if len(top) > d.cfg.TopN {
		top = top[:d.cfg.TopN]
	}
	if len(top) == 0 {
		return "n/a"
	}
	parts := make([]string, len(top))
	for i, c := range top {
		parts[i] = fmt.Sprintf("%s: %.4g", c.Feature, c.Value)
	}
	return strings.Join(parts, ", ")
}

// HandleAlert routes an alert-rule event to the rule's channels.
func (d *Dispatcher) HandleAlert(ctx context.Context, e events.AlertEvent) error {
	expanded := detection.Channel(e.Channel).Expand()
	channels := make([]string, len(expanded))
	for i, c := range expanded {
		channels[i] = string(c)
	}

	d.logger.Warn().
		Int64("rule_id", e.RuleID).
		Str("rule", e.RuleName).
		Float64("value", e.Value).
		Float64("threshold", e.Threshold).
		Strs("channels", channels).
		Msg("alert triggered")

	msg := notify.Message{
		Kind:     notify.KindAlert,
		Severity: notify.SeverityWarning,
		Title:    "Alert: " + e.RuleName,
		Body: fmt.Sprintf("Alert: %s - Current value: %.2f (threshold: %.2f, window: %d min)",
			e.RuleName, e.Value, e.Threshold, e.WindowMinutes),
		Audience: d.cfg.SecurityRoles,
		Fields: map[string]any{
			"rule_id":   e.RuleID,
			"condition": e.Condition,
			"value":     e.Value,
			"threshold": e.Threshold,
		},
	}
	if err := d.notifier.Send(ctx, channels, msg); err != nil {
		err = &DispatchError{Principal: fmt.Sprintf("rule:%d", e.RuleID), Op: OpAlert, Err: err}
		metrics.RecordDispatch("alert", err)
		return err
	}
	metrics.RecordDispatch("alert", nil)
	return nil
}
