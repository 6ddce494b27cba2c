// Warden - Behavioral Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

// Package honeypot turns decoy-document accesses into anomaly records.
//
// A honeypot access is a finding in its own right; it bypasses the model and
// the dedup window, so every access produces a high-severity record and an
// anomaly.detected event.
package honeypot

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/warden/internal/database"
	"github.com/tomtom215/warden/internal/detection"
	"github.com/tomtom215/warden/internal/events"
	"github.com/tomtom215/warden/internal/features"
	"github.com/tomtom215/warden/internal/metrics"
	"github.com/tomtom215/warden/internal/response"
)

// Store reads honeypots and logs accesses.
type Store interface {
	Honeypot(ctx context.Context, id string) (*database.Honeypot, error)
	RecordHoneypotAccess(ctx context.Context, honeypotID, principalID, ip string, at time.Time) error
}

// PrincipalSource looks up the accessing principal.
type PrincipalSource interface {
	Principal(ctx context.Context, id string) (*features.Principal, error)
}

// AnomalyWriter persists records unconditionally.
type AnomalyWriter interface {
	CreateAnomaly(ctx context.Context, rec *detection.AnomalyRecord) error
}

// Publisher announces new anomalies.
type Publisher interface {
	PublishAnomaly(ctx context.Context, e events.AnomalyEvent) error
}

// Config controls the response strength.
type Config struct {
	Bands response.Bands
	// RevokeOnAccess publishes at the critical band so the dispatcher also
	// revokes the principal's sessions.
	RevokeOnAccess bool
}

// Access describes a recorded honeypot hit.
type Access struct {
	Honeypot  *database.Honeypot `json:"honeypot"`
	AnomalyID int64              `json:"anomaly_id"`
}

// Manager records honeypot accesses.
type Manager struct {
	cfg        Config
	store      Store
	principals PrincipalSource
	anomalies  AnomalyWriter
	publisher  Publisher
	logger     zerolog.Logger
	now        func() time.Time
}

// NewManager returns a manager. principals may be nil.
func NewManager(cfg Config, store Store, principals PrincipalSource, anomalies AnomalyWriter, publisher Publisher, logger zerolog.Logger) *Manager {
	if cfg.Bands.Warning <= 0 && cfg.Bands.Critical <= 0 {
		cfg.Bands = response.DefaultBands()
	}
	return &Manager{
		cfg:        cfg,
		store:      store,
		principals: principals,
		anomalies:  anomalies,
		publisher:  publisher,
		logger:     logger.With().Str("component", "honeypot").Logger(),
		now:        time.Now,
	}
}

// RecordAccess logs an access to honeypotID by principalID, stores a
// high-severity anomaly record and publishes it. Unknown or inactive
// honeypots return database.ErrHoneypotNotFound.
func (m *Manager) RecordAccess(ctx context.Context, honeypotID, principalID, ip string) (*Access, error) {
	hp, err := m.store.Honeypot(ctx, honeypotID)
	if err != nil {
		return nil, err
	}
	now := m.now().UTC()
	if err := m.store.RecordHoneypotAccess(ctx, honeypotID, principalID, ip, now); err != nil {
		return nil, err
	}
	hp.AccessCount++
	hp.LastAccessedAt = &now
	hp.LastAccessedBy = principalID

	email := m.lookupEmail(ctx, principalID)
	who := email
	if who == "" {
		who = principalID
	}
	from := ip
	if from == "" {
		from = "unknown"
	}

	log := m.logger.With().Str("honeypot", hp.ID).Str("principal", principalID).Str("ip", ip).Logger()
	log.Warn().Str("title", hp.Title).Msg("HONEYPOT ACCESS")

	rec := &detection.AnomalyRecord{
		PrincipalID:    principalID,
		PrincipalEmail: email,
		Source:         detection.SourceHoneypot,
		Title:          fmt.Sprintf("Honeypot Access: %s", hp.Title),
		Description:    fmt.Sprintf("User %s accessed honeypot file %q from IP %s.", who, hp.Title, from),
		Score:          1.0,
		Threshold:      1.0,
		Severity:       detection.SeverityHigh,
		DetectedAt:     now,
	}
	if err := m.anomalies.CreateAnomaly(ctx, rec); err != nil {
		return nil, fmt.Errorf("record honeypot anomaly: %w", err)
	}
	metrics.RecordAnomaly(string(detection.SourceHoneypot), string(detection.SeverityHigh))

	normalized := m.cfg.Bands.Warning
	if m.cfg.RevokeOnAccess {
		normalized = m.cfg.Bands.Critical
	}
	event := events.AnomalyEvent{
		AnomalyID:      rec.ID,
		PrincipalID:    principalID,
		PrincipalEmail: email,
		Source:         string(detection.SourceHoneypot),
		Title:          "Honeypot File Accessed: " + hp.Title,
		Score:          rec.Score,
		Threshold:      rec.Threshold,
		Normalized:     normalized,
		Severity:       string(detection.SeverityHigh),
		DetectedAt:     now,
	}
	if err := m.publisher.PublishAnomaly(ctx, event); err != nil {
		log.Error().Err(err).Int64("anomaly_id", rec.ID).Msg("Failed to publish honeypot event")
	}
	return &Access{Honeypot: hp, AnomalyID: rec.ID}, nil
}

func (m *Manager) lookupEmail(ctx context.Context, principalID string) string {
	if m.principals == nil {
		return ""
	}
	p, err := m.principals.Principal(ctx, principalID)
	if err != nil {
		m.logger.Debug().Err(err).Str("principal", principalID).Msg("Honeypot accessor not found")
		return ""
	}
	return p.Email
}
