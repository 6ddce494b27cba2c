// Warden - Behavioral Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

// Package scan runs the periodic anomaly scan.
//
// A cycle moves idle -> loading_model -> scoring -> idle. With no active
// model the cycle is skipped rather than failed. Each principal is scored
// independently; one principal's error is counted and logged and never
// aborts the cycle. Flagged principals are written with an atomic
// conditional insert so at most one record exists per principal per dedup
// window, and only a freshly created record is published.
package scan

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/warden/internal/anomaly"
	"github.com/tomtom215/warden/internal/detection"
	"github.com/tomtom215/warden/internal/events"
	"github.com/tomtom215/warden/internal/features"
	"github.com/tomtom215/warden/internal/metrics"
	"github.com/tomtom215/warden/internal/modelstore"
	"github.com/tomtom215/warden/internal/response"
)

// Outcome is the result class of a cycle.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeSkipped   Outcome = "skipped"
)

// State is the scanner's position in a cycle.
type State string

const (
	StateIdle         State = "idle"
	StateLoadingModel State = "loading_model"
	StateScoring      State = "scoring"
)

// ModelSource returns the active model and its config.
type ModelSource interface {
	Current(ctx context.Context, kind string) (*anomaly.Model, *modelstore.ActiveConfig, error)
}

// PrincipalLister lists principals to scan.
type PrincipalLister interface {
	ActivePrincipals(ctx context.Context) ([]features.Principal, error)
}

// VectorExtractor builds a feature vector for one principal.
type VectorExtractor interface {
	Extract(ctx context.Context, principalID string, window time.Duration) (features.Vector, error)
}

// AnomalyWriter records findings, suppressing duplicates since a cutoff.
type AnomalyWriter interface {
	CreateAnomalyIfAbsent(ctx context.Context, rec *detection.AnomalyRecord, since time.Time) (bool, error)
}

// Publisher announces new anomalies.
type Publisher interface {
	PublishAnomaly(ctx context.Context, e events.AnomalyEvent) error
}

// Deps are the scanner's collaborators.
type Deps struct {
	Models     ModelSource
	Principals PrincipalLister
	Extractor  VectorExtractor
	Anomalies  AnomalyWriter
	Publisher  Publisher
}

// Config tunes the scanner.
type Config struct {
	Kind        string
	Window      time.Duration
	DedupWindow time.Duration
	Timeout     time.Duration
	// Threshold overrides the active model's threshold when positive.
	Threshold   float64
	Tiers       Tiers
	Bands       response.Bands
	TopFeatures int
	QueueSize   int
}

func (c Config) withDefaults() Config {
	if c.Kind == "" {
		c.Kind = "isolation_forest"
	}
	if c.Window <= 0 {
		c.Window = time.Hour
	}
	if c.DedupWindow <= 0 {
		c.DedupWindow = time.Hour
	}
	if c.Tiers.High <= 0 {
		c.Tiers.High = DefaultHighMultiplier
	}
	if c.Tiers.Critical <= 0 {
		c.Tiers.Critical = DefaultCriticalMultiplier
	}
	if c.Bands.Warning <= 0 && c.Bands.Critical <= 0 {
		c.Bands = response.DefaultBands()
	}
	if c.TopFeatures <= 0 {
		c.TopFeatures = DefaultTopFeatures
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 1
	}
	return c
}

// CycleResult counts what a cycle did with each principal.
type CycleResult struct {
	Outcome      Outcome       `json:"outcome"`
	Reason       string        `json:"reason,omitempty"`
	ModelVersion int           `json:"model_version,omitempty"`
	Scanned      int           `json:"scanned"`
	Skipped      int           `json:"skipped"`
	Normal       int           `json:"normal"`
	Anomalies    int           `json:"anomalies"`
	Suppressed   int           `json:"suppressed"`
	Errors       int           `json:"errors"`
	Duration     time.Duration `json:"duration"`
}

// Scanner scores every active principal against the active model.
type Scanner struct {
	cfg     Config
	deps    Deps
	logger  zerolog.Logger
	trigger chan struct{}
	now     func() time.Time

	running sync.Mutex

	mu    sync.RWMutex
	state State
	last  *CycleResult
}

// NewScanner returns a scanner. Deps must be fully populated.
func NewScanner(cfg Config, deps Deps, logger zerolog.Logger) *Scanner {
	cfg = cfg.withDefaults()
	return &Scanner{
		cfg:     cfg,
		deps:    deps,
		logger:  logger.With().Str("component", "scanner").Logger(),
		trigger: make(chan struct{}, cfg.QueueSize),
		now:     time.Now,
		state:   StateIdle,
	}
}

// Trigger enqueues a manual scan without blocking. It returns false when the
// queue is full.
func (s *Scanner) Trigger() bool {
	select {
	case s.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

// Triggers is consumed by the scan service loop.
func (s *Scanner) Triggers() <-chan struct{} {
	return s.trigger
}

// State reports the current cycle state.
func (s *Scanner) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// LastResult returns the most recent successful cycle result, or nil.
func (s *Scanner) LastResult() *CycleResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

func (s *Scanner) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// RunCycle executes one scan. Cycles never overlap; a concurrent call waits
// for the running one to finish.
func (s *Scanner) RunCycle(ctx context.Context) (*CycleResult, error) {
	s.running.Lock()
	defer s.running.Unlock()
	defer s.setState(StateIdle)

	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	start := time.Now()
	res, err := s.runCycle(ctx)
	elapsed := time.Since(start)

	if err != nil {
		metrics.RecordScanCycle("error", elapsed)
		s.logger.Error().Err(err).Dur("duration", elapsed).Msg("Scan cycle failed")
		return nil, err
	}
	res.Duration = elapsed
	metrics.RecordScanCycle(string(res.Outcome), elapsed)

	if res.Outcome == OutcomeSkipped {
		s.logger.Info().Str("reason", res.Reason).Msg("Scan cycle skipped")
	} else {
		s.logger.Info().
			Int("model_version", res.ModelVersion).
			Int("scanned", res.Scanned).
			Int("anomalies", res.Anomalies).
			Int("suppressed", res.Suppressed).
			Int("skipped", res.Skipped).
			Int("errors", res.Errors).
			Dur("duration", elapsed).
			Msg("Scan cycle complete")
	}

	s.mu.Lock()
	s.last = res
	s.mu.Unlock()
	return res, nil
}

func (s *Scanner) runCycle(ctx context.Context) (*CycleResult, error) {
	s.setState(StateLoadingModel)
	model, active, err := s.deps.Models.Current(ctx, s.cfg.Kind)
	if err != nil {
		var schemaErr *anomaly.SchemaMismatchError
		switch {
		case errors.Is(err, modelstore.ErrNoActiveModel):
			return &CycleResult{Outcome: OutcomeSkipped, Reason: "no active model"}, nil
		case errors.Is(err, anomaly.ErrModelNotFound):
			return &CycleResult{Outcome: OutcomeSkipped, Reason: "active model bundle not found"}, nil
		case errors.As(err, &schemaErr):
			s.logger.Error().Err(err).Msg("Active model uses a stale feature schema, retrain required")
			return &CycleResult{Outcome: OutcomeSkipped, Reason: "schema mismatch"}, nil
		default:
			return nil, fmt.Errorf("load active model: %w", err)
		}
	}

	principals, err := s.deps.Principals.ActivePrincipals(ctx)
	if err != nil {
		return nil, fmt.Errorf("list principals: %w", err)
	}

	s.setState(StateScoring)
	res := &CycleResult{Outcome: OutcomeCompleted, ModelVersion: active.ModelVersion}
	for i := range principals {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result := s.scanPrincipal(ctx, model, s.threshold(model, active), &principals[i])
		metrics.RecordScanPrincipal(result)
		switch result {
		case resultSkipped:
			res.Skipped++
			continue
		case resultNormal:
			res.Normal++
		case resultAnomaly:
			res.Anomalies++
		case resultSuppressed:
			res.Suppressed++
		case resultError:
			res.Errors++
		}
		res.Scanned++
	}
	return res, nil
}

const (
	resultSkipped    = "skipped"
	resultNormal     = "normal"
	resultAnomaly    = "anomaly"
	resultSuppressed = "suppressed"
	resultError      = "error"
)

// threshold picks the configured override, then the active config's value,
// then the threshold baked into the model.
func (s *Scanner) threshold(model *anomaly.Model, active *modelstore.ActiveConfig) float64 {
	switch {
	case s.cfg.Threshold > 0:
		return s.cfg.Threshold
	case active != nil && active.Threshold > 0:
		return active.Threshold
	default:
		return model.Threshold
	}
}

func (s *Scanner) scanPrincipal(ctx context.Context, model *anomaly.Model, threshold float64, p *features.Principal) string {
	log := s.logger.With().Str("principal", p.ID).Logger()

	vec, err := s.deps.Extractor.Extract(ctx, p.ID, s.cfg.Window)
	if err != nil {
		log.Warn().Err(err).Msg("Feature extraction failed")
		return resultError
	}
	if vec.IsZeroActivity() {
		return resultSkipped
	}

	score, err := model.Score(vec.Values)
	if err != nil {
		log.Warn().Err(err).Msg("Scoring failed")
		return resultError
	}
	if score < threshold {
		return resultNormal
	}

	explained, err := model.Explain(vec.Values)
	if err != nil {
		log.Warn().Err(err).Msg("Explain failed")
		return resultError
	}
	top := anomaly.TopContributions(explained, s.cfg.TopFeatures)
	normalized := Normalize(score, threshold, model.Ceiling, s.cfg.Bands)
	severity := s.cfg.Tiers.Severity(normalized, s.cfg.Bands)
	now := s.now().UTC()

	rec := &detection.AnomalyRecord{
		PrincipalID:    p.ID,
		PrincipalEmail: p.Email,
		Source:         detection.SourceScan,
		Title:          fmt.Sprintf("Anomalous behavior: %s", displayName(p)),
		Description:    describe(score, threshold, top),
		Score:          score,
		Threshold:      threshold,
		Severity:       severity,
		Features:       vec.Map(),
		TopFeatures:    top,
		DetectedAt:     now,
	}
	created, err := s.deps.Anomalies.CreateAnomalyIfAbsent(ctx, rec, now.Add(-s.cfg.DedupWindow))
	if err != nil {
		log.Error().Err(err).Msg("Failed to record anomaly")
		return resultError
	}
	if !created {
		log.Debug().Float64("score", score).Msg("Anomaly suppressed by dedup window")
		return resultSuppressed
	}
	metrics.RecordAnomaly(string(detection.SourceScan), string(severity))

	event := events.AnomalyEvent{
		AnomalyID:      rec.ID,
		PrincipalID:    p.ID,
		PrincipalEmail: p.Email,
		Source:         string(detection.SourceScan),
		Title:          rec.Title,
		Score:          score,
		Threshold:      threshold,
		Normalized:     normalized,
		Severity:       string(severity),
		TopFeatures:    top,
		DetectedAt:     now,
	}
	if err := s.deps.Publisher.PublishAnomaly(ctx, event); err != nil {
		// The record stands; only the side effects are lost.
		log.Error().Err(err).Int64("anomaly_id", rec.ID).Msg("Failed to publish anomaly event")
	}
	log.Warn().
		Int64("anomaly_id", rec.ID).
		Float64("score", score).
		Float64("threshold", threshold).
		Float64("normalized", normalized).
		Str("severity", string(severity)).
		Msg("Anomaly detected")
	return resultAnomaly
}

func displayName(p *features.Principal) string {
	if p.Email != "" {
		return p.Email
	}
	return p.ID
}

func describe(score, threshold float64, top []anomaly.Contribution) string {
	desc := fmt.Sprintf("Isolation forest score %.4f exceeds threshold %.4f.", score, threshold)
	if len(top) == 0 {
		return desc
	}
	desc += " Top features:"
	for i, c := range top {
		if i > 0 {
			desc += ","
		}
		desc += fmt.Sprintf(" %s=%.4g", c.Feature, c.Value)
	}
	return desc
}
