// Warden - Behavioral Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package training

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/warden/internal/anomaly"
	"github.com/tomtom215/warden/internal/features"
	"github.com/tomtom215/warden/internal/logging"
	"github.com/tomtom215/warden/internal/metrics"
	"github.com/tomtom215/warden/internal/modelstore"
)

var (
	// ErrTrainingInProgress is returned by Run while another Run is active.
	ErrTrainingInProgress = errors.New("training already in progress")

	// ErrNotConfigured is returned by Run on a trainer built without Deps.
	ErrNotConfigured = errors.New("trainer has no data sources configured")
)

// Outcome is the result class of a training cycle.
type Outcome string

const (
	OutcomeTrained Outcome = "trained"
	OutcomeSkipped Outcome = "skipped"
)

// PrincipalLister lists principals to train on.
type PrincipalLister interface {
	ActivePrincipals(ctx context.Context) ([]features.Principal, error)
}

// VectorExtractor builds a feature vector for one principal.
type VectorExtractor interface {
	Extract(ctx context.Context, principalID string, window time.Duration) (features.Vector, error)
}

// FeedbackSource reports principals with reviewed false positives.
type FeedbackSource interface {
	FalsePositivePrincipals(ctx context.Context, since time.Time) (map[string]bool, error)
}

// ModelSaver persists model bundles.
type ModelSaver interface {
	Save(ctx context.Context, kind string, m *anomaly.Model) (modelstore.Meta, error)
	Prune(ctx context.Context, kind string, keep int) (int, error)
}

// ConfigActivator repoints the active model config.
type ConfigActivator interface {
	Activate(ctx context.Context, cfg *modelstore.ActiveConfig) error
}

// ModelPublisher makes a promoted model visible to scanners.
type ModelPublisher interface {
	Publish(kind, key string, m *anomaly.Model)
}

// Deps are the collaborators of Run. Feedback and Registry are optional.
type Deps struct {
	Principals PrincipalLister
	Extractor  VectorExtractor
	Feedback   FeedbackSource
	Models     ModelSaver
	Configs    ConfigActivator
	Registry   ModelPublisher
}

// RunConfig tunes a scheduled cycle.
type RunConfig struct {
	Kind           string
	Name           string
	Window         time.Duration
	FeedbackWindow time.Duration
	Timeout        time.Duration
	KeepVersions   int
}

func (c RunConfig) withDefaults() RunConfig {
	if c.Kind == "" {
		c.Kind = "isolation_forest"
	}
	if c.Name == "" {
		c.Name = "Isolation Forest - Anomaly Detection"
	}
	if c.Window <= 0 {
		c.Window = 24 * time.Hour
	}
	if c.FeedbackWindow <= 0 {
		c.FeedbackWindow = 30 * 24 * time.Hour
	}
	return c
}

// Result describes a finished cycle.
type Result struct {
	Outcome        Outcome         `json:"outcome"`
	Reason         string          `json:"reason,omitempty"`
	Samples        int             `json:"samples"`
	FalsePositives int             `json:"false_positives"`
	Model          modelstore.Meta `json:"model"`
	Duration       time.Duration   `json:"duration"`
}

// Run executes one training cycle. Too few samples is a skipped outcome, not
// an error. The new model is promoted only after it is saved and activated.
func (t *Trainer) Run(ctx context.Context) (*Result, error) {
	if t.deps.Principals == nil || t.deps.Extractor == nil || t.deps.Models == nil || t.deps.Configs == nil {
		return nil, ErrNotConfigured
	}
	if !t.running.TryLock() {
		return nil, ErrTrainingInProgress
	}
	defer t.running.Unlock()

	if t.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.cfg.Timeout)
		defer cancel()
	}

	logger := logging.Ctx(ctx).With().Str("component", "trainer").Logger()
	start := time.Now()
	res, err := t.run(ctx)
	elapsed := time.Since(start)

	switch {
	case err != nil:
		metrics.RecordTrainingRun("error", elapsed)
		logger.Error().Err(err).Dur("duration", elapsed).Msg("Training cycle failed")
		return nil, err
	case res.Outcome == OutcomeSkipped:
		metrics.RecordTrainingRun(string(OutcomeSkipped), elapsed)
		logger.Info().Str("reason", res.Reason).Int("samples", res.Samples).Msg("Training cycle skipped")
	default:
		metrics.RecordTrainingRun(string(OutcomeTrained), elapsed)
		metrics.SetActiveModel(res.Model.Version, res.Samples, res.Model.Threshold)
		logger.Info().
			Int("version", res.Model.Version).
			Int("samples", res.Samples).
			Int("false_positives", res.FalsePositives).
			Float64("threshold", res.Model.Threshold).
			Dur("duration", elapsed).
			Msg("Model trained and activated")
	}
	res.Duration = elapsed
	return res, nil
}

func (t *Trainer) run(ctx context.Context) (*Result, error) {
	principals, err := t.deps.Principals.ActivePrincipals(ctx)
	if err != nil {
		return nil, fmt.Errorf("list principals: %w", err)
	}

	var fps map[string]bool
	if t.deps.Feedback != nil {
		fps, err = t.deps.Feedback.FalsePositivePrincipals(ctx, time.Now().Add(-t.cfg.FeedbackWindow))
		if err != nil {
			logging.Ctx(ctx).Warn().Err(err).Msg("Failed to load reviewer feedback, training without it")
			fps = nil
		}
	}

	vectors := make([][]float64, 0, len(principals))
	var fpIdx []int
	for i := range principals {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vec, err := t.deps.Extractor.Extract(ctx, principals[i].ID, t.cfg.Window)
		if err != nil {
			logging.Ctx(ctx).Warn().Err(err).Str("principal", principals[i].ID).Msg("Failed to extract training vector")
			continue
		}
		if fps[principals[i].ID] {
			fpIdx = append(fpIdx, len(vectors))
		}
		vectors = append(vectors, vec.Values)
	}

	res := &Result{Samples: len(vectors), FalsePositives: len(fpIdx)}
	if len(vectors) < t.minSamples {
		res.Outcome = OutcomeSkipped
		res.Reason = fmt.Sprintf("insufficient data: %d samples, need %d", len(vectors), t.minSamples)
		return res, nil
	}

	model, err := t.RetrainWithFeedback(vectors, fpIdx)
	if err != nil {
		return nil, fmt.Errorf("train model: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	meta, err := t.deps.Models.Save(ctx, t.cfg.Kind, model)
	if err != nil {
		return nil, fmt.Errorf("save model: %w", err)
	}

	cfg := modelstore.ConfigFromMeta(t.cfg.Name, model.Params, meta)
	if err := t.deps.Configs.Activate(ctx, &cfg); err != nil {
		return nil, fmt.Errorf("activate model: %w", err)
	}
	if t.deps.Registry != nil {
		t.deps.Registry.Publish(t.cfg.Kind, meta.Key, model)
	}

	if t.cfg.KeepVersions > 0 {
		if removed, err := t.deps.Models.Prune(ctx, t.cfg.Kind, t.cfg.KeepVersions); err != nil {
			logging.Ctx(ctx).Warn().Err(err).Msg("Failed to prune old model versions")
		} else if removed > 0 {
			logging.Ctx(ctx).Debug().Int("removed", removed).Msg("Pruned old model versions")
		}
	}

	res.Outcome = OutcomeTrained
	res.Model = meta
	return res, nil
}
