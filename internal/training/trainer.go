// Warden - Behavioral Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

// Package training fits, evaluates and promotes scoring models.
//
// TrainModel is the only fitting path: a scaler and isolation forest fitted
// together into one anomaly.Model. Run wraps it into a scheduled cycle that
// extracts vectors for every active principal, applies reviewer feedback,
// persists the bundle, repoints the active config and finally publishes the
// model to the registry. An abandoned run leaves the active model untouched
// because promotion is the last step.
package training

import (
	"fmt"
	"math"
	"sync"

	"github.com/tomtom215/warden/internal/anomaly"
)

// Trainer fits models with fixed hyperparameters.
type Trainer struct {
	params     anomaly.Params
	minSamples int
	deps       Deps
	cfg        RunConfig

	// running is held for the duration of Run.
	running sync.Mutex
}

// NewTrainer creates a trainer. deps may be zero for offline use, in which
// case Run is unavailable.
func NewTrainer(params anomaly.Params, minSamples int, cfg RunConfig, deps Deps) *Trainer {
	if minSamples < anomaly.MinSamples {
		minSamples = anomaly.MinSamples
	}
	return &Trainer{
		params:     params,
		minSamples: minSamples,
		deps:       deps,
		cfg:        cfg.withDefaults(),
	}
}

// Params returns the trainer's hyperparameters.
func (t *Trainer) Params() anomaly.Params {
	return t.params
}

// TrainModel fits a model on vectors.
func (t *Trainer) TrainModel(vectors [][]float64) (*anomaly.Model, error) {
	return anomaly.Train(vectors, t.params)
}

// RetrainWithFeedback refits with contamination lowered by the number of
// samples reviewers marked as false positives:
//
//	effective = max(1, floor(c*n) - len(fp))
//	adjusted  = max(0.01, effective/n)
func (t *Trainer) RetrainWithFeedback(vectors [][]float64, falsePositiveIdx []int) (*anomaly.Model, error) {
	if len(falsePositiveIdx) == 0 {
		return t.TrainModel(vectors)
	}
	if len(vectors) < anomaly.MinSamples {
		return nil, fmt.Errorf("%w: have %d samples, need %d", anomaly.ErrInsufficientData, len(vectors), anomaly.MinSamples)
	}
	p := t.params
	p.Contamination = AdjustedContamination(p.Contamination, len(vectors), len(falsePositiveIdx))
	return anomaly.Train(vectors, p)
}

// AdjustedContamination applies reviewer feedback to contamination c over n
// samples with fp confirmed false positives.
func AdjustedContamination(c float64, n, fp int) float64 {
	if n <= 0 {
		return c
	}
	effective := int(math.Floor(c*float64(n))) - fp
	if effective < 1 {
		effective = 1
	}
	return math.Max(0.01, float64(effective)/float64(n))
}
