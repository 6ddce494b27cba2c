// Warden - Behavioral Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

// Package anomaly implements the isolation forest scoring model.
//
// A Model bundles the fitted Scaler with the Forest and the decision
// threshold, so a vector is always scaled with the statistics of the corpus
// the trees were grown on. Scores are in (0, 1] and higher means more
// anomalous; no other convention leaves this package.
//
// Isolation scores saturate well below 1: a point far outside the training
// range is isolated along the outermost branches and scores the same however
// far out it lies. Ceiling records that saturation level so callers can place
// a score between the threshold and the most anomalous value the model can
// actually produce.
//
// Models are immutable after Train returns and safe for concurrent use.
package anomaly

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/tomtom215/warden/internal/features"
)

// MinSamples is the smallest corpus Train accepts.
const MinSamples = 10

// Model is a trained, immutable scoring model.
type Model struct {
	SchemaVersion int
	FeatureNames  []string
	Scaler        Scaler
	Forest        Forest
	Threshold     float64
	Ceiling       float64
	Params        Params
	SampleCount   int
	TrainedAt     time.Time
}

// Train fits a scaler and an isolation forest on data. The decision threshold
// is the (1 - contamination) quantile of the training scores, so roughly a
// contamination share of the corpus scores at or above it.
func Train(data [][]float64, p Params) (*Model, error) {
	if len(data) < MinSamples {
		return nil, fmt.Errorf("%w: have %d samples, need %d", ErrInsufficientData, len(data), MinSamples)
	}
	for i, row := range data {
		if len(row) != features.Count {
			return nil, fmt.Errorf("%w: sample %d has %d values, want %d", ErrDimensionMismatch, i, len(row), features.Count)
		}
	}
	p = p.withDefaults()

	scaler := FitScaler(data)
	scaled := scaler.TransformAll(data)

	m := &Model{
		SchemaVersion: features.SchemaVersion,
		FeatureNames:  features.NameList(),
		Scaler:        scaler,
		Forest:        growForest(scaled, p),
		Params:        p,
		SampleCount:   len(data),
		TrainedAt:     time.Now().UTC(),
	}

	scores := make([]float64, len(scaled))
	for i, row := range scaled {
		scores[i] = m.Forest.score(row)
	}
	m.Threshold = quantile(scores, 1-p.Contamination)
	m.Ceiling = math.Min(m.Forest.edgeScore(features.Count, 1), m.Forest.edgeScore(features.Count, -1))
	return m, nil
}

// Trained reports whether m can score.
func (m *Model) Trained() bool {
	return m != nil && len(m.Forest.Trees) > 0 && len(m.Scaler.Mean) > 0
}

// CheckSchema returns a SchemaMismatchError unless m was trained on version.
func (m *Model) CheckSchema(version int) error {
	if m.SchemaVersion != version || len(m.FeatureNames) != features.Count {
		return &SchemaMismatchError{Want: version, Got: m.SchemaVersion}
	}
	return nil
}

func (m *Model) validate(x []float64) error {
	if !m.Trained() {
		return ErrModelNotTrained
	}
	if err := m.CheckSchema(features.SchemaVersion); err != nil {
		return err
	}
	if len(x) != len(m.Scaler.Mean) {
		return fmt.Errorf("%w: got %d values, want %d", ErrDimensionMismatch, len(x), len(m.Scaler.Mean))
	}
	return nil
}

// Score returns the anomaly score of a raw (unscaled) vector. A model trained
// on another feature schema fails with *SchemaMismatchError.
func (m *Model) Score(x []float64) (float64, error) {
	if err := m.validate(x); err != nil {
		return 0, err
	}
	return m.Forest.score(m.Scaler.Transform(x)), nil
}

// ScoreAll scores every row of data.
func (m *Model) ScoreAll(data [][]float64) ([]float64, error) {
	out := make([]float64, len(data))
	for i, row := range data {
		s, err := m.Score(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = s
	}
	return out, nil
}

// IsAnomaly reports whether x scores at or above threshold. A non-positive
// threshold uses the model's own.
func (m *Model) IsAnomaly(x []float64, threshold float64) (bool, error) {
	s, err := m.Score(x)
	if err != nil {
		return false, err
	}
	if threshold <= 0 {
		threshold = m.Threshold
	}
	return s >= threshold, nil
}

// Predict labels every row of data against the model's threshold.
func (m *Model) Predict(data [][]float64) ([]bool, error) {
	scores, err := m.ScoreAll(data)
	if err != nil {
		return nil, err
	}
	out := make([]bool, len(scores))
	for i, s := range scores {
		out[i] = s >= m.Threshold
	}
	return out, nil
}

// quantile returns the q-quantile of values with linear interpolation.
func quantile(values []float64, q float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	frac := pos - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}
