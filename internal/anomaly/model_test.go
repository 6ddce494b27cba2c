// Warden - Behavioral Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package anomaly

import (
	"errors"
	"math"
	"math/rand"
	"sort"
	"testing"

	"github.com/tomtom215/warden/internal/features"
)

// normalMeans are per-feature means of typical activity.
func normalMeans() []float64 {
	m := make([]float64, features.Count)
	for j := range m {
		m[j] = float64(j + 1)
	}
	return m
}

// corpus returns n vectors within +-5% of normalMeans.
func corpus(rng *rand.Rand, n int) [][]float64 {
	means := normalMeans()
	out := make([][]float64, n)
	for i := range out {
		row := make([]float64, features.Count)
		for j, mu := range means {
			row[j] = mu * (0.95 + 0.1*rng.Float64())
		}
		out[i] = row
	}
	return out
}

func scaled(factor float64) []float64 {
	means := normalMeans()
	out := make([]float64, len(means))
	for j, mu := range means {
		out[j] = mu * factor
	}
	return out
}

func TestTrain_InsufficientData(t *testing.T) {
	data := corpus(rand.New(rand.NewSource(1)), MinSamples-1)

	m, err := Train(data, DefaultParams())
	if !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}
	if m != nil {
		t.Fatal("expected nil model")
	}
}

func TestTrain_DimensionMismatch(t *testing.T) {
	data := corpus(rand.New(rand.NewSource(1)), 20)
	data[3] = data[3][:5]

	if _, err := Train(data, DefaultParams()); !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestUntrainedModel(t *testing.T) {
	x := scaled(1)
	for name, m := range map[string]*Model{"nil": nil, "empty": {}} {
		t.Run(name, func(t *testing.T) {
			if _, err := m.Score(x); !errors.Is(err, ErrModelNotTrained) {
				t.Errorf("Score: expected ErrModelNotTrained, got %v", err)
			}
			if _, err := m.Explain(x); !errors.Is(err, ErrModelNotTrained) {
				t.Errorf("Explain: expected ErrModelNotTrained, got %v", err)
			}
			if _, err := m.IsAnomaly(x, 0.5); !errors.Is(err, ErrModelNotTrained) {
				t.Errorf("IsAnomaly: expected ErrModelNotTrained, got %v", err)
			}
		})
	}
}

func TestScoreRange(t *testing.T) {
	m, err := Train(corpus(rand.New(rand.NewSource(2)), 100), DefaultParams())
	if err != nil {
		t.Fatal(err)
	}
	for _, f := range []float64{0, 1, 10, 1000} {
		s, err := m.Score(scaled(f))
		if err != nil {
			t.Fatal(err)
		}
		if s <= 0 || s > 1 || math.IsNaN(s) {
			t.Errorf("score for factor %v out of (0,1]: %v", f, s)
		}
	}
	if m.Threshold <= 0 || m.Threshold > 1 {
		t.Errorf("threshold out of range: %v", m.Threshold)
	}
}

func TestExtremeOutlierScoresHigher(t *testing.T) {
	m, err := Train(corpus(rand.New(rand.NewSource(3)), 200), DefaultParams())
	if err != nil {
		t.Fatal(err)
	}

	extreme, _ := m.Score(scaled(100))
	// Typical inputs from the low, middle and high end of the training range.
	for _, f := range []float64{0.96, 1, 1.04} {
		typical, _ := m.Score(scaled(f))
		if extreme <= typical {
			t.Errorf("extreme %v should exceed typical (factor %v) %v", extreme, f, typical)
		}
	}
	if ok, _ := m.IsAnomaly(scaled(100), 0); !ok {
		t.Error("expected extreme vector to be flagged with model threshold")
	}
}

func TestCeiling(t *testing.T) {
	m, err := Train(corpus(rand.New(rand.NewSource(3)), 200), DefaultParams())
	if err != nil {
		t.Fatal(err)
	}
	if m.Ceiling <= m.Threshold || m.Ceiling > 1 {
		t.Fatalf("ceiling %v should lie in (threshold %v, 1]", m.Ceiling, m.Threshold)
	}

	// Every input beyond the training range saturates at the same score, and
	// that score is at or above the ceiling.
	far, _ := m.Score(scaled(100))
	farther, _ := m.Score(scaled(1000))
	if far != farther {
		t.Errorf("scores beyond the range should saturate: 100x=%v 1000x=%v", far, farther)
	}
	if far < m.Ceiling {
		t.Errorf("saturated score %v below ceiling %v", far, m.Ceiling)
	}
}

func TestScore_SchemaMismatch(t *testing.T) {
	m, err := Train(corpus(rand.New(rand.NewSource(5)), 30), DefaultParams())
	if err != nil {
		t.Fatal(err)
	}
	m.SchemaVersion = features.SchemaVersion + 1

	_, err = m.Score(scaled(1))
	var mismatch *SchemaMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("Score error = %v, want SchemaMismatchError", err)
	}
	if _, err := m.Explain(scaled(1)); !errors.As(err, &mismatch) {
		t.Errorf("Explain error = %v, want SchemaMismatchError", err)
	}
}

func TestOutliersLandInTopDecile(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	data := corpus(rng, 45)
	for i := 0; i < 5; i++ {
		data = append(data, scaled(50))
	}

	p := DefaultParams()
	p.Contamination = 0.1
	m, err := Train(data, p)
	if err != nil {
		t.Fatal(err)
	}
	scores, err := m.ScoreAll(data)
	if err != nil {
		t.Fatal(err)
	}

	idx := make([]int, len(scores))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return scores[idx[a]] > scores[idx[b]] })

	caught := 0
	for _, i := range idx[:len(idx)/10] {
		if i >= 45 {
			caught++
		}
	}
	if caught < 4 {
		t.Errorf("expected at least 4 outliers in top decile, got %d", caught)
	}
}

func TestThresholdMatchesContamination(t *testing.T) {
	data := corpus(rand.New(rand.NewSource(5)), 200)
	p := DefaultParams()
	p.Contamination = 0.05

	m, err := Train(data, p)
	if err != nil {
		t.Fatal(err)
	}
	preds, err := m.Predict(data)
	if err != nil {
		t.Fatal(err)
	}
	flagged := 0
	for _, a := range preds {
		if a {
			flagged++
		}
	}
	if flagged < 5 || flagged > 15 {
		t.Errorf("expected about 10 flagged of 200, got %d", flagged)
	}
}

func TestTrainDeterministicWithSeed(t *testing.T) {
	data := corpus(rand.New(rand.NewSource(6)), 60)
	a, _ := Train(data, DefaultParams())
	b, _ := Train(data, DefaultParams())

	x := scaled(3)
	sa, _ := a.Score(x)
	sb, _ := b.Score(x)
	if sa != sb {
		t.Errorf("same seed produced different scores: %v vs %v", sa, sb)
	}
}

func TestCheckSchema(t *testing.T) {
	m, err := Train(corpus(rand.New(rand.NewSource(7)), 20), DefaultParams())
	if err != nil {
		t.Fatal(err)
	}
	if err := m.CheckSchema(features.SchemaVersion); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	var sme *SchemaMismatchError
	if err := m.CheckSchema(features.SchemaVersion + 1); !errors.As(err, &sme) {
		t.Fatalf("expected SchemaMismatchError, got %v", err)
	}
	if sme.Got != features.SchemaVersion {
		t.Errorf("Got = %d", sme.Got)
	}
}

func TestScoreDimensionMismatch(t *testing.T) {
	m, _ := Train(corpus(rand.New(rand.NewSource(8)), 20), DefaultParams())
	if _, err := m.Score([]float64{1, 2}); !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestAveragePathLength(t *testing.T) {
	if averagePathLength(1) != 0 || averagePathLength(2) != 1 {
		t.Error("unexpected small-n values")
	}
	if got := averagePathLength(256); math.Abs(got-10.2448) > 1e-3 {
		t.Errorf("c(256) = %v, want about 10.2448", got)
	}
}

func TestQuantile(t *testing.T) {
	vals := []float64{5, 1, 3, 2, 4}
	if got := quantile(vals, 0.5); got != 3 {
		t.Errorf("median = %v", got)
	}
	if got := quantile(vals, 0.9); math.Abs(got-4.6) > 1e-9 {
		t.Errorf("q0.9 = %v", got)
	}
	if vals[0] != 5 {
		t.Error("quantile must not reorder its input")
	}
}
