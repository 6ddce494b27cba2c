// Warden - Behavioral Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package training

import (
	"fmt"
	"math/rand"

	"github.com/tomtom215/warden/internal/anomaly"
)

// DefaultFolds is the cross-validation fold count when none is given.
const DefaultFolds = 5

// Metrics summarizes an evaluation. Folds is 0 for a single-pass evaluation.
type Metrics struct {
	Precision    float64 `json:"precision"`
	Recall       float64 `json:"recall"`
	F1           float64 `json:"f1_score"`
	Folds        int     `json:"cv_folds"`
	TotalSamples int     `json:"total_samples"`
	AnomalyRatio float64 `json:"anomaly_ratio"`
}

// Evaluate measures detection quality. labels marks true anomalies; nil
// labels are replaced by the predictions of a model fitted on all of vectors,
// which makes the result a self-consistency check rather than ground truth.
//
// With at least 2*folds samples, and enough left in every training split to
// fit, a shuffled k-fold cross-validation is run, seeded from the trainer's
// seed. Otherwise the model is fitted once and scored on its own training
// data.
func (t *Trainer) Evaluate(vectors [][]float64, labels []bool, folds int) (Metrics, error) {
	if folds <= 1 {
		folds = DefaultFolds
	}
	if labels != nil && len(labels) != len(vectors) {
		return Metrics{}, fmt.Errorf("%w: %d labels for %d samples", anomaly.ErrDimensionMismatch, len(labels), len(vectors))
	}
	n := len(vectors)
	largestFold := (n + folds - 1) / folds
	if n < folds*2 || n-largestFold < anomaly.MinSamples {
		return t.simpleEvaluate(vectors, labels)
	}

	truth := labels
	if truth == nil {
		full, err := t.TrainModel(vectors)
		if err != nil {
			return Metrics{}, err
		}
		if truth, err = full.Predict(vectors); err != nil {
			return Metrics{}, err
		}
	}

	rng := rand.New(rand.NewSource(t.params.Seed)) //nolint:gosec // reproducible fold assignment
	order := rng.Perm(n)

	var sumP, sumR, sumF float64
	for k := 0; k < folds; k++ {
		lo, hi := foldBounds(n, folds, k)
		var train [][]float64
		var test [][]float64
		var testTruth []bool
		for i, idx := range order {
			if i >= lo && i < hi {
				test = append(test, vectors[idx])
				testTruth = append(testTruth, truth[idx])
			} else {
				train = append(train, vectors[idx])
			}
		}

		m, err := t.TrainModel(train)
		if err != nil {
			return Metrics{}, fmt.Errorf("fold %d: %w", k, err)
		}
		pred, err := m.Predict(test)
		if err != nil {
			return Metrics{}, fmt.Errorf("fold %d: %w", k, err)
		}
		p, r, f := binaryScores(testTruth, pred, true)
		sumP += p
		sumR += r
		sumF += f
	}

	return Metrics{
		Precision:    sumP / float64(folds),
		Recall:       sumR / float64(folds),
		F1:           sumF / float64(folds),
		Folds:        folds,
		TotalSamples: n,
		AnomalyRatio: positiveRatio(truth),
	}, nil
}

// simpleEvaluate fits once on everything. Without labels there is nothing to
// compare against, so the scores fall back to 1 - contamination.
func (t *Trainer) simpleEvaluate(vectors [][]float64, labels []bool) (Metrics, error) {
	m, err := t.TrainModel(vectors)
	if err != nil {
		return Metrics{}, err
	}
	pred, err := m.Predict(vectors)
	if err != nil {
		return Metrics{}, err
	}

	out := Metrics{TotalSamples: len(vectors), AnomalyRatio: positiveRatio(pred)}
	if labels == nil {
		c := m.Params.Contamination
		out.Precision, out.Recall, out.F1 = 1-c, 1-c, 1-c
		return out, nil
	}
	out.Precision, out.Recall, out.F1 = binaryScores(labels, pred, false)
	return out, nil
}

// foldBounds splits n items into k contiguous folds, the first n%k folds one
// larger, like scikit-learn's KFold.
func foldBounds(n, k, fold int) (lo, hi int) {
	size := n / k
	extra := n % k
	lo = fold*size + min(fold, extra)
	hi = lo + size
	if fold < extra {
		hi++
	}
	return lo, hi
}

// binaryScores returns precision, recall and F1 with zero-division = 0.
// When perfectEmpty is set, a split with no positives in truth or prediction
// scores 1 on all three.
func binaryScores(truth, pred []bool, perfectEmpty bool) (precision, recall, f1 float64) {
	var tp, fp, fn int
	for i := range truth {
		switch {
		case truth[i] && pred[i]:
			tp++
		case !truth[i] && pred[i]:
			fp++
		case truth[i] && !pred[i]:
			fn++
		}
	}
	if perfectEmpty && tp+fp+fn == 0 {
		return 1, 1, 1
	}
	if tp+fp > 0 {
		precision = float64(tp) / float64(tp+fp)
	}
	if tp+fn > 0 {
		recall = float64(tp) / float64(tp+fn)
	}
	if precision+recall > 0 {
		f1 = 2 * precision * recall / (precision + recall)
	}
	return precision, recall, f1
}

func positiveRatio(v []bool) float64 {
	if len(v) == 0 {
		return 0
	}
	n := 0
	for _, b := range v {
		if b {
			n++
		}
	}
	return float64(n) / float64(len(v))
}
