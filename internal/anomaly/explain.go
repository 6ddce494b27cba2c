// Warden - Behavioral Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package anomaly

import (
	"math"
	"sort"
)

// Contribution is one feature's effect on a score.
type Contribution struct {
	Feature      string  `json:"feature"`
	Value        float64 `json:"value"`
	Contribution float64 `json:"contribution"`
}

// Explain estimates each feature's contribution by leave-one-out ablation:
// the feature is replaced with its training mean (0 after scaling), the
// vector is rescored, and the contribution is the base score minus the
// ablated score. Ablating to the mean keeps coded features such as role_code
// inside their training range. This is a coarse approximation and not a
// formal attribution; interacting features can share or mask credit.
func (m *Model) Explain(x []float64) (map[string]Contribution, error) {
	base, err := m.Score(x)
	if err != nil {
		return nil, err
	}

	out := make(map[string]Contribution, len(x))
	ablated := make([]float64, len(x))
	for i, v := range x {
		copy(ablated, x)
		ablated[i] = m.Scaler.Mean[i]
		s := m.Forest.score(m.Scaler.Transform(ablated))
		name := m.FeatureNames[i]
		out[name] = Contribution{Feature: name, Value: v, Contribution: base - s}
	}
	return out, nil
}

// TopContributions returns the n entries with the largest absolute
// contribution, ties broken by feature name.
func TopContributions(explained map[string]Contribution, n int) []Contribution {
	all := make([]Contribution, 0, len(explained))
	for _, c := range explained {
		all = append(all, c)
	}
	sort.Slice(all, func(i, j int) bool {
		ai, aj := math.Abs(all[i].Contribution), math.Abs(all[j].Contribution)
		if ai != aj {
			return ai > aj
		}
		return all[i].Feature < all[j].Feature
	})
	if n >= 0 && n < len(all) {
		all = all[:n]
	}
	return all
}
