// Warden - Behavioral Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package anomaly

import (
	"math"
	"math/rand"
)

const eulerGamma = 0.5772156649

// Params are the isolation forest hyperparameters.
type Params struct {
	Trees         int     `json:"trees"`
	MaxSamples    int     `json:"max_samples"`
	Contamination float64 `json:"contamination"`
	Seed          int64   `json:"seed"`
}

// DefaultParams returns 100 trees, 256 samples per tree, 10% contamination.
func DefaultParams() Params {
	return Params{Trees: 100, MaxSamples: 256, Contamination: 0.1, Seed: 42}
}

func (p Params) withDefaults() Params {
	d := DefaultParams()
	if p.Trees <= 0 {
		p.Trees = d.Trees
	}
	if p.MaxSamples < 2 {
		p.MaxSamples = d.MaxSamples
	}
	if p.Contamination <= 0 || p.Contamination > 0.5 {
		p.Contamination = d.Contamination
	}
	return p
}

// Node is an isolation tree node. A node with no children is a leaf and
// Size holds the number of training points that reached it.
type Node struct {
	Feature int
	Split   float64
	Left    *Node
	Right   *Node
	Size    int
}

// Forest is a trained isolation forest. Fields are exported for gob.
type Forest struct {
	Trees      []*Node
	SampleSize int
}

func growForest(data [][]float64, p Params) Forest {
	rng := rand.New(rand.NewSource(p.Seed)) //nolint:gosec // reproducible model, not security sensitive

	psi := p.MaxSamples
	if psi > len(data) {
		psi = len(data)
	}
	limit := int(math.Ceil(math.Log2(float64(psi))))

	f := Forest{Trees: make([]*Node, p.Trees), SampleSize: psi}
	sample := make([][]float64, psi)
	for t := range f.Trees {
		perm := rng.Perm(len(data))
		for i := 0; i < psi; i++ {
			sample[i] = data[perm[i]]
		}
		f.Trees[t] = growTree(rng, sample, 0, limit)
	}
	return f
}

func growTree(rng *rand.Rand, data [][]float64, depth, limit int) *Node {
	n := len(data)
	if n <= 1 || depth >= limit {
		return &Node{Size: n}
	}

	// Pick a random feature among those that still vary.
	dims := len(data[0])
	candidates := make([]int, 0, dims)
	for j := 0; j < dims; j++ {
		first := data[0][j]
		for i := 1; i < n; i++ {
			if data[i][j] != first {
				candidates = append(candidates, j)
				break
			}
		}
	}
	if len(candidates) == 0 {
		return &Node{Size: n}
	}

	feature := candidates[rng.Intn(len(candidates))]
	lo, hi := data[0][feature], data[0][feature]
	for _, row := range data[1:] {
		lo = math.Min(lo, row[feature])
		hi = math.Max(hi, row[feature])
	}
	split := lo + rng.Float64()*(hi-lo)

	left := make([][]float64, 0, n/2)
	right := make([][]float64, 0, n/2)
	for _, row := range data {
		if row[feature] < split {
			left = append(left, row)
		} else {
			right = append(right, row)
		}
	}
	// Float64 can return 0, putting every point right of lo.
	if len(left) == 0 || len(right) == 0 {
		return &Node{Size: n}
	}

	return &Node{
		Feature: feature,
		Split:   split,
		Left:    growTree(rng, left, depth+1, limit),
		Right:   growTree(rng, right, depth+1, limit),
		Size:    n,
	}
}

// averagePathLength is c(n), the mean depth of an unsuccessful BST search.
func averagePathLength(n int) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	default:
		fn := float64(n)
		return 2*(math.Log(fn-1)+eulerGamma) - 2*(fn-1)/fn
	}
}

func pathLength(node *Node, x []float64, depth int) float64 {
	for node.Left != nil {
		if x[node.Feature] < node.Split {
			node = node.Left
		} else {
			node = node.Right
		}
		depth++
	}
	return float64(depth) + averagePathLength(node.Size)
}

// edgeScore scores a point lying beyond the training range of every feature,
// on the high side when sign is positive and the low side otherwise. Such a
// point follows the outermost branch of each tree, so no input pushed further
// out in that direction can score higher.
func (f Forest) edgeScore(dims int, sign float64) float64 {
	x := make([]float64, dims)
	for j := range x {
		x[j] = math.Copysign(math.MaxFloat64, sign)
	}
	return f.score(x)
}

// score returns 2^(-E[h(x)]/c(psi)) in (0, 1]; higher is more anomalous.
func (f Forest) score(x []float64) float64 {
	var total float64
	for _, tree := range f.Trees {
		total += pathLength(tree, x, 0)
	}
	mean := total / float64(len(f.Trees))
	c := averagePathLength(f.SampleSize)
	if c <= 0 {
		c = 1
	}
	return math.Pow(2, -mean/c)
}
