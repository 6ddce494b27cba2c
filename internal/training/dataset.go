// Warden - Behavioral Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package training

import (
	"fmt"
	"math/rand"

	"github.com/tomtom215/warden/internal/features"
)

// Sample is one labeled vector of a synthetic or exported corpus.
type Sample struct {
	Principal string
	Values    []float64
	Anomaly   bool
}

// Anomaly patterns injected by GenerateDataset.
const (
	PatternMassDownload = "mass_download"
	PatternOffHours     = "off_hours"
	PatternBruteForce   = "brute_force"
	PatternEndpointScan = "endpoint_scan"
	PatternHighError    = "high_error"
)

var patterns = []string{PatternMassDownload, PatternOffHours, PatternBruteForce, PatternEndpointScan, PatternHighError}

var datasetRoles = []string{"member", "member", "member", "confession_leader", "qomita_rahbar", "psychologist"}

// GenerateDataset builds normal working-hours activity plus anomalous rows
// drawn from five attack patterns, shuffled. The same rng seed yields the
// same corpus.
func GenerateDataset(rng *rand.Rand, normal, anomalous, principals int) []Sample {
	if principals <= 0 {
		principals = 50
	}
	out := make([]Sample, 0, normal+anomalous)
	for i := 0; i < normal; i++ {
		out = append(out, normalSample(rng, principals))
	}
	for i := 0; i < anomalous; i++ {
		s := normalSample(rng, principals)
		applyPattern(rng, s.Values, patterns[rng.Intn(len(patterns))])
		s.Anomaly = true
		out = append(out, s)
	}
	rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

func normalSample(rng *rand.Rand, principals int) Sample {
	v := make([]float64, features.Count)
	v[features.RequestCountPerHour] = float64(5 + rng.Intn(46))
	v[features.UniqueEndpoints] = float64(1 + rng.Intn(5))
	v[features.ErrorRate] = rng.Float64() * 0.1
	v[features.FailedLogins] = 0
	v[features.DocsAccessed] = float64(rng.Intn(11))
	v[features.DownloadMB] = float64(rng.Intn(6)) * 0.5
	v[features.AvgPayloadKB] = (100 + rng.Float64()*4900) / 1024
	v[features.SessionDurationMin] = float64(10 + rng.Intn(50))
	v[features.HourOfDay] = float64(8 + rng.Intn(11))
	v[features.DayOfWeek] = float64(1 + rng.Intn(5))
	v[features.OwnSectionRatio] = 0.9 + rng.Float64()*0.1
	v[features.RoleCode] = features.EncodeRole(datasetRoles[rng.Intn(len(datasetRoles))])
	v[features.ConfessionTypeCode] = float64(1 + rng.Intn(2))
	v[features.HistoricalAnomalyRate] = 0
	return Sample{
		Principal: fmt.Sprintf("user_%d@scp.local", 1+rng.Intn(principals)),
		Values:    v,
	}
}

func applyPattern(rng *rand.Rand, v []float64, pattern string) {
	switch pattern {
	case PatternMassDownload:
		v[features.RequestCountPerHour] = float64(200 + rng.Intn(301))
		v[features.DownloadMB] = float64(50 + rng.Intn(151))
		v[features.DocsAccessed] = float64(30 + rng.Intn(71))
		v[features.OwnSectionRatio] = rng.Float64() * 0.5
	case PatternOffHours:
		v[features.HourOfDay] = float64([]int{0, 1, 2, 3, 4, 5, 23}[rng.Intn(7)])
		v[features.RequestCountPerHour] = float64(20 + rng.Intn(81))
	case PatternBruteForce:
		v[features.FailedLogins] = float64(5 + rng.Intn(26))
		v[features.ErrorRate] = 0.5 + rng.Float64()*0.5
	case PatternEndpointScan:
		v[features.UniqueEndpoints] = float64(15 + rng.Intn(16))
		v[features.RequestCountPerHour] = float64(100 + rng.Intn(201))
	case PatternHighError:
		v[features.ErrorRate] = 0.4 + rng.Float64()*0.5
		v[features.RequestCountPerHour] = float64(50 + rng.Intn(101))
	}
}

// Split separates values and labels.
func Split(samples []Sample) (vectors [][]float64, labels []bool) {
	vectors = make([][]float64, len(samples))
	labels = make([]bool, len(samples))
	for i, s := range samples {
		vectors[i] = s.Values
		labels[i] = s.Anomaly
	}
	return vectors, labels
}
