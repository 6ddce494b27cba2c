// Warden - Behavioral Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

// Package response turns detection events into side effects: session
// revocation and notifications. It consumes events from the bus and never
// reads or writes models.
package response

// Band is the response tier for a normalized score.
type Band string

const (
	BandNormal   Band = "normal"
	BandWarning  Band = "warning"
	BandCritical Band = "critical"
)

// Default band thresholds on the normalized 0..1 scale.
const (
	DefaultWarningThreshold  = 0.4
	DefaultCriticalThreshold = 0.7
)

// Bands holds the lower bounds of the warning and critical tiers.
type Bands struct {
	Warning  float64
	Critical float64
}

// DefaultBands returns 0.4 / 0.7.
func DefaultBands() Bands {
	return Bands{Warning: DefaultWarningThreshold, Critical: DefaultCriticalThreshold}
}

// Classify maps score to exactly one band. Bounds are inclusive.
func (b Bands) Classify(score float64) Band {
	switch {
	case score >= b.Critical:
		return BandCritical
	case score >= b.Warning:
		return BandWarning
	default:
		return BandNormal
	}
}
