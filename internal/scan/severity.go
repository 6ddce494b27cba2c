// Warden - Behavioral Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package scan

import (
	"github.com/tomtom215/warden/internal/detection"
	"github.com/tomtom215/warden/internal/response"
)

// Default severity multipliers of the warning bound.
const (
	DefaultHighMultiplier     = 1.5
	DefaultCriticalMultiplier = 2.0
	DefaultTopFeatures        = 3
)

// Tiers maps a normalized score, taken as a multiple of the warning bound, to
// a record severity. The normalized scale ends at 1, so with the default
// warning bound of 0.4 multipliers run up to 2.5: high starts at 0.6 and
// critical at 0.8.
type Tiers struct {
	High     float64
	Critical float64
}

// DefaultTiers returns 1.5 / 2.0.
func DefaultTiers() Tiers {
	return Tiers{High: DefaultHighMultiplier, Critical: DefaultCriticalMultiplier}
}

// Severity tiers a normalized score: medium at the warning bound, then high
// and critical at the configured multiples. Scores below warning are low.
func (t Tiers) Severity(normalized float64, bands response.Bands) detection.Severity {
	if bands.Warning <= 0 {
		return detection.SeverityCritical
	}
	ratio := normalized / bands.Warning
	switch {
	case ratio >= t.Critical:
		return detection.SeverityCritical
	case ratio >= t.High:
		return detection.SeverityHigh
	case ratio >= 1.0:
		return detection.SeverityMedium
	default:
		return detection.SeverityLow
	}
}

// Normalize maps a model score onto the 0..1 response scale. The mapping is
// piecewise linear: scores below the threshold fill [0, warning) and the span
// from the threshold to the model's ceiling fills [warning, 1]. A score at
// the threshold lands on the warning bound and a saturated outlier lands on
// 1. A ceiling at or below the threshold, as with bundles that predate it,
// falls back to 1.
func Normalize(score, threshold, ceiling float64, bands response.Bands) float64 {
	if threshold <= 0 || threshold >= 1 {
		return clamp01(score)
	}
	if score < threshold {
		return clamp01(score / threshold * bands.Warning)
	}
	if ceiling <= threshold || ceiling > 1 {
		ceiling = 1
	}
	return clamp01(bands.Warning + (score-threshold)/(ceiling-threshold)*(1-bands.Warning))
}

func clamp01(x float64) float64 {
	switch {
	case x < 0:
		return 0
	case x > 1:
		return 1
	default:
		return x
	}
}
