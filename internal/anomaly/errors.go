// Warden - Behavioral Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package anomaly

import (
	"errors"
	"fmt"
)

var (
	// ErrInsufficientData is returned by Train when fewer than MinSamples
	// vectors are supplied. Callers skip the cycle and retry on the next tick.
	ErrInsufficientData = errors.New("insufficient training data")

	// ErrModelNotTrained is returned when scoring or explaining with a nil or
	// empty model.
	ErrModelNotTrained = errors.New("model not trained")

	// ErrModelNotFound means no persisted model exists at the requested
	// location. Treat it as "no active model yet".
	ErrModelNotFound = errors.New("model not found")

	// ErrDimensionMismatch is returned for a vector whose length differs from
	// the model's feature count.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)

// SchemaMismatchError is returned when a persisted model was trained against a
// different feature schema than the running extractor produces.
type SchemaMismatchError struct {
	Want int
	Got  int
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("feature schema mismatch: model has v%d, extractor produces v%d", e.Got, e.Want)
}
