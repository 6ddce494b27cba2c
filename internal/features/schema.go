// Warden - Behavioral Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

// Package features turns a principal's activity history into the fixed-length
// numeric vector the anomaly model is trained on and scores.
//
// The layout of a vector is fixed by SchemaVersion. Any change to Names (order,
// count or meaning) must bump SchemaVersion so persisted models trained on an
// older layout are refused at load time instead of silently misread.
package features

import (
	"math"
	"strings"
)

// SchemaVersion identifies the layout of Names.
const SchemaVersion = 2

// Feature indexes into a Vector.
const (
	RequestCountPerHour = iota
	UniqueEndpoints
	ErrorRate
	FailedLogins
	DocsAccessed
	DownloadMB
	AvgPayloadKB
	SessionDurationMin
	HourOfDay
	DayOfWeek
	OwnSectionRatio
	RoleCode
	ConfessionTypeCode
	HistoricalAnomalyRate

	// Count is the vector length.
	Count
)

// Names lists feature names in vector order.
var Names = [Count]string{
	RequestCountPerHour:   "request_count_per_hour",
	UniqueEndpoints:       "unique_endpoints",
	ErrorRate:             "error_rate",
	FailedLogins:          "failed_logins",
	DocsAccessed:          "docs_accessed",
	DownloadMB:            "download_mb",
	AvgPayloadKB:          "avg_payload_kb",
	SessionDurationMin:    "session_duration_min",
	HourOfDay:             "hour_of_day",
	DayOfWeek:             "day_of_week",
	OwnSectionRatio:       "own_section_ratio",
	RoleCode:              "role_code",
	ConfessionTypeCode:    "confession_type_code",
	HistoricalAnomalyRate: "historical_anomaly_rate",
}

// NameList returns Names as a slice.
func NameList() []string {
	out := make([]string, Count)
	copy(out, Names[:])
	return out
}

// roleCodes is the fixed encoding of principal roles. Unknown roles map to 0.
var roleCodes = map[string]float64{
	"super_admin":       1,
	"qomita_rahbar":     2,
	"confession_leader": 3,
	"member":            4,
	"security_auditor":  5,
	"psychologist":      6,
	"it_admin":          7,
}

// confessionTypeCodes is the fixed encoding of confession types.
var confessionTypeCodes = map[string]float64{
	"diniy":     1,
	"fuqarolik": 2,
}

// EncodeRole returns the integer encoding of role.
func EncodeRole(role string) float64 {
	return roleCodes[strings.ToLower(role)]
}

// EncodeConfessionType returns the integer encoding of a confession type.
func EncodeConfessionType(kind string) float64 {
	return confessionTypeCodes[strings.ToLower(kind)]
}

// Vector is one principal's feature values in Names order.
type Vector struct {
	Principal string
	Values    []float64
}

// Map returns the values keyed by feature name, for audit embedding.
func (v Vector) Map() map[string]float64 {
	m := make(map[string]float64, len(v.Values))
	for i, val := range v.Values {
		if i < Count {
			m[Names[i]] = val
		}
	}
	return m
}

// IsZeroActivity reports whether the window held no requests.
func (v Vector) IsZeroActivity() bool {
	return len(v.Values) == Count && v.Values[RequestCountPerHour] == 0
}

// sanitize replaces NaN and Inf with 0 so a model never receives them.
func sanitize(values []float64) {
	for i, x := range values {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			values[i] = 0
		}
	}
}
