// Warden - Behavioral Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package logging

import (
	"context"
)

// SecurityEvent is an audit-worthy action taken against a principal.
type SecurityEvent struct {
	// Event names the action, e.g. "sessions_revoked" or "honeypot_access".
	Event     string
	Principal string
	Severity  string
	Score     float64
	Count     int
	Reason    string
}

// LogSecurityEvent writes e at warn level with a fixed "security" marker so
// the entries can be filtered out of the main stream.
func LogSecurityEvent(ctx context.Context, e SecurityEvent) {
	event := Ctx(ctx).Warn().
		Bool("security", true).
		Str("event", e.Event).
		Str("principal", e.Principal)
	if e.Severity != "" {
		event = event.Str("severity", e.Severity)
	}
	if e.Score != 0 {
		event = event.Float64("score", e.Score)
	}
	if e.Count != 0 {
		event = event.Int("count", e.Count)
	}
	if e.Reason != "" {
		event = event.Str("reason", e.Reason)
	}
	event.Msg("security event")
}
