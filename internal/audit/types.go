// Warden - Behavioral Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package audit

import (
	"context"
	"time"

	"github.com/goccy/go-json"
)

// EventType categorizes audit events.
type EventType string

const (
	// Detection review
	EventTypeAnomalyReviewed EventType = "anomaly.reviewed"

	// Alert rule management
	EventTypeRuleCreated EventType = "rule.created"
	EventTypeRuleUpdated EventType = "rule.updated"
	EventTypeRuleDeleted EventType = "rule.deleted"

	// Pipeline control
	EventTypeScanTriggered     EventType = "scan.triggered"
	EventTypeTrainingTriggered EventType = "training.triggered"

	// Decoys
	EventTypeHoneypotReported EventType = "honeypot.reported"

	// Authorization
	EventTypeAuthzDenied EventType = "authz.denied"
)

// Outcome indicates whether an action succeeded or failed.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// Event is one operator action.
type Event struct {
	ID          string          `json:"id"`
	Timestamp   time.Time       `json:"timestamp"`
	Type        EventType       `json:"type"`
	Outcome     Outcome         `json:"outcome"`
	ActorID     string          `json:"actor_id"`
	ActorRoles  []string        `json:"actor_roles,omitempty"`
	SourceIP    string          `json:"source_ip,omitempty"`
	RequestID   string          `json:"request_id,omitempty"`
	Target      string          `json:"target,omitempty"`
	Description string          `json:"description"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
}

// QueryFilter selects events. Zero fields do not filter.
type QueryFilter struct {
	Types     []EventType
	ActorID   string
	Target    string
	StartTime *time.Time
	EndTime   *time.Time
	Limit     int
	Offset    int
}

// Store persists audit events.
type Store interface {
	Save(ctx context.Context, event *Event) error
	Query(ctx context.Context, filter QueryFilter) ([]Event, error)
	Count(ctx context.Context, filter QueryFilter) (int64, error)
	Delete(ctx context.Context, olderThan time.Time) (int64, error)
}
