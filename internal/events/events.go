// Warden - Behavioral Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package events

import (
	"errors"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/warden/internal/anomaly"
)

// Topics.
const (
	TopicAnomalyDetected = "anomaly.detected"
	TopicAlertTriggered  = "alert.triggered"
)

// Metadata keys set on every message.
const (
	MetaEventType = "event_type"
	MetaPrincipal = "principal_id"
	MetaSeverity  = "severity"
)

// ErrEmptyPayload is returned when decoding a message with no body.
var ErrEmptyPayload = errors.New("empty event payload")

// AnomalyEvent announces a newly recorded anomaly.
type AnomalyEvent struct {
	EventID        string                 `json:"event_id"`
	AnomalyID      int64                  `json:"anomaly_id"`
	PrincipalID    string                 `json:"principal_id"`
	PrincipalEmail string                 `json:"principal_email,omitempty"`
	Source         string                 `json:"source"`
	Title          string                 `json:"title"`
	Score          float64                `json:"score"`
	Threshold      float64                `json:"threshold"`
	Normalized     float64                `json:"normalized_score"`
	Severity       string                 `json:"severity"`
	TopFeatures    []anomaly.Contribution `json:"top_features,omitempty"`
	DetectedAt     time.Time              `json:"detected_at"`
}

// AlertEvent announces that an alert rule fired.
type AlertEvent struct {
	EventID       string    `json:"event_id"`
	RuleID        int64     `json:"rule_id"`
	RuleName      string    `json:"rule_name"`
	Condition     string    `json:"condition"`
	Value         float64   `json:"value"`
	Threshold     float64   `json:"threshold"`
	WindowMinutes int       `json:"window_minutes"`
	Channel       string    `json:"channel"`
	TriggeredAt   time.Time `json:"triggered_at"`
}

// NewAnomalyMessage encodes e, assigning an EventID when empty.
func NewAnomalyMessage(e *AnomalyEvent) (*message.Message, error) {
	if e.EventID == "" {
		e.EventID = uuid.New().String()
	}
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal anomaly event: %w", err)
	}
	msg := message.NewMessage(e.EventID, data)
	msg.Metadata.Set(MetaEventType, TopicAnomalyDetected)
	msg.Metadata.Set(MetaPrincipal, e.PrincipalID)
	msg.Metadata.Set(MetaSeverity, e.Severity)
	return msg, nil
}

// NewAlertMessage encodes e, assigning an EventID when empty.
func NewAlertMessage(e *AlertEvent) (*message.Message, error) {
	if e.EventID == "" {
		e.EventID = uuid.New().String()
	}
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal alert event: %w", err)
	}
	msg := message.NewMessage(e.EventID, data)
	msg.Metadata.Set(MetaEventType, TopicAlertTriggered)
	return msg, nil
}

// DecodeAnomaly parses an anomaly.detected payload.
func DecodeAnomaly(msg *message.Message) (AnomalyEvent, error) {
	var e AnomalyEvent
	if len(msg.Payload) == 0 {
		return e, ErrEmptyPayload
	}
	if err := json.Unmarshal(msg.Payload, &e); err != nil {
		return e, fmt.Errorf("unmarshal anomaly event %s: %w", msg.UUID, err)
	}
	return e, nil
}

// DecodeAlert parses an alert.triggered payload.
func DecodeAlert(msg *message.Message) (AlertEvent, error) {
	var e AlertEvent
	if len(msg.Payload) == 0 {
		return e, ErrEmptyPayload
	}
	if err := json.Unmarshal(msg.Payload, &e); err != nil {
		return e, fmt.Errorf("unmarshal alert event %s: %w", msg.UUID, err)
	}
	return e, nil
}
