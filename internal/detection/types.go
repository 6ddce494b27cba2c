// Warden - Behavioral Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package detection

import (
	"errors"
	"time"

	"github.com/tomtom215/warden/internal/anomaly"
)

var (
	// ErrAnomalyNotFound is returned for an unknown anomaly record id.
	ErrAnomalyNotFound = errors.New("anomaly record not found")

	// ErrRuleNotFound is returned for an unknown alert rule id.
	ErrRuleNotFound = errors.New("alert rule not found")
)

// Severity is the tier of an anomaly record.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Severities lists every tier from least to most severe.
var Severities = []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}

// Status is the review state of an anomaly record.
type Status string

const (
	StatusUnreviewed    Status = "unreviewed"
	StatusFalsePositive Status = "false_positive"
	StatusResolved      Status = "resolved"
)

// Source identifies what produced an anomaly record.
type Source string

const (
	SourceScan     Source = "scan"
	SourceHoneypot Source = "honeypot"
)

// AnomalyRecord is a persisted finding about one principal.
type AnomalyRecord struct {
	ID             int64                  `json:"id"`
	PrincipalID    string                 `json:"principal_id"`
	PrincipalEmail string                 `json:"principal_email,omitempty"`
	Source         Source                 `json:"source"`
	Title          string                 `json:"title"`
	Description    string                 `json:"description"`
	Score          float64                `json:"score"`
	Threshold      float64                `json:"threshold"`
	Severity       Severity               `json:"severity"`
	Features       map[string]float64     `json:"features,omitempty"`
	TopFeatures    []anomaly.Contribution `json:"top_features,omitempty"`
	Status         Status                 `json:"status"`
	ReviewedBy     string                 `json:"reviewed_by,omitempty"`
	ReviewedAt     *time.Time             `json:"reviewed_at,omitempty"`
	ResolvedAt     *time.Time             `json:"resolved_at,omitempty"`
	DetectedAt     time.Time              `json:"detected_at"`
}

// AnomalyFilter narrows ListAnomalies and CountAnomalies.
type AnomalyFilter struct {
	PrincipalID    string
	Severities     []Severity
	Statuses       []Status
	Source         Source
	StartDate      *time.Time
	EndDate        *time.Time
	Limit          int
	Offset         int
	OrderBy        string
	OrderDirection string
}

// Review is an administrator's verdict on an anomaly record.
type Review struct {
	Reviewer      string
	FalsePositive bool
	Resolve       bool
}

// Condition is the metric an alert rule watches.
type Condition string

const (
	ConditionAnomalyCount   Condition = "anomaly_count"
	ConditionFailedLogins   Condition = "failed_logins"
	ConditionErrorRate      Condition = "error_rate"
	ConditionHoneypotAccess Condition = "honeypot_access"
)

// Valid reports whether c is a known condition.
func (c Condition) Valid() bool {
	switch c {
	case ConditionAnomalyCount, ConditionFailedLogins, ConditionErrorRate, ConditionHoneypotAccess:
		return true
	}
	return false
}

// Channel is where an alert rule delivers.
type Channel string

const (
	ChannelNotification Channel = "notification"
	ChannelEmail        Channel = "email"
	ChannelTelegram     Channel = "telegram"
	ChannelWebhook      Channel = "webhook"
	ChannelAll          Channel = "all"
)

// Expand returns the concrete channels c stands for.
func (c Channel) Expand() []Channel {
	if c == ChannelAll {
		return []Channel{ChannelNotification, ChannelEmail, ChannelTelegram, ChannelWebhook}
	}
	return []Channel{c}
}

// AlertRule is an administrator-defined threshold over a windowed metric.
type AlertRule struct {
	ID              int64      `json:"id"`
	Name            string     `json:"name"`
	Condition       Condition  `json:"condition"`
	Threshold       float64    `json:"threshold"`
	WindowMinutes   int        `json:"window_minutes"`
	Channel         Channel    `json:"channel"`
	Active          bool       `json:"active"`
	LastTriggeredAt *time.Time `json:"last_triggered_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Window returns the rule's evaluation window.
func (r *AlertRule) Window() time.Duration {
	return time.Duration(r.WindowMinutes) * time.Minute
}
