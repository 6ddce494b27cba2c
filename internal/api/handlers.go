// Warden - Behavioral Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/tomtom215/warden/internal/audit"
	"github.com/tomtom215/warden/internal/database"
	"github.com/tomtom215/warden/internal/detection"
	"github.com/tomtom215/warden/internal/honeypot"
	"github.com/tomtom215/warden/internal/modelstore"
	"github.com/tomtom215/warden/internal/scan"
	"github.com/tomtom215/warden/internal/training"
)

// AnomalyStore reads and reviews anomaly records.
type AnomalyStore interface {
	GetAnomaly(ctx context.Context, id int64) (*detection.AnomalyRecord, error)
	ListAnomalies(ctx context.Context, filter detection.AnomalyFilter) ([]detection.AnomalyRecord, error)
	CountAnomalies(ctx context.Context, filter detection.AnomalyFilter) (int, error)
	ReviewAnomaly(ctx context.Context, id int64, review detection.Review) (*detection.AnomalyRecord, error)
	Stats(ctx context.Context, since time.Time) (*detection.SeverityCounts, error)
}

// RuleStore manages alert rules.
type RuleStore interface {
	CreateRule(ctx context.Context, rule *detection.AlertRule) error
	GetRule(ctx context.Context, id int64) (*detection.AlertRule, error)
	ListRules(ctx context.Context, activeOnly bool) ([]detection.AlertRule, error)
	UpdateRule(ctx context.Context, rule *detection.AlertRule) error
	DeleteRule(ctx context.Context, id int64) error
}

// ScanControl enqueues and reports scan cycles.
type ScanControl interface {
	Trigger() bool
	State() scan.State
	LastResult() *scan.CycleResult
}

// TrainingControl enqueues and reports training cycles.
type TrainingControl interface {
	Trigger() bool
	LastResult() *training.Result
}

// ModelCatalog reports the active model and stored versions.
type ModelCatalog interface {
	Active(ctx context.Context, kind string) (*modelstore.ActiveConfig, error)
	List(ctx context.Context, kind string) ([]modelstore.Meta, error)
}

// HoneypotRecorder records decoy access.
type HoneypotRecorder interface {
	RecordAccess(ctx context.Context, honeypotID, principalID, ip string) (*honeypot.Access, error)
}

// NotificationStore reads a principal's in-app notifications.
type NotificationStore interface {
	ListNotifications(ctx context.Context, recipientID string, unreadOnly bool, limit int) ([]database.Notification, error)
	MarkNotificationRead(ctx context.Context, recipientID, id string) error
}

// AuditLog records operator actions and serves the trail.
type AuditLog interface {
	Log(event *audit.Event)
	Query(ctx context.Context, filter audit.QueryFilter) ([]audit.Event, error)
	Count(ctx context.Context, filter audit.QueryFilter) (int64, error)
}

// Pinger reports database reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators of the handlers. Nil control dependencies make
// the matching endpoints return 503.
type Deps struct {
	Anomalies     AnomalyStore
	Rules         RuleStore
	Scan          ScanControl
	Training      TrainingControl
	Models        ModelCatalog
	Honeypots     HoneypotRecorder
	Notifications NotificationStore
	Audit         AuditLog
	DB            Pinger
}

// Handler serves the admin API.
type Handler struct {
	deps      Deps
	modelKind string
	startTime time.Time
}

// NewHandler returns a handler. modelKind selects the model reported by
// /model and /stats.
func NewHandler(deps Deps, modelKind string) *Handler {
	if modelKind == "" {
		modelKind = "isolation_forest"
	}
	return &Handler{deps: deps, modelKind: modelKind, startTime: time.Now()}
}

// HealthStatus is the /health payload.
type HealthStatus struct {
	Status            string  `json:"status"`
	DatabaseConnected bool    `json:"database_connected"`
	ScanState         string  `json:"scan_state,omitempty"`
	Uptime            float64 `json:"uptime_seconds"`
}

// Health reports liveness and database reachability.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	dbConnected := h.deps.DB != nil && h.deps.DB.Ping(r.Context()) == nil

	status := HealthStatus{
		Status:            "healthy",
		DatabaseConnected: dbConnected,
		Uptime:            time.Since(h.startTime).Seconds(),
	}
	if !dbConnected {
		status.Status = "degraded"
	}
	if h.deps.Scan != nil {
		status.ScanState = string(h.deps.Scan.State())
	}

	code := http.StatusOK
	if !dbConnected {
		code = http.StatusServiceUnavailable
	}
	respondData(w, code, status)
}

// audit records e when an audit log is configured.
func (h *Handler) audit(e *audit.Event) {
	if h.deps.Audit != nil {
		h.deps.Audit.Log(e)
	}
}
