// Warden - Behavioral Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

// Package metrics declares the Prometheus collectors exported on /metrics.
package metrics

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Database

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "warden_duckdb_query_duration_seconds",
			Help:    "Duration of DuckDB queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warden_duckdb_query_errors_total",
			Help: "Total number of DuckDB query errors",
		},
		[]string{"operation", "table", "error_type"},
	)

	// Scan

	ScanCyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warden_scan_cycles_total",
			Help: "Scan cycles by outcome (completed, skipped, failed)",
		},
		[]string{"outcome"},
	)

	ScanDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "warden_scan_duration_seconds",
			Help:    "Wall-clock duration of a scan cycle",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
		},
	)

	ScanPrincipalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warden_scan_principals_total",
			Help: "Principals visited by the scanner by result",
		},
		[]string{"result"}, // idle, normal, anomaly, suppressed, error
	)

	AnomaliesDetectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warden_anomalies_detected_total",
			Help: "Anomaly records created by source and severity",
		},
		[]string{"source", "severity"},
	)

	// Training

	TrainingRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warden_training_runs_total",
			Help: "Training cycles by outcome (trained, skipped, failed)",
		},
		[]string{"outcome"},
	)

	TrainingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "warden_training_duration_seconds",
			Help:    "Duration of a training cycle",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
		},
	)

	ModelTrainingSamples = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "warden_model_training_samples",
			Help: "Sample count of the active model",
		},
	)

	ModelVersion = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "warden_model_version",
			Help: "Version number of the active model",
		},
	)

	ModelThreshold = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "warden_model_threshold",
			Help: "Decision threshold of the active model",
		},
	)

	// Response

	DispatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warden_dispatch_total",
			Help: "Response dispatches by band and status",
		},
		[]string{"band", "status"},
	)

	SessionsRevokedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "warden_sessions_revoked_total",
			Help: "Sessions revoked by critical responses",
		},
	)

	NotificationsSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warden_notifications_sent_total",
			Help: "Notification deliveries by channel and status",
		},
		[]string{"channel", "status"},
	)

	// Alerting

	AlertRulesTriggeredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warden_alert_rules_triggered_total",
			Help: "Alert rule triggers by condition",
		},
		[]string{"condition"},
	)

	AlertRulesRateLimitedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warden_alert_rules_rate_limited_total",
			Help: "Alert rule triggers suppressed by the per-rule rate limit",
		},
		[]string{"condition"},
	)

	// Events

	EventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warden_events_published_total",
			Help: "Events published on the bus by topic",
		},
		[]string{"topic"},
	)

	EventsConsumedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warden_events_consumed_total",
			Help: "Events consumed from the bus by topic and status",
		},
		[]string{"topic", "status"},
	)

	// Circuit breaker

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "warden_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warden_circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	// HTTP and websocket

	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warden_api_requests_total",
			Help: "Admin API requests by method, route and status",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "warden_api_request_duration_seconds",
			Help:    "Admin API request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	WebSocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "warden_websocket_connections",
			Help: "Connected live feed clients",
		},
	)

	AuthzDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warden_authz_decisions_total",
			Help: "Authorization decisions by result",
		},
		[]string{"result"},
	)

	// Retention

	RetentionPurgedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warden_retention_purged_rows_total",
			Help: "Rows deleted by the retention job",
		},
		[]string{"table"},
	)
)

// RecordDBQuery observes a DuckDB query.
func RecordDBQuery(operation, table string, duration time.Duration, err error) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
	if err != nil {
		DBQueryErrors.WithLabelValues(operation, table, classifyError(err)).Inc()
	}
}

// classifyError keeps the error_type label bounded.
func classifyError(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "query"
	}
}

// RecordScanCycle records a finished scan cycle.
func RecordScanCycle(outcome string, duration time.Duration) {
	ScanCyclesTotal.WithLabelValues(outcome).Inc()
	ScanDuration.Observe(duration.Seconds())
}

// RecordScanPrincipal records the result for one principal within a scan.
func RecordScanPrincipal(result string) {
	ScanPrincipalsTotal.WithLabelValues(result).Inc()
}

// RecordAnomaly counts a created anomaly record.
func RecordAnomaly(source, severity string) {
	AnomaliesDetectedTotal.WithLabelValues(source, severity).Inc()
}

// RecordTrainingRun records a training cycle.
func RecordTrainingRun(outcome string, duration time.Duration) {
	TrainingRunsTotal.WithLabelValues(outcome).Inc()
	TrainingDuration.Observe(duration.Seconds())
}

// SetActiveModel publishes the active model's metadata.
func SetActiveModel(version, samples int, threshold float64) {
	ModelVersion.Set(float64(version))
	ModelTrainingSamples.Set(float64(samples))
	ModelThreshold.Set(threshold)
}

// RecordDispatch records one response dispatch.
func RecordDispatch(band string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	DispatchTotal.WithLabelValues(band, status).Inc()
}

// RecordSessionsRevoked adds n revoked sessions.
func RecordSessionsRevoked(n int) {
	if n > 0 {
		SessionsRevokedTotal.Add(float64(n))
	}
}

// RecordNotification records a delivery attempt on a channel.
func RecordNotification(channel string, err error) {
	status := "sent"
	if err != nil {
		status = "failed"
	}
	NotificationsSentTotal.WithLabelValues(channel, status).Inc()
}

// RecordAlertTrigger records a rule evaluation that crossed its threshold.
func RecordAlertTrigger(condition string, rateLimited bool) {
	if rateLimited {
		AlertRulesRateLimitedTotal.WithLabelValues(condition).Inc()
		return
	}
	AlertRulesTriggeredTotal.WithLabelValues(condition).Inc()
}

// RecordEventPublished counts a published event.
func RecordEventPublished(topic string) {
	EventsPublishedTotal.WithLabelValues(topic).Inc()
}

// RecordEventConsumed counts a consumed event.
func RecordEventConsumed(topic string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	EventsConsumedTotal.WithLabelValues(topic, status).Inc()
}

// RecordAPIRequest observes an admin API request.
func RecordAPIRequest(method, route string, status int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordAuthzDecision counts an authorization decision.
func RecordAuthzDecision(allowed bool) {
	if allowed {
		AuthzDecisionsTotal.WithLabelValues("allow").Inc()
		return
	}
	AuthzDecisionsTotal.WithLabelValues("deny").Inc()
}

// RecordRetentionPurge counts rows removed from table.
func RecordRetentionPurge(table string, rows int64) {
	if rows > 0 {
		RetentionPurgedTotal.WithLabelValues(table).Add(float64(rows))
	}
}
