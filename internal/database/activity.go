// Warden - Behavioral Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tomtom215/warden/internal/features"
	"github.com/tomtom215/warden/internal/metrics"
)

// ActivityRecord is one logged request, as written by the host application.
type ActivityRecord struct {
	PrincipalID  string
	Path         string
	Method       string
	StatusCode   int
	DocumentID   string
	OrgID        string
	PayloadBytes int64
	IPAddress    string
	CreatedAt    time.Time
}

// RecordActivity inserts an activity row.
func (db *DB) RecordActivity(ctx context.Context, r *ActivityRecord) error {
	start := time.Now()
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO activity_events
			(principal_id, path, method, status_code, document_id, org_id, payload_bytes, ip_address, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.PrincipalID, r.Path, r.Method, r.StatusCode,
		nullIfEmpty(r.DocumentID), nullIfEmpty(r.OrgID), r.PayloadBytes, nullIfEmpty(r.IPAddress), r.CreatedAt.UTC())
	metrics.RecordDBQuery("INSERT", "activity_events", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("failed to insert activity: %w", err)
	}
	return nil
}

// Activity returns a principal's events at or after since, oldest first.
func (db *DB) Activity(ctx context.Context, principalID string, since time.Time) ([]features.Event, error) {
	start := time.Now()
	rows, err := db.conn.QueryContext(ctx, `
		SELECT path, method, status_code,
			COALESCE(document_id, ''), COALESCE(org_id, ''),
			COALESCE(payload_bytes, 0), created_at
		FROM activity_events
		WHERE principal_id = ? AND created_at >= ?
		ORDER BY created_at`, principalID, since.UTC())
	metrics.RecordDBQuery("SELECT", "activity_events", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to query activity: %w", err)
	}
	defer rows.Close()

	var events []features.Event
	for rows.Next() {
		var e features.Event
		if err := rows.Scan(&e.Path, &e.Method, &e.StatusCode, &e.DocumentID, &e.OrgID, &e.PayloadBytes, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// RecordLoginAttempt inserts a login attempt.
func (db *DB) RecordLoginAttempt(ctx context.Context, principalID, email, ip string, success bool, at time.Time) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO login_attempts (principal_id, email, ip_address, success, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		nullIfEmpty(principalID), email, nullIfEmpty(ip), success, at.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert login attempt: %w", err)
	}
	return nil
}

// FailedLogins counts a principal's failed logins at or after since.
func (db *DB) FailedLogins(ctx context.Context, principalID string, since time.Time) (int, error) {
	var n int
	err := db.conn.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM login_attempts
		WHERE principal_id = ? AND success = false AND created_at >= ?`,
		principalID, since.UTC()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count failed logins: %w", err)
	}
	return n, nil
}

// CountFailedLogins counts failed logins by anyone at or after since.
func (db *DB) CountFailedLogins(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM login_attempts WHERE success = false AND created_at >= ?`,
		since.UTC()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count failed logins: %w", err)
	}
	return n, nil
}

// ErrorRatePercent returns the share of requests at or after since that
// returned status >= 400, as a percentage. No requests yields 0.
func (db *DB) ErrorRatePercent(ctx context.Context, since time.Time) (float64, error) {
	var total, errs sql.NullInt64
	err := db.conn.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE status_code >= 400)
		FROM activity_events WHERE created_at >= ?`, since.UTC()).Scan(&total, &errs)
	if err != nil {
		return 0, fmt.Errorf("failed to compute error rate: %w", err)
	}
	if total.Int64 == 0 {
		return 0, nil
	}
	return float64(errs.Int64) / float64(total.Int64) * 100, nil
}

// PurgeActivityBefore deletes activity rows older than cutoff and returns the
// number removed.
func (db *DB) PurgeActivityBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	start := time.Now()
	res, err := db.conn.ExecContext(ctx, `DELETE FROM activity_events WHERE created_at < ?`, cutoff.UTC())
	metrics.RecordDBQuery("DELETE", "activity_events", time.Since(start), err)
	if err != nil {
		return 0, fmt.Errorf("failed to purge activity: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read purge count: %w", err)
	}
	metrics.RecordRetentionPurge("activity_events", n)
	return n, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
