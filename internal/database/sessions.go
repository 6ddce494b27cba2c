// Warden - Behavioral Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/warden/internal/metrics"
)

// CreateSession records an active session for principalID.
func (db *DB) CreateSession(ctx context.Context, id, principalID string) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO sessions (id, principal_id, active, created_at) VALUES (?, ?, true, ?)`,
		id, principalID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// RevokeAllActiveSessions deactivates every active session of principalID and
// returns how many were revoked. Calling it again revokes nothing.
func (db *DB) RevokeAllActiveSessions(ctx context.Context, principalID string) (int, error) {
	start := time.Now()
	res, err := db.conn.ExecContext(ctx, `
		UPDATE sessions SET active = false, revoked_at = ?
		WHERE principal_id = ? AND active = true`,
		time.Now().UTC(), principalID)
	metrics.RecordDBQuery("UPDATE", "sessions", time.Since(start), err)
	if err != nil {
		return 0, fmt.Errorf("failed to revoke sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read revoked count: %w", err)
	}
	return int(n), nil
}

// ActiveSessionCount returns the number of active sessions of principalID.
func (db *DB) ActiveSessionCount(ctx context.Context, principalID string) (int, error) {
	var n int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sessions WHERE principal_id = ? AND active = true`, principalID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count sessions: %w", err)
	}
	return n, nil
}
