// Warden - Behavioral Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package database

import (
	"context"
	"fmt"
	"time"
)

func schemaContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 60*time.Second)
}

func (db *DB) createTables(ctx context.Context) error {
	for _, q := range tableQueries {
		if _, err := db.conn.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("failed to execute schema query: %w", err)
		}
	}
	return nil
}

var tableQueries = []string{
	`CREATE TABLE IF NOT EXISTS principals (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL,
		role TEXT NOT NULL,
		confession_type TEXT,
		org_id TEXT,
		active BOOLEAN DEFAULT true,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`,

	`CREATE TABLE IF NOT EXISTS activity_events (
		principal_id TEXT NOT NULL,
		path TEXT NOT NULL,
		method TEXT NOT NULL,
		status_code INTEGER NOT NULL,
		document_id TEXT,
		org_id TEXT,
		payload_bytes BIGINT DEFAULT 0,
		ip_address TEXT,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_activity_principal_time ON activity_events(principal_id, created_at)`,

	`CREATE TABLE IF NOT EXISTS login_attempts (
		principal_id TEXT,
		email TEXT,
		ip_address TEXT,
		success BOOLEAN NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_login_time ON login_attempts(created_at)`,

	`CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		principal_id TEXT NOT NULL,
		active BOOLEAN DEFAULT true,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		revoked_at TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_principal ON sessions(principal_id)`,

	`CREATE TABLE IF NOT EXISTS notifications (
		id TEXT PRIMARY KEY,
		recipient_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		title TEXT NOT NULL,
		message TEXT NOT NULL,
		read BOOLEAN DEFAULT false,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_notifications_recipient ON notifications(recipient_id, created_at)`,

	`CREATE TABLE IF NOT EXISTS honeypots (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		file_path TEXT,
		active BOOLEAN DEFAULT true,
		access_count INTEGER DEFAULT 0,
		last_accessed_at TIMESTAMP,
		last_accessed_by TEXT
	)`,

	`CREATE TABLE IF NOT EXISTS honeypot_accesses (
		honeypot_id TEXT NOT NULL,
		principal_id TEXT NOT NULL,
		ip_address TEXT,
		accessed_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_honeypot_access_time ON honeypot_accesses(accessed_at)`,
}
