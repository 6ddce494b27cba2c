// Warden - Behavioral Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrHoneypotNotFound is returned for an unknown or inactive honeypot.
var ErrHoneypotNotFound = errors.New("honeypot not found")

// Honeypot is a decoy document.
type Honeypot struct {
	ID             string     `json:"id"`
	Title          string     `json:"title"`
	FilePath       string     `json:"file_path,omitempty"`
	Active         bool       `json:"active"`
	AccessCount    int        `json:"access_count"`
	LastAccessedAt *time.Time `json:"last_accessed_at,omitempty"`
	LastAccessedBy string     `json:"last_accessed_by,omitempty"`
}

// CreateHoneypot inserts a decoy.
func (db *DB) CreateHoneypot(ctx context.Context, h *Honeypot) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO honeypots (id, title, file_path, active) VALUES (?, ?, ?, ?)`,
		h.ID, h.Title, nullIfEmpty(h.FilePath), h.Active)
	if err != nil {
		return fmt.Errorf("failed to create honeypot: %w", err)
	}
	return nil
}

// Honeypot returns an active honeypot by id.
func (db *DB) Honeypot(ctx context.Context, id string) (*Honeypot, error) {
	h := &Honeypot{}
	var filePath, lastBy sql.NullString
	var lastAt sql.NullTime
	err := db.conn.QueryRowContext(ctx, `
		SELECT id, title, file_path, active, access_count, last_accessed_at, last_accessed_by
		FROM honeypots WHERE id = ? AND active = true`, id).
		Scan(&h.ID, &h.Title, &filePath, &h.Active, &h.AccessCount, &lastAt, &lastBy)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrHoneypotNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get honeypot: %w", err)
	}
	h.FilePath = filePath.String
	h.LastAccessedBy = lastBy.String
	if lastAt.Valid {
		t := lastAt.Time
		h.LastAccessedAt = &t
	}
	return h, nil
}

// RecordHoneypotAccess bumps the honeypot's counters and logs the access.
func (db *DB) RecordHoneypotAccess(ctx context.Context, honeypotID, principalID, ip string, at time.Time) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }() //nolint:errcheck // no-op after commit

	res, err := tx.ExecContext(ctx, `
		UPDATE honeypots
		SET access_count = access_count + 1, last_accessed_at = ?, last_accessed_by = ?
		WHERE id = ? AND active = true`, at.UTC(), principalID, honeypotID)
	if err != nil {
		return fmt.Errorf("failed to update honeypot: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrHoneypotNotFound, honeypotID)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO honeypot_accesses (honeypot_id, principal_id, ip_address, accessed_at)
		VALUES (?, ?, ?, ?)`, honeypotID, principalID, nullIfEmpty(ip), at.UTC()); err != nil {
		return fmt.Errorf("failed to log honeypot access: %w", err)
	}
	return tx.Commit()
}

// CountHoneypotAccesses counts decoy accesses at or after since.
func (db *DB) CountHoneypotAccesses(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM honeypot_accesses WHERE accessed_at >= ?`, since.UTC()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count honeypot accesses: %w", err)
	}
	return n, nil
}
