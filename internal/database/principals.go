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
	"strings"

	"github.com/tomtom215/warden/internal/features"
)

// ErrPrincipalNotFound is returned for an unknown principal id.
var ErrPrincipalNotFound = errors.New("principal not found")

const principalColumns = `id, email, role, COALESCE(confession_type, ''), COALESCE(org_id, ''), active`

func scanPrincipal(row interface{ Scan(...any) error }) (features.Principal, error) {
	var p features.Principal
	err := row.Scan(&p.ID, &p.Email, &p.Role, &p.ConfessionType, &p.OrgID, &p.Active)
	return p, err
}

// UpsertPrincipal inserts or replaces a principal.
func (db *DB) UpsertPrincipal(ctx context.Context, p *features.Principal) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO principals (id, email, role, confession_type, org_id, active)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			email = EXCLUDED.email,
			role = EXCLUDED.role,
			confession_type = EXCLUDED.confession_type,
			org_id = EXCLUDED.org_id,
			active = EXCLUDED.active`,
		p.ID, p.Email, p.Role, nullIfEmpty(p.ConfessionType), nullIfEmpty(p.OrgID), p.Active)
	if err != nil {
		return fmt.Errorf("failed to upsert principal: %w", err)
	}
	return nil
}

// Principal looks up a principal by id.
func (db *DB) Principal(ctx context.Context, id string) (*features.Principal, error) {
	p, err := scanPrincipal(db.conn.QueryRowContext(ctx,
		`SELECT `+principalColumns+` FROM principals WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrPrincipalNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get principal: %w", err)
	}
	return &p, nil
}

// ActivePrincipals lists every active principal ordered by id.
func (db *DB) ActivePrincipals(ctx context.Context) ([]features.Principal, error) {
	return db.queryPrincipals(ctx, `SELECT `+principalColumns+` FROM principals WHERE active = true ORDER BY id`)
}

// PrincipalsWithRoles lists active principals holding any of roles.
func (db *DB) PrincipalsWithRoles(ctx context.Context, roles []string) ([]features.Principal, error) {
	if len(roles) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(roles)), ", ")
	args := make([]any, len(roles))
	for i, r := range roles {
		args[i] = r
	}
	return db.queryPrincipals(ctx,
		`SELECT `+principalColumns+` FROM principals WHERE active = true AND role IN (`+placeholders+`) ORDER BY id`,
		args...)
}

func (db *DB) queryPrincipals(ctx context.Context, query string, args ...any) ([]features.Principal, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query principals: %w", err)
	}
	defer rows.Close()

	var out []features.Principal
	for rows.Next() {
		p, err := scanPrincipal(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan principal: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
