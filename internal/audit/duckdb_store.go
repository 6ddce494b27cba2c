// Warden - Behavioral Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package audit

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/warden/internal/database/query"
	"github.com/tomtom215/warden/internal/logging"
)

// DuckDBStore keeps audit events in the audit_events table.
type DuckDBStore struct {
	db *sql.DB
	mu sync.Mutex
}

// NewDuckDBStore creates a store over db.
func NewDuckDBStore(db *sql.DB) *DuckDBStore {
	return &DuckDBStore{db: db}
}

// CreateTable creates the audit_events table if it doesn't exist.
func (s *DuckDBStore) CreateTable(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS audit_events (
			id TEXT PRIMARY KEY,
			timestamp TIMESTAMPTZ NOT NULL,
			type TEXT NOT NULL,
			outcome TEXT NOT NULL,
			actor_id TEXT NOT NULL,
			actor_roles TEXT,
			source_ip TEXT,
			request_id TEXT,
			target TEXT,
			description TEXT NOT NULL,
			metadata TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_events(timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_type ON audit_events(type)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_actor_id ON audit_events(actor_id)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute audit schema statement: %w", err)
		}
	}
	logging.Debug().Msg("Audit events table created/verified")
	return nil
}

// Save persists an audit event.
func (s *DuckDBStore) Save(ctx context.Context, event *Event) error {
	if event == nil {
		return fmt.Errorf("event cannot be nil")
	}

	var roles *string
	if len(event.ActorRoles) > 0 {
		b, err := json.Marshal(event.ActorRoles)
		if err != nil {
			return fmt.Errorf("marshal actor roles: %w", err)
		}
		r := string(b)
		roles = &r
	}
	var metadata *string
	if len(event.Metadata) > 0 {
		m := string(event.Metadata)
		metadata = &m
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_events (
			id, timestamp, type, outcome, actor_id, actor_roles,
			source_ip, request_id, target, description, metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID, event.Timestamp.UTC(), string(event.Type), string(event.Outcome),
		event.ActorID, roles, event.SourceIP, event.RequestID, event.Target,
		event.Description, metadata,
	)
	if err != nil {
		return fmt.Errorf("failed to save audit event: %w", err)
	}
	return nil
}

// Query returns matching events, newest first.
func (s *DuckDBStore) Query(ctx context.Context, filter QueryFilter) ([]Event, error) {
	where, args := buildFilterConditions(filter)
	stmt := `SELECT id, timestamp, type, outcome, actor_id, actor_roles,
		source_ip, request_id, target, description, metadata
		FROM audit_events` + where + ` ORDER BY timestamp DESC, id`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	stmt += " LIMIT ? OFFSET ?"
	args = append(args, limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			e                                       Event
			typ, outcome                            string
			roles, sourceIP, requestID, target, raw sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.Timestamp, &typ, &outcome, &e.ActorID, &roles,
			&sourceIP, &requestID, &target, &e.Description, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		e.Type = EventType(typ)
		e.Outcome = Outcome(outcome)
		e.SourceIP = sourceIP.String
		e.RequestID = requestID.String
		e.Target = target.String
		if roles.Valid {
			if err := json.Unmarshal([]byte(roles.String), &e.ActorRoles); err != nil {
				logging.Warn().Err(err).Str("event_id", e.ID).Msg("Failed to parse audit actor roles")
			}
		}
		if raw.Valid && raw.String != "" {
			e.Metadata = json.RawMessage(raw.String)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// Count returns the number of matching events, ignoring limit and offset.
func (s *DuckDBStore) Count(ctx context.Context, filter QueryFilter) (int64, error) {
	where, args := buildFilterConditions(filter)
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_events"+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count audit events: %w", err)
	}
	return n, nil
}

// Delete removes events older than olderThan.
func (s *DuckDBStore) Delete(ctx context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM audit_events WHERE timestamp < ?", olderThan.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete audit events: %w", err)
	}
	return res.RowsAffected()
}

func buildFilterConditions(filter QueryFilter) (string, []interface{}) {
	return query.NewWhereBuilder().
		AddIn("type", query.Strings(filter.Types)...).
		AddEquals("actor_id", filter.ActorID).
		AddEquals("target", filter.Target).
		AddTimeRange("timestamp", filter.StartTime, filter.EndTime).
		BuildWithPrefix()
}
