// Warden - Behavioral Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package detection

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/warden/internal/database/query"
	"github.com/tomtom215/warden/internal/logging"
	"github.com/tomtom215/warden/internal/metrics"
)

// DuckDBStore persists anomaly records and alert rules.
type DuckDBStore struct {
	db *sql.DB

	// insertMu serializes conditional writes (dedup insert, rule claim).
	insertMu sync.Mutex
}

// NewDuckDBStore creates a new DuckDB-backed store.
func NewDuckDBStore(db *sql.DB) *DuckDBStore {
	return &DuckDBStore{db: db}
}

const anomalySelectColumns = `id, principal_id, COALESCE(principal_email, ''), source, title, description,
	score, threshold, severity, CAST(features AS VARCHAR), CAST(top_features AS VARCHAR), status,
	COALESCE(reviewed_by, ''), reviewed_at, resolved_at, detected_at`

// InitSchema creates the anomaly and alert rule tables if they don't exist.
func (s *DuckDBStore) InitSchema(ctx context.Context) error {
	queries := []string{
		`CREATE SEQUENCE IF NOT EXISTS anomaly_records_id_seq`,
		`CREATE SEQUENCE IF NOT EXISTS alert_rules_id_seq`,

		`CREATE TABLE IF NOT EXISTS anomaly_records (
			id BIGINT PRIMARY KEY DEFAULT nextval('anomaly_records_id_seq'),
			principal_id TEXT NOT NULL,
			principal_email TEXT,
			source TEXT NOT NULL,
			title TEXT NOT NULL,
			description TEXT NOT NULL,
			score DOUBLE NOT NULL,
			threshold DOUBLE NOT NULL,
			severity TEXT NOT NULL,
			features JSON,
			top_features JSON,
			status TEXT NOT NULL DEFAULT 'unreviewed',
			reviewed_by TEXT,
			reviewed_at TIMESTAMP,
			resolved_at TIMESTAMP,
			detected_at TIMESTAMP NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS alert_rules (
			id BIGINT PRIMARY KEY DEFAULT nextval('alert_rules_id_seq'),
			name TEXT NOT NULL,
			condition TEXT NOT NULL,
			threshold DOUBLE NOT NULL,
			window_minutes INTEGER NOT NULL,
			channel TEXT NOT NULL,
			active BOOLEAN DEFAULT true,
			last_triggered_at TIMESTAMP,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE INDEX IF NOT EXISTS idx_anomaly_principal_time ON anomaly_records(principal_id, detected_at)`,
		`CREATE INDEX IF NOT EXISTS idx_anomaly_status ON anomaly_records(status)`,
		`CREATE INDEX IF NOT EXISTS idx_anomaly_detected_at ON anomaly_records(detected_at DESC)`,
	}

	for _, stmt := range queries {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute schema query: %w", err)
		}
	}

	if _, err := s.db.ExecContext(ctx, "CHECKPOINT"); err != nil {
		logging.Warn().Err(err).Msg("Failed to checkpoint after detection schema initialization")
	}
	return nil
}

// CreateAnomalyIfAbsent inserts rec unless the principal already has an
// unreviewed record detected at or after since. Resolved and false-positive
// records do not suppress a new detection. It reports whether a row was
// inserted and, if so, sets rec.ID.
func (s *DuckDBStore) CreateAnomalyIfAbsent(ctx context.Context, rec *AnomalyRecord, since time.Time) (bool, error) {
	featuresJSON, topJSON, err := encodeAnomalyJSON(rec)
	if err != nil {
		return false, err
	}
	prepareRecord(rec)

	s.insertMu.Lock()
	defer s.insertMu.Unlock()

	start := time.Now()
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO anomaly_records
			(principal_id, principal_email, source, title, description, score, threshold,
			 severity, features, top_features, status, detected_at)
		SELECT ?::TEXT, ?::TEXT, ?::TEXT, ?::TEXT, ?::TEXT, ?::DOUBLE, ?::DOUBLE,
			?::TEXT, ?::JSON, ?::JSON, ?::TEXT, ?::TIMESTAMP
		WHERE NOT EXISTS (
			SELECT 1 FROM anomaly_records
			WHERE principal_id = ? AND detected_at >= ? AND status = ?
		)
		RETURNING id`,
		rec.PrincipalID, rec.PrincipalEmail, string(rec.Source), rec.Title, rec.Description,
		rec.Score, rec.Threshold, string(rec.Severity), featuresJSON, topJSON,
		string(rec.Status), rec.DetectedAt,
		rec.PrincipalID, since.UTC(), string(StatusUnreviewed),
	).Scan(&rec.ID)
	metrics.RecordDBQuery("INSERT", "anomaly_records", time.Since(start), err)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to insert anomaly record: %w", err)
	}
	return true, nil
}

// CreateAnomaly inserts rec unconditionally and sets rec.ID.
func (s *DuckDBStore) CreateAnomaly(ctx context.Context, rec *AnomalyRecord) error {
	featuresJSON, topJSON, err := encodeAnomalyJSON(rec)
	if err != nil {
		return err
	}
	prepareRecord(rec)

	start := time.Now()
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO anomaly_records
			(principal_id, principal_email, source, title, description, score, threshold,
			 severity, features, top_features, status, detected_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?::JSON, ?::JSON, ?, ?)
		RETURNING id`,
		rec.PrincipalID, rec.PrincipalEmail, string(rec.Source), rec.Title, rec.Description,
		rec.Score, rec.Threshold, string(rec.Severity), featuresJSON, topJSON,
		string(rec.Status), rec.DetectedAt,
	).Scan(&rec.ID)
	metrics.RecordDBQuery("INSERT", "anomaly_records", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("failed to insert anomaly record: %w", err)
	}
	return nil
}

func prepareRecord(rec *AnomalyRecord) {
	if rec.Status == "" {
		rec.Status = StatusUnreviewed
	}
	if rec.DetectedAt.IsZero() {
		rec.DetectedAt = time.Now()
	}
	rec.DetectedAt = rec.DetectedAt.UTC()
}

// encodeAnomalyJSON renders the JSON columns as strings; the driver binds
// []byte as BLOB, which DuckDB will not cast to JSON.
func encodeAnomalyJSON(rec *AnomalyRecord) (featuresJSON, topJSON string, err error) {
	f, err := json.Marshal(rec.Features)
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal features: %w", err)
	}
	t, err := json.Marshal(rec.TopFeatures)
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal top features: %w", err)
	}
	return string(f), string(t), nil
}

func scanAnomalyRow(scanner interface {
	Scan(dest ...interface{}) error
}, rec *AnomalyRecord) error {
	var featuresJSON, topJSON sql.NullString
	var reviewedAt, resolvedAt sql.NullTime

	if err := scanner.Scan(
		&rec.ID,
		&rec.PrincipalID,
		&rec.PrincipalEmail,
		&rec.Source,
		&rec.Title,
		&rec.Description,
		&rec.Score,
		&rec.Threshold,
		&rec.Severity,
		&featuresJSON,
		&topJSON,
		&rec.Status,
		&rec.ReviewedBy,
		&reviewedAt,
		&resolvedAt,
		&rec.DetectedAt,
	); err != nil {
		return err
	}

	if reviewedAt.Valid {
		t := reviewedAt.Time
		rec.ReviewedAt = &t
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		rec.ResolvedAt = &t
	}
	if featuresJSON.Valid && featuresJSON.String != "" {
		if err := json.Unmarshal([]byte(featuresJSON.String), &rec.Features); err != nil {
			return fmt.Errorf("failed to decode features: %w", err)
		}
	}
	if topJSON.Valid && topJSON.String != "" {
		if err := json.Unmarshal([]byte(topJSON.String), &rec.TopFeatures); err != nil {
			return fmt.Errorf("failed to decode top features: %w", err)
		}
	}
	return nil
}

// GetAnomaly retrieves a record by ID.
func (s *DuckDBStore) GetAnomaly(ctx context.Context, id int64) (*AnomalyRecord, error) {
	rec := &AnomalyRecord{}
	err := scanAnomalyRow(s.db.QueryRowContext(ctx,
		`SELECT `+anomalySelectColumns+` FROM anomaly_records WHERE id = ?`, id), rec)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrAnomalyNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get anomaly record: %w", err)
	}
	return rec, nil
}

// ListAnomalies retrieves records with optional filtering.
// ORDER BY columns are whitelisted via validAnomalyOrderColumns; everything
// else is parameterized.
func (s *DuckDBStore) ListAnomalies(ctx context.Context, filter AnomalyFilter) ([]AnomalyRecord, error) {
	where, args := anomalyWhere(filter).BuildWithPrefix()
	stmt := `SELECT ` + anomalySelectColumns + ` FROM anomaly_records` + where
	stmt = applyAnomalyOrdering(stmt, filter)
	stmt, args = applyPagination(stmt, args, filter.Limit, filter.Offset)

	start := time.Now()
	rows, err := s.db.QueryContext(ctx, stmt, args...)
	metrics.RecordDBQuery("SELECT", "anomaly_records", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to query anomaly records: %w", err)
	}
	defer rows.Close()

	var out []AnomalyRecord
	for rows.Next() {
		var rec AnomalyRecord
		if err := scanAnomalyRow(rows, &rec); err != nil {
			return nil, fmt.Errorf("failed to scan anomaly record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// CountAnomalies returns the number of records matching filter.
func (s *DuckDBStore) CountAnomalies(ctx context.Context, filter AnomalyFilter) (int, error) {
	where, args := anomalyWhere(filter).BuildWithPrefix()
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM anomaly_records`+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count anomaly records: %w", err)
	}
	return n, nil
}

func anomalyWhere(filter AnomalyFilter) *query.WhereBuilder {
	return query.NewWhereBuilder().
		AddEquals("principal_id", filter.PrincipalID).
		AddIn("severity", query.Strings(filter.Severities)...).
		AddIn("status", query.Strings(filter.Statuses)...).
		AddEquals("source", string(filter.Source)).
		AddTimeRange("detected_at", filter.StartDate, filter.EndDate)
}

var validAnomalyOrderColumns = map[string]bool{
	"id":           true,
	"principal_id": true,
	"score":        true,
	"severity":     true,
	"status":       true,
	"detected_at":  true,
}

func applyAnomalyOrdering(stmt string, filter AnomalyFilter) string {
	orderBy := "detected_at"
	if filter.OrderBy != "" && validAnomalyOrderColumns[filter.OrderBy] {
		orderBy = filter.OrderBy
	}
	orderDir := "DESC"
	if upper := strings.ToUpper(filter.OrderDirection); upper == "ASC" || upper == "DESC" {
		orderDir = upper
	}
	return stmt + fmt.Sprintf(" ORDER BY %s %s, id %s", orderBy, orderDir, orderDir)
}

func applyPagination(stmt string, args []interface{}, limit, offset int) (string, []interface{}) {
	if limit > 0 {
		stmt += " LIMIT ?"
		args = append(args, limit)
	} else {
		stmt += " LIMIT 100"
	}
	if offset > 0 {
		stmt += " OFFSET ?"
		args = append(args, offset)
	}
	return stmt, args
}

// ReviewAnomaly records an administrator's verdict and returns the updated
// record. A false positive takes precedence over resolve.
func (s *DuckDBStore) ReviewAnomaly(ctx context.Context, id int64, review Review) (*AnomalyRecord, error) {
	now := time.Now().UTC()
	status := StatusUnreviewed
	var resolvedAt interface{}
	switch {
	case review.FalsePositive:
		status = StatusFalsePositive
	case review.Resolve:
		status = StatusResolved
		resolvedAt = now
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE anomaly_records
		SET status = ?, reviewed_by = ?, reviewed_at = ?, resolved_at = COALESCE(?::TIMESTAMP, resolved_at)
		WHERE id = ?`,
		string(status), review.Reviewer, now, resolvedAt, id)
	if err != nil {
		return nil, fmt.Errorf("failed to review anomaly record: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, fmt.Errorf("%w: %d", ErrAnomalyNotFound, id)
	}
	return s.GetAnomaly(ctx, id)
}

// CountUnresolvedSince counts records detected at or after since that are
// neither resolved nor marked false positive.
func (s *DuckDBStore) CountUnresolvedSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM anomaly_records WHERE status = ? AND detected_at >= ?`,
		string(StatusUnreviewed), since.UTC()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count unresolved anomalies: %w", err)
	}
	return n, nil
}

// ConfirmedAnomalies counts a principal's records at or after since that
// were not dismissed as false positives.
func (s *DuckDBStore) ConfirmedAnomalies(ctx context.Context, principalID string, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM anomaly_records
		WHERE principal_id = ? AND status <> ? AND detected_at >= ?`,
		principalID, string(StatusFalsePositive), since.UTC()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count confirmed anomalies: %w", err)
	}
	return n, nil
}

// FalsePositivePrincipals returns the distinct principals with a record
// marked false positive at or after since.
func (s *DuckDBStore) FalsePositivePrincipals(ctx context.Context, since time.Time) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT principal_id FROM anomaly_records
		WHERE status = ? AND detected_at >= ?`,
		string(StatusFalsePositive), since.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query false positives: %w", err)
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan principal id: %w", err)
		}
		out[id] = true
	}
	return out, rows.Err()
}

// SeverityCounts holds dashboard totals.
type SeverityCounts struct {
	BySeverity map[Severity]int `json:"by_severity"`
	ByStatus   map[Status]int   `json:"by_status"`
	Total      int              `json:"total"`
}

// Stats aggregates records detected at or after since.
func (s *DuckDBStore) Stats(ctx context.Context, since time.Time) (*SeverityCounts, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT severity, status, COUNT(*) FROM anomaly_records
		WHERE detected_at >= ? GROUP BY severity, status`, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query anomaly stats: %w", err)
	}
	defer rows.Close()

	out := &SeverityCounts{
		BySeverity: make(map[Severity]int),
		ByStatus:   make(map[Status]int),
	}
	for rows.Next() {
		var sev Severity
		var st Status
		var n int
		if err := rows.Scan(&sev, &st, &n); err != nil {
			return nil, fmt.Errorf("failed to scan anomaly stats: %w", err)
		}
		out.BySeverity[sev] += n
		out.ByStatus[st] += n
		out.Total += n
	}
	return out, rows.Err()
}
