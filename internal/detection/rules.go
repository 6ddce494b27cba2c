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
	"time"

	"github.com/tomtom215/warden/internal/metrics"
)

const ruleSelectColumns = `id, name, condition, threshold, window_minutes, channel, active,
	last_triggered_at, created_at, updated_at`

func scanRuleRow(scanner interface {
	Scan(dest ...interface{}) error
}, rule *AlertRule) error {
	var last sql.NullTime
	if err := scanner.Scan(
		&rule.ID,
		&rule.Name,
		&rule.Condition,
		&rule.Threshold,
		&rule.WindowMinutes,
		&rule.Channel,
		&rule.Active,
		&last,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	); err != nil {
		return err
	}
	if last.Valid {
		t := last.Time
		rule.LastTriggeredAt = &t
	}
	return nil
}

// CreateRule inserts rule and sets its ID and timestamps.
func (s *DuckDBStore) CreateRule(ctx context.Context, rule *AlertRule) error {
	now := time.Now().UTC()
	rule.CreatedAt, rule.UpdatedAt = now, now
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO alert_rules (name, condition, threshold, window_minutes, channel, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`,
		rule.Name, string(rule.Condition), rule.Threshold, rule.WindowMinutes,
		string(rule.Channel), rule.Active, now, now,
	).Scan(&rule.ID)
	if err != nil {
		return fmt.Errorf("failed to insert alert rule: %w", err)
	}
	return nil
}

// GetRule retrieves a rule by ID.
func (s *DuckDBStore) GetRule(ctx context.Context, id int64) (*AlertRule, error) {
	rule := &AlertRule{}
	err := scanRuleRow(s.db.QueryRowContext(ctx,
		`SELECT `+ruleSelectColumns+` FROM alert_rules WHERE id = ?`, id), rule)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrRuleNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get alert rule: %w", err)
	}
	return rule, nil
}

// ListRules retrieves rules ordered by ID, optionally only active ones.
func (s *DuckDBStore) ListRules(ctx context.Context, activeOnly bool) ([]AlertRule, error) {
	query := `SELECT ` + ruleSelectColumns + ` FROM alert_rules`
	if activeOnly {
		query += ` WHERE active = true`
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query alert rules: %w", err)
	}
	defer rows.Close()

	var rules []AlertRule
	for rows.Next() {
		var rule AlertRule
		if err := scanRuleRow(rows, &rule); err != nil {
			return nil, fmt.Errorf("failed to scan alert rule: %w", err)
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// UpdateRule overwrites the mutable fields of a rule.
func (s *DuckDBStore) UpdateRule(ctx context.Context, rule *AlertRule) error {
	rule.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE alert_rules
		SET name = ?, condition = ?, threshold = ?, window_minutes = ?, channel = ?, active = ?, updated_at = ?
		WHERE id = ?`,
		rule.Name, string(rule.Condition), rule.Threshold, rule.WindowMinutes,
		string(rule.Channel), rule.Active, rule.UpdatedAt, rule.ID)
	if err != nil {
		return fmt.Errorf("failed to update alert rule: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %d", ErrRuleNotFound, rule.ID)
	}
	return nil
}

// DeleteRule removes a rule.
func (s *DuckDBStore) DeleteRule(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM alert_rules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete alert rule: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %d", ErrRuleNotFound, id)
	}
	return nil
}

// ClaimRuleTrigger stamps the rule as triggered at now unless it already
// triggered within rateLimit. It reports whether this caller won the claim.
func (s *DuckDBStore) ClaimRuleTrigger(ctx context.Context, id int64, now time.Time, rateLimit time.Duration) (bool, error) {
	now = now.UTC()
	cutoff := now.Add(-rateLimit)

	s.insertMu.Lock()
	defer s.insertMu.Unlock()

	start := time.Now()
	res, err := s.db.ExecContext(ctx, `
		UPDATE alert_rules SET last_triggered_at = ?
		WHERE id = ? AND active = true
		  AND (last_triggered_at IS NULL OR last_triggered_at <= ?)`,
		now, id, cutoff)
	metrics.RecordDBQuery("UPDATE", "alert_rules", time.Since(start), err)
	if err != nil {
		return false, fmt.Errorf("failed to claim alert rule: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read claim result: %w", err)
	}
	return n == 1, nil
}
