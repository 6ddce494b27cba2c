// Warden - Behavioral Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package modelstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/warden/internal/anomaly"
)

// ActiveConfig points at the model currently used for scoring one kind.
type ActiveConfig struct {
	Kind          string         `json:"kind"`
	Name          string         `json:"name"`
	Params        anomaly.Params `json:"params"`
	ModelKey      string         `json:"model_key"`
	ModelVersion  int            `json:"model_version"`
	SchemaVersion int            `json:"schema_version"`
	Threshold     float64        `json:"threshold"`
	SampleCount   int            `json:"sample_count"`
	TrainedAt     time.Time      `json:"trained_at"`
	Active        bool           `json:"active"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// ConfigStore keeps ActiveConfig rows in DuckDB. The primary key on
// (kind, active) allows one active row per kind.
type ConfigStore struct {
	db *sql.DB
}

// NewConfigStore creates a new DuckDB-backed config store.
func NewConfigStore(db *sql.DB) *ConfigStore {
	return &ConfigStore{db: db}
}

// InitSchema creates the model_configs table if it doesn't exist.
func (s *ConfigStore) InitSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS model_configs (
		kind TEXT NOT NULL,
		active BOOLEAN NOT NULL,
		name TEXT NOT NULL,
		params JSON,
		model_key TEXT NOT NULL,
		model_version INTEGER NOT NULL,
		schema_version INTEGER NOT NULL,
		threshold DOUBLE NOT NULL,
		sample_count INTEGER NOT NULL,
		trained_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		PRIMARY KEY (kind, active)
	)`)
	if err != nil {
		return fmt.Errorf("failed to create model_configs: %w", err)
	}
	return nil
}

// ConfigFromMeta builds the ActiveConfig for a freshly saved bundle.
func ConfigFromMeta(name string, params anomaly.Params, meta Meta) ActiveConfig {
	return ActiveConfig{
		Kind:          meta.Kind,
		Name:          name,
		Params:        params,
		ModelKey:      meta.Key,
		ModelVersion:  meta.Version,
		SchemaVersion: meta.SchemaVersion,
		Threshold:     meta.Threshold,
		SampleCount:   meta.SampleCount,
		TrainedAt:     meta.TrainedAt,
		Active:        true,
	}
}

// Activate makes cfg the active row for its kind, replacing any previous one.
func (s *ConfigStore) Activate(ctx context.Context, cfg *ActiveConfig) error {
	params, err := json.Marshal(cfg.Params)
	if err != nil {
		return fmt.Errorf("failed to marshal params: %w", err)
	}
	cfg.Active = true
	cfg.UpdatedAt = time.Now().UTC()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO model_configs
			(kind, active, name, params, model_key, model_version, schema_version,
			 threshold, sample_count, trained_at, updated_at)
		VALUES (?, true, ?, ?::JSON, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (kind, active) DO UPDATE SET
			name = EXCLUDED.name,
			params = EXCLUDED.params,
			model_key = EXCLUDED.model_key,
			model_version = EXCLUDED.model_version,
			schema_version = EXCLUDED.schema_version,
			threshold = EXCLUDED.threshold,
			sample_count = EXCLUDED.sample_count,
			trained_at = EXCLUDED.trained_at,
			updated_at = EXCLUDED.updated_at`,
		cfg.Kind, cfg.Name, string(params), cfg.ModelKey, cfg.ModelVersion, cfg.SchemaVersion,
		cfg.Threshold, cfg.SampleCount, cfg.TrainedAt.UTC(), cfg.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to activate model config: %w", err)
	}
	return nil
}

// Active returns the active config for kind, or nil when none exists.
func (s *ConfigStore) Active(ctx context.Context, kind string) (*ActiveConfig, error) {
	cfg := &ActiveConfig{Kind: kind}
	var params sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT name, CAST(params AS VARCHAR), model_key, model_version, schema_version,
			threshold, sample_count, trained_at, active, updated_at
		FROM model_configs WHERE kind = ? AND active = true`, kind).Scan(
		&cfg.Name, &params, &cfg.ModelKey, &cfg.ModelVersion, &cfg.SchemaVersion,
		&cfg.Threshold, &cfg.SampleCount, &cfg.TrainedAt, &cfg.Active, &cfg.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil //nolint:nilnil // no active model is a normal state
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active model config: %w", err)
	}
	if params.Valid && params.String != "" {
		if err := json.Unmarshal([]byte(params.String), &cfg.Params); err != nil {
			return nil, fmt.Errorf("failed to decode params: %w", err)
		}
	}
	return cfg, nil
}
