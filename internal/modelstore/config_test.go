// Warden - Behavioral Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package modelstore

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/tomtom215/warden/internal/anomaly"
)

func setupConfigStore(t *testing.T) *ConfigStore {
	t.Helper()
	db, err := sql.Open("duckdb", "")
	if err != nil {
		t.Fatalf("failed to open duckdb: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	s := NewConfigStore(db)
	if err := s.InitSchema(context.Background()); err != nil {
		t.Fatalf("InitSchema failed: %v", err)
	}
	return s
}

func TestConfigStore_ActiveNone(t *testing.T) {
	s := setupConfigStore(t)
	cfg, err := s.Active(context.Background(), testKind)
	if err != nil {
		t.Fatalf("Active failed: %v", err)
	}
	if cfg != nil {
		t.Errorf("Active = %+v, want nil", cfg)
	}
}

func TestConfigStore_ActivateUpserts(t *testing.T) {
	s := setupConfigStore(t)
	ctx := context.Background()
	params := anomaly.Params{Trees: 50, MaxSamples: 128, Contamination: 0.05, Seed: 7}

	for v := 1; v <= 3; v++ {
		cfg := ConfigFromMeta("Warden isolation forest", params, Meta{
			Kind:          testKind,
			Version:       v,
			Key:           Key(testKind, v),
			SchemaVersion: 2,
			SampleCount:   100 * v,
			Threshold:     0.6,
			TrainedAt:     time.Now(),
		})
		if err := s.Activate(ctx, &cfg); err != nil {
			t.Fatalf("Activate v%d failed: %v", v, err)
		}
	}

	var rows int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM model_configs WHERE kind = ?`, testKind).Scan(&rows); err != nil {
		t.Fatal(err)
	}
	if rows != 1 {
		t.Errorf("model_configs rows = %d, want 1", rows)
	}

	got, err := s.Active(ctx, testKind)
	if err != nil {
		t.Fatal(err)
	}
	if got.ModelVersion != 3 || got.ModelKey != Key(testKind, 3) || got.SampleCount != 300 {
		t.Errorf("Active = %+v", got)
	}
	if got.Params != params {
		t.Errorf("Params = %+v, want %+v", got.Params, params)
	}
}

type staticConfigs struct {
	cfg *ActiveConfig
	err error
}

func (s *staticConfigs) Active(context.Context, string) (*ActiveConfig, error) {
	return s.cfg, s.err
}

func TestRegistry_Current(t *testing.T) {
	ctx := context.Background()
	backend := newFileBackend(t)
	store, _ := NewStore(ctx, backend)
	configs := &staticConfigs{}
	reg := NewRegistry(store, configs)

	if _, _, err := reg.Current(ctx, testKind); !errors.Is(err, ErrNoActiveModel) {
		t.Errorf("Current with no config error = %v, want ErrNoActiveModel", err)
	}

	meta, err := store.Save(ctx, testKind, trainTestModel(t, 1))
	if err != nil {
		t.Fatal(err)
	}
	cfg := ConfigFromMeta("n", anomaly.DefaultParams(), meta)
	configs.cfg = &cfg

	m1, got, err := reg.Current(ctx, testKind)
	if err != nil {
		t.Fatalf("Current failed: %v", err)
	}
	if got.ModelKey != meta.Key {
		t.Errorf("config key = %q", got.ModelKey)
	}

	// The cached model survives the bundle disappearing.
	if err := backend.Delete(ctx, meta.Key); err != nil {
		t.Fatal(err)
	}
	m2, _, err := reg.Current(ctx, testKind)
	if err != nil {
		t.Fatalf("cached Current failed: %v", err)
	}
	if m1 != m2 {
		t.Error("registry reloaded an unchanged model")
	}

	configs.cfg = &ActiveConfig{Kind: testKind, ModelKey: Key(testKind, 42)}
	if _, _, err := reg.Current(ctx, testKind); !errors.Is(err, anomaly.ErrModelNotFound) {
		t.Errorf("Current with dangling key error = %v, want ErrModelNotFound", err)
	}
}
