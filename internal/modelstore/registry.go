// Warden - Behavioral Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package modelstore

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/tomtom215/warden/internal/anomaly"
)

// ErrNoActiveModel means no model has been activated for the kind yet.
var ErrNoActiveModel = errors.New("no active model")

// ConfigSource yields the active config for a kind; nil means none.
type ConfigSource interface {
	Active(ctx context.Context, kind string) (*ActiveConfig, error)
}

// Registry caches the active model so consecutive scans reuse the decoded
// bundle. It reloads whenever the active config points at a different key.
type Registry struct {
	store   *Store
	configs ConfigSource

	mu     sync.RWMutex
	cached map[string]cachedModel
}

type cachedModel struct {
	key   string
	model *anomaly.Model
}

// NewRegistry creates a registry over store and configs.
func NewRegistry(store *Store, configs ConfigSource) *Registry {
	return &Registry{
		store:   store,
		configs: configs,
		cached:  make(map[string]cachedModel),
	}
}

// Current returns the active model and its config for kind. It returns
// ErrNoActiveModel when nothing is activated, an error wrapping
// anomaly.ErrModelNotFound when the bundle is gone, and
// *anomaly.SchemaMismatchError for a stale schema.
func (r *Registry) Current(ctx context.Context, kind string) (*anomaly.Model, *ActiveConfig, error) {
	cfg, err := r.configs.Active(ctx, kind)
	if err != nil {
		return nil, nil, err
	}
	if cfg == nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrNoActiveModel, kind)
	}

	r.mu.RLock()
	c, ok := r.cached[kind]
	r.mu.RUnlock()
	if ok && c.key == cfg.ModelKey {
		return c.model, cfg, nil
	}

	m, err := r.store.Load(ctx, cfg.ModelKey)
	if err != nil {
		return nil, cfg, err
	}
	r.Publish(kind, cfg.ModelKey, m)
	return m, cfg, nil
}

// Publish installs m as the cached model for kind under key.
func (r *Registry) Publish(kind, key string, m *anomaly.Model) {
	r.mu.Lock()
	r.cached[kind] = cachedModel{key: key, model: m}
	r.mu.Unlock()
}

// Cached returns the cached model for kind without touching storage.
func (r *Registry) Cached(kind string) (*anomaly.Model, string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.cached[kind]
	return c.model, c.key, ok
}
