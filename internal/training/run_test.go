// Warden - Behavioral Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package training

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/warden/internal/anomaly"
	"github.com/tomtom215/warden/internal/features"
	"github.com/tomtom215/warden/internal/modelstore"
)

type fakePrincipals struct{ ids []string }

func (f *fakePrincipals) ActivePrincipals(context.Context) ([]features.Principal, error) {
	out := make([]features.Principal, len(f.ids))
	for i, id := range f.ids {
		out[i] = features.Principal{ID: id, Active: true}
	}
	return out, nil
}

type fakeExtractor struct {
	vectors map[string][]float64
	gate    chan struct{}
	started chan struct{}
	once    sync.Once
}

func (f *fakeExtractor) Extract(ctx context.Context, id string, _ time.Duration) (features.Vector, error) {
	if f.started != nil {
		f.once.Do(func() { close(f.started) })
	}
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return features.Vector{}, ctx.Err()
		}
	}
	v, ok := f.vectors[id]
	if !ok {
		return features.Vector{}, fmt.Errorf("no vector for %s", id)
	}
	return features.Vector{Principal: id, Values: v}, nil
}

type fakeFeedback struct{ fps map[string]bool }

func (f *fakeFeedback) FalsePositivePrincipals(context.Context, time.Time) (map[string]bool, error) {
	return f.fps, nil
}

type fakeModels struct {
	mu     sync.Mutex
	saved  []*anomaly.Model
	pruned int
}

func (f *fakeModels) Save(_ context.Context, kind string, m *anomaly.Model) (modelstore.Meta, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, m)
	v := len(f.saved)
	return modelstore.Meta{Kind: kind, Version: v, Key: modelstore.Key(kind, v), Threshold: m.Threshold, SampleCount: m.SampleCount}, nil
}

func (f *fakeModels) Prune(context.Context, string, int) (int, error) {
	f.pruned++
	return 0, nil
}

type fakeConfigs struct {
	active *modelstore.ActiveConfig
	err    error
}

func (f *fakeConfigs) Activate(_ context.Context, cfg *modelstore.ActiveConfig) error {
	if f.err != nil {
		return f.err
	}
	c := *cfg
	f.active = &c
	return nil
}

type fakeRegistry struct {
	key   string
	model *anomaly.Model
}

func (f *fakeRegistry) Publish(_, key string, m *anomaly.Model) {
	f.key, f.model = key, m
}

func newRunFixture(n int) (*fakePrincipals, *fakeExtractor) {
	rng := rand.New(rand.NewSource(11)) //nolint:gosec // deterministic test data
	samples := GenerateDataset(rng, n, 0, n)
	p := &fakePrincipals{}
	e := &fakeExtractor{vectors: make(map[string][]float64)}
	for i, s := range samples {
		id := fmt.Sprintf("p%03d", i)
		p.ids = append(p.ids, id)
		e.vectors[id] = s.Values
	}
	return p, e
}

func TestRun_TrainsSavesActivatesPublishes(t *testing.T) {
	principals, extractor := newRunFixture(40)
	models := &fakeModels{}
	configs := &fakeConfigs{}
	registry := &fakeRegistry{}
	feedback := &fakeFeedback{fps: map[string]bool{"p001": true, "p002": true}}

	tr := NewTrainer(testParams(), 10, RunConfig{KeepVersions: 3}, Deps{
		Principals: principals,
		Extractor:  extractor,
		Feedback:   feedback,
		Models:     models,
		Configs:    configs,
		Registry:   registry,
	})

	res, err := tr.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Outcome != OutcomeTrained {
		t.Fatalf("Outcome = %q, want trained", res.Outcome)
	}
	if res.Samples != 40 || res.FalsePositives != 2 {
		t.Errorf("samples/fps = %d/%d, want 40/2", res.Samples, res.FalsePositives)
	}
	if len(models.saved) != 1 || models.pruned != 1 {
		t.Errorf("saved = %d, pruned = %d", len(models.saved), models.pruned)
	}
	if configs.active == nil || configs.active.ModelKey != res.Model.Key || !configs.active.Active {
		t.Errorf("active config = %+v", configs.active)
	}
	if registry.model != models.saved[0] || registry.key != res.Model.Key {
		t.Error("registry did not receive the promoted model")
	}
	if want := AdjustedContamination(0.1, 40, 2); registry.model.Params.Contamination != want {
		t.Errorf("contamination = %v, want %v", registry.model.Params.Contamination, want)
	}
}

func TestRun_SkipsWithTooFewSamples(t *testing.T) {
	principals, extractor := newRunFixture(6)
	models := &fakeModels{}
	configs := &fakeConfigs{}
	tr := NewTrainer(testParams(), 10, RunConfig{}, Deps{
		Principals: principals, Extractor: extractor, Models: models, Configs: configs,
	})

	res, err := tr.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Outcome != OutcomeSkipped || res.Reason == "" {
		t.Errorf("result = %+v, want skipped with reason", res)
	}
	if len(models.saved) != 0 || configs.active != nil {
		t.Error("skipped run touched the store")
	}
}

func TestRun_ActivationFailureDoesNotPublish(t *testing.T) {
	principals, extractor := newRunFixture(20)
	registry := &fakeRegistry{}
	tr := NewTrainer(testParams(), 10, RunConfig{}, Deps{
		Principals: principals,
		Extractor:  extractor,
		Models:     &fakeModels{},
		Configs:    &fakeConfigs{err: errors.New("db locked")},
		Registry:   registry,
	})

	if _, err := tr.Run(context.Background()); err == nil {
		t.Fatal("Run succeeded despite activation failure")
	}
	if registry.model != nil {
		t.Error("model published before activation succeeded")
	}
}

func TestRun_RejectsConcurrentRuns(t *testing.T) {
	principals, extractor := newRunFixture(20)
	extractor.gate = make(chan struct{})
	extractor.started = make(chan struct{})
	tr := NewTrainer(testParams(), 10, RunConfig{}, Deps{
		Principals: principals, Extractor: extractor, Models: &fakeModels{}, Configs: &fakeConfigs{},
	})

	done := make(chan error, 1)
	go func() {
		_, err := tr.Run(context.Background())
		done <- err
	}()

	select {
	case <-extractor.started:
	case <-time.After(5 * time.Second):
		t.Fatal("first run never started")
	}

	if _, err := tr.Run(context.Background()); !errors.Is(err, ErrTrainingInProgress) {
		t.Errorf("second Run error = %v, want ErrTrainingInProgress", err)
	}
	close(extractor.gate)
	if err := <-done; err != nil {
		t.Errorf("first Run failed: %v", err)
	}
}

func TestRun_TimeoutAbandonsCycle(t *testing.T) {
	principals, extractor := newRunFixture(20)
	extractor.gate = make(chan struct{})
	configs := &fakeConfigs{}
	tr := NewTrainer(testParams(), 10, RunConfig{Timeout: 20 * time.Millisecond}, Deps{
		Principals: principals, Extractor: extractor, Models: &fakeModels{}, Configs: configs,
	})

	if _, err := tr.Run(context.Background()); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Run error = %v, want DeadlineExceeded", err)
	}
	if configs.active != nil {
		t.Error("abandoned run activated a model")
	}
}

func TestRun_NotConfigured(t *testing.T) {
	tr := NewTrainer(testParams(), 10, RunConfig{}, Deps{})
	if _, err := tr.Run(context.Background()); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("Run error = %v, want ErrNotConfigured", err)
	}
}
