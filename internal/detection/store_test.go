// Warden - Behavioral Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package detection

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/tomtom215/warden/internal/anomaly"
)

// setupTestStore creates a DuckDBStore over an in-memory database with the
// schema initialized.
func setupTestStore(t *testing.T) *DuckDBStore {
	t.Helper()
	db, err := sql.Open("duckdb", "")
	if err != nil {
		t.Fatalf("failed to open duckdb: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	store := NewDuckDBStore(db)
	if err := store.InitSchema(context.Background()); err != nil {
		t.Fatalf("InitSchema failed: %v", err)
	}
	return store
}

func newRecord(principal string, at time.Time) *AnomalyRecord {
	return &AnomalyRecord{
		PrincipalID:    principal,
		PrincipalEmail: principal + "@example.org",
		Source:         SourceScan,
		Title:          "Anomalous behavior detected: " + principal,
		Description:    "test",
		Score:          0.72,
		Threshold:      0.6,
		Severity:       SeverityMedium,
		Features:       map[string]float64{"failed_logins": 12, "error_rate": 0.4},
		TopFeatures:    []anomaly.Contribution{{Feature: "failed_logins", Value: 12, Contribution: 0.2}},
		DetectedAt:     at,
	}
}

func TestDuckDBStore_InitSchema_Idempotent(t *testing.T) {
	store := setupTestStore(t)
	if err := store.InitSchema(context.Background()); err != nil {
		t.Fatalf("second InitSchema failed: %v", err)
	}
}

func TestDuckDBStore_CreateAnomalyIfAbsent(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	rec := newRecord("u1", now)
	created, err := store.CreateAnomalyIfAbsent(ctx, rec, now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("CreateAnomalyIfAbsent failed: %v", err)
	}
	if !created || rec.ID == 0 {
		t.Fatalf("created = %v, id = %d; want a new record", created, rec.ID)
	}

	dup := newRecord("u1", now.Add(time.Minute))
	created, err = store.CreateAnomalyIfAbsent(ctx, dup, now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("CreateAnomalyIfAbsent (dup) failed: %v", err)
	}
	if created {
		t.Error("duplicate within window was inserted")
	}

	other := newRecord("u2", now)
	created, _ = store.CreateAnomalyIfAbsent(ctx, other, now.Add(-time.Hour))
	if !created {
		t.Error("record for a different principal was suppressed")
	}

	later := newRecord("u1", now.Add(2*time.Hour))
	created, _ = store.CreateAnomalyIfAbsent(ctx, later, now.Add(time.Hour))
	if !created {
		t.Error("record after the dedup window was suppressed")
	}
}

func TestDuckDBStore_CreateAnomalyIfAbsent_ReviewedDoesNotSuppress(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	since := now.Add(-time.Hour)

	for _, review := range []Review{
		{Reviewer: "admin-1", Resolve: true},
		{Reviewer: "admin-1", FalsePositive: true},
	} {
		first := newRecord("u1", now)
		created, err := store.CreateAnomalyIfAbsent(ctx, first, since)
		if err != nil || !created {
			t.Fatalf("CreateAnomalyIfAbsent = %v, %v; want a new record", created, err)
		}
		if _, err := store.ReviewAnomaly(ctx, first.ID, review); err != nil {
			t.Fatalf("ReviewAnomaly failed: %v", err)
		}

		again := newRecord("u1", now.Add(time.Minute))
		created, err = store.CreateAnomalyIfAbsent(ctx, again, since)
		if err != nil {
			t.Fatal(err)
		}
		if !created {
			t.Errorf("record after review %+v was suppressed", review)
		}
		if _, err := store.ReviewAnomaly(ctx, again.ID, review); err != nil {
			t.Fatal(err)
		}
	}
}

func TestDuckDBStore_CreateAnomalyIfAbsent_Concurrent(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	var wg sync.WaitGroup
	var inserted atomic.Int32
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := store.CreateAnomalyIfAbsent(ctx, newRecord("u1", now), now.Add(-time.Hour))
			if err != nil {
				t.Errorf("CreateAnomalyIfAbsent failed: %v", err)
				return
			}
			if ok {
				inserted.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := inserted.Load(); got != 1 {
		t.Errorf("inserted = %d, want exactly 1", got)
	}
}

func TestDuckDBStore_GetAnomaly_RoundTrip(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	rec := newRecord("u1", time.Now())
	if err := store.CreateAnomaly(ctx, rec); err != nil {
		t.Fatalf("CreateAnomaly failed: %v", err)
	}

	got, err := store.GetAnomaly(ctx, rec.ID)
	if err != nil {
		t.Fatalf("GetAnomaly failed: %v", err)
	}
	if got.Status != StatusUnreviewed {
		t.Errorf("Status = %q, want unreviewed", got.Status)
	}
	if got.Features["failed_logins"] != 12 {
		t.Errorf("Features = %v", got.Features)
	}
	if len(got.TopFeatures) != 1 || got.TopFeatures[0].Feature != "failed_logins" {
		t.Errorf("TopFeatures = %v", got.TopFeatures)
	}

	if _, err := store.GetAnomaly(ctx, 9999); !errors.Is(err, ErrAnomalyNotFound) {
		t.Errorf("GetAnomaly(missing) error = %v, want ErrAnomalyNotFound", err)
	}
}

func TestDuckDBStore_ReviewAnomaly(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	fp := newRecord("u1", now)
	resolved := newRecord("u2", now)
	open := newRecord("u3", now)
	for _, r := range []*AnomalyRecord{fp, resolved, open} {
		if err := store.CreateAnomaly(ctx, r); err != nil {
			t.Fatal(err)
		}
	}

	got, err := store.ReviewAnomaly(ctx, fp.ID, Review{Reviewer: "admin", FalsePositive: true, Resolve: true})
	if err != nil {
		t.Fatalf("ReviewAnomaly failed: %v", err)
	}
	if got.Status != StatusFalsePositive || got.ReviewedBy != "admin" || got.ReviewedAt == nil {
		t.Errorf("false positive review = %+v", got)
	}

	got, _ = store.ReviewAnomaly(ctx, resolved.ID, Review{Reviewer: "admin", Resolve: true})
	if got.Status != StatusResolved || got.ResolvedAt == nil {
		t.Errorf("resolve review = %+v", got)
	}

	if _, err := store.ReviewAnomaly(ctx, 9999, Review{Reviewer: "admin"}); !errors.Is(err, ErrAnomalyNotFound) {
		t.Errorf("ReviewAnomaly(missing) error = %v", err)
	}

	since := now.Add(-time.Hour)
	unresolved, _ := store.CountUnresolvedSince(ctx, since)
	if unresolved != 1 {
		t.Errorf("CountUnresolvedSince = %d, want 1", unresolved)
	}

	fps, err := store.FalsePositivePrincipals(ctx, since)
	if err != nil {
		t.Fatal(err)
	}
	if len(fps) != 1 || !fps["u1"] {
		t.Errorf("FalsePositivePrincipals = %v, want {u1}", fps)
	}

	confirmed, _ := store.ConfirmedAnomalies(ctx, "u1", since)
	if confirmed != 0 {
		t.Errorf("ConfirmedAnomalies(u1) = %d, want 0", confirmed)
	}
	confirmed, _ = store.ConfirmedAnomalies(ctx, "u2", since)
	if confirmed != 1 {
		t.Errorf("ConfirmedAnomalies(u2) = %d, want 1", confirmed)
	}

	stats, err := store.Stats(ctx, since)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Total != 3 || stats.ByStatus[StatusResolved] != 1 || stats.BySeverity[SeverityMedium] != 3 {
		t.Errorf("Stats = %+v", stats)
	}
}

func TestDuckDBStore_ListAnomalies_Filters(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for i, sev := range []Severity{SeverityMedium, SeverityHigh, SeverityCritical} {
		r := newRecord("u1", now.Add(time.Duration(i)*time.Minute))
		r.Severity = sev
		if err := store.CreateAnomaly(ctx, r); err != nil {
			t.Fatal(err)
		}
	}
	hp := newRecord("u2", now)
	hp.Source = SourceHoneypot
	_ = store.CreateAnomaly(ctx, hp)

	tests := []struct {
		name   string
		filter AnomalyFilter
		want   int
	}{
		{"all", AnomalyFilter{}, 4},
		{"by principal", AnomalyFilter{PrincipalID: "u1"}, 3},
		{"by severity", AnomalyFilter{Severities: []Severity{SeverityHigh, SeverityCritical}}, 2},
		{"by source", AnomalyFilter{Source: SourceHoneypot}, 1},
		{"by status", AnomalyFilter{Statuses: []Status{StatusResolved}}, 0},
		{"limit", AnomalyFilter{Limit: 2}, 2},
		{"bad order column ignored", AnomalyFilter{OrderBy: "1; DROP TABLE anomaly_records"}, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.ListAnomalies(ctx, tt.filter)
			if err != nil {
				t.Fatalf("ListAnomalies failed: %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("got %d records, want %d", len(got), tt.want)
			}
		})
	}

	latest, _ := store.ListAnomalies(ctx, AnomalyFilter{PrincipalID: "u1", Limit: 1})
	if len(latest) != 1 || latest[0].Severity != SeverityCritical {
		t.Errorf("default ordering should return newest first, got %+v", latest)
	}

	n, err := store.CountAnomalies(ctx, AnomalyFilter{PrincipalID: "u1"})
	if err != nil || n != 3 {
		t.Errorf("CountAnomalies = %d, %v; want 3", n, err)
	}
}

func TestDuckDBStore_RuleCRUD(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	rule := &AlertRule{
		Name:          "Failed login burst",
		Condition:     ConditionFailedLogins,
		Threshold:     20,
		WindowMinutes: 15,
		Channel:       ChannelTelegram,
		Active:        true,
	}
	if err := store.CreateRule(ctx, rule); err != nil {
		t.Fatalf("CreateRule failed: %v", err)
	}

	got, err := store.GetRule(ctx, rule.ID)
	if err != nil {
		t.Fatalf("GetRule failed: %v", err)
	}
	if got.Condition != ConditionFailedLogins || got.Window() != 15*time.Minute {
		t.Errorf("GetRule = %+v", got)
	}

	rule.Active = false
	if err := store.UpdateRule(ctx, rule); err != nil {
		t.Fatalf("UpdateRule failed: %v", err)
	}
	active, _ := store.ListRules(ctx, true)
	if len(active) != 0 {
		t.Errorf("active rules = %d, want 0", len(active))
	}
	all, _ := store.ListRules(ctx, false)
	if len(all) != 1 {
		t.Errorf("all rules = %d, want 1", len(all))
	}

	if err := store.DeleteRule(ctx, rule.ID); err != nil {
		t.Fatalf("DeleteRule failed: %v", err)
	}
	if _, err := store.GetRule(ctx, rule.ID); !errors.Is(err, ErrRuleNotFound) {
		t.Errorf("GetRule after delete error = %v", err)
	}
}

func TestDuckDBStore_ClaimRuleTrigger(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	rule := &AlertRule{Name: "r", Condition: ConditionAnomalyCount, Threshold: 1, WindowMinutes: 60, Channel: ChannelAll, Active: true}
	if err := store.CreateRule(ctx, rule); err != nil {
		t.Fatal(err)
	}
	now := time.Now().UTC()
	limit := 15 * time.Minute

	ok, err := store.ClaimRuleTrigger(ctx, rule.ID, now, limit)
	if err != nil || !ok {
		t.Fatalf("first claim = %v, %v; want true", ok, err)
	}
	ok, _ = store.ClaimRuleTrigger(ctx, rule.ID, now.Add(5*time.Minute), limit)
	if ok {
		t.Error("claim inside the rate-limit window succeeded")
	}
	ok, _ = store.ClaimRuleTrigger(ctx, rule.ID, now.Add(16*time.Minute), limit)
	if !ok {
		t.Error("claim after the rate-limit window failed")
	}

	var wg sync.WaitGroup
	var wins atomic.Int32
	at := now.Add(time.Hour)
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := store.ClaimRuleTrigger(ctx, rule.ID, at, limit); ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	if wins.Load() != 1 {
		t.Errorf("concurrent claims won = %d, want 1", wins.Load())
	}
}

func TestChannelExpand(t *testing.T) {
	if got := ChannelAll.Expand(); len(got) != 4 {
		t.Errorf("ChannelAll.Expand() = %v", got)
	}
	if got := ChannelEmail.Expand(); len(got) != 1 || got[0] != ChannelEmail {
		t.Errorf("ChannelEmail.Expand() = %v", got)
	}
	if Condition("bogus").Valid() {
		t.Error("unknown condition reported valid")
	}
}
