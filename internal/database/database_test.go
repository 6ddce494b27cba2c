// Warden - Behavioral Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package database

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/tomtom215/warden/internal/config"
	"github.com/tomtom215/warden/internal/features"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(&config.DatabaseConfig{Path: ":memory:", Threads: 1})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestNew_CreatesTables(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	for _, table := range []string{"principals", "activity_events", "login_attempts", "sessions", "notifications", "honeypots", "honeypot_accesses"} {
		var n int
		err := db.Conn().QueryRowContext(ctx,
			`SELECT COUNT(*) FROM information_schema.tables WHERE table_name = ?`, table).Scan(&n)
		if err != nil {
			t.Fatalf("query %s: %v", table, err)
		}
		if n != 1 {
			t.Errorf("table %s missing", table)
		}
	}
	if err := db.Ping(ctx); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
}

func TestActivity_WindowAndOrder(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	records := []ActivityRecord{
		{PrincipalID: "u1", Path: "/docs/1", Method: "GET", StatusCode: 200, OrgID: "o1", PayloadBytes: 2048, CreatedAt: now.Add(-10 * time.Minute)},
		{PrincipalID: "u1", Path: "/docs/2/download", Method: "GET", StatusCode: 200, DocumentID: "d2", CreatedAt: now.Add(-30 * time.Minute)},
		{PrincipalID: "u1", Path: "/old", Method: "GET", StatusCode: 200, CreatedAt: now.Add(-3 * time.Hour)},
		{PrincipalID: "u2", Path: "/docs/1", Method: "GET", StatusCode: 500, CreatedAt: now.Add(-5 * time.Minute)},
	}
	for i := range records {
		if err := db.RecordActivity(ctx, &records[i]); err != nil {
			t.Fatalf("RecordActivity() error = %v", err)
		}
	}

	events, err := db.Activity(ctx, "u1", now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("Activity() error = %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Path != "/docs/2/download" || events[0].DocumentID != "d2" {
		t.Errorf("first event = %+v, want the older download", events[0])
	}
	if events[1].OrgID != "o1" || events[1].PayloadBytes != 2048 {
		t.Errorf("second event = %+v", events[1])
	}

	rate, err := db.ErrorRatePercent(ctx, now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("ErrorRatePercent() error = %v", err)
	}
	if math.Abs(rate-100.0/3) > 1e-9 {
		t.Errorf("ErrorRatePercent() = %v, want 33.33", rate)
	}

	purged, err := db.PurgeActivityBefore(ctx, now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("PurgeActivityBefore() error = %v", err)
	}
	if purged != 1 {
		t.Errorf("purged = %d, want 1", purged)
	}
}

func TestErrorRatePercent_NoTraffic(t *testing.T) {
	db := setupTestDB(t)
	rate, err := db.ErrorRatePercent(context.Background(), time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("ErrorRatePercent() error = %v", err)
	}
	if rate != 0 {
		t.Errorf("rate = %v, want 0", rate)
	}
}

func TestFailedLogins(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for i := 0; i < 3; i++ {
		if err := db.RecordLoginAttempt(ctx, "u1", "u1@example.org", "10.0.0.1", false, now.Add(-time.Duration(i)*time.Minute)); err != nil {
			t.Fatal(err)
		}
	}
	_ = db.RecordLoginAttempt(ctx, "u1", "u1@example.org", "10.0.0.1", true, now)
	_ = db.RecordLoginAttempt(ctx, "", "ghost@example.org", "10.0.0.9", false, now)

	n, err := db.FailedLogins(ctx, "u1", now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("FailedLogins() error = %v", err)
	}
	if n != 3 {
		t.Errorf("FailedLogins() = %d, want 3", n)
	}

	total, err := db.CountFailedLogins(ctx, now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("CountFailedLogins() error = %v", err)
	}
	if total != 4 {
		t.Errorf("CountFailedLogins() = %d, want 4", total)
	}
}

func TestPrincipals(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	ps := []features.Principal{
		{ID: "a", Email: "a@x", Role: "super_admin", Active: true},
		{ID: "b", Email: "b@x", Role: "member", ConfessionType: "diniy", OrgID: "o1", Active: true},
		{ID: "c", Email: "c@x", Role: "security_auditor", Active: false},
	}
	for i := range ps {
		if err := db.UpsertPrincipal(ctx, &ps[i]); err != nil {
			t.Fatalf("UpsertPrincipal() error = %v", err)
		}
	}

	got, err := db.Principal(ctx, "b")
	if err != nil {
		t.Fatalf("Principal() error = %v", err)
	}
	if got.ConfessionType != "diniy" || got.OrgID != "o1" {
		t.Errorf("Principal() = %+v", got)
	}

	if _, err := db.Principal(ctx, "zzz"); !errors.Is(err, ErrPrincipalNotFound) {
		t.Errorf("Principal(unknown) error = %v, want ErrPrincipalNotFound", err)
	}

	active, err := db.ActivePrincipals(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 2 {
		t.Errorf("ActivePrincipals() = %d, want 2", len(active))
	}

	admins, err := db.PrincipalsWithRoles(ctx, []string{"super_admin", "security_auditor"})
	if err != nil {
		t.Fatal(err)
	}
	if len(admins) != 1 || admins[0].ID != "a" {
		t.Errorf("PrincipalsWithRoles() = %+v, want only a", admins)
	}

	ps[1].Role = "confession_leader"
	if err := db.UpsertPrincipal(ctx, &ps[1]); err != nil {
		t.Fatal(err)
	}
	got, _ = db.Principal(ctx, "b")
	if got.Role != "confession_leader" {
		t.Errorf("role after upsert = %q", got.Role)
	}
}

func TestRevokeAllActiveSessions_Idempotent(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	for _, id := range []string{"s1", "s2"} {
		if err := db.CreateSession(ctx, id, "u1"); err != nil {
			t.Fatal(err)
		}
	}
	_ = db.CreateSession(ctx, "s3", "u2")

	n, err := db.RevokeAllActiveSessions(ctx, "u1")
	if err != nil {
		t.Fatalf("RevokeAllActiveSessions() error = %v", err)
	}
	if n != 2 {
		t.Errorf("revoked = %d, want 2", n)
	}
	n, _ = db.RevokeAllActiveSessions(ctx, "u1")
	if n != 0 {
		t.Errorf("second revoke = %d, want 0", n)
	}
	left, _ := db.ActiveSessionCount(ctx, "u2")
	if left != 1 {
		t.Errorf("u2 sessions = %d, want 1", left)
	}
}

func TestNotifications(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	n := &Notification{RecipientID: "a", Kind: "anomaly", Title: "t", Message: "m"}
	if err := db.CreateNotification(ctx, n); err != nil {
		t.Fatalf("CreateNotification() error = %v", err)
	}
	if n.ID == "" {
		t.Error("ID not assigned")
	}

	list, err := db.ListNotifications(ctx, "a", true, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].Title != "t" {
		t.Errorf("ListNotifications() = %+v", list)
	}

	if err := db.MarkNotificationRead(ctx, "b", n.ID); !errors.Is(err, ErrNotificationNotFound) {
		t.Errorf("MarkNotificationRead(other recipient) = %v, want ErrNotificationNotFound", err)
	}
	if err := db.MarkNotificationRead(ctx, "a", n.ID); err != nil {
		t.Fatalf("MarkNotificationRead() error = %v", err)
	}
	unread, err := db.ListNotifications(ctx, "a", true, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(unread) != 0 {
		t.Errorf("unread = %d, want 0", len(unread))
	}
}

func TestHoneypotAccess(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if err := db.CreateHoneypot(ctx, &Honeypot{ID: "hp1", Title: "Budget 2027", Active: true}); err != nil {
		t.Fatal(err)
	}
	if err := db.RecordHoneypotAccess(ctx, "hp1", "u9", "10.1.1.1", now); err != nil {
		t.Fatalf("RecordHoneypotAccess() error = %v", err)
	}

	h, err := db.Honeypot(ctx, "hp1")
	if err != nil {
		t.Fatal(err)
	}
	if h.AccessCount != 1 || h.LastAccessedBy != "u9" || h.LastAccessedAt == nil {
		t.Errorf("honeypot after access = %+v", h)
	}

	if err := db.RecordHoneypotAccess(ctx, "missing", "u9", "", now); !errors.Is(err, ErrHoneypotNotFound) {
		t.Errorf("unknown honeypot error = %v, want ErrHoneypotNotFound", err)
	}

	n, err := db.CountHoneypotAccesses(ctx, now.Add(-time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("CountHoneypotAccesses() = %d, want 1", n)
	}
}
