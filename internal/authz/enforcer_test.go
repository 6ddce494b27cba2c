// Warden - Behavioral Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package authz

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestEnforcer(t *testing.T, cfg *EnforcerConfig) *Enforcer {
	t.Helper()
	e, err := NewEnforcer(cfg)
	if err != nil {
		t.Fatalf("NewEnforcer() error = %v", err)
	}
	t.Cleanup(e.Close)
	return e
}

func TestEmbeddedPolicy(t *testing.T) {
	e := newTestEnforcer(t, nil)

	tests := []struct {
		role   string
		object string
		action string
		want   bool
	}{
		{"super_admin", "/api/v1/rules/4", ActionDelete, true},
		{"super_admin", "/api/v1/model/train", ActionWrite, true},
		{"security_auditor", "/api/v1/anomalies", ActionRead, true},
		{"security_auditor", "/api/v1/anomalies/12/review", ActionWrite, true},
		{"security_auditor", "/api/v1/rules", ActionWrite, true},
		{"security_auditor", "/api/v1/scan", ActionWrite, false},
		{"it_admin", "/api/v1/scan", ActionWrite, true},
		{"it_admin", "/api/v1/model/train", ActionWrite, true},
		{"it_admin", "/api/v1/anomalies/3/review", ActionWrite, false},
		{"it_admin", "/api/v1/rules/1", ActionDelete, false},
		{"qomita_rahbar", "/api/v1/anomalies/3/review", ActionWrite, true},
		{"qomita_rahbar", "/api/v1/rules", ActionRead, false},
		{"qomita_rahbar", "/api/v1/notifications", ActionRead, true},
		{"service", "/api/v1/honeypots/hp-1/access", ActionWrite, true},
		{"service", "/api/v1/anomalies", ActionRead, false},
		{"viewer", "/api/v1/notifications", ActionRead, true},
		{"viewer", "/api/v1/stats", ActionRead, false},
		{"unknown", "/api/v1/stats", ActionRead, false},
	}
	for _, tt := range tests {
		t.Run(tt.role+" "+tt.action+" "+tt.object, func(t *testing.T) {
			got, err := e.Enforce(tt.role, tt.object, tt.action)
			if err != nil {
				t.Fatalf("Enforce() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Enforce() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEnforceRoles(t *testing.T) {
	e := newTestEnforcer(t, nil)

	allowed, err := e.EnforceRoles([]string{"qomita_rahbar", "it_admin"}, "/api/v1/scan", ActionWrite)
	if err != nil || !allowed {
		t.Errorf("any matching role should allow: %v, %v", allowed, err)
	}

	// No roles falls back to viewer.
	allowed, err = e.EnforceRoles(nil, "/api/v1/notifications", ActionRead)
	if err != nil || !allowed {
		t.Errorf("default role should read notifications: %v, %v", allowed, err)
	}
	allowed, _ = e.EnforceRoles(nil, "/api/v1/anomalies", ActionRead) //nolint:errcheck // checked above
	if allowed {
		t.Error("default role should not read anomalies")
	}
}

func TestPolicyChangesClearCache(t *testing.T) {
	e := newTestEnforcer(t, &EnforcerConfig{CacheTTL: time.Minute})
	roles := []string{"auditor_lite"}

	if ok, _ := e.EnforceRoles(roles, "/api/v1/stats", ActionRead); ok { //nolint:errcheck // decision only
		t.Fatal("unexpected allow before policy change")
	}
	if _, err := e.AddPolicy("auditor_lite", "/api/v1/stats", ActionRead); err != nil {
		t.Fatal(err)
	}
	if ok, _ := e.EnforceRoles(roles, "/api/v1/stats", ActionRead); !ok { //nolint:errcheck // decision only
		t.Error("cached deny survived AddPolicy")
	}
	if _, err := e.RemovePolicy("auditor_lite", "/api/v1/stats", ActionRead); err != nil {
		t.Fatal(err)
	}
	if ok, _ := e.EnforceRoles(roles, "/api/v1/stats", ActionRead); ok { //nolint:errcheck // decision only
		t.Error("cached allow survived RemovePolicy")
	}
}

func TestEnforceRoles_CacheSharedAcrossRoleOrder(t *testing.T) {
	e := newTestEnforcer(t, &EnforcerConfig{CacheTTL: time.Minute, DefaultRole: "viewer"})

	for _, roles := range [][]string{
		{"analyst", "it_admin"},
		{"it_admin", "analyst"},
		{"it_admin", "analyst", "analyst"},
	} {
		if _, err := e.EnforceRoles(roles, "/api/v1/anomalies", ActionRead); err != nil {
			t.Fatal(err)
		}
	}
	if n := e.cache.size(); n != 1 {
		t.Errorf("cache entries = %d, want 1 for one role set", n)
	}

	if _, err := e.EnforceRoles(nil, "/api/v1/anomalies", ActionRead); err != nil {
		t.Fatal(err)
	}
	if n := e.cache.size(); n != 2 {
		t.Errorf("cache entries = %d, want 2 after the default role", n)
	}
}

func TestDecisionCache_Expiry(t *testing.T) {
	c := newDecisionCache(time.Minute)
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	k := decisionKey{roles: roleSet([]string{"analyst"}), object: "/api/v1/scan", action: ActionWrite}

	c.set(k, true)
	if allowed, ok := c.get(k); !ok || !allowed {
		t.Fatalf("get = %v, %v; want cached allow", allowed, ok)
	}
	now = now.Add(2 * time.Minute)
	if _, ok := c.get(k); ok {
		t.Error("expired decision still served")
	}
	if c.size() != 0 {
		t.Error("expired decision not removed on read")
	}
}

func TestDecisionCache_BoundedSize(t *testing.T) {
	c := newDecisionCache(time.Minute)
	for i := 0; i <= maxCachedDecisions; i++ {
		c.set(decisionKey{roles: "analyst", object: fmt.Sprintf("/api/v1/anomalies/%d", i), action: ActionRead}, true)
	}
	if n := c.size(); n > maxCachedDecisions {
		t.Errorf("cache grew to %d entries", n)
	}
}

func TestPolicyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.csv")
	policy := "p, analyst, /api/v1/stats, read\n"
	if err := os.WriteFile(path, []byte(policy), 0o600); err != nil {
		t.Fatal(err)
	}

	e := newTestEnforcer(t, &EnforcerConfig{PolicyPath: path})
	if ok, err := e.Enforce("analyst", "/api/v1/stats", ActionRead); err != nil || !ok {
		t.Errorf("file policy not loaded: %v, %v", ok, err)
	}
	if ok, _ := e.Enforce("super_admin", "/api/v1/stats", ActionRead); ok { //nolint:errcheck // decision only
		t.Error("embedded policy should not apply with a policy file")
	}
	if err := e.LoadPolicy(); err != nil {
		t.Errorf("LoadPolicy() error = %v", err)
	}
}

func TestNewEnforcer_MissingPolicyFile(t *testing.T) {
	if _, err := NewEnforcer(&EnforcerConfig{PolicyPath: "/nonexistent/policy.csv"}); err == nil {
		t.Error("expected error for missing policy file")
	}
}

func TestLoadPolicy_Embedded(t *testing.T) {
	e := newTestEnforcer(t, nil)
	if err := e.LoadPolicy(); !errors.Is(err, ErrNoAdapter) {
		t.Errorf("LoadPolicy() = %v, want ErrNoAdapter", err)
	}
}

func TestDecisionCache_KeysByAction(t *testing.T) {
	c := newDecisionCache(time.Minute)
	read := decisionKey{roles: roleSet([]string{"viewer"}), object: "/api/v1/notifications", action: ActionRead}
	write := read
	write.action = ActionWrite

	c.set(read, true)
	if allowed, ok := c.get(read); !ok || !allowed {
		t.Errorf("get(read) = %v, %v", allowed, ok)
	}
	if _, ok := c.get(write); ok {
		t.Error("unexpected hit for other action")
	}
	c.reset()
	if _, ok := c.get(read); ok {
		t.Error("entry survived reset")
	}
}
