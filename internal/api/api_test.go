// Warden - Behavioral Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package api

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/warden/internal/audit"
	"github.com/tomtom215/warden/internal/auth"
	"github.com/tomtom215/warden/internal/authz"
	"github.com/tomtom215/warden/internal/config"
	"github.com/tomtom215/warden/internal/database"
	"github.com/tomtom215/warden/internal/detection"
	"github.com/tomtom215/warden/internal/honeypot"
	"github.com/tomtom215/warden/internal/logging"
	"github.com/tomtom215/warden/internal/modelstore"
	"github.com/tomtom215/warden/internal/scan"
	"github.com/tomtom215/warden/internal/training"
)

func init() {
	logging.SetLogger(logging.NewTestLogger(io.Discard))
}

type fakeScan struct {
	queued atomic.Bool
}

func (f *fakeScan) Trigger() bool     { return f.queued.CompareAndSwap(false, true) }
func (f *fakeScan) State() scan.State { return scan.StateIdle }
func (f *fakeScan) LastResult() *scan.CycleResult {
	return &scan.CycleResult{Outcome: "completed", Scanned: 3}
}

type fakeTraining struct {
	queued atomic.Bool
}

func (f *fakeTraining) Trigger() bool { return f.queued.CompareAndSwap(false, true) }
func (f *fakeTraining) LastResult() *training.Result {
	return &training.Result{Outcome: training.OutcomeTrained, Samples: 40}
}

type fakeModels struct{}

func (fakeModels) Active(context.Context, string) (*modelstore.ActiveConfig, error) {
	return &modelstore.ActiveConfig{Kind: "isolation_forest"}, nil
}

func (fakeModels) List(context.Context, string) ([]modelstore.Meta, error) {
	return []modelstore.Meta{{Kind: "isolation_forest", Version: 1}}, nil
}

type fakeHoneypots struct {
	calls []string
}

func (f *fakeHoneypots) RecordAccess(_ context.Context, honeypotID, principalID, _ string) (*honeypot.Access, error) {
	if honeypotID != "hp-1" {
		return nil, database.ErrHoneypotNotFound
	}
	f.calls = append(f.calls, principalID)
	return &honeypot.Access{Honeypot: &database.Honeypot{ID: honeypotID, Active: true, AccessCount: len(f.calls)}, AnomalyID: 7}, nil
}

type fakeAudit struct {
	mu     sync.Mutex
	events []audit.Event
}

func (f *fakeAudit) Log(e *audit.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append([]audit.Event{*e}, f.events...)
}

func (f *fakeAudit) Query(_ context.Context, filter audit.QueryFilter) ([]audit.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []audit.Event
	for _, e := range f.events {
		if len(filter.Types) > 0 && e.Type != filter.Types[0] {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (f *fakeAudit) Count(ctx context.Context, filter audit.QueryFilter) (int64, error) {
	out, err := f.Query(ctx, filter)
	return int64(len(out)), err
}

type testEnv struct {
	server    *httptest.Server
	db        *database.DB
	store     *detection.DuckDBStore
	scan      *fakeScan
	training  *fakeTraining
	honeypots *fakeHoneypots
	audit     *fakeAudit
	jwt       *auth.JWTManager
}

func newTestEnv(t *testing.T, authEnabled bool) *testEnv {
	t.Helper()

	db, err := database.New(&config.DatabaseConfig{Path: ":memory:", Threads: 1})
	if err != nil {
		t.Fatalf("database.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	store := detection.NewDuckDBStore(db.Conn())
	if err := store.InitSchema(context.Background()); err != nil {
		t.Fatalf("InitSchema: %v", err)
	}

	env := &testEnv{
		db:        db,
		store:     store,
		scan:      &fakeScan{},
		training:  &fakeTraining{},
		honeypots: &fakeHoneypots{},
		audit:     &fakeAudit{},
	}

	handler := NewHandler(Deps{
		Anomalies:     store,
		Rules:         store,
		Scan:          env.scan,
		Training:      env.training,
		Models:        fakeModels{},
		Honeypots:     env.honeypots,
		Notifications: db,
		Audit:         env.audit,
		DB:            db,
	}, "isolation_forest")

	sec := &config.SecurityConfig{JWTSecret: "test-secret-with-enough-entropy-0123456789", TokenTTL: time.Hour}
	env.jwt, err = auth.NewJWTManager(sec)
	if err != nil {
		t.Fatalf("NewJWTManager: %v", err)
	}

	enforcer, err := authz.NewEnforcer(authz.DefaultEnforcerConfig())
	if err != nil {
		t.Fatalf("NewEnforcer: %v", err)
	}
	t.Cleanup(enforcer.Close)

	mwCfg := DefaultChiMiddlewareConfig()
	mwCfg.RateLimitDisabled = true

	router := NewRouter(handler, NewChiMiddleware(mwCfg), auth.NewMiddleware(env.jwt, authEnabled), authz.NewMiddleware(enforcer), nil, nil)
	env.server = httptest.NewServer(router.SetupChi())
	t.Cleanup(env.server.Close)
	return env
}

type envelope struct {
	Status   string          `json:"status"`
	Data     json.RawMessage `json:"data"`
	Metadata struct {
		Count *int `json:"count"`
		Total *int `json:"total"`
	} `json:"metadata"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (e *testEnv) do(t *testing.T, method, path, body, token string) (int, *envelope) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, e.server.URL+path, reader)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if len(raw) == 0 || !strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		return resp.StatusCode, nil
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("decode %s %s: %v (%s)", method, path, err, raw)
	}
	return resp.StatusCode, &env
}

func (e *testEnv) seedAnomaly(t *testing.T, principal string, severity detection.Severity) int64 {
	t.Helper()
	rec := &detection.AnomalyRecord{
		PrincipalID: principal,
		Source:      detection.SourceScan,
		Title:       "Anomalous behavior detected: " + principal,
		Score:       0.7,
		Threshold:   0.6,
		Severity:    severity,
		DetectedAt:  time.Now().UTC(),
	}
	if err := e.store.CreateAnomaly(context.Background(), rec); err != nil {
		t.Fatalf("CreateAnomaly: %v", err)
	}
	return rec.ID
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, true)

	status, body := env.do(t, http.MethodGet, "/health", "", "")
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	var health HealthStatus
	if err := json.Unmarshal(body.Data, &health); err != nil {
		t.Fatal(err)
	}
	if !health.DatabaseConnected || health.Status != "healthy" || health.ScanState != "idle" {
		t.Errorf("health = %+v", health)
	}
}

func TestAnomalies_ListGetReview(t *testing.T) {
	env := newTestEnv(t, false)
	id := env.seedAnomaly(t, "u-1", detection.SeverityHigh)
	env.seedAnomaly(t, "u-2", detection.SeverityMedium)

	status, body := env.do(t, http.MethodGet, "/api/v1/anomalies?severity=high", "", "")
	if status != http.StatusOK {
		t.Fatalf("list status = %d", status)
	}
	var list []detection.AnomalyRecord
	if err := json.Unmarshal(body.Data, &list); err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].PrincipalID != "u-1" {
		t.Fatalf("list = %+v, want only u-1", list)
	}
	if body.Metadata.Total == nil || *body.Metadata.Total != 1 {
		t.Errorf("total = %v, want 1", body.Metadata.Total)
	}

	status, _ = env.do(t, http.MethodGet, "/api/v1/anomalies/99999", "", "")
	if status != http.StatusNotFound {
		t.Errorf("missing anomaly status = %d, want 404", status)
	}
	status, _ = env.do(t, http.MethodGet, "/api/v1/anomalies/abc", "", "")
	if status != http.StatusBadRequest {
		t.Errorf("bad id status = %d, want 400", status)
	}

	path := "/api/v1/anomalies/" + itoa(id) + "/review"
	status, body = env.do(t, http.MethodPost, path, `{}`, "")
	if status != http.StatusBadRequest || body.Error == nil || body.Error.Code != CodeValidation {
		t.Fatalf("empty review = %d %+v, want 400 VALIDATION_ERROR", status, body)
	}

	status, body = env.do(t, http.MethodPost, path, `{"false_positive":true}`, "")
	if status != http.StatusOK {
		t.Fatalf("review status = %d", status)
	}
	var rec detection.AnomalyRecord
	if err := json.Unmarshal(body.Data, &rec); err != nil {
		t.Fatal(err)
	}
	if rec.Status != detection.StatusFalsePositive || rec.ReviewedBy != "anonymous" {
		t.Errorf("reviewed = %s by %q", rec.Status, rec.ReviewedBy)
	}
}

func TestAnomalies_InvalidDate(t *testing.T) {
	env := newTestEnv(t, false)
	status, _ := env.do(t, http.MethodGet, "/api/v1/anomalies?start_date=yesterday", "", "")
	if status != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", status)
	}
}

func TestRules_CRUD(t *testing.T) {
	env := newTestEnv(t, false)

	status, body := env.do(t, http.MethodPost, "/api/v1/rules",
		`{"name":"many anomalies","condition":"anomaly_count","threshold":5,"window_minutes":60,"channel":"all"}`, "")
	if status != http.StatusCreated {
		t.Fatalf("create status = %d %+v", status, body)
	}
	var rule detection.AlertRule
	if err := json.Unmarshal(body.Data, &rule); err != nil {
		t.Fatal(err)
	}
	if rule.ID == 0 || !rule.Active || rule.Channel != detection.ChannelAll {
		t.Fatalf("created rule = %+v", rule)
	}
	path := "/api/v1/rules/" + itoa(rule.ID)

	status, body = env.do(t, http.MethodPut, path,
		`{"name":"many anomalies","condition":"anomaly_count","threshold":10,"window_minutes":30,"channel":"email","active":false}`, "")
	if status != http.StatusOK {
		t.Fatalf("update status = %d %+v", status, body)
	}
	if err := json.Unmarshal(body.Data, &rule); err != nil {
		t.Fatal(err)
	}
	if rule.Threshold != 10 || rule.Active || rule.Channel != detection.ChannelEmail {
		t.Errorf("updated rule = %+v", rule)
	}

	status, body = env.do(t, http.MethodGet, "/api/v1/rules?active=true", "", "")
	if status != http.StatusOK || body.Metadata.Count == nil || *body.Metadata.Count != 0 {
		t.Errorf("active rules = %d %+v, want none", status, body)
	}

	if status, _ = env.do(t, http.MethodDelete, path, "", ""); status != http.StatusNoContent {
		t.Errorf("delete status = %d, want 204", status)
	}
	if status, _ = env.do(t, http.MethodGet, path, "", ""); status != http.StatusNotFound {
		t.Errorf("get after delete = %d, want 404", status)
	}
}

func TestRules_Validation(t *testing.T) {
	env := newTestEnv(t, false)

	tests := []struct {
		name string
		body string
	}{
		{"unknown condition", `{"name":"x","condition":"cpu","threshold":1,"channel":"email"}`},
		{"zero threshold", `{"name":"x","condition":"failed_logins","threshold":0,"channel":"email"}`},
		{"unknown channel", `{"name":"x","condition":"failed_logins","threshold":1,"channel":"sms"}`},
		{"window too long", `{"name":"x","condition":"error_rate","threshold":1,"window_minutes":20000,"channel":"email"}`},
		{"unknown field", `{"name":"x","condition":"error_rate","threshold":1,"channel":"email","extra":1}`},
		{"malformed", `{"name":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, _ := env.do(t, http.MethodPost, "/api/v1/rules", tt.body, "")
			if status != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", status)
			}
		})
	}
}

func TestTriggers(t *testing.T) {
	env := newTestEnv(t, false)

	for i, wantQueued := range []bool{true, false} {
		status, body := env.do(t, http.MethodPost, "/api/v1/scan", "", "")
		if status != http.StatusAccepted {
			t.Fatalf("scan trigger %d status = %d", i, status)
		}
		var resp TriggerResponse
		if err := json.Unmarshal(body.Data, &resp); err != nil {
			t.Fatal(err)
		}
		if resp.Queued != wantQueued {
			t.Errorf("scan trigger %d queued = %v, want %v", i, resp.Queued, wantQueued)
		}
	}

	status, _ := env.do(t, http.MethodPost, "/api/v1/model/train", "", "")
	if status != http.StatusAccepted || !env.training.queued.Load() {
		t.Errorf("train trigger status = %d queued = %v", status, env.training.queued.Load())
	}

	status, body := env.do(t, http.MethodGet, "/api/v1/model", "", "")
	if status != http.StatusOK {
		t.Fatalf("model status = %d", status)
	}
	var model ModelStatusResponse
	if err := json.Unmarshal(body.Data, &model); err != nil {
		t.Fatal(err)
	}
	if model.Active == nil || len(model.Versions) != 1 {
		t.Errorf("model = %+v", model)
	}
}

func TestHoneypotAccess(t *testing.T) {
	env := newTestEnv(t, false)

	status, _ := env.do(t, http.MethodPost, "/api/v1/honeypots/hp-1/access", `{"principal_id":"u-9","ip":"10.0.0.8"}`, "")
	if status != http.StatusCreated || len(env.honeypots.calls) != 1 {
		t.Fatalf("status = %d calls = %v", status, env.honeypots.calls)
	}
	if status, _ = env.do(t, http.MethodPost, "/api/v1/honeypots/nope/access", `{"principal_id":"u-9"}`, ""); status != http.StatusNotFound {
		t.Errorf("unknown honeypot status = %d, want 404", status)
	}
	if status, _ = env.do(t, http.MethodPost, "/api/v1/honeypots/hp-1/access", `{"principal_id":"u-9","ip":"not-an-ip"}`, ""); status != http.StatusBadRequest {
		t.Errorf("bad ip status = %d, want 400", status)
	}
	if status, _ = env.do(t, http.MethodPost, "/api/v1/honeypots/hp-1/access", `{}`, ""); status != http.StatusBadRequest {
		t.Errorf("missing principal status = %d, want 400", status)
	}
}

func TestNotifications(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()

	mine := &database.Notification{RecipientID: "admin-1", Kind: "anomaly", Title: "t", Message: "m"}
	if err := env.db.CreateNotification(ctx, mine); err != nil {
		t.Fatal(err)
	}
	if err := env.db.CreateNotification(ctx, &database.Notification{RecipientID: "admin-2", Kind: "anomaly", Title: "t", Message: "m"}); err != nil {
		t.Fatal(err)
	}

	token, err := env.jwt.GenerateToken("admin-1", "admin@example.com", []string{"it_admin"})
	if err != nil {
		t.Fatal(err)
	}

	status, body := env.do(t, http.MethodGet, "/api/v1/notifications?unread=true", "", token)
	if status != http.StatusOK || body.Metadata.Count == nil || *body.Metadata.Count != 1 {
		t.Fatalf("list = %d %+v, want one notification", status, body)
	}

	if status, _ = env.do(t, http.MethodPost, "/api/v1/notifications/"+mine.ID+"/read", "", token); status != http.StatusNoContent {
		t.Fatalf("mark read status = %d, want 204", status)
	}
	if status, _ = env.do(t, http.MethodPost, "/api/v1/notifications/unknown/read", "", token); status != http.StatusNotFound {
		t.Errorf("unknown notification status = %d, want 404", status)
	}

	_, body = env.do(t, http.MethodGet, "/api/v1/notifications?unread=true", "", token)
	if body.Metadata.Count == nil || *body.Metadata.Count != 0 {
		t.Errorf("unread after mark = %v, want 0", body.Metadata.Count)
	}
}

func TestAuthorization(t *testing.T) {
	env := newTestEnv(t, true)

	token := func(roles ...string) string {
		tok, err := env.jwt.GenerateToken("p-1", "p@example.com", roles)
		if err != nil {
			t.Fatal(err)
		}
		return tok
	}

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		token  string
		want   int
	}{
		{"no token", http.MethodGet, "/api/v1/anomalies", "", "", http.StatusUnauthorized},
		{"bad token", http.MethodGet, "/api/v1/anomalies", "", "garbage", http.StatusUnauthorized},
		{"viewer cannot list anomalies", http.MethodGet, "/api/v1/anomalies", "", token(), http.StatusForbidden},
		{"auditor lists anomalies", http.MethodGet, "/api/v1/anomalies", "", token("security_auditor"), http.StatusOK},
		{"auditor cannot scan", http.MethodPost, "/api/v1/scan", "", token("security_auditor"), http.StatusForbidden},
		{"it admin scans", http.MethodPost, "/api/v1/scan", "", token("it_admin"), http.StatusAccepted},
		{"it admin cannot delete rules", http.MethodDelete, "/api/v1/rules/1", "", token("it_admin"), http.StatusForbidden},
		{"leadership reads stats", http.MethodGet, "/api/v1/stats", "", token("qomita_rahbar"), http.StatusOK},
		{"service reports honeypot", http.MethodPost, "/api/v1/honeypots/hp-1/access", `{"principal_id":"u-1"}`, token("service"), http.StatusCreated},
		{"service cannot read anomalies", http.MethodGet, "/api/v1/anomalies", "", token("service"), http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, _ := env.do(t, tt.method, tt.path, tt.body, tt.token)
			if status != tt.want {
				t.Errorf("status = %d, want %d", status, tt.want)
			}
		})
	}
}

func TestStats(t *testing.T) {
	env := newTestEnv(t, false)
	env.seedAnomaly(t, "u-1", detection.SeverityCritical)

	status, body := env.do(t, http.MethodGet, "/api/v1/stats?hours=1", "", "")
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	var stats StatsResponse
	if err := json.Unmarshal(body.Data, &stats); err != nil {
		t.Fatal(err)
	}
	if stats.WindowHours != 1 || stats.Anomalies == nil || stats.ScanState != "idle" {
		t.Errorf("stats = %+v", stats)
	}

	if status, _ = env.do(t, http.MethodGet, "/api/v1/stats?hours=0", "", ""); status != http.StatusBadRequest {
		t.Errorf("hours=0 status = %d, want 400", status)
	}
}

func TestSecurityHeaders(t *testing.T) {
	env := newTestEnv(t, false)
	resp, err := http.Get(env.server.URL + "/api/v1/stats")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	for header, want := range map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Cache-Control":          "no-store",
	} {
		if got := resp.Header.Get(header); got != want {
			t.Errorf("%s = %q, want %q", header, got, want)
		}
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID")
	}
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}

func TestAuditTrail(t *testing.T) {
	env := newTestEnv(t, false)

	code, resp := env.do(t, http.MethodPost, "/api/v1/rules", `{"name":"errors","condition":"error_rate","threshold":20,"channel":"notification"}`, "")
	if code != http.StatusCreated {
		t.Fatalf("create rule = %d", code)
	}
	var rule detection.AlertRule
	if err := json.Unmarshal(resp.Data, &rule); err != nil {
		t.Fatal(err)
	}
	if code, _ := env.do(t, http.MethodDelete, "/api/v1/rules/"+strconv.FormatInt(rule.ID, 10), "", ""); code != http.StatusNoContent {
		t.Fatalf("delete rule = %d", code)
	}
	if code, _ := env.do(t, http.MethodPost, "/api/v1/scan", "", ""); code != http.StatusAccepted {
		t.Fatalf("trigger scan = %d", code)
	}

	code, resp = env.do(t, http.MethodGet, "/api/v1/audit", "", "")
	if code != http.StatusOK {
		t.Fatalf("list audit = %d", code)
	}
	if resp.Metadata.Total == nil || *resp.Metadata.Total != 3 {
		t.Fatalf("total = %v, want 3", resp.Metadata.Total)
	}

	_, resp = env.do(t, http.MethodGet, "/api/v1/audit?type=rule.created", "", "")
	var events []audit.Event
	if err := json.Unmarshal(resp.Data, &events); err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 {
		t.Fatalf("rule.created events = %d, want 1", len(events))
	}
	e := events[0]
	if e.ActorID != "anonymous" || e.Target != "rule:"+strconv.FormatInt(rule.ID, 10) || e.Outcome != audit.OutcomeSuccess {
		t.Errorf("event = %+v", e)
	}
	if len(e.Metadata) == 0 {
		t.Error("rule.created should carry the rule as metadata")
	}

	if code, _ := env.do(t, http.MethodGet, "/api/v1/audit?start_date=yesterday", "", ""); code != http.StatusBadRequest {
		t.Errorf("bad start_date = %d, want 400", code)
	}
}

func TestAuditTrail_Authorization(t *testing.T) {
	env := newTestEnv(t, true)
	for role, want := range map[string]int{
		"security_auditor": http.StatusOK,
		"super_admin":      http.StatusOK,
		"it_admin":         http.StatusForbidden,
		"viewer":           http.StatusForbidden,
	} {
		token, err := env.jwt.GenerateToken("p-"+role, "", []string{role})
		if err != nil {
			t.Fatal(err)
		}
		if code, _ := env.do(t, http.MethodGet, "/api/v1/audit", "", token); code != want {
			t.Errorf("%s: status = %d, want %d", role, code, want)
		}
	}
}
