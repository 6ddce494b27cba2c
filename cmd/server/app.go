// Warden - Behavioral Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/tomtom215/warden/internal/alerting"
	"github.com/tomtom215/warden/internal/anomaly"
	"github.com/tomtom215/warden/internal/api"
	"github.com/tomtom215/warden/internal/audit"
	"github.com/tomtom215/warden/internal/auth"
	"github.com/tomtom215/warden/internal/authz"
	"github.com/tomtom215/warden/internal/config"
	"github.com/tomtom215/warden/internal/database"
	"github.com/tomtom215/warden/internal/detection"
	"github.com/tomtom215/warden/internal/events"
	"github.com/tomtom215/warden/internal/features"
	"github.com/tomtom215/warden/internal/honeypot"
	"github.com/tomtom215/warden/internal/logging"
	"github.com/tomtom215/warden/internal/metrics"
	"github.com/tomtom215/warden/internal/modelstore"
	"github.com/tomtom215/warden/internal/notify"
	"github.com/tomtom215/warden/internal/response"
	"github.com/tomtom215/warden/internal/scan"
	"github.com/tomtom215/warden/internal/supervisor"
	"github.com/tomtom215/warden/internal/supervisor/services"
	"github.com/tomtom215/warden/internal/training"
	ws "github.com/tomtom215/warden/internal/websocket"
)

// app holds the long-lived components built from configuration.
type app struct {
	cfg *config.Config

	db      *database.DB
	models  *modelstore.Store
	bus     *events.Bus
	hub     *ws.Hub
	router  *api.Router
	scanner *scan.Scanner
	trainer *services.TrainingService
	alerts  *alerting.Engine
	audit   *audit.Logger

	dispatcher *response.Dispatcher
}

// modelCatalog joins the active-config table with the stored bundles.
type modelCatalog struct {
	*modelstore.ConfigStore
	*modelstore.Store
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	db, err := database.New(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	a.db = db
	logging.Info().Msg("Database initialized")

	store := detection.NewDuckDBStore(db.Conn())
	if err := store.InitSchema(ctx); err != nil {
		return nil, fmt.Errorf("detection schema: %w", err)
	}

	auditStore := audit.NewDuckDBStore(db.Conn())
	if err := auditStore.CreateTable(ctx); err != nil {
		return nil, fmt.Errorf("audit schema: %w", err)
	}
	a.audit = audit.NewLogger(auditStore, audit.DefaultConfig())

	configs := modelstore.NewConfigStore(db.Conn())
	if err := configs.InitSchema(ctx); err != nil {
		return nil, fmt.Errorf("model config schema: %w", err)
	}

	backend, err := openModelBackend(cfg.Model)
	if err != nil {
		return nil, err
	}
	models, err := modelstore.NewStore(ctx, backend)
	if err != nil {
		_ = backend.Close()
		return nil, fmt.Errorf("model store: %w", err)
	}
	a.models = models
	registry := modelstore.NewRegistry(models, configs)
	logging.Info().Str("backend", cfg.Model.Backend).Str("dir", cfg.Model.Dir).Msg("Model store initialized")

	bus, err := events.New(cfg.Events, logging.WithComponent("events"))
	if err != nil {
		return nil, fmt.Errorf("event bus: %w", err)
	}
	a.bus = bus

	bands := response.Bands{
		Warning:  cfg.Response.WarningThreshold,
		Critical: cfg.Response.CriticalThreshold,
	}

	notifier, err := notify.FromConfig(cfg, db, db, logging.WithComponent("notify"))
	if err != nil {
		return nil, fmt.Errorf("notification channels: %w", err)
	}
	external := cfg.Response.ExternalChannel
	if external != "" && !notifier.Has(external) {
		logging.Warn().Str("channel", external).Msg("External alert channel is not enabled, anomaly alerts stay in-app")
		external = ""
	}
	a.dispatcher = response.NewDispatcher(response.Config{
		Bands:           bands,
		AdminRoles:      cfg.Response.AdminRoles,
		SecurityRoles:   cfg.Alerting.SecurityRoles,
		ExternalChannel: external,
	}, db, notifier, logging.Logger())
	logging.Info().Strs("channels", notifier.Names()).Msg("Response dispatcher initialized")

	extractor := features.NewExtractor(db, db, db, features.WithHistory(store))

	a.scanner = scan.NewScanner(scan.Config{
		Kind:        cfg.Model.Kind,
		Window:      cfg.Scan.Window,
		DedupWindow: cfg.Scan.DedupWindow,
		Timeout:     cfg.Scan.Timeout,
		Threshold:   cfg.Scan.Threshold,
		Tiers:       scan.Tiers{High: cfg.Scan.HighMultiplier, Critical: cfg.Scan.CriticalMultiplier},
		Bands:       bands,
		TopFeatures: cfg.Scan.TopFeatures,
		QueueSize:   cfg.Scan.QueueSize,
	}, scan.Deps{
		Models:     registry,
		Principals: db,
		Extractor:  extractor,
		Anomalies:  store,
		Publisher:  bus,
	}, logging.Logger())

	params := anomaly.Params{
		Trees:         cfg.Model.Trees,
		MaxSamples:    cfg.Model.MaxSamples,
		Contamination: cfg.Model.Contamination,
		Seed:          cfg.Model.Seed,
	}
	trainer := training.NewTrainer(params, cfg.Model.MinSamples, training.RunConfig{
		Kind:           cfg.Model.Kind,
		Window:         cfg.Training.Window,
		FeedbackWindow: cfg.Training.FeedbackWindow,
		Timeout:        cfg.Training.Timeout,
		KeepVersions:   cfg.Model.KeepVersions,
	}, training.Deps{
		Principals: db,
		Extractor:  extractor,
		Feedback:   store,
		Models:     models,
		Configs:    configs,
		Registry:   registry,
	})
	if cfg.Training.Enabled {
		a.trainer = services.NewTrainingService(trainer, services.TrainingServiceConfig{
			TrainOnStartup: cfg.Training.TrainOnStartup,
			Interval:       cfg.Training.Interval,
		}, logging.Logger())
	}

	a.alerts = alerting.NewEngine(alerting.Config{
		RateLimit: cfg.Alerting.RateLimitWindow,
		Timeout:   cfg.Alerting.Timeout,
	}, alerting.Deps{
		Rules:     store,
		Anomalies: store,
		Activity:  db,
		Publisher: bus,
	}, logging.Logger())

	honeypots := honeypot.NewManager(honeypot.Config{
		Bands:          bands,
		RevokeOnAccess: cfg.Response.HoneypotRevoke,
	}, db, db, store, bus, logging.Logger())

	a.hub = ws.NewHub()

	router, err := a.newRouter(api.Deps{
		Anomalies:     store,
		Rules:         store,
		Scan:          a.scanner,
		Models:        modelCatalog{ConfigStore: configs, Store: models},
		Honeypots:     honeypots,
		Notifications: db,
		Audit:         a.audit,
		DB:            db,
	})
	if err != nil {
		return nil, err
	}
	a.router = router

	ok = true
	return a, nil
}

func openModelBackend(cfg config.ModelConfig) (modelstore.Backend, error) {
	switch cfg.Backend {
	case "", "file":
		b, err := modelstore.NewFileBackend(cfg.Dir)
		if err != nil {
			return nil, fmt.Errorf("model file backend: %w", err)
		}
		return b, nil
	case "badger":
		b, err := modelstore.OpenBadgerBackend(cfg.Dir)
		if err != nil {
			return nil, fmt.Errorf("model badger backend: %w", err)
		}
		return b, nil
	default:
		return nil, fmt.Errorf("unknown model backend %q", cfg.Backend)
	}
}

func (a *app) newRouter(deps api.Deps) (*api.Router, error) {
	if a.trainer != nil {
		deps.Training = a.trainer
	}

	var jwtManager *auth.JWTManager
	if a.cfg.Security.AuthEnabled {
		m, err := auth.NewJWTManager(&a.cfg.Security)
		if err != nil {
			return nil, fmt.Errorf("jwt: %w", err)
		}
		jwtManager = m
	}
	enforcer, err := authz.NewEnforcer(authz.ConfigFromSecurity(a.cfg.Security))
	if err != nil {
		return nil, fmt.Errorf("authorization: %w", err)
	}

	authzMw := authz.NewMiddleware(enforcer)
	authzMw.OnDenied(func(r *http.Request, _ *authz.Subject, object, action string) {
		a.audit.Log(audit.FromRequest(r, audit.EventTypeAuthzDenied, object, action+" denied").Failed())
	})

	handler := api.NewHandler(deps, a.cfg.Model.Kind)
	mw := api.NewChiMiddleware(api.ChiMiddlewareConfigFromSecurity(&a.cfg.Security))
	return api.NewRouter(
		handler,
		mw,
		auth.NewMiddleware(jwtManager, a.cfg.Security.AuthEnabled),
		authzMw,
		a.hub,
		a.cfg.Security.CORSOrigins,
	), nil
}

// eventRouter builds a fresh watermill router on every (re)start so that a
// restarted service gets new subscriptions.
func (a *app) eventRouter() (*message.Router, error) {
	r, err := events.NewRouter(events.DefaultRouterConfig(), a.bus.Logger())
	if err != nil {
		return nil, err
	}

	respSub, err := a.bus.Subscriber("response")
	if err != nil {
		return nil, fmt.Errorf("response subscriber: %w", err)
	}
	response.NewSubscriber(a.dispatcher, logging.Logger()).Register(r, respSub)

	feedSub, err := a.bus.Subscriber("websocket")
	if err != nil {
		return nil, fmt.Errorf("websocket subscriber: %w", err)
	}
	ws.NewFeed(a.hub, logging.Logger()).Register(r, feedSub)

	return r, nil
}

// purgeExpired applies the retention windows to activity logs and the audit
// trail. A zero window keeps rows forever.
func (a *app) purgeExpired(ctx context.Context) error {
	now := time.Now()
	purges := []struct {
		table  string
		maxAge time.Duration
		purge  func(context.Context, time.Time) (int64, error)
	}{
		{"activity_logs", a.cfg.Retention.ActivityMaxAge, a.db.PurgeActivityBefore},
		{"audit_events", a.cfg.Retention.AuditMaxAge, a.audit.Purge},
	}

	var errs []error
	for _, p := range purges {
		if p.maxAge <= 0 {
			continue
		}
		cutoff := now.Add(-p.maxAge)
		n, err := p.purge(ctx, cutoff)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p.table, err))
			continue
		}
		metrics.RecordRetentionPurge(p.table, n)
		if n > 0 {
			logging.Info().Str("table", p.table).Int64("rows", n).Time("cutoff", cutoff).Msg("Purged expired rows")
		}
	}
	return errors.Join(errs...)
}

func (a *app) checkRules(ctx context.Context) error {
	_, err := a.alerts.Check(ctx)
	return err
}

// addServices registers every long-running component with the tree.
func (a *app) addServices(tree *supervisor.SupervisorTree, server *http.Server) {
	logger := logging.Logger()
	cfg := a.cfg

	if cfg.Scan.Enabled {
		tree.AddDetectionService(services.NewScanService(a.scanner, a.hub, cfg.Scan.Interval, logger))
	} else {
		logging.Info().Msg("Scheduled scans disabled (SCAN_ENABLED=false)")
	}
	if a.trainer != nil {
		tree.AddDetectionService(a.trainer)
	} else {
		logging.Info().Msg("Scheduled training disabled (TRAIN_ENABLED=false)")
	}
	if cfg.Alerting.Enabled {
		tree.AddDetectionService(services.NewPeriodicService("alert-rules", cfg.Alerting.Interval, cfg.Alerting.Timeout, false, a.checkRules, logger))
	}
	if cfg.Retention.Enabled {
		tree.AddDetectionService(services.NewPeriodicService("retention", cfg.Retention.Interval, 0, true, a.purgeExpired, logger))
	}

	tree.AddMessagingService(services.NewEventRouterService(a.eventRouter))
	tree.AddMessagingService(services.NewFuncService("live-feed", a.hub.RunWithContext))

	tree.AddAPIService(services.NewAPIService(server, server.Addr, cfg.Server.ShutdownTimeout, logger))
}

// Close releases the bus, audit writer, model store and database in that
// order.
func (a *app) Close() {
	closeLogged := func(name string, fn func() error) {
		if err := fn(); err != nil {
			logging.Error().Err(err).Str("component", name).Msg("Error during shutdown")
		}
	}
	if a.bus != nil {
		closeLogged("events", a.bus.Close)
	}
	if a.audit != nil {
		closeLogged("audit", a.audit.Close)
	}
	if a.models != nil {
		closeLogged("modelstore", a.models.Close)
	}
	if a.db != nil {
		closeLogged("database", a.db.Close)
	}
}
