// Warden - Behavioral Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

/*
Package supervisor provides the suture supervisor tree that runs every
long-lived component of the engine.

Tree Structure:

	warden (root)
	├── detection-layer
	│   ├── scan-service        (15m ticker + manual triggers)
	│   ├── training-service    (24h ticker, optional startup run)
	│   ├── alert-rules         (5m ticker)
	│   └── retention           (7d ticker)
	├── messaging-layer
	│   ├── event-router        (response dispatcher + websocket feed)
	│   └── live-feed
	└── api-layer
	    └── admin-api

Each layer is its own supervisor, so a service stuck in a restart loop only
backs off its own layer.

Restart Policy:

FailureThreshold failures decaying at FailureDecay per second put a
supervisor into backoff for FailureBackoff. ShutdownTimeout bounds how long
each service has to return after its context is canceled; services that
miss it are listed by UnstoppedServiceReport.

Logging:

Supervisor events (panics, restarts, backoff) go through sutureslog to the
slog bridge of the logging package, so they land in the same zerolog stream
as everything else.

Usage:

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddDetectionService(services.NewScanService(scanner, hub, cfg.Scan.Interval, logger))
	tree.AddMessagingService(services.NewFuncService("live-feed", hub.RunWithContext))
	tree.AddAPIService(services.NewAPIService(server, server.Addr, cfg.Server.ShutdownTimeout, logger))
	errCh := tree.ServeBackground(ctx)
*/
package supervisor
