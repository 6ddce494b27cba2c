// Warden - Behavioral Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

/*
Package main is the entry point for the Warden server.

Warden watches principal activity, learns a per-organization baseline with an
isolation forest and flags principals whose recent behavior scores as
anomalous. Findings are persisted, published on the event bus and handed to
the response dispatcher, which notifies administrators and revokes sessions
for critical scores.

# Application Architecture

The server runs under a Suture v4 supervision tree:

	RootSupervisor ("warden")
	├── DetectionSupervisor ("detection-layer")
	│   ├── scan (periodic and on-demand anomaly scans)
	│   ├── training (scheduled model retraining)
	│   ├── alert-rules (threshold rule evaluation)
	│   └── retention (activity log and audit trail purge)
	├── MessagingSupervisor ("messaging-layer")
	│   ├── event-router (response dispatcher and websocket feed)
	│   └── live-feed
	└── APISupervisor ("api-layer")
	    └── admin-api

Component initialization order:

 1. Configuration: Koanf v2 with defaults, config file and environment
 2. Logging: zerolog, bridged to slog for the supervisor
 3. Database: DuckDB with the activity, detection and model config schemas
 4. Model store: file or BadgerDB backend plus the active-model registry
 5. Event bus: in-process GoChannel or NATS JetStream (-tags nats)
 6. Response: notification channels and the dispatcher
 7. Detection: scanner, trainer, alert engine and honeypot manager
 8. HTTP: chi router with JWT authentication and Casbin authorization

# Signal Handling

SIGINT and SIGTERM cancel the root context. Every supervised service stops,
the HTTP server drains in-flight requests and the event bus, model store and
database are closed in that order.

# Example Usage

	export JWT_SECRET=$(openssl rand -base64 48)
	export DUCKDB_PATH=/data/warden.duckdb
	export MODEL_DIR=/data/models
	./warden

Issue an operator token with the CLI:

	wardenctl token --principal ops-1 --role security_auditor
*/
package main
