// Warden - Behavioral Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

/*
Package api provides the admin HTTP API using the Chi router.

The API is read-mostly: it lists and reviews anomaly records, manages alert
rules, reports model and scan status, and accepts two control actions (manual
scan, manual training) that only enqueue work for the supervised services and
return 202 Accepted. It also receives honeypot access reports from the host
application and serves the live websocket feed.

Middleware Stack:

	RequestID -> RealIP -> Recoverer -> metrics -> access log -> CORS
	  /api/v1: rate limit -> security headers -> Authenticate (JWT) -> Authorize (Casbin)

Control endpoints (scan, train) carry an extra, stricter per-IP rate limit.

Endpoints:

	GET    /health
	GET    /metrics
	GET    /api/v1/stats
	GET    /api/v1/anomalies
	GET    /api/v1/anomalies/{id}
	POST   /api/v1/anomalies/{id}/review
	GET    /api/v1/rules
	POST   /api/v1/rules
	GET    /api/v1/rules/{id}
	PUT    /api/v1/rules/{id}
	DELETE /api/v1/rules/{id}
	POST   /api/v1/scan
	GET    /api/v1/scan
	GET    /api/v1/model
	POST   /api/v1/model/train
	POST   /api/v1/honeypots/{id}/access
	GET    /api/v1/notifications
	POST   /api/v1/notifications/{id}/read
	GET    /api/v1/ws

Responses use a common envelope:

	{"status": "success", "data": {...}, "metadata": {"timestamp": "..."}}
	{"status": "error", "error": {"code": "...", "message": "..."}, ...}
*/
package api
