// Warden - Behavioral Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

/*
Package middleware provides the infrastructure HTTP middleware shared by the
admin API: request ID propagation and Prometheus request instrumentation.

Both are chi-compatible (func(http.Handler) http.Handler) and sit outside the
authentication and authorization layers, so rejected requests are still
counted and traceable:

	r.Use(middleware.RequestID)
	r.Use(middleware.Metrics)
	r.Use(authMiddleware.Authenticate)
	r.Use(authzMiddleware.Handler)

Request IDs:

An incoming X-Request-ID header is kept; otherwise a UUIDv4 is generated. The
ID is echoed in the response and stored in the logging context together with
a fresh correlation ID, so logging.Ctx(r.Context()) carries both fields.

Metrics:

Requests are labelled by chi route pattern (/api/v1/anomalies/{id}) rather
than raw path, which keeps label cardinality bounded. Requests that match no
route are labelled "unmatched".
*/
package middleware
