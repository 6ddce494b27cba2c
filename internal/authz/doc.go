// Warden - Behavioral Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

// Package authz authorizes admin API requests using Casbin.
//
// Requests pass through the API's bearer-token middleware, which places a
// Subject in the request context, and then through Middleware, which maps
// the HTTP method to an action and enforces (role, path, action) against the
// policy:
//
//	Request -> JWT middleware -> authz.Middleware -> Handler
//
// # Model
//
//	[request_definition]
//	r = sub, obj, act
//
//	[policy_definition]
//	p = sub, obj, act
//
//	[role_definition]
//	g = _, _
//
//	[policy_effect]
//	e = some(where (p.eft == allow))
//
//	[matchers]
//	m = g(r.sub, p.sub) && keyMatch(r.obj, p.obj) && r.act == p.act
//
// Subjects are the host application's role names (super_admin,
// security_auditor, it_admin, qomita_rahbar) plus "service" for the host
// process reporting honeypot access. Every human role inherits "viewer",
// which can read its own notifications.
//
// # Embedded Policies
//
// model.conf and policy.csv are embedded so the server runs without extra
// files. Setting security.casbin_policy_path switches to a file adapter with
// periodic reload.
//
// # Caching
//
// EnforceRoles caches decisions per (role set, object, action) for the
// configured TTL, so all principals with the same roles share entries. Policy
// edits through the Enforcer reset the cache; a file reload is picked up once
// cached entries expire.
package authz
