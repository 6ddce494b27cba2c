// Warden - Behavioral Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package authz

import (
	"net/http"
	"strings"

	"github.com/tomtom215/warden/internal/logging"
	"github.com/tomtom215/warden/internal/metrics"
)

// Middleware enforces the policy on API requests.
type Middleware struct {
	enforcer *Enforcer
	onDenied DeniedFunc
}

// DeniedFunc observes a rejected request.
type DeniedFunc func(r *http.Request, subject *Subject, object, action string)

// NewMiddleware creates a new authorization middleware.
func NewMiddleware(enforcer *Enforcer) *Middleware {
	return &Middleware{enforcer: enforcer}
}

// OnDenied registers fn to run for every request answered with 403.
func (m *Middleware) OnDenied(fn DeniedFunc) {
	m.onDenied = fn
}

// Handler authorizes each request by its path and method. Requests without a
// Subject are rejected with 401.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.authorize(w, r, strings.TrimRight(r.URL.Path, "/"), methodToAction(r.Method), next)
	})
}

// Require authorizes every request against a fixed object and action.
func (m *Middleware) Require(object, action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m.authorize(w, r, object, action, next)
		})
	}
}

func (m *Middleware) authorize(w http.ResponseWriter, r *http.Request, object, action string, next http.Handler) {
	subject := SubjectFromContext(r.Context())
	if subject == nil {
		http.Error(w, "Unauthorized: no authentication context", http.StatusUnauthorized)
		return
	}

	allowed, err := m.enforcer.EnforceRoles(subject.Roles, object, action)
	if err != nil {
		logging.Error().Err(err).Str("subject", subject.ID).Msg("Authorization error")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	metrics.RecordAuthzDecision(allowed)

	if !allowed {
		logging.Ctx(r.Context()).Debug().
			Str("subject", subject.ID).
			Strs("roles", subject.Roles).
			Str("object", object).
			Str("action", action).
			Msg("Authorization denied")
		if m.onDenied != nil {
			m.onDenied(r, subject, object, action)
		}
		http.Error(w, "Forbidden: insufficient permissions", http.StatusForbidden)
		return
	}
	next.ServeHTTP(w, r)
}

// methodToAction maps HTTP methods to Casbin actions.
func methodToAction(method string) string {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return ActionWrite
	case http.MethodDelete:
		return ActionDelete
	default:
		return ActionRead
	}
}
