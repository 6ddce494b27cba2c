// Warden - Behavioral Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/tomtom215/warden/internal/authz"
	"github.com/tomtom215/warden/internal/logging"
)

var (
	errMissingToken = errors.New("unauthorized: missing token")
	errBadHeader    = errors.New("unauthorized: invalid authorization header")
)

// Middleware authenticates API requests.
type Middleware struct {
	jwtManager *JWTManager
	enabled    bool
}

// NewMiddleware returns a middleware. With enabled false every request runs
// as an anonymous super_admin, which is meant for local development only.
func NewMiddleware(jwtManager *JWTManager, enabled bool) *Middleware {
	return &Middleware{jwtManager: jwtManager, enabled: enabled}
}

var anonymous = &authz.Subject{ID: "anonymous", Roles: []string{"super_admin"}}

// Authenticate places the caller's authz.Subject in the request context or
// rejects the request with 401.
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.enabled {
			next.ServeHTTP(w, r.WithContext(authz.WithSubject(r.Context(), anonymous)))
			return
		}

		token, err := extractToken(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}

		claims, err := m.jwtManager.ValidateToken(token)
		if err != nil {
			logging.Ctx(r.Context()).Warn().Err(err).Str("path", r.URL.Path).Msg("Token validation failed")
			http.Error(w, "Unauthorized: invalid token", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r.WithContext(authz.WithSubject(r.Context(), claims.Subject())))
	})
}

// PrincipalID returns the authenticated caller of r, or "".
func PrincipalID(r *http.Request) string {
	if s := authz.SubjectFromContext(r.Context()); s != nil {
		return s.ID
	}
	return ""
}

// extractToken reads a bearer token from the Authorization header, or from
// the access_token query parameter for websocket upgrades, which cannot set
// headers from a browser.
func extractToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		if t := r.URL.Query().Get("access_token"); t != "" && isUpgrade(r) {
			return t, nil
		}
		return "", errMissingToken
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", errBadHeader
	}
	return parts[1], nil
}

func isUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}
