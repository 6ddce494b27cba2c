// Warden - Behavioral Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/warden/internal/auth"
	"github.com/tomtom215/warden/internal/authz"
	"github.com/tomtom215/warden/internal/middleware"
	"github.com/tomtom215/warden/internal/websocket"
)

// Router assembles the admin API.
type Router struct {
	handler       *Handler
	chiMiddleware *ChiMiddleware
	authn         *auth.Middleware
	authz         *authz.Middleware
	hub           *websocket.Hub
	wsOrigins     []string
}

// NewRouter wires the handler behind the middleware stack. hub may be nil,
// in which case /api/v1/ws is not mounted.
func NewRouter(handler *Handler, mw *ChiMiddleware, authn *auth.Middleware, authzMw *authz.Middleware, hub *websocket.Hub, wsOrigins []string) *Router {
	if mw == nil {
		mw = NewChiMiddleware(nil)
	}
	return &Router{
		handler:       handler,
		chiMiddleware: mw,
		authn:         authn,
		authz:         authzMw,
		hub:           hub,
		wsOrigins:     wsOrigins,
	}
}

// SetupChi configures all HTTP routes.
func (router *Router) SetupChi() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.Metrics)
	r.Use(AccessLog)
	r.Use(router.chiMiddleware.CORS())

	r.With(APISecurityHeaders()).Get("/health", router.handler.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimit())
		r.Use(APISecurityHeaders())
		r.Use(router.authn.Authenticate)
		r.Use(router.authz.Handler)

		r.Get("/stats", router.handler.Stats)

		r.Route("/anomalies", func(r chi.Router) {
			r.Get("/", router.handler.ListAnomalies)
			r.Get("/{id}", router.handler.GetAnomaly)
			r.Post("/{id}/review", router.handler.ReviewAnomaly)
		})

		r.Route("/rules", func(r chi.Router) {
			r.Get("/", router.handler.ListRules)
			r.Post("/", router.handler.CreateRule)
			r.Get("/{id}", router.handler.GetRule)
			r.Put("/{id}", router.handler.UpdateRule)
			r.Delete("/{id}", router.handler.DeleteRule)
		})

		r.Get("/scan", router.handler.ScanStatus)
		r.With(router.chiMiddleware.RateLimitTrigger()).Post("/scan", router.handler.TriggerScan)

		r.Get("/model", router.handler.ModelStatus)
		r.With(router.chiMiddleware.RateLimitTrigger()).Post("/model/train", router.handler.TriggerTraining)

		r.Post("/honeypots/{id}/access", router.handler.HoneypotAccess)

		r.Get("/audit", router.handler.ListAudit)

		r.Get("/notifications", router.handler.ListNotifications)
		r.Post("/notifications/{id}/read", router.handler.MarkNotificationRead)

		if router.hub != nil {
			r.Get("/ws", websocket.Handler(router.hub, router.wsOrigins, auth.PrincipalID))
		}
	})

	return r
}
