// Warden - Behavioral Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/warden/internal/audit"
	"github.com/tomtom215/warden/internal/auth"
	"github.com/tomtom215/warden/internal/database"
	"github.com/tomtom215/warden/internal/modelstore"
)

// TriggerResponse acknowledges an enqueued control action.
type TriggerResponse struct {
	Queued  bool   `json:"queued"`
	Message string `json:"message"`
}

// TriggerScan handles POST /api/v1/scan. The scan runs in the scan service;
// this only enqueues it. A scan already queued is reported, not duplicated.
func (h *Handler) TriggerScan(w http.ResponseWriter, r *http.Request) {
	if h.deps.Scan == nil {
		respondError(w, http.StatusServiceUnavailable, CodeUnavailable, "Scanning is disabled", nil)
		return
	}
	resp := TriggerResponse{Queued: h.deps.Scan.Trigger(), Message: "scan queued"}
	if !resp.Queued {
		resp.Message = "a scan is already queued"
	}
	h.audit(audit.FromRequest(r, audit.EventTypeScanTriggered, "scan", resp.Message))
	respondData(w, http.StatusAccepted, resp)
}

// ScanStatus handles GET /api/v1/scan.
func (h *Handler) ScanStatus(w http.ResponseWriter, _ *http.Request) {
	if h.deps.Scan == nil {
		respondError(w, http.StatusServiceUnavailable, CodeUnavailable, "Scanning is disabled", nil)
		return
	}
	respondData(w, http.StatusOK, map[string]interface{}{
		"state":       h.deps.Scan.State(),
		"last_result": h.deps.Scan.LastResult(),
	})
}

// TriggerTraining handles POST /api/v1/model/train.
func (h *Handler) TriggerTraining(w http.ResponseWriter, r *http.Request) {
	if h.deps.Training == nil {
		respondError(w, http.StatusServiceUnavailable, CodeUnavailable, "Training is disabled", nil)
		return
	}
	resp := TriggerResponse{Queued: h.deps.Training.Trigger(), Message: "training queued"}
	if !resp.Queued {
		resp.Message = "training is already queued"
	}
	h.audit(audit.FromRequest(r, audit.EventTypeTrainingTriggered, "model:"+h.modelKind, resp.Message))
	respondData(w, http.StatusAccepted, resp)
}

// ModelStatusResponse is the /model payload.
type ModelStatusResponse struct {
	Kind         string                   `json:"kind"`
	Active       *modelstore.ActiveConfig `json:"active"`
	Versions     []modelstore.Meta        `json:"versions"`
	LastTraining interface{}              `json:"last_training,omitempty"`
}

// ModelStatus handles GET /api/v1/model.
func (h *Handler) ModelStatus(w http.ResponseWriter, r *http.Request) {
	if h.deps.Models == nil {
		respondError(w, http.StatusServiceUnavailable, CodeUnavailable, "Model store unavailable", nil)
		return
	}
	active, err := h.deps.Models.Active(r.Context(), h.modelKind)
	if err != nil {
		respondError(w, http.StatusInternalServerError, CodeInternal, "Failed to read active model", err)
		return
	}
	versions, err := h.deps.Models.List(r.Context(), h.modelKind)
	if err != nil {
		respondError(w, http.StatusInternalServerError, CodeInternal, "Failed to list model versions", err)
		return
	}
	if versions == nil {
		versions = []modelstore.Meta{}
	}

	out := ModelStatusResponse{Kind: h.modelKind, Active: active, Versions: versions}
	if h.deps.Training != nil {
		if last := h.deps.Training.LastResult(); last != nil {
			out.LastTraining = last
		}
	}
	respondData(w, http.StatusOK, out)
}

// HoneypotAccessRequest reports a decoy access.
type HoneypotAccessRequest struct {
	PrincipalID string `json:"principal_id" validate:"required,max=200"`
	IP          string `json:"ip,omitempty" validate:"omitempty,ip"`
}

// HoneypotAccess handles POST /api/v1/honeypots/{id}/access.
func (h *Handler) HoneypotAccess(w http.ResponseWriter, r *http.Request) {
	if h.deps.Honeypots == nil {
		respondError(w, http.StatusServiceUnavailable, CodeUnavailable, "Honeypots are disabled", nil)
		return
	}
	var req HoneypotAccessRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	honeypotID := chi.URLParam(r, "id")
	access, err := h.deps.Honeypots.RecordAccess(r.Context(), honeypotID, req.PrincipalID, req.IP)
	if errors.Is(err, database.ErrHoneypotNotFound) {
		h.audit(audit.FromRequest(r, audit.EventTypeHoneypotReported, "honeypot:"+honeypotID, "unknown honeypot reported").Failed())
		respondError(w, http.StatusNotFound, CodeNotFound, "Honeypot not found", nil)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, CodeInternal, "Failed to record honeypot access", err)
		return
	}
	h.audit(audit.FromRequest(r, audit.EventTypeHoneypotReported, "honeypot:"+honeypotID, "honeypot access reported").
		WithMetadata(map[string]string{"principal_id": req.PrincipalID, "ip": req.IP}))
	respondData(w, http.StatusCreated, access)
}

// ListNotifications handles GET /api/v1/notifications?unread=true&limit=N
// for the calling principal.
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	recipient := auth.PrincipalID(r)
	list, err := h.deps.Notifications.ListNotifications(r.Context(), recipient,
		r.URL.Query().Get("unread") == "true", getIntParam(r, "limit", 50))
	if err != nil {
		respondError(w, http.StatusInternalServerError, CodeInternal, "Failed to list notifications", err)
		return
	}
	if list == nil {
		list = []database.Notification{}
	}
	respondList(w, list, len(list), len(list))
}

// MarkNotificationRead handles POST /api/v1/notifications/{id}/read.
func (h *Handler) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	err := h.deps.Notifications.MarkNotificationRead(r.Context(), auth.PrincipalID(r), chi.URLParam(r, "id"))
	if errors.Is(err, database.ErrNotificationNotFound) {
		respondError(w, http.StatusNotFound, CodeNotFound, "Notification not found", nil)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, CodeInternal, "Failed to update notification", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
