// Warden - Behavioral Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/warden/internal/audit"
	"github.com/tomtom215/warden/internal/detection"
)

// RuleRequest is the body of rule create and update.
type RuleRequest struct {
	Name          string  `json:"name" validate:"required,max=200"`
	Condition     string  `json:"condition" validate:"required,oneof=anomaly_count failed_logins error_rate honeypot_access"`
	Threshold     float64 `json:"threshold" validate:"gt=0"`
	WindowMinutes int     `json:"window_minutes" validate:"min=0,max=10080"`
	Channel       string  `json:"channel" validate:"required,oneof=notification email telegram webhook all"`
	Active        *bool   `json:"active,omitempty"`
}

func (req *RuleRequest) apply(rule *detection.AlertRule) {
	rule.Name = req.Name
	rule.Condition = detection.Condition(req.Condition)
	rule.Threshold = req.Threshold
	rule.WindowMinutes = req.WindowMinutes
	rule.Channel = detection.Channel(req.Channel)
	if req.Active != nil {
		rule.Active = *req.Active
	}
}

// ListRules handles GET /api/v1/rules?active=true.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.deps.Rules.ListRules(r.Context(), r.URL.Query().Get("active") == "true")
	if err != nil {
		respondError(w, http.StatusInternalServerError, CodeInternal, "Failed to list rules", err)
		return
	}
	if rules == nil {
		rules = []detection.AlertRule{}
	}
	respondList(w, rules, len(rules), len(rules))
}

// CreateRule handles POST /api/v1/rules. New rules are active unless the
// body says otherwise.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	var req RuleRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	rule := &detection.AlertRule{Active: true}
	req.apply(rule)
	if err := h.deps.Rules.CreateRule(r.Context(), rule); err != nil {
		respondError(w, http.StatusInternalServerError, CodeInternal, "Failed to create rule", err)
		return
	}
	h.audit(audit.FromRequest(r, audit.EventTypeRuleCreated, ruleTarget(rule.ID), "alert rule created").WithMetadata(rule))
	respondData(w, http.StatusCreated, rule)
}

// GetRule handles GET /api/v1/rules/{id}.
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(chi.URLParam(r, "id"))
	if !ok {
		respondError(w, http.StatusBadRequest, CodeValidation, "id must be a positive integer", nil)
		return
	}
	rule, err := h.deps.Rules.GetRule(r.Context(), id)
	if h.ruleError(w, err, "Failed to get rule") {
		return
	}
	respondData(w, http.StatusOK, rule)
}

// UpdateRule handles PUT /api/v1/rules/{id}.
func (h *Handler) UpdateRule(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(chi.URLParam(r, "id"))
	if !ok {
		respondError(w, http.StatusBadRequest, CodeValidation, "id must be a positive integer", nil)
		return
	}
	var req RuleRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	rule, err := h.deps.Rules.GetRule(r.Context(), id)
	if h.ruleError(w, err, "Failed to get rule") {
		return
	}
	req.apply(rule)
	if h.ruleError(w, h.deps.Rules.UpdateRule(r.Context(), rule), "Failed to update rule") {
		return
	}
	h.audit(audit.FromRequest(r, audit.EventTypeRuleUpdated, ruleTarget(id), "alert rule updated").WithMetadata(rule))
	respondData(w, http.StatusOK, rule)
}

// DeleteRule handles DELETE /api/v1/rules/{id}.
func (h *Handler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(chi.URLParam(r, "id"))
	if !ok {
		respondError(w, http.StatusBadRequest, CodeValidation, "id must be a positive integer", nil)
		return
	}
	if h.ruleError(w, h.deps.Rules.DeleteRule(r.Context(), id), "Failed to delete rule") {
		return
	}
	h.audit(audit.FromRequest(r, audit.EventTypeRuleDeleted, ruleTarget(id), "alert rule deleted"))
	w.WriteHeader(http.StatusNoContent)
}

// ruleError writes the response for err and reports whether it did.
func (h *Handler) ruleError(w http.ResponseWriter, err error, msg string) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, detection.ErrRuleNotFound):
		respondError(w, http.StatusNotFound, CodeNotFound, "Rule not found", nil)
	default:
		respondError(w, http.StatusInternalServerError, CodeInternal, msg, err)
	}
	return true
}

func ruleTarget(id int64) string {
	return "rule:" + strconv.FormatInt(id, 10)
}
