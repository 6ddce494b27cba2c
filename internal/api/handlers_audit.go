// Warden - Behavioral Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package api

import (
	"net/http"
	"time"

	"github.com/tomtom215/warden/internal/audit"
	"github.com/tomtom215/warden/internal/logging"
)

// ListAudit handles GET /api/v1/audit.
//
// Query parameters: type (repeatable), actor_id, target, start_date,
// end_date (RFC3339), limit, offset.
func (h *Handler) ListAudit(w http.ResponseWriter, r *http.Request) {
	if h.deps.Audit == nil {
		respondError(w, http.StatusServiceUnavailable, CodeUnavailable, "Audit log unavailable", nil)
		return
	}
	q := r.URL.Query()

	filter := audit.QueryFilter{
		ActorID: q.Get("actor_id"),
		Target:  q.Get("target"),
		Limit:   getIntParam(r, "limit", defaultListLimit),
		Offset:  getIntParam(r, "offset", 0),
	}
	if filter.Limit <= 0 || filter.Limit > maxListLimit {
		filter.Limit = defaultListLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	for _, v := range q["type"] {
		filter.Types = append(filter.Types, audit.EventType(v))
	}
	for key, dst := range map[string]**time.Time{"start_date": &filter.StartTime, "end_date": &filter.EndTime} {
		v := q.Get(key)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			respondError(w, http.StatusBadRequest, CodeValidation, key+" must be an RFC3339 timestamp", nil)
			return
		}
		*dst = &t
	}

	events, err := h.deps.Audit.Query(r.Context(), filter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, CodeInternal, "Failed to query audit log", err)
		return
	}
	total, err := h.deps.Audit.Count(r.Context(), filter)
	if err != nil {
		logging.Warn().Err(err).Msg("Failed to count audit events")
		total = int64(len(events))
	}
	if events == nil {
		events = []audit.Event{}
	}
	respondList(w, events, len(events), int(total))
}
