// Warden - Behavioral Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/warden/internal/audit"
	"github.com/tomtom215/warden/internal/auth"
	"github.com/tomtom215/warden/internal/detection"
	"github.com/tomtom215/warden/internal/logging"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

// ListAnomalies handles GET /api/v1/anomalies.
//
// Query parameters: principal_id, severity, status, source, start_date,
// end_date (RFC3339), limit, offset, order_by, order_direction.
func (h *Handler) ListAnomalies(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := detection.AnomalyFilter{
		PrincipalID:    q.Get("principal_id"),
		Source:         detection.Source(q.Get("source")),
		Limit:          getIntParam(r, "limit", defaultListLimit),
		Offset:         getIntParam(r, "offset", 0),
		OrderBy:        q.Get("order_by"),
		OrderDirection: q.Get("order_direction"),
	}
	if filter.Limit <= 0 || filter.Limit > maxListLimit {
		filter.Limit = defaultListLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	for _, v := range q["severity"] {
		filter.Severities = append(filter.Severities, detection.Severity(v))
	}
	for _, v := range q["status"] {
		filter.Statuses = append(filter.Statuses, detection.Status(v))
	}
	for key, dst := range map[string]**time.Time{"start_date": &filter.StartDate, "end_date": &filter.EndDate} {
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

	records, err := h.deps.Anomalies.ListAnomalies(r.Context(), filter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, CodeInternal, "Failed to list anomalies", err)
		return
	}

	total, err := h.deps.Anomalies.CountAnomalies(r.Context(), filter)
	if err != nil {
		logging.Warn().Err(err).Msg("Failed to count anomalies")
		total = len(records)
	}
	if records == nil {
		records = []detection.AnomalyRecord{}
	}
	respondList(w, records, len(records), total)
}

// GetAnomaly handles GET /api/v1/anomalies/{id}.
func (h *Handler) GetAnomaly(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(chi.URLParam(r, "id"))
	if !ok {
		respondError(w, http.StatusBadRequest, CodeValidation, "id must be a positive integer", nil)
		return
	}

	rec, err := h.deps.Anomalies.GetAnomaly(r.Context(), id)
	if errors.Is(err, detection.ErrAnomalyNotFound) {
		respondError(w, http.StatusNotFound, CodeNotFound, "Anomaly not found", nil)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, CodeInternal, "Failed to get anomaly", err)
		return
	}
	respondData(w, http.StatusOK, rec)
}

// ReviewRequest is the body of a review. false_positive takes precedence.
type ReviewRequest struct {
	FalsePositive bool   `json:"false_positive"`
	Resolve       bool   `json:"resolve"`
	Note          string `json:"note,omitempty" validate:"max=1000"`
}

// ReviewAnomaly handles POST /api/v1/anomalies/{id}/review.
func (h *Handler) ReviewAnomaly(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(chi.URLParam(r, "id"))
	if !ok {
		respondError(w, http.StatusBadRequest, CodeValidation, "id must be a positive integer", nil)
		return
	}

	var req ReviewRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	if !req.FalsePositive && !req.Resolve {
		respondError(w, http.StatusBadRequest, CodeValidation, "one of false_positive or resolve is required", nil)
		return
	}

	reviewer := auth.PrincipalID(r)
	rec, err := h.deps.Anomalies.ReviewAnomaly(r.Context(), id, detection.Review{
		Reviewer:      reviewer,
		FalsePositive: req.FalsePositive,
		Resolve:       req.Resolve,
	})
	if errors.Is(err, detection.ErrAnomalyNotFound) {
		respondError(w, http.StatusNotFound, CodeNotFound, "Anomaly not found", nil)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, CodeInternal, "Failed to review anomaly", err)
		return
	}

	logging.Ctx(r.Context()).Info().
		Int64("anomaly_id", id).
		Str("reviewer", reviewer).
		Str("status", string(rec.Status)).
		Msg("Anomaly reviewed")
	h.audit(audit.FromRequest(r, audit.EventTypeAnomalyReviewed, "anomaly:"+strconv.FormatInt(id, 10), "anomaly reviewed").
		WithMetadata(map[string]interface{}{
			"false_positive": req.FalsePositive,
			"resolve":        req.Resolve,
			"note":           req.Note,
			"status":         rec.Status,
		}))
	respondData(w, http.StatusOK, rec)
}

// StatsResponse is the dashboard summary.
type StatsResponse struct {
	WindowHours int                       `json:"window_hours"`
	Anomalies   *detection.SeverityCounts `json:"anomalies"`
	Model       interface{}               `json:"model,omitempty"`
	Scan        interface{}               `json:"last_scan,omitempty"`
	ScanState   string                    `json:"scan_state,omitempty"`
}

// Stats handles GET /api/v1/stats?hours=N (default 24, max 8760).
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	hours := getIntParam(r, "hours", 24)
	if hours <= 0 || hours > 8760 {
		respondError(w, http.StatusBadRequest, CodeValidation, "hours must be between 1 and 8760", nil)
		return
	}

	counts, err := h.deps.Anomalies.Stats(r.Context(), time.Now().Add(-time.Duration(hours)*time.Hour))
	if err != nil {
		respondError(w, http.StatusInternalServerError, CodeInternal, "Failed to compute stats", err)
		return
	}

	out := StatsResponse{WindowHours: hours, Anomalies: counts}
	if h.deps.Models != nil {
		if active, err := h.deps.Models.Active(r.Context(), h.modelKind); err != nil {
			logging.Warn().Err(err).Msg("Failed to read active model")
		} else if active != nil {
			out.Model = active
		}
	}
	if h.deps.Scan != nil {
		out.ScanState = string(h.deps.Scan.State())
		if last := h.deps.Scan.LastResult(); last != nil {
			out.Scan = last
		}
	}
	respondData(w, http.StatusOK, out)
}
