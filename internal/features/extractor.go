// Warden - Behavioral Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package features

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidWindow is returned for a non-positive lookback window.
var ErrInvalidWindow = errors.New("feature window must be positive")

// historyWindow is the trailing period for HistoricalAnomalyRate.
const historyWindow = 30 * 24 * time.Hour

// Event is one logged request by a principal.
type Event struct {
	Path         string
	Method       string
	StatusCode   int
	DocumentID   string
	OrgID        string
	PayloadBytes int64
	CreatedAt    time.Time
}

// Principal is the subject of scoring.
type Principal struct {
	ID             string
	Email          string
	Role           string
	ConfessionType string
	OrgID          string
	Active         bool
}

// ActivitySource reads a principal's logged requests.
type ActivitySource interface {
	Activity(ctx context.Context, principalID string, since time.Time) ([]Event, error)
}

// LoginSource counts failed login attempts.
type LoginSource interface {
	FailedLogins(ctx context.Context, principalID string, since time.Time) (int, error)
}

// PrincipalSource looks up principals.
type PrincipalSource interface {
	Principal(ctx context.Context, id string) (*Principal, error)
}

// HistorySource counts anomaly records not marked as false positives.
type HistorySource interface {
	ConfirmedAnomalies(ctx context.Context, principalID string, since time.Time) (int, error)
}

// Extractor builds feature vectors from read-only sources.
type Extractor struct {
	activity   ActivitySource
	logins     LoginSource
	principals PrincipalSource
	history    HistorySource
	now        func() time.Time
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithHistory enables HistoricalAnomalyRate. Without it the field is 0.
func WithHistory(h HistorySource) Option {
	return func(e *Extractor) { e.history = h }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Extractor) { e.now = now }
}

// NewExtractor returns an Extractor over the given sources.
func NewExtractor(activity ActivitySource, logins LoginSource, principals PrincipalSource, opts ...Option) *Extractor {
	e := &Extractor{
		activity:   activity,
		logins:     logins,
		principals: principals,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract computes the vector for principalID over the trailing window.
func (e *Extractor) Extract(ctx context.Context, principalID string, window time.Duration) (Vector, error) {
	if window <= 0 {
		return Vector{}, ErrInvalidWindow
	}

	now := e.now()
	since := now.Add(-window)

	p, err := e.principals.Principal(ctx, principalID)
	if err != nil {
		return Vector{}, fmt.Errorf("load principal %s: %w", principalID, err)
	}

	vec := DefaultVector(p)

	if e.history != nil {
		n, err := e.history.ConfirmedAnomalies(ctx, principalID, now.Add(-historyWindow))
		if err != nil {
			return Vector{}, fmt.Errorf("count anomaly history: %w", err)
		}
		vec.Values[HistoricalAnomalyRate] = float64(n) / (historyWindow.Hours() / 24)
	}

	failed, err := e.logins.FailedLogins(ctx, principalID, since)
	if err != nil {
		return Vector{}, fmt.Errorf("count failed logins: %w", err)
	}
	vec.Values[FailedLogins] = float64(failed)

	events, err := e.activity.Activity(ctx, principalID, since)
	if err != nil {
		return Vector{}, fmt.Errorf("query activity: %w", err)
	}
	if len(events) > 0 {
		aggregate(vec.Values, events, p.OrgID, window)
	}

	sanitize(vec.Values)
	return vec, nil
}

// DefaultVector is the vector of a principal with no activity: zeros except
// OwnSectionRatio, which is 1 because no out-of-scope action was observed,
// and the categorical codes.
func DefaultVector(p *Principal) Vector {
	v := Vector{Principal: p.ID, Values: make([]float64, Count)}
	v.Values[OwnSectionRatio] = 1
	v.Values[RoleCode] = EncodeRole(p.Role)
	v.Values[ConfessionTypeCode] = EncodeConfessionType(p.ConfessionType)
	return v
}

func aggregate(values []float64, events []Event, orgID string, window time.Duration) {
	total := len(events)
	endpoints := make(map[string]struct{})
	docs := make(map[string]struct{})

	var errs, scoped, inScope, sized int
	var downloadBytes, payloadBytes int64
	first, last := events[0].CreatedAt, events[0].CreatedAt

	for i := range events {
		ev := &events[i]
		endpoints[ev.Path] = struct{}{}
		if ev.StatusCode >= 400 {
			errs++
		}
		if ev.DocumentID != "" {
			docs[ev.DocumentID] = struct{}{}
		}
		if ev.PayloadBytes > 0 {
			sized++
			payloadBytes += ev.PayloadBytes
			if isDownload(ev.Path) {
				downloadBytes += ev.PayloadBytes
			}
		}
		if ev.OrgID != "" && orgID != "" {
			scoped++
			if ev.OrgID == orgID {
				inScope++
			}
		}
		if ev.CreatedAt.Before(first) {
			first = ev.CreatedAt
		}
		if ev.CreatedAt.After(last) {
			last = ev.CreatedAt
		}
	}

	values[RequestCountPerHour] = float64(total) / window.Hours()
	values[UniqueEndpoints] = float64(len(endpoints))
	values[ErrorRate] = float64(errs) / float64(total)
	values[DocsAccessed] = float64(len(docs))
	values[DownloadMB] = float64(downloadBytes) / (1 << 20)
	if sized > 0 {
		values[AvgPayloadKB] = float64(payloadBytes) / float64(sized) / 1024
	}
	if total >= 2 {
		values[SessionDurationMin] = last.Sub(first).Minutes()
	}
	values[HourOfDay] = float64(last.Hour())
	values[DayOfWeek] = float64(last.Weekday())
	if scoped > 0 {
		values[OwnSectionRatio] = clamp01(float64(inScope) / float64(scoped))
	}
}

func isDownload(path string) bool {
	return strings.Contains(path, "/download")
}

func clamp01(x float64) float64 {
	switch {
	case x < 0:
		return 0
	case x > 1:
		return 1
	default:
		return x
	}
}
