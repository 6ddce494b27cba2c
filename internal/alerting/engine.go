// Warden - Behavioral Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

// Package alerting evaluates administrator-defined threshold rules.
//
// Each active rule measures one windowed metric. When the value reaches the
// threshold the engine claims the rule with a conditional UPDATE on
// last_triggered_at; only the caller that wins the claim publishes
// alert.triggered, so two overlapping checks cannot double-alert and a rule
// fires at most once per rate-limit window.
package alerting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/warden/internal/detection"
	"github.com/tomtom215/warden/internal/events"
	"github.com/tomtom215/warden/internal/metrics"
)

// DefaultRateLimit is the minimum gap between two firings of one rule.
const DefaultRateLimit = 15 * time.Minute

// ErrUnknownCondition is returned for a rule whose condition is not supported.
var ErrUnknownCondition = errors.New("unknown alert condition")

// RuleStore lists rules and claims triggers.
type RuleStore interface {
	ListRules(ctx context.Context, activeOnly bool) ([]detection.AlertRule, error)
	ClaimRuleTrigger(ctx context.Context, id int64, now time.Time, rateLimit time.Duration) (bool, error)
}

// AnomalyCounter counts unresolved anomaly records.
type AnomalyCounter interface {
	CountUnresolvedSince(ctx context.Context, since time.Time) (int, error)
}

// ActivityMetrics provides the activity-derived metrics.
type ActivityMetrics interface {
	CountFailedLogins(ctx context.Context, since time.Time) (int, error)
	ErrorRatePercent(ctx context.Context, since time.Time) (float64, error)
	CountHoneypotAccesses(ctx context.Context, since time.Time) (int, error)
}

// Publisher announces fired rules.
type Publisher interface {
	PublishAlert(ctx context.Context, e events.AlertEvent) error
}

// Deps are the engine's collaborators.
type Deps struct {
	Rules     RuleStore
	Anomalies AnomalyCounter
	Activity  ActivityMetrics
	Publisher Publisher
}

// Config tunes the engine.
type Config struct {
	RateLimit time.Duration
	Timeout   time.Duration
	// DefaultWindow applies to rules saved without a window.
	DefaultWindow time.Duration
}

// CheckResult summarizes one pass over the rules.
type CheckResult struct {
	Evaluated   int     `json:"evaluated"`
	Triggered   int     `json:"triggered"`
	RateLimited int     `json:"rate_limited"`
	Errors      int     `json:"errors"`
	Fired       []int64 `json:"fired,omitempty"`
}

// Engine checks alert rules.
type Engine struct {
	cfg    Config
	deps   Deps
	logger zerolog.Logger
	now    func() time.Time
}

// NewEngine returns an engine.
func NewEngine(cfg Config, deps Deps, logger zerolog.Logger) *Engine {
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = DefaultRateLimit
	}
	if cfg.DefaultWindow <= 0 {
		cfg.DefaultWindow = DefaultRateLimit
	}
	return &Engine{
		cfg:    cfg,
		deps:   deps,
		logger: logger.With().Str("component", "alerting").Logger(),
		now:    time.Now,
	}
}

// Check evaluates every active rule. A failing rule is logged and counted;
// the remaining rules are still evaluated.
func (e *Engine) Check(ctx context.Context) (*CheckResult, error) {
	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}

	rules, err := e.deps.Rules.ListRules(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("list alert rules: %w", err)
	}

	res := &CheckResult{}
	for i := range rules {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		rule := &rules[i]
		log := e.logger.With().Int64("rule_id", rule.ID).Str("rule", rule.Name).Str("condition", string(rule.Condition)).Logger()

		res.Evaluated++
		value, err := e.Evaluate(ctx, rule)
		if err != nil {
			res.Errors++
			log.Error().Err(err).Msg("Failed to evaluate alert rule")
			continue
		}
		if value < rule.Threshold {
			continue
		}

		now := e.now()
		won, err := e.deps.Rules.ClaimRuleTrigger(ctx, rule.ID, now, e.cfg.RateLimit)
		if err != nil {
			res.Errors++
			log.Error().Err(err).Msg("Failed to claim alert rule")
			continue
		}
		metrics.RecordAlertTrigger(string(rule.Condition), !won)
		if !won {
			res.RateLimited++
			log.Debug().Float64("value", value).Msg("Alert rule rate limited")
			continue
		}

		event := events.AlertEvent{
			RuleID:        rule.ID,
			RuleName:      rule.Name,
			Condition:     string(rule.Condition),
			Value:         value,
			Threshold:     rule.Threshold,
			WindowMinutes: int(e.window(rule) / time.Minute),
			Channel:       string(rule.Channel),
			TriggeredAt:   now.UTC(),
		}
		if err := e.deps.Publisher.PublishAlert(ctx, event); err != nil {
			// The claim stands, so this firing is lost rather than repeated.
			res.Errors++
			log.Error().Err(err).Msg("Failed to publish alert")
			continue
		}
		res.Triggered++
		res.Fired = append(res.Fired, rule.ID)
		log.Warn().Float64("value", value).Float64("threshold", rule.Threshold).Msg("Alert rule triggered")
	}
	return res, nil
}

func (e *Engine) window(rule *detection.AlertRule) time.Duration {
	if w := rule.Window(); w > 0 {
		return w
	}
	return e.cfg.DefaultWindow
}

// Evaluate computes rule's metric over its window ending now.
func (e *Engine) Evaluate(ctx context.Context, rule *detection.AlertRule) (float64, error) {
	since := e.now().Add(-e.window(rule))

	switch rule.Condition {
	case detection.ConditionAnomalyCount:
		n, err := e.deps.Anomalies.CountUnresolvedSince(ctx, since)
		return float64(n), err
	case detection.ConditionFailedLogins:
		n, err := e.deps.Activity.CountFailedLogins(ctx, since)
		return float64(n), err
	case detection.ConditionErrorRate:
		return e.deps.Activity.ErrorRatePercent(ctx, since)
	case detection.ConditionHoneypotAccess:
		n, err := e.deps.Activity.CountHoneypotAccesses(ctx, since)
		return float64(n), err
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownCondition, rule.Condition)
	}
}
