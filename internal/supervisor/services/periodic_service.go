// Warden - Behavioral Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package services

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// PeriodicFunc is one cycle of a periodic job.
type PeriodicFunc func(ctx context.Context) error

// PeriodicService runs fn on a fixed interval, each run bounded by timeout.
// The alert rule check and retention cleanup use it.
type PeriodicService struct {
	name       string
	fn         PeriodicFunc
	interval   time.Duration
	timeout    time.Duration
	runOnStart bool
	logger     zerolog.Logger
}

// NewPeriodicService creates a periodic job. A zero timeout leaves runs
// bounded only by shutdown.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewPeriodicService(name string, interval, timeout time.Duration, runOnStart bool, fn PeriodicFunc, logger zerolog.Logger) *PeriodicService {
	if interval <= 0 {
		interval = time.Hour
	}
	return &PeriodicService{
		name:       name,
		fn:         fn,
		interval:   interval,
		timeout:    timeout,
		runOnStart: runOnStart,
		logger:     logger.With().Str("service", name).Logger(),
	}
}

// Serve implements suture.Service.
func (s *PeriodicService) Serve(ctx context.Context) error {
	s.logger.Info().Dur("interval", s.interval).Msg("periodic service starting")

	if s.runOnStart {
		s.run(ctx)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.run(ctx)
		}
	}
}

func (s *PeriodicService) run(ctx context.Context) {
	runCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	if err := s.fn(runCtx); err != nil {
		if ctx.Err() == nil {
			s.logger.Warn().Err(err).Dur("duration", time.Since(start)).Msg("periodic run failed")
		}
		return
	}
	s.logger.Debug().Dur("duration", time.Since(start)).Msg("periodic run complete")
}

// String returns the service name for logging.
func (s *PeriodicService) String() string {
	return s.name
}
