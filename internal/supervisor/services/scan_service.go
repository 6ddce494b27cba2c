// Warden - Behavioral Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package services

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/warden/internal/scan"
	"github.com/tomtom215/warden/internal/websocket"
)

// Scanner is the part of *scan.Scanner the service drives.
type Scanner interface {
	RunCycle(ctx context.Context) (*scan.CycleResult, error)
	Triggers() <-chan struct{}
}

// ScanBroadcaster receives a summary of every finished cycle.
// Satisfied by *websocket.Hub.
type ScanBroadcaster interface {
	BroadcastScanCompleted(data websocket.ScanCompletedData)
}

// ScanService runs a scan cycle on every tick and on every manual trigger.
//
// Cycles never overlap: a trigger that arrives during a cycle waits in the
// scanner's queue and runs right after it.
type ScanService struct {
	scanner     Scanner
	broadcaster ScanBroadcaster
	interval    time.Duration
	logger      zerolog.Logger
	name        string
}

// NewScanService creates a scan loop. broadcaster may be nil.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewScanService(scanner Scanner, broadcaster ScanBroadcaster, interval time.Duration, logger zerolog.Logger) *ScanService {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &ScanService{
		scanner:     scanner,
		broadcaster: broadcaster,
		interval:    interval,
		logger:      logger.With().Str("service", "scan").Logger(),
		name:        "scan-service",
	}
}

// Serve implements suture.Service.
func (s *ScanService) Serve(ctx context.Context) error {
	s.logger.Info().Dur("interval", s.interval).Msg("scan service starting")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("scan service shutting down")
			return ctx.Err()

		case <-ticker.C:
			s.runCycle(ctx, "scheduled")

		case <-s.scanner.Triggers():
			s.runCycle(ctx, "manual")
		}
	}
}

// runCycle logs cycle errors and keeps the loop alive. The scanner applies
// its own timeout.
func (s *ScanService) runCycle(ctx context.Context, reason string) {
	res, err := s.scanner.RunCycle(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Warn().Err(err).Str("trigger", reason).Msg("scan cycle failed")
		}
		return
	}

	if s.broadcaster != nil {
		s.broadcaster.BroadcastScanCompleted(websocket.ScanCompletedData{
			ModelVersion: res.ModelVersion,
			Outcome:      string(res.Outcome),
			Scanned:      res.Scanned,
			Anomalies:    res.Anomalies,
			DurationMs:   res.Duration.Milliseconds(),
		})
	}
}

// String returns the service name for logging.
func (s *ScanService) String() string {
	return s.name
}
