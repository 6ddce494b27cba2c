// Warden - Behavioral Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/warden/internal/training"
)

// Trainer is the part of *training.Trainer the service drives.
type Trainer interface {
	Run(ctx context.Context) (*training.Result, error)
}

// TrainingServiceConfig holds configuration for the training service.
type TrainingServiceConfig struct {
	// TrainOnStartup runs a cycle as soon as the service starts.
	TrainOnStartup bool

	// Interval is how often to retrain. Default: 24h
	Interval time.Duration
}

// TrainingService retrains the model on a schedule and on demand.
type TrainingService struct {
	trainer Trainer
	config  TrainingServiceConfig
	trigger chan struct{}
	logger  zerolog.Logger
	name    string

	mu   sync.RWMutex
	last *training.Result
}

// NewTrainingService creates a training loop.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewTrainingService(trainer Trainer, cfg TrainingServiceConfig, logger zerolog.Logger) *TrainingService {
	if cfg.Interval <= 0 {
		cfg.Interval = 24 * time.Hour
	}
	return &TrainingService{
		trainer: trainer,
		config:  cfg,
		trigger: make(chan struct{}, 1),
		logger:  logger.With().Str("service", "training").Logger(),
		name:    "training-service",
	}
}

// Trigger enqueues a manual training cycle. It reports false when one is
// already queued.
func (s *TrainingService) Trigger() bool {
	select {
	case s.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

// LastResult returns the result of the last successful cycle, or nil.
func (s *TrainingService) LastResult() *training.Result {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

// Serve implements suture.Service.
func (s *TrainingService) Serve(ctx context.Context) error {
	s.logger.Info().
		Bool("train_on_startup", s.config.TrainOnStartup).
		Dur("interval", s.config.Interval).
		Msg("training service starting")

	if s.config.TrainOnStartup {
		s.train(ctx, "startup")
	}

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("training service shutting down")
			return ctx.Err()

		case <-ticker.C:
			s.train(ctx, "scheduled")

		case <-s.trigger:
			s.train(ctx, "manual")
		}
	}
}

// train runs one cycle. Failures are logged and retried on the next tick.
func (s *TrainingService) train(ctx context.Context, reason string) {
	res, err := s.trainer.Run(ctx)
	switch {
	case errors.Is(err, training.ErrTrainingInProgress):
		s.logger.Debug().Str("trigger", reason).Msg("training already running, skipping")
	case err != nil:
		if ctx.Err() == nil {
			s.logger.Warn().Err(err).Str("trigger", reason).Msg("training cycle failed (will retry on schedule)")
		}
	default:
		s.mu.Lock()
		s.last = res
		s.mu.Unlock()
	}
}

// String returns the service name for logging.
func (s *TrainingService) String() string {
	return s.name
}
