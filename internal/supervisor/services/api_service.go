// Warden - Behavioral Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// APIServer is satisfied by *http.Server.
type APIServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
	Close() error
}

// APIService serves the admin API under supervision. When ctx ends it stops
// accepting connections and gives in-flight requests drain to finish; a
// request still running after that, such as a long export, is cut off.
type APIService struct {
	server APIServer
	addr   string
	drain  time.Duration
	logger zerolog.Logger
}

// NewAPIService wraps server. addr is only logged.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewAPIService(server APIServer, addr string, drain time.Duration, logger zerolog.Logger) *APIService {
	if drain <= 0 {
		drain = 10 * time.Second
	}
	return &APIService{
		server: server,
		addr:   addr,
		drain:  drain,
		logger: logger.With().Str("service", "admin-api").Logger(),
	}
}

// Serve implements suture.Service. http.ErrServerClosed is not a failure.
func (s *APIService) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		err := s.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()
	s.logger.Info().Str("addr", s.addr).Msg("admin api listening")

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("admin api: %w", err)
		}
		return nil

	case <-ctx.Done():
	}

	start := time.Now()
	drainCtx, cancel := context.WithTimeout(context.Background(), s.drain)
	defer cancel()
	if err := s.server.Shutdown(drainCtx); err != nil {
		s.logger.Warn().Err(err).Dur("drain", s.drain).Msg("admin api drain incomplete, closing connections")
		if cerr := s.server.Close(); cerr != nil {
			return fmt.Errorf("admin api close: %w", cerr)
		}
	}
	<-errCh
	s.logger.Info().Dur("duration", time.Since(start)).Msg("admin api stopped")
	return ctx.Err()
}

// String returns the service name for logging.
func (s *APIService) String() string {
	return "admin-api"
}
