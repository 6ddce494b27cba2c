// Warden - Behavioral Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package services

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
)

// RouterFactory builds a router with its handlers registered. A watermill
// router cannot be run twice, so every restart builds a new one.
type RouterFactory func() (*message.Router, error)

// EventRouterService runs the watermill router that feeds the response
// dispatcher and the websocket feed.
type EventRouterService struct {
	factory RouterFactory
	name    string
}

// NewEventRouterService creates a router service.
func NewEventRouterService(factory RouterFactory) *EventRouterService {
	return &EventRouterService{factory: factory, name: "event-router"}
}

// Serve implements suture.Service. Run closes the router when ctx ends.
func (s *EventRouterService) Serve(ctx context.Context) error {
	router, err := s.factory()
	if err != nil {
		return fmt.Errorf("build event router: %w", err)
	}
	if err := router.Run(ctx); err != nil {
		return fmt.Errorf("event router stopped: %w", err)
	}
	return ctx.Err()
}

// String returns the service name for logging.
func (s *EventRouterService) String() string {
	return s.name
}
