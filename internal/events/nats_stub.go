// Warden - Behavioral Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

//go:build !nats

package events

import (
	"fmt"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/tomtom215/warden/internal/config"
)

func newNATSBus(_ config.EventsConfig, _ watermill.LoggerAdapter) (*Bus, error) {
	return nil, fmt.Errorf("NATS transport not available: build with -tags=nats")
}
