// Warden - Behavioral Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package websocket

import (
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog"

	"github.com/tomtom215/warden/internal/events"
	"github.com/tomtom215/warden/internal/metrics"
)

// SubscriberGroup is the consumer group the live feed subscribes under.
const SubscriberGroup = "websocket"

// Handler names registered on the router.
const (
	HandlerAnomalyFeed = "websocket.anomaly"
	HandlerAlertFeed   = "websocket.alert"
)

// Feed forwards bus events to the hub.
type Feed struct {
	hub    *Hub
	logger zerolog.Logger
}

// NewFeed returns a feed broadcasting on hub.
func NewFeed(hub *Hub, logger zerolog.Logger) *Feed {
	return &Feed{hub: hub, logger: logger.With().Str("component", "websocket-feed").Logger()}
}

// Register adds the feed handlers to r.
func (f *Feed) Register(r *message.Router, sub message.Subscriber) {
	r.AddConsumerHandler(HandlerAnomalyFeed, events.TopicAnomalyDetected, sub, f.HandleAnomaly)
	r.AddConsumerHandler(HandlerAlertFeed, events.TopicAlertTriggered, sub, f.HandleAlert)
}

// HandleAnomaly broadcasts an anomaly.detected event.
func (f *Feed) HandleAnomaly(msg *message.Message) error {
	e, err := events.DecodeAnomaly(msg)
	metrics.RecordEventConsumed(events.TopicAnomalyDetected, err)
	if err != nil {
		f.logger.Warn().Err(err).Str("message_id", msg.UUID).Msg("skipping undecodable anomaly event")
		return nil
	}
	f.hub.BroadcastJSON(MessageTypeAnomaly, e)
	return nil
}

// HandleAlert broadcasts an alert.triggered event.
func (f *Feed) HandleAlert(msg *message.Message) error {
	e, err := events.DecodeAlert(msg)
	metrics.RecordEventConsumed(events.TopicAlertTriggered, err)
	if err != nil {
		f.logger.Warn().Err(err).Str("message_id", msg.UUID).Msg("skipping undecodable alert event")
		return nil
	}
	f.hub.BroadcastJSON(MessageTypeAlert, e)
	return nil
}
