// Warden - Behavioral Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package response

import (
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog"

	"github.com/tomtom215/warden/internal/events"
	"github.com/tomtom215/warden/internal/metrics"
)

// Handler names registered on the router.
const (
	HandlerAnomaly = "response.anomaly"
	HandlerAlert   = "response.alert"
)

// Subscriber adapts the dispatcher to watermill handlers. Every message is
// acked: undecodable payloads and failed side effects are logged and dropped.
type Subscriber struct {
	dispatcher *Dispatcher
	logger     zerolog.Logger
}

// NewSubscriber returns a subscriber for d.
func NewSubscriber(d *Dispatcher, logger zerolog.Logger) *Subscriber {
	return &Subscriber{
		dispatcher: d,
		logger:     logger.With().Str("component", "response-subscriber").Logger(),
	}
}

// Register adds the anomaly and alert handlers to r.
func (s *Subscriber) Register(r *message.Router, sub message.Subscriber) {
	r.AddConsumerHandler(HandlerAnomaly, events.TopicAnomalyDetected, sub, s.HandleAnomaly)
	r.AddConsumerHandler(HandlerAlert, events.TopicAlertTriggered, sub, s.HandleAlert)
}

// HandleAnomaly decodes and dispatches an anomaly.detected message.
func (s *Subscriber) HandleAnomaly(msg *message.Message) error {
	e, err := events.DecodeAnomaly(msg)
	if err != nil {
		metrics.RecordEventConsumed(events.TopicAnomalyDetected, err)
		s.logger.Error().Err(err).Str("message_id", msg.UUID).Msg("dropping undecodable anomaly event")
		return nil
	}

	out, err := s.dispatcher.Handle(msg.Context(), e)
	metrics.RecordEventConsumed(events.TopicAnomalyDetected, err)
	if err != nil {
		s.logger.Error().Err(err).
			Str("message_id", msg.UUID).
			Str("principal", e.PrincipalID).
			Str("band", string(out.Band)).
			Msg("anomaly dispatch failed")
	}
	return nil
}

// HandleAlert decodes and dispatches an alert.triggered message.
func (s *Subscriber) HandleAlert(msg *message.Message) error {
	e, err := events.DecodeAlert(msg)
	if err != nil {
		metrics.RecordEventConsumed(events.TopicAlertTriggered, err)
		s.logger.Error().Err(err).Str("message_id", msg.UUID).Msg("dropping undecodable alert event")
		return nil
	}

	err = s.dispatcher.HandleAlert(msg.Context(), e)
	metrics.RecordEventConsumed(events.TopicAlertTriggered, err)
	if err != nil {
		s.logger.Error().Err(err).Str("message_id", msg.UUID).Int64("rule_id", e.RuleID).Msg("alert dispatch failed")
	}
	return nil
}
