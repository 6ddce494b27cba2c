// Warden - Behavioral Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package events

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/rs/zerolog"

	"github.com/tomtom215/warden/internal/config"
	"github.com/tomtom215/warden/internal/metrics"
)

// Transport names accepted in config.EventsConfig.Transport.
const (
	TransportMemory = "memory"
	TransportNATS   = "nats"
)

// ErrBusClosed is returned by publishes after Close.
var ErrBusClosed = errors.New("event bus closed")

// Bus is the publish side plus a factory for subscribers.
type Bus struct {
	publisher     message.Publisher
	newSubscriber func(group string) (message.Subscriber, error)
	closers       []func() error
	logger        watermill.LoggerAdapter

	mu     sync.RWMutex
	closed bool
}

// New builds a Bus for cfg.Transport.
func New(cfg config.EventsConfig, logger zerolog.Logger) (*Bus, error) {
	wmLogger := NewZerologAdapter(logger.With().Str("component", "events").Logger())

	switch cfg.Transport {
	case "", TransportMemory:
		return NewMemoryBus(cfg.BufferSize, wmLogger), nil
	case TransportNATS:
		return newNATSBus(cfg, wmLogger)
	default:
		return nil, fmt.Errorf("unknown event transport %q", cfg.Transport)
	}
}

// NewMemoryBus returns an in-process bus. Every subscriber of a topic receives
// every message.
func NewMemoryBus(buffer int64, logger watermill.LoggerAdapter) *Bus {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	pubSub := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: buffer,
	}, logger)

	return &Bus{
		publisher: pubSub,
		newSubscriber: func(string) (message.Subscriber, error) {
			return sharedSubscriber{pubSub}, nil
		},
		closers: []func() error{pubSub.Close},
		logger:  logger,
	}
}

// sharedSubscriber keeps a router's Close from closing the shared gochannel,
// which would also shut the publish side.
type sharedSubscriber struct {
	message.Subscriber
}

func (sharedSubscriber) Close() error { return nil }

// Logger returns the watermill logger used by the bus.
func (b *Bus) Logger() watermill.LoggerAdapter {
	return b.logger
}

// Publisher exposes the raw watermill publisher.
func (b *Bus) Publisher() message.Publisher {
	return b.publisher
}

// Subscriber returns a subscriber for the named consumer group. Groups only
// matter for NATS, where each group gets its own durable consumer.
func (b *Bus) Subscriber(group string) (message.Subscriber, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, ErrBusClosed
	}
	return b.newSubscriber(group)
}

// PublishAnomaly publishes e on TopicAnomalyDetected.
func (b *Bus) PublishAnomaly(ctx context.Context, e AnomalyEvent) error {
	msg, err := NewAnomalyMessage(&e)
	if err != nil {
		return err
	}
	return b.publish(ctx, TopicAnomalyDetected, msg)
}

// PublishAlert publishes e on TopicAlertTriggered.
func (b *Bus) PublishAlert(ctx context.Context, e AlertEvent) error {
	msg, err := NewAlertMessage(&e)
	if err != nil {
		return err
	}
	return b.publish(ctx, TopicAlertTriggered, msg)
}

func (b *Bus) publish(ctx context.Context, topic string, msg *message.Message) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrBusClosed
	}
	msg.SetContext(ctx)
	if err := b.publisher.Publish(topic, msg); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	metrics.RecordEventPublished(topic)
	return nil
}

// Close releases the transport. Safe to call more than once.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true

	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
