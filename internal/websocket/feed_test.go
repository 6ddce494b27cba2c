// Warden - Behavioral Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package websocket

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog"

	"github.com/tomtom215/warden/internal/events"
)

func TestFeed_HandleAnomaly(t *testing.T) {
	hub := startHub(t)
	c := createTestClient(hub, 8)
	hub.Register <- c
	waitFor(t, func() bool { return hub.GetClientCount() == 1 }, "registration")

	feed := NewFeed(hub, zerolog.Nop())
	msg, err := events.NewAnomalyMessage(&events.AnomalyEvent{PrincipalID: "u-7", Severity: "critical", Normalized: 0.9})
	if err != nil {
		t.Fatal(err)
	}
	if err := feed.HandleAnomaly(msg); err != nil {
		t.Fatalf("HandleAnomaly: %v", err)
	}

	got := receive(t, c)
	e, ok := got.Data.(events.AnomalyEvent)
	if got.Type != MessageTypeAnomaly || !ok || e.PrincipalID != "u-7" {
		t.Errorf("message = %+v", got)
	}
}

func TestFeed_SkipsUndecodable(t *testing.T) {
	hub := NewHub()
	feed := NewFeed(hub, zerolog.Nop())

	if err := feed.HandleAnomaly(message.NewMessage("1", nil)); err != nil {
		t.Errorf("HandleAnomaly err = %v, want nil (ack)", err)
	}
	if err := feed.HandleAlert(message.NewMessage("2", []byte("{"))); err != nil {
		t.Errorf("HandleAlert err = %v, want nil (ack)", err)
	}
	if len(hub.broadcast) != 0 {
		t.Error("undecodable event broadcast")
	}
}

func TestFeed_ThroughRouter(t *testing.T) {
	hub := startHub(t)
	c := createTestClient(hub, 8)
	hub.Register <- c
	waitFor(t, func() bool { return hub.GetClientCount() == 1 }, "registration")

	bus := events.NewMemoryBus(16, nil)
	defer bus.Close()
	router, err := events.NewRouter(events.DefaultRouterConfig(), bus.Logger())
	if err != nil {
		t.Fatal(err)
	}
	sub, err := bus.Subscriber(SubscriberGroup)
	if err != nil {
		t.Fatal(err)
	}
	NewFeed(hub, zerolog.Nop()).Register(router, sub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = router.Run(ctx) }()
	select {
	case <-router.Running():
	case <-time.After(2 * time.Second):
		t.Fatal("router did not start")
	}

	if err := bus.PublishAlert(ctx, events.AlertEvent{RuleID: 3, RuleName: "error spike"}); err != nil {
		t.Fatal(err)
	}
	got := receive(t, c)
	if e, ok := got.Data.(events.AlertEvent); got.Type != MessageTypeAlert || !ok || e.RuleID != 3 {
		t.Errorf("message = %+v", got)
	}
}
