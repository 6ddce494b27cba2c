// Warden - Behavioral Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package websocket

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/warden/internal/logging"
)

//nolint:gochecknoinits // init ensures consistent logging for tests
func init() {
	logging.Init(logging.Config{Level: "info", Format: "console", Output: io.Discard})
}

// startHub runs a hub until the test ends.
func startHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = hub.RunWithContext(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return hub
}

func createTestClient(hub *Hub, buffer int) *Client {
	return &Client{id: clientIDCounter.Add(1), hub: hub, send: make(chan Message, buffer)}
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for %s", msg)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func receive(t *testing.T, c *Client) Message {
	t.Helper()
	select {
	case msg, ok := <-c.send:
		if !ok {
			t.Fatal("client channel closed")
		}
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for message")
	}
	return Message{}
}

func TestHub_RegisterBroadcastUnregister(t *testing.T) {
	hub := startHub(t)
	a, b := createTestClient(hub, 8), createTestClient(hub, 8)

	hub.Register <- a
	hub.Register <- b
	waitFor(t, func() bool { return hub.GetClientCount() == 2 }, "two clients")

	hub.BroadcastJSON(MessageTypeAlert, map[string]string{"rule": "failed logins"})
	for _, c := range []*Client{a, b} {
		if msg := receive(t, c); msg.Type != MessageTypeAlert {
			t.Errorf("type = %q, want %q", msg.Type, MessageTypeAlert)
		}
	}

	hub.Unregister <- a
	waitFor(t, func() bool { return hub.GetClientCount() == 1 }, "unregister")
	if _, ok := <-a.send; ok {
		t.Error("unregistered client channel still open")
	}

	// Unregistering twice is a no-op.
	hub.Unregister <- a
	waitFor(t, func() bool { return hub.GetClientCount() == 1 }, "second unregister")
}

func TestHub_DropsSlowClient(t *testing.T) {
	hub := startHub(t)
	slow := createTestClient(hub, 1)
	fast := createTestClient(hub, 8)
	hub.Register <- slow
	hub.Register <- fast
	waitFor(t, func() bool { return hub.GetClientCount() == 2 }, "registration")

	hub.BroadcastJSON(MessageTypeAnomaly, 1)
	hub.BroadcastJSON(MessageTypeAnomaly, 2)
	receive(t, fast)
	receive(t, fast)

	waitFor(t, func() bool { return hub.GetClientCount() == 1 }, "slow client dropped")
}

func TestHub_BroadcastScanCompleted(t *testing.T) {
	hub := startHub(t)
	c := createTestClient(hub, 8)
	hub.Register <- c
	waitFor(t, func() bool { return hub.GetClientCount() == 1 }, "registration")

	hub.BroadcastScanCompleted(ScanCompletedData{Outcome: "completed", Scanned: 12, Anomalies: 2})
	msg := receive(t, c)
	data, ok := msg.Data.(ScanCompletedData)
	if msg.Type != MessageTypeScanCompleted || !ok {
		t.Fatalf("message = %+v", msg)
	}
	if data.Timestamp == "" || data.Scanned != 12 {
		t.Errorf("data = %+v", data)
	}
}

func TestHub_BroadcastBufferFull(t *testing.T) {
	hub := NewHub() // not running
	for i := 0; i < cap(hub.broadcast)+10; i++ {
		hub.BroadcastJSON(MessageTypeAnomaly, i)
	}
	if len(hub.broadcast) != cap(hub.broadcast) {
		t.Errorf("buffer = %d, want %d", len(hub.broadcast), cap(hub.broadcast))
	}
}

func TestHub_RunWithContext_ClosesClients(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- hub.RunWithContext(ctx) }()

	c := createTestClient(hub, 8)
	hub.Register <- c
	waitFor(t, func() bool { return hub.GetClientCount() == 1 }, "registration")

	cancel()
	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not stop")
	}
	if hub.GetClientCount() != 0 {
		t.Error("clients left after shutdown")
	}
	if _, ok := <-c.send; ok {
		t.Error("client channel still open after shutdown")
	}
}

func TestGetShutdownReason(t *testing.T) {
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	expired, cancel2 := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel2()
	<-expired.Done()

	if got := getShutdownReason(cancelled); got != ShutdownReasonContextCanceled {
		t.Errorf("cancelled = %s", got)
	}
	if got := getShutdownReason(expired); got != ShutdownReasonContextDeadline {
		t.Errorf("expired = %s", got)
	}
}

func TestMarshalMessage(t *testing.T) {
	data, err := MarshalMessage(Message{Type: MessageTypePong})
	if err != nil {
		t.Fatalf("MarshalMessage: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if got["type"] != MessageTypePong {
		t.Errorf("got %v", got)
	}
}
