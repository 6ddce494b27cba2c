// Warden - Behavioral Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

/*
Package websocket streams detections to dashboards as they happen.

The package keeps the hub-and-spoke layout: a single Hub owns the set of
connected clients and fans each broadcast out to them, and every Client runs
a read pump (ping handling, disconnect detection) and a write pump (JSON
frames plus keepalive pings).

	┌──────────┐      ┌──────┐
	│ Feed     │ ───► │ Hub  │ ───► clients
	└──────────┘      └──────┘
	 anomaly.detected
	 alert.triggered

Feed is a watermill consumer registered on the event router under its own
subscriber group, so the live view receives every anomaly and alert without
competing with the response dispatcher.

Message Types:

  - anomaly: an anomaly.detected event (events.AnomalyEvent)
  - alert: an alert.triggered event (events.AlertEvent)
  - scan_completed: summary of a finished scan cycle
  - ping / pong: client keepalive

Usage:

	hub := websocket.NewHub()
	go hub.RunWithContext(ctx)

	feed := websocket.NewFeed(hub, logger)
	feed.Register(router, sub)

	r.Get("/ws", websocket.Handler(hub, allowedOrigins))

Shutdown:

RunWithContext closes every client when its context is cancelled so that a
supervisor restart never leaks connections.
*/
package websocket
