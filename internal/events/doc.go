// Warden - Behavioral Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

// Package events carries detection results from producers to side effects.
//
// The scan scheduler, honeypot manager and alert engine publish onto a Bus;
// the response dispatcher and the websocket feed subscribe. Producers never
// call the dispatcher directly, so a slow notification channel cannot stall
// a scan cycle.
//
// Two transports exist:
//
//   - memory: watermill's gochannel Pub/Sub, in-process and non-persistent.
//     Messages published with no subscriber are dropped.
//   - nats: NATS JetStream through watermill-nats, optionally backed by an
//     embedded server. Requires building with -tags=nats.
//
// Payloads are JSON encoded with goccy/go-json. Every message carries a
// UUID that doubles as the event ID.
package events
