// Warden - Behavioral Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

// Package audit keeps a durable trail of operator actions.
//
// Every state-changing API call (anomaly review, alert rule changes, manual
// scan and training triggers, honeypot reports) and every authorization
// denial is recorded with the acting principal, their roles, the source
// address and the request ID. Anomaly records themselves are the trail of
// detections, so they are not duplicated here.
//
// # Writes
//
// Logger buffers events on a channel and a single goroutine writes them to
// the Store, so handlers never block on DuckDB. When the buffer is full the
// event is dropped and a warning is logged. Close drains the buffer.
//
// # Usage
//
//	store := audit.NewDuckDBStore(db.Conn())
//	if err := store.CreateTable(ctx); err != nil {
//	    return err
//	}
//	log := audit.NewLogger(store, audit.DefaultConfig())
//	defer log.Close()
//
//	log.Log(audit.FromRequest(r, audit.EventTypeRuleDeleted, "rule:7", "alert rule deleted"))
//
// # Retention
//
// Purge deletes events older than a cutoff; the server runs it from the
// retention service with RETENTION_AUDIT_MAX_AGE.
package audit
