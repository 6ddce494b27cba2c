// Warden - Behavioral Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

/*
Package services adapts the engine's long-running components to
suture.Service so the supervisor tree can start, restart and stop them.

Every service follows the same contract:

  - Serve(ctx) blocks until ctx is canceled and then returns ctx.Err()
  - a failed cycle is logged and the loop continues; only a broken
    component (a server that cannot bind) returns an error, which makes
    suture restart the service with backoff
  - String() names the service in supervisor events

Services:

  - ScanService: scan cycle every interval and on each manual trigger,
    broadcasting a scan_completed summary to the websocket hub
  - TrainingService: retraining on a schedule, optionally at startup, and
    on demand via Trigger; exposes the last result to the API
  - PeriodicService: fixed-interval jobs (alert rule check, retention)
  - EventRouterService: the watermill router feeding the response
    dispatcher and the websocket feed
  - FuncService: adapts a component that owns its run loop, such as the
    live feed hub; an early return counts as a failure
  - APIService: the admin API server, drained on shutdown and force
    closed if the drain times out
*/
package services
