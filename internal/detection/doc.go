// Warden - Behavioral Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

/*
Package detection persists anomaly records and alert rules in DuckDB.

Anomaly records are written by the scan scheduler and the honeypot trigger and
reviewed by administrators. They are never deleted automatically.

# Deduplication

CreateAnomalyIfAbsent inserts a record only when the principal has no
unreviewed record detected at or after the dedup cutoff. Once an analyst
resolves a record or marks it a false positive, the next breach creates a
fresh one. The existence check and the insert are one statement:

	INSERT INTO anomaly_records (...)
	SELECT ... WHERE NOT EXISTS (
	    SELECT 1 FROM anomaly_records
	    WHERE principal_id = ? AND detected_at >= ? AND status = 'unreviewed'
	) RETURNING id

DuckDB runs each connection under snapshot isolation, so the store also
serializes conditional inserts with a mutex.

# Alert rule rate limiting

ClaimRuleTrigger stamps last_triggered_at only when the previous trigger is
older than the rate-limit window. Exactly one caller observes a claimed rule
per window; the others see false.
*/
package detection
