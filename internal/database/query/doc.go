// Warden - Behavioral Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

// Package query provides parameterized WHERE clause construction for the
// DuckDB-backed stores.
//
// The detection store uses it for anomaly listing filters and the audit store
// for audit trail queries:
//
//	wb := query.NewWhereBuilder().
//		AddEquals("principal_id", filter.PrincipalID).
//		AddIn("severity", query.Strings(filter.Severities)...).
//		AddTimeRange("detected_at", filter.StartDate, filter.EndDate)
//	where, args := wb.Build()
//	sql := "SELECT ... FROM anomaly_records WHERE " + where
//
// Every value is bound through a ? placeholder. Column names are always
// literals supplied by the calling store, never request input.
//
// WhereBuilder instances are not safe for concurrent use; create one per query.
package query
