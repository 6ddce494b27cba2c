// Warden - Behavioral Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package response

import "fmt"

// Dispatch operations reported in DispatchError.Op.
const (
	OpRevoke = "revoke_sessions"
	OpAlert  = "alert"
)

// DispatchError is a failed side effect for one principal or rule.
type DispatchError struct {
	Principal string
	Op        string
	Err       error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch %s for %s: %v", e.Op, e.Principal, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }
