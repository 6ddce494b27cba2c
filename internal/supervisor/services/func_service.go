// Warden - Behavioral Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package services

import (
	"context"
	"fmt"
)

// ServeFunc blocks until ctx ends. (*websocket.Hub).RunWithContext is one.
type ServeFunc func(ctx context.Context) error

// FuncService supervises a component that already owns its run loop, such
// as the live anomaly feed hub.
type FuncService struct {
	name string
	fn   ServeFunc
}

// NewFuncService names fn for the supervisor log.
func NewFuncService(name string, fn ServeFunc) *FuncService {
	return &FuncService{name: name, fn: fn}
}

// Serve implements suture.Service. Returning before ctx ends is reported as
// an error so the supervisor restarts the component.
func (f *FuncService) Serve(ctx context.Context) error {
	err := f.fn(ctx)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err == nil {
		return fmt.Errorf("%s exited before shutdown", f.name)
	}
	return fmt.Errorf("%s: %w", f.name, err)
}

// String returns the service name for logging.
func (f *FuncService) String() string {
	return f.name
}
