// Warden - Behavioral Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/tomtom215/warden/internal/database"
	"github.com/tomtom215/warden/internal/features"
)

// RecipientSource resolves a role list to active principals.
type RecipientSource interface {
	PrincipalsWithRoles(ctx context.Context, roles []string) ([]features.Principal, error)
}

// NotificationStore persists in-app notifications.
type NotificationStore interface {
	CreateNotification(ctx context.Context, n *database.Notification) error
}

// InAppChannel writes one notification per principal in the message audience.
type InAppChannel struct {
	recipients RecipientSource
	store      NotificationStore
}

// NewInAppChannel returns an in-app channel.
func NewInAppChannel(recipients RecipientSource, store NotificationStore) *InAppChannel {
	return &InAppChannel{recipients: recipients, store: store}
}

// Name returns ChannelInApp.
func (c *InAppChannel) Name() string { return ChannelInApp }

// Send notifies every principal holding one of msg.Audience's roles. A failed
// insert does not stop the remaining recipients.
func (c *InAppChannel) Send(ctx context.Context, msg Message) error {
	if len(msg.Audience) == 0 {
		return nil
	}
	principals, err := c.recipients.PrincipalsWithRoles(ctx, msg.Audience)
	if err != nil {
		return fmt.Errorf("resolve recipients: %w", err)
	}

	kind := msg.Kind
	if kind == "" {
		kind = KindAlert
	}
	var errs []error
	for _, p := range principals {
		n := &database.Notification{
			RecipientID: p.ID,
			Kind:        kind,
			Title:       msg.Title,
			Message:     msg.Body,
		}
		if err := c.store.CreateNotification(ctx, n); err != nil {
			errs = append(errs, fmt.Errorf("notify %s: %w", p.ID, err))
		}
	}
	return errors.Join(errs...)
}
