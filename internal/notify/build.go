// Warden - Behavioral Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package notify

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/tomtom215/warden/internal/config"
)

// FromConfig builds a Set with the in-app channel plus every enabled external
// channel.
func FromConfig(cfg *config.Config, recipients RecipientSource, store NotificationStore, logger zerolog.Logger) (*Set, error) {
	set := NewSet(logger, NewInAppChannel(recipients, store))

	if cfg.Telegram.Enabled {
		tg, err := NewTelegramChannel(cfg.Telegram)
		if err != nil {
			return nil, fmt.Errorf("telegram: %w", err)
		}
		set.Register(tg)
	}
	if cfg.Email.Enabled {
		em, err := NewEmailChannel(cfg.Email, recipients)
		if err != nil {
			return nil, fmt.Errorf("email: %w", err)
		}
		set.Register(em)
	}
	if cfg.Webhook.Enabled {
		wh, err := NewWebhookChannel(cfg.Webhook)
		if err != nil {
			return nil, fmt.Errorf("webhook: %w", err)
		}
		set.Register(wh)
	}
	return set, nil
}
