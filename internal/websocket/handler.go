// Warden - Behavioral Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package websocket

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/warden/internal/logging"
)

// PrincipalFunc extracts the authenticated viewer from a request.
type PrincipalFunc func(r *http.Request) string

// Handler upgrades requests to websocket connections attached to hub.
// allowedOrigins lists accepted Origin values; "*" accepts any origin and an
// empty list accepts same-host requests only.
func Handler(hub *Hub, allowedOrigins []string, principal PrincipalFunc) http.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(allowedOrigins),
	}

	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade has already written the HTTP error.
			logging.Debug().Err(err).Msg("websocket upgrade failed")
			return
		}

		var who string
		if principal != nil {
			who = principal(r)
		}
		client := NewClient(hub, conn, who)
		hub.Register <- client
		client.Start()
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[strings.TrimRight(o, "/")] = true
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || set["*"] {
			return true
		}
		if set[origin] {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return len(set) == 0 && strings.EqualFold(u.Host, r.Host)
	}
}
