// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package router defines HTTP routes for the Live Draw sync server.

# Route Registration

NewRouter creates a configured http.ServeMux from the long-lived components:

	mux := router.NewRouter(router.Deps{Sync: svc, Facade: repo, ...}, cfg)

# Endpoints

Health:

	GET /health
	GET /

Settings:

	GET /settings/{kind} - Current payload and version
	PUT /settings/{kind} - Persist and broadcast

Status:

	GET /status - Origin id, leadership, transports, sessions, open panels

Bridge (WebSocket, origin allow-listed):

	GET /bridge

Relay (requires X-Extension-ID and X-Relay-Key):

	POST /relay/messages
	POST /relay/tabs/{tabId}/closed
	POST /relay/focus-changed
*/
package router
