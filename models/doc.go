// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package models defines the wire, domain, and HTTP types shared by the
sync, bridge, and relay packages.

# Settings Events

SettingsChangeEvent is the unit of propagation between contexts:

  - Kind: one of the closed Kind enumeration (spinner-settings, theme,
    branding, competition, column-mapping)
  - Payload: opaque JSON owned by the settings facade
  - Timestamp: wall-clock milliseconds at broadcast time
  - OriginID: identifier of the publishing context

Unknown kinds are rejected when decoding:

	kind, err := models.ParseKind("theme")

# Leader Record

LeaderRecord ({id, timestamp}) is the lease kept in the shared leader slot.

# Bridge Messages

CrossContextMessage ({type, payload?, requestId?}) crosses the trust
boundary between the website, embedded frames, and the extension:

	handshake, get-auth-token, auth-token, set-auth-token,
	open-side-panel, close-side-panel, toggle-side-panel, open-window,
	trigger-settings-update, spinner-complete, get-settings, settings,
	response

Replies carry the RequestID of the request they answer.

# JSON Naming

Types that travel to the browser (events, bridge and runtime messages)
use camelCase keys. Server-only HTTP responses use snake_case.
*/
package models
