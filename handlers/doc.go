// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package handlers contains HTTP request handlers for the Live Draw sync server.

# Handler Types

Each handler is a struct built by a constructor that takes its dependencies:

  - SettingsHandler: read and write settings objects by kind
  - StatusHandler: origin id, leadership and bridge state of this replica
  - RelayHandler: the background relay's runtime messaging

# Settings

	GET /settings/{kind}  → GetSettings
	PUT /settings/{kind}  → PutSettings (persist, then broadcast)

Kinds are spinner-settings, theme, branding, competition and column-mapping.
Unknown kinds are 404. The PUT body is the raw settings JSON; the response
carries the timestamp and origin id of the broadcast event.

# Relay

	POST /relay/messages            → Message
	POST /relay/tabs/{tabId}/closed → TabClosed
	POST /relay/focus-changed       → FocusChanged

Message takes a runtime request ({type, tabId, payload}) and always answers
with {success, ...}. A side panel that fails to open falls back to a new
window and reports fallback: true instead of an error.

The relay routes require X-Extension-ID and X-Relay-Key (see middleware).
*/
package handlers
