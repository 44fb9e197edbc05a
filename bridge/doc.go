// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package bridge carries the cross-context command vocabulary between the
website and the surfaces embedded in it: iframes, the extension side panel
and the extension background worker.

Each peer is a Session over a WebSocket connection. Every incoming message
goes through a Dispatcher that checks the peer's origin against an
OriginPolicy before any handler runs; messages from other origins are
logged and dropped without a reply. The upgrade itself is also refused for
disallowed origins.

Requests that expect an answer carry a requestId and wait in a Requests
table for at most the request timeout (5s by default). A request that is
never answered resolves with no data, not an error.

The Server side answers handshake, get-auth-token, set-auth-token,
open-side-panel, toggle-side-panel, trigger-settings-update,
spinner-complete and get-settings. Auth tokens are keyed by an install id
the handshake proves with an HMAC install key; sessions without one get no
token access.

The Client side is what an embedded context runs: it refuses to dial hosts
outside its own policy and falls back to a new window exactly once when the
side panel cannot be opened. A client with its own fallback tells the host
not to fall back, so the window opens once across both sides.
*/
package bridge
