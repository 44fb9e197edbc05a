// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package relay is the background relay that owns per-tab side panel state.

# State

Each tab moves between two states:

	Closed --open--> Open --close--> Closed

TabClosed deletes a tab's entry. FocusChanged clears every entry because
the host cannot report that a user closed a panel.

# Panel Control

The native open/close primitive is supplied as a PanelController, so
another host only has to provide its own implementation. When Open fails
the Fallback (a new window at the same destination) runs exactly once.

# Runtime Messages

Handle answers toggle-side-panel, open-side-panel, close-side-panel and
trigger-settings-update with a models.RuntimeResponse:

	resp := r.Handle(ctx, models.RuntimeRequest{Type: models.MessageToggleSidePanel, TabID: 7})
	// resp.Success, resp.IsOpen, resp.Fallback
*/
package relay
