// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/danielhkuo/livedraw/middleware"
	"github.com/danielhkuo/livedraw/models"
	"github.com/danielhkuo/livedraw/relay"
)

// RelayHandler exposes the background relay's runtime messaging to the
// extension. Routes are expected to sit behind middleware.RequireRelayKey.
type RelayHandler struct {
	relay *relay.Relay
}

func NewRelayHandler(rel *relay.Relay) *RelayHandler {
	return &RelayHandler{relay: rel}
}

// Message handles POST /relay/messages
// Every well-formed request gets a {success, ...} response with status 200,
// including failures the relay degraded from.
func (h *RelayHandler) Message(w http.ResponseWriter, r *http.Request) {
	var req models.RuntimeRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.Type == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "type is required")
		return
	}

	resp := h.relay.Handle(r.Context(), req)
	middleware.JSONResponse(w, http.StatusOK, resp)
}

// TabClosed handles POST /relay/tabs/{tabId}/closed
func (h *RelayHandler) TabClosed(w http.ResponseWriter, r *http.Request) {
	tabID, err := strconv.Atoi(r.PathValue("tabId"))
	if err != nil || tabID <= 0 {
		middleware.ErrorResponse(w, http.StatusBadRequest, "tabId must be a positive integer")
		return
	}

	h.relay.TabClosed(tabID)
	slog.Debug("tab closed", "tab_id", tabID)
	w.WriteHeader(http.StatusNoContent)
}

// FocusChanged handles POST /relay/focus-changed
func (h *RelayHandler) FocusChanged(w http.ResponseWriter, r *http.Request) {
	h.relay.FocusChanged()
	w.WriteHeader(http.StatusNoContent)
}
