// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"log/slog"
	"net/http"

	"github.com/danielhkuo/livedraw/leader"
	"github.com/danielhkuo/livedraw/middleware"
	"github.com/danielhkuo/livedraw/models"
	"github.com/danielhkuo/livedraw/relay"
	"github.com/danielhkuo/livedraw/syncer"
)

// SessionCounter reports live bridge sessions. bridge.Hub implements it.
type SessionCounter interface {
	Len() int
}

type StatusHandler struct {
	svc      *syncer.Service
	elector  *leader.Elector
	sessions SessionCounter
	relay    *relay.Relay
}

// NewStatusHandler builds the status handler. Every dependency but svc
// may be nil.
func NewStatusHandler(svc *syncer.Service, elector *leader.Elector, sessions SessionCounter, rel *relay.Relay) *StatusHandler {
	return &StatusHandler{svc: svc, elector: elector, sessions: sessions, relay: rel}
}

// GetStatus handles GET /status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	resp := models.StatusResponse{
		OriginID:   h.svc.OriginID(),
		Transports: h.svc.Transports(),
		OpenPanels: []int{},
	}

	if h.elector != nil {
		resp.IsLeader = h.elector.IsLeader()
		rec, ok, err := h.elector.Current(r.Context())
		if err != nil {
			slog.Warn("failed to read leader record", "error", err)
		} else if ok {
			resp.Leader = &rec
		}
	}
	if h.sessions != nil {
		resp.Sessions = h.sessions.Len()
	}
	if h.relay != nil {
		resp.OpenPanels = h.relay.OpenTabs()
	}

	middleware.JSONResponse(w, http.StatusOK, resp)
}
