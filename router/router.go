// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package router

import (
	"net/http"

	"github.com/danielhkuo/livedraw/bridge"
	"github.com/danielhkuo/livedraw/cliparse"
	"github.com/danielhkuo/livedraw/handlers"
	"github.com/danielhkuo/livedraw/leader"
	"github.com/danielhkuo/livedraw/middleware"
	"github.com/danielhkuo/livedraw/relay"
	"github.com/danielhkuo/livedraw/syncer"
)

// Deps are the long-lived components the routes serve. Elector, Bridge and
// Relay may be nil; their routes are then not registered.
type Deps struct {
	Sync    *syncer.Service
	Facade  syncer.Facade
	Elector *leader.Elector
	Bridge  *bridge.Server
	Relay   *relay.Relay
}

func NewRouter(deps Deps, cfg cliparse.Config) *http.ServeMux {
	mux := http.NewServeMux()

	// Initialize handlers
	settingsHandler := handlers.NewSettingsHandler(deps.Sync, deps.Facade)

	var sessions handlers.SessionCounter
	if deps.Bridge != nil {
		sessions = deps.Bridge.Hub()
	}
	statusHandler := handlers.NewStatusHandler(deps.Sync, deps.Elector, sessions, deps.Relay)

	// Writes and relay calls come from the extension and carry its key
	guard := func(h http.HandlerFunc) http.HandlerFunc {
		return middleware.WithLogging(middleware.RequireRelayKey(cfg.RelayKeySalt, h))
	}

	// Health check
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Settings (read and write-through broadcast)
	mux.HandleFunc("GET /settings/{kind}", middleware.WithLogging(settingsHandler.GetSettings))
	mux.HandleFunc("PUT /settings/{kind}", guard(settingsHandler.PutSettings))

	// Replica status
	mux.HandleFunc("GET /status", middleware.WithLogging(statusHandler.GetStatus))

	// Cross-context bridge (WebSocket upgrade, origin checked by the bridge)
	if deps.Bridge != nil {
		mux.Handle("GET /bridge", deps.Bridge)
	}

	// Background relay (extension only)
	if deps.Relay != nil {
		relayHandler := handlers.NewRelayHandler(deps.Relay)
		mux.HandleFunc("POST /relay/messages", guard(relayHandler.Message))
		mux.HandleFunc("POST /relay/tabs/{tabId}/closed", guard(relayHandler.TabClosed))
		mux.HandleFunc("POST /relay/focus-changed", guard(relayHandler.FocusChanged))
	}

	// Root endpoint
	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("livedraw sync API v1"))
	})

	return mux
}
