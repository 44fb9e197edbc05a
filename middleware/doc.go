// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package middleware provides HTTP middleware and helper functions.

# Request Logging

Wrap handlers with request logging:

	mux.HandleFunc("GET /health", middleware.WithLogging(handler))

Logs request start (method, path, remote) and completion (duration_ms).

# CORS Middleware

Only allow-listed origins get CORS headers; preflights from anywhere else
are answered 403:

	server := http.Server{
		Handler: middleware.CORS(policy, mux),
	}

# Relay Keys

The relay endpoints are called by the extension background, which proves
its identity with X-Extension-ID and the matching X-Relay-Key:

	mux.HandleFunc("POST /relay/messages",
		middleware.WithLogging(middleware.RequireRelayKey(salt, h.Message)))

# JSON Helpers

	middleware.JSONResponse(w, http.StatusOK, data)
	middleware.ErrorResponse(w, http.StatusBadRequest, "message")
	err := middleware.ParseJSONBody(r, &req)
*/
package middleware
