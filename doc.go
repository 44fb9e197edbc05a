// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package main provides the entry point for the Live Draw sync server.

Live Draw keeps the settings of a prize-draw product (spinner settings,
theme, branding, competition, column mapping) in step across every surface
that shows them: website tabs, embedded iframes, the browser extension's
side panel and its background worker, and the server replicas behind them.

# Starting the Server

	DATABASE_URL=file:livedraw.db ALLOWED_ORIGINS=https://app.example,chrome-extension:// \
		RELAY_KEY_SALT=... go run .

Or with flags:

	go run . -p 3318 -d file:livedraw.db -redis redis://localhost:6379/0 \
		-origins https://app.example,chrome-extension:// -relay-salt ...

A .env file in the working directory is loaded first.

# Configuration

Required settings:

  - DATABASE_URL (-d): sqlite file or PostgreSQL connection string
  - ALLOWED_ORIGINS (-origins): origins allowed on the bridge and CORS
  - RELAY_KEY_SALT (-relay-salt): secret for the relay, settings-write and install key HMACs

Optional settings:

  - PORT (-p): Server port (default: 3318)
  - DATABASE_TYPE (-t): sqlite or postgres (default: sqlite)
  - REDIS_URL (-redis): cross-replica transport and shared slots
  - PANEL_URL (-panel-url): page the side panel and its fallback window open

# Architecture

  - syncer: change broadcaster with per-kind recency discard
  - transport: Redis pub/sub, in-process hub, storage-trigger fallback
  - store: memory, SQL and Redis key-value slots
  - leader: lease-based election gating the settings refresher
  - bridge: WebSocket cross-context bridge with origin allow-list
  - relay: per-tab side panel state
  - handlers, router, middleware: HTTP surface
  - auth: relay keys and auth token storage
  - db: connection, schema, settings repository
  - cliparse: configuration parsing

See package documentation for each component.
*/
package main
