// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package cliparse handles command-line argument parsing and configuration.

# Configuration

ParseFlags returns a Config struct with all settings:

	cfg, err := cliparse.ParseFlags(os.Args[1:])

LoadDotEnv can be called first to pull a .env file into the environment.

# CLI Flags

	-p           Server port
	-d           Database URL
	-t           Database type (sqlite or postgres)
	-redis       Redis URL
	-origins     Comma-separated allowed origins
	-panel-url   Side panel page URL
	-relay-salt  Relay key salt

# Environment Variables

Flags fall back to environment variables:

	PORT            → -p (default 3318)
	DATABASE_URL    → -d
	DATABASE_TYPE   → -t (default sqlite)
	REDIS_URL       → -redis
	ALLOWED_ORIGINS → -origins
	PANEL_URL       → -panel-url
	RELAY_KEY_SALT  → -relay-salt

CLI flags take precedence over environment variables.

Timings come from the environment only:

	LEADER_STALE_AFTER         10s
	LEADER_HEARTBEAT           5s
	BRIDGE_REQUEST_TIMEOUT     5s
	SYNC_TRIGGER_CLEAR_DELAY   100ms
	SETTINGS_REFRESH_INTERVAL  60s (0 disables)
	BRIDGE_MESSAGES_PER_SECOND 20 (0 disables)

# Validation

ParseFlags returns an error if DATABASE_URL, ALLOWED_ORIGINS or
RELAY_KEY_SALT is missing, or if the heartbeat is not shorter than the
leader staleness threshold.
*/
package cliparse
