// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package db opens the database and manages the schema and settings rows.

# Drivers

Open selects the driver from the configured type:

	conn, err := db.Open("sqlite", "file:livedraw.db")
	conn, err := db.Open("postgres", "postgres://...")

SQLite uses modernc.org/sqlite and is limited to one open connection.
PostgreSQL uses github.com/lib/pq. Queries use $N placeholders, which both
drivers accept when parameters appear in ascending order.

# Schema

CreateSchema creates the following tables:

  - settings: whole settings objects keyed by kind
  - shared_slot: coordination slots (leader lease, broadcast trigger)
  - auth_token: auth tokens keyed by install id or origin

All CREATE statements use IF NOT EXISTS, making CreateSchema idempotent.

# Settings

SettingsRepo is the settings facade used by the sync service:

	repo := db.NewSettingsRepo(conn)
	err := repo.Set(ctx, models.KindTheme, payload)
	payload, updatedAt, err := repo.GetVersioned(ctx, models.KindTheme)
*/
package db
