// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package db

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Database types
const (
	TypeSQLite   = "sqlite"
	TypePostgres = "postgres"
)

// Open connects to the configured database and verifies the connection.
func Open(dbType, url string) (*sql.DB, error) {
	var driver string
	switch dbType {
	case TypeSQLite:
		driver = "sqlite"
	case TypePostgres:
		driver = "postgres"
	default:
		return nil, fmt.Errorf("unsupported database type %q", dbType)
	}

	conn, err := sql.Open(driver, url)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", dbType, err)
	}

	// SQLite allows a single writer
	if dbType == TypeSQLite {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping %s database: %w", dbType, err)
	}

	return conn, nil
}

// CreateSchema creates all tables needed for the application.
// Safe to call multiple times - uses IF NOT EXISTS.
func CreateSchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

const schema = `
-- Settings objects, one row per kind
CREATE TABLE IF NOT EXISTS settings (
    kind TEXT PRIMARY KEY CHECK (kind IN ('spinner-settings', 'theme', 'branding', 'competition', 'column-mapping')),
    payload TEXT NOT NULL,
    updated_at BIGINT NOT NULL
);

-- Shared coordination slots (leader lease, broadcast trigger)
CREATE TABLE IF NOT EXISTS shared_slot (
    slot_key TEXT PRIMARY KEY,
    slot_value TEXT NOT NULL,
    updated_at BIGINT NOT NULL
);

-- Auth tokens keyed by install or origin
CREATE TABLE IF NOT EXISTS auth_token (
    subject TEXT PRIMARY KEY,
    token TEXT NOT NULL,
    updated_at BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_settings_updated_at ON settings(updated_at);
`
