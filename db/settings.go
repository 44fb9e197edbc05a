// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/danielhkuo/livedraw/models"
)

// SettingsRepo persists whole settings objects, one row per kind.
// Writes overwrite; there is no merge.
type SettingsRepo struct {
	db  *sql.DB
	now func() time.Time
}

func NewSettingsRepo(db *sql.DB) *SettingsRepo {
	return &SettingsRepo{db: db, now: time.Now}
}

// Get returns nil when the kind has never been stored.
func (r *SettingsRepo) Get(ctx context.Context, kind models.Kind) (json.RawMessage, error) {
	payload, _, err := r.GetVersioned(ctx, kind)
	return payload, err
}

// GetVersioned returns the payload and its updated_at in milliseconds.
func (r *SettingsRepo) GetVersioned(ctx context.Context, kind models.Kind) (json.RawMessage, int64, error) {
	var payload string
	var updatedAt int64
	err := r.db.QueryRowContext(ctx, `
		SELECT payload, updated_at FROM settings WHERE kind = $1
	`, string(kind)).Scan(&payload, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read %s settings: %w", kind, err)
	}
	return json.RawMessage(payload), updatedAt, nil
}

func (r *SettingsRepo) Set(ctx context.Context, kind models.Kind, payload json.RawMessage) error {
	if !json.Valid(payload) {
		return fmt.Errorf("%s settings payload is not valid JSON", kind)
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO settings (kind, payload, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (kind) DO UPDATE
		SET payload = excluded.payload,
		    updated_at = CASE
		        WHEN excluded.updated_at > settings.updated_at THEN excluded.updated_at
		        ELSE settings.updated_at + 1
		    END
	`, string(kind), string(payload), r.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to write %s settings: %w", kind, err)
	}
	return nil
}
