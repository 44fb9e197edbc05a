// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package syncer

import (
	"context"
	"encoding/json"

	"github.com/danielhkuo/livedraw/models"
	"github.com/danielhkuo/livedraw/store"
)

// VersionedFacade also reports a per-kind version that increases on every
// write. db.SettingsRepo implements it.
type VersionedFacade interface {
	Facade
	GetVersioned(ctx context.Context, kind models.Kind) (json.RawMessage, int64, error)
}

// StoreFacade keeps settings in a key-value store under "settings:<kind>".
type StoreFacade struct {
	st store.Store
}

func NewStoreFacade(st store.Store) *StoreFacade {
	return &StoreFacade{st: st}
}

func settingsKey(kind models.Kind) string {
	return "settings:" + string(kind)
}

func (f *StoreFacade) Get(ctx context.Context, kind models.Kind) (json.RawMessage, error) {
	v, ok, err := f.st.Get(ctx, settingsKey(kind))
	if err != nil || !ok {
		return nil, err
	}
	return json.RawMessage(v), nil
}

func (f *StoreFacade) Set(ctx context.Context, kind models.Kind, payload json.RawMessage) error {
	return f.st.Set(ctx, settingsKey(kind), payload)
}
