// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package store

import (
	"context"
	"errors"
)

var (
	ErrQuotaExceeded    = errors.New("storage quota exceeded")
	ErrWatchUnsupported = errors.New("store does not support change notification")
	ErrClosed           = errors.New("store closed")
)

// Change describes a mutation of one key, the equivalent of a storage event.
type Change struct {
	Key     string `json:"key"`
	Value   []byte `json:"value,omitempty"`
	Removed bool   `json:"removed,omitempty"`
}

// Store is the shared key-value slot used for leader records, broadcast
// triggers, and settings.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, key string) error
}

// Watcher is implemented by stores that notify about changes.
// The returned cancel func stops delivery to fn.
type Watcher interface {
	Watch(fn func(Change)) (cancel func(), err error)
}

// WatchableStore is a Store with change notification.
type WatchableStore interface {
	Store
	Watcher
}

// Watch subscribes to s if it supports change notification.
func Watch(s Store, fn func(Change)) (func(), error) {
	w, ok := s.(Watcher)
	if !ok {
		return nil, ErrWatchUnsupported
	}
	return w.Watch(fn)
}
