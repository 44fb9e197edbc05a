// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package transport

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/danielhkuo/livedraw/store"
)

const (
	DefaultTriggerKey        = "livedraw:settings-sync-event"
	DefaultTriggerClearDelay = 100 * time.Millisecond
)

// StorageTrigger uses a watchable store as a broadcast medium. Publish
// writes the frame to a fixed key and removes it after a short delay, so
// the key acts as a change trigger rather than durable state.
type StorageTrigger struct {
	st         store.Store
	key        string
	clearDelay time.Duration
	stopWatch  func()
	listeners  *listeners
	logger     *slog.Logger
	mu         sync.Mutex
	timers     map[*time.Timer]struct{}
	closed     bool
}

func NewStorageTrigger(st store.Store, key string, clearDelay time.Duration, logger *slog.Logger) (*StorageTrigger, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if key == "" {
		key = DefaultTriggerKey
	}
	if clearDelay <= 0 {
		clearDelay = DefaultTriggerClearDelay
	}

	t := &StorageTrigger{
		st:         st,
		key:        key,
		clearDelay: clearDelay,
		listeners:  newListeners(),
		logger:     logger.WithGroup("transport.storage"),
		timers:     make(map[*time.Timer]struct{}),
	}

	stop, err := store.Watch(st, t.onChange)
	if err != nil {
		return nil, fmt.Errorf("storage trigger needs change notification: %w", err)
	}
	t.stopWatch = stop
	return t, nil
}

func (t *StorageTrigger) onChange(c store.Change) {
	if c.Key != t.key || c.Removed || len(c.Value) == 0 {
		return
	}
	t.listeners.emit(c.Value)
}

func (t *StorageTrigger) Name() string { return "storage:" + t.key }

// Publish returns the write error so the caller can log it; the frame is
// not retried.
func (t *StorageTrigger) Publish(ctx context.Context, data []byte) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	t.mu.Unlock()

	if err := t.st.Set(ctx, t.key, data); err != nil {
		return fmt.Errorf("failed to write trigger: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	var timer *time.Timer
	timer = time.AfterFunc(t.clearDelay, func() {
		t.mu.Lock()
		delete(t.timers, timer)
		t.mu.Unlock()
		if err := t.st.Remove(context.Background(), t.key); err != nil {
			t.logger.Debug("failed to clear trigger", "key", t.key, "error", err)
		}
	})
	t.timers[timer] = struct{}{}
	return nil
}

func (t *StorageTrigger) Subscribe(fn func([]byte)) func() {
	return t.listeners.add(fn)
}

// Close stops watching and cancels pending clears.
func (t *StorageTrigger) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	for timer := range t.timers {
		timer.Stop()
	}
	t.timers = nil
	t.mu.Unlock()

	t.stopWatch()
	t.listeners.clear()
	return nil
}
