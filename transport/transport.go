// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package transport

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

var ErrClosed = errors.New("transport closed")

// Transport delivers opaque frames to other contexts.
type Transport interface {
	Name() string
	Publish(ctx context.Context, data []byte) error
	// Subscribe registers fn for every received frame. The returned func
	// removes only that registration.
	Subscribe(fn func([]byte)) (unsubscribe func())
	Close() error
}

// Probe constructs a transport if the environment supports it.
type Probe struct {
	Name string
	Open func() (Transport, error)
}

// Select returns the first transport whose probe succeeds. Probe failures
// are logged and never returned; nil means no primary transport is available.
func Select(logger *slog.Logger, probes ...Probe) Transport {
	if logger == nil {
		logger = slog.Default()
	}
	for _, p := range probes {
		t, err := p.Open()
		if err != nil {
			logger.Warn("transport unavailable, trying next", "transport", p.Name, "error", err)
			continue
		}
		logger.Info("transport selected", "transport", t.Name())
		return t
	}
	logger.Warn("no primary transport available, relying on storage fallback")
	return nil
}

// listeners is the subscriber registry shared by the implementations.
type listeners struct {
	mu     sync.RWMutex
	fns    map[int]func([]byte)
	nextID int
}

func newListeners() *listeners {
	return &listeners{fns: make(map[int]func([]byte))}
}

func (l *listeners) add(fn func([]byte)) func() {
	l.mu.Lock()
	id := l.nextID
	l.nextID++
	l.fns[id] = fn
	l.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.fns, id)
			l.mu.Unlock()
		})
	}
}

func (l *listeners) emit(data []byte) {
	l.mu.RLock()
	fns := make([]func([]byte), 0, len(l.fns))
	for _, fn := range l.fns {
		fns = append(fns, fn)
	}
	l.mu.RUnlock()

	for _, fn := range fns {
		fn(data)
	}
}

func (l *listeners) clear() {
	l.mu.Lock()
	l.fns = make(map[int]func([]byte))
	l.mu.Unlock()
}
