// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package store

import (
	"context"
	"sync"
)

// Memory is an in-process store shared by every context in the process.
// A zero quota means unlimited.
type Memory struct {
	mu       sync.RWMutex
	data     map[string][]byte
	used     int
	quota    int
	watchers map[int]func(Change)
	nextID   int
}

func NewMemory() *Memory {
	return NewMemoryWithQuota(0)
}

// NewMemoryWithQuota limits the total bytes of keys plus values.
func NewMemoryWithQuota(quota int) *Memory {
	return &Memory{
		data:     make(map[string][]byte),
		quota:    quota,
		watchers: make(map[int]func(Change)),
	}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	used := m.used
	if old, ok := m.data[key]; ok {
		used -= len(key) + len(old)
	}
	used += len(key) + len(value)
	if m.quota > 0 && used > m.quota {
		m.mu.Unlock()
		return ErrQuotaExceeded
	}

	v := make([]byte, len(value))
	copy(v, value)
	m.data[key] = v
	m.used = used
	watchers := m.snapshotWatchers()
	m.mu.Unlock()

	notify(watchers, Change{Key: key, Value: v})
	return nil
}

func (m *Memory) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	old, ok := m.data[key]
	if !ok {
		m.mu.Unlock()
		return nil
	}
	delete(m.data, key)
	m.used -= len(key) + len(old)
	watchers := m.snapshotWatchers()
	m.mu.Unlock()

	notify(watchers, Change{Key: key, Removed: true})
	return nil
}

func (m *Memory) Watch(fn func(Change)) (func(), error) {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.watchers[id] = fn
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.watchers, id)
			m.mu.Unlock()
		})
	}, nil
}

// must hold m.mu
func (m *Memory) snapshotWatchers() []func(Change) {
	out := make([]func(Change), 0, len(m.watchers))
	for _, fn := range m.watchers {
		out = append(out, fn)
	}
	return out
}

func notify(watchers []func(Change), c Change) {
	for _, fn := range watchers {
		fn(c)
	}
}
