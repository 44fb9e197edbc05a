// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package transport

import (
	"context"
	"sync"
)

// Hub is an in-process registry of named channels. A frame published on
// one channel instance reaches every other open instance with the same
// name, but never the publishing instance itself.
type Hub struct {
	mu       sync.RWMutex
	channels map[string]map[*HubChannel]struct{}
}

func NewHub() *Hub {
	return &Hub{channels: make(map[string]map[*HubChannel]struct{})}
}

// Open joins the named channel.
func (h *Hub) Open(name string) *HubChannel {
	ch := &HubChannel{hub: h, name: name, listeners: newListeners()}

	h.mu.Lock()
	if _, ok := h.channels[name]; !ok {
		h.channels[name] = make(map[*HubChannel]struct{})
	}
	h.channels[name][ch] = struct{}{}
	h.mu.Unlock()

	return ch
}

func (h *Hub) peers(from *HubChannel) []*HubChannel {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]*HubChannel, 0, len(h.channels[from.name]))
	for ch := range h.channels[from.name] {
		if ch != from {
			out = append(out, ch)
		}
	}
	return out
}

func (h *Hub) leave(ch *HubChannel) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.channels[ch.name], ch)
	if len(h.channels[ch.name]) == 0 {
		delete(h.channels, ch.name)
	}
}

type HubChannel struct {
	hub       *Hub
	name      string
	listeners *listeners

	closeOnce sync.Once
	closed    bool
	mu        sync.RWMutex
}

func (c *HubChannel) Name() string { return "hub:" + c.name }

func (c *HubChannel) Publish(_ context.Context, data []byte) error {
	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return ErrClosed
	}

	for _, peer := range c.hub.peers(c) {
		frame := make([]byte, len(data))
		copy(frame, data)
		peer.listeners.emit(frame)
	}
	return nil
}

func (c *HubChannel) Subscribe(fn func([]byte)) func() {
	return c.listeners.add(fn)
}

func (c *HubChannel) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		c.hub.leave(c)
		c.listeners.clear()
	})
	return nil
}
