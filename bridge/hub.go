// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package bridge

import (
	"sync"

	"github.com/samber/lo"

	"github.com/danielhkuo/livedraw/models"
)

// Hub holds the live sessions of one process.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewHub() *Hub {
	return &Hub{sessions: make(map[string]*Session)}
}

func (h *Hub) Add(s *Session) {
	h.mu.Lock()
	h.sessions[s.ID()] = s
	h.mu.Unlock()
}

func (h *Hub) Remove(s *Session) {
	h.mu.Lock()
	if cur, ok := h.sessions[s.ID()]; ok && cur == s {
		delete(h.sessions, s.ID())
	}
	h.mu.Unlock()
}

func (h *Hub) Get(id string) (*Session, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.sessions[id]
	return s, ok
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

func (h *Hub) all() []*Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return lo.Values(h.sessions)
}

// Broadcast queues msg on every session except exceptID and returns how
// many accepted it. Slow sessions drop the message rather than block.
func (h *Hub) Broadcast(msg models.CrossContextMessage, exceptID string) int {
	sent := 0
	for _, s := range h.all() {
		if s.ID() == exceptID {
			continue
		}
		if s.TrySend(msg) {
			sent++
		}
	}
	return sent
}

// ExtensionFor finds the extension background session that controls
// tabID's panel. A session announcing that exact tab wins over one that
// serves all tabs (tab id 0).
func (h *Hub) ExtensionFor(tabID int) (*Session, bool) {
	candidates := lo.Filter(h.all(), func(s *Session, _ int) bool {
		caps, ok := s.Capabilities()
		return ok && caps.IsExtension && !caps.IsSidePanel
	})
	if exact, ok := lo.Find(candidates, func(s *Session) bool {
		caps, _ := s.Capabilities()
		return tabID != 0 && caps.TabID == tabID
	}); ok {
		return exact, true
	}
	return lo.Find(candidates, func(s *Session) bool {
		caps, _ := s.Capabilities()
		return caps.TabID == 0
	})
}

// Close closes every session.
func (h *Hub) Close() {
	for _, s := range h.all() {
		s.Close()
	}
}
