// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package bridge

import (
	"context"
	"log/slog"
	"sync"

	"github.com/danielhkuo/livedraw/models"
)

type HandlerFunc func(ctx context.Context, s *Session, msg models.CrossContextMessage)

// Dispatcher routes messages to handlers by type after checking the
// sender's origin. Handshake is metadata, not a gate: messages that arrive
// before it are still dispatched.
type Dispatcher struct {
	policy OriginPolicy
	logger *slog.Logger

	mu       sync.RWMutex
	handlers map[models.MessageType]HandlerFunc
}

func NewDispatcher(policy OriginPolicy, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		policy:   policy,
		logger:   logger.WithGroup("bridge"),
		handlers: make(map[models.MessageType]HandlerFunc),
	}
}

func (d *Dispatcher) Handle(t models.MessageType, h HandlerFunc) {
	d.mu.Lock()
	d.handlers[t] = h
	d.mu.Unlock()
}

// Dispatch hands replies to their waiting request and runs the handler for
// anything else. It reports whether the message was consumed. Messages from
// origins outside the policy are dropped without a reply, replies included.
func (d *Dispatcher) Dispatch(ctx context.Context, s *Session, msg models.CrossContextMessage) bool {
	if !d.policy.Allowed(s.Origin()) {
		d.logger.Warn("dropping message from disallowed origin", "origin", s.Origin(), "type", msg.Type)
		return false
	}

	if msg.RequestID != "" && s.Requests().Resolve(msg) {
		return true
	}

	d.mu.RLock()
	h, ok := d.handlers[msg.Type]
	d.mu.RUnlock()
	if !ok {
		d.logger.Warn("ignoring unexpected message type", "type", msg.Type, "origin", s.Origin())
		return false
	}

	if _, shaken := s.Capabilities(); !shaken && msg.Type != models.MessageHandshake {
		d.logger.Debug("message before handshake", "type", msg.Type, "session", s.ID())
	}

	h(ctx, s, msg)
	return true
}
