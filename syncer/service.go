// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/danielhkuo/livedraw/models"
	"github.com/danielhkuo/livedraw/transport"
)

var ErrNoFacade = errors.New("no settings facade configured")

// Facade is the settings persistence the service writes through.
type Facade interface {
	Get(ctx context.Context, kind models.Kind) (json.RawMessage, error)
	Set(ctx context.Context, kind models.Kind, payload json.RawMessage) error
}

// Listener receives applied events.
type Listener func(models.SettingsChangeEvent)

type Options struct {
	// OriginID identifies this context. Generated when empty.
	OriginID string
	// Primary is the pub/sub transport chosen by transport.Select; may be nil.
	Primary transport.Transport
	// Fallback is published to on every broadcast; may be nil.
	Fallback transport.Transport
	Facade   Facade
	Logger   *slog.Logger
	Now      func() time.Time
}

// Service broadcasts settings changes to other contexts and applies the
// changes they broadcast. It owns its transports and closes them on Close.
type Service struct {
	originID   string
	transports []transport.Transport
	unsubs     []func()
	facade     Facade
	logger     *slog.Logger
	now        func() time.Time

	mu      sync.Mutex
	applied map[models.Kind]models.SettingsChangeEvent
	remote  map[int]Listener
	local   map[int]Listener
	nextID  int
	closed  bool
}

func New(opts Options) *Service {
	if opts.OriginID == "" {
		opts.OriginID = uuid.NewString()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	s := &Service{
		originID: opts.OriginID,
		facade:   opts.Facade,
		logger:   opts.Logger.WithGroup("syncer"),
		now:      opts.Now,
		applied:  make(map[models.Kind]models.SettingsChangeEvent),
		remote:   make(map[int]Listener),
		local:    make(map[int]Listener),
	}

	for _, t := range []transport.Transport{opts.Primary, opts.Fallback} {
		if t == nil {
			continue
		}
		s.transports = append(s.transports, t)
		s.unsubs = append(s.unsubs, t.Subscribe(s.receive))
	}

	return s
}

func (s *Service) OriginID() string { return s.originID }

// Transports lists the names of the transports in publish order.
func (s *Service) Transports() []string {
	names := make([]string, 0, len(s.transports))
	for _, t := range s.transports {
		names = append(names, t.Name())
	}
	return names
}

// Broadcast stamps the event when Timestamp or OriginID are unset, records
// it as applied, notifies local listeners, and then publishes it on every
// transport. Transport failures are logged and never returned.
func (s *Service) Broadcast(ctx context.Context, ev models.SettingsChangeEvent) models.SettingsChangeEvent {
	s.mu.Lock()
	if ev.OriginID == "" {
		ev.OriginID = s.originID
	}
	last, seen := s.applied[ev.Kind]
	if ev.Timestamp == 0 {
		ev.Timestamp = s.now().UnixMilli()
		// keep local timestamps strictly increasing per kind
		if seen && ev.Timestamp <= last.Timestamp {
			ev.Timestamp = last.Timestamp + 1
		}
	}
	if !seen || ev.Timestamp > last.Timestamp {
		s.applied[ev.Kind] = ev
	}
	locals := snapshot(s.local)
	closed := s.closed
	s.mu.Unlock()

	for _, fn := range locals {
		fn(ev)
	}

	if closed {
		return ev
	}

	data, err := json.Marshal(ev)
	if err != nil {
		s.logger.Error("failed to encode event", "kind", ev.Kind, "error", err)
		return ev
	}
	for _, t := range s.transports {
		if err := t.Publish(ctx, data); err != nil {
			s.logger.Warn("broadcast attempt abandoned", "transport", t.Name(), "kind", ev.Kind, "error", err)
		}
	}

	s.logger.Debug("settings change broadcast", "kind", ev.Kind, "timestamp", ev.Timestamp)
	return ev
}

func (s *Service) receive(data []byte) {
	var ev models.SettingsChangeEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		s.logger.Warn("dropping undecodable event", "error", err)
		return
	}
	if ev.Kind == "" {
		s.logger.Warn("dropping event without kind", "origin_id", ev.OriginID)
		return
	}
	if ev.OriginID == s.originID {
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if last, ok := s.applied[ev.Kind]; ok && ev.Timestamp <= last.Timestamp {
		s.mu.Unlock()
		s.logger.Debug("discarding stale event", "kind", ev.Kind, "timestamp", ev.Timestamp, "applied", last.Timestamp)
		return
	}
	s.applied[ev.Kind] = ev
	remotes := snapshot(s.remote)
	s.mu.Unlock()

	for _, fn := range remotes {
		fn(ev)
	}
}

// Subscribe registers fn for events applied from other contexts. Events
// this context broadcast are never delivered to fn.
func (s *Service) Subscribe(fn Listener) (unsubscribe func()) {
	return s.add(s.remote, fn)
}

// SubscribeLocal registers fn for events broadcast by this context. It is
// called synchronously inside Broadcast, before any transport write.
func (s *Service) SubscribeLocal(fn Listener) (unsubscribe func()) {
	return s.add(s.local, fn)
}

func (s *Service) add(set map[int]Listener, fn Listener) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	set[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(set, id)
			s.mu.Unlock()
		})
	}
}

// Update persists payload through the facade and broadcasts the change.
// Facade errors are returned; nothing is broadcast in that case.
func (s *Service) Update(ctx context.Context, kind models.Kind, payload json.RawMessage) (models.SettingsChangeEvent, error) {
	if s.facade == nil {
		return models.SettingsChangeEvent{}, ErrNoFacade
	}
	if err := s.facade.Set(ctx, kind, payload); err != nil {
		return models.SettingsChangeEvent{}, fmt.Errorf("failed to persist %s settings: %w", kind, err)
	}
	return s.Broadcast(ctx, models.SettingsChangeEvent{Kind: kind, Payload: payload}), nil
}

// Commit is Update for an event relayed on behalf of another context. The
// event's OriginID is kept, so the relaying context's listeners can tell
// which peer to skip.
func (s *Service) Commit(ctx context.Context, ev models.SettingsChangeEvent) (models.SettingsChangeEvent, error) {
	if s.facade == nil {
		return models.SettingsChangeEvent{}, ErrNoFacade
	}
	if _, err := models.ParseKind(string(ev.Kind)); err != nil {
		return models.SettingsChangeEvent{}, err
	}
	if err := s.facade.Set(ctx, ev.Kind, ev.Payload); err != nil {
		return models.SettingsChangeEvent{}, fmt.Errorf("failed to persist %s settings: %w", ev.Kind, err)
	}
	return s.Broadcast(ctx, ev), nil
}

// Get reads the current settings through the facade.
func (s *Service) Get(ctx context.Context, kind models.Kind) (json.RawMessage, error) {
	if s.facade == nil {
		return nil, ErrNoFacade
	}
	return s.facade.Get(ctx, kind)
}

// Applied returns the most recent event applied for kind.
func (s *Service) Applied(kind models.Kind) (models.SettingsChangeEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.applied[kind]
	return ev, ok
}

// Close unsubscribes all listeners and closes the transports.
func (s *Service) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.remote = make(map[int]Listener)
	s.local = make(map[int]Listener)
	s.mu.Unlock()

	for _, unsub := range s.unsubs {
		unsub()
	}
	var errs []error
	for _, t := range s.transports {
		if err := t.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", t.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// must hold s.mu
func snapshot(set map[int]Listener) []Listener {
	out := make([]Listener, 0, len(set))
	for _, fn := range set {
		out = append(out, fn)
	}
	return out
}
