// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/danielhkuo/livedraw/models"
)

var ErrSessionClosed = errors.New("bridge session closed")

const sendBufferSize = 64 // Buffer size for the send channel.

// Conn is the message-post primitive under a session. *websocket.Conn
// satisfies it.
type Conn interface {
	ReadJSON(v any) error
	WriteJSON(v any) error
	Close() error
}

type SessionOptions struct {
	ID string
	// Origin is the peer's origin, checked by the dispatcher on every message.
	Origin            string
	Dispatcher        *Dispatcher
	RequestTimeout    time.Duration
	MessagesPerSecond float64
	Logger            *slog.Logger
}

// Session is one connected peer. Reads happen on the goroutine running Run;
// writes go through a buffered channel drained by a single write pump.
type Session struct {
	id         string
	origin     string
	conn       Conn
	send       chan models.CrossContextMessage
	requests   *Requests
	dispatcher *Dispatcher
	limiter    *rate.Limiter
	logger     *slog.Logger

	mu         sync.RWMutex
	caps       models.Handshake
	handshaken bool
	subject    string

	done      chan struct{}
	closeOnce sync.Once
}

func NewSession(conn Conn, opts SessionOptions) *Session {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	s := &Session{
		id:         opts.ID,
		origin:     opts.Origin,
		conn:       conn,
		send:       make(chan models.CrossContextMessage, sendBufferSize),
		requests:   NewRequests(opts.RequestTimeout),
		dispatcher: opts.Dispatcher,
		logger:     opts.Logger.With("session", opts.ID, "origin", opts.Origin),
		done:       make(chan struct{}),
	}
	if opts.MessagesPerSecond > 0 {
		burst := max(int(opts.MessagesPerSecond*2), 1)
		s.limiter = rate.NewLimiter(rate.Limit(opts.MessagesPerSecond), burst)
	}
	return s
}

func (s *Session) ID() string     { return s.id }
func (s *Session) Origin() string { return s.origin }

// Requests exposes the pending request table.
func (s *Session) Requests() *Requests { return s.requests }

// Capabilities returns the handshake payload, if one arrived.
func (s *Session) Capabilities() (models.Handshake, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.caps, s.handshaken
}

func (s *Session) SetCapabilities(h models.Handshake) {
	s.mu.Lock()
	s.caps = h
	s.handshaken = true
	s.mu.Unlock()
}

// Subject keys per-install state such as auth tokens. It is empty until
// the session proves an install id with SetSubject; the origin is shared by
// every browser on a site and never stands in for it.
func (s *Session) Subject() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.subject
}

// SetSubject records a verified install id.
func (s *Session) SetSubject(subject string) {
	s.mu.Lock()
	s.subject = subject
	s.mu.Unlock()
}

// Run pumps messages until the connection fails, ctx is done, or Close is
// called. The session is closed when Run returns.
func (s *Session) Run(ctx context.Context) error {
	defer s.Close()

	go s.writePump()
	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-s.done:
		}
	}()

	return s.readPump(ctx)
}

func (s *Session) readPump(ctx context.Context) error {
	for {
		var msg models.CrossContextMessage
		if err := s.conn.ReadJSON(&msg); err != nil {
			select {
			case <-s.done:
				return nil
			default:
			}
			s.logger.Debug("bridge read finished", "error", err)
			return err
		}

		if s.limiter != nil && !s.limiter.Allow() {
			s.logger.Warn("rate limit exceeded, message dropped", "type", msg.Type)
			continue
		}

		s.dispatcher.Dispatch(ctx, s, msg)
	}
}

func (s *Session) writePump() {
	for {
		select {
		case msg := <-s.send:
			if err := s.conn.WriteJSON(msg); err != nil {
				s.logger.Warn("bridge write failed", "type", msg.Type, "error", err)
				s.Close()
				return
			}
		case <-s.done:
			return
		}
	}
}

// Send queues msg for the peer, waiting for buffer space.
func (s *Session) Send(ctx context.Context, msg models.CrossContextMessage) error {
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}
	select {
	case s.send <- msg:
		return nil
	case <-s.done:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TrySend queues msg without waiting; a full buffer drops the message.
func (s *Session) TrySend(msg models.CrossContextMessage) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.send <- msg:
		return true
	default:
		s.logger.Warn("send buffer full, message dropped", "type", msg.Type)
		return false
	}
}

// Reply answers req with a message of type t.
func (s *Session) Reply(ctx context.Context, req models.CrossContextMessage, t models.MessageType, payload any) error {
	msg, err := models.NewMessage(t, payload)
	if err != nil {
		return err
	}
	msg.RequestID = req.RequestID
	return s.Send(ctx, msg)
}

// Request sends msg and waits for the reply. A reply that does not arrive
// within the request timeout yields ok == false and no error.
func (s *Session) Request(ctx context.Context, msg models.CrossContextMessage) (reply models.CrossContextMessage, ok bool, err error) {
	id, ch := s.requests.Register()
	msg.RequestID = id
	if err := s.Send(ctx, msg); err != nil {
		s.requests.Cancel(id)
		return models.CrossContextMessage{}, false, fmt.Errorf("failed to send %s: %w", msg.Type, err)
	}
	reply, ok = s.requests.Await(ctx, id, ch)
	if !ok {
		s.logger.Debug("request got no reply", "type", msg.Type, "timeout", s.requests.Timeout())
	}
	return reply, ok, nil
}

// Done is closed when the session closes.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.conn.Close()
		s.requests.CancelAll()
	})
}
