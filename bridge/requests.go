// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package bridge

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/danielhkuo/livedraw/models"
)

const DefaultRequestTimeout = 5 * time.Second

// Requests tracks outstanding requests by id. Every wait is bounded by the
// timeout, and an entry is removed whether it is answered or not.
type Requests struct {
	mu      sync.Mutex
	pending map[string]chan models.CrossContextMessage
	timeout time.Duration
}

func NewRequests(timeout time.Duration) *Requests {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &Requests{
		pending: make(map[string]chan models.CrossContextMessage),
		timeout: timeout,
	}
}

// Register reserves a new request id.
func (r *Requests) Register() (string, <-chan models.CrossContextMessage) {
	id := uuid.NewString()
	ch := make(chan models.CrossContextMessage, 1)

	r.mu.Lock()
	r.pending[id] = ch
	r.mu.Unlock()

	return id, ch
}

// Resolve hands a reply to its waiter. It reports false if no request with
// that id is pending.
func (r *Requests) Resolve(msg models.CrossContextMessage) bool {
	r.mu.Lock()
	ch, ok := r.pending[msg.RequestID]
	if ok {
		delete(r.pending, msg.RequestID)
	}
	r.mu.Unlock()

	if ok {
		ch <- msg
	}
	return ok
}

// Await waits for the reply to id. It returns false when the timeout or
// ctx expires first; that is an expected outcome, not an error.
func (r *Requests) Await(ctx context.Context, id string, ch <-chan models.CrossContextMessage) (models.CrossContextMessage, bool) {
	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case msg, ok := <-ch:
		return msg, ok
	case <-timer.C:
	case <-ctx.Done():
	}
	r.Cancel(id)

	// a reply may have raced the timer
	select {
	case msg, ok := <-ch:
		return msg, ok
	default:
		return models.CrossContextMessage{}, false
	}
}

func (r *Requests) Cancel(id string) {
	r.mu.Lock()
	delete(r.pending, id)
	r.mu.Unlock()
}

// CancelAll releases every waiter with no reply.
func (r *Requests) CancelAll() {
	r.mu.Lock()
	pending := r.pending
	r.pending = make(map[string]chan models.CrossContextMessage)
	r.mu.Unlock()

	for _, ch := range pending {
		close(ch)
	}
}

func (r *Requests) Has(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.pending[id]
	return ok
}

func (r *Requests) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

func (r *Requests) Timeout() time.Duration { return r.timeout }
