// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package leader

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/danielhkuo/livedraw/models"
	"github.com/danielhkuo/livedraw/store"
)

const (
	DefaultKey        = "livedraw:leader"
	DefaultStaleAfter = 10 * time.Second
	DefaultHeartbeat  = 5 * time.Second
)

type Options struct {
	// ID identifies this context; generated when empty.
	ID         string
	Key        string
	StaleAfter time.Duration
	Heartbeat  time.Duration
	Now        func() time.Time
	Logger     *slog.Logger
}

// Elector holds a lease in a shared store slot. Leadership is a best-effort
// lease: a record older than StaleAfter may be taken over by anyone.
type Elector struct {
	st         store.Store
	id         string
	key        string
	staleAfter time.Duration
	heartbeat  time.Duration
	now        func() time.Time
	logger     *slog.Logger

	isLeader atomic.Bool
}

func New(st store.Store, opts Options) *Elector {
	if opts.ID == "" {
		opts.ID = uuid.NewString()
	}
	if opts.Key == "" {
		opts.Key = DefaultKey
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = DefaultStaleAfter
	}
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = DefaultHeartbeat
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Elector{
		st:         st,
		id:         opts.ID,
		key:        opts.Key,
		staleAfter: opts.StaleAfter,
		heartbeat:  opts.Heartbeat,
		now:        opts.Now,
		logger:     opts.Logger.WithGroup("leader"),
	}
}

func (e *Elector) ID() string { return e.id }

func (e *Elector) IsLeader() bool { return e.isLeader.Load() }

// Current reads the lease record.
func (e *Elector) Current(ctx context.Context) (models.LeaderRecord, bool, error) {
	raw, ok, err := e.st.Get(ctx, e.key)
	if err != nil || !ok {
		return models.LeaderRecord{}, false, err
	}
	var rec models.LeaderRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		// An unreadable record is treated like a missing one.
		e.logger.Warn("ignoring corrupt leader record", "error", err)
		return models.LeaderRecord{}, false, nil
	}
	return rec, true, nil
}

// Check runs one election round: claim an absent or stale lease, otherwise
// follow whoever holds it.
func (e *Elector) Check(ctx context.Context) (bool, error) {
	rec, ok, err := e.Current(ctx)
	if err != nil {
		e.setLeader(false)
		return false, fmt.Errorf("failed to read leader record: %w", err)
	}

	now := e.now()
	switch {
	case !ok:
		return e.claim(ctx, "absent")
	case rec.Age(now) > e.staleAfter:
		e.logger.Info("taking over stale leadership", "previous", rec.ID, "age", rec.Age(now))
		return e.claim(ctx, "stale")
	default:
		e.setLeader(rec.ID == e.id)
		return e.IsLeader(), nil
	}
}

// Renew refreshes the lease timestamp while leader. If another context
// holds a live lease, this context steps down instead.
func (e *Elector) Renew(ctx context.Context) (bool, error) {
	rec, ok, err := e.Current(ctx)
	if err != nil {
		e.setLeader(false)
		return false, fmt.Errorf("failed to read leader record: %w", err)
	}
	if ok && rec.ID != e.id && rec.Age(e.now()) <= e.staleAfter {
		e.logger.Info("lost leadership", "leader", rec.ID)
		e.setLeader(false)
		return false, nil
	}
	return e.claim(ctx, "heartbeat")
}

func (e *Elector) claim(ctx context.Context, reason string) (bool, error) {
	rec := models.LeaderRecord{ID: e.id, Timestamp: e.now().UnixMilli()}
	raw, err := json.Marshal(rec)
	if err != nil {
		return false, err
	}
	if err := e.st.Set(ctx, e.key, raw); err != nil {
		e.setLeader(false)
		return false, fmt.Errorf("failed to write leader record: %w", err)
	}
	if reason != "heartbeat" {
		e.logger.Debug("leader record written", "reason", reason)
	}
	e.setLeader(true)
	return true, nil
}

func (e *Elector) setLeader(v bool) {
	if e.isLeader.Swap(v) != v {
		e.logger.Info("leadership changed", "id", e.id, "is_leader", v)
	}
}

// Run checks at startup and then every heartbeat until ctx is done, at
// which point it resigns. Store errors are logged, not returned.
func (e *Elector) Run(ctx context.Context) error {
	if _, err := e.Check(ctx); err != nil {
		e.logger.Warn("leader check failed", "error", err)
	}

	ticker := time.NewTicker(e.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			resignCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			if err := e.Resign(resignCtx); err != nil {
				e.logger.Warn("failed to resign leadership", "error", err)
			}
			return nil
		case <-ticker.C:
			var err error
			if e.IsLeader() {
				_, err = e.Renew(ctx)
			} else {
				_, err = e.Check(ctx)
			}
			if err != nil {
				e.logger.Warn("leader heartbeat failed", "error", err)
			}
		}
	}
}

// Resign deletes the record if this context still holds it. Abrupt
// termination skips this; staleness takeover covers that case.
func (e *Elector) Resign(ctx context.Context) error {
	if !e.isLeader.Load() {
		return nil
	}
	e.setLeader(false)

	rec, ok, err := e.Current(ctx)
	if err != nil {
		return err
	}
	if !ok || rec.ID != e.id {
		return nil
	}
	return e.st.Remove(ctx, e.key)
}
