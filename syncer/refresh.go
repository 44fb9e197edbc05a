// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package syncer

import (
	"context"
	"log/slog"
	"time"

	"github.com/danielhkuo/livedraw/models"
)

// LeaderChecker reports whether this context currently holds leadership.
type LeaderChecker interface {
	IsLeader() bool
}

// Refresher periodically re-reads settings from a versioned facade and
// broadcasts kinds that changed outside this process. Only the leader
// refreshes, so replicas do not duplicate the reads.
type Refresher struct {
	svc      *Service
	facade   VersionedFacade
	leader   LeaderChecker
	interval time.Duration
	logger   *slog.Logger

	versions map[models.Kind]int64
	primed   bool
}

func NewRefresher(svc *Service, facade VersionedFacade, leader LeaderChecker, interval time.Duration, logger *slog.Logger) *Refresher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Refresher{
		svc:      svc,
		facade:   facade,
		leader:   leader,
		interval: interval,
		logger:   logger.WithGroup("refresher"),
		versions: make(map[models.Kind]int64),
	}
}

// Run refreshes on every tick until ctx is done. A non-positive interval
// disables refreshing and Run returns immediately.
func (r *Refresher) Run(ctx context.Context) error {
	if r.interval <= 0 {
		r.logger.Info("settings refresh disabled")
		return nil
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if !r.leader.IsLeader() {
				continue
			}
			if n := r.RefreshOnce(ctx); n > 0 {
				r.logger.Info("rebroadcast refreshed settings", "kinds", n)
			}
		}
	}
}

// RefreshOnce compares each kind's version with the last pass and
// broadcasts the ones that advanced. The first pass only records versions.
// It returns the number of kinds broadcast.
func (r *Refresher) RefreshOnce(ctx context.Context) int {
	broadcast := 0
	for _, kind := range models.Kinds {
		payload, version, err := r.facade.GetVersioned(ctx, kind)
		if err != nil {
			r.logger.Warn("failed to refresh settings", "kind", kind, "error", err)
			continue
		}
		if payload == nil || version <= r.versions[kind] {
			continue
		}
		r.versions[kind] = version
		if !r.primed {
			continue
		}
		// already seen through the service, from this replica or another
		if ev, ok := r.svc.Applied(kind); ok && ev.Timestamp >= version {
			continue
		}
		r.svc.Broadcast(ctx, models.SettingsChangeEvent{Kind: kind, Payload: payload})
		broadcast++
	}
	r.primed = true
	return broadcast
}
