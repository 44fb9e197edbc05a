// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// Redis stores slots as plain keys and publishes every mutation on a
// notification channel so other replicas see storage events.
type Redis struct {
	rdb     redis.UniversalClient
	prefix  string
	channel string
	logger  *slog.Logger
}

func NewRedis(rdb redis.UniversalClient, prefix string, logger *slog.Logger) *Redis {
	if logger == nil {
		logger = slog.Default()
	}
	return &Redis{
		rdb:     rdb,
		prefix:  prefix,
		channel: prefix + "changes",
		logger:  logger.WithGroup("store.redis"),
	}
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, err := r.rdb.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read %q: %w", key, err)
	}
	return v, true, nil
}

func (r *Redis) Set(ctx context.Context, key string, value []byte) error {
	if err := r.rdb.Set(ctx, r.prefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("failed to write %q: %w", key, err)
	}
	r.publish(ctx, Change{Key: key, Value: value})
	return nil
}

func (r *Redis) Remove(ctx context.Context, key string) error {
	if err := r.rdb.Del(ctx, r.prefix+key).Err(); err != nil {
		return fmt.Errorf("failed to remove %q: %w", key, err)
	}
	r.publish(ctx, Change{Key: key, Removed: true})
	return nil
}

// publish is best-effort; the write itself already succeeded.
func (r *Redis) publish(ctx context.Context, c Change) {
	msg, err := json.Marshal(c)
	if err != nil {
		r.logger.Error("failed to encode change", "key", c.Key, "error", err)
		return
	}
	if err := r.rdb.Publish(ctx, r.channel, msg).Err(); err != nil {
		r.logger.Warn("failed to publish change", "key", c.Key, "error", err)
	}
}

func (r *Redis) Watch(fn func(Change)) (func(), error) {
	ctx, cancel := context.WithCancel(context.Background())
	pubsub := r.rdb.Subscribe(ctx, r.channel)

	// Wait for the subscription to be confirmed so no change is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		cancel()
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", r.channel, err)
	}

	go func() {
		for msg := range pubsub.Channel() {
			var c Change
			if err := json.Unmarshal([]byte(msg.Payload), &c); err != nil {
				r.logger.Warn("dropping undecodable change", "error", err)
				continue
			}
			fn(c)
		}
	}()

	return func() {
		cancel()
		pubsub.Close()
	}, nil
}
