// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package transport

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	retry "github.com/avast/retry-go/v5"
	"github.com/redis/go-redis/v9"
)

// Redis is a pub/sub channel shared by every replica connected to the same
// server. Unlike HubChannel, Redis echoes frames back to the publisher;
// receivers filter self-originated events.
type Redis struct {
	rdb       redis.UniversalClient
	channel   string
	pubsub    *redis.PubSub
	cancel    context.CancelFunc
	listeners *listeners
	logger    *slog.Logger
	closeOnce sync.Once
}

// NewRedis subscribes to channel and starts the receive loop.
func NewRedis(rdb redis.UniversalClient, channel string, logger *slog.Logger) (*Redis, error) {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())

	pubsub := rdb.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		cancel()
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	t := &Redis{
		rdb:       rdb,
		channel:   channel,
		pubsub:    pubsub,
		cancel:    cancel,
		listeners: newListeners(),
		logger:    logger.WithGroup("transport.redis"),
	}
	go t.receive()
	return t, nil
}

func (t *Redis) receive() {
	for msg := range t.pubsub.Channel() {
		t.listeners.emit([]byte(msg.Payload))
	}
	t.logger.Debug("receive loop finished", "channel", t.channel)
}

func (t *Redis) Name() string { return "redis:" + t.channel }

func (t *Redis) Publish(ctx context.Context, data []byte) error {
	if err := t.rdb.Publish(ctx, t.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish on %s: %w", t.channel, err)
	}
	return nil
}

func (t *Redis) Subscribe(fn func([]byte)) func() {
	return t.listeners.add(fn)
}

func (t *Redis) Close() error {
	var err error
	t.closeOnce.Do(func() {
		t.cancel()
		err = t.pubsub.Close()
		t.listeners.clear()
	})
	return err
}

// RedisProbe pings the server a few times before subscribing so a slow
// start does not push the process onto the fallback path.
func RedisProbe(ctx context.Context, rdb redis.UniversalClient, channel string, logger *slog.Logger) Probe {
	return Probe{
		Name: "redis:" + channel,
		Open: func() (Transport, error) {
			err := retry.New(
				retry.Attempts(3),
				retry.Delay(200*time.Millisecond),
				retry.DelayType(retry.FixedDelay),
				retry.LastErrorOnly(true),
				retry.Context(ctx),
			).Do(func() error {
				return rdb.Ping(ctx).Err()
			})
			if err != nil {
				return nil, fmt.Errorf("redis unreachable: %w", err)
			}
			return NewRedis(rdb, channel, logger)
		},
	}
}
