// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package store

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielhkuo/livedraw/testutil"
)

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	_, ok, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "k", []byte(`{"id":"A"}`)))
	v, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"id":"A"}`, string(v))

	require.NoError(t, s.Set(ctx, "k", []byte(`{"id":"B"}`)))
	v, _, _ = s.Get(ctx, "k")
	assert.Equal(t, `{"id":"B"}`, string(v))

	require.NoError(t, s.Remove(ctx, "k"))
	_, ok, err = s.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	// removing an absent key is not an error
	assert.NoError(t, s.Remove(ctx, "k"))
}

func TestMemory(t *testing.T) {
	exerciseStore(t, NewMemory())
}

func TestSQL(t *testing.T) {
	exerciseStore(t, NewSQL(testutil.SetupTestDB(t)))
}

func TestSQL_NotWatchable(t *testing.T) {
	_, err := Watch(NewSQL(testutil.SetupTestDB(t)), func(Change) {})
	assert.ErrorIs(t, err, ErrWatchUnsupported)
}

func TestMemory_ValuesAreCopied(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	in := []byte("abc")
	require.NoError(t, m.Set(ctx, "k", in))
	in[0] = 'x'

	out, _, _ := m.Get(ctx, "k")
	assert.Equal(t, "abc", string(out))
	out[0] = 'y'

	again, _, _ := m.Get(ctx, "k")
	assert.Equal(t, "abc", string(again))
}

func TestMemory_Quota(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryWithQuota(10)

	require.NoError(t, m.Set(ctx, "k", []byte("12345"))) // 6 bytes
	assert.ErrorIs(t, m.Set(ctx, "k2", []byte("12345")), ErrQuotaExceeded)

	// the failed write left state intact
	_, ok, _ := m.Get(ctx, "k2")
	assert.False(t, ok)
	v, _, _ := m.Get(ctx, "k")
	assert.Equal(t, "12345", string(v))

	// replacing a value only counts the difference
	require.NoError(t, m.Set(ctx, "k", []byte("123456789")))
	require.NoError(t, m.Remove(ctx, "k"))
	assert.NoError(t, m.Set(ctx, "k2", []byte("12345")))
}

func TestMemory_Watch(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	var mu sync.Mutex
	var got []Change
	cancel, err := Watch(m, func(c Change) {
		mu.Lock()
		got = append(got, c)
		mu.Unlock()
	})
	require.NoError(t, err)

	require.NoError(t, m.Set(ctx, "k", []byte("v")))
	require.NoError(t, m.Remove(ctx, "k"))
	require.NoError(t, m.Remove(ctx, "k")) // no event for an absent key

	cancel()
	require.NoError(t, m.Set(ctx, "k", []byte("after")))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 2)
	assert.Equal(t, Change{Key: "k", Value: []byte("v")}, got[0])
	assert.Equal(t, Change{Key: "k", Removed: true}, got[1])
}

// Redis tests need a live server; set REDIS_URL to run them.
func redisClient(t *testing.T) *redis.Client {
	t.Helper()
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	opts, err := redis.ParseURL(url)
	require.NoError(t, err)
	rdb := redis.NewClient(opts)
	t.Cleanup(func() { rdb.Close() })
	require.NoError(t, rdb.Ping(context.Background()).Err())
	return rdb
}

func TestRedis(t *testing.T) {
	rdb := redisClient(t)
	prefix := "livedraw-test:" + t.Name() + ":"
	exerciseStore(t, NewRedis(rdb, prefix, testutil.DiscardLogger()))
}

func TestRedis_Watch(t *testing.T) {
	rdb := redisClient(t)
	prefix := "livedraw-test:" + t.Name() + ":"
	writer := NewRedis(rdb, prefix, testutil.DiscardLogger())
	reader := NewRedis(rdb, prefix, testutil.DiscardLogger())

	changes := make(chan Change, 4)
	cancel, err := reader.Watch(func(c Change) { changes <- c })
	require.NoError(t, err)
	defer cancel()

	ctx := context.Background()
	require.NoError(t, writer.Set(ctx, "slot", []byte("v1")))
	require.NoError(t, writer.Remove(ctx, "slot"))

	for _, want := range []Change{{Key: "slot", Value: []byte("v1")}, {Key: "slot", Removed: true}} {
		select {
		case c := <-changes:
			assert.Equal(t, want, c)
		case <-time.After(2 * time.Second):
			t.Fatal("change not delivered")
		}
	}
}
