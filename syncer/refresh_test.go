// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package syncer

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielhkuo/livedraw/db"
	"github.com/danielhkuo/livedraw/models"
	"github.com/danielhkuo/livedraw/testutil"
)

type leaderFlag struct{ v atomic.Bool }

func (l *leaderFlag) IsLeader() bool { return l.v.Load() }

func newRefreshFixture(t *testing.T) (*Service, *db.SettingsRepo, *events) {
	t.Helper()
	repo := db.NewSettingsRepo(testutil.SetupTestDB(t))
	svc := New(Options{OriginID: "leader", Facade: repo, Logger: testutil.DiscardLogger()})
	t.Cleanup(func() { svc.Close() })

	got := &events{}
	svc.SubscribeLocal(got.add)
	return svc, repo, got
}

func TestRefreshOnce_PrimesThenBroadcastsChanges(t *testing.T) {
	ctx := context.Background()
	svc, repo, got := newRefreshFixture(t)
	require.NoError(t, repo.Set(ctx, models.KindTheme, json.RawMessage(`{"primary":"#111"}`)))

	r := NewRefresher(svc, repo, &leaderFlag{}, time.Minute, testutil.DiscardLogger())

	assert.Equal(t, 0, r.RefreshOnce(ctx), "first pass only records versions")
	assert.Equal(t, 0, r.RefreshOnce(ctx), "nothing changed")

	// written by another process, behind the service's back
	require.NoError(t, repo.Set(ctx, models.KindTheme, json.RawMessage(`{"primary":"#222"}`)))
	assert.Equal(t, 1, r.RefreshOnce(ctx))

	evs := got.get()
	require.Len(t, evs, 1)
	assert.Equal(t, models.KindTheme, evs[0].Kind)
	assert.JSONEq(t, `{"primary":"#222"}`, string(evs[0].Payload))

	assert.Equal(t, 0, r.RefreshOnce(ctx))
}

func TestRefreshOnce_SkipsChangesAlreadyBroadcast(t *testing.T) {
	ctx := context.Background()
	svc, repo, got := newRefreshFixture(t)

	r := NewRefresher(svc, repo, &leaderFlag{}, time.Minute, testutil.DiscardLogger())
	r.RefreshOnce(ctx)

	_, err := svc.Update(ctx, models.KindBranding, json.RawMessage(`{"title":"Raffle"}`))
	require.NoError(t, err)
	require.Len(t, got.get(), 1)

	assert.Equal(t, 0, r.RefreshOnce(ctx))
	assert.Len(t, got.get(), 1)
}

func TestRun_DisabledInterval(t *testing.T) {
	svc, repo, _ := newRefreshFixture(t)
	r := NewRefresher(svc, repo, &leaderFlag{}, 0, testutil.DiscardLogger())

	done := make(chan error, 1)
	go func() { done <- r.Run(context.Background()) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run should return immediately when disabled")
	}
}

func TestRun_OnlyLeaderRefreshes(t *testing.T) {
	svc, repo, got := newRefreshFixture(t)
	leader := &leaderFlag{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := NewRefresher(svc, repo, leader, 10*time.Millisecond, testutil.DiscardLogger())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.NoError(t, repo.Set(ctx, models.KindSpinnerSettings, json.RawMessage(`{"speed":1}`)))
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, got.get(), "followers never refresh")

	// the first leader tick primes, so the change seen before it is not rebroadcast
	leader.v.Store(true)
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, repo.Set(ctx, models.KindSpinnerSettings, json.RawMessage(`{"speed":2}`)))

	assert.True(t, testutil.Eventually(t, time.Second, func() bool {
		return len(got.get()) == 1
	}))
	assert.JSONEq(t, `{"speed":2}`, string(got.get()[0].Payload))

	cancel()
	assert.NoError(t, <-done)
}
