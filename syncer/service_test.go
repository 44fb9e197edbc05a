// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielhkuo/livedraw/models"
	"github.com/danielhkuo/livedraw/store"
	"github.com/danielhkuo/livedraw/testutil"
	"github.com/danielhkuo/livedraw/transport"
)

type events struct {
	mu  sync.Mutex
	evs []models.SettingsChangeEvent
}

func (e *events) add(ev models.SettingsChangeEvent) {
	e.mu.Lock()
	e.evs = append(e.evs, ev)
	e.mu.Unlock()
}

func (e *events) get() []models.SettingsChangeEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]models.SettingsChangeEvent(nil), e.evs...)
}

// newContexts builds services sharing one hub channel and one storage
// trigger, the way tabs share a BroadcastChannel and localStorage.
func newContexts(t *testing.T, ids ...string) []*Service {
	t.Helper()
	hub := transport.NewHub()
	st := store.NewMemory()
	logger := testutil.DiscardLogger()

	out := make([]*Service, 0, len(ids))
	for _, id := range ids {
		trigger, err := transport.NewStorageTrigger(st, "", 10*time.Millisecond, logger)
		require.NoError(t, err)
		svc := New(Options{
			OriginID: id,
			Primary:  hub.Open("settings-sync"),
			Fallback: trigger,
			Facade:   NewStoreFacade(store.NewMemory()),
			Logger:   logger,
		})
		t.Cleanup(func() { svc.Close() })
		out = append(out, svc)
	}
	return out
}

func TestBroadcast_ScenarioA(t *testing.T) {
	ctxs := newContexts(t, "X", "Y")
	x, y := ctxs[0], ctxs[1]

	var gotX, gotY events
	x.Subscribe(gotX.add)
	y.Subscribe(gotY.add)

	x.Broadcast(context.Background(), models.SettingsChangeEvent{
		Kind:     models.KindTheme,
		Payload:  json.RawMessage(`{"primary":"#112233"}`),
		OriginID: "X",
	})

	// delivered once even though both transports carried it
	evs := gotY.get()
	require.Len(t, evs, 1)
	var payload struct{ Primary string }
	require.NoError(t, json.Unmarshal(evs[0].Payload, &payload))
	assert.Equal(t, "#112233", payload.Primary)
	assert.Equal(t, "X", evs[0].OriginID)

	assert.Empty(t, gotX.get())
}

func TestBroadcast_NoSelfDelivery(t *testing.T) {
	ctxs := newContexts(t, "A", "B")
	a := ctxs[0]

	var got events
	a.Subscribe(got.add)

	for range 5 {
		a.Broadcast(context.Background(), models.SettingsChangeEvent{Kind: models.KindBranding, Payload: json.RawMessage(`{}`)})
	}
	// a remote frame carrying our own origin is dropped as well
	data, _ := json.Marshal(models.SettingsChangeEvent{Kind: models.KindTheme, Timestamp: time.Now().UnixMilli() + 1000, OriginID: "A"})
	a.receive(data)

	assert.Empty(t, got.get())
}

func TestBroadcast_StampsAndLocalListenersFirst(t *testing.T) {
	clock := testutil.NewFakeClock(time.UnixMilli(1_000_000))
	svc := New(Options{OriginID: "A", Now: clock.Now, Logger: testutil.DiscardLogger()})
	defer svc.Close()

	var local events
	svc.SubscribeLocal(local.add)

	ev1 := svc.Broadcast(context.Background(), models.SettingsChangeEvent{Kind: models.KindTheme})
	ev2 := svc.Broadcast(context.Background(), models.SettingsChangeEvent{Kind: models.KindTheme})

	assert.Equal(t, "A", ev1.OriginID)
	assert.Equal(t, int64(1_000_000), ev1.Timestamp)
	assert.Equal(t, int64(1_000_001), ev2.Timestamp, "same-millisecond broadcasts stay ordered")

	got := local.get()
	require.Len(t, got, 2)
	assert.Equal(t, ev2, got[1])

	applied, ok := svc.Applied(models.KindTheme)
	require.True(t, ok)
	assert.Equal(t, ev2.Timestamp, applied.Timestamp)
}

func TestReceive_RecencyDiscard(t *testing.T) {
	older := models.SettingsChangeEvent{Kind: models.KindCompetition, Payload: json.RawMessage(`{"v":1}`), Timestamp: 100, OriginID: "P"}
	newer := models.SettingsChangeEvent{Kind: models.KindCompetition, Payload: json.RawMessage(`{"v":2}`), Timestamp: 200, OriginID: "Q"}

	orders := map[string][]models.SettingsChangeEvent{
		"in order":     {older, newer},
		"out of order": {newer, older},
	}

	for name, order := range orders {
		t.Run(name, func(t *testing.T) {
			svc := New(Options{OriginID: "self", Logger: testutil.DiscardLogger()})
			defer svc.Close()

			var got events
			svc.Subscribe(got.add)
			for _, ev := range order {
				data, err := json.Marshal(ev)
				require.NoError(t, err)
				svc.receive(data)
			}

			applied, ok := svc.Applied(models.KindCompetition)
			require.True(t, ok)
			assert.JSONEq(t, `{"v":2}`, string(applied.Payload))

			evs := got.get()
			require.NotEmpty(t, evs)
			assert.JSONEq(t, `{"v":2}`, string(evs[len(evs)-1].Payload))
		})
	}
}

func TestReceive_EqualTimestampIsStale(t *testing.T) {
	svc := New(Options{OriginID: "self", Logger: testutil.DiscardLogger()})
	defer svc.Close()

	var got events
	svc.Subscribe(got.add)

	ev := models.SettingsChangeEvent{Kind: models.KindTheme, Timestamp: 5, OriginID: "P"}
	data, _ := json.Marshal(ev)
	svc.receive(data)
	svc.receive(data)

	assert.Len(t, got.get(), 1)
}

func TestReceive_RecencyIsPerKind(t *testing.T) {
	svc := New(Options{OriginID: "self", Logger: testutil.DiscardLogger()})
	defer svc.Close()

	var got events
	svc.Subscribe(got.add)

	for _, ev := range []models.SettingsChangeEvent{
		{Kind: models.KindTheme, Timestamp: 500, OriginID: "P"},
		{Kind: models.KindBranding, Timestamp: 100, OriginID: "P"},
	} {
		data, _ := json.Marshal(ev)
		svc.receive(data)
	}
	assert.Len(t, got.get(), 2)
}

func TestReceive_DropsGarbage(t *testing.T) {
	svc := New(Options{OriginID: "self", Logger: testutil.DiscardLogger()})
	defer svc.Close()

	var got events
	svc.Subscribe(got.add)

	svc.receive([]byte(`not json`))
	svc.receive([]byte(`{"kind":"wallpaper","timestamp":1,"originId":"P"}`))
	svc.receive([]byte(`{"timestamp":1,"originId":"P"}`))

	assert.Empty(t, got.get())
}

func TestSubscribe_MultipleAndUnsubscribe(t *testing.T) {
	ctxs := newContexts(t, "A", "B")
	a, b := ctxs[0], ctxs[1]

	var first, second events
	unsub := b.Subscribe(first.add)
	b.Subscribe(second.add)

	a.Broadcast(context.Background(), models.SettingsChangeEvent{Kind: models.KindTheme})
	unsub()
	unsub()
	a.Broadcast(context.Background(), models.SettingsChangeEvent{Kind: models.KindBranding})

	assert.Len(t, first.get(), 1)
	assert.Len(t, second.get(), 2)
}

func TestBroadcast_FallbackOnlyWhenNoPrimary(t *testing.T) {
	st := store.NewMemory()
	logger := testutil.DiscardLogger()

	newSvc := func(id string) *Service {
		trigger, err := transport.NewStorageTrigger(st, "", 10*time.Millisecond, logger)
		require.NoError(t, err)
		svc := New(Options{OriginID: id, Primary: transport.Select(logger), Fallback: trigger, Logger: logger})
		t.Cleanup(func() { svc.Close() })
		return svc
	}
	a, b := newSvc("A"), newSvc("B")

	var got events
	b.Subscribe(got.add)
	a.Broadcast(context.Background(), models.SettingsChangeEvent{Kind: models.KindColumnMapping})

	assert.Len(t, got.get(), 1)
	assert.Equal(t, []string{"storage:" + transport.DefaultTriggerKey}, a.Transports())
}

func TestBroadcast_QuotaFailureIsSwallowed(t *testing.T) {
	logger := testutil.DiscardLogger()
	trigger, err := transport.NewStorageTrigger(store.NewMemoryWithQuota(4), "", 0, logger)
	require.NoError(t, err)

	svc := New(Options{OriginID: "A", Fallback: trigger, Logger: logger})
	defer svc.Close()

	var local events
	svc.SubscribeLocal(local.add)

	ev := svc.Broadcast(context.Background(), models.SettingsChangeEvent{Kind: models.KindTheme, Payload: json.RawMessage(`{"big":true}`)})
	assert.NotZero(t, ev.Timestamp)
	assert.Len(t, local.get(), 1, "in-process state stays correct")
	_, ok := svc.Applied(models.KindTheme)
	assert.True(t, ok)
}

type failingFacade struct{}

func (failingFacade) Get(context.Context, models.Kind) (json.RawMessage, error) {
	return nil, errors.New("offline")
}

func (failingFacade) Set(context.Context, models.Kind, json.RawMessage) error {
	return errors.New("offline")
}

func TestUpdate(t *testing.T) {
	ctxs := newContexts(t, "A", "B")
	a, b := ctxs[0], ctxs[1]

	var got events
	b.Subscribe(got.add)

	ev, err := a.Update(context.Background(), models.KindTheme, json.RawMessage(`{"primary":"#000"}`))
	require.NoError(t, err)
	assert.Equal(t, "A", ev.OriginID)

	stored, err := a.Get(context.Background(), models.KindTheme)
	require.NoError(t, err)
	assert.JSONEq(t, `{"primary":"#000"}`, string(stored))
	assert.Len(t, got.get(), 1)
}

func TestUpdate_FacadeErrorsPropagate(t *testing.T) {
	svc := New(Options{OriginID: "A", Facade: failingFacade{}, Logger: testutil.DiscardLogger()})
	defer svc.Close()

	var local events
	svc.SubscribeLocal(local.add)

	_, err := svc.Update(context.Background(), models.KindTheme, json.RawMessage(`{}`))
	assert.Error(t, err)
	assert.Empty(t, local.get(), "nothing is broadcast when persistence fails")

	noFacade := New(Options{Logger: testutil.DiscardLogger()})
	defer noFacade.Close()
	_, err = noFacade.Update(context.Background(), models.KindTheme, nil)
	assert.ErrorIs(t, err, ErrNoFacade)
	_, err = noFacade.Get(context.Background(), models.KindTheme)
	assert.ErrorIs(t, err, ErrNoFacade)
}

func TestCommit_KeepsRelayedOrigin(t *testing.T) {
	ctxs := newContexts(t, "server", "peer")
	srv, peer := ctxs[0], ctxs[1]

	var local, remote events
	srv.SubscribeLocal(local.add)
	peer.Subscribe(remote.add)

	ev, err := srv.Commit(context.Background(), models.SettingsChangeEvent{
		Kind:     models.KindSpinnerSettings,
		Payload:  json.RawMessage(`{"speed":2}`),
		OriginID: "session-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "session-1", ev.OriginID)

	require.Len(t, local.get(), 1)
	assert.Equal(t, "session-1", local.get()[0].OriginID)
	require.Len(t, remote.get(), 1)

	stored, _ := srv.Get(context.Background(), models.KindSpinnerSettings)
	assert.JSONEq(t, `{"speed":2}`, string(stored))
}

func TestClose(t *testing.T) {
	ctxs := newContexts(t, "A", "B")
	a, b := ctxs[0], ctxs[1]

	var got events
	b.Subscribe(got.add)
	require.NoError(t, b.Close())
	require.NoError(t, b.Close())

	a.Broadcast(context.Background(), models.SettingsChangeEvent{Kind: models.KindTheme})
	assert.Empty(t, got.get())
}
