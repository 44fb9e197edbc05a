// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package bridge

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielhkuo/livedraw/models"
)

func TestOriginPolicy(t *testing.T) {
	p := NewOriginPolicy("https://App.Example/", "http://localhost:5173", "chrome-extension://", " ")

	tests := []struct {
		origin string
		want   bool
	}{
		{"https://app.example", true},
		{"HTTPS://APP.EXAMPLE", true},
		{"https://app.example/", true},
		{"http://app.example", false},
		{"https://app.example:8443", false},
		{"https://evil.example", false},
		{"https://app.example.evil.example", false},
		{"https://app.example/settings", false},
		{"https://user@app.example", false},
		{"http://localhost:5173", true},
		{"http://localhost:3000", false},
		{"chrome-extension://abcdefgh", true},
		{"chrome-extension://", false},
		{"moz-extension://abcdefgh", false},
		{"null", false},
		{"", false},
		{"not a url", false},
	}

	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			assert.Equal(t, tt.want, p.Allowed(tt.origin))
		})
	}
}

func TestOriginPolicy_Empty(t *testing.T) {
	p := NewOriginPolicy()
	assert.False(t, p.Allowed("https://app.example"))
	assert.Empty(t, p.Entries())
}

func TestOriginPolicy_Entries(t *testing.T) {
	p := NewOriginPolicy("https://app.example", "chrome-extension://")
	assert.ElementsMatch(t, []string{"https://app.example", "chrome-extension://"}, p.Entries())
}

func TestOriginFromURL(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"ws://127.0.0.1:3318/bridge", "http://127.0.0.1:3318"},
		{"wss://App.Example/bridge?x=1", "https://app.example"},
		{"https://app.example/panel", "https://app.example"},
	}
	for _, tt := range tests {
		got, err := OriginFromURL(tt.url)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	_, err := OriginFromURL("/bridge")
	assert.Error(t, err)
}

func TestRequests_ResolveAndTimeout(t *testing.T) {
	r := NewRequests(30 * time.Millisecond)
	ctx := context.Background()

	id, ch := r.Register()
	assert.True(t, r.Has(id))
	assert.True(t, r.Resolve(models.CrossContextMessage{Type: models.MessageAuthToken, RequestID: id}))
	assert.False(t, r.Has(id))

	msg, ok := r.Await(ctx, id, ch)
	assert.True(t, ok)
	assert.Equal(t, models.MessageAuthToken, msg.Type)

	// a late reply for a resolved id goes nowhere
	assert.False(t, r.Resolve(models.CrossContextMessage{RequestID: id}))

	id2, ch2 := r.Register()
	start := time.Now()
	_, ok = r.Await(ctx, id2, ch2)
	assert.False(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
	assert.Zero(t, r.Len(), "timed out requests are removed")
}

func TestRequests_ContextCancel(t *testing.T) {
	r := NewRequests(time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	id, ch := r.Register()
	_, ok := r.Await(ctx, id, ch)
	assert.False(t, ok)
	assert.Zero(t, r.Len())
}

func TestRequests_CancelAll(t *testing.T) {
	r := NewRequests(time.Minute)
	id, ch := r.Register()

	done := make(chan bool, 1)
	go func() {
		_, ok := r.Await(context.Background(), id, ch)
		done <- ok
	}()

	r.CancelAll()
	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("waiter was not released")
	}
	assert.Zero(t, r.Len())
}

func TestRequests_DefaultTimeout(t *testing.T) {
	assert.Equal(t, DefaultRequestTimeout, NewRequests(0).Timeout())
}
