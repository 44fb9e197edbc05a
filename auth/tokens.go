// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// TokenProvider stores one auth token per subject (install id or origin).
// GetToken reports false when no token is stored.
type TokenProvider interface {
	GetToken(ctx context.Context, subject string) (string, bool, error)
	SetToken(ctx context.Context, subject, token string) error
}

// MemoryTokens keeps tokens in process memory
type MemoryTokens struct {
	mu     sync.RWMutex
	tokens map[string]string
}

func NewMemoryTokens() *MemoryTokens {
	return &MemoryTokens{tokens: make(map[string]string)}
}

func (m *MemoryTokens) GetToken(_ context.Context, subject string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tok, ok := m.tokens[subject]
	return tok, ok, nil
}

func (m *MemoryTokens) SetToken(_ context.Context, subject, token string) error {
	if token == "" {
		return ErrEmptyToken
	}
	m.mu.Lock()
	m.tokens[subject] = token
	m.mu.Unlock()
	return nil
}

// SQLTokens keeps tokens in the auth_token table
type SQLTokens struct {
	db *sql.DB
}

func NewSQLTokens(db *sql.DB) *SQLTokens {
	return &SQLTokens{db: db}
}

func (s *SQLTokens) GetToken(ctx context.Context, subject string) (string, bool, error) {
	var token string
	err := s.db.QueryRowContext(ctx, `
		SELECT token FROM auth_token WHERE subject = $1
	`, subject).Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read token: %w", err)
	}
	return token, true, nil
}

func (s *SQLTokens) SetToken(ctx context.Context, subject, token string) error {
	if token == "" {
		return ErrEmptyToken
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO auth_token (subject, token, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (subject) DO UPDATE
		SET token = excluded.token, updated_at = excluded.updated_at
	`, subject, token, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to write token: %w", err)
	}
	return nil
}

// CachedTokens is a read-through cache in front of another provider.
// Entries expire after ttl regardless of hits so replicas converge.
type CachedTokens struct {
	next  TokenProvider
	cache *ttlcache.Cache[string, string]
}

func NewCachedTokens(next TokenProvider, ttl time.Duration) *CachedTokens {
	cache := ttlcache.New[string, string](
		ttlcache.WithTTL[string, string](ttl),
		ttlcache.WithDisableTouchOnHit[string, string](),
	)
	go cache.Start()

	return &CachedTokens{next: next, cache: cache}
}

func (c *CachedTokens) GetToken(ctx context.Context, subject string) (string, bool, error) {
	if item := c.cache.Get(subject); item != nil {
		return item.Value(), true, nil
	}
	tok, ok, err := c.next.GetToken(ctx, subject)
	if err != nil || !ok {
		return tok, ok, err
	}
	c.cache.Set(subject, tok, ttlcache.DefaultTTL)
	return tok, true, nil
}

func (c *CachedTokens) SetToken(ctx context.Context, subject, token string) error {
	if err := c.next.SetToken(ctx, subject, token); err != nil {
		c.cache.Delete(subject)
		return err
	}
	c.cache.Set(subject, token, ttlcache.DefaultTTL)
	return nil
}

// Close stops the cache's expiry loop.
func (c *CachedTokens) Close() {
	c.cache.Stop()
}
