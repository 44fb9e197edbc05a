// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package bridge

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var ErrOriginNotAllowed = errors.New("origin not allowed")

// OriginPolicy is an explicit allow-list of origins. Entries ending in "://"
// allow every origin with that scheme (for example "chrome-extension://").
// Everything else must match exactly after normalization.
type OriginPolicy struct {
	exact    map[string]struct{}
	prefixes []string
}

func NewOriginPolicy(entries ...string) OriginPolicy {
	p := OriginPolicy{exact: make(map[string]struct{})}
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if strings.HasSuffix(e, "://") {
			p.prefixes = append(p.prefixes, strings.ToLower(e))
			continue
		}
		if n, ok := normalizeOrigin(e); ok {
			p.exact[n] = struct{}{}
		}
	}
	return p
}

// Allowed reports whether origin may talk to this side of the bridge.
// Empty and "null" origins are never allowed.
func (p OriginPolicy) Allowed(origin string) bool {
	n, ok := normalizeOrigin(origin)
	if !ok {
		return false
	}
	if _, ok := p.exact[n]; ok {
		return true
	}
	for _, prefix := range p.prefixes {
		if strings.HasPrefix(n, prefix) && len(n) > len(prefix) {
			return true
		}
	}
	return false
}

// Entries lists the configured origins and scheme prefixes.
func (p OriginPolicy) Entries() []string {
	out := make([]string, 0, len(p.exact)+len(p.prefixes))
	for o := range p.exact {
		out = append(out, o)
	}
	return append(out, p.prefixes...)
}

// normalizeOrigin lower-cases scheme and host and drops a trailing slash.
// Anything carrying a path, query, or credentials is not an origin.
func normalizeOrigin(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" || s == "null" {
		return "", false
	}
	u, err := url.Parse(s)
	if err != nil || u.Scheme == "" || u.Host == "" || u.User != nil {
		return "", false
	}
	if (u.Path != "" && u.Path != "/") || u.RawQuery != "" || u.Fragment != "" {
		return "", false
	}
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host), true
}

// OriginFromURL returns the origin of a page or socket URL. WebSocket
// schemes map to their HTTP equivalents.
func OriginFromURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid url %q: %w", raw, err)
	}
	scheme := strings.ToLower(u.Scheme)
	switch scheme {
	case "ws":
		scheme = "http"
	case "wss":
		scheme = "https"
	}
	if scheme == "" || u.Host == "" {
		return "", fmt.Errorf("url %q has no origin", raw)
	}
	return scheme + "://" + strings.ToLower(u.Host), nil
}
