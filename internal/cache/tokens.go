package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Token is an access token with its expiry. A zero ExpiresAt never expires.
type Token struct {
	Value     string
	ExpiresAt time.Time
}

// TokenFetcher obtains a fresh token from the provider.
type TokenFetcher func(ctx context.Context) (Token, error)

// Tokens caches provider access tokens and refreshes them ahead of expiry.
type Tokens struct {
	mu      sync.RWMutex
	entries map[string]Token
	margin  time.Duration
	now     func() time.Time
	group   singleflight.Group
}

func NewTokens(margin time.Duration) *Tokens {
	return &Tokens{
		entries: make(map[string]Token),
		margin:  margin,
		now:     time.Now,
	}
}

func (t *Tokens) SetClock(now func() time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if now == nil {
		now = time.Now
	}
	t.now = now
}

func (t *Tokens) usable(tok Token) bool {
	if tok.Value == "" {
		return false
	}
	if tok.ExpiresAt.IsZero() {
		return true
	}
	return t.now().Add(t.margin).Before(tok.ExpiresAt)
}

// Get returns the cached token for key unless it expires within the refresh
// margin or force is set, in which case fetch is called.
func (t *Tokens) Get(ctx context.Context, key string, fetch TokenFetcher, force bool) (string, error) {
	if !force {
		t.mu.RLock()
		tok, ok := t.entries[key]
		usable := ok && t.usable(tok)
		t.mu.RUnlock()
		if usable {
			return tok.Value, nil
		}
	}
	v, err, _ := t.group.Do(key, func() (any, error) {
		tok, err := fetch(ctx)
		if err != nil {
			return "", err
		}
		if tok.Value == "" {
			return "", fmt.Errorf("token fetch for %s returned an empty token", key)
		}
		t.mu.Lock()
		t.entries[key] = tok
		t.mu.Unlock()
		return tok.Value, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (t *Tokens) Invalidate(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.entries[key]
	delete(t.entries, key)
	return ok
}

func (t *Tokens) Clear() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	removed := len(t.entries)
	t.entries = make(map[string]Token)
	return removed
}

// Sweep drops tokens that are already past expiry.
func (t *Tokens) Sweep() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	removed := 0
	for key, tok := range t.entries {
		if !tok.ExpiresAt.IsZero() && !now.Before(tok.ExpiresAt) {
			delete(t.entries, key)
			removed++
		}
	}
	return removed
}
