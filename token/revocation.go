package token

import (
	"errors"
	"sync"
	"time"
)

// RevokedTokenCache tracks access tokens that were logged out before they expired
type RevokedTokenCache interface {
	Add(jti string, exp time.Time) error
	IsRevoked(jti string) bool
	// Cleanup removes entries for tokens past their expiry and returns how many went
	Cleanup() int
	Len() int
}

// RevocationOption configures an InMemoryRevokedTokenCache
type RevocationOption func(*InMemoryRevokedTokenCache)

// WithRevocationClock replaces time.Now (primarily for testing)
func WithRevocationClock(nowFunc func() time.Time) RevocationOption {
	return func(c *InMemoryRevokedTokenCache) {
		c.nowFunc = nowFunc
	}
}

// InMemoryRevokedTokenCache maps token IDs to their expiry
type InMemoryRevokedTokenCache struct {
	mu      sync.RWMutex
	byJTI   map[string]time.Time
	nowFunc func() time.Time
}

func NewInMemoryRevokedTokenCache(options ...RevocationOption) *InMemoryRevokedTokenCache {
	c := &InMemoryRevokedTokenCache{
		byJTI:   make(map[string]time.Time),
		nowFunc: time.Now,
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

func (c *InMemoryRevokedTokenCache) Add(jti string, exp time.Time) error {
	if jti == "" {
		return errors.New("[RevokedTokenCache.Add] token has no jti")
	}
	if !exp.After(c.nowFunc()) {
		return nil
	}
	c.mu.Lock()
	c.byJTI[jti] = exp
	c.mu.Unlock()
	return nil
}

// IsRevoked reports whether jti was revoked and its token has not yet expired
func (c *InMemoryRevokedTokenCache) IsRevoked(jti string) bool {
	c.mu.RLock()
	exp, ok := c.byJTI[jti]
	c.mu.RUnlock()
	return ok && c.nowFunc().Before(exp)
}

func (c *InMemoryRevokedTokenCache) Cleanup() int {
	now := c.nowFunc()
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for jti, exp := range c.byJTI {
		if !now.Before(exp) {
			delete(c.byJTI, jti)
			removed++
		}
	}
	return removed
}

func (c *InMemoryRevokedTokenCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byJTI)
}
