// Package cache is the shared TTL-cache abstraction behind the Price
// Oracle, Gas Oracle, and Balance Checker (spec §4.3, §4.4, §4.6). The
// default backend is an in-process map; an optional Redis-backed
// implementation lets price/gas/balance caches be shared across facilitator
// replicas.
package cache

import (
	"context"
	"sync"
	"time"
)

// Cache is a read-mostly, TTL-bounded string->string store. Writes are
// last-writer-wins; stale reads are acceptable (spec §5 "Shared resources").
type Cache interface {
	// Get returns the cached value and true if present and not expired.
	Get(ctx context.Context, key string) (string, bool)
	// Set stores value under key with the given time-to-live.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// Close releases any backend resources.
	Close() error
}

type entry struct {
	value   string
	expires time.Time
}

// InProcess is the default Cache backend: an in-memory map guarded by a
// mutex. No cross-process sharing; used when no Redis address is configured.
type InProcess struct {
	mu   sync.RWMutex
	data map[string]entry
}

// NewInProcess constructs an empty in-process cache.
func NewInProcess() *InProcess {
	return &InProcess{data: make(map[string]entry)}
}

func (c *InProcess) Get(_ context.Context, key string) (string, bool) {
	c.mu.RLock()
	e, ok := c.data[key]
	c.mu.RUnlock()
	if !ok {
		return "", false
	}
	if time.Now().After(e.expires) {
		return "", false
	}
	return e.value, true
}

func (c *InProcess) Set(_ context.Context, key, value string, ttl time.Duration) error {
	c.mu.Lock()
	c.data[key] = entry{value: value, expires: time.Now().Add(ttl)}
	c.mu.Unlock()
	return nil
}

func (c *InProcess) Close() error { return nil }
