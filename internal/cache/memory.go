package cache

import (
	"context"
	"sync/atomic"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Memory is an in-process Store. Entries are dropped once their ttl has
// elapsed, so a stale read after expiry misses like any other.
type Memory struct {
	cache  *gocache.Cache
	closed atomic.Bool
}

// NewMemory creates an in-process store. defaultTTL applies to writes with a
// non-positive ttl and cleanupInterval controls how often expired entries are
// purged from memory.
func NewMemory(defaultTTL, cleanupInterval time.Duration) *Memory {
	return &Memory{cache: gocache.New(defaultTTL, cleanupInterval)}
}

// Get returns a copy of the stored value.
func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	if m.closed.Load() {
		return nil, false, ErrStoreClosed
	}

	v, ok := m.cache.Get(key)
	if !ok {
		return nil, false, nil
	}

	value, ok := v.([]byte)
	if !ok {
		return nil, false, nil
	}

	return append([]byte(nil), value...), true, nil
}

// Set stores a copy of value for ttl.
func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if m.closed.Load() {
		return ErrStoreClosed
	}

	if ttl <= 0 {
		ttl = gocache.DefaultExpiration
	}

	m.cache.Set(key, append([]byte(nil), value...), ttl)
	return nil
}

// Close empties the store and rejects further use.
func (m *Memory) Close() error {
	if m.closed.Swap(true) {
		return nil
	}

	m.cache.Flush()
	return nil
}
