// Package cache provides the key-value stores that hold encoded guild
// statistics between requests.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrStoreClosed is returned by stores used after Close.
var ErrStoreClosed = errors.New("cache store is closed")

// Store is a key-value store with per-entry lifetimes. Get reports absent
// entries with ok=false and a nil error; errors are reserved for an
// unavailable backend. Each backend applies its own expiry semantics.
type Store interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Close() error
}
