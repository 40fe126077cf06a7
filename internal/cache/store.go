// Package cache sits in front of the expensive suggestion paths: a key/value
// store abstraction with TTLs, deterministic key derivation, a JSON layer
// with miss coalescing, and the periodic warmer.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned by Store.Get when the key is absent or expired.
var ErrMiss = errors.New("cache: miss")

// Store is a Redis-compatible key/value store.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetEx(ctx context.Context, key string, ttl time.Duration, value []byte) error
	Del(ctx context.Context, keys ...string) error
	// Keys returns the keys matching a glob pattern.
	Keys(ctx context.Context, pattern string) ([]string, error)
	Close() error
}
