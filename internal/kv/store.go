// Package kv defines the shared KV store interface backing the Config
// Cache, Rate Limiter, and CAPTCHA Gate (spec's §3/§5 "shared KV store").
// Reads never block each other; writes are last-writer-wins. The Redis
// implementation is the single source of server time so that rate-limiter
// clock reads do not drift across proxy workers.
package kv

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("kv: key not found")

// Store is the minimal contract the data plane needs from the shared KV
// store: string get/set with TTL, existence checks, and a shared clock.
type Store interface {
	// Get returns the raw value for key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)
	// SetEX sets key to value with the given TTL.
	SetEX(ctx context.Context, key, value string, ttl time.Duration) error
	// Del removes a key; no error if it does not exist.
	Del(ctx context.Context, key string) error
	// Exists reports whether key is present.
	Exists(ctx context.Context, key string) (bool, error)
	// Now returns the store's server time, used as the single clock
	// source for token-bucket math across all workers.
	Now(ctx context.Context) (time.Time, error)
}
