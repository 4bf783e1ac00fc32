package cache

import (
	"context"
	"time"
)

// Cache is a key/value store with per-key expiry. It is a pure performance
// layer: every reader must behave identically when all lookups miss.
type Cache interface {
	// Get returns the value and whether the key was present.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set stores value under key. A non-positive ttl means no expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// MGet returns the values present among keys, in key order, skipping
	// absent ones.
	MGet(ctx context.Context, keys []string) ([]string, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	// Readiness performs a cheap round-trip write/read/delete.
	Readiness(ctx context.Context) error
}
