// Package cache stores computed canvas layouts and renders.
//
// Layout passes are pure functions of the canvas structure and the layout
// options, so their results can be shared across requests, processes and
// peers editing the same canvas. A [Keyer] derives keys from a content
// hash plus options; a [Cache] stores opaque bytes under those keys.
//
// Backends:
//   - [MemoryCache]: process-local, for tests and single-node servers
//   - [FileCache]: on-disk, for the CLI
//   - [RedisCache]: shared across server instances
//   - [NullCache]: disables caching
package cache

import (
	"context"
	"time"
)

// Cache is a byte store with expiration.
type Cache interface {
	// Get returns the stored value and whether it was found. A miss is not
	// an error.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores data under key. A zero ttl never expires.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error

	Delete(ctx context.Context, key string) error
	Close() error
}

// Expirations of cached entries.
const (
	TTLLayout   = 24 * time.Hour
	TTLRelayout = time.Hour
	TTLRender   = 7 * 24 * time.Hour
)
