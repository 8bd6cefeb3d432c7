// Package cache provides the byte-level response cache used by the descriptor
// fetcher.
//
// Four backends implement [Cache]:
//
//   - [FileCache]: one file per entry under a local directory (CLI default)
//   - [RedisCache]: a shared Redis instance, for several quickmod servers
//   - [MongoCache]: a MongoDB collection with TTL metadata
//   - [NullCache]: caches nothing (--no-cache, tests)
//
// [Open] selects a backend from [Options]. Keys are produced by a [Keyer] so
// that backends shared between deployments can be namespaced with
// [NewScopedKeyer].
package cache

import (
	"context"
	"time"
)

// Cache stores opaque payloads by key.
//
// Get reports a miss as (nil, false, nil); errors are reserved for backend
// failures. A ttl of zero means the entry never expires.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Keyer generates cache keys.
type Keyer interface {
	// HTTPKey returns the key for a fetched HTTP payload.
	HTTPKey(namespace, key string) string
}

// DefaultKeyer generates unprefixed keys.
type DefaultKeyer struct{}

// NewDefaultKeyer returns the default keyer.
func NewDefaultKeyer() Keyer { return DefaultKeyer{} }

// HTTPKey returns "http:<namespace>:<key>".
func (DefaultKeyer) HTTPKey(namespace, key string) string {
	return "http:" + namespace + ":" + key
}
