// Package cache provides byte-level caches for feed metadata.
//
// Backends:
//   - [FileCache]: JSON entry files under the user cache directory (CLI default)
//   - [RedisCache]: a shared Redis instance, for build agents that install
//     from the same feeds
//   - [NullCache]: caching disabled
//
// Keys are opaque strings; [Namespaced] prefixes them so several feeds can
// share one backend without collisions.
package cache

import (
	"context"
	"strings"
	"time"
)

// Cache stores opaque byte values with an optional time-to-live.
type Cache interface {
	// Get returns the value for key. A miss is (nil, false, nil).
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores data under key. A ttl of zero means no expiry.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases backend resources.
	Close() error
}

// Clearer is implemented by caches that can drop every entry they own.
type Clearer interface {
	Clear(ctx context.Context) error
}

// keyType returns the namespace part of key for hook reporting.
func keyType(key string) string {
	if i := strings.IndexByte(key, ':'); i > 0 {
		return key[:i]
	}
	return "default"
}
