package cache

import (
	"context"
	"time"
)

// Namespaced prefixes every key before delegating to an inner cache.
//
// Example usage:
//
//	gallery := cache.NewNamespaced(backend, cache.Namespace("nuget", feedURL))
//	local := cache.NewNamespaced(backend, "local:")
type Namespaced struct {
	inner  Cache
	prefix string
}

// NewNamespaced wraps inner with prefix. Namespaces nest: wrapping a
// Namespaced concatenates prefixes.
func NewNamespaced(inner Cache, prefix string) *Namespaced {
	if n, ok := inner.(*Namespaced); ok {
		return &Namespaced{inner: n.inner, prefix: n.prefix + prefix}
	}
	return &Namespaced{inner: inner, prefix: prefix}
}

// Prefix returns the full key prefix.
func (n *Namespaced) Prefix() string { return n.prefix }

// Get retrieves prefix+key from the inner cache.
func (n *Namespaced) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return n.inner.Get(ctx, n.prefix+key)
}

// Set stores data under prefix+key.
func (n *Namespaced) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	return n.inner.Set(ctx, n.prefix+key, data, ttl)
}

// Delete removes prefix+key.
func (n *Namespaced) Delete(ctx context.Context, key string) error {
	return n.inner.Delete(ctx, n.prefix+key)
}

// Close is a no-op; the backend is closed by whoever opened it.
func (n *Namespaced) Close() error {
	return nil
}

var _ Cache = (*Namespaced)(nil)
