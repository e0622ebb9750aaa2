// Package httputil provides the HTTP client shared by remote feed adapters.
//
// # Overview
//
// [Client] wraps net/http with:
//
//   - Default headers and credentials (basic auth or NuGet API key)
//   - Status mapping: 404 becomes [ErrNotFound], 401/403 [ErrUnauthorized],
//     anything else non-2xx [ErrNetwork]
//   - Response caching through any [cache.Cache] backend
//   - Observability hooks for every request
//
// Requests are never retried. A failed request surfaces to the caller, and
// the install core decides whether the next repository should be tried.
//
// # Caching
//
// [Client.Cached] stores JSON-encoded results under a caller-chosen key:
//
//	var versions []Entry
//	err := client.Cached(ctx, key, refresh, &versions, func() error {
//	    return client.GetXML(ctx, url, &page)
//	})
//
// Payload downloads are never cached.
package httputil
