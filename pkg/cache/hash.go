package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Key builds a cache key of the form kind:hash(parts...). Parts are
// JSON-encoded before hashing, so ("a", "b") and ("ab") differ.
func Key(kind string, parts ...any) string {
	data, _ := json.Marshal(parts)
	sum := sha256.Sum256(data)
	return kind + ":" + hex.EncodeToString(sum[:])
}

// Namespace returns a short, stable key prefix for a feed URL, ending in ':'.
// Two URLs differing only in a trailing slash share a namespace.
func Namespace(kind, feedURL string) string {
	for len(feedURL) > 0 && feedURL[len(feedURL)-1] == '/' {
		feedURL = feedURL[:len(feedURL)-1]
	}
	sum := sha256.Sum256([]byte(feedURL))
	return kind + ":" + hex.EncodeToString(sum[:])[:12] + ":"
}
