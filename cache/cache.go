// Package cache provides cache-aside response caching for GET endpoints
// and glob-pattern invalidation after mutations.
//
// Cached payloads are keyed by the full request URL and the resolved
// identity, so two users never see each other's cached responses:
//
//	route:/api/v1/notes?archived=false:user:u1
//
// The Redis store is authoritative; a Failover store degrades to an
// in-process map while the backing store is unreachable. Cache failures
// are never surfaced to the client: reads degrade to misses, writes to
// no-ops.
package cache

import (
	"context"
	"net/url"
	"strings"
	"time"
)

// KeyPrefix scopes every cached response in the store's key namespace.
const KeyPrefix = "route:"

// Store is the cache backend contract. Implementations must be safe for
// concurrent use.
type Store interface {
	// Get returns the payload stored under key. ok is false on a miss.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)

	// Set stores value under key for ttl.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes the given keys. Missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error

	// DeletePattern removes every key matching the glob pattern, where '*'
	// matches any run of characters and '?' matches exactly one, and
	// returns the number removed.
	DeletePattern(ctx context.Context, pattern string) (int64, error)

	// Close releases any resources held by the store.
	Close() error
}

// Key builds the cache key for a request URL and identity:
// route:<path+query>:user:<identity>.
func Key(u *url.URL, identity string) string {
	var b strings.Builder
	b.Grow(len(KeyPrefix) + len(u.Path) + len(u.RawQuery) + len(identity) + 7)
	b.WriteString(KeyPrefix)
	b.WriteString(u.Path)
	if u.RawQuery != "" {
		b.WriteByte('?')
		b.WriteString(u.RawQuery)
	}
	b.WriteString(":user:")
	b.WriteString(identity)
	return b.String()
}

// globMatch reports whether s matches pattern, where '*' matches any run
// of characters (including none) and '?' matches exactly one. This mirrors
// the store's MATCH glob for the metacharacters the invalidation patterns
// use; character classes and backslash escapes are not supported.
func globMatch(pattern, s string) bool {
	var pi, si int
	star, starSi := -1, 0

	for si < len(s) {
		switch {
		case pi < len(pattern) && (pattern[pi] == '?' || pattern[pi] == s[si]):
			pi++
			si++
		case pi < len(pattern) && pattern[pi] == '*':
			// Remember the star so a failed literal match can widen it.
			star, starSi = pi, si
			pi++
		case star >= 0:
			starSi++
			pi, si = star+1, starSi
		default:
			return false
		}
	}

	for pi < len(pattern) && pattern[pi] == '*' {
		pi++
	}
	return pi == len(pattern)
}
