package store

import (
	"context"
	"time"
)

// Store defines the counter backend for the rate limiter.
// Implementations must be safe for concurrent use, and Increment must be
// atomic per key: two concurrent attempts near the limit boundary must
// observe distinct counts.
type Store interface {
	// Increment adds one to the counter for key, creating it with the
	// window TTL when absent, and returns the new count and the time left
	// until the window resets.
	Increment(ctx context.Context, key string, window time.Duration) (count int64, ttl time.Duration, err error)

	// Block marks key as blocked for d and clears its counter. While a
	// block stands, every consumption attempt is rejected regardless of
	// remaining points; once it elapses the window restarts from zero.
	Block(ctx context.Context, key string, d time.Duration) error

	// BlockRemaining reports the time left on a standing block for key.
	// ok is false when the key is not blocked.
	BlockRemaining(ctx context.Context, key string) (remaining time.Duration, ok bool, err error)

	// Reset removes the counter and any block for the given key.
	Reset(ctx context.Context, key string) error

	// Close releases any resources held by the store.
	Close() error
}
