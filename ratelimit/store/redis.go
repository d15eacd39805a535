package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultOpTimeout = 2 * time.Second

// Redis is a Redis-backed implementation of Store. Counters and blocks are
// shared across all application instances, so distributed limits hold while
// the store is reachable.
type Redis struct {
	client  *redis.Client
	timeout time.Duration
}

// RedisOption configures a Redis store.
type RedisOption func(*Redis)

// WithOpTimeout bounds every store operation. Bounded timeouts keep a slow
// store from stalling request handling.
func WithOpTimeout(d time.Duration) RedisOption {
	return func(r *Redis) {
		r.timeout = d
	}
}

// NewRedis creates a Redis store on an existing client. The client's
// lifecycle belongs to the caller; Close here is a no-op so the same client
// can back the cache store and the health monitor.
func NewRedis(client *redis.Client, opts ...RedisOption) *Redis {
	r := &Redis{
		client:  client,
		timeout: defaultOpTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Increment atomically increments the counter for key via a pipeline so two
// concurrent requests never observe the same count.
func (r *Redis) Increment(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	pipe := r.client.Pipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, window)
	ttlCmd := pipe.PTTL(ctx, key)

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, 0, fmt.Errorf("redis increment failed: %w", err)
	}

	ttl := ttlCmd.Val()
	if ttl < 0 {
		ttl = window
	}

	return incr.Val(), ttl, nil
}

func (r *Redis) Block(ctx context.Context, key string, d time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	// Setting the block and dropping the counter together makes the record
	// reset entirely once the block elapses, even when the block is shorter
	// than the counting window.
	pipe := r.client.Pipeline()
	pipe.Set(ctx, blockKey(key), 1, d)
	pipe.Del(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis block failed: %w", err)
	}
	return nil
}

func (r *Redis) BlockRemaining(ctx context.Context, key string) (time.Duration, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	ttl, err := r.client.PTTL(ctx, blockKey(key)).Result()
	if err != nil {
		return 0, false, fmt.Errorf("redis block lookup failed: %w", err)
	}
	// PTTL reports negative durations for missing keys and keys without
	// an expiry; neither counts as a standing block.
	if ttl <= 0 {
		return 0, false, nil
	}
	return ttl, true, nil
}

func (r *Redis) Reset(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if err := r.client.Del(ctx, key, blockKey(key)).Err(); err != nil {
		return fmt.Errorf("redis reset failed: %w", err)
	}
	return nil
}

// Close is a no-op; the underlying client is shared and closed by the owner.
func (r *Redis) Close() error {
	return nil
}

func blockKey(key string) string {
	return key + ":block"
}
