package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultOpTimeout = 2 * time.Second

// Redis is the Redis-backed implementation of Store, shared by all
// application instances.
type Redis struct {
	client  *redis.Client
	timeout time.Duration
}

// RedisOption configures a Redis cache store.
type RedisOption func(*Redis)

// WithOpTimeout bounds every cache operation so a slow store never adds
// unbounded latency to a request.
func WithOpTimeout(d time.Duration) RedisOption {
	return func(r *Redis) {
		r.timeout = d
	}
}

// NewRedis creates a Redis cache store on an existing client. The client's
// lifecycle belongs to the caller; Close here is a no-op.
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

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	val, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get failed: %w", err)
	}
	return val, true, nil
}

func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

// DeletePattern walks the key namespace with SCAN and removes every match.
// Patterns use the store's MATCH glob, so a single mutation can evict many
// cached list views sharing a prefix.
func (r *Redis) DeletePattern(ctx context.Context, pattern string) (int64, error) {
	// Pattern scans touch many keys; give them a wider bound than
	// single-key operations.
	ctx, cancel := context.WithTimeout(ctx, 5*r.timeout)
	defer cancel()

	var removed int64
	iter := r.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		n, err := r.client.Del(ctx, iter.Val()).Result()
		if err != nil {
			return removed, fmt.Errorf("redis delete pattern %q: %w", pattern, err)
		}
		removed += n
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("redis scan pattern %q: %w", pattern, err)
	}
	return removed, nil
}

// Close is a no-op; the underlying client is shared and closed by the owner.
func (r *Redis) Close() error {
	return nil
}
