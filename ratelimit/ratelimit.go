// Package ratelimit enforces per-identity request quotas in front of the
// API handlers.
//
// Every limiter is a fixed window with an optional block duration: an
// identity may consume Points within Duration; exceeding the quota blocks
// that identity for BlockDuration, during which every attempt is rejected
// regardless of remaining points. Counters live in a shared store so limits
// hold across instances, with an in-process fallback while the store is
// unreachable (see the Registry).
//
// Basic usage:
//
//	reg, err := ratelimit.NewRegistry(redisStore, monitor, ratelimit.Defaults())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	r.Use(ratelimit.Handler(reg, "api"))
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/shwetpatil/notes-app-sub002/ratelimit/store"
)

// DefaultRetryAfter is reported when the store cannot supply a precise
// time-to-retry.
const DefaultRetryAfter = 60

// Config describes a single limiter: Points consumable per Duration, and
// the block applied once the quota is exceeded. Configs are validated at
// registration and immutable afterwards.
type Config struct {
	Points        int           `validate:"gt=0"`
	Duration      time.Duration `validate:"gt=0"`
	BlockDuration time.Duration `validate:"gte=0"`
	KeyPrefix     string        `validate:"required"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func init() {
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		return strings.ToLower(fld.Name)
	})
}

// Validate reports whether the config is usable. Invalid configs must fail
// fast at startup, never at request time.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("invalid limiter config: field %q failed rule %q", verrs[0].Field(), verrs[0].Tag())
		}
		return fmt.Errorf("invalid limiter config: %w", err)
	}
	return nil
}

// LimitExceeded is returned when an identity has exhausted its quota.
// It is the only error from this package that reaches the HTTP client,
// surfaced as a 429 with a Retry-After header.
type LimitExceeded struct {
	Limiter    string
	RetryAfter int // seconds until the next attempt may succeed
}

func (e *LimitExceeded) Error() string {
	return fmt.Sprintf("rate limit %q exceeded, retry after %ds", e.Limiter, e.RetryAfter)
}

// Result is the accounting snapshot after a successful consumption.
type Result struct {
	Limit     int
	Remaining int
	Reset     time.Time
}

// Limiter enforces one fixed-window limit against a single store.
// Obtain limiters through a Registry so failover is handled for you.
type Limiter struct {
	name   string
	cfg    Config
	store  store.Store
	logger *slog.Logger
}

// NewLimiter builds a limiter bound to the given store.
func NewLimiter(name string, cfg Config, st store.Store) (*Limiter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("limiter %q: %w", name, err)
	}
	return &Limiter{
		name:   name,
		cfg:    cfg,
		store:  st,
		logger: slog.Default().With("component", "ratelimit", "limiter", name),
	}, nil
}

// Config returns the limiter's immutable configuration.
func (l *Limiter) Config() Config {
	return l.cfg
}

// Consume deducts one point for identity. It returns a *LimitExceeded error
// when the identity is over quota or blocked, and a plain error when the
// store failed; the caller decides how to degrade on the latter.
func (l *Limiter) Consume(ctx context.Context, identity string) (*Result, error) {
	key := l.key(identity)

	remaining, blocked, err := l.store.BlockRemaining(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("limiter %q: %w", l.name, err)
	}
	if blocked {
		return nil, &LimitExceeded{Limiter: l.name, RetryAfter: ceilSeconds(remaining)}
	}

	count, ttl, err := l.store.Increment(ctx, key, l.cfg.Duration)
	if err != nil {
		return nil, fmt.Errorf("limiter %q: %w", l.name, err)
	}

	if count > int64(l.cfg.Points) {
		retryAfter := ttl
		if l.cfg.BlockDuration > 0 {
			retryAfter = l.cfg.BlockDuration
			// The rejection is already confirmed by the counter; a failed
			// block write only shortens the penalty to the window tail.
			if err := l.store.Block(ctx, key, l.cfg.BlockDuration); err != nil {
				l.logger.Warn("failed to set block", "identity", identity, "error", err)
			}
		}
		return nil, &LimitExceeded{Limiter: l.name, RetryAfter: ceilSeconds(retryAfter)}
	}

	return &Result{
		Limit:     l.cfg.Points,
		Remaining: l.cfg.Points - int(count),
		Reset:     time.Now().Add(ttl),
	}, nil
}

// key builds the store key for identity: rl:<keyPrefix>:<identity>.
func (l *Limiter) key(identity string) string {
	var b strings.Builder
	b.Grow(4 + len(l.cfg.KeyPrefix) + len(identity))
	b.WriteString("rl:")
	b.WriteString(l.cfg.KeyPrefix)
	b.WriteByte(':')
	b.WriteString(identity)
	return b.String()
}

// ceilSeconds converts a duration to whole retry seconds, rounding up so a
// client never retries early. Non-positive durations mean the store could
// not supply a precise value.
func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return DefaultRetryAfter
	}
	return int(math.Ceil(d.Seconds()))
}
