package ratelimit

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/shwetpatil/notes-app-sub002/identity"
)

// limitExceededBody is the wire format of a throttled response.
type limitExceededBody struct {
	Success    bool   `json:"success"`
	Error      string `json:"error"`
	RetryAfter int    `json:"retryAfter"`
}

const limitExceededMessage = "Too many requests, please try again later"

type handlerConfig struct {
	rateHeaders bool
}

// HandlerOption configures the rate limiting middleware.
type HandlerOption func(*handlerConfig)

// WithoutRateHeaders suppresses the informational X-RateLimit-* headers.
// The Retry-After header on 429 responses is always sent.
func WithoutRateHeaders() HandlerOption {
	return func(c *handlerConfig) {
		c.rateHeaders = false
	}
}

// Handler returns middleware enforcing the named limiter for every request
// it wraps. The scoping identity is the authenticated user id when present,
// else the client IP.
//
// Throttled requests receive 429 with a Retry-After header and a JSON body:
//
//	{"success": false, "error": "Too many requests, please try again later", "retryAfter": 60}
//
// By default successful responses carry X-RateLimit-Limit, X-RateLimit-Remaining
// and X-RateLimit-Reset (unix seconds) reflecting the limiter's configuration.
//
// Handler panics when name was never registered: a wiring typo would
// otherwise admit every request on that route unlimited, and configuration
// mistakes must surface at startup rather than at request time.
func Handler(reg *Registry, name string, opts ...HandlerOption) func(http.Handler) http.Handler {
	if !reg.Has(name) {
		panic(fmt.Sprintf("ratelimit: no limiter registered under %q", name))
	}

	cfg := &handlerConfig{rateHeaders: true}
	for _, opt := range opts {
		opt(cfg)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res, err := reg.Consume(r.Context(), name, identity.Resolve(r))
			if err != nil {
				var exceeded *LimitExceeded
				if errors.As(err, &exceeded) {
					writeLimitExceeded(w, exceeded, reg, name, cfg.rateHeaders)
					return
				}
				// The registry absorbs store failures via its fallback; any
				// residual error is unexpected but must not fail the request.
				next.ServeHTTP(w, r)
				return
			}

			if cfg.rateHeaders && res != nil {
				w.Header().Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
				w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
				w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(res.Reset.Unix(), 10))
			}

			next.ServeHTTP(w, r)
		})
	}
}

func writeLimitExceeded(w http.ResponseWriter, exceeded *LimitExceeded, reg *Registry, name string, rateHeaders bool) {
	w.Header().Set("Retry-After", strconv.Itoa(exceeded.RetryAfter))
	if rateHeaders {
		reg.mu.RLock()
		cfg, ok := reg.configs[name]
		reg.mu.RUnlock()
		if ok {
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.Points))
			w.Header().Set("X-RateLimit-Remaining", "0")
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)

	body := limitExceededBody{
		Success:    false,
		Error:      limitExceededMessage,
		RetryAfter: exceeded.RetryAfter,
	}
	// Encoding a flat struct cannot fail; ignore the writer error like any
	// other response write.
	_ = json.NewEncoder(w).Encode(body)
}
