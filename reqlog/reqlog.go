// Package reqlog provides canonical request logging middleware.
//
// Each request produces exactly one structured log line carrying the
// method, path, matched chi route, final status and duration; handlers
// and middleware deeper in the chain can attach fields to the same line
// through the canonlog context. Mount it outermost:
//
//	r := chi.NewRouter()
//	r.Use(reqlog.New())
//
// With per-request fields:
//
//	r.Use(reqlog.New(reqlog.WithFields(func(r *http.Request) map[string]any {
//	    return map[string]any{"request_id": r.Header.Get("X-Request-ID")}
//	})))
package reqlog

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/nhalm/canonlog"
)

// statusWriter records the final status code written by the handler chain.
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (sw *statusWriter) WriteHeader(code int) {
	if sw.wroteHeader {
		return
	}
	sw.status = code
	sw.wroteHeader = true
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *statusWriter) Write(b []byte) (int, error) {
	if !sw.wroteHeader {
		sw.WriteHeader(http.StatusOK)
	}
	return sw.ResponseWriter.Write(b)
}

func (sw *statusWriter) Flush() {
	if f, ok := sw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Option configures the request logging middleware.
type Option func(*config)

type config struct {
	fields func(*http.Request) map[string]any
}

// WithFields adds custom fields to each log line. The function receives
// the request and runs before the handler executes.
func WithFields(fn func(*http.Request) map[string]any) Option {
	return func(c *config) {
		c.fields = fn
	}
}

// New returns middleware that emits one canonical log line per request.
// Panics in the handler chain are recovered, logged on the same line, and
// answered with a 500.
func New(opts ...Option) func(http.Handler) http.Handler {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := canonlog.NewContext(r.Context())
			start := time.Now()

			canonlog.InfoAddMany(ctx, map[string]any{
				"method": r.Method,
				"path":   r.URL.Path,
			})
			if cfg.fields != nil {
				canonlog.InfoAddMany(ctx, cfg.fields(r))
			}

			r = r.WithContext(ctx)
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

			defer func() {
				if rec := recover(); rec != nil {
					canonlog.ErrorAdd(ctx, fmt.Errorf("panic: %v", rec))
					if !sw.wroteHeader {
						sw.WriteHeader(http.StatusInternalServerError)
					}
				}

				route := r.URL.Path
				if rctx := chi.RouteContext(ctx); rctx != nil {
					if pattern := rctx.RoutePattern(); pattern != "" {
						route = pattern
					}
				}

				canonlog.InfoAddMany(ctx, map[string]any{
					"route":       route,
					"status":      sw.status,
					"duration_ms": time.Since(start).Milliseconds(),
				})
				canonlog.Flush(ctx)
			}()

			next.ServeHTTP(sw, r)
		})
	}
}
