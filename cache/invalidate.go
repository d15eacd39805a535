package cache

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/shwetpatil/notes-app-sub002/identity"
)

// IdentityPlaceholder is substituted with the resolved identity when an
// invalidation pattern is expanded.
const IdentityPlaceholder = ":identity"

// statusRecorder captures only the status code. Invalidation never reads
// the response payload, so mutating request bodies are not buffered.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (rw *statusRecorder) WriteHeader(code int) {
	if rw.wroteHeader {
		return
	}
	rw.status = code
	rw.wroteHeader = true
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}

func (rw *statusRecorder) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *statusRecorder) success() bool {
	if !rw.wroteHeader {
		return true
	}
	return rw.status >= 200 && rw.status < 300
}

// Invalidate returns middleware that deletes cache entries after a
// successful mutation. Once the wrapped handler responds with a 2xx status,
// every pattern has ":identity" substituted with the resolved identity and
// is deleted concurrently; individual failures are logged and swallowed so
// the remaining patterns still run. Non-2xx responses invalidate nothing:
// a stale entry beats evicting on a failed write.
//
//	r.With(cache.Invalidate(store,
//	    "route:/api/v1/notes*:user::identity",
//	    "notes:user::identity*",
//	)).Post("/", createNote)
func Invalidate(st Store, patterns ...string) func(http.Handler) http.Handler {
	logger := slog.Default().With("component", "cache")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r)

			if !rec.success() {
				return
			}

			id := identity.Resolve(r)
			// Detached from the request: invalidation latency must not be
			// client-visible, and ordering against concurrent cache writes
			// is unguaranteed anyway.
			go invalidateAll(st, logger, patterns, id)
		})
	}
}

func invalidateAll(st Store, logger *slog.Logger, patterns []string, id string) {
	ctx, cancel := context.WithTimeout(context.Background(), asyncOpTimeout)
	defer cancel()

	var wg sync.WaitGroup
	for _, pattern := range patterns {
		expanded := strings.ReplaceAll(pattern, IdentityPlaceholder, id)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := st.DeletePattern(ctx, expanded); err != nil {
				logger.Warn("cache invalidation failed", "pattern", expanded, "error", err)
			}
		}()
	}
	wg.Wait()
}
