package cache

import (
	"bufio"
	"bytes"
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/shwetpatil/notes-app-sub002/identity"
)

// asyncOpTimeout bounds cache writes and invalidations that run detached
// from the request.
const asyncOpTimeout = 5 * time.Second

// recorder decorates the real ResponseWriter to capture the handler's
// status and payload while still streaming it to the client.
type recorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	buf         bytes.Buffer
}

func (rw *recorder) WriteHeader(code int) {
	if rw.wroteHeader {
		return
	}
	rw.status = code
	rw.wroteHeader = true
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *recorder) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		rw.WriteHeader(http.StatusOK)
	}
	rw.buf.Write(b)
	return rw.ResponseWriter.Write(b)
}

func (rw *recorder) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *recorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	return rw.ResponseWriter.(http.Hijacker).Hijack()
}

func (rw *recorder) success() bool {
	if !rw.wroteHeader {
		// net/http sends an implicit 200 when the handler never writes.
		return true
	}
	return rw.status >= 200 && rw.status < 300
}

// Routes returns read-through caching middleware for GET endpoints.
//
// Only GET requests from authenticated callers are cached; anonymous GETs
// pass through untouched. On a hit the stored payload is written directly
// and the handler never runs. On a miss the handler's 2xx JSON output is
// captured and stored asynchronously, so a slow cache write never delays
// the response. Cache failures degrade to miss behavior and are logged at
// most once per interval.
func Routes(st Store, ttl time.Duration) func(http.Handler) http.Handler {
	logger := slog.Default().With("component", "cache")
	errLog := &rate.Sometimes{First: 1, Interval: time.Minute}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				next.ServeHTTP(w, r)
				return
			}
			userID, ok := identity.UserID(r.Context())
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			key := Key(r.URL, userID)

			payload, hit, err := st.Get(r.Context(), key)
			if err != nil {
				errLog.Do(func() {
					logger.Warn("cache read failed, treating as miss", "key", key, "error", err)
				})
			}
			if hit {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("X-Cache", "HIT")
				w.WriteHeader(http.StatusOK)
				w.Write(payload)
				return
			}

			w.Header().Set("X-Cache", "MISS")
			rec := &recorder{ResponseWriter: w}
			next.ServeHTTP(rec, r)

			if !rec.success() || rec.buf.Len() == 0 {
				return
			}

			// Fire and forget: the response is already on the wire, and a
			// failed write just means the next request recomputes.
			body := bytes.Clone(rec.buf.Bytes())
			go func() {
				ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), asyncOpTimeout)
				defer cancel()
				if err := st.Set(ctx, key, body, ttl); err != nil {
					errLog.Do(func() {
						logger.Warn("cache write failed", "key", key, "error", err)
					})
				}
			}()
		})
	}
}
