// Package identity resolves the stable identity string that scopes rate
// limiting and response caching.
//
// An identity is the authenticated user id when the session layer has
// populated one, and the client IP address otherwise. The two are never
// combined into a single key: authenticated traffic is accounted per user,
// anonymous traffic per IP.
//
// The session/auth layer runs before this middleware and supplies the user
// id through a lookup function:
//
//	r.Use(identity.Middleware(func(r *http.Request) string {
//	    return sessionUserID(r)
//	}))
//
// Downstream middleware then calls identity.Resolve(r) or identity.UserID(ctx).
package identity

import (
	"context"
	"net"
	"net/http"
	"strings"
)

type contextKey string

const userIDKey contextKey = "identity_user_id"

// WithUserID returns a copy of ctx carrying the authenticated user id.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserID returns the authenticated user id from the context.
// The second return value is false for anonymous requests.
func UserID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	if !ok || id == "" {
		return "", false
	}
	return id, true
}

// Resolve returns the scoping identity for a request: the authenticated
// user id when present, else the client IP.
func Resolve(r *http.Request) string {
	if id, ok := UserID(r.Context()); ok {
		return id
	}
	return ClientIP(r)
}

// ClientIP extracts the client IP address, preferring X-Forwarded-For and
// X-Real-IP over RemoteAddr.
//
// SECURITY: the proxy headers are only trustworthy behind a reverse proxy
// that overwrites them. Without one, clients can spoof their identity and
// escape IP-scoped limits.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return strings.TrimSpace(realIP)
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// LookupFunc returns the authenticated user id for a request, or an empty
// string when the request is anonymous.
type LookupFunc func(*http.Request) string

// Middleware returns middleware that resolves the user id once per request
// and stores it in the request context. A lookup returning an empty string
// leaves the request anonymous.
func Middleware(lookup LookupFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if id := lookup(r); id != "" {
				r = r.WithContext(WithUserID(r.Context(), id))
			}
			next.ServeHTTP(w, r)
		})
	}
}
