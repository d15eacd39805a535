package identity_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shwetpatil/notes-app-sub002/identity"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name       string
		userID     string
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{
			name:       "authenticated user wins over IP",
			userID:     "user-42",
			remoteAddr: "192.168.1.1:1234",
			want:       "user-42",
		},
		{
			name:       "anonymous falls back to remote addr",
			remoteAddr: "192.168.1.1:1234",
			want:       "192.168.1.1",
		},
		{
			name:       "remote addr without port",
			remoteAddr: "192.168.1.1",
			want:       "192.168.1.1",
		},
		{
			name:       "X-Forwarded-For first hop",
			remoteAddr: "10.0.0.1:80",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.2"},
			want:       "203.0.113.7",
		},
		{
			name:       "X-Real-IP when no forwarded header",
			remoteAddr: "10.0.0.1:80",
			headers:    map[string]string{"X-Real-IP": "203.0.113.9"},
			want:       "203.0.113.9",
		},
		{
			name:       "user id wins over proxy headers",
			userID:     "user-7",
			remoteAddr: "10.0.0.1:80",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.7"},
			want:       "user-7",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/notes", http.NoBody)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if tt.userID != "" {
				req = req.WithContext(identity.WithUserID(req.Context(), tt.userID))
			}

			if got := identity.Resolve(req); got != tt.want {
				t.Errorf("Resolve() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestUserID(t *testing.T) {
	req := httptest.NewRequest("GET", "/", http.NoBody)

	if _, ok := identity.UserID(req.Context()); ok {
		t.Error("UserID() ok = true for anonymous context")
	}

	ctx := identity.WithUserID(req.Context(), "u1")
	id, ok := identity.UserID(ctx)
	if !ok || id != "u1" {
		t.Errorf("UserID() = %q, %v, want %q, true", id, ok, "u1")
	}
}

func TestMiddleware(t *testing.T) {
	var got string
	handler := identity.Middleware(func(r *http.Request) string {
		return r.Header.Get("X-User-ID")
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = identity.Resolve(r)
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/", http.NoBody)
	req.Header.Set("X-User-ID", "u9")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if got != "u9" {
		t.Errorf("resolved identity = %q, want %q", got, "u9")
	}

	req = httptest.NewRequest("GET", "/", http.NoBody)
	req.RemoteAddr = "198.51.100.4:9999"
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if got != "198.51.100.4" {
		t.Errorf("resolved identity = %q, want %q", got, "198.51.100.4")
	}
}
