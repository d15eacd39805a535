// Command server wires the middleware layer in front of a minimal notes
// API. The note handlers are demonstration glue; the interesting parts are
// the limiter registry, the failover cache and the health monitor driving
// both.
package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/shwetpatil/notes-app-sub002/cache"
	"github.com/shwetpatil/notes-app-sub002/config"
	"github.com/shwetpatil/notes-app-sub002/health"
	"github.com/shwetpatil/notes-app-sub002/identity"
	"github.com/shwetpatil/notes-app-sub002/ratelimit"
	ratestore "github.com/shwetpatil/notes-app-sub002/ratelimit/store"
	"github.com/shwetpatil/notes-app-sub002/reqlog"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
	defer client.Close()

	monitor := health.NewMonitor(health.RedisPinger{Client: client},
		health.WithProbeInterval(cfg.ProbeInterval),
	)
	monitor.Start()
	defer monitor.Stop()

	registry, err := ratelimit.NewRegistry(ratestore.NewRedis(client), monitor, ratelimit.Defaults())
	if err != nil {
		log.Fatalf("rate limiters: %v", err)
	}
	defer registry.Close()

	cacheStore := cache.NewFailover(monitor, cache.NewRedis(client), cache.NewMemory())
	defer cacheStore.Close()

	notes := &noteStore{byUser: make(map[string][]note)}

	r := chi.NewRouter()
	r.Use(reqlog.New())
	// Demo session stub: real deployments resolve the user id from the
	// session layer instead of a trusted header.
	r.Use(identity.Middleware(func(r *http.Request) string {
		return r.Header.Get("X-User-ID")
	}))

	r.With(ratelimit.Handler(registry, "auth")).Post("/api/v1/auth/login", loginHandler)

	r.Route("/api/v1/notes", func(r chi.Router) {
		r.Use(ratelimit.Handler(registry, "api"))

		invalidate := cache.Invalidate(cacheStore, "route:/api/v1/notes*:user::identity")

		r.With(cache.Routes(cacheStore, cfg.CacheTTL)).Get("/", notes.list)
		r.With(ratelimit.Handler(registry, "search"), cache.Routes(cacheStore, cfg.CacheTTL)).Get("/search", notes.search)
		r.With(ratelimit.Handler(registry, "strict"), invalidate).Post("/", notes.create)
		r.With(invalidate).Delete("/{id}", notes.remove)
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
		<-stop

		log.Println("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("shutdown: %v", err)
		}
	}()

	log.Printf("listening on %s (redis: %s)", cfg.ListenAddr, cfg.RedisAddr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server: %v", err)
	}
}

func loginHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

type note struct {
	ID    int    `json:"id"`
	Title string `json:"title"`
}

// noteStore is an in-memory stand-in for the real persistence layer.
type noteStore struct {
	mu     sync.Mutex
	nextID int
	byUser map[string][]note
}

func (s *noteStore) list(w http.ResponseWriter, r *http.Request) {
	id, ok := identity.UserID(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "error": "authentication required"})
		return
	}

	s.mu.Lock()
	out := append([]note(nil), s.byUser[id]...)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "notes": out})
}

func (s *noteStore) search(w http.ResponseWriter, r *http.Request) {
	s.list(w, r)
}

func (s *noteStore) create(w http.ResponseWriter, r *http.Request) {
	id, ok := identity.UserID(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "error": "authentication required"})
		return
	}

	var in struct {
		Title string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "invalid body"})
		return
	}

	s.mu.Lock()
	s.nextID++
	n := note{ID: s.nextID, Title: in.Title}
	s.byUser[id] = append(s.byUser[id], n)
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "note": n})
}

func (s *noteStore) remove(w http.ResponseWriter, r *http.Request) {
	id, ok := identity.UserID(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "error": "authentication required"})
		return
	}

	noteID, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "invalid note id"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, n := range s.byUser[id] {
		if n.ID == noteID {
			s.byUser[id] = append(s.byUser[id][:i], s.byUser[id][i+1:]...)
			writeJSON(w, http.StatusOK, map[string]any{"success": true})
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]any{"success": false, "error": "note not found"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
