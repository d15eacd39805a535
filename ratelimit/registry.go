package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/shwetpatil/notes-app-sub002/health"
	"github.com/shwetpatil/notes-app-sub002/ratelimit/store"
)

// ErrUnknownLimiter is returned by Consume for a name that was never
// registered.
var ErrUnknownLimiter = errors.New("unknown limiter")

// Defaults returns the named limiter table used operationally.
func Defaults() map[string]Config {
	return map[string]Config{
		"auth":   {Points: 5, Duration: 900 * time.Second, BlockDuration: 900 * time.Second, KeyPrefix: "auth"},
		"api":    {Points: 100, Duration: 60 * time.Second, BlockDuration: 60 * time.Second, KeyPrefix: "api"},
		"strict": {Points: 10, Duration: 60 * time.Second, BlockDuration: 300 * time.Second, KeyPrefix: "strict"},
		"search": {Points: 30, Duration: 60 * time.Second, BlockDuration: 60 * time.Second, KeyPrefix: "search"},
	}
}

// Registry owns the named limiters and swaps their backing store when the
// health monitor reports a transition. Construct one at startup and inject
// it into the middleware; it is safe for concurrent use.
type Registry struct {
	distributed store.Store
	local       *store.Memory
	monitor     *health.Monitor
	logger      *slog.Logger
	errLog      rate.Sometimes

	mu       sync.RWMutex
	configs  map[string]Config
	limiters map[string]*Limiter // bound to the store matching current health state
	fallback map[string]*Limiter // always bound to the in-process store
}

// NewRegistry builds a registry with the given named limiter table and
// subscribes it to the health monitor so every state transition rebuilds
// the limiters against the matching implementation.
func NewRegistry(distributed store.Store, monitor *health.Monitor, configs map[string]Config) (*Registry, error) {
	r := &Registry{
		distributed: distributed,
		local:       store.NewMemory(),
		monitor:     monitor,
		logger:      slog.Default().With("component", "ratelimit"),
		errLog:      rate.Sometimes{First: 1, Interval: time.Minute},
		configs:     make(map[string]Config, len(configs)),
		limiters:    make(map[string]*Limiter, len(configs)),
		fallback:    make(map[string]*Limiter, len(configs)),
	}

	prefixes := make(map[string]string, len(configs))
	for name, cfg := range configs {
		if other, dup := prefixes[cfg.KeyPrefix]; dup {
			return nil, fmt.Errorf("limiters %q and %q share key prefix %q", name, other, cfg.KeyPrefix)
		}
		prefixes[cfg.KeyPrefix] = name
		if err := r.register(name, cfg); err != nil {
			return nil, err
		}
	}

	monitor.Subscribe(func(from, to health.State) {
		r.ReinitializeAll()
	})

	return r, nil
}

func (r *Registry) register(name string, cfg Config) error {
	active, err := NewLimiter(name, cfg, r.activeStore())
	if err != nil {
		return err
	}
	// Config already validated; binding the fallback cannot fail.
	local, _ := NewLimiter(name, cfg, r.local)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.configs[name] = cfg
	r.limiters[name] = active
	r.fallback[name] = local
	return nil
}

// Consume deducts one point from the named limiter for identity.
//
// A nil error means the request may proceed. A *LimitExceeded error means
// the identity is over quota. Store failures never surface: the failure is
// reported to the health monitor and the attempt is retried against the
// in-process fallback, so a store outage degrades accounting instead of
// admitting unlimited traffic or failing the request.
func (r *Registry) Consume(ctx context.Context, name, identity string) (*Result, error) {
	r.mu.RLock()
	limiter := r.limiters[name]
	local := r.fallback[name]
	r.mu.RUnlock()

	if limiter == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownLimiter, name)
	}

	res, err := limiter.Consume(ctx, identity)
	if err == nil {
		return res, nil
	}

	var exceeded *LimitExceeded
	if errors.As(err, &exceeded) {
		return nil, err
	}

	// Store failure. Flip health state on connectivity errors (the
	// subscription rebuilds every limiter) and account this request
	// locally so it is neither dropped nor silently admitted.
	r.monitor.ReportFailure(err)
	r.errLog.Do(func() {
		r.logger.Warn("store error during consume, using in-process fallback", "limiter", name, "error", err)
	})

	return local.Consume(ctx, identity)
}

// Has reports whether a limiter was registered under name.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.limiters[name]
	return ok
}

// RegisterCustom builds an ad-hoc limiter for endpoint-specific limits not
// in the named table. The limiter binds to whichever implementation the
// health state selects at call time and does not fail over afterwards.
func (r *Registry) RegisterCustom(name string, cfg Config) (*Limiter, error) {
	return NewLimiter(name, cfg, r.activeStore())
}

// ReinitializeAll rebuilds every named limiter against the implementation
// matching the current health state. It runs at startup and on every
// transition; in-flight counters on the outgoing implementation are
// abandoned, an accepted consistency gap during the failover window.
func (r *Registry) ReinitializeAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	active := r.activeStore()
	for name, cfg := range r.configs {
		limiter, err := NewLimiter(name, cfg, active)
		if err != nil {
			// Configs were validated at registration; keep the old limiter.
			r.logger.Error("reinitialize failed", "limiter", name, "error", err)
			continue
		}
		r.limiters[name] = limiter
	}
	r.logger.Info("limiters reinitialized", "state", r.monitor.State().String(), "count", len(r.configs))
}

// Close releases the in-process fallback store.
func (r *Registry) Close() error {
	return r.local.Close()
}

func (r *Registry) activeStore() store.Store {
	if r.monitor.State() == health.Connected {
		return r.distributed
	}
	return r.local
}
