// Package health tracks reachability of the shared backing store.
//
// A Monitor owns the process-wide StoreHealthState. It probes the store
// periodically and accepts fast failure reports from request-path callers,
// so a connection loss flips the state without waiting for the next tick.
// Components that switch between distributed and in-process implementations
// subscribe to transitions and read the state; only the monitor mutates it.
package health

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// State is the reachability of the backing store.
type State int32

const (
	// Connected means the shared store answered the last probe.
	Connected State = iota
	// Disconnected means the store is unreachable and components run on
	// their in-process fallbacks.
	Disconnected
)

func (s State) String() string {
	switch s {
	case Connected:
		return "connected"
	case Disconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Pinger is the slice of the store client the monitor needs.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RedisPinger adapts a go-redis client to the Pinger interface.
type RedisPinger struct {
	Client *redis.Client
}

func (p RedisPinger) Ping(ctx context.Context) error {
	return p.Client.Ping(ctx).Err()
}

const (
	defaultProbeInterval = 15 * time.Second
	defaultProbeTimeout  = 2 * time.Second
)

// Monitor probes the backing store and publishes state transitions.
type Monitor struct {
	pinger   Pinger
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger

	state atomic.Int32

	// mu serializes transitions so subscribers observe them in order.
	mu   sync.Mutex
	subs []func(from, to State)

	stopOnce sync.Once
	stopCh   chan struct{}
	done     sync.WaitGroup
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithProbeInterval sets the delay between background probes.
func WithProbeInterval(d time.Duration) Option {
	return func(m *Monitor) {
		m.interval = d
	}
}

// WithProbeTimeout sets the per-probe timeout.
func WithProbeTimeout(d time.Duration) Option {
	return func(m *Monitor) {
		m.timeout = d
	}
}

// WithLogger sets the logger used for transition events.
func WithLogger(l *slog.Logger) Option {
	return func(m *Monitor) {
		m.logger = l
	}
}

// NewMonitor creates a monitor for the given store client. The initial
// state is determined by a synchronous startup probe; call Start to begin
// background probing.
func NewMonitor(p Pinger, opts ...Option) *Monitor {
	m := &Monitor{
		pinger:   p,
		interval: defaultProbeInterval,
		timeout:  defaultProbeTimeout,
		logger:   slog.Default().With("component", "health"),
		stopCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()
	if err := m.pinger.Ping(ctx); err != nil {
		m.state.Store(int32(Disconnected))
		m.logger.Warn("backing store unreachable at startup, starting in fallback mode", "error", err)
	}
	return m
}

// State returns the current store health state.
func (m *Monitor) State() State {
	return State(m.state.Load())
}

// Subscribe registers fn to run on every state transition. Callbacks run
// synchronously on the goroutine that detected the transition and must not
// block; registration is not safe after Start from multiple goroutines.
func (m *Monitor) Subscribe(fn func(from, to State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs = append(m.subs, fn)
}

// Start launches the background probe loop.
func (m *Monitor) Start() {
	m.done.Add(1)
	go m.probeLoop()
}

// Stop terminates the probe loop and waits for it to exit.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.done.Wait()
}

// ReportFailure lets request-path callers report a store error. Connectivity
// errors flip the state to Disconnected immediately; application-level
// errors are ignored because the store is still answering.
func (m *Monitor) ReportFailure(err error) {
	if err == nil || !IsConnError(err) {
		return
	}
	m.transition(Disconnected)
}

func (m *Monitor) probeLoop() {
	defer m.done.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.probe()
		case <-m.stopCh:
			return
		}
	}
}

func (m *Monitor) probe() {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	if err := m.pinger.Ping(ctx); err != nil {
		m.transition(Disconnected)
		return
	}
	m.transition(Connected)
}

// transition flips the state and notifies subscribers. Transitions are
// serialized so every subscriber sees the same ordered sequence; the log
// line fires once per transition, never per request.
func (m *Monitor) transition(to State) {
	m.mu.Lock()
	from := State(m.state.Load())
	if from == to {
		m.mu.Unlock()
		return
	}
	m.state.Store(int32(to))
	subs := make([]func(from, to State), len(m.subs))
	copy(subs, m.subs)
	m.mu.Unlock()

	if to == Disconnected {
		m.logger.Warn("backing store unavailable, switching to in-process fallback",
			"from", from.String(), "to", to.String())
	} else {
		m.logger.Info("backing store recovered, resuming distributed mode",
			"from", from.String(), "to", to.String())
	}

	for _, fn := range subs {
		fn(from, to)
	}
}

// IsConnError reports whether err indicates the store is unreachable, as
// opposed to an application-level failure on a healthy connection.
func IsConnError(err error) bool {
	if err == nil || errors.Is(err, redis.Nil) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.EOF) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
