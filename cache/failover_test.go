package cache

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shwetpatil/notes-app-sub002/health"
)

type togglePinger struct {
	failing atomic.Bool
}

func (p *togglePinger) Ping(_ context.Context) error {
	if p.failing.Load() {
		return &net.OpError{Op: "dial", Net: "tcp", Err: context.DeadlineExceeded}
	}
	return nil
}

func TestFailover_RoutesByHealthState(t *testing.T) {
	remote := NewMemory()
	local := NewMemory()
	pinger := &togglePinger{}
	monitor := health.NewMonitor(pinger)

	f := NewFailover(monitor, remote, local)
	defer f.Close()

	ctx := context.Background()

	// Connected: entries land in the remote store.
	if err := f.Set(ctx, "k1", []byte("remote"), time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if _, ok, _ := remote.Get(ctx, "k1"); !ok {
		t.Error("entry missing from remote store while connected")
	}
	if _, ok, _ := local.Get(ctx, "k1"); ok {
		t.Error("entry leaked into local store while connected")
	}

	// Disconnected: operations target the in-process store; remote entries
	// are invisible until recovery.
	monitor.ReportFailure(&net.OpError{Op: "read", Net: "tcp", Err: context.DeadlineExceeded})
	if got := monitor.State(); got != health.Disconnected {
		t.Fatalf("State() = %v, want Disconnected", got)
	}

	if _, ok, err := f.Get(ctx, "k1"); err != nil || ok {
		t.Errorf("Get() during outage = ok=%v err=%v, want miss", ok, err)
	}
	if err := f.Set(ctx, "k2", []byte("local"), time.Minute); err != nil {
		t.Fatalf("Set() during outage error = %v", err)
	}
	if _, ok, _ := local.Get(ctx, "k2"); !ok {
		t.Error("entry missing from local store while disconnected")
	}
}

func TestFailover_ReportsConnectivityErrors(t *testing.T) {
	pinger := &togglePinger{}
	monitor := health.NewMonitor(pinger)

	// A remote store that fails with a connectivity error must flip the
	// shared health state through the monitor.
	f := NewFailover(monitor, connFailStore{}, NewMemory())
	defer f.Close()

	_, _, _ = f.Get(context.Background(), "k")
	if got := monitor.State(); got != health.Disconnected {
		t.Errorf("State() = %v, want Disconnected after connectivity failure", got)
	}
}

type connFailStore struct{}

func (connFailStore) connErr() error {
	return &net.OpError{Op: "read", Net: "tcp", Err: context.DeadlineExceeded}
}
func (s connFailStore) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, s.connErr()
}
func (s connFailStore) Set(context.Context, string, []byte, time.Duration) error {
	return s.connErr()
}
func (s connFailStore) Delete(context.Context, ...string) error { return s.connErr() }
func (s connFailStore) DeletePattern(context.Context, string) (int64, error) {
	return 0, s.connErr()
}
func (connFailStore) Close() error { return nil }
