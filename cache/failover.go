package cache

import (
	"context"
	"time"

	"github.com/shwetpatil/notes-app-sub002/health"
)

// Failover routes cache operations to the distributed store while the
// backing store is healthy and to the in-process store otherwise. The
// selection is read per call from the health monitor, so the switch is
// atomic from the caller's perspective: no hybrid state is ever observed,
// at the cost of losing recently cached entries on each transition.
//
// Connectivity failures on the distributed store are reported to the
// monitor so the registry and cache flip together.
type Failover struct {
	monitor *health.Monitor
	remote  Store
	local   Store
}

// NewFailover builds a failover store over the given backends.
func NewFailover(monitor *health.Monitor, remote, local Store) *Failover {
	return &Failover{
		monitor: monitor,
		remote:  remote,
		local:   local,
	}
}

func (f *Failover) active() Store {
	if f.monitor.State() == health.Connected {
		return f.remote
	}
	return f.local
}

func (f *Failover) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, ok, err := f.active().Get(ctx, key)
	f.monitor.ReportFailure(err)
	return val, ok, err
}

func (f *Failover) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	err := f.active().Set(ctx, key, value, ttl)
	f.monitor.ReportFailure(err)
	return err
}

func (f *Failover) Delete(ctx context.Context, keys ...string) error {
	err := f.active().Delete(ctx, keys...)
	f.monitor.ReportFailure(err)
	return err
}

func (f *Failover) DeletePattern(ctx context.Context, pattern string) (int64, error) {
	n, err := f.active().DeletePattern(ctx, pattern)
	f.monitor.ReportFailure(err)
	return n, err
}

// Close releases both backends.
func (f *Failover) Close() error {
	remoteErr := f.remote.Close()
	if err := f.local.Close(); err != nil {
		return err
	}
	return remoteErr
}
