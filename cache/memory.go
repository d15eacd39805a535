package cache

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// Memory is an in-process implementation of Store. It is the fallback used
// while the shared store is unreachable; entries do not survive restarts
// and are invisible to other instances.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	stopCh  chan struct{}
}

// NewMemory creates an in-process cache with automatic cleanup of expired
// entries.
func NewMemory() *Memory {
	m := &Memory{
		entries: make(map[string]memoryEntry),
		stopCh:  make(chan struct{}),
	}

	go m.cleanup()
	return m
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, exists := m.entries[key]
	if !exists || time.Now().After(entry.expiresAt) {
		return nil, false, nil
	}
	return entry.value, true, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[key] = memoryEntry{
		value:     value,
		expiresAt: time.Now().Add(ttl),
	}
	return nil
}

func (m *Memory) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, key := range keys {
		delete(m.entries, key)
	}
	return nil
}

func (m *Memory) DeletePattern(_ context.Context, pattern string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed int64
	for key := range m.entries {
		if globMatch(pattern, key) {
			delete(m.entries, key)
			removed++
		}
	}
	return removed, nil
}

func (m *Memory) Close() error {
	close(m.stopCh)
	return nil
}

func (m *Memory) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			now := time.Now()

			m.mu.Lock()
			for key, entry := range m.entries {
				if now.After(entry.expiresAt) {
					delete(m.entries, key)
				}
			}
			m.mu.Unlock()
		case <-m.stopCh:
			return
		}
	}
}
