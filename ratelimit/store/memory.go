package store

import (
	"context"
	"sync"
	"time"
)

type counterEntry struct {
	count      int64
	expiration time.Time
}

// Memory is an in-memory implementation of Store. It is the process-local
// fallback used while the shared store is unreachable: semantics match the
// distributed store but accounting is scoped to one process.
type Memory struct {
	mu       sync.RWMutex
	counters map[string]*counterEntry
	blocks   map[string]time.Time
	stopCh   chan struct{}
}

// NewMemory creates a new in-memory store with automatic cleanup of expired
// entries.
func NewMemory() *Memory {
	m := &Memory{
		counters: make(map[string]*counterEntry),
		blocks:   make(map[string]time.Time),
		stopCh:   make(chan struct{}),
	}

	go m.cleanup()
	return m
}

func (m *Memory) Increment(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	entry, exists := m.counters[key]

	if !exists || now.After(entry.expiration) {
		m.counters[key] = &counterEntry{
			count:      1,
			expiration: now.Add(window),
		}
		return 1, window, nil
	}

	entry.count++
	ttl := max(0, time.Until(entry.expiration))
	return entry.count, ttl, nil
}

func (m *Memory) Block(_ context.Context, key string, d time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.blocks[key] = time.Now().Add(d)
	// The record resets entirely once the block elapses, even when the
	// block is shorter than the counting window.
	delete(m.counters, key)
	return nil
}

func (m *Memory) BlockRemaining(_ context.Context, key string) (time.Duration, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	until, exists := m.blocks[key]
	if !exists {
		return 0, false, nil
	}
	remaining := time.Until(until)
	if remaining <= 0 {
		return 0, false, nil
	}
	return remaining, true, nil
}

func (m *Memory) Reset(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.counters, key)
	delete(m.blocks, key)
	return nil
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
			for key, entry := range m.counters {
				if now.After(entry.expiration) {
					delete(m.counters, key)
				}
			}
			for key, until := range m.blocks {
				if now.After(until) {
					delete(m.blocks, key)
				}
			}
			m.mu.Unlock()
		case <-m.stopCh:
			return
		}
	}
}
