package cache

import (
	"context"
	"sync"
	"sync/atomic"
)

// Memory is the in-process fallback store, used when no Redis address is
// configured and in tests. Entries live for the lifetime of the process.
type Memory struct {
	mu    sync.RWMutex
	items map[string][]byte

	hits     atomic.Int64
	misses   atomic.Int64
	writes   atomic.Int64
	rejected atomic.Int64
}

func NewMemory() *Memory {
	return &Memory{items: map[string][]byte{}}
}

func (m *Memory) Get(_ context.Context, fingerprint string) ([]byte, error) {
	m.mu.RLock()
	payload, ok := m.items[fingerprint]
	m.mu.RUnlock()

	if !ok {
		m.misses.Add(1)
		return nil, ErrMiss
	}
	m.hits.Add(1)

	// Callers may hold the payload past the lock, so hand out a copy.
	out := make([]byte, len(payload))
	copy(out, payload)
	return out, nil
}

func (m *Memory) Put(_ context.Context, fingerprint string, payload []byte) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.items[fingerprint]; exists {
		m.rejected.Add(1)
		return false, nil
	}

	stored := make([]byte, len(payload))
	copy(stored, payload)
	m.items[fingerprint] = stored
	m.writes.Add(1)
	return true, nil
}

func (m *Memory) Delete(_ context.Context, fingerprint string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.items[fingerprint]; !exists {
		return false, nil
	}
	delete(m.items, fingerprint)
	return true, nil
}

func (m *Memory) Stats(_ context.Context) (Stats, error) {
	m.mu.RLock()
	entries := int64(len(m.items))
	m.mu.RUnlock()

	return Stats{
		Entries:  entries,
		Hits:     m.hits.Load(),
		Misses:   m.misses.Load(),
		Writes:   m.writes.Load(),
		Rejected: m.rejected.Load(),
	}, nil
}

func (m *Memory) Close() error { return nil }
