package cache

import (
	"context"
	"sync"
	"time"

	"github.com/jupiterclapton/atelier/internal/core/ports"
)

// Les entrées expirées sont purgées au plus une fois par sweepInterval.
const sweepInterval = time.Minute

type memoryEntry struct {
	resp      *ports.StoredResponse // nil = en cours
	expiresAt time.Time
}

// MemoryIdempotencyStore : même contrat que la version Redis, pour le mode local et les tests.
type MemoryIdempotencyStore struct {
	mu        sync.Mutex
	entries   map[string]memoryEntry
	now       func() time.Time
	nextSweep time.Time
}

func NewMemoryIdempotencyStore() *MemoryIdempotencyStore {
	return &MemoryIdempotencyStore{entries: make(map[string]memoryEntry), now: time.Now}
}

func (m *MemoryIdempotencyStore) Reserve(_ context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	m.sweep(now)
	if e, ok := m.entries[key]; ok && now.Before(e.expiresAt) {
		return false, nil
	}
	m.entries[key] = memoryEntry{expiresAt: now.Add(ttl)}
	return true, nil
}

// sweep supprime les entrées expirées. Appelé sous m.mu.
func (m *MemoryIdempotencyStore) sweep(now time.Time) {
	if now.Before(m.nextSweep) {
		return
	}
	for k, e := range m.entries {
		if !now.Before(e.expiresAt) {
			delete(m.entries, k)
		}
	}
	m.nextSweep = now.Add(sweepInterval)
}

func (m *MemoryIdempotencyStore) Load(_ context.Context, key string) (*ports.StoredResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok || e.resp == nil {
		return nil, nil
	}
	if !m.now().Before(e.expiresAt) {
		delete(m.entries, key)
		return nil, nil
	}
	cp := *e.resp
	return &cp, nil
}

func (m *MemoryIdempotencyStore) Save(_ context.Context, key string, resp ports.StoredResponse, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = memoryEntry{resp: &resp, expiresAt: m.now().Add(ttl)}
	return nil
}

func (m *MemoryIdempotencyStore) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}
