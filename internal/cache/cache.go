// Package cache memoizes enrichment payloads by process number for a bounded
// time-to-live.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/sells-group/legalpub/internal/model"
)

// Cache stores enrichment payloads keyed by process number. Get reports a
// miss with ok=false. Concurrent misses on the same key are not coalesced.
type Cache interface {
	Get(ctx context.Context, key string) (payload *model.EnrichmentPayload, ok bool, err error)
	Put(ctx context.Context, key string, payload *model.EnrichmentPayload, ttl time.Duration) error
}

type entry struct {
	payload   *model.EnrichmentPayload
	expiresAt time.Time
}

// Memory is a process-local Cache. Expired entries are removed only when
// read, so keys that are never requested again stay resident for the life of
// the process.
type Memory struct {
	mu      sync.Mutex
	entries map[string]entry

	nowFunc func() time.Time
}

// NewMemory creates an empty in-memory cache.
func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]entry),
		nowFunc: time.Now,
	}
}

// Get returns the cached payload for key if present and unexpired.
func (m *Memory) Get(_ context.Context, key string) (*model.EnrichmentPayload, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !m.nowFunc().Before(e.expiresAt) {
		delete(m.entries, key)
		return nil, false, nil
	}
	return e.payload, true, nil
}

// Put stores payload with an absolute expiry of now+ttl.
func (m *Memory) Put(_ context.Context, key string, payload *model.EnrichmentPayload, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = entry{payload: payload, expiresAt: m.nowFunc().Add(ttl)}
	return nil
}

// Len returns the number of resident entries, expired or not.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
