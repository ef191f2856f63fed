package search

import (
	"context"
	"sync"
	"time"

	"github.com/brabijan/webshare-arr-connector/internal/domain"
)

// MemoryCache is the in-process CacheRepository. Reads return entries as
// stored, including expired ones; the orchestrator interprets expiry and
// DeleteExpired does the physical removal.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]domain.CacheEntry
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]domain.CacheEntry)}
}

func (m *MemoryCache) Get(_ context.Context, key string) (domain.CacheEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.entries[key]
	if !ok {
		return domain.CacheEntry{}, domain.ErrNotFound
	}
	return cloneEntry(entry), nil
}

func (m *MemoryCache) Put(_ context.Context, entry domain.CacheEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[entry.Key] = cloneEntry(entry)
	return nil
}

func (m *MemoryCache) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var removed int64
	for key, entry := range m.entries {
		if entry.Expired(now) {
			delete(m.entries, key)
			removed++
		}
	}
	return removed, nil
}

func cloneEntry(entry domain.CacheEntry) domain.CacheEntry {
	cloned := entry
	cloned.Results = append([]domain.RawCandidate(nil), entry.Results...)
	return cloned
}
