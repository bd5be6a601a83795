package store

import (
	"context"
	"sync/atomic"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"safesight/internal/core"
)

// MemoryCache keeps recently read or written fresh records in process memory in front
// of another backend. Records are immutable, so an entry is valid until its ExpiresAt.
type MemoryCache struct {
	next       Backend
	cache      *gocache.Cache
	maxEntries int
	hits       atomic.Int64
}

// NewMemoryCache wraps next. Once maxEntries is reached, expired entries are swept and
// then the entry closest to expiry is evicted to make room.
func NewMemoryCache(next Backend, maxEntries int) *MemoryCache {
	return &MemoryCache{
		next:       next,
		cache:      gocache.New(gocache.NoExpiration, 10*time.Minute),
		maxEntries: maxEntries,
	}
}

// FindFresh answers from memory when possible and falls back to the wrapped backend.
func (m *MemoryCache) FindFresh(ctx context.Context, subject core.Subject, now time.Time) (*core.Takeaway, error) {
	key := subject.Key()
	if v, ok := m.cache.Get(key); ok {
		if t := v.(*core.Takeaway); t.IsFresh(now) {
			m.hits.Add(1)
			copied := *t
			return &copied, nil
		}
		m.cache.Delete(key)
	}

	t, err := m.next.FindFresh(ctx, subject, now)
	if err != nil || t == nil {
		return t, err
	}
	m.remember(key, t, now)
	return t, nil
}

// Insert writes through to the wrapped backend and caches the record on success.
func (m *MemoryCache) Insert(ctx context.Context, t *core.Takeaway) error {
	if err := m.next.Insert(ctx, t); err != nil {
		return err
	}
	m.remember(t.Subject.Key(), t, time.Now())
	return nil
}

// PruneExpired drops expired memory entries and prunes the wrapped backend.
func (m *MemoryCache) PruneExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	m.cache.DeleteExpired()
	return m.next.PruneExpired(ctx, cutoff)
}

// Stats returns the wrapped backend's stats.
func (m *MemoryCache) Stats(ctx context.Context) (*core.CacheStats, error) {
	return m.next.Stats(ctx)
}

// Ping checks the wrapped backend.
func (m *MemoryCache) Ping(ctx context.Context) error {
	return m.next.Ping(ctx)
}

// Close flushes memory and closes the wrapped backend.
func (m *MemoryCache) Close() error {
	m.cache.Flush()
	return m.next.Close()
}

// Hits returns how many lookups were served from memory.
func (m *MemoryCache) Hits() int64 {
	return m.hits.Load()
}

func (m *MemoryCache) remember(key string, t *core.Takeaway, now time.Time) {
	ttl := t.ExpiresAt.Sub(now)
	if ttl <= 0 {
		return
	}
	if m.maxEntries > 0 {
		if _, found := m.cache.Get(key); !found && m.cache.ItemCount() >= m.maxEntries {
			m.makeRoom()
		}
	}
	copied := *t
	m.cache.Set(key, &copied, ttl)
}

// makeRoom drops expired entries, then evicts the entry with the earliest expiration
// until the cache is below capacity.
func (m *MemoryCache) makeRoom() {
	m.cache.DeleteExpired()
	for m.cache.ItemCount() >= m.maxEntries {
		var victim string
		var earliest int64
		for k, item := range m.cache.Items() {
			if victim == "" || item.Expiration < earliest {
				victim, earliest = k, item.Expiration
			}
		}
		if victim == "" {
			return
		}
		m.cache.Delete(victim)
	}
}
