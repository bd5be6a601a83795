package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"safesight/internal/core"
)

// countingBackend wraps a Store and counts lookups that reach it
type countingBackend struct {
	*Store
	lookups   int
	failWrite bool
}

func (c *countingBackend) FindFresh(ctx context.Context, subject core.Subject, now time.Time) (*core.Takeaway, error) {
	c.lookups++
	return c.Store.FindFresh(ctx, subject, now)
}

func (c *countingBackend) Insert(ctx context.Context, t *core.Takeaway) error {
	if c.failWrite {
		return errors.New("disk full")
	}
	return c.Store.Insert(ctx, t)
}

func TestMemoryCache_ServesRepeatLookups(t *testing.T) {
	backend := &countingBackend{Store: newTestStore(t)}
	cache := NewMemoryCache(backend, 100)
	ctx := context.Background()
	now := time.Now().UTC()
	subject := core.ListingSubject("mem-1")

	tk := newTakeaway(subject, now, time.Hour)
	if err := backend.Store.Insert(ctx, tk); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		got, err := cache.FindFresh(ctx, subject, now)
		if err != nil || got == nil {
			t.Fatalf("FindFresh failed: %v", err)
		}
		if got.ID != tk.ID {
			t.Errorf("Expected %s, got %s", tk.ID, got.ID)
		}
	}

	if backend.lookups != 1 {
		t.Errorf("Expected 1 backend lookup, got %d", backend.lookups)
	}
	if cache.Hits() != 2 {
		t.Errorf("Expected 2 memory hits, got %d", cache.Hits())
	}
}

func TestMemoryCache_HonoursExpiry(t *testing.T) {
	backend := &countingBackend{Store: newTestStore(t)}
	cache := NewMemoryCache(backend, 100)
	ctx := context.Background()
	now := time.Now().UTC()
	subject := core.VideoSubject("mem-2")

	if err := cache.Insert(ctx, newTakeaway(subject, now, time.Hour)); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := cache.FindFresh(ctx, subject, now.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("FindFresh failed: %v", err)
	}
	if got != nil {
		t.Error("Expected expired record to be ignored")
	}
	if backend.lookups != 1 {
		t.Errorf("Expected fallthrough to backend, got %d lookups", backend.lookups)
	}
}

func TestMemoryCache_FailedWriteNotCached(t *testing.T) {
	backend := &countingBackend{Store: newTestStore(t), failWrite: true}
	cache := NewMemoryCache(backend, 100)
	ctx := context.Background()
	now := time.Now().UTC()
	subject := core.ListingSubject("mem-3")

	if err := cache.Insert(ctx, newTakeaway(subject, now, time.Hour)); err == nil {
		t.Fatal("Expected insert error")
	}

	got, err := cache.FindFresh(ctx, subject, now)
	if err != nil {
		t.Fatalf("FindFresh failed: %v", err)
	}
	if got != nil {
		t.Error("Expected miss after failed write")
	}
}

func TestMemoryCache_EntryLimitEvictsEarliestExpiry(t *testing.T) {
	backend := &countingBackend{Store: newTestStore(t)}
	cache := NewMemoryCache(backend, 2)
	ctx := context.Background()
	now := time.Now().UTC()

	soonest := core.ListingSubject("a")
	middle := core.ListingSubject("b")
	latest := core.ListingSubject("c")
	inserts := []struct {
		subject core.Subject
		ttl     time.Duration
	}{
		{soonest, time.Hour},
		{middle, 2 * time.Hour},
		{latest, 3 * time.Hour},
	}
	for _, in := range inserts {
		if err := cache.Insert(ctx, newTakeaway(in.subject, now, in.ttl)); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	for _, s := range []core.Subject{latest, middle} {
		got, err := cache.FindFresh(ctx, s, now)
		if err != nil || got == nil {
			t.Fatalf("FindFresh(%s) failed: %v", s.Key(), err)
		}
	}
	if backend.lookups != 0 {
		t.Errorf("Expected newest subjects served from memory, got %d backend lookups", backend.lookups)
	}

	got, err := cache.FindFresh(ctx, soonest, now)
	if err != nil || got == nil {
		t.Fatalf("FindFresh(a) failed: %v", err)
	}
	if backend.lookups != 1 {
		t.Errorf("Expected evicted subject to reach the backend, got %d lookups", backend.lookups)
	}
	if cache.cache.ItemCount() != 2 {
		t.Errorf("Expected cache to stay at 2 entries, got %d", cache.cache.ItemCount())
	}
}

func TestOpen_Drivers(t *testing.T) {
	ctx := context.Background()

	backend, err := Open(ctx, Options{Driver: "sqlite", Directory: t.TempDir(), MemoryEntries: 10})
	if err != nil {
		t.Fatalf("Open sqlite failed: %v", err)
	}
	defer backend.Close()
	if _, ok := backend.(*MemoryCache); !ok {
		t.Errorf("Expected memory cache wrapper, got %T", backend)
	}

	if _, err := Open(ctx, Options{Driver: "postgres"}); err == nil {
		t.Error("Expected error for postgres without URL")
	}
	if _, err := Open(ctx, Options{Driver: "mongo"}); err == nil {
		t.Error("Expected error for unknown driver")
	}
}
