package upstream

import (
	"testing"
	"time"
)

// fakeClock is a manually advanced time source.
type fakeClock struct {
	current time.Time
}

func (f *fakeClock) now() time.Time {
	return f.current
}

func (f *fakeClock) advance(d time.Duration) {
	f.current = f.current.Add(d)
}

func TestCacheServesFreshEntryWithinTTL(t *testing.T) {
	clock := &fakeClock{current: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	c := NewCache(5*time.Minute, WithClock(clock.now))

	c.Put("sig", []byte(`{"rows":1}`))

	clock.advance(4*time.Minute + 59*time.Second)
	data, ok := c.Get("sig")
	if !ok {
		t.Fatal("expected hit just inside the TTL")
	}
	if string(data) != `{"rows":1}` {
		t.Fatalf("unexpected payload %s", data)
	}
}

func TestCacheEvictsStaleEntry(t *testing.T) {
	clock := &fakeClock{current: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	c := NewCache(5*time.Minute, WithClock(clock.now))

	c.Put("sig", []byte("old"))

	clock.advance(5*time.Minute + time.Second)
	if _, ok := c.Get("sig"); ok {
		t.Fatal("expected miss past the TTL")
	}
	if got := c.Len(); got != 0 {
		t.Fatalf("expected stale entry evicted, len = %d", got)
	}
}

func TestCacheExactTTLBoundaryIsStale(t *testing.T) {
	clock := &fakeClock{current: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	c := NewCache(5*time.Minute, WithClock(clock.now))

	c.Put("sig", []byte("old"))
	clock.advance(5 * time.Minute)
	if _, ok := c.Get("sig"); ok {
		t.Fatal("entry aged exactly TTL must be stale")
	}
}

func TestCachePutRefreshesTimestamp(t *testing.T) {
	clock := &fakeClock{current: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	c := NewCache(5*time.Minute, WithClock(clock.now))

	c.Put("sig", []byte("v1"))
	clock.advance(4 * time.Minute)
	c.Put("sig", []byte("v2"))
	clock.advance(4 * time.Minute)

	data, ok := c.Get("sig")
	if !ok {
		t.Fatal("expected refreshed entry to remain fresh")
	}
	if string(data) != "v2" {
		t.Fatalf("expected v2, got %s", data)
	}
}

func TestCacheInvalidateAndPurge(t *testing.T) {
	c := NewCache(5 * time.Minute)
	c.Put("a", []byte("1"))
	c.Put("b", []byte("2"))

	c.Invalidate("a")
	if _, ok := c.Get("a"); ok {
		t.Fatal("expected invalidated entry gone")
	}
	if _, ok := c.Get("b"); !ok {
		t.Fatal("expected other entry untouched")
	}

	c.Purge()
	if got := c.Len(); got != 0 {
		t.Fatalf("expected empty cache after purge, len = %d", got)
	}
}

func TestCacheDefaultTTL(t *testing.T) {
	c := NewCache(0)
	if c.ttl != DefaultTTL {
		t.Fatalf("expected default TTL %v, got %v", DefaultTTL, c.ttl)
	}
}
