package upstream

import (
	"sync"
	"time"
)

// DefaultTTL is how long a cached response stays fresh.
const DefaultTTL = 5 * time.Minute

type cacheEntry struct {
	data     []byte
	storedAt time.Time
}

// Cache holds upstream responses keyed by request signature. Entries are
// fresh strictly inside the TTL and evicted the first time they are seen
// stale. Like the limiter, one instance serves the whole process.
type Cache struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]cacheEntry
}

// CacheOption adjusts cache construction.
type CacheOption func(*Cache)

// WithClock substitutes the time source. Intended for tests.
func WithClock(now func() time.Time) CacheOption {
	return func(c *Cache) {
		c.now = now
	}
}

// NewCache creates a cache with the given TTL. A non-positive TTL falls
// back to the default.
func NewCache(ttl time.Duration, opts ...CacheOption) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Cache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the cached response for the signature if it is still fresh.
// Stale entries are evicted on sight. Callers must not modify the returned
// bytes.
func (c *Cache) Get(signature string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[signature]
	if !ok {
		return nil, false
	}
	if c.now().Sub(entry.storedAt) >= c.ttl {
		delete(c.entries, signature)
		return nil, false
	}
	return entry.data, true
}

// Put stores a response under the signature, stamping it with the current
// time.
func (c *Cache) Put(signature string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[signature] = cacheEntry{data: data, storedAt: c.now()}
}

// Invalidate drops a single entry.
func (c *Cache) Invalidate(signature string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, signature)
}

// Purge drops every entry.
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
}

// Len returns the number of stored entries, fresh or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
