package resolve

import (
	"sync"
	"time"
)

// cachedOutcome is a cacheable resolution: a redirect target or a definite
// miss. Found outcomes are never cached because the owning entity must be
// loaded fresh.
type cachedOutcome struct {
	Kind       Kind
	RedirectTo string
}

type cacheEntry struct {
	outcome    cachedOutcome
	expiresAt  time.Time
	insertedAt time.Time
}

// outcomeCache is a thread-safe in-memory cache with TTL and max-size
// eviction. When the cache reaches maxSize, the oldest entry (by insertion
// time) is evicted. Expired entries are lazily evicted on Get.
type outcomeCache struct {
	mu      sync.Mutex
	items   map[string]*cacheEntry
	maxSize int
	ttl     time.Duration
}

func newOutcomeCache(maxSize int, ttl time.Duration) *outcomeCache {
	if maxSize < 1 {
		maxSize = 1
	}
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &outcomeCache{
		items:   make(map[string]*cacheEntry, maxSize),
		maxSize: maxSize,
		ttl:     ttl,
	}
}

func (c *outcomeCache) Get(key string) (cachedOutcome, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items[key]
	if !ok {
		return cachedOutcome{}, false
	}
	if time.Now().After(e.expiresAt) {
		delete(c.items, key)
		return cachedOutcome{}, false
	}
	return e.outcome, true
}

func (c *outcomeCache) Set(key string, outcome cachedOutcome) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if _, ok := c.items[key]; !ok && len(c.items) >= c.maxSize {
		c.evictOldest()
	}
	c.items[key] = &cacheEntry{
		outcome:    outcome,
		expiresAt:  now.Add(c.ttl),
		insertedAt: now,
	}
}

func (c *outcomeCache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*cacheEntry, c.maxSize)
}

func (c *outcomeCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// evictOldest removes the entry with the oldest insertedAt timestamp.
// Must be called with c.mu held.
func (c *outcomeCache) evictOldest() {
	var oldestKey string
	var oldestTime time.Time
	first := true
	for k, e := range c.items {
		if first || e.insertedAt.Before(oldestTime) {
			oldestKey = k
			oldestTime = e.insertedAt
			first = false
		}
	}
	if oldestKey != "" {
		delete(c.items, oldestKey)
	}
}
