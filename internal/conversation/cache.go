package conversation

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// DefaultResponseTTL is how long a cached answer stays servable.
const DefaultResponseTTL = 3600 * time.Second

// cacheEntry holds one cached answer.
type cacheEntry struct {
	content   string
	cachedAt  time.Time
	expiresAt time.Time
}

func (e *cacheEntry) valid() bool {
	return time.Now().Before(e.expiresAt)
}

// ResponseCache memoizes model answers keyed by a hash of the model and
// prompt. Expired entries are dropped lazily on access.
type ResponseCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]*cacheEntry

	hits   int64
	misses int64
}

// NewResponseCache builds a cache. ttl <= 0 selects DefaultResponseTTL.
func NewResponseCache(ttl time.Duration) *ResponseCache {
	if ttl <= 0 {
		ttl = DefaultResponseTTL
	}
	return &ResponseCache{
		ttl:     ttl,
		entries: make(map[string]*cacheEntry),
	}
}

// CacheKey derives the lookup key for a model and prompt pair.
func CacheKey(model, prompt string) string {
	sum := sha256.Sum256([]byte(model + "\x00" + prompt))
	return hex.EncodeToString(sum[:])
}

// Get returns the cached answer for the key, if still fresh.
func (c *ResponseCache) Get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		c.misses++
		return "", false
	}
	if !entry.valid() {
		delete(c.entries, key)
		c.misses++
		return "", false
	}
	c.hits++
	return entry.content, true
}

// Put stores an answer under the key.
func (c *ResponseCache) Put(key, content string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	c.entries[key] = &cacheEntry{
		content:   content,
		cachedAt:  now,
		expiresAt: now.Add(c.ttl),
	}
}

// Invalidate removes one entry.
func (c *ResponseCache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Clear removes every entry.
func (c *ResponseCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*cacheEntry)
}

// Stats reports hit/miss counters and the live entry count.
func (c *ResponseCache) Stats() map[string]int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return map[string]int64{
		"hits":    c.hits,
		"misses":  c.misses,
		"entries": int64(len(c.entries)),
	}
}
