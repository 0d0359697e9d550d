package llm

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// ResponseCache is a bounded, TTL-expiring cache of generated answers,
// keyed by a fingerprint of (query, context, provider, model). Expired
// entries are removed lazily on access; there is no background sweep.
// Eviction at capacity is strict insertion order, not LRU.
//
// Identical in-flight requests are not de-duplicated: two concurrent
// misses for the same fingerprint both reach the backend. The cache only
// short-circuits requests that complete after an earlier one stored.
type ResponseCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	order   []string // fingerprints, oldest insertion first
	maxSize int
	ttl     time.Duration

	// now is swappable for TTL tests.
	now func() time.Time
}

type cacheEntry struct {
	answer   string
	storedAt time.Time
}

// NewResponseCache creates a cache holding at most maxSize entries, each
// valid for ttl after insertion.
func NewResponseCache(maxSize int, ttl time.Duration) *ResponseCache {
	if maxSize <= 0 {
		maxSize = 1000
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &ResponseCache{
		entries: make(map[string]cacheEntry),
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
	}
}

// fingerprint derives the cache key. Hash collisions are accepted as a
// theoretical risk. A NUL separator keeps adjacent fields from bleeding
// into each other.
func fingerprint(query, context, provider, model string) string {
	h := sha256.New()
	for _, s := range []string{query, context, provider, model} {
		h.Write([]byte(s))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the cached answer for the request, or ok=false when no
// live entry exists. An expired entry is deleted on the spot.
func (c *ResponseCache) Get(query, context, provider, model string) (string, bool) {
	key := fingerprint(query, context, provider, model)

	c.mu.Lock()
	defer c.mu.Unlock()

	e, exists := c.entries[key]
	if !exists {
		return "", false
	}
	if c.now().Sub(e.storedAt) >= c.ttl {
		c.remove(key)
		return "", false
	}
	log.Debug().Str("provider", provider).Msg("response cache hit")
	return e.answer, true
}

// Set stores the answer under the request's fingerprint, evicting the
// oldest-inserted entry first when the cache is full.
func (c *ResponseCache) Set(query, context, provider, model, answer string) {
	key := fingerprint(query, context, provider, model)

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; exists {
		c.entries[key] = cacheEntry{answer: answer, storedAt: c.now()}
		return
	}
	if len(c.entries) >= c.maxSize && len(c.order) > 0 {
		c.remove(c.order[0])
	}
	c.entries[key] = cacheEntry{answer: answer, storedAt: c.now()}
	c.order = append(c.order, key)
}

// Len reports the number of live plus expired-but-unswept entries.
func (c *ResponseCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// remove deletes key from both the map and the insertion order.
// Callers must hold c.mu.
func (c *ResponseCache) remove(key string) {
	delete(c.entries, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}
