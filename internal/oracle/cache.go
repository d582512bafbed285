package oracle

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"
)

// defaultCacheTTL matches the one-hour expiry used across the pipeline's
// session caches.
const defaultCacheTTL = time.Hour

// promptCache memoizes raw model responses keyed by the full prompt so
// repeated identical calls within the TTL never hit the API.
type promptCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]promptCacheEntry
	now     func() time.Time
}

type promptCacheEntry struct {
	data     json.RawMessage
	storedAt time.Time
}

func newPromptCache(ttl time.Duration) *promptCache {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &promptCache{
		ttl:     ttl,
		entries: make(map[string]promptCacheEntry),
		now:     time.Now,
	}
}

// key hashes the system message and prompt into a short cache key.
func (c *promptCache) key(systemMessage, prompt string) string {
	sum := sha256.Sum256([]byte(systemMessage + "||" + prompt))
	return hex.EncodeToString(sum[:])[:16]
}

// get returns the cached response for key, dropping it if expired.
func (c *promptCache) get(key string) (json.RawMessage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().Sub(entry.storedAt) > c.ttl {
		delete(c.entries, key)
		return nil, false
	}
	return entry.data, true
}

func (c *promptCache) set(key string, data json.RawMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = promptCacheEntry{data: data, storedAt: c.now()}
}

func (c *promptCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
