package cache

import (
	"crypto/sha256"
	"fmt"
	"sync"
	"time"
)

// CachedResponse represents a cached backend reply
type CachedResponse struct {
	Response  string
	Timestamp time.Time
}

// GenerateCacheKey hashes parts into a stable hex key. Parts are separated
// so that ("ab", "c") and ("a", "bc") hash differently.
func GenerateCacheKey(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

// ResponseCache keeps backend replies for ttl. A zero ttl never expires.
type ResponseCache struct {
	entries sync.Map
	ttl     time.Duration
	now     func() time.Time
}

// NewResponseCache creates an empty cache.
func NewResponseCache(ttl time.Duration) *ResponseCache {
	return &ResponseCache{ttl: ttl, now: time.Now}
}

// Get returns the cached reply for key, dropping it if expired.
func (c *ResponseCache) Get(key string) (string, bool) {
	val, ok := c.entries.Load(key)
	if !ok {
		return "", false
	}
	cached := val.(CachedResponse)
	if c.ttl > 0 && c.now().Sub(cached.Timestamp) > c.ttl {
		c.entries.Delete(key)
		return "", false
	}
	return cached.Response, true
}

// Put stores a reply under key.
func (c *ResponseCache) Put(key, response string) {
	c.entries.Store(key, CachedResponse{
		Response:  response,
		Timestamp: c.now(),
	})
}
