package format

import (
	"net/http"
	"sync"
	"time"

	"github.com/pquerna/cachecontrol"
)

// probeEntry holds a probed media type and its expiration time.
type probeEntry struct {
	mediaType string
	expiresAt time.Time
}

// ProbeCache is a thread-safe, in-memory cache of probed media types keyed
// by locator. Entries live for the response's HTTP freshness lifetime, or
// for the fallback TTL when the response carries no expiry information.
// Entries are lazily expired on access.
type ProbeCache struct {
	mu          sync.RWMutex
	entries     map[string]probeEntry
	fallbackTTL time.Duration
	now         func() time.Time
}

// NewProbeCache creates a cache. A zero fallbackTTL caches only responses
// with explicit freshness.
func NewProbeCache(fallbackTTL time.Duration) *ProbeCache {
	return &ProbeCache{
		entries:     make(map[string]probeEntry),
		fallbackTTL: fallbackTTL,
		now:         time.Now,
	}
}

// Get returns the cached media type for locator.
func (c *ProbeCache) Get(locator string) (string, bool) {
	c.mu.RLock()
	entry, exists := c.entries[locator]
	c.mu.RUnlock()

	if !exists {
		return "", false
	}

	if c.now().After(entry.expiresAt) {
		c.mu.Lock()
		// Re-check in case another goroutine already replaced it.
		if current, ok := c.entries[locator]; ok && c.now().After(current.expiresAt) {
			delete(c.entries, locator)
		}
		c.mu.Unlock()
		return "", false
	}

	return entry.mediaType, true
}

// Store caches the media type of a probe response for locator if HTTP
// caching rules allow it. It reports whether the entry was stored.
func (c *ProbeCache) Store(locator string, req *http.Request, resp *http.Response, mediaType string) bool {
	reasons, expires, err := cachecontrol.CachableResponse(req, resp, cachecontrol.Options{PrivateCache: true})
	if err != nil || len(reasons) > 0 {
		return false
	}

	now := c.now()
	if expires.IsZero() {
		if c.fallbackTTL <= 0 {
			return false
		}
		expires = now.Add(c.fallbackTTL)
	}
	if !expires.After(now) {
		return false
	}

	c.mu.Lock()
	c.entries[locator] = probeEntry{mediaType: mediaType, expiresAt: expires}
	c.mu.Unlock()
	return true
}

// Invalidate removes a specific entry from the cache.
func (c *ProbeCache) Invalidate(locator string) {
	c.mu.Lock()
	delete(c.entries, locator)
	c.mu.Unlock()
}

// Len returns the number of entries, including expired ones not yet removed.
func (c *ProbeCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Cleanup removes all expired entries and returns how many were removed.
func (c *ProbeCache) Cleanup() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	expired := 0
	now := c.now()
	for locator, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, locator)
			expired++
		}
	}
	return expired
}
