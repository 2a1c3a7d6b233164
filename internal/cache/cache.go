// Package cache provides a TTL response cache keyed by query fingerprints.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"finrag/internal/contextutil"
)

// sweepInterval is how often the background sweep evicts expired entries.
// Lazy eviction on Get keeps correctness; the sweep only bounds memory.
const sweepInterval = 5 * time.Minute

// entry is one cached response with its expiry.
type entry struct {
	value     any
	expiresAt time.Time
}

// Cache is an in-memory TTL cache. Safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	entries map[string]entry
	ttl     time.Duration
	now     func() time.Time
}

// New creates a cache whose entries expire after ttl.
func New(ttl time.Duration) *Cache {
	return &Cache{
		entries: make(map[string]entry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Fingerprint derives a stable cache key from the request shape. The query
// is lowercased and whitespace-collapsed so trivially reworded requests hit
// the same entry; the document filter is sorted so order never matters.
func Fingerprint(query string, documentIDs []string, k int, hybrid bool) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(query)), " ")

	docs := make([]string, len(documentIDs))
	copy(docs, documentIDs)
	sort.Strings(docs)

	var b strings.Builder
	b.WriteString(normalized)
	b.WriteString("|")
	b.WriteString(strings.Join(docs, ","))
	b.WriteString("|")
	b.WriteString(strconv.Itoa(k))
	b.WriteString("|")
	b.WriteString(strconv.FormatBool(hybrid))

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// Get returns the cached value for key, or false if absent or expired.
// Expired entries are evicted on access.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().After(e.expiresAt) {
		delete(c.entries, key)
		return nil, false
	}
	return e.value, true
}

// Put stores a value under key with the configured TTL.
func (c *Cache) Put(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{value: value, expiresAt: c.now().Add(c.ttl)}
}

// Delete removes a single entry.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Clear removes all entries.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry)
}

// Size returns the number of entries, including any not yet swept.
func (c *Cache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// StartSweeper evicts expired entries periodically until ctx is cancelled.
func (c *Cache) StartSweeper(ctx context.Context) {
	logger := contextutil.LoggerFromContext(ctx)

	go func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				evicted := c.sweep()
				if evicted > 0 {
					logger.DebugContext(ctx, "cache sweep", "evicted", evicted)
				}
			}
		}
	}()
}

func (c *Cache) sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	evicted := 0
	for key, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, key)
			evicted++
		}
	}
	return evicted
}
