// Package timeline assembles reverse chronological feeds by merging the
// post streams of followed authors, with an optional feed head cache in
// front of the store.
package timeline

import (
	"context"
	"sync"
	"time"

	"github.com/humancuration/cpc-core/internal/models"
)

// DefaultCacheTTL bounds how long a cached feed head may serve reads.
const DefaultCacheTTL = 5 * time.Minute

// CachedFeed is the cached head of one user's timeline. Complete marks a
// head that holds the user's entire timeline, so any window may be served
// from it regardless of length.
type CachedFeed struct {
	Entries  []models.TimelineEntry `json:"entries"`
	Complete bool                   `json:"complete"`
}

// Cache stores assembled feed heads per user. Get reports a miss as
// (nil, nil); errors are reserved for backend failures.
type Cache interface {
	Get(ctx context.Context, userID models.UUID) (*CachedFeed, error)
	Set(ctx context.Context, userID models.UUID, feed *CachedFeed) error
	Invalidate(ctx context.Context, userID models.UUID) error
}

// memoryEntry pairs a cached feed with its expiry.
type memoryEntry struct {
	feed      *CachedFeed
	expiresAt time.Time
}

// MemoryCache is an in-process feed cache with per-entry TTL. Safe for
// concurrent use.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[models.UUID]memoryEntry
	ttl     time.Duration
}

var _ Cache = (*MemoryCache)(nil)

// NewMemoryCache creates a memory cache. A non-positive ttl falls back to
// DefaultCacheTTL.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &MemoryCache{
		entries: make(map[models.UUID]memoryEntry),
		ttl:     ttl,
	}
}

// Get returns the cached feed head for userID, or (nil, nil) on a miss.
// Expired entries are dropped lazily.
func (c *MemoryCache) Get(ctx context.Context, userID models.UUID) (*CachedFeed, error) {
	c.mu.RLock()
	entry, ok := c.entries[userID]
	c.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	if time.Now().After(entry.expiresAt) {
		c.mu.Lock()
		// Re-check under the write lock; a concurrent Set may have refreshed it.
		if cur, ok := c.entries[userID]; ok && time.Now().After(cur.expiresAt) {
			delete(c.entries, userID)
		}
		c.mu.Unlock()
		return nil, nil
	}
	return entry.feed, nil
}

// Set stores the feed head for userID.
func (c *MemoryCache) Set(ctx context.Context, userID models.UUID, feed *CachedFeed) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[userID] = memoryEntry{feed: feed, expiresAt: time.Now().Add(c.ttl)}
	return nil
}

// Invalidate drops the cached feed head for userID.
func (c *MemoryCache) Invalidate(ctx context.Context, userID models.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, userID)
	return nil
}

// Len returns the number of cached feeds, expired entries included.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
