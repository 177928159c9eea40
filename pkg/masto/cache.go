package masto

import (
	"context"
	"sync"
	"time"

	"github.com/fivetwenty-io/masto/internal/constants"
)

// Cache stores small opaque blobs such as negotiated instance metadata.
type Cache interface {
	Get(ctx context.Context, key string) (*CacheEntry, error)
	Set(ctx context.Context, key string, entry *CacheEntry) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
	Has(ctx context.Context, key string) bool
}

// CacheEntry is a cached value with its expiry.
type CacheEntry struct {
	Data      []byte    `json:"data"`
	ExpiresAt time.Time `json:"expires_at"`
	ETag      string    `json:"etag,omitempty"`
}

// Expired reports whether the entry is past its expiry. A zero ExpiresAt never expires.
func (e *CacheEntry) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && now.After(e.ExpiresAt)
}

type memoryItem struct {
	entry    *CacheEntry
	storedAt time.Time
}

// MemoryCache is a bounded in-process cache. When full, the oldest entry is evicted.
type MemoryCache struct {
	mu      sync.RWMutex
	items   map[string]memoryItem
	maxSize int
}

// NewMemoryCache creates a memory cache holding at most maxSize entries.
func NewMemoryCache(maxSize int) *MemoryCache {
	if maxSize <= 0 {
		maxSize = constants.DefaultCacheSize
	}

	return &MemoryCache{
		items:   make(map[string]memoryItem),
		maxSize: maxSize,
	}
}

// Get returns the entry for key.
func (c *MemoryCache) Get(ctx context.Context, key string) (*CacheEntry, error) {
	c.mu.RLock()
	item, ok := c.items[key]
	c.mu.RUnlock()

	if !ok {
		return nil, ErrKeyNotFound
	}

	if item.entry.Expired(time.Now()) {
		_ = c.Delete(ctx, key)

		return nil, ErrEntryExpired
	}

	return item.entry, nil
}

// Set stores entry under key.
func (c *MemoryCache) Set(ctx context.Context, key string, entry *CacheEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.items[key]; !exists && len(c.items) >= c.maxSize {
		c.evictOldestLocked()
	}

	c.items[key] = memoryItem{entry: entry, storedAt: time.Now()}

	return nil
}

func (c *MemoryCache) evictOldestLocked() {
	var (
		oldestKey string
		oldestAt  time.Time
	)

	for k, item := range c.items {
		if oldestKey == "" || item.storedAt.Before(oldestAt) {
			oldestKey = k
			oldestAt = item.storedAt
		}
	}

	delete(c.items, oldestKey)
}

// Delete removes key.
func (c *MemoryCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()

	return nil
}

// Clear removes every entry.
func (c *MemoryCache) Clear(ctx context.Context) error {
	c.mu.Lock()
	c.items = make(map[string]memoryItem)
	c.mu.Unlock()

	return nil
}

// Has reports whether key holds an unexpired entry.
func (c *MemoryCache) Has(ctx context.Context, key string) bool {
	_, err := c.Get(ctx, key)

	return err == nil
}

// Len returns the number of stored entries, expired ones included.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.items)
}

// Cleanup drops expired entries and returns how many were removed.
func (c *MemoryCache) Cleanup() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	removed := 0

	for k, item := range c.items {
		if item.entry.Expired(now) {
			delete(c.items, k)

			removed++
		}
	}

	return removed
}

// StartCleanup sweeps expired entries every interval until ctx is done.
func (c *MemoryCache) StartCleanup(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = constants.CacheCleanupInterval
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.Cleanup()
			}
		}
	}()
}
