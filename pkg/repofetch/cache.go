// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package repofetch

import (
	"fmt"
	"sync"
	"time"
)

// DefaultManifestCacheTTL is the default lifetime of a cached tree listing.
const DefaultManifestCacheTTL = 5 * time.Minute

// ManifestCache is a TTL-bounded, mutex-guarded cache of repository tree
// listings, keyed by owner/name@ref. It is what makes
// DownloadStatistics.CacheHits and DownloadResult.CacheHits load-bearing
// instead of permanently zero.
type ManifestCache struct {
	mu      sync.Mutex
	entries map[string]*CacheEntry
	ttl     time.Duration
}

// NewManifestCache builds a cache with the given TTL. A zero TTL disables
// expiry (entries live until evicted by a future Put with the same key).
func NewManifestCache(ttl time.Duration) *ManifestCache {
	return &ManifestCache{
		entries: make(map[string]*CacheEntry),
		ttl:     ttl,
	}
}

// manifestCacheKey builds the cache key for a repository tree lookup.
func manifestCacheKey(owner, name string, ref GitRef) string {
	return fmt.Sprintf("%s/%s@%s", owner, name, ref.Name)
}

// Get returns the cached files for the key, bumping AccessCount, or
// (nil, false) on a miss or expired entry. An expired entry is evicted.
func (c *ManifestCache) Get(key string) ([]FileEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if entry.IsExpired() {
		delete(c.entries, key)
		return nil, false
	}
	entry.AccessCount++
	return entry.Files, true
}

// Put stores files under key with the cache's configured TTL.
func (c *ManifestCache) Put(key string, files []FileEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := &CacheEntry{
		Key:       key,
		Files:     files,
		CreatedAt: time.Now(),
	}
	if c.ttl > 0 {
		entry.ExpiresAt = entry.CreatedAt.Add(c.ttl)
	}
	c.entries[key] = entry
}

// Len reports the number of entries currently held, expired or not.
func (c *ManifestCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
