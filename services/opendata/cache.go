// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package opendata

import (
	"container/list"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// DefaultCacheTTL is how long a response stays servable.
	DefaultCacheTTL = 5 * time.Minute

	// DefaultCacheCapacity bounds the number of cached responses.
	DefaultCacheCapacity = 100
)

// CacheStats reports cache effectiveness.
type CacheStats struct {
	Size      int   `json:"size"`
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
}

type cacheEntry struct {
	key      string
	response DataResponse
	storedAt time.Time
	elem     *list.Element
}

// responseCache is a TTL cache with insertion-order eviction.
//
// Unlike an LRU, reads never reorder entries: when the cache exceeds its
// capacity the entry inserted first is dropped. Re-storing an existing key
// refreshes its value and timestamp but keeps its original position.
//
// # Thread Safety
//
// Safe for concurrent use.
type responseCache struct {
	mu       sync.Mutex
	entries  map[string]*cacheEntry
	order    *list.List // front = oldest insertion
	ttl      time.Duration
	capacity int

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

func newResponseCache(ttl time.Duration, capacity int) *responseCache {
	return &responseCache{
		entries:  make(map[string]*cacheEntry),
		order:    list.New(),
		ttl:      ttl,
		capacity: capacity,
	}
}

// get returns a copy of the cached response if present and not expired.
// Expired entries are removed on access.
func (c *responseCache) get(key string, now time.Time) (DataResponse, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.misses.Add(1)
		return DataResponse{}, false
	}
	if now.Sub(e.storedAt) > c.ttl {
		c.removeLocked(e)
		c.misses.Add(1)
		return DataResponse{}, false
	}
	c.hits.Add(1)
	return e.response.clone(), true
}

func (c *responseCache) set(key string, resp DataResponse, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.response = resp.clone()
		e.storedAt = now
		return
	}

	e := &cacheEntry{key: key, response: resp.clone(), storedAt: now}
	e.elem = c.order.PushBack(e)
	c.entries[key] = e

	for c.capacity > 0 && len(c.entries) > c.capacity {
		oldest := c.order.Front()
		if oldest == nil {
			break
		}
		c.removeLocked(oldest.Value.(*cacheEntry))
		c.evictions.Add(1)
	}
}

func (c *responseCache) removeLocked(e *cacheEntry) {
	c.order.Remove(e.elem)
	delete(c.entries, e.key)
}

func (c *responseCache) stats() CacheStats {
	c.mu.Lock()
	size := len(c.entries)
	c.mu.Unlock()
	return CacheStats{
		Size:      size,
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
	}
}
