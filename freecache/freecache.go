// Package freecache provides a high-performance, zero-GC overhead
// implementation of httpdispatch.Cache using github.com/coocood/freecache as
// the underlying storage.
//
// This backend is suitable for applications that need to cache many entries
// with minimal GC overhead and automatic memory management with LRU
// eviction.
//
// Example usage:
//
//	cache := freecache.New(100 * 1024 * 1024) // 100MB cache
//	queue, err := httpdispatch.NewRequestQueue(network, httpdispatch.WithCache(cache))
package freecache

import (
	"context"
	"fmt"

	"github.com/coocood/freecache"

	"github.com/sandrolain/httpdispatch"
)

// Cache is an implementation of httpdispatch.Cache that uses freecache for
// storage. Entries are evicted LRU when the cache is full.
type Cache struct {
	cache *freecache.Cache
}

// New creates a new Cache with the specified size in bytes. The cache size
// will be set to 512KB at minimum.
//
// For large cache sizes, you may want to call debug.SetGCPercent() with a
// lower value to reduce GC overhead.
func New(size int) *Cache {
	return &Cache{
		cache: freecache.NewCache(size),
	}
}

// Initialize implements httpdispatch.Cache; it is a no-op for the in-memory
// store.
func (c *Cache) Initialize(_ context.Context) error {
	return nil
}

// Get returns the entry stored under key, or nil when absent or evicted.
func (c *Cache) Get(_ context.Context, key string) (*httpdispatch.Entry, error) {
	data, err := c.cache.Get([]byte(key))
	if err != nil {
		if err == freecache.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("freecache get failed for key %q: %w", key, err)
	}
	storedKey, entry, err := httpdispatch.DecodeEntry(data)
	if err != nil || storedKey != key {
		httpdispatch.GetLogger().Warn("dropping unreadable cache record", "key", key, "error", err)
		c.cache.Del([]byte(key))
		return nil, nil
	}
	return entry, nil
}

// Put stores the entry under key. If the cache is full, the least recently
// used entries are evicted to make room.
func (c *Cache) Put(_ context.Context, key string, entry *httpdispatch.Entry) error {
	if err := c.cache.Set([]byte(key), httpdispatch.EncodeEntry(key, entry), 0); err != nil {
		return fmt.Errorf("freecache put failed for key %q: %w", key, err)
	}
	return nil
}

// Invalidate expires the entry under key in place.
func (c *Cache) Invalidate(ctx context.Context, key string, fullExpire bool) error {
	entry, err := c.Get(ctx, key)
	if err != nil || entry == nil {
		return err
	}
	entry.Invalidate(fullExpire)
	return c.Put(ctx, key, entry)
}

// Remove deletes the entry under key.
func (c *Cache) Remove(_ context.Context, key string) error {
	c.cache.Del([]byte(key))
	return nil
}

// Clear deletes every entry.
func (c *Cache) Clear(_ context.Context) error {
	c.cache.Clear()
	return nil
}

// EntryCount returns the number of entries currently in the cache.
func (c *Cache) EntryCount() int64 {
	return c.cache.EntryCount()
}

// HitRate returns the ratio of cache hits to total lookups.
func (c *Cache) HitRate() float64 {
	return c.cache.HitRate()
}

// EvacuateCount returns the number of times entries were evicted due to the
// cache being full.
func (c *Cache) EvacuateCount() int64 {
	return c.cache.EvacuateCount()
}
