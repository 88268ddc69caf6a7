// Package memcache provides an implementation of httpdispatch.Cache that
// uses gomemcache to store cached entries in a memcache server.
package memcache

import (
	"context"
	"fmt"

	"github.com/bradfitz/gomemcache/memcache"

	"github.com/sandrolain/httpdispatch"
)

// Cache is an implementation of httpdispatch.Cache that stores entries in a
// memcache server.
type Cache struct {
	*memcache.Client
}

// cacheKey modifies a cache key for use in memcache. Specifically, it
// prefixes keys to avoid collision with other data stored in memcache.
func cacheKey(key string) string {
	return "httpdispatch:" + key
}

// New returns a new Cache using the provided memcache server(s) with equal
// weight. If a server is listed multiple times, it gets a proportional
// amount of weight.
func New(server ...string) *Cache {
	return NewWithClient(memcache.New(server...))
}

// NewWithClient returns a new Cache with the given memcache client.
func NewWithClient(client *memcache.Client) *Cache {
	return &Cache{client}
}

// Initialize verifies the server is reachable.
func (c *Cache) Initialize(_ context.Context) error {
	if err := c.Client.Ping(); err != nil {
		return fmt.Errorf("failed to connect to memcache: %w", err)
	}
	return nil
}

// Get returns the entry stored under key, or nil when absent.
func (c *Cache) Get(_ context.Context, key string) (*httpdispatch.Entry, error) {
	item, err := c.Client.Get(cacheKey(key))
	if err != nil {
		if err == memcache.ErrCacheMiss {
			return nil, nil
		}
		return nil, fmt.Errorf("memcache get failed for key %q: %w", key, err)
	}
	storedKey, entry, err := httpdispatch.DecodeEntry(item.Value)
	if err != nil || storedKey != key {
		httpdispatch.GetLogger().Warn("dropping unreadable cache record", "key", key, "error", err)
		//nolint:errcheck // best effort cleanup
		_ = c.Client.Delete(cacheKey(key))
		return nil, nil
	}
	return entry, nil
}

// Put stores the entry under key.
func (c *Cache) Put(_ context.Context, key string, entry *httpdispatch.Entry) error {
	item := &memcache.Item{
		Key:   cacheKey(key),
		Value: httpdispatch.EncodeEntry(key, entry),
	}
	if err := c.Client.Set(item); err != nil {
		return fmt.Errorf("memcache put failed for key %q: %w", key, err)
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
	if err := c.Client.Delete(cacheKey(key)); err != nil {
		if err == memcache.ErrCacheMiss {
			return nil
		}
		return fmt.Errorf("memcache delete failed for key %q: %w", key, err)
	}
	return nil
}

// Clear deletes every entry. Memcache has no prefix-scoped flush, so this
// flushes the whole server.
func (c *Cache) Clear(_ context.Context) error {
	if err := c.Client.FlushAll(); err != nil {
		return fmt.Errorf("memcache clear failed: %w", err)
	}
	return nil
}
