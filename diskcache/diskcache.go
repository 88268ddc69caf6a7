// Package diskcache provides an implementation of httpdispatch.Cache that
// uses the diskv package to supplement an in-memory LRU layer with
// persistent storage. It is the usual backend for a RequestQueue.
package diskcache

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/peterbourgon/diskv"

	"github.com/sandrolain/httpdispatch"
)

// Cache is an implementation of httpdispatch.Cache that stores encoded
// entries as files under a base path.
type Cache struct {
	d *diskv.Diskv
}

// New returns a new Cache that will store files in basePath, keeping up to
// 100MB of hot entries in memory.
func New(basePath string) *Cache {
	return &Cache{
		d: diskv.New(diskv.Options{
			BasePath:     basePath,
			CacheSizeMax: 100 * 1024 * 1024, // 100MB
		}),
	}
}

// NewWithDiskv returns a new Cache using the provided Diskv as underlying
// storage.
func NewWithDiskv(d *diskv.Diskv) *Cache {
	return &Cache{d}
}

// Initialize implements httpdispatch.Cache. The diskv store scans lazily, so
// there is nothing to do up front.
func (c *Cache) Initialize(_ context.Context) error {
	return nil
}

// Get returns the entry stored under key, or nil when absent. Records that
// fail to decode are dropped and reported as a miss so the entry gets
// refetched.
func (c *Cache) Get(_ context.Context, key string) (*httpdispatch.Entry, error) {
	filename := keyToFilename(key)
	data, err := c.d.Read(filename)
	if err != nil {
		return nil, nil // file not found is a miss, not an error
	}
	storedKey, entry, err := httpdispatch.DecodeEntry(data)
	if err != nil || storedKey != key {
		httpdispatch.GetLogger().Warn("dropping unreadable cache file", "key", key, "error", err)
		_ = c.d.Erase(filename) //nolint:errcheck // best effort cleanup
		return nil, nil
	}
	return entry, nil
}

// Put stores the entry under key.
func (c *Cache) Put(_ context.Context, key string, entry *httpdispatch.Entry) error {
	data := httpdispatch.EncodeEntry(key, entry)
	if err := c.d.WriteStream(keyToFilename(key), bytes.NewReader(data), true); err != nil {
		return fmt.Errorf("diskcache put failed for key: %w", err)
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
	// Erase errors when the file doesn't exist are not real errors
	_ = c.d.Erase(keyToFilename(key)) //nolint:errcheck // file not found is acceptable
	return nil
}

// Clear deletes every entry.
func (c *Cache) Clear(_ context.Context) error {
	if err := c.d.EraseAll(); err != nil {
		return fmt.Errorf("diskcache clear failed: %w", err)
	}
	return nil
}

func keyToFilename(key string) string {
	h := sha256.New()
	// Hash.Write never returns an error according to the interface contract
	//nolint:errcheck // io.WriteString to hash.Hash never fails
	_, _ = io.WriteString(h, key)
	return hex.EncodeToString(h.Sum(nil))
}
