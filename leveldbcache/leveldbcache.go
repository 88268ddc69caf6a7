// Package leveldbcache provides an implementation of httpdispatch.Cache that
// uses github.com/syndtr/goleveldb/leveldb
package leveldbcache

import (
	"context"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/sandrolain/httpdispatch"
)

// Cache is an implementation of httpdispatch.Cache with leveldb storage
type Cache struct {
	db *leveldb.DB
}

// New returns a new Cache that will store leveldb in path
func New(path string) (*Cache, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &Cache{db: db}, nil
}

// NewWithDB returns a new Cache using the provided leveldb as underlying
// storage.
func NewWithDB(db *leveldb.DB) *Cache {
	return &Cache{db}
}

// Initialize implements httpdispatch.Cache; the database was already opened
// by New, so there is nothing left to do.
func (c *Cache) Initialize(_ context.Context) error {
	return nil
}

// Get returns the entry stored under key, or nil when absent. Undecodable
// records are dropped and reported as a miss.
func (c *Cache) Get(_ context.Context, key string) (*httpdispatch.Entry, error) {
	data, err := c.db.Get([]byte(key), nil)
	if err != nil {
		if err == leveldb.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("leveldb cache get failed for key %q: %w", key, err)
	}
	storedKey, entry, err := httpdispatch.DecodeEntry(data)
	if err != nil || storedKey != key {
		httpdispatch.GetLogger().Warn("dropping unreadable cache record", "key", key, "error", err)
		_ = c.db.Delete([]byte(key), nil) //nolint:errcheck // best effort cleanup
		return nil, nil
	}
	return entry, nil
}

// Put stores the entry under key.
func (c *Cache) Put(_ context.Context, key string, entry *httpdispatch.Entry) error {
	if err := c.db.Put([]byte(key), httpdispatch.EncodeEntry(key, entry), nil); err != nil {
		return fmt.Errorf("leveldb cache put failed for key %q: %w", key, err)
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
	if err := c.db.Delete([]byte(key), nil); err != nil && err != leveldb.ErrNotFound {
		return fmt.Errorf("leveldb cache delete failed for key %q: %w", key, err)
	}
	return nil
}

// Clear deletes every entry.
func (c *Cache) Clear(_ context.Context) error {
	iter := c.db.NewIterator(&util.Range{}, nil)
	defer iter.Release()
	batch := new(leveldb.Batch)
	for iter.Next() {
		batch.Delete(append([]byte(nil), iter.Key()...))
	}
	if err := iter.Error(); err != nil {
		return fmt.Errorf("leveldb cache clear failed: %w", err)
	}
	if err := c.db.Write(batch, nil); err != nil {
		return fmt.Errorf("leveldb cache clear failed: %w", err)
	}
	return nil
}
