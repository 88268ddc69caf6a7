// Package natskv provides a NATS JetStream Key/Value store implementation of
// httpdispatch.Cache.
package natskv

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/sandrolain/httpdispatch"
)

// Config holds the configuration for creating a NATS K/V cache.
type Config struct {
	// NATSUrl is the URL of the NATS server (e.g., "nats://localhost:4222").
	// If empty, defaults to nats.DefaultURL.
	NATSUrl string

	// Bucket is the name of the K/V bucket to use for caching.
	// Required field.
	Bucket string

	// Description is an optional description for the K/V bucket.
	Description string

	// TTL is the time-to-live for stored records. Entries carry their own
	// freshness metadata, so this only bounds storage growth.
	// If zero, records don't expire.
	TTL time.Duration

	// NATSOptions are additional options to pass to nats.Connect.
	// Optional.
	NATSOptions []nats.Option
}

// Cache is an implementation of httpdispatch.Cache backed by a NATS
// JetStream Key/Value bucket.
type Cache struct {
	kv jetstream.KeyValue
	nc *nats.Conn
}

// cacheKey maps a cache key onto the restricted NATS K/V key charset by
// hashing it.
func cacheKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return "httpdispatch." + hex.EncodeToString(sum[:])
}

// New connects to the NATS server and creates (or updates) the configured
// K/V bucket. The caller should call Close() on the returned cache when
// done.
func New(ctx context.Context, config Config) (*Cache, error) {
	if config.Bucket == "" {
		return nil, fmt.Errorf("nats bucket is required")
	}
	url := config.NATSUrl
	if url == "" {
		url = nats.DefaultURL
	}

	nc, err := nats.Connect(url, config.NATSOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      config.Bucket,
		Description: config.Description,
		TTL:         config.TTL,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create K/V bucket: %w", err)
	}

	return &Cache{kv: kv, nc: nc}, nil
}

// NewWithKeyValue returns a new Cache over an existing K/V bucket. The NATS
// connection remains owned by the caller.
func NewWithKeyValue(kv jetstream.KeyValue) *Cache {
	return &Cache{kv: kv}
}

// Initialize implements httpdispatch.Cache; the bucket was already created
// by New, so there is nothing left to do.
func (c *Cache) Initialize(_ context.Context) error {
	return nil
}

// Get returns the entry stored under key, or nil when absent.
func (c *Cache) Get(ctx context.Context, key string) (*httpdispatch.Entry, error) {
	record, err := c.kv.Get(ctx, cacheKey(key))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("nats cache get failed for key %q: %w", key, err)
	}
	storedKey, entry, err := httpdispatch.DecodeEntry(record.Value())
	if err != nil || storedKey != key {
		httpdispatch.GetLogger().Warn("dropping unreadable cache record", "key", key, "error", err)
		_ = c.kv.Delete(ctx, cacheKey(key)) //nolint:errcheck // best effort cleanup
		return nil, nil
	}
	return entry, nil
}

// Put stores the entry under key.
func (c *Cache) Put(ctx context.Context, key string, entry *httpdispatch.Entry) error {
	if _, err := c.kv.Put(ctx, cacheKey(key), httpdispatch.EncodeEntry(key, entry)); err != nil {
		return fmt.Errorf("nats cache put failed for key %q: %w", key, err)
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
func (c *Cache) Remove(ctx context.Context, key string) error {
	if err := c.kv.Delete(ctx, cacheKey(key)); err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("nats cache delete failed for key %q: %w", key, err)
	}
	return nil
}

// Clear deletes every entry in the bucket.
func (c *Cache) Clear(ctx context.Context) error {
	lister, err := c.kv.ListKeys(ctx)
	if err != nil {
		return fmt.Errorf("nats cache clear failed: %w", err)
	}
	for key := range lister.Keys() {
		if err := c.kv.Delete(ctx, key); err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
			return fmt.Errorf("nats cache clear failed: %w", err)
		}
	}
	return nil
}

// Close closes the underlying NATS connection if it was created by New().
// It's a no-op when using NewWithKeyValue().
func (c *Cache) Close() error {
	if c.nc != nil {
		c.nc.Close()
	}
	return nil
}
