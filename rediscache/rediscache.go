// Package rediscache provides a Redis-backed implementation of
// httpdispatch.Cache, suitable for sharing one HTTP cache between processes.
package rediscache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sandrolain/httpdispatch"
)

// Config holds the configuration for creating a Redis cache.
type Config struct {
	// Address is the Redis server address (e.g., "localhost:6379").
	// Required field.
	Address string

	// Password is the Redis password for authentication.
	// Optional - leave empty if no authentication is required.
	Password string

	// DB is the Redis database number to use.
	// Optional - defaults to 0.
	DB int

	// KeyPrefix is the prefix added to all cache keys to avoid collisions
	// with other data stored in Redis.
	// Optional - defaults to "httpdispatch:".
	KeyPrefix string

	// TTL is the expiration applied to stored entries. Entries carry their
	// own freshness metadata, so this only bounds storage growth.
	// Optional - zero means no Redis-side expiration.
	TTL time.Duration

	// DialTimeout, ReadTimeout and WriteTimeout bound the corresponding
	// Redis operations.
	// Optional - default to 5 seconds each.
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		KeyPrefix:    "httpdispatch:",
		DialTimeout:  5 * time.Second,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
}

// Cache is an implementation of httpdispatch.Cache that stores entries in a
// Redis server.
type Cache struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// New creates a new Cache with the given configuration.
// The caller should call Close() on the returned cache when done.
func New(config Config) (*Cache, error) {
	if config.Address == "" {
		return nil, fmt.Errorf("redis address is required")
	}
	defaults := DefaultConfig()
	if config.KeyPrefix == "" {
		config.KeyPrefix = defaults.KeyPrefix
	}
	if config.DialTimeout == 0 {
		config.DialTimeout = defaults.DialTimeout
	}
	if config.ReadTimeout == 0 {
		config.ReadTimeout = defaults.ReadTimeout
	}
	if config.WriteTimeout == 0 {
		config.WriteTimeout = defaults.WriteTimeout
	}

	client := redis.NewClient(&redis.Options{
		Addr:         config.Address,
		Password:     config.Password,
		DB:           config.DB,
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	})

	return &Cache{
		client:    client,
		keyPrefix: config.KeyPrefix,
		ttl:       config.TTL,
	}, nil
}

// NewWithClient returns a new Cache with the given Redis client. The client
// remains owned by the caller.
func NewWithClient(client *redis.Client) *Cache {
	return &Cache{
		client:    client,
		keyPrefix: DefaultConfig().KeyPrefix,
	}
}

// cacheKey prefixes keys to avoid collision with other data stored in Redis.
func (c *Cache) cacheKey(key string) string {
	return c.keyPrefix + key
}

// Initialize verifies the server is reachable.
func (c *Cache) Initialize(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return nil
}

// Get returns the entry stored under key, or nil when absent.
func (c *Cache) Get(ctx context.Context, key string) (*httpdispatch.Entry, error) {
	data, err := c.client.Get(ctx, c.cacheKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis cache get failed for key %q: %w", key, err)
	}
	storedKey, entry, err := httpdispatch.DecodeEntry(data)
	if err != nil || storedKey != key {
		httpdispatch.GetLogger().Warn("dropping unreadable cache record", "key", key, "error", err)
		_ = c.client.Del(ctx, c.cacheKey(key)).Err() //nolint:errcheck // best effort cleanup
		return nil, nil
	}
	return entry, nil
}

// Put stores the entry under key.
func (c *Cache) Put(ctx context.Context, key string, entry *httpdispatch.Entry) error {
	data := httpdispatch.EncodeEntry(key, entry)
	if err := c.client.Set(ctx, c.cacheKey(key), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis cache put failed for key %q: %w", key, err)
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
	if err := c.client.Del(ctx, c.cacheKey(key)).Err(); err != nil {
		return fmt.Errorf("redis cache delete failed for key %q: %w", key, err)
	}
	return nil
}

// Clear deletes every entry under the configured key prefix, scanning in
// batches to avoid blocking the server.
func (c *Cache) Clear(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, c.keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("redis cache clear failed: %w", err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis cache clear failed: %w", err)
	}
	return nil
}

// Close closes the underlying client.
func (c *Cache) Close() error {
	return c.client.Close()
}
