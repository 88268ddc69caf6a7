package compresscache

import (
	"context"
	"fmt"

	"github.com/golang/snappy"

	"github.com/sandrolain/httpdispatch"
)

// SnappyCache wraps a cache with automatic snappy compression/decompression
// of entry bodies.
type SnappyCache struct {
	*baseCompressCache
}

// SnappyConfig holds the configuration for snappy compression.
type SnappyConfig struct {
	// Cache is the underlying cache backend (required).
	Cache httpdispatch.Cache
}

// NewSnappy creates a new SnappyCache.
func NewSnappy(config SnappyConfig) (*SnappyCache, error) {
	if config.Cache == nil {
		return nil, fmt.Errorf("cache cannot be nil")
	}
	return &SnappyCache{
		baseCompressCache: newBaseCompressCache(config.Cache, Snappy),
	}, nil
}

func (c *SnappyCache) compress(data []byte) ([]byte, error) {
	return snappy.Encode(nil, data), nil
}

func (c *SnappyCache) decompress(data []byte) ([]byte, error) {
	decompressed, err := snappy.Decode(nil, data)
	if err != nil {
		return nil, fmt.Errorf("snappy decode failed: %w", err)
	}
	return decompressed, nil
}

// Put compresses the entry body and stores it in the cache.
func (c *SnappyCache) Put(ctx context.Context, key string, entry *httpdispatch.Entry) error {
	return c.put(ctx, key, entry, c.compress)
}

// Get retrieves an entry and decompresses its body.
func (c *SnappyCache) Get(ctx context.Context, key string) (*httpdispatch.Entry, error) {
	return c.get(ctx, key, c.decompress)
}

// Stats returns compression statistics.
func (c *SnappyCache) Stats() Stats {
	return c.stats()
}
