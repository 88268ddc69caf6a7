package compresscache

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/andybalholm/brotli"

	"github.com/sandrolain/httpdispatch"
)

// BrotliCache wraps a cache with automatic brotli compression/decompression
// of entry bodies.
type BrotliCache struct {
	*baseCompressCache
	level int
}

// BrotliConfig holds the configuration for brotli compression.
type BrotliConfig struct {
	// Cache is the underlying cache backend (required).
	Cache httpdispatch.Cache

	// Level is the compression level (0 to 11).
	// Default: 6.
	Level int
}

// NewBrotli creates a new BrotliCache.
func NewBrotli(config BrotliConfig) (*BrotliCache, error) {
	if config.Cache == nil {
		return nil, fmt.Errorf("cache cannot be nil")
	}
	if config.Level == 0 {
		config.Level = 6
	}
	if config.Level < 0 || config.Level > 11 {
		return nil, fmt.Errorf("invalid brotli compression level: %d", config.Level)
	}
	return &BrotliCache{
		baseCompressCache: newBaseCompressCache(config.Cache, Brotli),
		level:             config.Level,
	}, nil
}

func (c *BrotliCache) compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := brotli.NewWriterLevel(&buf, c.level)
	if _, err := w.Write(data); err != nil {
		_ = w.Close() //nolint:errcheck // error path
		return nil, fmt.Errorf("brotli write failed: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("brotli close failed: %w", err)
	}
	return buf.Bytes(), nil
}

func (c *BrotliCache) decompress(data []byte) ([]byte, error) {
	r := brotli.NewReader(bytes.NewReader(data))
	decompressed, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("brotli read failed: %w", err)
	}
	return decompressed, nil
}

// Put compresses the entry body and stores it in the cache.
func (c *BrotliCache) Put(ctx context.Context, key string, entry *httpdispatch.Entry) error {
	return c.put(ctx, key, entry, c.compress)
}

// Get retrieves an entry and decompresses its body.
func (c *BrotliCache) Get(ctx context.Context, key string) (*httpdispatch.Entry, error) {
	return c.get(ctx, key, c.decompress)
}

// Stats returns compression statistics.
func (c *BrotliCache) Stats() Stats {
	return c.stats()
}
