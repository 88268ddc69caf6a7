package compresscache

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"

	"github.com/sandrolain/httpdispatch"
)

// GzipCache wraps a cache with automatic gzip compression/decompression of
// entry bodies.
type GzipCache struct {
	*baseCompressCache
	level int
}

// GzipConfig holds the configuration for gzip compression.
type GzipConfig struct {
	// Cache is the underlying cache backend (required).
	Cache httpdispatch.Cache

	// Level is the compression level (gzip.BestSpeed to gzip.BestCompression).
	// Default: gzip.DefaultCompression.
	Level int
}

// NewGzip creates a new GzipCache.
func NewGzip(config GzipConfig) (*GzipCache, error) {
	if config.Cache == nil {
		return nil, fmt.Errorf("cache cannot be nil")
	}
	if config.Level == 0 {
		config.Level = gzip.DefaultCompression
	}
	if config.Level < gzip.HuffmanOnly || config.Level > gzip.BestCompression {
		return nil, fmt.Errorf("invalid gzip compression level: %d", config.Level)
	}
	return &GzipCache{
		baseCompressCache: newBaseCompressCache(config.Cache, Gzip),
		level:             config.Level,
	}, nil
}

func (c *GzipCache) compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, c.level)
	if err != nil {
		return nil, fmt.Errorf("gzip writer failed: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Close() //nolint:errcheck // error path
		return nil, fmt.Errorf("gzip write failed: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("gzip close failed: %w", err)
	}
	return buf.Bytes(), nil
}

func (c *GzipCache) decompress(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("gzip reader failed: %w", err)
	}
	defer r.Close() //nolint:errcheck // read-only close
	decompressed, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("gzip read failed: %w", err)
	}
	return decompressed, nil
}

// Put compresses the entry body and stores it in the cache.
func (c *GzipCache) Put(ctx context.Context, key string, entry *httpdispatch.Entry) error {
	return c.put(ctx, key, entry, c.compress)
}

// Get retrieves an entry and decompresses its body.
func (c *GzipCache) Get(ctx context.Context, key string) (*httpdispatch.Entry, error) {
	return c.get(ctx, key, c.decompress)
}

// Stats returns compression statistics.
func (c *GzipCache) Stats() Stats {
	return c.stats()
}
