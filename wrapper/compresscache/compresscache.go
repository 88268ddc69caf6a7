// Package compresscache provides a cache wrapper that automatically
// compresses cached entry bodies to reduce storage requirements. Supports
// multiple compression algorithms: gzip, brotli, and snappy.
package compresscache

import (
	"context"
	"sync/atomic"

	"github.com/sandrolain/httpdispatch"
)

// Algorithm represents the compression algorithm to use.
type Algorithm int

const (
	// Gzip uses gzip compression (good balance of compression and speed).
	Gzip Algorithm = iota
	// Brotli uses brotli compression (best compression ratio, slower).
	Brotli
	// Snappy uses snappy compression (fastest, lower compression ratio).
	Snappy
)

// String returns the string representation of the algorithm.
func (a Algorithm) String() string {
	switch a {
	case Gzip:
		return "gzip"
	case Brotli:
		return "brotli"
	case Snappy:
		return "snappy"
	default:
		return "unknown"
	}
}

// minCompressSize is the body size below which compression is skipped: tiny
// bodies usually grow when compressed.
const minCompressSize = 64

// markerRaw and the algorithm markers prefix the stored body so Get can tell
// how to restore it.
const markerRaw = 0

// Stats holds compression statistics.
type Stats struct {
	CompressedBytes   int64   // Total bytes after compression
	UncompressedBytes int64   // Total bytes before compression
	CompressedCount   int64   // Number of compressed entries
	UncompressedCount int64   // Number of entries stored raw (too small)
	CompressionRatio  float64 // Compression ratio (0.0-1.0, lower is better)
	SavingsPercent    float64 // Space savings percentage
}

type compressFunc func([]byte) ([]byte, error)

type decompressFunc func([]byte) ([]byte, error)

// baseCompressCache provides the shared wrap/unwrap logic for all
// compression implementations.
type baseCompressCache struct {
	cache     httpdispatch.Cache
	algorithm Algorithm

	compressedBytes   atomic.Int64
	uncompressedBytes atomic.Int64
	compressedCount   atomic.Int64
	uncompressedCount atomic.Int64
}

func newBaseCompressCache(cache httpdispatch.Cache, algorithm Algorithm) *baseCompressCache {
	return &baseCompressCache{
		cache:     cache,
		algorithm: algorithm,
	}
}

// Initialize initializes the underlying cache.
func (c *baseCompressCache) Initialize(ctx context.Context) error {
	return c.cache.Initialize(ctx)
}

// put compresses the entry body and stores a copy of the entry with the
// compressed body in the underlying cache.
func (c *baseCompressCache) put(ctx context.Context, key string, entry *httpdispatch.Entry, compressFn compressFunc) error {
	wrapped := *entry

	if len(entry.Data) < minCompressSize {
		wrapped.Data = append([]byte{markerRaw}, entry.Data...)
		c.uncompressedCount.Add(1)
		return c.cache.Put(ctx, key, &wrapped)
	}

	compressed, err := compressFn(entry.Data)
	if err != nil {
		return err
	}
	if len(compressed) >= len(entry.Data) {
		// Compression didn't help; store raw.
		wrapped.Data = append([]byte{markerRaw}, entry.Data...)
		c.uncompressedCount.Add(1)
		return c.cache.Put(ctx, key, &wrapped)
	}

	wrapped.Data = append([]byte{byte(c.algorithm) + 1}, compressed...)
	c.compressedCount.Add(1)
	c.compressedBytes.Add(int64(len(compressed)))
	c.uncompressedBytes.Add(int64(len(entry.Data)))
	return c.cache.Put(ctx, key, &wrapped)
}

// get retrieves an entry and restores its body.
func (c *baseCompressCache) get(ctx context.Context, key string, decompressFn decompressFunc) (*httpdispatch.Entry, error) {
	entry, err := c.cache.Get(ctx, key)
	if err != nil || entry == nil {
		return entry, err
	}
	if len(entry.Data) == 0 {
		return entry, nil
	}

	marker := entry.Data[0]
	unwrapped := *entry
	if marker == markerRaw {
		unwrapped.Data = entry.Data[1:]
		return &unwrapped, nil
	}

	storedAlgo := Algorithm(marker - 1)
	if storedAlgo != c.algorithm {
		httpdispatch.GetLogger().Warn("cached entry compressed with different algorithm",
			"key", key,
			"stored", storedAlgo.String(),
			"configured", c.algorithm.String())
		return nil, nil
	}

	data, err := decompressFn(entry.Data[1:])
	if err != nil {
		httpdispatch.GetLogger().Warn("decompression failed",
			"key", key,
			"algorithm", storedAlgo.String(),
			"error", err)
		return nil, nil
	}
	unwrapped.Data = data
	return &unwrapped, nil
}

// Invalidate expires the entry under key in place. The body is untouched,
// so the wrapped form stays valid.
func (c *baseCompressCache) Invalidate(ctx context.Context, key string, fullExpire bool) error {
	return c.cache.Invalidate(ctx, key, fullExpire)
}

// Remove deletes the entry under key.
func (c *baseCompressCache) Remove(ctx context.Context, key string) error {
	return c.cache.Remove(ctx, key)
}

// Clear deletes every entry.
func (c *baseCompressCache) Clear(ctx context.Context) error {
	return c.cache.Clear(ctx)
}

// stats returns a snapshot of the compression statistics.
func (c *baseCompressCache) stats() Stats {
	s := Stats{
		CompressedBytes:   c.compressedBytes.Load(),
		UncompressedBytes: c.uncompressedBytes.Load(),
		CompressedCount:   c.compressedCount.Load(),
		UncompressedCount: c.uncompressedCount.Load(),
	}
	if s.UncompressedBytes > 0 {
		s.CompressionRatio = float64(s.CompressedBytes) / float64(s.UncompressedBytes)
		s.SavingsPercent = (1 - s.CompressionRatio) * 100
	}
	return s
}
