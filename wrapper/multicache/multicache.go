// Package multicache provides a multi-tiered cache implementation that
// cascades through multiple cache backends with automatic fallback and
// promotion. This enables caching strategies with different performance and
// persistence characteristics at each tier, e.g. an in-memory tier over a
// disk tier over a shared Redis tier.
package multicache

import (
	"context"

	"github.com/sandrolain/httpdispatch"
)

// MultiCache implements a multi-tiered caching strategy where tiers are
// ordered from fastest/smallest (first) to slowest/largest (last). Reads
// search each tier in order and promote found entries to faster tiers;
// writes, invalidations and removals go to every tier.
type MultiCache struct {
	tiers []httpdispatch.Cache
}

// New creates a MultiCache with the specified cache tiers, ordered from
// fastest/smallest to slowest/largest.
//
// Returns nil if no tiers are provided, any tier is nil, or a tier appears
// twice.
func New(tiers ...httpdispatch.Cache) *MultiCache {
	if len(tiers) == 0 {
		return nil
	}
	seen := make(map[httpdispatch.Cache]bool)
	for _, tier := range tiers {
		if tier == nil || seen[tier] {
			return nil
		}
		seen[tier] = true
	}
	return &MultiCache{tiers: tiers}
}

// Initialize initializes every tier, failing on the first error.
func (c *MultiCache) Initialize(ctx context.Context) error {
	for _, tier := range c.tiers {
		if err := tier.Initialize(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the entry for key from the fastest tier that holds it,
// promoting it to all faster tiers. Promotion is best-effort.
func (c *MultiCache) Get(ctx context.Context, key string) (*httpdispatch.Entry, error) {
	for i, tier := range c.tiers {
		entry, err := tier.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if entry != nil {
			c.promote(ctx, key, entry, i)
			return entry, nil
		}
	}
	return nil, nil
}

// promote writes the entry to every tier faster than foundAt.
func (c *MultiCache) promote(ctx context.Context, key string, entry *httpdispatch.Entry, foundAt int) {
	for i := 0; i < foundAt; i++ {
		if err := c.tiers[i].Put(ctx, key, entry); err != nil {
			httpdispatch.GetLogger().Debug("tier promotion failed", "key", key, "tier", i, "error", err)
		}
	}
}

// Put stores the entry in all tiers. This keeps the tiers consistent while
// letting each apply its own eviction policy independently.
func (c *MultiCache) Put(ctx context.Context, key string, entry *httpdispatch.Entry) error {
	for _, tier := range c.tiers {
		if err := tier.Put(ctx, key, entry); err != nil {
			return err
		}
	}
	return nil
}

// Invalidate expires the entry in all tiers.
func (c *MultiCache) Invalidate(ctx context.Context, key string, fullExpire bool) error {
	for _, tier := range c.tiers {
		if err := tier.Invalidate(ctx, key, fullExpire); err != nil {
			return err
		}
	}
	return nil
}

// Remove deletes the entry from all tiers.
func (c *MultiCache) Remove(ctx context.Context, key string) error {
	for _, tier := range c.tiers {
		if err := tier.Remove(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

// Clear deletes every entry from all tiers.
func (c *MultiCache) Clear(ctx context.Context) error {
	for _, tier := range c.tiers {
		if err := tier.Clear(ctx); err != nil {
			return err
		}
	}
	return nil
}
