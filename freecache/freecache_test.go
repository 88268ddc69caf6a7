package freecache

import (
	"context"
	"testing"

	"github.com/sandrolain/httpdispatch"
	"github.com/sandrolain/httpdispatch/test"
)

func TestFreeCache(t *testing.T) {
	test.Cache(t, New(10*1024*1024))
}

func TestFreeCacheStatistics(t *testing.T) {
	ctx := context.Background()
	cache := New(10 * 1024 * 1024)

	entry := &httpdispatch.Entry{
		Data:            []byte("stats"),
		TTL:             1 << 50,
		SoftTTL:         1 << 50,
		ResponseHeaders: map[string]string{},
	}
	if err := cache.Put(ctx, "k", entry); err != nil {
		t.Fatal(err)
	}
	if cache.EntryCount() != 1 {
		t.Fatalf("entry count: got %d, want 1", cache.EntryCount())
	}
	if _, err := cache.Get(ctx, "k"); err != nil {
		t.Fatal(err)
	}
	if cache.HitRate() == 0 {
		t.Fatal("hit rate not tracked")
	}
}
