package rediscache

import (
	"context"
	"os"
	"testing"

	"github.com/sandrolain/httpdispatch/test"
)

// TestRedisCache exercises the backend against a real Redis server. Set
// REDIS_ADDR (e.g. "localhost:6379") to enable it.
func TestRedisCache(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set, skipping Redis integration test")
	}

	cache, err := New(Config{Address: addr})
	if err != nil {
		t.Fatalf("failed to create Redis cache: %v", err)
	}
	defer cache.Close() //nolint:errcheck // test cleanup

	if err := cache.Initialize(context.Background()); err != nil {
		t.Fatalf("failed to reach Redis at %s: %v", addr, err)
	}
	test.Cache(t, cache)
}

func TestRedisCacheRequiresAddress(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected an error for a missing address")
	}
}
