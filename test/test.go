// Package test provides a conformance exerciser for httpdispatch.Cache
// implementations.
package test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/sandrolain/httpdispatch"
)

// Cache exercises an httpdispatch.Cache implementation through its full
// contract: initialize, put/get round trip, soft and full invalidation,
// remove, and clear.
func Cache(t *testing.T, cache httpdispatch.Cache) {
	t.Helper()
	ctx := context.Background()
	key := "http://example.com/resource"

	if err := cache.Initialize(ctx); err != nil {
		t.Fatalf("error initializing cache: %v", err)
	}

	got, err := cache.Get(ctx, key)
	if err != nil {
		t.Fatalf("error getting key: %v", err)
	}
	if got != nil {
		t.Fatal("retrieved an entry before adding it")
	}

	future := time.Now().Add(time.Hour).UnixMilli()
	entry := &httpdispatch.Entry{
		Data:         []byte("some bytes"),
		ETag:         `"abc123"`,
		ServerDate:   time.Now().UnixMilli(),
		LastModified: time.Now().Add(-time.Hour).UnixMilli(),
		TTL:          future,
		SoftTTL:      future,
		ResponseHeaders: map[string]string{
			"Content-Type": "text/plain",
		},
	}
	if err := cache.Put(ctx, key, entry); err != nil {
		t.Fatalf("error putting entry: %v", err)
	}

	got, err = cache.Get(ctx, key)
	if err != nil {
		t.Fatalf("error getting key: %v", err)
	}
	if got == nil {
		t.Fatal("could not retrieve an entry we just added")
	}
	if !bytes.Equal(got.Data, entry.Data) {
		t.Fatal("retrieved a different body than what we put in")
	}
	if got.ETag != entry.ETag {
		t.Fatalf("etag mismatch: got %q, want %q", got.ETag, entry.ETag)
	}
	if got.TTL != entry.TTL || got.SoftTTL != entry.SoftTTL {
		t.Fatalf("ttl mismatch: got (%d, %d), want (%d, %d)", got.TTL, got.SoftTTL, entry.TTL, entry.SoftTTL)
	}
	if got.ResponseHeaders["Content-Type"] != "text/plain" {
		t.Fatal("response headers were not preserved")
	}
	if got.IsExpired() {
		t.Fatal("fresh entry reported as expired")
	}
	if got.RefreshNeeded() {
		t.Fatal("fresh entry reported as refresh-needed")
	}

	if err := cache.Invalidate(ctx, key, false); err != nil {
		t.Fatalf("error soft-invalidating key: %v", err)
	}
	got, err = cache.Get(ctx, key)
	if err != nil {
		t.Fatalf("error getting key: %v", err)
	}
	if got == nil {
		t.Fatal("soft-invalidated entry disappeared")
	}
	if !got.RefreshNeeded() {
		t.Fatal("soft-invalidated entry is not refresh-needed")
	}
	if got.IsExpired() {
		t.Fatal("soft-invalidated entry should still be servable")
	}

	if err := cache.Invalidate(ctx, key, true); err != nil {
		t.Fatalf("error fully invalidating key: %v", err)
	}
	got, err = cache.Get(ctx, key)
	if err != nil {
		t.Fatalf("error getting key: %v", err)
	}
	if got == nil {
		t.Fatal("fully invalidated entry disappeared")
	}
	if !got.IsExpired() {
		t.Fatal("fully invalidated entry is not expired")
	}

	if err := cache.Remove(ctx, key); err != nil {
		t.Fatalf("error removing key: %v", err)
	}
	got, err = cache.Get(ctx, key)
	if err != nil {
		t.Fatalf("error getting key: %v", err)
	}
	if got != nil {
		t.Fatal("removed entry still present")
	}

	if err := cache.Put(ctx, key, entry); err != nil {
		t.Fatalf("error putting entry: %v", err)
	}
	if err := cache.Clear(ctx); err != nil {
		t.Fatalf("error clearing cache: %v", err)
	}
	got, err = cache.Get(ctx, key)
	if err != nil {
		t.Fatalf("error getting key: %v", err)
	}
	if got != nil {
		t.Fatal("cleared entry still present")
	}
}
