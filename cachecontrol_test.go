package httpdispatch

import (
	"testing"
	"time"
)

func responseWithHeaders(headers map[string]string) *NetworkResponse {
	return &NetworkResponse{
		StatusCode: 200,
		Data:       []byte("body"),
		Headers:    headers,
	}
}

func TestParseCacheHeadersMaxAge(t *testing.T) {
	fc := installFakeClock(t)
	serverDate := fc.now()

	entry := ParseCacheHeaders(responseWithHeaders(map[string]string{
		"Date":          formatHTTPDate(serverDate.UnixMilli()),
		"Cache-Control": "max-age=60",
		"ETag":          `"abc"`,
	}))
	if entry == nil {
		t.Fatal("expected a cacheable entry")
	}
	if entry.ETag != `"abc"` {
		t.Fatalf("etag mismatch: got %q", entry.ETag)
	}
	want := serverDate.UnixMilli() + 60_000
	if entry.SoftTTL != want || entry.TTL != want {
		t.Fatalf("ttl mismatch: got (%d, %d), want %d", entry.TTL, entry.SoftTTL, want)
	}
}

func TestParseCacheHeadersStaleWhileRevalidate(t *testing.T) {
	fc := installFakeClock(t)
	serverDate := fc.now()

	entry := ParseCacheHeaders(responseWithHeaders(map[string]string{
		"Date":          formatHTTPDate(serverDate.UnixMilli()),
		"Cache-Control": "max-age=60, stale-while-revalidate=120",
	}))
	if entry == nil {
		t.Fatal("expected a cacheable entry")
	}
	wantSoft := serverDate.UnixMilli() + 60_000
	wantHard := wantSoft + 120_000
	if entry.SoftTTL != wantSoft {
		t.Fatalf("soft ttl mismatch: got %d, want %d", entry.SoftTTL, wantSoft)
	}
	if entry.TTL != wantHard {
		t.Fatalf("hard ttl mismatch: got %d, want %d", entry.TTL, wantHard)
	}
}

func TestParseCacheHeadersMustRevalidateSuppressesGrace(t *testing.T) {
	fc := installFakeClock(t)
	serverDate := fc.now()

	entry := ParseCacheHeaders(responseWithHeaders(map[string]string{
		"Date":          formatHTTPDate(serverDate.UnixMilli()),
		"Cache-Control": "max-age=60, stale-while-revalidate=120, must-revalidate",
	}))
	if entry == nil {
		t.Fatal("expected a cacheable entry")
	}
	if entry.TTL != entry.SoftTTL {
		t.Fatalf("must-revalidate should suppress the grace window: got (%d, %d)", entry.TTL, entry.SoftTTL)
	}
}

func TestParseCacheHeadersMaxAgeOverridesExpires(t *testing.T) {
	fc := installFakeClock(t)
	serverDate := fc.now()

	entry := ParseCacheHeaders(responseWithHeaders(map[string]string{
		"Date":          formatHTTPDate(serverDate.UnixMilli()),
		"Expires":       formatHTTPDate(serverDate.Add(24 * time.Hour).UnixMilli()),
		"Cache-Control": "max-age=60",
	}))
	if entry == nil {
		t.Fatal("expected a cacheable entry")
	}
	want := serverDate.UnixMilli() + 60_000
	if entry.TTL != want {
		t.Fatalf("max-age should override Expires: got %d, want %d", entry.TTL, want)
	}
}

func TestParseCacheHeadersExpiresOnly(t *testing.T) {
	fc := installFakeClock(t)
	serverDate := fc.now()
	expires := serverDate.Add(time.Hour)

	entry := ParseCacheHeaders(responseWithHeaders(map[string]string{
		"Date":    formatHTTPDate(serverDate.UnixMilli()),
		"Expires": formatHTTPDate(expires.UnixMilli()),
	}))
	if entry == nil {
		t.Fatal("expected a cacheable entry")
	}
	if entry.TTL != expires.UnixMilli() || entry.SoftTTL != expires.UnixMilli() {
		t.Fatalf("expires-only ttl mismatch: got (%d, %d), want %d", entry.TTL, entry.SoftTTL, expires.UnixMilli())
	}
}

func TestParseCacheHeadersNoStore(t *testing.T) {
	installFakeClock(t)
	for _, directive := range []string{"no-cache", "no-store"} {
		entry := ParseCacheHeaders(responseWithHeaders(map[string]string{
			"Cache-Control": directive,
		}))
		if entry != nil {
			t.Fatalf("%s response must not produce an entry", directive)
		}
	}
}

func TestParseCacheHeadersNoHeadersIsBornExpired(t *testing.T) {
	installFakeClock(t)
	entry := ParseCacheHeaders(responseWithHeaders(map[string]string{}))
	if entry == nil {
		t.Fatal("expected an entry")
	}
	// Without freshness information the entry is stored but immediately
	// needs revalidation.
	if !entry.IsExpired() {
		t.Fatal("entry without freshness info should be born expired")
	}
}

func TestParseCacheHeadersLastModified(t *testing.T) {
	fc := installFakeClock(t)
	lastModified := fc.now().Add(-3 * time.Hour)

	entry := ParseCacheHeaders(responseWithHeaders(map[string]string{
		"Date":          formatHTTPDate(fc.now().UnixMilli()),
		"Cache-Control": "max-age=10",
		"Last-Modified": formatHTTPDate(lastModified.UnixMilli()),
	}))
	if entry == nil {
		t.Fatal("expected a cacheable entry")
	}
	if entry.LastModified != lastModified.UnixMilli() {
		t.Fatalf("last modified mismatch: got %d, want %d", entry.LastModified, lastModified.UnixMilli())
	}
}

func TestParseCacheControlDirectives(t *testing.T) {
	cc := parseCacheControl(`max-age=60, no-transform, stale-while-revalidate="30"`)
	if cc[cacheControlMaxAge] != "60" {
		t.Fatalf("max-age mismatch: got %q", cc[cacheControlMaxAge])
	}
	if _, ok := cc["no-transform"]; !ok {
		t.Fatal("valueless directive lost")
	}
	if cc[cacheControlStaleWhileRevalidate] != "30" {
		t.Fatalf("quoted value mismatch: got %q", cc[cacheControlStaleWhileRevalidate])
	}
}
