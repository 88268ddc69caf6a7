package httpdispatch

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	headerDate         = "Date"
	headerETag         = "ETag"
	headerLastModified = "Last-Modified"
	headerExpires      = "Expires"
	headerCacheControl = "Cache-Control"

	headerIfNoneMatch     = "If-None-Match"
	headerIfModifiedSince = "If-Modified-Since"

	cacheControlNoCache              = "no-cache"
	cacheControlNoStore              = "no-store"
	cacheControlMaxAge               = "max-age"
	cacheControlStaleWhileRevalidate = "stale-while-revalidate"
	cacheControlMustRevalidate       = "must-revalidate"
	cacheControlProxyRevalidate      = "proxy-revalidate"
)

// cacheControl is a map of Cache-Control directive names to their values.
type cacheControl map[string]string

// parseCacheControl parses the Cache-Control header value into a map of
// directives. Duplicate directives keep the first occurrence.
func parseCacheControl(value string) cacheControl {
	cc := cacheControl{}
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		directive, dirValue, found := strings.Cut(part, "=")
		directive = strings.ToLower(strings.TrimSpace(directive))
		if found {
			dirValue = strings.Trim(strings.TrimSpace(dirValue), `"`)
		}
		if _, dup := cc[directive]; dup {
			GetLogger().Warn("duplicate Cache-Control directive, using first value",
				"directive", directive,
				"ignored_value", dirValue)
			continue
		}
		cc[directive] = dirValue
	}
	return cc
}

// parseHTTPDate parses an RFC 1123 header date into epoch milliseconds,
// returning 0 when the value is absent or malformed.
func parseHTTPDate(value string) int64 {
	if value == "" {
		return 0
	}
	t, err := http.ParseTime(value)
	if err != nil {
		return 0
	}
	return t.UnixMilli()
}

// parseSeconds parses a Cache-Control numeric token, returning 0 for
// malformed values.
func parseSeconds(value string) int64 {
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// ParseCacheHeaders builds a cache entry from a network response according to
// its Date, ETag, Last-Modified, Expires and Cache-Control headers.
//
// max-age and stale-while-revalidate take precedence over Expires. The soft
// TTL is the server date plus max-age; the hard TTL additionally extends by
// the stale-while-revalidate window (suppressed by must-revalidate). With
// only an Expires header, both TTLs are the Expires instant.
//
// Returns nil when the response carries no-cache or no-store and therefore
// must not be cached.
func ParseCacheHeaders(resp *NetworkResponse) *Entry {
	headers := resp.Headers

	serverDate := parseHTTPDate(headers[headerDate])
	if serverDate == 0 {
		// No usable Date header: fall back to the receipt time as the base
		// for relative freshness lifetimes.
		serverDate = nowMillis()
	}

	var softTTL, ttl int64
	hasCacheControl := false
	mustRevalidate := false
	var maxAge, staleWhileRevalidate int64

	if value, ok := headers[headerCacheControl]; ok {
		hasCacheControl = true
		cc := parseCacheControl(value)
		if _, ok := cc[cacheControlNoCache]; ok {
			return nil
		}
		if _, ok := cc[cacheControlNoStore]; ok {
			return nil
		}
		if v, ok := cc[cacheControlMaxAge]; ok {
			maxAge = parseSeconds(v)
		}
		if v, ok := cc[cacheControlStaleWhileRevalidate]; ok {
			staleWhileRevalidate = parseSeconds(v)
		}
		if _, ok := cc[cacheControlMustRevalidate]; ok {
			mustRevalidate = true
		} else if _, ok := cc[cacheControlProxyRevalidate]; ok {
			mustRevalidate = true
		}
	}

	serverExpires := parseHTTPDate(headers[headerExpires])

	etag := headers[headerETag]
	if etag == "" {
		// Headers collected from net/http are keyed by canonical name ("Etag").
		etag = headers[http.CanonicalHeaderKey(headerETag)]
	}

	switch {
	case hasCacheControl:
		softTTL = serverDate + maxAge*1000
		ttl = softTTL
		if !mustRevalidate {
			ttl += staleWhileRevalidate * 1000
		}
	case serverExpires > 0:
		softTTL = serverExpires
		ttl = serverExpires
	}

	return &Entry{
		Data:            resp.Data,
		ETag:            etag,
		ServerDate:      serverDate,
		LastModified:    parseHTTPDate(headers[headerLastModified]),
		TTL:             ttl,
		SoftTTL:         softTTL,
		ResponseHeaders: copyHeaders(headers),
	}
}

// copyHeaders returns a copy of headers, never nil.
func copyHeaders(headers map[string]string) map[string]string {
	dup := make(map[string]string, len(headers))
	for name, value := range headers {
		dup[name] = value
	}
	return dup
}

// formatHTTPDate renders an epoch-millisecond timestamp as an RFC 1123 GMT
// header value.
func formatHTTPDate(millis int64) string {
	return time.UnixMilli(millis).UTC().Format(http.TimeFormat)
}
