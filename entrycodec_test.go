package httpdispatch

import (
	"bytes"
	"encoding/binary"
	"errors"
	"reflect"
	"testing"
	"time"
)

func TestEntryCodecRoundTrip(t *testing.T) {
	entry := &Entry{
		Data:         []byte("response body"),
		ETag:         `"v1-etag"`,
		ServerDate:   1717243200000,
		LastModified: 1717239600000,
		TTL:          1717246800000,
		SoftTTL:      1717245000000,
		ResponseHeaders: map[string]string{
			"Content-Type":  "application/json",
			"Cache-Control": "max-age=60",
		},
	}

	encoded := EncodeEntry("http://example.com/a", entry)
	key, decoded, err := DecodeEntry(encoded)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if key != "http://example.com/a" {
		t.Fatalf("key mismatch: got %q", key)
	}
	if !reflect.DeepEqual(entry, decoded) {
		t.Fatalf("round trip mismatch:\n got  %+v\n want %+v", decoded, entry)
	}
}

func TestEntryCodecNoETagNoHeaders(t *testing.T) {
	entry := &Entry{
		Data:            []byte{},
		ResponseHeaders: map[string]string{},
	}
	key, decoded, err := DecodeEntry(EncodeEntry("k", entry))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if key != "k" {
		t.Fatalf("key mismatch: got %q", key)
	}
	if decoded.ETag != "" {
		t.Fatalf("expected empty etag, got %q", decoded.ETag)
	}
	if len(decoded.ResponseHeaders) != 0 {
		t.Fatalf("expected no headers, got %v", decoded.ResponseHeaders)
	}
	if len(decoded.Data) != 0 {
		t.Fatalf("expected empty body, got %q", decoded.Data)
	}
}

func TestEntryCodecEncodingIsDeterministic(t *testing.T) {
	entry := &Entry{
		Data: []byte("x"),
		ResponseHeaders: map[string]string{
			"B": "2", "A": "1", "C": "3", "D": "4",
		},
	}
	first := EncodeEntry("k", entry)
	for i := 0; i < 10; i++ {
		if !bytes.Equal(first, EncodeEntry("k", entry)) {
			t.Fatal("encoding is not deterministic across map iteration orders")
		}
	}
}

func TestEntryCodecBadMagic(t *testing.T) {
	encoded := EncodeEntry("k", &Entry{})
	binary.LittleEndian.PutUint32(encoded[:4], 0xdeadbeef)
	if _, _, err := DecodeEntry(encoded); !errors.Is(err, ErrMalformedEntry) {
		t.Fatalf("expected ErrMalformedEntry, got %v", err)
	}
}

func TestEntryCodecTruncated(t *testing.T) {
	encoded := EncodeEntry("some-key", &Entry{
		Data:            []byte("body"),
		ResponseHeaders: map[string]string{"A": "1"},
	})
	// Every proper prefix that cuts into the metadata must be rejected, not
	// misparsed. The body is the trailing region, so stop before it.
	for size := 0; size < len(encoded)-len("body"); size++ {
		if _, _, err := DecodeEntry(encoded[:size]); !errors.Is(err, ErrMalformedEntry) {
			t.Fatalf("truncation at %d bytes: expected ErrMalformedEntry, got %v", size, err)
		}
	}
}

func TestEntryCodecRejectsOversizedLengths(t *testing.T) {
	var buf bytes.Buffer
	var scratch [4]byte
	binary.LittleEndian.PutUint32(scratch[:], entryMagic)
	buf.Write(scratch[:])
	binary.LittleEndian.PutUint32(scratch[:], 0xffffffff) // impossible key length
	buf.Write(scratch[:])
	if _, _, err := DecodeEntry(buf.Bytes()); !errors.Is(err, ErrMalformedEntry) {
		t.Fatalf("expected ErrMalformedEntry, got %v", err)
	}
}

func TestEntryPredicates(t *testing.T) {
	fc := installFakeClock(t)
	now := fc.now().UnixMilli()

	fresh := &Entry{TTL: now + 60_000, SoftTTL: now + 30_000}
	if fresh.IsExpired() || fresh.RefreshNeeded() {
		t.Fatal("fresh entry misclassified")
	}

	soft := &Entry{TTL: now + 60_000, SoftTTL: now - 1}
	if soft.IsExpired() {
		t.Fatal("soft-expired entry reported as hard-expired")
	}
	if !soft.RefreshNeeded() {
		t.Fatal("soft-expired entry not reported as refresh-needed")
	}

	hard := &Entry{TTL: now - 1, SoftTTL: now - 1}
	if !hard.IsExpired() {
		t.Fatal("hard-expired entry not reported as expired")
	}

	fc.advance(2 * time.Minute)
	if !fresh.IsExpired() {
		t.Fatal("entry did not expire as the clock advanced")
	}
}

func TestEntryInvalidate(t *testing.T) {
	installFakeClock(t)
	future := nowMillis() + 3600_000

	entry := &Entry{TTL: future, SoftTTL: future}
	entry.Invalidate(false)
	if entry.IsExpired() {
		t.Fatal("soft invalidation must keep the entry servable")
	}
	if !entry.RefreshNeeded() {
		t.Fatal("soft invalidation must force a refresh")
	}

	entry = &Entry{TTL: future, SoftTTL: future}
	entry.Invalidate(true)
	if !entry.IsExpired() {
		t.Fatal("full invalidation must expire the entry")
	}
}
