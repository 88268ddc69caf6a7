package httpdispatch

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
)

// entryMagic marks the start of a serialized cache entry. The on-disk layout
// is little-endian: magic, key, etag (empty when absent), server date,
// last-modified, hard TTL, soft TTL, header count followed by name/value
// pairs, then the raw body to end of record. Strings are UTF-8 bytes with a
// u32 length prefix.
const entryMagic uint32 = 0x20150306

// ErrMalformedEntry is returned by DecodeEntry for records that are
// truncated, carry the wrong magic, or declare impossible lengths.
var ErrMalformedEntry = errors.New("httpdispatch: malformed cache entry")

// EncodeEntry serializes the entry together with its cache key into the
// interoperable binary record format used by the byte-oriented cache
// backends.
func EncodeEntry(key string, e *Entry) []byte {
	var buf bytes.Buffer
	var scratch [8]byte

	binary.LittleEndian.PutUint32(scratch[:4], entryMagic)
	buf.Write(scratch[:4])
	writeString(&buf, key)
	writeString(&buf, e.ETag)
	binary.LittleEndian.PutUint64(scratch[:], uint64(e.ServerDate))
	buf.Write(scratch[:])
	binary.LittleEndian.PutUint64(scratch[:], uint64(e.LastModified))
	buf.Write(scratch[:])
	binary.LittleEndian.PutUint64(scratch[:], uint64(e.TTL))
	buf.Write(scratch[:])
	binary.LittleEndian.PutUint64(scratch[:], uint64(e.SoftTTL))
	buf.Write(scratch[:])

	names := sortedHeaderNames(e.ResponseHeaders)
	binary.LittleEndian.PutUint32(scratch[:4], uint32(len(names)))
	buf.Write(scratch[:4])
	for _, name := range names {
		writeString(&buf, name)
		writeString(&buf, e.ResponseHeaders[name])
	}

	buf.Write(e.Data)
	return buf.Bytes()
}

// DecodeEntry parses a record produced by EncodeEntry, returning the cache
// key it was stored under and the entry itself.
func DecodeEntry(data []byte) (string, *Entry, error) {
	r := bytes.NewReader(data)

	magic, err := readUint32(r)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrMalformedEntry, err)
	}
	if magic != entryMagic {
		return "", nil, fmt.Errorf("%w: bad magic 0x%08x", ErrMalformedEntry, magic)
	}

	key, err := readString(r)
	if err != nil {
		return "", nil, fmt.Errorf("%w: key: %v", ErrMalformedEntry, err)
	}
	etag, err := readString(r)
	if err != nil {
		return "", nil, fmt.Errorf("%w: etag: %v", ErrMalformedEntry, err)
	}

	e := &Entry{ETag: etag}
	for _, dst := range []*int64{&e.ServerDate, &e.LastModified, &e.TTL, &e.SoftTTL} {
		v, err := readUint64(r)
		if err != nil {
			return "", nil, fmt.Errorf("%w: %v", ErrMalformedEntry, err)
		}
		*dst = int64(v)
	}

	count, err := readUint32(r)
	if err != nil {
		return "", nil, fmt.Errorf("%w: header count: %v", ErrMalformedEntry, err)
	}
	if int64(count) > int64(r.Len()) {
		return "", nil, fmt.Errorf("%w: header count %d exceeds record size", ErrMalformedEntry, count)
	}
	e.ResponseHeaders = make(map[string]string, count)
	for i := uint32(0); i < count; i++ {
		name, err := readString(r)
		if err != nil {
			return "", nil, fmt.Errorf("%w: header name: %v", ErrMalformedEntry, err)
		}
		value, err := readString(r)
		if err != nil {
			return "", nil, fmt.Errorf("%w: header value: %v", ErrMalformedEntry, err)
		}
		e.ResponseHeaders[name] = value
	}

	e.Data = make([]byte, r.Len())
	if _, err := io.ReadFull(r, e.Data); err != nil {
		return "", nil, fmt.Errorf("%w: body: %v", ErrMalformedEntry, err)
	}
	return key, e, nil
}

func writeString(buf *bytes.Buffer, s string) {
	var scratch [4]byte
	if len(s) > math.MaxUint32 {
		s = s[:math.MaxUint32]
	}
	binary.LittleEndian.PutUint32(scratch[:], uint32(len(s)))
	buf.Write(scratch[:])
	buf.WriteString(s)
}

func readString(r *bytes.Reader) (string, error) {
	n, err := readUint32(r)
	if err != nil {
		return "", err
	}
	if int64(n) > int64(r.Len()) {
		return "", fmt.Errorf("string length %d exceeds remaining %d bytes", n, r.Len())
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

func readUint32(r *bytes.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

func readUint64(r *bytes.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}

func sortedHeaderNames(headers map[string]string) []string {
	names := make([]string, 0, len(headers))
	for name := range headers {
		names = append(names, name)
	}
	// Deterministic order keeps the codec a bijection over well-formed entries.
	sort.Strings(names)
	return names
}
