package httpdispatch

import "context"

// A Cache is the byte-level entry store used by the dispatchers. The cache
// dispatcher reads from it, the network dispatchers write to it, so
// implementations must be safe for concurrent use.
type Cache interface {
	// Initialize prepares the cache for use. It is called once by the cache
	// dispatcher before draining the queue and may perform blocking I/O.
	Initialize(ctx context.Context) error

	// Get returns the entry stored under key, or nil when the key is absent.
	// Returns (nil, err) if the lookup itself failed.
	Get(ctx context.Context, key string) (*Entry, error)

	// Put stores the entry under key, replacing any previous entry.
	Put(ctx context.Context, key string, entry *Entry) error

	// Invalidate expires the entry under key in place. With fullExpire the
	// entry can no longer be served at all; otherwise it only becomes
	// refresh-needed. A missing key is not an error.
	Invalidate(ctx context.Context, key string, fullExpire bool) error

	// Remove deletes the entry under key. A missing key is not an error.
	Remove(ctx context.Context, key string) error

	// Clear deletes every entry.
	Clear(ctx context.Context) error
}
