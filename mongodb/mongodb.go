// Package mongodb provides a MongoDB implementation of httpdispatch.Cache.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sandrolain/httpdispatch"
)

// Config holds the configuration for creating a MongoDB cache.
type Config struct {
	// URI is the MongoDB connection URI (e.g., "mongodb://localhost:27017").
	// Required field.
	URI string

	// Database is the name of the database to use for caching.
	// Required field.
	Database string

	// Collection is the name of the collection to use for caching.
	// Optional - defaults to "httpdispatch".
	Collection string

	// Timeout is the timeout for database operations.
	// Optional - defaults to 5 seconds.
	Timeout time.Duration

	// ClientOptions are additional options to pass to mongo.Connect.
	// Optional.
	ClientOptions *options.ClientOptions
}

// record is a cache record as stored in MongoDB.
type record struct {
	Key       string    `bson:"_id"`
	Data      []byte    `bson:"data"`
	CreatedAt time.Time `bson:"createdAt"`
}

// Cache is an implementation of httpdispatch.Cache that stores entries in a
// MongoDB collection.
type Cache struct {
	client     *mongo.Client
	collection *mongo.Collection
	timeout    time.Duration
}

// New creates a new Cache with the given configuration. The caller should
// call Close() on the returned cache when done.
func New(ctx context.Context, config Config) (*Cache, error) {
	if config.URI == "" {
		return nil, fmt.Errorf("mongodb URI is required")
	}
	if config.Database == "" {
		return nil, fmt.Errorf("mongodb database is required")
	}
	if config.Collection == "" {
		config.Collection = "httpdispatch"
	}
	if config.Timeout == 0 {
		config.Timeout = 5 * time.Second
	}

	opts := config.ClientOptions
	if opts == nil {
		opts = options.Client()
	}
	opts = opts.ApplyURI(config.URI)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	return &Cache{
		client:     client,
		collection: client.Database(config.Database).Collection(config.Collection),
		timeout:    config.Timeout,
	}, nil
}

// NewWithCollection returns a new Cache over an existing collection. The
// client remains owned by the caller.
func NewWithCollection(collection *mongo.Collection) *Cache {
	return &Cache{collection: collection, timeout: 5 * time.Second}
}

// opContext bounds an operation with the configured timeout unless the
// caller already set a deadline.
func (c *Cache) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

// Initialize verifies the server is reachable.
func (c *Cache) Initialize(ctx context.Context) error {
	ctx, cancel := c.opContext(ctx)
	defer cancel()
	if c.client != nil {
		if err := c.client.Ping(ctx, nil); err != nil {
			return fmt.Errorf("failed to connect to MongoDB: %w", err)
		}
	}
	return nil
}

// Get returns the entry stored under key, or nil when absent.
func (c *Cache) Get(ctx context.Context, key string) (*httpdispatch.Entry, error) {
	ctx, cancel := c.opContext(ctx)
	defer cancel()

	var rec record
	err := c.collection.FindOne(ctx, bson.M{"_id": key}).Decode(&rec)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("mongodb cache get failed for key %q: %w", key, err)
	}
	storedKey, entry, err := httpdispatch.DecodeEntry(rec.Data)
	if err != nil || storedKey != key {
		httpdispatch.GetLogger().Warn("dropping unreadable cache record", "key", key, "error", err)
		_, _ = c.collection.DeleteOne(ctx, bson.M{"_id": key}) //nolint:errcheck // best effort cleanup
		return nil, nil
	}
	return entry, nil
}

// Put stores the entry under key.
func (c *Cache) Put(ctx context.Context, key string, entry *httpdispatch.Entry) error {
	ctx, cancel := c.opContext(ctx)
	defer cancel()

	rec := record{
		Key:       key,
		Data:      httpdispatch.EncodeEntry(key, entry),
		CreatedAt: time.Now(),
	}
	opts := options.Replace().SetUpsert(true)
	if _, err := c.collection.ReplaceOne(ctx, bson.M{"_id": key}, rec, opts); err != nil {
		return fmt.Errorf("mongodb cache put failed for key %q: %w", key, err)
	}
	return nil
}

// Invalidate expires the entry under key in place.
func (c *Cache) Invalidate(ctx context.Context, key string, fullExpire bool) error {
	entry, err := c.Get(ctx, key)
	if err != nil || entry == nil {
		return err
	}
	entry.Invalidate(fullExpire)
	return c.Put(ctx, key, entry)
}

// Remove deletes the entry under key.
func (c *Cache) Remove(ctx context.Context, key string) error {
	ctx, cancel := c.opContext(ctx)
	defer cancel()
	if _, err := c.collection.DeleteOne(ctx, bson.M{"_id": key}); err != nil {
		return fmt.Errorf("mongodb cache delete failed for key %q: %w", key, err)
	}
	return nil
}

// Clear deletes every entry in the collection.
func (c *Cache) Clear(ctx context.Context) error {
	ctx, cancel := c.opContext(ctx)
	defer cancel()
	if _, err := c.collection.DeleteMany(ctx, bson.M{}); err != nil {
		return fmt.Errorf("mongodb cache clear failed: %w", err)
	}
	return nil
}

// Close disconnects from MongoDB if the connection was created by New().
func (c *Cache) Close(ctx context.Context) error {
	if c.client != nil {
		ctx, cancel := c.opContext(ctx)
		defer cancel()
		return c.client.Disconnect(ctx)
	}
	return nil
}
