// Package postgresql provides a PostgreSQL implementation of
// httpdispatch.Cache using pgx.
package postgresql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sandrolain/httpdispatch"
)

// DefaultTableName is the default table name for cache storage.
const DefaultTableName = "httpdispatch"

// Config holds the configuration for the PostgreSQL cache.
type Config struct {
	// TableName is the name of the table to store cache entries
	// (default: "httpdispatch"). It is created by Initialize when missing.
	TableName string
	// Timeout is the maximum time to wait for database operations
	// (default: 5s).
	Timeout time.Duration
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		TableName: DefaultTableName,
		Timeout:   5 * time.Second,
	}
}

// Cache is an implementation of httpdispatch.Cache that stores entries in
// PostgreSQL.
type Cache struct {
	pool      *pgxpool.Pool
	tableName string
	timeout   time.Duration
}

// New creates a new Cache connected to connString. The caller should call
// Close() on the returned cache when done.
func New(ctx context.Context, connString string, config Config) (*Cache, error) {
	defaults := DefaultConfig()
	if config.TableName == "" {
		config.TableName = defaults.TableName
	}
	if config.Timeout == 0 {
		config.Timeout = defaults.Timeout
	}

	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	return &Cache{
		pool:      pool,
		tableName: config.TableName,
		timeout:   config.Timeout,
	}, nil
}

// NewWithPool returns a new Cache using the provided pool. The pool remains
// owned by the caller.
func NewWithPool(pool *pgxpool.Pool, config Config) (*Cache, error) {
	if pool == nil {
		return nil, errors.New("postgresql: pool cannot be nil")
	}
	defaults := DefaultConfig()
	if config.TableName == "" {
		config.TableName = defaults.TableName
	}
	if config.Timeout == 0 {
		config.Timeout = defaults.Timeout
	}
	return &Cache{pool: pool, tableName: config.TableName, timeout: config.Timeout}, nil
}

// opContext bounds an operation with the configured timeout unless the
// caller already set a deadline.
func (c *Cache) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

// Initialize creates the cache table when it does not exist.
func (c *Cache) Initialize(ctx context.Context) error {
	ctx, cancel := c.opContext(ctx)
	defer cancel()

	query := `
		CREATE TABLE IF NOT EXISTS ` + c.tableName + ` (
			key        text PRIMARY KEY,
			data       bytea NOT NULL,
			created_at timestamptz NOT NULL
		)
	`
	if _, err := c.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("postgresql cache initialize failed: %w", err)
	}
	return nil
}

// Get returns the entry stored under key, or nil when absent.
func (c *Cache) Get(ctx context.Context, key string) (*httpdispatch.Entry, error) {
	ctx, cancel := c.opContext(ctx)
	defer cancel()

	var data []byte
	query := `SELECT data FROM ` + c.tableName + ` WHERE key = $1`
	if err := c.pool.QueryRow(ctx, query, key).Scan(&data); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("postgresql cache get failed for key %q: %w", key, err)
	}

	storedKey, entry, err := httpdispatch.DecodeEntry(data)
	if err != nil || storedKey != key {
		httpdispatch.GetLogger().Warn("dropping unreadable cache record", "key", key, "error", err)
		//nolint:errcheck // best effort cleanup
		_, _ = c.pool.Exec(ctx, `DELETE FROM `+c.tableName+` WHERE key = $1`, key)
		return nil, nil
	}
	return entry, nil
}

// Put stores the entry under key.
func (c *Cache) Put(ctx context.Context, key string, entry *httpdispatch.Entry) error {
	ctx, cancel := c.opContext(ctx)
	defer cancel()

	query := `
		INSERT INTO ` + c.tableName + ` (key, data, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET data = $2, created_at = $3
	`
	if _, err := c.pool.Exec(ctx, query, key, httpdispatch.EncodeEntry(key, entry), time.Now()); err != nil {
		return fmt.Errorf("postgresql cache put failed for key %q: %w", key, err)
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
	if _, err := c.pool.Exec(ctx, `DELETE FROM `+c.tableName+` WHERE key = $1`, key); err != nil {
		return fmt.Errorf("postgresql cache delete failed for key %q: %w", key, err)
	}
	return nil
}

// Clear deletes every entry.
func (c *Cache) Clear(ctx context.Context) error {
	ctx, cancel := c.opContext(ctx)
	defer cancel()
	if _, err := c.pool.Exec(ctx, `DELETE FROM `+c.tableName); err != nil {
		return fmt.Errorf("postgresql cache clear failed: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (c *Cache) Close() {
	c.pool.Close()
}
