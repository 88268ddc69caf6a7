// Package securecache provides a cache wrapper that encrypts entry bodies
// with AES-256-GCM before they reach the underlying backend. The key is
// derived from a passphrase using scrypt. Use it when entries land on shared
// storage (disk, Redis, a database) and contain data worth protecting.
package securecache

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/scrypt"

	"github.com/sandrolain/httpdispatch"
)

const (
	// scryptN is the CPU/memory cost parameter for scrypt key derivation.
	scryptN = 32768
	// scryptR is the block size parameter for scrypt.
	scryptR = 8
	// scryptP is the parallelization parameter for scrypt.
	scryptP = 1
	// keyLength is the derived key length for AES-256.
	keyLength = 32
)

// Cache wraps another httpdispatch.Cache, encrypting entry bodies on Put and
// decrypting them on Get. Entries that fail to decrypt (wrong passphrase,
// corrupted record) are reported as a miss so they get refetched.
type Cache struct {
	cache httpdispatch.Cache
	gcm   cipher.AEAD
}

// Config holds the configuration for the encrypting wrapper.
type Config struct {
	// Cache is the underlying cache backend (required).
	Cache httpdispatch.Cache

	// Passphrase derives the AES-256 key. It must be non-empty and
	// consistent across restarts for persisted entries to stay readable.
	Passphrase string
}

// New creates an encrypting cache wrapper.
func New(config Config) (*Cache, error) {
	if config.Cache == nil {
		return nil, fmt.Errorf("cache cannot be nil")
	}
	if config.Passphrase == "" {
		return nil, fmt.Errorf("encryption passphrase cannot be empty")
	}

	// Fixed salt: the passphrase is the secret, the salt only separates this
	// use of scrypt from others.
	salt := sha256.Sum256([]byte("httpdispatch-securecache-salt-v1"))
	key, err := scrypt.Key([]byte(config.Passphrase), salt[:], scryptN, scryptR, scryptP, keyLength)
	if err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &Cache{cache: config.Cache, gcm: gcm}, nil
}

// Initialize initializes the underlying cache.
func (c *Cache) Initialize(ctx context.Context) error {
	return c.cache.Initialize(ctx)
}

// Get retrieves an entry and decrypts its body.
func (c *Cache) Get(ctx context.Context, key string) (*httpdispatch.Entry, error) {
	entry, err := c.cache.Get(ctx, key)
	if err != nil || entry == nil {
		return entry, err
	}
	plaintext, err := c.decrypt(entry.Data)
	if err != nil {
		httpdispatch.GetLogger().Warn("failed to decrypt cached entry", "key", key, "error", err)
		return nil, nil
	}
	unwrapped := *entry
	unwrapped.Data = plaintext
	return &unwrapped, nil
}

// Put encrypts the entry body and stores it in the cache.
func (c *Cache) Put(ctx context.Context, key string, entry *httpdispatch.Entry) error {
	ciphertext, err := c.encrypt(entry.Data)
	if err != nil {
		return err
	}
	wrapped := *entry
	wrapped.Data = ciphertext
	return c.cache.Put(ctx, key, &wrapped)
}

// Invalidate expires the entry under key in place. The body is untouched,
// so the ciphertext stays valid.
func (c *Cache) Invalidate(ctx context.Context, key string, fullExpire bool) error {
	return c.cache.Invalidate(ctx, key, fullExpire)
}

// Remove deletes the entry under key.
func (c *Cache) Remove(ctx context.Context, key string) error {
	return c.cache.Remove(ctx, key)
}

// Clear deletes every entry.
func (c *Cache) Clear(ctx context.Context) error {
	return c.cache.Clear(ctx)
}

// encrypt seals data with a random nonce prepended to the ciphertext.
func (c *Cache) encrypt(data []byte) ([]byte, error) {
	nonce := make([]byte, c.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	// #nosec G407 -- nonce is randomly generated above using crypto/rand
	return c.gcm.Seal(nonce, nonce, data, nil), nil
}

// decrypt expects the nonce prepended to the ciphertext.
func (c *Cache) decrypt(data []byte) ([]byte, error) {
	if len(data) < c.gcm.NonceSize() {
		return nil, fmt.Errorf("ciphertext shorter than nonce")
	}
	nonce, ciphertext := data[:c.gcm.NonceSize()], data[c.gcm.NonceSize():]
	plaintext, err := c.gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}
	return plaintext, nil
}
