// Package hashcache persists the last-seen content digest of each feed URL.
package hashcache

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"log/slog"

	"fourpisky-feeds/pkg/feed"
)

// Store is a persistent key to digest map.
type Store interface {
	Get(ctx context.Context, key string) (digest string, ok bool, err error)
	Put(ctx context.Context, key, digest string) error
}

// Digest returns the hex MD5 of data. It detects change, nothing more.
func Digest(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

// Result is the outcome of a digest check.
type Result struct {
	Old    string
	HadOld bool
	New    string
}

// Changed reports whether the content differs from the cached digest.
func (r Result) Changed() bool {
	return !r.HadOld || r.Old != r.New
}

// Checker compares fetched content against the cache.
type Checker struct {
	store  Store
	logger *slog.Logger
}

// NewChecker creates a checker over store.
func NewChecker(store Store, logger *slog.Logger) *Checker {
	return &Checker{store: store, logger: logger}
}

// Check digests data and compares it with the cached digest for key.
func (c *Checker) Check(ctx context.Context, key string, data []byte) (Result, error) {
	old, ok, err := c.store.Get(ctx, key)
	if err != nil {
		return Result{}, &feed.StoreError{Op: "hashcache get", Err: err}
	}
	r := Result{Old: old, HadOld: ok, New: Digest(data)}
	c.logger.Debug("Digest checked", "key", key, "old_hash", old, "new_hash", r.New, "changed", r.Changed())
	return r, nil
}

// Commit records digest as the latest for key.
func (c *Checker) Commit(ctx context.Context, key, digest string) error {
	if err := c.store.Put(ctx, key, digest); err != nil {
		return &feed.StoreError{Op: "hashcache put", Err: err}
	}
	c.logger.Debug("Digest committed", "key", key, "hash", digest)
	return nil
}

// MemoryStore is an in-process Store for tests and dry runs.
type MemoryStore struct {
	entries map[string]string
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]string)}
}

// Get returns the digest stored for key.
func (m *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	d, ok := m.entries[key]
	return d, ok, nil
}

// Put stores digest for key.
func (m *MemoryStore) Put(_ context.Context, key, digest string) error {
	m.entries[key] = digest
	return nil
}
