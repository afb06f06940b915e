package stageview

import (
	"context"
	"time"
)

// Cache is the interface for a shared byte cache.
// Users should implement this interface with their preferred caching solution
// (e.g., Redis, Memcached, in-memory).
type Cache interface {
	// Get retrieves a value from the cache.
	// Returns nil, nil if the key doesn't exist.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in the cache with an optional TTL.
	// If ttl is 0, the value should not expire.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from the cache.
	Delete(ctx context.Context, key string) error

	// DeletePrefix removes all values with the given prefix.
	DeletePrefix(ctx context.Context, prefix string) error
}

// CacheKey identifies a cached artifact of a table.
type CacheKey struct {
	Namespace string
	Table     string
	Operation string
}

// String returns the string representation of the cache key.
func (k CacheKey) String() string {
	ns := k.Namespace
	if ns == "" {
		ns = "stageview"
	}
	return ns + ":" + k.Operation + ":" + k.Table
}

// Prefix returns the key prefix shared by all tables of the operation.
func (k CacheKey) Prefix() string {
	return CacheKey{Namespace: k.Namespace, Operation: k.Operation}.String()
}
