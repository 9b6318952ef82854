package domain

import (
	"context"
	"time"
)

// Cache is the interface for caching derived statuses and roster
// lookups. Supports two-phase caching: local LRU (Community) plus
// Redis (Pro). Any cached status MUST be invalidated on every event
// write for the same employee; the aggregation itself is always
// recomputable from the store.
type Cache interface {
	// Get retrieves a value. Returns nil, nil if the key is not present.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value with expiration.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value.
	Delete(ctx context.Context, key string) error

	Ping(ctx context.Context) error
	Close() error
}

// Cache key prefixes.
const (
	CacheKeyStatus = "status:" // + employeeID
	CacheKeyRoster = "roster:" // + employeeID
)

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is "memory" or "redis".
	Type string

	LocalMaxSize int
	LocalTTL     time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// EnableTwoPhase checks the local LRU first, then Redis.
	EnableTwoPhase bool
}
