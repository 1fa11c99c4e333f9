package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lookupd/lookupd/internal/model"
)

const (
	// lookupKeyPrefix is the Redis key prefix for cached provider payloads.
	lookupKeyPrefix = "lookup:"

	// DefaultLookupTTL bounds how long a provider payload stays fresh.
	// Subject records change rarely; an hour avoids hammering vendors
	// when several users query the same subject.
	DefaultLookupTTL = 1 * time.Hour
)

// ErrCacheMiss is returned when no cached payload exists for a query.
var ErrCacheMiss = errors.New("cache miss")

// lookupKey hashes the query so raw subject identifiers never appear
// in Redis key listings.
func lookupKey(category model.Category, query string) string {
	sum := sha256.Sum256([]byte(string(category) + ":" + query))
	return lookupKeyPrefix + string(category) + ":" + hex.EncodeToString(sum[:])[:24]
}

// GetLookup returns the cached provider payload for a query, or
// ErrCacheMiss when none is stored.
func (c *Cache) GetLookup(ctx context.Context, category model.Category, query string) ([]byte, error) {
	data, err := c.client.Get(ctx, lookupKey(category, query)).Bytes()
	if err == redis.Nil {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

// SetLookup caches a provider payload. Only payloads already classified
// as valid should be stored; callers never cache empty or error bodies.
func (c *Cache) SetLookup(ctx context.Context, category model.Category, query string, body []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultLookupTTL
	}
	return c.client.Set(ctx, lookupKey(category, query), body, ttl).Err()
}
