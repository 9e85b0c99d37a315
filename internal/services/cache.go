package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/wardenpanel/warden-backend/internal/database"
)

const (
	// CacheKeyPrefix is the Redis key prefix for cached data
	CacheKeyPrefix = "cache:"
	// DefaultCacheTTL keeps lookups fresh across imports; player documents
	// change whenever a migration lands, so entries stay short-lived.
	DefaultCacheTTL = 2 * time.Minute
	// MinCacheTTL is the lower clamp for custom TTLs
	MinCacheTTL = 30 * time.Second
	// MaxCacheTTL is the upper clamp for custom TTLs
	MaxCacheTTL = 10 * time.Minute
)

// CacheService provides short-lived Redis caching for lookup responses.
type CacheService struct{}

// Get retrieves a value from cache
func (c *CacheService) Get(key string, dest interface{}) (bool, error) {
	ctx := context.Background()
	cacheKey := CacheKeyPrefix + key

	val, err := database.RedisClient.Get(ctx, cacheKey).Result()
	if err != nil {
		return false, nil // Cache miss, not an error
	}

	if err := json.Unmarshal([]byte(val), dest); err != nil {
		return false, err
	}
	return true, nil
}

// Set stores a value in cache with the default TTL
func (c *CacheService) Set(key string, value interface{}) error {
	return c.SetWithTTL(key, value, DefaultCacheTTL)
}

// SetWithTTL stores a value in cache with a custom TTL (clamped)
func (c *CacheService) SetWithTTL(key string, value interface{}, ttl time.Duration) error {
	if ttl < MinCacheTTL {
		ttl = MinCacheTTL
	}
	if ttl > MaxCacheTTL {
		ttl = MaxCacheTTL
	}

	ctx := context.Background()
	cacheKey := CacheKeyPrefix + key

	jsonData, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return database.RedisClient.Set(ctx, cacheKey, jsonData, ttl).Err()
}

// Delete removes a value from cache
func (c *CacheService) Delete(key string) error {
	ctx := context.Background()
	cacheKey := CacheKeyPrefix + key
	return database.RedisClient.Del(ctx, cacheKey).Err()
}

// CacheKey generates a cache key scoped to one tenant.
func CacheKey(tenant, resource, identifier string) string {
	return fmt.Sprintf("%s:%s:%s", tenant, resource, identifier)
}

// Global cache service instance
var Cache = &CacheService{}
