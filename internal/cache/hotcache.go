package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/penshort/penshort/internal/model"
)

// Cache key prefixes and TTLs.
const (
	mappingKeyPrefix  = "mapping:"
	negCacheKeySuffix = ":neg"

	// NegativeCacheTTL is the TTL for negative cache entries.
	NegativeCacheTTL = 5 * time.Minute
)

// ErrCacheMiss is returned when a key is absent from the cache.
var ErrCacheMiss = errors.New("cache miss")

// GetMapping retrieves a mapping from cache by short key. Returns
// ErrCacheMiss if not found.
func (c *Cache) GetMapping(ctx context.Context, shortKey string) (*model.CachedMapping, error) {
	key := mappingKeyPrefix + shortKey

	result, err := c.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall failed: %w", err)
	}

	if len(result) == 0 {
		return nil, ErrCacheMiss
	}

	cached := &model.CachedMapping{
		Destination:  result["destination"],
		RedirectType: result["redirect_type"],
		ExpiresAt:    result["expires_at"],
		IsActive:     result["is_active"],
		UpdatedAt:    result["updated_at"],
	}

	return cached, nil
}

// SetMapping stores a mapping in cache, keyed strictly by short_key —
// never by alias, so a lookup by alias always passes through the
// repository and resolves to the canonical short_key first. Password-
// protected mappings are never cached: the gate must be re-evaluated
// on every resolution.
func (c *Cache) SetMapping(ctx context.Context, shortKey string, ttl time.Duration, m *model.Mapping) error {
	if m.IsPasswordProtected() {
		return nil
	}

	key := mappingKeyPrefix + shortKey
	cached := m.ToCachedMapping()

	if m.ExpiresAt != nil {
		expiresIn := time.Until(*m.ExpiresAt)
		if expiresIn <= 0 {
			c.client.Del(ctx, key, key+negCacheKeySuffix)
			return nil
		}
		if expiresIn < ttl {
			ttl = expiresIn
		}
	}

	fields := map[string]any{
		"destination":   cached.Destination,
		"redirect_type": cached.RedirectType,
		"is_active":     cached.IsActive,
		"updated_at":    cached.UpdatedAt,
	}
	if cached.ExpiresAt != "" {
		fields["expires_at"] = cached.ExpiresAt
	}

	pipe := c.client.Pipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to cache mapping: %w", err)
	}

	c.client.Del(ctx, key+negCacheKeySuffix)

	return nil
}

// DeleteMapping removes a mapping from cache.
func (c *Cache) DeleteMapping(ctx context.Context, shortKey string) error {
	key := mappingKeyPrefix + shortKey

	pipe := c.client.Pipeline()
	pipe.Del(ctx, key)
	pipe.Del(ctx, key+negCacheKeySuffix)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete mapping from cache: %w", err)
	}

	return nil
}

// IsNegativelyCached checks if a short key is in negative cache.
func (c *Cache) IsNegativelyCached(ctx context.Context, shortKey string) (bool, error) {
	key := mappingKeyPrefix + shortKey + negCacheKeySuffix

	exists, err := c.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check negative cache: %w", err)
	}

	return exists > 0, nil
}

// SetNegativeCache marks a short key as not found.
func (c *Cache) SetNegativeCache(ctx context.Context, shortKey string) error {
	key := mappingKeyPrefix + shortKey + negCacheKeySuffix

	if err := c.client.SetEx(ctx, key, "", NegativeCacheTTL).Err(); err != nil {
		return fmt.Errorf("failed to set negative cache: %w", err)
	}

	return nil
}

