package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/redis/go-redis/v9"
)

// rateLimitIPPrefix is the Redis key prefix for per-IP rate limits.
const rateLimitIPPrefix = "ratelimit:ip:"

// RateLimitResult contains the result of a rate limit check.
type RateLimitResult struct {
	Allowed    bool
	Remaining  int64
	ResetAt    time.Time
	RetryAfter time.Duration
}

// fixedWindowScript implements a fixed-window counter: the first hit
// in a window sets the expiry, every hit increments, and the request
// is admitted while the post-increment count is within limit.
var fixedWindowScript = redis.NewScript(`
	local key = KEYS[1]
	local limit = tonumber(ARGV[1])
	local window = tonumber(ARGV[2])

	local count = redis.call('INCR', key)
	if count == 1 then
		redis.call('EXPIRE', key, window)
	end

	local ttl = redis.call('TTL', key)
	if ttl < 0 then
		ttl = window
	end

	local allowed = 0
	if count <= limit then
		allowed = 1
	end

	return {allowed, count, ttl}
`)

// CheckIPRateLimit checks and updates the fixed-window counter for an
// IP address. IP is hashed before use as a key so raw addresses never
// sit in Redis. Fails open on Redis errors.
func (c *Cache) CheckIPRateLimit(ctx context.Context, ip string, limit int, window time.Duration) (*RateLimitResult, error) {
	key := rateLimitIPPrefix + hashIP(ip)

	result, err := fixedWindowScript.Run(ctx, c.client,
		[]string{key},
		limit, int(window.Seconds()),
	).Int64Slice()

	if err != nil {
		return &RateLimitResult{
			Allowed:   true,
			Remaining: int64(limit),
			ResetAt:   time.Now().Add(window),
		}, nil
	}

	allowed := result[0] == 1
	count := result[1]
	ttlSeconds := result[2]

	remaining := int64(limit) - count
	if remaining < 0 {
		remaining = 0
	}

	res := &RateLimitResult{
		Allowed:   allowed,
		Remaining: remaining,
		ResetAt:   time.Now().Add(time.Duration(ttlSeconds) * time.Second),
	}
	if !allowed {
		res.RetryAfter = time.Duration(ttlSeconds) * time.Second
	}

	return res, nil
}

// hashIP creates a truncated SHA256 hash of an IP address. This
// provides privacy while maintaining uniqueness as a cache key.
func hashIP(ip string) string {
	hash := sha256.Sum256([]byte(ip))
	return hex.EncodeToString(hash[:8]) // 16 hex chars
}
