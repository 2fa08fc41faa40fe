package cache

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tierhost/tierhost/internal/model"
)

// Cache key prefixes and TTLs.
const (
	linkKeyPrefix     = "templink:"
	negCacheKeySuffix = ":neg"
	retiredKeySuffix  = ":retired"

	// MaxLinkTTL caps how long a link stays cached.
	MaxLinkTTL = 24 * time.Hour

	// ExpiredLinkGrace keeps a link cached past its expiry so repeated
	// redemptions of a dead link still answer from cache.
	ExpiredLinkGrace = 10 * time.Minute

	// NegativeCacheTTL is the TTL for unknown-token entries.
	NegativeCacheTTL = 5 * time.Minute

	// RetiredTTL outlives any cached link, so a backfill racing a
	// retirement can never resurrect the token.
	RetiredTTL = MaxLinkTTL
)

// setLinkScript caches a link unless its token was retired.
// KEYS: link, negative, retired. ARGV: ttl seconds, then hash fields.
// Returns 1 when cached.
var setLinkScript = redis.NewScript(`
	if redis.call('EXISTS', KEYS[3]) == 1 then
		return 0
	end
	redis.call('HSET', KEYS[1], 'id', ARGV[2], 'issuer_id', ARGV[3], 'file_id', ARGV[4], 'expires_at', ARGV[5], 'created_at', ARGV[6])
	redis.call('EXPIRE', KEYS[1], ARGV[1])
	redis.call('DEL', KEYS[2])
	return 1
`)

// ErrCacheMiss indicates the key is not cached.
var ErrCacheMiss = errors.New("cache miss")

// linkTTL returns how long a link expiring at expiresAt should stay cached.
func linkTTL(expiresAt, now time.Time) time.Duration {
	ttl := expiresAt.Sub(now) + ExpiredLinkGrace
	if ttl > MaxLinkTTL {
		ttl = MaxLinkTTL
	}
	return ttl
}

// GetTemporaryLink retrieves a link by token.
// Returns ErrCacheMiss if not cached.
func (c *Cache) GetTemporaryLink(ctx context.Context, token string) (*model.TemporaryLink, error) {
	var cached model.CachedTemporaryLink
	res := c.client.HGetAll(ctx, linkKeyPrefix+token)
	if err := res.Err(); err != nil {
		return nil, fmt.Errorf("redis hgetall failed: %w", err)
	}
	if len(res.Val()) == 0 {
		return nil, ErrCacheMiss
	}
	if err := res.Scan(&cached); err != nil {
		return nil, fmt.Errorf("decode cached link: %w", err)
	}

	return cached.ToLink(token), nil
}

// SetTemporaryLink caches a link and clears any negative entry for its
// token. Retired tokens and links whose grace window has passed are not
// cached.
func (c *Cache) SetTemporaryLink(ctx context.Context, link *model.TemporaryLink) error {
	key := linkKeyPrefix + link.Token

	ttl := linkTTL(link.ExpiresAt, time.Now())
	if ttl <= 0 {
		return c.client.Del(ctx, key, key+negCacheKeySuffix).Err()
	}

	cached := link.ToCachedLink()
	err := setLinkScript.Run(ctx, c.client,
		[]string{key, key + negCacheKeySuffix, key + retiredKeySuffix},
		int64(math.Ceil(ttl.Seconds())),
		cached.ID, cached.IssuerID, cached.FileID, cached.ExpiresAt, cached.CreatedAt,
	).Err()
	if err != nil {
		return fmt.Errorf("failed to cache link: %w", err)
	}
	return nil
}

// RetireTemporaryLinks evicts the links for tokens and marks the tokens
// retired, in one transaction.
func (c *Cache) RetireTemporaryLinks(ctx context.Context, tokens ...string) error {
	if len(tokens) == 0 {
		return nil
	}

	pipe := c.client.TxPipeline()
	for _, tok := range tokens {
		key := linkKeyPrefix + tok
		pipe.Del(ctx, key)
		pipe.SetEx(ctx, key+retiredKeySuffix, "", RetiredTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to retire links in cache: %w", err)
	}
	return nil
}

// IsNegativelyCached checks if a token is known not to exist, either
// because a lookup missed or because it was retired.
func (c *Cache) IsNegativelyCached(ctx context.Context, token string) (bool, error) {
	key := linkKeyPrefix + token
	n, err := c.client.Exists(ctx, key+negCacheKeySuffix, key+retiredKeySuffix).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check negative cache: %w", err)
	}
	return n > 0, nil
}

// SetNegativeCache marks a token as not found.
func (c *Cache) SetNegativeCache(ctx context.Context, token string) error {
	if err := c.client.SetEx(ctx, linkKeyPrefix+token+negCacheKeySuffix, "", NegativeCacheTTL).Err(); err != nil {
		return fmt.Errorf("failed to set negative cache: %w", err)
	}
	return nil
}
