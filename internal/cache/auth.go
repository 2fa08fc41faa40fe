package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tierhost/tierhost/internal/model"
)

const (
	authCachePrefix = "auth:principal:"
	// AuthCacheTTL bounds how stale a cached tier or scope set may be.
	AuthCacheTTL = 5 * time.Minute
)

// cachedPrincipal represents an auth context stored in Redis.
type cachedPrincipal struct {
	KeyID     string   `json:"key_id"`
	KeyPrefix string   `json:"key_prefix"`
	UserID    string   `json:"user_id"`
	Username  string   `json:"username"`
	Tier      string   `json:"tier"`
	Scopes    []string `json:"scopes"`
}

// GetAuthContext retrieves a cached principal by cache key.
// A miss or a corrupt entry returns (nil, nil).
func (c *Cache) GetAuthContext(ctx context.Context, cacheKey string) (*model.AuthContext, error) {
	data, err := c.client.Get(ctx, authCachePrefix+cacheKey).Bytes()
	if err != nil {
		return nil, nil //nolint:nilerr
	}

	var cached cachedPrincipal
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, nil //nolint:nilerr
	}

	return &model.AuthContext{
		KeyID:     cached.KeyID,
		KeyPrefix: cached.KeyPrefix,
		UserID:    cached.UserID,
		Username:  cached.Username,
		Tier:      model.Tier(cached.Tier),
		Scopes:    cached.Scopes,
	}, nil
}

// SetAuthContext caches a principal.
func (c *Cache) SetAuthContext(ctx context.Context, cacheKey string, p *model.AuthContext) error {
	data, err := json.Marshal(cachedPrincipal{
		KeyID:     p.KeyID,
		KeyPrefix: p.KeyPrefix,
		UserID:    p.UserID,
		Username:  p.Username,
		Tier:      string(p.Tier),
		Scopes:    p.Scopes,
	})
	if err != nil {
		return fmt.Errorf("marshal auth context: %w", err)
	}

	return c.client.Set(ctx, authCachePrefix+cacheKey, data, AuthCacheTTL).Err()
}

// DeleteAuthContext removes a cached principal.
func (c *Cache) DeleteAuthContext(ctx context.Context, cacheKey string) error {
	return c.client.Del(ctx, authCachePrefix+cacheKey).Err()
}
