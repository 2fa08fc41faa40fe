package model

import (
	"slices"
	"time"
)

// Scope constants for API key authorization.
const (
	ScopeRead  = "read"
	ScopeWrite = "write"
	ScopeAdmin = "admin"
)

// ValidScopes contains all valid scope values.
var ValidScopes = []string{ScopeRead, ScopeWrite, ScopeAdmin}

// RateLimitConfig defines rate limit parameters per subscription tier.
type RateLimitConfig struct {
	RequestsPerMinute int
	Burst             int
}

// TierRateLimits maps subscription tiers to their request budgets.
var TierRateLimits = map[Tier]RateLimitConfig{
	TierBasic:      {RequestsPerMinute: 60, Burst: 10},
	TierPremium:    {RequestsPerMinute: 300, Burst: 30},
	TierEnterprise: {RequestsPerMinute: 600, Burst: 50},
}

// RateLimitFor returns the rate limit configuration for a tier.
// Unknown tiers get the Basic budget.
func RateLimitFor(t Tier) RateLimitConfig {
	if config, ok := TierRateLimits[t]; ok {
		return config
	}
	return TierRateLimits[TierBasic]
}

// APIKey represents an API key entity.
type APIKey struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	KeyHash    string     `json:"-"` // Never serialize
	KeyPrefix  string     `json:"key_prefix"`
	Scopes     []string   `json:"scopes"`
	Name       string     `json:"name,omitempty"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// IsRevoked returns true if the key has been revoked.
func (k *APIKey) IsRevoked() bool {
	return k.RevokedAt != nil
}

// HasScope checks if the key has a specific scope.
// Admin scope implies all other scopes.
func (k *APIKey) HasScope(scope string) bool {
	if slices.Contains(k.Scopes, ScopeAdmin) {
		return true
	}
	return slices.Contains(k.Scopes, scope)
}

// AuthContext holds the authenticated principal for a request.
// This is injected into the request context by auth middleware.
type AuthContext struct {
	KeyID     string
	KeyPrefix string
	UserID    string
	Username  string
	Tier      Tier
	Scopes    []string
}

// HasScope checks if the auth context has a specific scope.
func (a *AuthContext) HasScope(scope string) bool {
	if slices.Contains(a.Scopes, ScopeAdmin) {
		return true
	}
	return slices.Contains(a.Scopes, scope)
}

// IsAdmin reports whether the principal may use the admin API.
func (a *AuthContext) IsAdmin() bool {
	return slices.Contains(a.Scopes, ScopeAdmin)
}

// User returns the principal as a User value.
func (a *AuthContext) User() User {
	return User{ID: a.UserID, Username: a.Username, Tier: a.Tier}
}
