// Package model defines domain entities for the application.
package model

import (
	"strings"
	"time"
)

// Tier is a user's subscription level.
type Tier string

const (
	TierBasic      Tier = "Basic"
	TierPremium    Tier = "Premium"
	TierEnterprise Tier = "Enterprise"
)

// ValidTiers contains all valid tier values.
var ValidTiers = []Tier{TierBasic, TierPremium, TierEnterprise}

// IsValid checks if the tier is one of the known subscription levels.
func (t Tier) IsValid() bool {
	return t == TierBasic || t == TierPremium || t == TierEnterprise
}

// ParseTier converts a case-insensitive tier name to a Tier.
func ParseTier(s string) (Tier, bool) {
	for _, t := range ValidTiers {
		if strings.EqualFold(string(t), strings.TrimSpace(s)) {
			return t, true
		}
	}
	return "", false
}

// User is the principal identity owning files and temporary links.
type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Tier      Tier      `json:"tier"`
	CreatedAt time.Time `json:"created_at"`
}

// UserDetail is a user together with the ids of what it owns.
// Used by the admin listing.
type UserDetail struct {
	User
	FileIDs []string
	LinkIDs []string
}
