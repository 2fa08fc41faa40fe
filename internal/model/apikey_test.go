package model

import (
	"slices"
	"testing"
)

func TestAPIKey_HasScope(t *testing.T) {
	testCases := []struct {
		name      string
		keyScopes []string
		checkFor  string
		want      bool
	}{
		{
			name:      "has exact scope",
			keyScopes: []string{ScopeRead, ScopeWrite},
			checkFor:  ScopeRead,
			want:      true,
		},
		{
			name:      "does not have scope",
			keyScopes: []string{ScopeRead},
			checkFor:  ScopeWrite,
			want:      false,
		},
		{
			name:      "admin implies read",
			keyScopes: []string{ScopeAdmin},
			checkFor:  ScopeRead,
			want:      true,
		},
		{
			name:      "admin implies write",
			keyScopes: []string{ScopeAdmin},
			checkFor:  ScopeWrite,
			want:      true,
		},
		{
			name:      "empty scopes",
			keyScopes: []string{},
			checkFor:  ScopeRead,
			want:      false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			key := &APIKey{Scopes: tc.keyScopes}
			got := key.HasScope(tc.checkFor)
			if got != tc.want {
				t.Errorf("HasScope(%s) = %v, want %v", tc.checkFor, got, tc.want)
			}
		})
	}
}

func TestAuthContext_HasScope(t *testing.T) {
	testCases := []struct {
		name     string
		scopes   []string
		checkFor string
		want     bool
	}{
		{
			name:     "has scope",
			scopes:   []string{ScopeRead},
			checkFor: ScopeRead,
			want:     true,
		},
		{
			name:     "admin grants all",
			scopes:   []string{ScopeAdmin},
			checkFor: ScopeWrite,
			want:     true,
		},
		{
			name:     "missing scope",
			scopes:   []string{ScopeRead},
			checkFor: ScopeAdmin,
			want:     false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := &AuthContext{Scopes: tc.scopes}
			got := ctx.HasScope(tc.checkFor)
			if got != tc.want {
				t.Errorf("HasScope(%s) = %v, want %v", tc.checkFor, got, tc.want)
			}
		})
	}
}

func TestAuthContext_IsAdmin(t *testing.T) {
	if (&AuthContext{Scopes: []string{ScopeRead, ScopeWrite}}).IsAdmin() {
		t.Error("read/write principal should not be admin")
	}
	if !(&AuthContext{Scopes: []string{ScopeAdmin}}).IsAdmin() {
		t.Error("admin scope should be admin")
	}
}

func TestAPIKey_IsRevoked(t *testing.T) {
	key := &APIKey{}
	if key.IsRevoked() {
		t.Error("new key should not be revoked")
	}
}

func TestRateLimitFor(t *testing.T) {
	testCases := []struct {
		tier      Tier
		wantRPM   int
		wantBurst int
	}{
		{TierBasic, 60, 10},
		{TierPremium, 300, 30},
		{TierEnterprise, 600, 50},
		{"Gold", 60, 10}, // Falls back to Basic
	}

	for _, tc := range testCases {
		t.Run(string(tc.tier), func(t *testing.T) {
			config := RateLimitFor(tc.tier)
			if config.RequestsPerMinute != tc.wantRPM {
				t.Errorf("RPM = %d, want %d", config.RequestsPerMinute, tc.wantRPM)
			}
			if config.Burst != tc.wantBurst {
				t.Errorf("Burst = %d, want %d", config.Burst, tc.wantBurst)
			}
		})
	}
}

func TestValidScopes(t *testing.T) {
	expected := []string{ScopeRead, ScopeWrite, ScopeAdmin}
	for _, scope := range expected {
		if !slices.Contains(ValidScopes, scope) {
			t.Errorf("ValidScopes should contain %s", scope)
		}
	}
}
