// Package testutil holds shared helpers and fixtures for tests.
package testutil

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"

	"github.com/tierhost/tierhost/internal/model"
)

// RequireEnv returns an environment variable or skips the test if missing.
func RequireEnv(t testing.TB, key string) string {
	t.Helper()
	value := os.Getenv(key)
	if value == "" {
		t.Skipf("%s not set", key)
	}
	return value
}

const advisoryLockID int64 = 420421

// AcquireDBLock grabs a global advisory lock to serialize DB tests that
// share one database.
func AcquireDBLock(ctx context.Context, pool *pgxpool.Pool) (func() error, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}

	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", advisoryLockID); err != nil {
		conn.Release()
		return nil, fmt.Errorf("acquire advisory lock: %w", err)
	}

	return func() error {
		defer conn.Release()
		if _, err := conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", advisoryLockID); err != nil {
			return fmt.Errorf("release advisory lock: %w", err)
		}
		return nil
	}, nil
}

// FlushRedis clears the current Redis database.
func FlushRedis(ctx context.Context, client *redis.Client) error {
	return client.FlushDB(ctx).Err()
}

var seq atomic.Int64

// UniqueID generates a unique, human-readable ID for tests.
func UniqueID(prefix string) string {
	return fmt.Sprintf("%s-%d-%d", prefix, time.Now().UnixNano(), seq.Add(1))
}

// ============================================================================
// Test Data Factories
// ============================================================================

// NewTestUser creates a user with the given tier and a unique username.
func NewTestUser(t testing.TB, tier model.Tier) *model.User {
	t.Helper()
	return &model.User{
		ID:        ulid.Make().String(),
		Username:  UniqueID("user"),
		Tier:      tier,
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
}

// NewTestFile creates a PNG file record owned by owner.
func NewTestFile(t testing.TB, owner *model.User) *model.File {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Microsecond)
	id := ulid.Make().String()
	return &model.File{
		ID:            id,
		Name:          "holiday",
		Format:        model.FormatPNG,
		OwnerID:       owner.ID,
		OwnerUsername: owner.Username,
		ImageKey:      model.ImageKeyFor(ulid.Make().String(), model.FormatPNG),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// NewTestLink creates a temporary link to file expiring after ttl.
func NewTestLink(t testing.TB, issuerID, fileID string, ttl time.Duration) *model.TemporaryLink {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &model.TemporaryLink{
		ID:        ulid.Make().String(),
		IssuerID:  issuerID,
		FileID:    fileID,
		Token:     fmt.Sprintf("tok%017d", seq.Add(1)),
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
}

// NewTestAPIKey creates an API key record with read and write scopes.
func NewTestAPIKey(t testing.TB, userID string) *model.APIKey {
	t.Helper()
	return &model.APIKey{
		ID:        ulid.Make().String(),
		UserID:    userID,
		KeyHash:   UniqueID("hash"),
		KeyPrefix: "abc123",
		Scopes:    []string{model.ScopeRead, model.ScopeWrite},
		Name:      "Test Key",
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
}
