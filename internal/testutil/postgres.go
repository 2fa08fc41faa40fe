//go:build integration

package testutil

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

var (
	pgOnce sync.Once
	pgURL  string
	pgErr  error
)

// PostgresURL returns a connection string for an integration database.
// DATABASE_URL wins when set; otherwise one container is started per test
// binary and reaped by testcontainers when the process exits.
func PostgresURL(t testing.TB) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration tests in short mode")
	}
	if url := os.Getenv("DATABASE_URL"); url != "" {
		return url
	}

	pgOnce.Do(func() {
		ctx := context.Background()
		var container *postgres.PostgresContainer
		container, pgErr = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("tierhost"),
			postgres.WithUsername("tierhost"),
			postgres.WithPassword("tierhost"),
			testcontainers.WithWaitStrategy(
				// Postgres restarts once after init; wait for the second ready line.
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(60*time.Second),
			),
		)
		if pgErr != nil {
			return
		}
		pgURL, pgErr = container.ConnectionString(ctx, "sslmode=disable")
	})

	if pgErr != nil {
		t.Skipf("postgres container unavailable: %v", pgErr)
	}
	return pgURL
}
