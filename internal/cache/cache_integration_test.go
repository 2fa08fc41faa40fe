//go:build integration

package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tierhost/tierhost/internal/model"
	"github.com/tierhost/tierhost/internal/testutil"
)

func newTestCache(t *testing.T) (context.Context, *Cache) {
	t.Helper()

	ctx := context.Background()
	c, err := New(ctx, testutil.RequireEnv(t, "REDIS_URL"), Pool{Size: 4})
	if err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	_ = testutil.FlushRedis(ctx, c.Client())
	return ctx, c
}

func TestIntegrationTemporaryLinkCache(t *testing.T) {
	ctx, c := newTestCache(t)

	link := &model.TemporaryLink{
		ID:        "link-1",
		IssuerID:  "user-1",
		FileID:    "file-1",
		Token:     testutil.UniqueID("tok"),
		ExpiresAt: time.Now().Add(time.Hour).UTC(),
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}

	if _, err := c.GetTemporaryLink(ctx, link.Token); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected miss, got %v", err)
	}

	_ = c.SetNegativeCache(ctx, link.Token)
	if neg, _ := c.IsNegativelyCached(ctx, link.Token); !neg {
		t.Fatal("token should be negatively cached")
	}

	if err := c.SetTemporaryLink(ctx, link); err != nil {
		t.Fatalf("SetTemporaryLink failed: %v", err)
	}
	if neg, _ := c.IsNegativelyCached(ctx, link.Token); neg {
		t.Error("SetTemporaryLink should clear the negative entry")
	}

	got, err := c.GetTemporaryLink(ctx, link.Token)
	if err != nil {
		t.Fatalf("GetTemporaryLink failed: %v", err)
	}
	if got.FileID != link.FileID || !got.ExpiresAt.Equal(link.ExpiresAt) {
		t.Errorf("cached link = %+v, want %+v", got, link)
	}

	if err := c.RetireTemporaryLinks(ctx, link.Token); err != nil {
		t.Fatalf("RetireTemporaryLinks failed: %v", err)
	}
	if _, err := c.GetTemporaryLink(ctx, link.Token); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("expected miss after retire, got %v", err)
	}
	if neg, _ := c.IsNegativelyCached(ctx, link.Token); !neg {
		t.Error("retired token should read as negative")
	}

	// A late backfill must not bring a retired token back.
	if err := c.SetTemporaryLink(ctx, link); err != nil {
		t.Fatalf("SetTemporaryLink failed: %v", err)
	}
	if _, err := c.GetTemporaryLink(ctx, link.Token); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("retired token was cached again, err = %v", err)
	}
}

func TestIntegrationAuthContextCache(t *testing.T) {
	ctx, c := newTestCache(t)

	p := &model.AuthContext{KeyID: "k1", UserID: "u1", Username: "ann", Tier: model.TierPremium, Scopes: []string{"read"}}
	if err := c.SetAuthContext(ctx, "ck", p); err != nil {
		t.Fatalf("SetAuthContext failed: %v", err)
	}

	got, err := c.GetAuthContext(ctx, "ck")
	if err != nil || got == nil {
		t.Fatalf("GetAuthContext = (%v, %v)", got, err)
	}
	if got.Tier != model.TierPremium || got.Username != "ann" {
		t.Errorf("principal = %+v", got)
	}

	_ = c.DeleteAuthContext(ctx, "ck")
	if got, _ := c.GetAuthContext(ctx, "ck"); got != nil {
		t.Error("principal should be gone after delete")
	}
}

func TestIntegrationUserRateLimit_Concurrency(t *testing.T) {
	ctx, c := newTestCache(t)

	const rpm, burst = 10, 5
	var allowed, rejected int64

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 3; j++ {
				res, err := c.CheckUserRateLimit(ctx, "user-concurrent", rpm, burst)
				if err != nil {
					t.Errorf("CheckUserRateLimit error: %v", err)
					return
				}
				if res.Allowed {
					atomic.AddInt64(&allowed, 1)
				} else {
					atomic.AddInt64(&rejected, 1)
				}
			}
		}()
	}
	wg.Wait()

	if allowed > int64(burst+rpm) {
		t.Errorf("too many requests allowed: %d", allowed)
	}
	if rejected == 0 {
		t.Error("expected some requests to be rejected")
	}
}
