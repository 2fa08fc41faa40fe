//go:build integration

package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/redis/go-redis/v9"

	"github.com/tierhost/tierhost/internal/testutil"
)

func TestIntegrationPublish(t *testing.T) {
	ctx := context.Background()
	opt, err := redis.ParseURL(testutil.RequireEnv(t, "REDIS_URL"))
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	client := redis.NewClient(opt)
	t.Cleanup(func() { _ = client.Close() })
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	_ = client.Del(ctx, StreamKey).Err()

	p := NewPublisher(client, slog.Default(), nil)
	id, err := p.Publish(ctx, Event{Type: TypeLinkRedeemed, LinkID: "l1", FileID: "f1", UserID: "u1", OccurredAt: 42})
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	msgs, err := client.XRange(ctx, StreamKey, id, id).Result()
	if err != nil || len(msgs) != 1 {
		t.Fatalf("XRange = (%v, %v)", msgs, err)
	}

	var got Event
	if err := json.Unmarshal([]byte(msgs[0].Values["payload"].(string)), &got); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if got.Type != TypeLinkRedeemed || got.LinkID != "l1" {
		t.Errorf("event = %+v", got)
	}
}
