// Package events publishes temporary link lifecycle events to a Redis stream.
package events

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tierhost/tierhost/internal/metrics"
)

const (
	// StreamKey is the Redis stream link events are appended to.
	StreamKey = "stream:link_events"

	// MaxStreamLen is the approximate max length of the stream.
	MaxStreamLen = 100000

	// PublishTimeout is the max time to wait for Redis publish.
	PublishTimeout = 100 * time.Millisecond
)

// Event types.
const (
	TypeLinkIssued   = "link.issued"
	TypeLinkRedeemed = "link.redeemed"
)

// Event is the compact stream payload.
type Event struct {
	Type       string `json:"type"`
	LinkID     string `json:"lid"`
	FileID     string `json:"fid"`
	UserID     string `json:"uid"`
	ClientHash string `json:"ch,omitempty"`
	ExpiresAt  int64  `json:"exp,omitempty"` // Unix seconds
	OccurredAt int64  `json:"t"`             // Unix milliseconds
}

// Publisher appends events to the link event stream.
type Publisher struct {
	redis   *redis.Client
	logger  *slog.Logger
	metrics metrics.Recorder
}

// NewPublisher creates a new link event publisher.
func NewPublisher(client *redis.Client, logger *slog.Logger, recorder metrics.Recorder) *Publisher {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Publisher{
		redis:   client,
		logger:  logger.With("component", "events.publisher"),
		metrics: recorder,
	}
}

// Publish appends an event to the stream synchronously.
func (p *Publisher) Publish(ctx context.Context, event Event) (string, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("marshal event: %w", err)
	}

	id, err := p.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamKey,
		MaxLen: MaxStreamLen,
		Approx: true,
		ID:     "*",
		Values: map[string]any{"type": event.Type, "payload": string(data)},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("xadd: %w", err)
	}

	return id, nil
}

// PublishAsync publishes without blocking the caller.
// Failures are logged and counted, never returned.
func (p *Publisher) PublishAsync(event Event) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), PublishTimeout)
		defer cancel()

		id, err := p.Publish(ctx, event)
		if err != nil {
			p.logger.Warn("link_event_dropped", "type", event.Type, "link_id", event.LinkID, "error", err)
			p.metrics.IncEventPublished("dropped")
			return
		}

		p.logger.Debug("link_event_published", "type", event.Type, "stream_id", id)
		p.metrics.IncEventPublished("success")
	}()
}

// ClientHash derives a privacy-safe client identifier that rotates daily.
func ClientHash(ip, userAgent string, at time.Time) string {
	salt := "tierhost:" + at.UTC().Format("2006-01-02")
	sum := sha256.Sum256([]byte(ip + userAgent + salt))
	return hex.EncodeToString(sum[:8])
}
