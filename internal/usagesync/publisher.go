// Package usagesync propagates free-usage counter changes back to the
// identity provider's metadata store. The Redis counter is authoritative
// for gating; the provider copy is a write-behind mirror so dashboards
// and other consumers of user metadata stay close to current.
package usagesync

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/quickai/quickai/internal/metrics"
)

const (
	// StreamKey is the Redis stream for usage events.
	StreamKey = "stream:usage_events"

	// MaxStreamLen is the approximate max length of the stream.
	MaxStreamLen = 10000

	// PublishTimeout is the max time to wait for a Redis publish.
	PublishTimeout = 100 * time.Millisecond
)

// Event records one free-usage counter change for a user.
type Event struct {
	UserID string `json:"uid"`
	// Used is the counter value after the change, not a delta, so
	// replays and reordering within a user are harmless.
	Used int64 `json:"n"`
	At   int64 `json:"t"` // Unix milliseconds
}

// Publisher enqueues usage events to the Redis stream.
type Publisher struct {
	redis   *redis.Client
	logger  *slog.Logger
	metrics metrics.Recorder
}

// NewPublisher creates a usage event publisher.
func NewPublisher(client *redis.Client, logger *slog.Logger, recorder metrics.Recorder) *Publisher {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Publisher{
		redis:   client,
		logger:  logger.With("component", "usagesync.publisher"),
		metrics: recorder,
	}
}

// Publish adds a usage event to the stream synchronously.
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
		Values: map[string]interface{}{
			"payload": string(data),
		},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("xadd: %w", err)
	}

	return id, nil
}

// PublishAsync publishes without blocking the caller.
// Errors are logged but not returned (fire-and-forget).
func (p *Publisher) PublishAsync(event Event) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), PublishTimeout)
		defer cancel()

		if _, err := p.Publish(ctx, event); err != nil {
			p.metrics.IncUsageEventPublished("dropped")
			p.logger.Warn("usage event dropped",
				"user_id", event.UserID,
				"error", err,
			)
			return
		}
		p.metrics.IncUsageEventPublished("success")
	}()
}
