package usagesync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/quickai/quickai/internal/metrics"
)

const (
	// ConsumerGroup is the Redis consumer group name.
	ConsumerGroup = "usage_sync_workers"

	// DefaultBatchSize is the max events per batch.
	DefaultBatchSize = 100

	// DefaultBlockTimeout is how long to block waiting for messages.
	DefaultBlockTimeout = 5 * time.Second

	// DefaultMetricsInterval is how often to refresh queue depth metrics.
	DefaultMetricsInterval = 5 * time.Second
)

// MetadataStore writes the free-usage counter to the identity provider.
type MetadataStore interface {
	SetFreeUsage(ctx context.Context, userID string, freeUsage int) error
}

// IdentityInvalidator drops a cached identity so the next request
// re-resolves it from the provider.
type IdentityInvalidator interface {
	DeleteIdentity(ctx context.Context, userID string) error
}

// Worker drains usage events from the Redis stream and writes the
// latest counter value per user to the identity provider.
type Worker struct {
	redis           *redis.Client
	store           MetadataStore
	invalidator     IdentityInvalidator
	logger          *slog.Logger
	metrics         metrics.Recorder
	consumerID      string
	batchSize       int
	blockTimeout    time.Duration
	metricsInterval time.Duration
	lastMetrics     time.Time

	started bool
	cancel  context.CancelFunc
	done    chan struct{}
	mu      sync.Mutex
}

// NewWorker creates a usage sync worker. invalidator may be nil when
// no identity cache is in play.
func NewWorker(client *redis.Client, store MetadataStore, invalidator IdentityInvalidator, logger *slog.Logger, consumerID string, recorder metrics.Recorder) *Worker {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Worker{
		redis:           client,
		store:           store,
		invalidator:     invalidator,
		logger:          logger.With("component", "usagesync.worker", "consumer_id", consumerID),
		metrics:         recorder,
		consumerID:      consumerID,
		batchSize:       DefaultBatchSize,
		blockTimeout:    DefaultBlockTimeout,
		metricsInterval: DefaultMetricsInterval,
	}
}

// Run starts the worker loop. Blocks until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return errors.New("worker already started")
	}
	w.started = true
	w.done = make(chan struct{})
	ctx, w.cancel = context.WithCancel(ctx)
	w.mu.Unlock()

	defer close(w.done)

	if err := w.ensureConsumerGroup(ctx); err != nil {
		return fmt.Errorf("ensure consumer group: %w", err)
	}

	w.logger.Info("usage sync worker started")

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("usage sync worker stopping")
			return nil
		default:
			if err := w.processOnce(ctx); err != nil {
				if errors.Is(err, context.Canceled) {
					return nil
				}
				w.logger.Error("process error", "error", err)
				time.Sleep(time.Second)
			}
		}
	}
}

// Shutdown gracefully stops the worker, completing any in-flight batch.
// It implements server.ShutdownFunc for integration with graceful shutdown.
func (w *Worker) Shutdown(ctx context.Context) error {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return nil
	}
	cancel := w.cancel
	done := w.done
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	select {
	case <-done:
		w.logger.Info("usage sync worker shutdown complete")
		return nil
	case <-ctx.Done():
		w.logger.Warn("usage sync worker shutdown timed out")
		return ctx.Err()
	}
}

// ensureConsumerGroup creates the consumer group if it doesn't exist.
func (w *Worker) ensureConsumerGroup(ctx context.Context) error {
	err := w.redis.XGroupCreateMkStream(ctx, StreamKey, ConsumerGroup, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return err
	}
	return nil
}

// processOnce reads and processes a single batch.
func (w *Worker) processOnce(ctx context.Context) error {
	w.maybeUpdateQueueDepth(ctx)

	streams, err := w.redis.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    ConsumerGroup,
		Consumer: w.consumerID,
		Streams:  []string{StreamKey, ">"},
		Count:    int64(w.batchSize),
		Block:    w.blockTimeout,
	}).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("xreadgroup: %w", err)
	}

	var messages []redis.XMessage
	for _, s := range streams {
		messages = append(messages, s.Messages...)
	}
	if len(messages) == 0 {
		return nil
	}

	latest, messageIDs := w.coalesce(messages)
	w.flush(ctx, latest)

	return w.ackMessages(ctx, messageIDs)
}

// coalesce keeps only the newest counter value per user within a batch.
// Events carry absolute values, so intermediate writes can be skipped.
func (w *Worker) coalesce(messages []redis.XMessage) (map[string]Event, []string) {
	latest := make(map[string]Event)
	ids := make([]string, 0, len(messages))

	for _, msg := range messages {
		ids = append(ids, msg.ID)

		payload, ok := msg.Values["payload"].(string)
		if !ok {
			w.logger.Warn("usage event missing payload", "message_id", msg.ID)
			continue
		}

		var event Event
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			w.logger.Warn("malformed usage event", "message_id", msg.ID, "error", err)
			continue
		}
		if event.UserID == "" {
			continue
		}

		if prev, exists := latest[event.UserID]; !exists || event.At >= prev.At {
			latest[event.UserID] = event
		}
	}

	return latest, ids
}

// flush writes the coalesced counters to the provider. The provider
// copy is advisory, so a failed write is logged and dropped; the next
// event for the user carries the counter forward.
func (w *Worker) flush(ctx context.Context, latest map[string]Event) {
	for userID, event := range latest {
		if err := w.store.SetFreeUsage(ctx, userID, int(event.Used)); err != nil {
			w.metrics.IncUsageEventProcessed("failed")
			w.logger.Warn("failed to sync usage to provider",
				"user_id", userID,
				"free_usage", event.Used,
				"error", err,
			)
			continue
		}
		w.metrics.IncUsageEventProcessed("success")

		// The cached identity now carries a stale free_usage; drop it
		// so the next request re-resolves the fresh value.
		if w.invalidator != nil {
			if err := w.invalidator.DeleteIdentity(ctx, userID); err != nil {
				w.logger.Warn("failed to invalidate cached identity",
					"user_id", userID,
					"error", err,
				)
			}
		}
	}
}

// ackMessages acknowledges processed messages.
func (w *Worker) ackMessages(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := w.redis.XAck(ctx, StreamKey, ConsumerGroup, ids...).Err(); err != nil {
		return fmt.Errorf("xack: %w", err)
	}
	return nil
}

// maybeUpdateQueueDepth refreshes the stream depth gauge.
func (w *Worker) maybeUpdateQueueDepth(ctx context.Context) {
	if w.metricsInterval <= 0 {
		return
	}
	if !w.lastMetrics.IsZero() && time.Since(w.lastMetrics) < w.metricsInterval {
		return
	}
	w.lastMetrics = time.Now()

	depth, err := w.redis.XLen(ctx, StreamKey).Result()
	if err != nil {
		return
	}
	w.metrics.SetUsageQueueDepth(depth)
}
