// Package outbox relays committed domain events from the outbox table to the
// message broker. Delivery is at least once: an entry is marked published
// only after the broker acknowledged it, so consumers dedupe on event-id.
package outbox

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"waterlily/internal/platform/kafka"
	"waterlily/internal/platform/metrics"
	"waterlily/internal/profile/models"
)

const (
	DefaultPollInterval = time.Second
	DefaultBatchSize    = 100
)

// Source is the outbox table.
type Source interface {
	PendingOutbox(ctx context.Context, limit int) ([]models.OutboxEntry, error)
	MarkOutboxPublished(ctx context.Context, ids []string, at time.Time) error
}

// Publisher sends a batch to the broker, all or nothing.
type Publisher interface {
	Publish(ctx context.Context, msgs []kafka.Message) error
}

type Relay struct {
	source    Source
	publisher Publisher
	interval  time.Duration
	batchSize int
	logger    *slog.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

type Option func(*Relay)

func WithPollInterval(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.interval = d
		}
	}
}

func WithBatchSize(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) { r.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Relay) { r.metrics = m }
}

func New(source Source, publisher Publisher, opts ...Option) *Relay {
	r := &Relay{
		source:    source,
		publisher: publisher,
		interval:  DefaultPollInterval,
		batchSize: DefaultBatchSize,
		logger:    slog.Default(),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run polls until ctx is cancelled. Failed batches are retried on the next
// tick.
func (r *Relay) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "outbox relay started",
		"poll_interval", r.interval,
		"batch_size", r.batchSize,
	)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if _, err := r.Drain(ctx); err != nil && ctx.Err() == nil {
			r.logger.WarnContext(ctx, "outbox relay pass failed", "error", err)
		}
		select {
		case <-ctx.Done():
			r.logger.InfoContext(ctx, "outbox relay stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Drain publishes batches until the outbox has no pending entries.
func (r *Relay) Drain(ctx context.Context) (int, error) {
	total := 0
	for {
		n, err := r.PublishBatch(ctx)
		total += n
		if err != nil {
			return total, err
		}
		if n < r.batchSize {
			return total, nil
		}
	}
}

// PublishBatch relays up to one batch of pending entries, oldest first.
func (r *Relay) PublishBatch(ctx context.Context) (int, error) {
	entries, err := r.source.PendingOutbox(ctx, r.batchSize)
	if err != nil {
		return 0, fmt.Errorf("load pending outbox: %w", err)
	}
	if len(entries) == 0 {
		return 0, nil
	}

	if err := r.publisher.Publish(ctx, toMessages(entries)); err != nil {
		r.metrics.IncrementOutboxFailures()
		return 0, fmt.Errorf("publish outbox batch: %w", err)
	}

	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	if err := r.source.MarkOutboxPublished(ctx, ids, r.now()); err != nil {
		r.metrics.IncrementOutboxFailures()
		return 0, fmt.Errorf("mark outbox published: %w", err)
	}

	r.metrics.AddOutboxPublished(len(entries))
	r.logger.DebugContext(ctx, "outbox batch published", "count", len(entries))
	return len(entries), nil
}

func toMessages(entries []models.OutboxEntry) []kafka.Message {
	msgs := make([]kafka.Message, len(entries))
	for i, e := range entries {
		msgs[i] = kafka.Message{
			Key:   strconv.FormatInt(e.AggregateID, 10),
			Value: e.Payload,
			Headers: map[string]string{
				"event-id":   e.ID,
				"event-type": e.EventType,
			},
		}
	}
	return msgs
}
