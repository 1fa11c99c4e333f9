// Package audit captures completed lookups as an append-only trail.
// Records flow through a Redis stream so the worker context never
// blocks on Postgres writes.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lookupd/lookupd/internal/metrics"
)

const (
	// StreamKey is the Redis stream for audit records.
	StreamKey = "stream:audit_records"

	// DeadLetterStreamKey holds poison messages for inspection.
	DeadLetterStreamKey = "stream:audit_records:dlq"

	// MaxStreamLen is the approximate max length of the stream.
	MaxStreamLen = 100000

	// PublishTimeout is the max time to wait for a Redis publish.
	PublishTimeout = 100 * time.Millisecond
)

// Payload is the compact wire format for audit records on the stream.
type Payload struct {
	UserKey        string `json:"uk"`
	Query          string `json:"q"`
	Category       string `json:"c"`
	Classification string `json:"cl"`
	Endpoint       string `json:"ep,omitempty"`
	LookedUpAt     int64  `json:"t"` // Unix milliseconds
}

// Publisher enqueues audit records to the Redis stream.
type Publisher struct {
	redis   *redis.Client
	logger  *slog.Logger
	metrics metrics.Recorder
}

// NewPublisher creates an audit record publisher.
func NewPublisher(client *redis.Client, logger *slog.Logger, recorder metrics.Recorder) *Publisher {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Publisher{
		redis:   client,
		logger:  logger.With("component", "audit.publisher"),
		metrics: recorder,
	}
}

// Publish adds a record to the stream synchronously.
func (p *Publisher) Publish(ctx context.Context, record Payload) (string, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("marshal record: %w", err)
	}

	result, err := p.redis.XAdd(ctx, &redis.XAddArgs{
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

	return result, nil
}

// PublishAsync publishes without blocking the caller. A dropped audit
// record is logged but never fails the lookup that produced it.
func (p *Publisher) PublishAsync(record Payload) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), PublishTimeout)
		defer cancel()

		streamID, err := p.Publish(ctx, record)
		if err != nil {
			p.logger.Warn("failed to publish audit record",
				"user_key", record.UserKey,
				"category", record.Category,
				"error", err,
			)
			p.metrics.IncAuditPublished("dropped")
			return
		}

		p.logger.Debug("audit record published",
			"user_key", record.UserKey,
			"stream_id", streamID,
		)
		p.metrics.IncAuditPublished("success")
	}()
}
