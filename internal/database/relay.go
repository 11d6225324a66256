package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var errMalformedPayload = errors.New("outbox payload is not valid JSON")

// StreamWriter appends entries to a Redis stream.
type StreamWriter interface {
	XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd
}

// PendingQueue hands out outbox rows that still need delivery and records
// what happened to them.
type PendingQueue interface {
	GetPending(ctx context.Context, limit int) ([]*OutboxEvent, error)
	MarkProcessed(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, err error) error
}

type RelayConfig struct {
	PollInterval time.Duration
	BatchSize    int
	// Source is stamped into every stream message.
	Source string
}

// Relay copies journaled quotes from the outbox table onto their Redis
// streams. Rows are only marked processed after XADD succeeds, so a crash
// between the two steps redelivers rather than drops.
type Relay struct {
	queue  PendingQueue
	stream StreamWriter
	logger *slog.Logger
	cfg    RelayConfig
}

func NewRelay(queue PendingQueue, stream StreamWriter, logger *slog.Logger, cfg RelayConfig) *Relay {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.Source == "" {
		cfg.Source = "kream-quote"
	}
	return &Relay{
		queue:  queue,
		stream: stream,
		logger: logger.With("component", "relay"),
		cfg:    cfg,
	}
}

// Run drains the outbox, then sleeps for PollInterval, until ctx is done.
// It returns ctx.Err().
func (r *Relay) Run(ctx context.Context) error {
	r.logger.Info("relay running", "poll_interval", r.cfg.PollInterval, "batch_size", r.cfg.BatchSize)

	wait := time.NewTimer(0)
	defer wait.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("relay stopped")
			return ctx.Err()
		case <-wait.C:
		}

		stats, err := r.drain(ctx)
		if err != nil && ctx.Err() == nil {
			r.logger.Error("outbox drain failed", "error", err)
		}
		if stats.sent > 0 || stats.failed > 0 {
			r.logger.Info("outbox drained", "sent", stats.sent, "failed", stats.failed)
		}
		wait.Reset(r.cfg.PollInterval)
	}
}

type drainStats struct {
	sent   int
	failed int
}

// drain keeps pulling batches while they come back full. A batch with any
// failed row ends the pass so failed rows wait out their backoff.
func (r *Relay) drain(ctx context.Context) (drainStats, error) {
	var stats drainStats
	for ctx.Err() == nil {
		batch, err := r.queue.GetPending(ctx, r.cfg.BatchSize)
		if err != nil {
			return stats, fmt.Errorf("read outbox: %w", err)
		}

		failedBefore := stats.failed
		for _, ev := range batch {
			if r.deliver(ctx, ev) {
				stats.sent++
			} else {
				stats.failed++
			}
		}

		if len(batch) < r.cfg.BatchSize || stats.failed > failedBefore {
			return stats, nil
		}
	}
	return stats, ctx.Err()
}

// deliver reports whether ev reached its stream and was marked processed.
func (r *Relay) deliver(ctx context.Context, ev *OutboxEvent) bool {
	log := r.logger.With("outbox_id", ev.ID, "model", ev.AggregateID)

	id, err := r.publish(ctx, ev)
	if err != nil {
		log.Warn("stream write failed", "attempt", ev.RetryCount+1, "error", err)
		if markErr := r.queue.MarkFailed(ctx, ev.ID, err); markErr != nil {
			log.Error("could not record delivery failure", "error", markErr)
		}
		return false
	}

	if err := r.queue.MarkProcessed(ctx, ev.ID); err != nil {
		// Already on the stream; the row will be sent again next pass.
		log.Error("could not mark delivered row", "stream_id", id, "error", err)
		return false
	}

	log.Debug("delivered", "stream", ev.TargetStream, "stream_id", id)
	return true
}

type streamMessage struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	Timestamp     time.Time       `json:"timestamp"`
	Payload       json.RawMessage `json:"payload"`
	Metadata      messageMetadata `json:"metadata"`
}

type messageMetadata struct {
	Source     string `json:"source"`
	OutboxID   string `json:"outbox_id"`
	RetryCount int    `json:"retry_count"`
}

func (r *Relay) message(ev *OutboxEvent) streamMessage {
	return streamMessage{
		ID:            ev.ID.String(),
		Type:          ev.EventType,
		AggregateType: ev.AggregateType,
		AggregateID:   ev.AggregateID,
		Timestamp:     ev.CreatedAt.UTC(),
		Payload:       ev.Payload,
		Metadata: messageMetadata{
			Source:     r.cfg.Source,
			OutboxID:   ev.ID.String(),
			RetryCount: ev.RetryCount,
		},
	}
}

// publish writes ev to its stream and returns the entry ID Redis assigned.
// The top-level fields let consumers filter without decoding data.
func (r *Relay) publish(ctx context.Context, ev *OutboxEvent) (string, error) {
	if !json.Valid(ev.Payload) {
		return "", errMalformedPayload
	}

	data, err := json.Marshal(r.message(ev))
	if err != nil {
		return "", fmt.Errorf("encode stream message: %w", err)
	}

	id, err := r.stream.XAdd(ctx, &redis.XAddArgs{
		Stream: ev.TargetStream,
		Values: map[string]interface{}{
			"data":       string(data),
			"event_type": ev.EventType,
			"model":      ev.AggregateID,
			"outbox_id":  ev.ID.String(),
			"created_at": ev.CreatedAt.UTC().Format(time.RFC3339Nano),
		},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("xadd %s: %w", ev.TargetStream, err)
	}
	return id, nil
}
