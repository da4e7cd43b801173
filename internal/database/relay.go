package database

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const relaySource = "domeme-scraper"

// RedisClient is the part of the Redis client the relay uses.
type RedisClient interface {
	XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd
	Close() error
}

// OutboxRepo is the part of the outbox repository the relay uses.
type OutboxRepo interface {
	GetPending(ctx context.Context, limit int) ([]*OutboxEvent, error)
	MarkProcessed(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, err error) error
	CountByStatus(ctx context.Context, statuses ...string) (int64, error)
}

// Relay moves outbox events to Redis streams.
type Relay struct {
	redis     RedisClient
	outbox    OutboxRepo
	logger    *slog.Logger
	interval  time.Duration
	batchSize int
}

type RelayConfig struct {
	PollInterval time.Duration
	BatchSize    int
}

func NewRelay(outbox OutboxRepo, redisClient RedisClient, logger *slog.Logger, config RelayConfig) *Relay {
	if config.PollInterval == 0 {
		config.PollInterval = 5 * time.Second
	}
	if config.BatchSize == 0 {
		config.BatchSize = 100
	}

	return &Relay{
		redis:     redisClient,
		outbox:    outbox,
		logger:    logger.With("component", "relay"),
		interval:  config.PollInterval,
		batchSize: config.BatchSize,
	}
}

// Start relays due events every poll interval until ctx is done.
func (r *Relay) Start(ctx context.Context) error {
	r.logger.Info("starting relay", "interval", r.interval, "batch_size", r.batchSize)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if err := r.processEvents(ctx); err != nil {
			r.logger.Error("relay pass failed", "error", err)
		}
		select {
		case <-ctx.Done():
			r.logger.Info("relay stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// processEvents relays one batch. Failed events are scheduled for retry by
// the outbox; only a failure to fetch the batch is returned.
func (r *Relay) processEvents(ctx context.Context) error {
	events, err := r.outbox.GetPending(ctx, r.batchSize)
	if err != nil {
		return fmt.Errorf("failed to get pending events: %w", err)
	}
	if len(events) == 0 {
		return nil
	}

	var relayed, failed int
	for _, event := range events {
		if err := r.relay(ctx, event); err != nil {
			failed++
			r.logger.Warn("event not relayed",
				"event_id", event.ID,
				"event_type", event.EventType,
				"retry_count", event.RetryCount,
				"error", err)
			continue
		}
		relayed++
	}

	r.logger.Debug("relay pass done", "relayed", relayed, "failed", failed)
	return nil
}

func (r *Relay) relay(ctx context.Context, event *OutboxEvent) error {
	if err := r.publishToRedis(ctx, event); err != nil {
		if markErr := r.outbox.MarkFailed(ctx, event.ID, err); markErr != nil {
			r.logger.Error("failed to record relay failure", "event_id", event.ID, "error", markErr)
		}
		return err
	}
	if err := r.outbox.MarkProcessed(ctx, event.ID); err != nil {
		return fmt.Errorf("published but not marked: %w", err)
	}
	return nil
}

// streamEnvelope is the JSON document carried in the "data" field of each
// stream entry.
type streamEnvelope struct {
	ID            string         `json:"id"`
	Type          string         `json:"type"`
	AggregateType string         `json:"aggregate_type"`
	AggregateID   string         `json:"aggregate_id"`
	Timestamp     string         `json:"timestamp"`
	Payload       map[string]any `json:"payload"`
	Metadata      streamMetadata `json:"metadata"`
}

type streamMetadata struct {
	Source       string `json:"source"`
	OutboxID     string `json:"outbox_id"`
	RetryCount   int    `json:"retry_count"`
	TargetStream string `json:"target_stream"`
}

func (r *Relay) publishToRedis(ctx context.Context, event *OutboxEvent) error {
	env := streamEnvelope{
		ID:            event.ID.String(),
		Type:          event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Timestamp:     event.CreatedAt.Format(time.RFC3339),
		Metadata: streamMetadata{
			Source:       relaySource,
			OutboxID:     event.ID.String(),
			RetryCount:   event.RetryCount,
			TargetStream: event.TargetStream,
		},
	}
	if err := json.Unmarshal(event.Payload, &env.Payload); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal stream data: %w", err)
	}

	err = r.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: event.TargetStream,
		Values: map[string]any{
			"data":           string(data),
			"type":           event.EventType,
			"event_type":     event.EventType,
			"aggregate_type": event.AggregateType,
			"aggregate_id":   event.AggregateID,
			"original_id":    env.ID,
			"timestamp":      strconv.FormatInt(event.CreatedAt.UnixNano(), 10),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to publish to redis: %w", err)
	}
	return nil
}

// PendingCount counts events still to be relayed, including retries.
func (r *Relay) PendingCount(ctx context.Context) (int64, error) {
	return r.outbox.CountByStatus(ctx, OutboxStatusPending, OutboxStatusFailed)
}

func (r *Relay) DeadLetterCount(ctx context.Context) (int64, error) {
	return r.outbox.CountByStatus(ctx, OutboxStatusDeadLetter)
}
