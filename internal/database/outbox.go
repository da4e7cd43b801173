package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const (
	OutboxStatusPending    = "pending"
	OutboxStatusProcessed  = "processed"
	OutboxStatusFailed     = "failed"
	OutboxStatusDeadLetter = "dead_letter"

	// MaxRetryCount is the number of failed publishes after which an event
	// moves to the dead letter state.
	MaxRetryCount = 5

	DefaultStream = "stream:domeme_events"
)

// OutboxEvent is a domain event waiting to be relayed to Redis.
type OutboxEvent struct {
	ID            uuid.UUID       `db:"id"`
	AggregateType string          `db:"aggregate_type"`
	AggregateID   string          `db:"aggregate_id"`
	EventType     string          `db:"event_type"`
	Payload       json.RawMessage `db:"payload"`
	TargetStream  string          `db:"target_stream"`
	Status        string          `db:"status"`
	RetryCount    int             `db:"retry_count"`
	ErrorMessage  *string         `db:"error_message"`
	CreatedAt     time.Time       `db:"created_at"`
	ProcessedAt   *time.Time      `db:"processed_at"`
	NextRetryAt   *time.Time      `db:"next_retry_at"`
}

// prepare fills defaults before insert.
func (e *OutboxEvent) prepare(now time.Time) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.Status == "" {
		e.Status = OutboxStatusPending
	}
	if e.TargetStream == "" {
		e.TargetStream = DefaultStream
	}
	e.CreatedAt = now
	if e.NextRetryAt == nil {
		e.NextRetryAt = &now
	}
}

type OutboxRepository struct {
	db *DB
}

func NewOutboxRepository(db *DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

const outboxColumns = `id, aggregate_type, aggregate_id, event_type, payload, target_stream,
	status, retry_count, error_message, created_at, processed_at, next_retry_at`

// InsertWithTx adds event to the outbox as part of tx. The event is only
// visible to the relay once tx commits.
func (r *OutboxRepository) InsertWithTx(ctx context.Context, tx pgx.Tx, event *OutboxEvent) error {
	event.prepare(time.Now())

	_, err := tx.Exec(ctx,
		`INSERT INTO outbox_event (`+outboxColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		event.ID, event.AggregateType, event.AggregateID, event.EventType, event.Payload, event.TargetStream,
		event.Status, event.RetryCount, event.ErrorMessage, event.CreatedAt, event.ProcessedAt, event.NextRetryAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert outbox event %s: %w", event.EventType, err)
	}
	return nil
}

// GetPending returns up to limit events that are due: pending ones and
// failed ones whose retry time has passed. Oldest first.
func (r *OutboxRepository) GetPending(ctx context.Context, limit int) ([]*OutboxEvent, error) {
	rows, err := r.db.pool.Query(ctx,
		`SELECT `+outboxColumns+`
		FROM outbox_event
		WHERE status = ANY($1) AND next_retry_at <= now()
		ORDER BY created_at
		LIMIT $2`,
		[]string{OutboxStatusPending, OutboxStatusFailed}, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending events: %w", err)
	}

	events, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[OutboxEvent])
	if err != nil {
		return nil, fmt.Errorf("failed to read pending events: %w", err)
	}
	return events, nil
}

func (r *OutboxRepository) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.pool.Exec(ctx,
		`UPDATE outbox_event SET status = $1, processed_at = now(), error_message = NULL WHERE id = $2`,
		OutboxStatusProcessed, id)
	if err != nil {
		return fmt.Errorf("failed to mark event %s processed: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("outbox event %s not found", id)
	}
	return nil
}

// MarkFailed counts one more failed publish for id. The row is locked while
// the next retry time is computed so concurrent relays cannot lose a count.
func (r *OutboxRepository) MarkFailed(ctx context.Context, id uuid.UUID, processErr error) error {
	return r.db.Transaction(ctx, func(tx pgx.Tx) error {
		var retries int
		err := tx.QueryRow(ctx,
			`SELECT retry_count FROM outbox_event WHERE id = $1 FOR UPDATE`, id).Scan(&retries)
		if err != nil {
			return fmt.Errorf("failed to lock outbox event %s: %w", id, err)
		}

		retries++
		status, next := retryState(retries, time.Now())
		_, err = tx.Exec(ctx,
			`UPDATE outbox_event
			SET status = $1, retry_count = $2, error_message = $3, next_retry_at = $4
			WHERE id = $5`,
			status, retries, processErr.Error(), next, id)
		if err != nil {
			return fmt.Errorf("failed to mark event %s failed: %w", id, err)
		}
		return nil
	})
}

// CountByStatus returns the number of events in any of statuses.
func (r *OutboxRepository) CountByStatus(ctx context.Context, statuses ...string) (int64, error) {
	var n int64
	err := r.db.pool.QueryRow(ctx,
		`SELECT count(*) FROM outbox_event WHERE status = ANY($1)`, statuses).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count outbox events: %w", err)
	}
	return n, nil
}

// retryState decides the status after the retryCount-th failure. Backoff
// doubles from 2s and is capped at five minutes.
func retryState(retryCount int, now time.Time) (string, time.Time) {
	status := OutboxStatusFailed
	if retryCount >= MaxRetryCount {
		status = OutboxStatusDeadLetter
	}
	backoff := 300 * time.Second
	if retryCount < 9 {
		if b := time.Duration(1<<retryCount) * time.Second; b < backoff {
			backoff = b
		}
	}
	return status, now.Add(backoff)
}
