// Package events records finished searches and staging runs together with
// their domain events through the transactional outbox.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/maltedev/domeme-scraper/internal/database"
	"github.com/maltedev/domeme-scraper/internal/models"
	"github.com/maltedev/domeme-scraper/internal/search"
	"github.com/maltedev/domeme-scraper/internal/staging"
)

type EventType string

const (
	EventTypeSearchCompleted EventType = "SEARCH_COMPLETED"
	EventTypeBatchStaged     EventType = "BATCH_STAGED"
)

// SearchCompletedPayload is published once per keyword search.
type SearchCompletedPayload struct {
	EventID    string    `json:"event_id"`
	EventType  string    `json:"event_type"`
	Timestamp  time.Time `json:"timestamp"`
	RunID      string    `json:"run_id"`
	Source     string    `json:"source"`
	Keyword    string    `json:"keyword"`
	Pages      int       `json:"pages"`
	Records    int       `json:"records"`
	ProductIDs []string  `json:"product_ids"`
	StopReason string    `json:"stop_reason,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// BatchStagedPayload is published once per staging run, successful or not.
type BatchStagedPayload struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
	BatchID   string    `json:"batch_id"`
	Source    string    `json:"source"`
	Keyword   string    `json:"keyword,omitempty"`
	Success   bool      `json:"success"`
	Stage     string    `json:"stage"`
	Selected  []string  `json:"selected"`
	Missing   []string  `json:"missing,omitempty"`
	Error     string    `json:"error,omitempty"`
}

type Transactor interface {
	Transaction(ctx context.Context, fn func(pgx.Tx) error) error
}

type Store interface {
	InsertSearchRunTx(ctx context.Context, tx pgx.Tx, run *database.SearchRun) error
	UpsertRecordsTx(ctx context.Context, tx pgx.Tx, runID uuid.UUID, records []models.ProductRecord) error
	InsertStagingBatchTx(ctx context.Context, tx pgx.Tx, b *database.StagingBatch) error
}

type Outbox interface {
	InsertWithTx(ctx context.Context, tx pgx.Tx, event *database.OutboxEvent) error
}

// Publisher writes rows and their outbox event in one transaction.
type Publisher struct {
	db     Transactor
	store  Store
	outbox Outbox
	stream string
	now    func() time.Time
	logger *slog.Logger
}

func NewPublisher(db Transactor, store Store, outbox Outbox, stream string, logger *slog.Logger) *Publisher {
	if stream == "" {
		stream = database.DefaultStream
	}
	return &Publisher{
		db:     db,
		store:  store,
		outbox: outbox,
		stream: stream,
		now:    time.Now,
		logger: logger.With("component", "event_publisher"),
	}
}

// New wires a publisher onto a database connection.
func New(db *database.DB, stream string, logger *slog.Logger) *Publisher {
	return NewPublisher(db, database.NewRecordStore(db), database.NewOutboxRepository(db), stream, logger)
}

// Write stores records as a finished search. It makes the publisher a
// result sink.
func (p *Publisher) Write(ctx context.Context, source models.Source, keyword string, records []models.ProductRecord) error {
	return p.PublishSearch(ctx, source, &search.Result{Keyword: keyword, Records: records})
}

// PublishSearch stores the run and its records and queues SEARCH_COMPLETED.
func (p *Publisher) PublishSearch(ctx context.Context, source models.Source, res *search.Result) error {
	now := p.now()
	run := &database.SearchRun{
		ID:          uuid.New(),
		Source:      source,
		Keyword:     res.Keyword,
		Pages:       res.Pages,
		RecordCount: len(res.Records),
		StopReason:  string(res.Stop),
		StartedAt:   now.Add(-res.Duration),
		FinishedAt:  now,
	}
	if res.Err != nil {
		run.Error = res.Err.Error()
	}

	payload := SearchCompletedPayload{
		EventID:    uuid.New().String(),
		EventType:  string(EventTypeSearchCompleted),
		Timestamp:  now,
		RunID:      run.ID.String(),
		Source:     string(source),
		Keyword:    res.Keyword,
		Pages:      res.Pages,
		Records:    len(res.Records),
		ProductIDs: models.IDs(res.Records),
		StopReason: string(res.Stop),
		Error:      run.Error,
	}
	event, err := p.event("search_run", run.ID.String(), EventTypeSearchCompleted, payload)
	if err != nil {
		return err
	}

	err = p.db.Transaction(ctx, func(tx pgx.Tx) error {
		if err := p.store.InsertSearchRunTx(ctx, tx, run); err != nil {
			return err
		}
		if err := p.store.UpsertRecordsTx(ctx, tx, run.ID, res.Records); err != nil {
			return err
		}
		return p.outbox.InsertWithTx(ctx, tx, event)
	})
	if err != nil {
		return fmt.Errorf("failed to publish search: %w", err)
	}

	p.logger.Info("search stored",
		"keyword", res.Keyword,
		"records", len(res.Records),
		"run_id", run.ID,
		"outbox_id", event.ID)
	return nil
}

// PublishStaging stores the report and queues BATCH_STAGED.
func (p *Publisher) PublishStaging(ctx context.Context, source models.Source, keyword string, rep *staging.Report) error {
	batch := &database.StagingBatch{
		ID:          uuid.New(),
		Source:      source,
		Keyword:     keyword,
		Stage:       rep.Stage.String(),
		Success:     rep.Success,
		SelectedIDs: rep.Selected,
		MissingIDs:  rep.Missing,
		CreatedAt:   p.now(),
	}
	if rep.Err != nil {
		batch.Error = rep.Err.Error()
	}

	payload := BatchStagedPayload{
		EventID:   uuid.New().String(),
		EventType: string(EventTypeBatchStaged),
		Timestamp: batch.CreatedAt,
		BatchID:   batch.ID.String(),
		Source:    string(source),
		Keyword:   keyword,
		Success:   rep.Success,
		Stage:     batch.Stage,
		Selected:  rep.Selected,
		Missing:   rep.Missing,
		Error:     batch.Error,
	}
	event, err := p.event("staging_batch", batch.ID.String(), EventTypeBatchStaged, payload)
	if err != nil {
		return err
	}

	err = p.db.Transaction(ctx, func(tx pgx.Tx) error {
		if err := p.store.InsertStagingBatchTx(ctx, tx, batch); err != nil {
			return err
		}
		return p.outbox.InsertWithTx(ctx, tx, event)
	})
	if err != nil {
		return fmt.Errorf("failed to publish staging batch: %w", err)
	}

	p.logger.Info("staging batch stored",
		"batch_id", batch.ID,
		"success", rep.Success,
		"stage", batch.Stage,
		"outbox_id", event.ID)
	return nil
}

func (p *Publisher) event(aggregate, id string, typ EventType, payload any) (*database.OutboxEvent, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}
	return &database.OutboxEvent{
		AggregateType: aggregate,
		AggregateID:   id,
		EventType:     string(typ),
		Payload:       data,
		TargetStream:  p.stream,
	}, nil
}
