package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/maltedev/domeme-scraper/internal/models"
)

// SearchRun is one finished keyword search.
type SearchRun struct {
	ID          uuid.UUID
	Source      models.Source
	Keyword     string
	Pages       int
	RecordCount int
	StopReason  string
	Error       string
	StartedAt   time.Time
	FinishedAt  time.Time
}

// StagingBatch is one run of the staging workflow.
type StagingBatch struct {
	ID          uuid.UUID
	Source      models.Source
	Keyword     string
	Stage       string
	Success     bool
	SelectedIDs []string
	MissingIDs  []string
	Error       string
	CreatedAt   time.Time
}

// RecordStore persists search runs, product records and staging batches.
type RecordStore struct {
	db *DB
}

func NewRecordStore(db *DB) *RecordStore {
	return &RecordStore{db: db}
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (s *RecordStore) InsertSearchRunTx(ctx context.Context, tx pgx.Tx, run *SearchRun) error {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	query := `
		INSERT INTO search_run (
			id, source, keyword, pages, record_count,
			stop_reason, error_message, started_at, finished_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := tx.Exec(ctx, query,
		run.ID, string(run.Source), run.Keyword, run.Pages, run.RecordCount,
		run.StopReason, nullable(run.Error), run.StartedAt, run.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert search run: %w", err)
	}
	return nil
}

// UpsertRecordsTx stores records keyed by source and dedup key. A record
// seen again keeps its first_seen_at and takes the newer fields.
func (s *RecordStore) UpsertRecordsTx(ctx context.Context, tx pgx.Tx, runID uuid.UUID, records []models.ProductRecord) error {
	if len(records) == 0 {
		return nil
	}

	query := `
		INSERT INTO product_record (
			source, dedup_key, product_id, name, price_display, price_value,
			link, image, seller, grade, fast_delivery, search_keyword,
			last_run_id, first_seen_at, last_seen_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $14)
		ON CONFLICT (source, dedup_key) DO UPDATE SET
			name = EXCLUDED.name,
			price_display = EXCLUDED.price_display,
			price_value = EXCLUDED.price_value,
			link = EXCLUDED.link,
			image = EXCLUDED.image,
			seller = EXCLUDED.seller,
			grade = EXCLUDED.grade,
			fast_delivery = EXCLUDED.fast_delivery,
			search_keyword = EXCLUDED.search_keyword,
			last_run_id = EXCLUDED.last_run_id,
			last_seen_at = EXCLUDED.last_seen_at`

	batch := &pgx.Batch{}
	for _, r := range records {
		seen := r.CollectedAt
		if seen.IsZero() {
			seen = time.Now()
		}
		batch.Queue(query,
			string(r.Source), r.DedupKey(), r.ProductID, r.Name, r.PriceDisplay, r.PriceValue,
			r.Link, r.Image, r.Seller, r.Grade, r.FastDelivery, r.SearchKeyword,
			runID, seen,
		)
	}

	br := tx.SendBatch(ctx, batch)
	for range records {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("failed to upsert product record: %w", err)
		}
	}
	return br.Close()
}

func (s *RecordStore) InsertStagingBatchTx(ctx context.Context, tx pgx.Tx, b *StagingBatch) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now()
	}
	selected, missing := b.SelectedIDs, b.MissingIDs
	if selected == nil {
		selected = []string{}
	}
	if missing == nil {
		missing = []string{}
	}

	query := `
		INSERT INTO staging_batch (
			id, source, keyword, stage, success,
			selected_ids, missing_ids, error_message, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := tx.Exec(ctx, query,
		b.ID, string(b.Source), b.Keyword, b.Stage, b.Success,
		selected, missing, nullable(b.Error), b.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert staging batch: %w", err)
	}
	return nil
}

// RecordsByKeyword returns stored records last produced by keyword.
func (s *RecordStore) RecordsByKeyword(ctx context.Context, source models.Source, keyword string) ([]models.ProductRecord, error) {
	query := `
		SELECT source, product_id, name, price_display, price_value,
			link, image, seller, grade, fast_delivery, search_keyword, last_seen_at
		FROM product_record
		WHERE source = $1 AND search_keyword = $2
		ORDER BY last_seen_at DESC`

	rows, err := s.db.pool.Query(ctx, query, string(source), keyword)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var out []models.ProductRecord
	for rows.Next() {
		var r models.ProductRecord
		var src string
		if err := rows.Scan(&src, &r.ProductID, &r.Name, &r.PriceDisplay, &r.PriceValue,
			&r.Link, &r.Image, &r.Seller, &r.Grade, &r.FastDelivery, &r.SearchKeyword, &r.CollectedAt); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		r.Source = models.Source(src)
		out = append(out, r)
	}
	return out, rows.Err()
}
