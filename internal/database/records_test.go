package database

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/domeme-scraper/internal/models"
)

func TestRecordStore_UpsertRecords(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	defer db.Close()

	store := NewRecordStore(db)
	first := time.Now().Add(-time.Hour).Truncate(time.Second)
	price := 15000

	run := func(records []models.ProductRecord) uuid.UUID {
		r := &SearchRun{Source: models.SourceDomeggook, Keyword: "양말", StartedAt: first, FinishedAt: first}
		require.NoError(t, db.Transaction(ctx, func(tx pgx.Tx) error {
			if err := store.InsertSearchRunTx(ctx, tx, r); err != nil {
				return err
			}
			return store.UpsertRecordsTx(ctx, tx, r.ID, records)
		}))
		return r.ID
	}

	run([]models.ProductRecord{{
		Source: models.SourceDomeggook, ProductID: "100001", Name: "면 양말",
		PriceDisplay: "15,000원", PriceValue: &price, SearchKeyword: "양말", CollectedAt: first,
	}})
	second := run([]models.ProductRecord{{
		Source: models.SourceDomeggook, ProductID: "100001", Name: "면 양말 10켤레",
		PriceDisplay: "가격문의", SearchKeyword: "양말", CollectedAt: first.Add(time.Minute),
	}})

	recs, err := store.RecordsByKeyword(ctx, models.SourceDomeggook, "양말")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "면 양말 10켤레", recs[0].Name)
	assert.Nil(t, recs[0].PriceValue)

	var firstSeen time.Time
	var lastRun uuid.UUID
	err = db.QueryRow(ctx,
		"SELECT first_seen_at, last_run_id FROM product_record WHERE source = $1 AND dedup_key = $2",
		string(models.SourceDomeggook), recs[0].DedupKey()).Scan(&firstSeen, &lastRun)
	require.NoError(t, err)
	assert.True(t, firstSeen.Equal(first))
	assert.Equal(t, second, lastRun)
}

func TestRecordStore_InsertStagingBatch(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	defer db.Close()

	store := NewRecordStore(db)
	b := &StagingBatch{Source: models.SourceDomeggook, Keyword: "양말", Stage: "done", Success: true, SelectedIDs: []string{"100001"}}
	require.NoError(t, db.Transaction(ctx, func(tx pgx.Tx) error {
		return store.InsertStagingBatchTx(ctx, tx, b)
	}))
	assert.NotEqual(t, uuid.Nil, b.ID)

	var selected, missing []string
	err := db.QueryRow(ctx, "SELECT selected_ids, missing_ids FROM staging_batch WHERE id = $1", b.ID).Scan(&selected, &missing)
	require.NoError(t, err)
	assert.Equal(t, []string{"100001"}, selected)
	assert.Empty(t, missing)
}
