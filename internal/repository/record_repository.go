package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"snapfeed/internal/models"
	"snapfeed/internal/pipeline"
)

type RecordRepository struct {
	pool *pgxpool.Pool
}

func NewRecordRepository(pool *pgxpool.Pool) *RecordRepository {
	return &RecordRepository{pool: pool}
}

const recordColumns = `id, owner_id, caption, original_key, thumbnail_key, medium_key, failed_at, failure_reason, created_at, updated_at`

func (r *RecordRepository) Create(ctx context.Context, record models.MediaRecord) error {
	const query = `
		INSERT INTO media_records (
			id, owner_id, caption, original_key, thumbnail_key, medium_key, failed_at, failure_reason, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10
		)
	`

	_, err := r.pool.Exec(ctx, query,
		record.ID,
		record.OwnerID,
		record.Caption,
		record.OriginalKey,
		record.ThumbnailKey,
		record.MediumKey,
		record.FailedAt,
		record.FailureReason,
		record.CreatedAt,
		record.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert record: %w: %w", pipeline.ErrRecordStoreUnavailable, err)
	}
	return nil
}

func (r *RecordRepository) GetByID(ctx context.Context, id string) (models.MediaRecord, error) {
	const query = `SELECT ` + recordColumns + ` FROM media_records WHERE id = $1`

	record, err := scanRecord(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.MediaRecord{}, fmt.Errorf("record %s: %w", id, pipeline.ErrNotFound)
		}
		return models.MediaRecord{}, fmt.Errorf("get record: %w: %w", pipeline.ErrRecordStoreUnavailable, err)
	}
	return record, nil
}

// SetDerivedKeys publishes both derived keys in a single overwrite. Applying
// it again with the same keys leaves the row in the same state, which is what
// makes redelivered jobs converge.
func (r *RecordRepository) SetDerivedKeys(ctx context.Context, id, thumbnailKey, mediumKey string) error {
	const query = `
		UPDATE media_records
		SET thumbnail_key = $2,
		    medium_key = $3,
		    updated_at = NOW()
		WHERE id = $1
	`

	tag, err := r.pool.Exec(ctx, query, id, thumbnailKey, mediumKey)
	if err != nil {
		return fmt.Errorf("set derived keys: %w: %w", pipeline.ErrRecordStoreUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("record %s: %w", id, pipeline.ErrNotFound)
	}
	return nil
}

// MarkFailed stamps a pending record as permanently failed. Records already
// derived are left alone; marking an already-failed record just refreshes the
// reason, which keeps the operation safe under redelivery.
func (r *RecordRepository) MarkFailed(ctx context.Context, id, reason string) error {
	const query = `
		UPDATE media_records
		SET failed_at = NOW(),
		    failure_reason = $2,
		    updated_at = NOW()
		WHERE id = $1 AND thumbnail_key IS NULL
	`

	tag, err := r.pool.Exec(ctx, query, id, reason)
	if err != nil {
		return fmt.Errorf("mark failed: %w: %w", pipeline.ErrRecordStoreUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("record %s: %w", id, pipeline.ErrNotFound)
	}
	return nil
}

// ListPendingOlderThan returns records whose derivation has not completed
// within the given cutoff. Monitoring and the reconciliation sweep use it to
// find stuck records; permanently failed ones are excluded so the sweep does
// not resurrect dead jobs forever.
func (r *RecordRepository) ListPendingOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]models.MediaRecord, error) {
	const query = `
		SELECT ` + recordColumns + `
		FROM media_records
		WHERE thumbnail_key IS NULL AND failed_at IS NULL AND created_at < $1
		ORDER BY created_at ASC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending: %w: %w", pipeline.ErrRecordStoreUnavailable, err)
	}
	defer rows.Close()

	return collectRecords(rows)
}

func (r *RecordRepository) ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]models.MediaRecord, error) {
	const query = `
		SELECT ` + recordColumns + `
		FROM media_records
		WHERE owner_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.pool.Query(ctx, query, ownerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list by owner: %w: %w", pipeline.ErrRecordStoreUnavailable, err)
	}
	defer rows.Close()

	return collectRecords(rows)
}

func (r *RecordRepository) List(ctx context.Context, limit, offset int) ([]models.MediaRecord, error) {
	const query = `
		SELECT ` + recordColumns + `
		FROM media_records
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`

	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list records: %w: %w", pipeline.ErrRecordStoreUnavailable, err)
	}
	defer rows.Close()

	return collectRecords(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (models.MediaRecord, error) {
	var record models.MediaRecord
	err := row.Scan(
		&record.ID,
		&record.OwnerID,
		&record.Caption,
		&record.OriginalKey,
		&record.ThumbnailKey,
		&record.MediumKey,
		&record.FailedAt,
		&record.FailureReason,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	return record, err
}

func collectRecords(rows pgx.Rows) ([]models.MediaRecord, error) {
	var records []models.MediaRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w: %w", pipeline.ErrRecordStoreUnavailable, err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w: %w", pipeline.ErrRecordStoreUnavailable, err)
	}
	return records, nil
}
