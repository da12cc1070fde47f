package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/quizbank/importer/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// batchRepository implements BatchRepository on pgxpool.
type batchRepository struct {
	pool *pgxpool.Pool
}

// NewBatchRepository creates a new batch ledger repository.
func NewBatchRepository(pool *pgxpool.Pool) BatchRepository {
	return &batchRepository{pool: pool}
}

const batchColumns = `id, operator_id, operator_name, file_name, file_kind, status,
	total_rows, processed_rows, successful, failed, skipped,
	valid_count, invalid_count, warning_count,
	errors, warnings, created_record_ids,
	created_at, started_at, completed_at`

// Create inserts a fresh ledger row.
func (r *batchRepository) Create(ctx context.Context, batch domain.Batch) (domain.Batch, error) {
	errorsJSON, warningsJSON, err := marshalIssues(batch)
	if err != nil {
		return domain.Batch{}, err
	}

	_, err = r.pool.Exec(
		ctx,
		`INSERT INTO import_batches (`+batchColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`,
		batch.ID,
		batch.Operator.ID,
		batch.Operator.Name,
		batch.Source.FileName,
		batch.Source.FileKind,
		string(batch.Status),
		batch.TotalRows,
		batch.ProcessedRows,
		batch.Successful,
		batch.Failed,
		batch.Skipped,
		batch.Summary.Valid,
		batch.Summary.Invalid,
		batch.Summary.Warnings,
		errorsJSON,
		warningsJSON,
		batch.CreatedRecordIDs,
		batch.CreatedAt,
		batch.StartedAt,
		batch.CompletedAt,
	)
	if err != nil {
		return domain.Batch{}, fmt.Errorf("failed to create import batch: %w", err)
	}

	return batch, nil
}

// Save replaces the persisted ledger with the given snapshot.
func (r *batchRepository) Save(ctx context.Context, batch domain.Batch) error {
	errorsJSON, warningsJSON, err := marshalIssues(batch)
	if err != nil {
		return err
	}

	tag, err := r.pool.Exec(
		ctx,
		`UPDATE import_batches
		 SET status = $2,
		     processed_rows = $3,
		     successful = $4,
		     failed = $5,
		     skipped = $6,
		     valid_count = $7,
		     invalid_count = $8,
		     warning_count = $9,
		     errors = $10,
		     warnings = $11,
		     created_record_ids = $12,
		     started_at = $13,
		     completed_at = $14
		 WHERE id = $1`,
		batch.ID,
		string(batch.Status),
		batch.ProcessedRows,
		batch.Successful,
		batch.Failed,
		batch.Skipped,
		batch.Summary.Valid,
		batch.Summary.Invalid,
		batch.Summary.Warnings,
		errorsJSON,
		warningsJSON,
		batch.CreatedRecordIDs,
		batch.StartedAt,
		batch.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save import batch: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// GetByID loads one ledger.
func (r *batchRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.Batch, error) {
	row := r.pool.QueryRow(
		ctx,
		`SELECT `+batchColumns+` FROM import_batches WHERE id = $1`,
		id,
	)

	batch, err := scanBatch(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Batch{}, ErrNotFound
		}
		return domain.Batch{}, fmt.Errorf("failed to get import batch: %w", err)
	}

	return batch, nil
}

// ListByActor returns recent ledgers for an operator, most recent first.
func (r *batchRepository) ListByActor(ctx context.Context, actorID string, limit int) ([]domain.Batch, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := r.pool.Query(
		ctx,
		`SELECT `+batchColumns+`
		 FROM import_batches
		 WHERE operator_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		actorID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list import batches: %w", err)
	}
	defer rows.Close()

	batches := []domain.Batch{}
	for rows.Next() {
		batch, scanErr := scanBatch(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan import batch: %w", scanErr)
		}
		batches = append(batches, batch)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate import batches: %w", rowsErr)
	}

	return batches, nil
}

// Stats aggregates ledger activity across all operators.
func (r *batchRepository) Stats(ctx context.Context) (BatchStats, error) {
	var stats BatchStats
	err := r.pool.QueryRow(
		ctx,
		`SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status IN ('PENDING', 'VALIDATING', 'PROCESSING')),
			COUNT(*) FILTER (WHERE status IN ('COMPLETED', 'COMPLETED_WITH_ERRORS')),
			COUNT(*) FILTER (WHERE status = 'FAILED'),
			COALESCE(SUM(total_rows), 0),
			COALESCE(SUM(successful), 0)
		 FROM import_batches`,
	).Scan(
		&stats.TotalBatches,
		&stats.InProgressBatches,
		&stats.CompletedBatches,
		&stats.FailedBatches,
		&stats.TotalRows,
		&stats.TotalSuccessful,
	)
	if err != nil {
		return BatchStats{}, fmt.Errorf("failed to aggregate batch stats: %w", err)
	}

	return stats, nil
}

func marshalIssues(batch domain.Batch) ([]byte, []byte, error) {
	errorsJSON, err := json.Marshal(batch.Errors)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal batch errors: %w", err)
	}
	warningsJSON, err := json.Marshal(batch.Warnings)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal batch warnings: %w", err)
	}
	return errorsJSON, warningsJSON, nil
}

func scanBatch(row pgx.Row) (domain.Batch, error) {
	var (
		batch        domain.Batch
		status       string
		errorsJSON   []byte
		warningsJSON []byte
		startedAt    pgtype.Timestamptz
		completedAt  pgtype.Timestamptz
	)
	if err := row.Scan(
		&batch.ID,
		&batch.Operator.ID,
		&batch.Operator.Name,
		&batch.Source.FileName,
		&batch.Source.FileKind,
		&status,
		&batch.TotalRows,
		&batch.ProcessedRows,
		&batch.Successful,
		&batch.Failed,
		&batch.Skipped,
		&batch.Summary.Valid,
		&batch.Summary.Invalid,
		&batch.Summary.Warnings,
		&errorsJSON,
		&warningsJSON,
		&batch.CreatedRecordIDs,
		&batch.CreatedAt,
		&startedAt,
		&completedAt,
	); err != nil {
		return domain.Batch{}, err
	}

	batch.Status = domain.BatchStatus(status)
	if batch.CreatedRecordIDs == nil {
		batch.CreatedRecordIDs = []uuid.UUID{}
	}
	if err := json.Unmarshal(errorsJSON, &batch.Errors); err != nil {
		return domain.Batch{}, fmt.Errorf("failed to unmarshal batch errors: %w", err)
	}
	if err := json.Unmarshal(warningsJSON, &batch.Warnings); err != nil {
		return domain.Batch{}, fmt.Errorf("failed to unmarshal batch warnings: %w", err)
	}
	if startedAt.Valid {
		batch.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		batch.CompletedAt = &completedAt.Time
	}

	return batch, nil
}
