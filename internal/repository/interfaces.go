package repository

import (
	"context"
	"errors"

	"github.com/quizbank/importer/internal/domain"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// DeletedQuestion identifies one row removed by a bulk delete.
type DeletedQuestion struct {
	ID   uuid.UUID
	Code string
}

// QuestionFilter narrows a question listing. Nil fields match everything.
type QuestionFilter struct {
	Subject *int
	Topic   *int
	Limit   int
}

// QuestionRepository defines the store operations the import pipeline needs.
type QuestionRepository interface {
	Create(ctx context.Context, question domain.Question) (domain.Question, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.Question, error)
	CodeExists(ctx context.Context, code string) (bool, error)
	CountByClassification(ctx context.Context, subject, topic int) (int64, error)
	// List returns questions matching the filter ordered by code.
	List(ctx context.Context, filter QuestionFilter) ([]domain.Question, error)
	// DeleteByIDs bulk deletes and returns the rows actually removed, so
	// callers can tell a verified delete from a no-op.
	DeleteByIDs(ctx context.Context, ids []uuid.UUID) ([]DeletedQuestion, error)
}

// BatchStats aggregates ledger activity for the operator dashboard.
type BatchStats struct {
	TotalBatches      int64 `json:"total_batches"`
	InProgressBatches int64 `json:"in_progress_batches"`
	CompletedBatches  int64 `json:"completed_batches"`
	FailedBatches     int64 `json:"failed_batches"`
	TotalRows         int64 `json:"total_rows"`
	TotalSuccessful   int64 `json:"total_successful"`
}

// BatchRepository persists import ledgers. Save replaces the whole row; the
// ledger snapshot is the unit of persistence.
type BatchRepository interface {
	Create(ctx context.Context, batch domain.Batch) (domain.Batch, error)
	Save(ctx context.Context, batch domain.Batch) error
	GetByID(ctx context.Context, id uuid.UUID) (domain.Batch, error)
	ListByActor(ctx context.Context, actorID string, limit int) ([]domain.Batch, error)
	Stats(ctx context.Context) (BatchStats, error)
}

// AuditRepository stores the append-only audit trail.
type AuditRepository interface {
	Record(ctx context.Context, entry domain.AuditEntry) error
	ListByBatch(ctx context.Context, batchID uuid.UUID, limit int) ([]domain.AuditEntry, error)
	ListByRecord(ctx context.Context, recordID uuid.UUID, limit int) ([]domain.AuditEntry, error)
	ListByActor(ctx context.Context, actorID string, limit int) ([]domain.AuditEntry, error)
}
