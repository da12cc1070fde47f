package importer

import (
	"context"
	"math"

	"github.com/quizbank/importer/internal/domain"

	"github.com/google/uuid"
)

// Progress is the pollable snapshot of one batch. It carries only a bounded
// window of trailing errors; the full history stays on the ledger and in the
// audit log.
type Progress struct {
	BatchID            uuid.UUID          `json:"batch_id"`
	Status             domain.BatchStatus `json:"status"`
	ProgressPercentage int                `json:"progress_percentage"`
	ProcessedRows      int                `json:"processed_rows"`
	TotalRows          int                `json:"total_rows"`
	Successful         int                `json:"successful"`
	Failed             int                `json:"failed"`
	Skipped            int                `json:"skipped"`
	Errors             []domain.RowIssue  `json:"errors"`
	IsComplete         bool               `json:"is_complete"`
}

// BuildProgress projects a ledger snapshot into a progress report. Reading is
// safe alongside an active processor: the reader only ever sees whole
// persisted snapshots, never a ledger mid-update.
func BuildProgress(batch domain.Batch, errorWindow int) Progress {
	percentage := 0
	if batch.TotalRows > 0 {
		percentage = int(math.Round(100 * float64(batch.ProcessedRows) / float64(batch.TotalRows)))
	}

	errs := batch.Errors
	if errorWindow > 0 && len(errs) > errorWindow {
		errs = errs[len(errs)-errorWindow:]
	}

	return Progress{
		BatchID:            batch.ID,
		Status:             batch.Status,
		ProgressPercentage: percentage,
		ProcessedRows:      batch.ProcessedRows,
		TotalRows:          batch.TotalRows,
		Successful:         batch.Successful,
		Failed:             batch.Failed,
		Skipped:            batch.Skipped,
		Errors:             append([]domain.RowIssue(nil), errs...),
		IsComplete:         batch.Status.Terminal(),
	}
}

// Progress loads the ledger and projects it into a snapshot.
func (s *Service) Progress(ctx context.Context, batchID uuid.UUID) (Progress, error) {
	batch, err := s.batches.GetByID(ctx, batchID)
	if err != nil {
		return Progress{}, err
	}
	return BuildProgress(batch, s.cfg.ErrorWindow), nil
}
