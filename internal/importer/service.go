package importer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/quizbank/importer/internal/config"
	"github.com/quizbank/importer/internal/domain"
	"github.com/quizbank/importer/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrAlreadyProcessing is returned when Process is invoked twice for one batch.
	ErrAlreadyProcessing = errors.New("batch is already being processed")
)

// Service drives the import pipeline: ledger lifecycle, validation, chunked
// processing, progress, cancellation and rollback.
type Service struct {
	batches   repository.BatchRepository
	questions repository.QuestionRepository
	audit     repository.AuditRepository
	validator *Validator
	cfg       config.Import
	log       *zap.SugaredLogger

	mu     sync.Mutex
	active map[uuid.UUID]*processHandle
}

// processHandle is the background task handle for one running batch. Cancel
// is a cooperative request; the processor honors it between chunks.
type processHandle struct {
	cancelOnce sync.Once
	cancel     chan struct{}
	done       chan struct{}
}

func newProcessHandle() *processHandle {
	return &processHandle{
		cancel: make(chan struct{}),
		done:   make(chan struct{}),
	}
}

func (h *processHandle) requestCancel() {
	h.cancelOnce.Do(func() { close(h.cancel) })
}

func (h *processHandle) cancelRequested() bool {
	select {
	case <-h.cancel:
		return true
	default:
		return false
	}
}

// NewService creates the import service. A nil rules capability falls back to
// the base rule set.
func NewService(
	batches repository.BatchRepository,
	questions repository.QuestionRepository,
	audit repository.AuditRepository,
	rules Rules,
	cfg config.Import,
	log *zap.SugaredLogger,
) *Service {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 50
	}
	if cfg.ErrorWindow <= 0 {
		cfg.ErrorWindow = 20
	}
	return &Service{
		batches:   batches,
		questions: questions,
		audit:     audit,
		validator: NewValidator(questions, rules, cfg),
		cfg:       cfg,
		log:       log,
		active:    map[uuid.UUID]*processHandle{},
	}
}

// InitializeBatch creates a PENDING ledger for totalRows submitted records.
func (s *Service) InitializeBatch(ctx context.Context, operator domain.Actor, source domain.Source, totalRows int) (domain.Batch, error) {
	batch, err := s.batches.Create(ctx, domain.NewBatch(operator, source, totalRows))
	if err != nil {
		return domain.Batch{}, fmt.Errorf("failed to initialize batch: %w", err)
	}
	s.log.Infow("batch initialized",
		"batch_id", batch.ID,
		"operator", operator.ID,
		"total_rows", totalRows,
	)
	return batch, nil
}

// Validate runs the validator over all records, writes the outcome onto the
// ledger and moves it to VALIDATING. No records are created here.
func (s *Service) Validate(ctx context.Context, batch domain.Batch, records []RecordInput) (domain.Batch, ValidationResult, error) {
	result, err := s.validator.Validate(ctx, records)
	if err != nil {
		return batch, ValidationResult{}, err
	}

	batch = batch.WithValidation(result.Summary, LedgerIssues(result.Invalid), LedgerIssues(result.Warnings))
	if err := s.batches.Save(ctx, batch); err != nil {
		return batch, ValidationResult{}, fmt.Errorf("failed to record validation outcome: %w", err)
	}

	s.log.Infow("batch validated",
		"batch_id", batch.ID,
		"valid", result.Summary.Valid,
		"invalid", result.Summary.Invalid,
		"warnings", result.Summary.Warnings,
	)
	return batch, result, nil
}

// Process starts chunked processing of the valid partition in the background
// and returns immediately. Exactly one processor may run per batch; a second
// invocation is rejected. Completion is observed by polling Progress.
func (s *Service) Process(batch domain.Batch, valid []ValidRecord) error {
	s.mu.Lock()
	if _, running := s.active[batch.ID]; running {
		s.mu.Unlock()
		return ErrAlreadyProcessing
	}
	handle := newProcessHandle()
	s.active[batch.ID] = handle
	s.mu.Unlock()

	go s.runBatch(batch, valid, handle)
	return nil
}

func (s *Service) release(batchID uuid.UUID) {
	s.mu.Lock()
	delete(s.active, batchID)
	s.mu.Unlock()
}

// runBatch is the single writer for its ledger while processing. Each chunk
// outcome is folded into a fresh snapshot which is then persisted whole, so
// progress readers only ever observe chunk-granularity states.
func (s *Service) runBatch(batch domain.Batch, records []ValidRecord, handle *processHandle) {
	defer close(handle.done)
	defer s.release(batch.ID)

	ctx := context.Background()

	batch = batch.Started(time.Now())
	if err := s.batches.Save(ctx, batch); err != nil {
		s.log.Errorw("failed to mark batch processing", "batch_id", batch.ID, "error", err)
		s.failBatch(ctx, batch, fmt.Sprintf("failed to start processing: %v", err))
		return
	}

	chunks := chunkRecords(records, s.cfg.ChunkSize)
	for i, chunk := range chunks {
		if handle.cancelRequested() {
			s.finishCancelled(ctx, batch)
			return
		}

		outcome, fatal := s.processChunk(ctx, batch, chunk)
		batch = batch.ApplyChunk(outcome)
		if fatal != nil {
			s.log.Errorw("batch failed fatally", "batch_id", batch.ID, "error", fatal)
			s.failBatch(ctx, batch, fatal.Error())
			return
		}

		if err := s.batches.Save(ctx, batch); err != nil {
			s.log.Errorw("failed to persist chunk outcome", "batch_id", batch.ID, "error", err)
			s.failBatch(ctx, batch, fmt.Sprintf("failed to persist progress: %v", err))
			return
		}

		// Yield between chunks so a large import does not monopolize the
		// store's write capacity.
		if i < len(chunks)-1 {
			select {
			case <-time.After(s.cfg.ChunkPause):
			case <-handle.cancel:
			}
		}
	}

	// A cancel can land while the last chunk is in flight; honor it here
	// too, or the batch would finalize COMPLETED after Cancel succeeded.
	if handle.cancelRequested() {
		s.finishCancelled(ctx, batch)
		return
	}

	batch = batch.Completed(time.Now())
	if err := s.batches.Save(ctx, batch); err != nil {
		s.log.Errorw("failed to persist final batch state", "batch_id", batch.ID, "error", err)
		return
	}
	s.log.Infow("batch processed",
		"batch_id", batch.ID,
		"status", batch.Status,
		"successful", batch.Successful,
		"failed", batch.Failed,
	)
}

// processChunk attempts every record in the chunk, isolating failures: a
// record that cannot be persisted becomes a row failure and the chunk moves
// on. Only an escape outside record handling is fatal.
func (s *Service) processChunk(ctx context.Context, batch domain.Batch, chunk []ValidRecord) (outcome domain.ChunkOutcome, fatal error) {
	defer func() {
		if p := recover(); p != nil {
			fatal = fmt.Errorf("chunk processing aborted: %v", p)
		}
	}()

	for _, record := range chunk {
		recordCtx, cancel := context.WithTimeout(ctx, s.cfg.RecordTimeout)
		question, err := s.createRecord(recordCtx, record.Record)
		cancel()
		if err != nil {
			outcome.Failures = append(outcome.Failures, domain.RowIssue{Row: record.Row, Message: err.Error()})
			continue
		}

		outcome.CreatedIDs = append(outcome.CreatedIDs, question.ID)

		// Audit writes are best effort; they never undo the create.
		entry := domain.NewCreationAudit(question, batch.Operator, batch.ID)
		if err := s.audit.Record(ctx, entry); err != nil {
			s.log.Warnw("audit write failed",
				"batch_id", batch.ID,
				"record_id", question.ID,
				"error", err,
			)
		}
	}

	return outcome, nil
}

// createRecord resolves the final identity code and persists the question.
func (s *Service) createRecord(ctx context.Context, record RecordInput) (domain.Question, error) {
	code, err := s.resolveCode(ctx, record)
	if err != nil {
		return domain.Question{}, err
	}

	state, err := domain.ParseQuestionState(record.State)
	if err != nil {
		return domain.Question{}, err
	}

	question := domain.NewQuestion(code, record.Subject, record.Topic, record.Payload, record.Attributes, state)
	created, err := s.questions.Create(ctx, question)
	if err != nil {
		return domain.Question{}, err
	}

	return created, nil
}

// resolveCode keeps an explicit code if it is still unique, otherwise derives
// "{subject}_{topic}_{N}" where N is one past the store-wide count for that
// classification. The count is store-derived, not batch-local, so codes stay
// sequential across batches importing into the same classification.
func (s *Service) resolveCode(ctx context.Context, record RecordInput) (string, error) {
	if record.Code != "" {
		exists, err := s.questions.CodeExists(ctx, record.Code)
		if err != nil {
			return "", fmt.Errorf("failed to check identity code: %w", err)
		}
		if !exists {
			return record.Code, nil
		}
	}

	count, err := s.questions.CountByClassification(ctx, record.Subject, record.Topic)
	if err != nil {
		return "", fmt.Errorf("failed to derive identity code: %w", err)
	}

	for next := count + 1; ; next++ {
		code := fmt.Sprintf("%d_%d_%d", record.Subject, record.Topic, next)
		exists, err := s.questions.CodeExists(ctx, code)
		if err != nil {
			return "", fmt.Errorf("failed to check derived code: %w", err)
		}
		if !exists {
			return code, nil
		}
	}
}

func (s *Service) failBatch(ctx context.Context, batch domain.Batch, message string) {
	failed := batch.FailedFatally(time.Now(), message)
	if err := s.batches.Save(ctx, failed); err != nil {
		s.log.Errorw("failed to persist FAILED batch state", "batch_id", batch.ID, "error", err)
	}
}

func (s *Service) finishCancelled(ctx context.Context, batch domain.Batch) {
	cancelled, err := batch.Cancelled(time.Now())
	if err != nil {
		s.log.Errorw("cancel requested on non-cancellable batch", "batch_id", batch.ID, "error", err)
		return
	}
	if err := s.batches.Save(ctx, cancelled); err != nil {
		s.log.Errorw("failed to persist CANCELLED batch state", "batch_id", batch.ID, "error", err)
		return
	}
	s.log.Infow("batch cancelled", "batch_id", batch.ID, "processed_rows", cancelled.ProcessedRows)
}

// Cancel stops a batch that has not finished. For a running batch the request
// is cooperative: the processor persists CANCELLED when it reaches the next
// chunk boundary. Already-created records stay in place; undoing them takes a
// separate rollback.
func (s *Service) Cancel(ctx context.Context, batchID uuid.UUID) (domain.Batch, error) {
	batch, err := s.batches.GetByID(ctx, batchID)
	if err != nil {
		return domain.Batch{}, err
	}
	if !batch.Cancellable() {
		return batch, domain.ErrNotCancellable
	}

	s.mu.Lock()
	handle, running := s.active[batchID]
	s.mu.Unlock()
	if running {
		handle.requestCancel()
		return batch, nil
	}

	// The processor may have finished between the ledger read and the
	// active check. Re-read before the direct transition so a terminal
	// ledger is never overwritten with a stale mid-flight snapshot.
	batch, err = s.batches.GetByID(ctx, batchID)
	if err != nil {
		return domain.Batch{}, err
	}
	cancelled, err := batch.Cancelled(time.Now())
	if err != nil {
		return batch, err
	}
	if err := s.batches.Save(ctx, cancelled); err != nil {
		return batch, fmt.Errorf("failed to persist cancelled batch: %w", err)
	}
	return cancelled, nil
}

// Rollback deletes every record the batch created, appends compensating audit
// entries for the deletions that verifiably happened, and terminates the
// batch as ROLLED_BACK. Rolling back a batch that created nothing is a no-op
// success. Rollback is best effort plus audited, not transactional.
func (s *Service) Rollback(ctx context.Context, batchID uuid.UUID, actor domain.Actor) (int, error) {
	batch, err := s.batches.GetByID(ctx, batchID)
	if err != nil {
		return 0, err
	}
	if !batch.Rollbackable() {
		return 0, domain.ErrNotRollbackable
	}
	if len(batch.CreatedRecordIDs) == 0 {
		return 0, nil
	}

	deleted, err := s.questions.DeleteByIDs(ctx, batch.CreatedRecordIDs)
	if err != nil {
		return 0, fmt.Errorf("failed to delete batch records: %w", err)
	}

	for _, row := range deleted {
		entry := domain.NewDeletionAudit(row.ID, row.Code, actor, batch.ID, "batch rollback")
		if auditErr := s.audit.Record(ctx, entry); auditErr != nil {
			s.log.Warnw("compensating audit write failed",
				"batch_id", batch.ID,
				"record_id", row.ID,
				"error", auditErr,
			)
		}
	}

	note := fmt.Sprintf("rolled back by %s (%s): %d of %d records deleted",
		actor.Name, actor.ID, len(deleted), len(batch.CreatedRecordIDs))
	rolledBack, err := batch.RolledBack(time.Now(), note)
	if err != nil {
		return len(deleted), err
	}
	if err := s.batches.Save(ctx, rolledBack); err != nil {
		return len(deleted), fmt.Errorf("failed to persist rolled back batch: %w", err)
	}

	s.log.Infow("batch rolled back",
		"batch_id", batch.ID,
		"actor", actor.ID,
		"deleted", len(deleted),
	)
	return len(deleted), nil
}

// History returns recent ledgers for an operator, most recent first.
func (s *Service) History(ctx context.Context, actorID string, limit int) ([]domain.Batch, error) {
	return s.batches.ListByActor(ctx, actorID, limit)
}

// Stats aggregates ledger activity across all operators.
func (s *Service) Stats(ctx context.Context) (repository.BatchStats, error) {
	return s.batches.Stats(ctx)
}

func chunkRecords(records []ValidRecord, size int) [][]ValidRecord {
	if len(records) == 0 {
		return nil
	}
	chunks := make([][]ValidRecord, 0, (len(records)+size-1)/size)
	for start := 0; start < len(records); start += size {
		end := start + size
		if end > len(records) {
			end = len(records)
		}
		chunks = append(chunks, records[start:end])
	}
	return chunks
}
