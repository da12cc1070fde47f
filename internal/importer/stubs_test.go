package importer

import (
	"context"
	"sort"
	"sync"

	"github.com/quizbank/importer/internal/domain"
	"github.com/quizbank/importer/internal/repository"

	"github.com/google/uuid"
)

// In-memory repositories backing the pipeline tests. They are safe for use
// from the background processor goroutine.

type stubQuestionRepo struct {
	mu   sync.Mutex
	byID map[uuid.UUID]domain.Question
	// createHook runs before every insert; returning an error fails that
	// record, panicking simulates a fatal store escape.
	createHook func(domain.Question) error
}

func newStubQuestionRepo() *stubQuestionRepo {
	return &stubQuestionRepo{byID: map[uuid.UUID]domain.Question{}}
}

func (s *stubQuestionRepo) Create(ctx context.Context, question domain.Question) (domain.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createHook != nil {
		if err := s.createHook(question); err != nil {
			return domain.Question{}, err
		}
	}
	s.byID[question.ID] = question
	return question, nil
}

func (s *stubQuestionRepo) GetByID(ctx context.Context, id uuid.UUID) (domain.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	question, ok := s.byID[id]
	if !ok {
		return domain.Question{}, repository.ErrNotFound
	}
	return question, nil
}

func (s *stubQuestionRepo) CodeExists(ctx context.Context, code string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, question := range s.byID {
		if question.Code == code {
			return true, nil
		}
	}
	return false, nil
}

func (s *stubQuestionRepo) CountByClassification(ctx context.Context, subject, topic int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	for _, question := range s.byID {
		if question.Subject == subject && question.Topic == topic {
			count++
		}
	}
	return count, nil
}

func (s *stubQuestionRepo) List(ctx context.Context, filter repository.QuestionFilter) ([]domain.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	questions := []domain.Question{}
	for _, question := range s.byID {
		if filter.Subject != nil && question.Subject != *filter.Subject {
			continue
		}
		if filter.Topic != nil && question.Topic != *filter.Topic {
			continue
		}
		questions = append(questions, question)
	}
	sort.Slice(questions, func(i, j int) bool { return questions[i].Code < questions[j].Code })
	if filter.Limit > 0 && len(questions) > filter.Limit {
		questions = questions[:filter.Limit]
	}
	return questions, nil
}

func (s *stubQuestionRepo) DeleteByIDs(ctx context.Context, ids []uuid.UUID) ([]repository.DeletedQuestion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deleted := []repository.DeletedQuestion{}
	for _, id := range ids {
		if question, ok := s.byID[id]; ok {
			deleted = append(deleted, repository.DeletedQuestion{ID: id, Code: question.Code})
			delete(s.byID, id)
		}
	}
	return deleted, nil
}

func (s *stubQuestionRepo) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}

func (s *stubQuestionRepo) codes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	codes := make([]string, 0, len(s.byID))
	for _, question := range s.byID {
		codes = append(codes, question.Code)
	}
	sort.Strings(codes)
	return codes
}

func (s *stubQuestionRepo) seed(code string, subject, topic int) {
	question := domain.NewQuestion(code, subject, topic, map[string]any{"text": "seeded"}, nil, "")
	s.mu.Lock()
	s.byID[question.ID] = question
	s.mu.Unlock()
}

type stubBatchRepo struct {
	mu      sync.Mutex
	byID    map[uuid.UUID]domain.Batch
	saveErr error
	// getHook rewrites what GetByID returns, for staging reads that race
	// with a finishing processor.
	getHook func(domain.Batch) domain.Batch
}

func newStubBatchRepo() *stubBatchRepo {
	return &stubBatchRepo{byID: map[uuid.UUID]domain.Batch{}}
}

func (s *stubBatchRepo) Create(ctx context.Context, batch domain.Batch) (domain.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[batch.ID] = batch
	return batch, nil
}

func (s *stubBatchRepo) Save(ctx context.Context, batch domain.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	if _, ok := s.byID[batch.ID]; !ok {
		return repository.ErrNotFound
	}
	s.byID[batch.ID] = batch
	return nil
}

func (s *stubBatchRepo) GetByID(ctx context.Context, id uuid.UUID) (domain.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	batch, ok := s.byID[id]
	if !ok {
		return domain.Batch{}, repository.ErrNotFound
	}
	if s.getHook != nil {
		batch = s.getHook(batch)
	}
	return batch, nil
}

func (s *stubBatchRepo) ListByActor(ctx context.Context, actorID string, limit int) ([]domain.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	batches := []domain.Batch{}
	for _, batch := range s.byID {
		if batch.Operator.ID == actorID {
			batches = append(batches, batch)
		}
	}
	sort.Slice(batches, func(i, j int) bool {
		return batches[i].CreatedAt.After(batches[j].CreatedAt)
	})
	if limit > 0 && len(batches) > limit {
		batches = batches[:limit]
	}
	return batches, nil
}

func (s *stubBatchRepo) Stats(ctx context.Context) (repository.BatchStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := repository.BatchStats{}
	for _, batch := range s.byID {
		stats.TotalBatches++
		stats.TotalRows += int64(batch.TotalRows)
		stats.TotalSuccessful += int64(batch.Successful)
		switch batch.Status {
		case domain.BatchStatusPending, domain.BatchStatusValidating, domain.BatchStatusProcessing:
			stats.InProgressBatches++
		case domain.BatchStatusCompleted, domain.BatchStatusCompletedWithErrors:
			stats.CompletedBatches++
		case domain.BatchStatusFailed:
			stats.FailedBatches++
		}
	}
	return stats, nil
}

type stubAuditRepo struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
}

func newStubAuditRepo() *stubAuditRepo {
	return &stubAuditRepo{}
}

func (s *stubAuditRepo) Record(ctx context.Context, entry domain.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

func (s *stubAuditRepo) ListByBatch(ctx context.Context, batchID uuid.UUID, limit int) ([]domain.AuditEntry, error) {
	return s.filter(func(entry domain.AuditEntry) bool { return entry.BatchID == batchID }, limit), nil
}

func (s *stubAuditRepo) ListByRecord(ctx context.Context, recordID uuid.UUID, limit int) ([]domain.AuditEntry, error) {
	return s.filter(func(entry domain.AuditEntry) bool { return entry.RecordID == recordID }, limit), nil
}

func (s *stubAuditRepo) ListByActor(ctx context.Context, actorID string, limit int) ([]domain.AuditEntry, error) {
	return s.filter(func(entry domain.AuditEntry) bool { return entry.Actor.ID == actorID }, limit), nil
}

func (s *stubAuditRepo) filter(keep func(domain.AuditEntry) bool, limit int) []domain.AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	matched := []domain.AuditEntry{}
	for _, entry := range s.entries {
		if keep(entry) {
			matched = append(matched, entry)
		}
	}
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched
}

func (s *stubAuditRepo) byAction(action domain.AuditAction) []domain.AuditEntry {
	return s.filter(func(entry domain.AuditEntry) bool { return entry.Action == action }, 0)
}

var _ repository.QuestionRepository = (*stubQuestionRepo)(nil)
var _ repository.BatchRepository = (*stubBatchRepo)(nil)
var _ repository.AuditRepository = (*stubAuditRepo)(nil)
