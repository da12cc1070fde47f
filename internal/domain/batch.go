package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// BatchStatus enumerates the lifecycle states of an import batch.
type BatchStatus string

const (
	BatchStatusPending             BatchStatus = "PENDING"
	BatchStatusValidating          BatchStatus = "VALIDATING"
	BatchStatusProcessing          BatchStatus = "PROCESSING"
	BatchStatusCompleted           BatchStatus = "COMPLETED"
	BatchStatusCompletedWithErrors BatchStatus = "COMPLETED_WITH_ERRORS"
	BatchStatusFailed              BatchStatus = "FAILED"
	BatchStatusCancelled           BatchStatus = "CANCELLED"
	BatchStatusRolledBack          BatchStatus = "ROLLED_BACK"
)

// Terminal reports whether no further chunk work may occur for this status.
func (s BatchStatus) Terminal() bool {
	switch s {
	case BatchStatusCompleted, BatchStatusCompletedWithErrors, BatchStatusFailed,
		BatchStatusCancelled, BatchStatusRolledBack:
		return true
	default:
		return false
	}
}

var (
	// ErrNotCancellable is returned when cancel is requested on a terminal batch.
	ErrNotCancellable = errors.New("batch cannot be cancelled in its current status")
	// ErrNotRollbackable is returned when rollback is requested outside a completed state.
	ErrNotRollbackable = errors.New("batch cannot be rolled back in its current status")
)

// Actor identifies the operator driving an import.
type Actor struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Source describes where the imported records came from. Descriptive only.
type Source struct {
	FileName string `json:"file_name"`
	FileKind string `json:"file_kind"`
}

// RowIssue is one error or warning attributed to an input row.
// Row 0 is reserved for batch-level (fatal or administrative) messages.
type RowIssue struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

// ValidationSummary is written once, after validation.
type ValidationSummary struct {
	Valid    int `json:"valid"`
	Invalid  int `json:"invalid"`
	Warnings int `json:"warnings"`
}

// Batch is the persisted ledger for one import operation. It is the single
// source of truth for progress queries. All mutating methods return a new
// snapshot; the snapshot is the unit of persistence, so a ledger row is only
// ever replaced whole, never patched in place.
type Batch struct {
	ID       uuid.UUID   `json:"id"`
	Operator Actor       `json:"operator"`
	Source   Source      `json:"source"`
	Status   BatchStatus `json:"status"`

	TotalRows     int `json:"total_rows"`
	ProcessedRows int `json:"processed_rows"`
	Successful    int `json:"successful"`
	Failed        int `json:"failed"`
	// Skipped is reserved. No importer path increments it today; it stays in
	// the model and API so the contract is stable if a skip path ever lands.
	Skipped int `json:"skipped"`

	Summary ValidationSummary `json:"validation_summary"`

	Errors   []RowIssue `json:"errors"`
	Warnings []RowIssue `json:"warnings"`

	CreatedRecordIDs []uuid.UUID `json:"created_record_ids"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// NewBatch creates a PENDING ledger for an import of totalRows records.
func NewBatch(operator Actor, source Source, totalRows int) Batch {
	return Batch{
		ID:               uuid.New(),
		Operator:         operator,
		Source:           source,
		Status:           BatchStatusPending,
		TotalRows:        totalRows,
		Errors:           []RowIssue{},
		Warnings:         []RowIssue{},
		CreatedRecordIDs: []uuid.UUID{},
		CreatedAt:        time.Now(),
	}
}

// WithValidation records the validation outcome and moves the batch to VALIDATING.
func (b Batch) WithValidation(summary ValidationSummary, errs, warns []RowIssue) Batch {
	next := b.clone()
	next.Status = BatchStatusValidating
	next.Summary = summary
	next.Errors = append(next.Errors, errs...)
	next.Warnings = append(next.Warnings, warns...)
	return next
}

// Started moves the batch to PROCESSING and stamps started_at.
func (b Batch) Started(now time.Time) Batch {
	next := b.clone()
	next.Status = BatchStatusProcessing
	next.StartedAt = &now
	return next
}

// ChunkOutcome is the result of one processed chunk, folded into the ledger.
type ChunkOutcome struct {
	CreatedIDs []uuid.UUID
	Failures   []RowIssue
}

// ApplyChunk folds a chunk outcome into a new ledger snapshot. Every record in
// the chunk counts as processed exactly once, as a success or as a failure.
func (b Batch) ApplyChunk(outcome ChunkOutcome) Batch {
	next := b.clone()
	next.Successful += len(outcome.CreatedIDs)
	next.Failed += len(outcome.Failures)
	next.ProcessedRows += len(outcome.CreatedIDs) + len(outcome.Failures)
	next.CreatedRecordIDs = append(next.CreatedRecordIDs, outcome.CreatedIDs...)
	next.Errors = append(next.Errors, outcome.Failures...)
	return next
}

// Completed finalizes a fully processed batch.
func (b Batch) Completed(now time.Time) Batch {
	next := b.clone()
	if next.Failed > 0 {
		next.Status = BatchStatusCompletedWithErrors
	} else {
		next.Status = BatchStatusCompleted
	}
	next.CompletedAt = &now
	return next
}

// FailedFatally terminates the batch after an error outside any single record's
// handling. The cause is recorded as a synthetic row-0 error.
func (b Batch) FailedFatally(now time.Time, message string) Batch {
	next := b.clone()
	next.Status = BatchStatusFailed
	next.CompletedAt = &now
	next.Errors = append(next.Errors, RowIssue{Row: 0, Message: message})
	return next
}

// Cancellable reports whether cancel is currently a legal transition.
func (b Batch) Cancellable() bool {
	switch b.Status {
	case BatchStatusPending, BatchStatusValidating, BatchStatusProcessing:
		return true
	default:
		return false
	}
}

// Cancelled terminates the batch without undoing already-created records.
func (b Batch) Cancelled(now time.Time) (Batch, error) {
	if !b.Cancellable() {
		return b, ErrNotCancellable
	}
	next := b.clone()
	next.Status = BatchStatusCancelled
	next.CompletedAt = &now
	return next, nil
}

// Rollbackable reports whether rollback is currently a legal transition.
// Rolling back an already rolled-back or cancelled batch is rejected.
func (b Batch) Rollbackable() bool {
	switch b.Status {
	case BatchStatusCompleted, BatchStatusCompletedWithErrors:
		return true
	default:
		return false
	}
}

// RolledBack terminates the batch after compensating deletion of its records.
// ROLLED_BACK is kept distinct from CANCELLED so history can tell "stopped
// before finishing" apart from "undone after finishing".
func (b Batch) RolledBack(now time.Time, note string) (Batch, error) {
	if !b.Rollbackable() {
		return b, ErrNotRollbackable
	}
	next := b.clone()
	next.Status = BatchStatusRolledBack
	next.CompletedAt = &now
	next.Errors = append(next.Errors, RowIssue{Row: 0, Message: note})
	return next, nil
}

func (b Batch) clone() Batch {
	next := b
	next.Errors = append([]RowIssue(nil), b.Errors...)
	next.Warnings = append([]RowIssue(nil), b.Warnings...)
	next.CreatedRecordIDs = append([]uuid.UUID(nil), b.CreatedRecordIDs...)
	if b.StartedAt != nil {
		started := *b.StartedAt
		next.StartedAt = &started
	}
	if b.CompletedAt != nil {
		completed := *b.CompletedAt
		next.CompletedAt = &completed
	}
	return next
}
