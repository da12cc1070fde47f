package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBatchStartsPending(t *testing.T) {
	batch := NewBatch(Actor{ID: "op-1", Name: "Priya"}, Source{FileName: "q.csv", FileKind: "csv"}, 120)

	assert.Equal(t, BatchStatusPending, batch.Status)
	assert.Equal(t, 120, batch.TotalRows)
	assert.Zero(t, batch.ProcessedRows)
	assert.Empty(t, batch.Errors)
	assert.Empty(t, batch.CreatedRecordIDs)
	assert.NotEqual(t, uuid.Nil, batch.ID)
}

func TestApplyChunkKeepsCountersConsistent(t *testing.T) {
	batch := NewBatch(Actor{ID: "op-1"}, Source{}, 100)
	batch = batch.Started(time.Now())

	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	batch = batch.ApplyChunk(ChunkOutcome{
		CreatedIDs: ids,
		Failures:   []RowIssue{{Row: 4, Message: "insert failed"}},
	})

	assert.Equal(t, 3, batch.Successful)
	assert.Equal(t, 1, batch.Failed)
	assert.Equal(t, 4, batch.ProcessedRows)
	assert.Equal(t, batch.Successful+batch.Failed, batch.ProcessedRows)
	assert.Len(t, batch.CreatedRecordIDs, batch.Successful)
	require.Len(t, batch.Errors, 1)
	assert.Equal(t, 4, batch.Errors[0].Row)
}

func TestApplyChunkDoesNotMutateReceiver(t *testing.T) {
	base := NewBatch(Actor{ID: "op-1"}, Source{}, 10).Started(time.Now())

	next := base.ApplyChunk(ChunkOutcome{CreatedIDs: []uuid.UUID{uuid.New()}})

	assert.Zero(t, base.ProcessedRows)
	assert.Empty(t, base.CreatedRecordIDs)
	assert.Equal(t, 1, next.ProcessedRows)
}

func TestCompletedChoosesTerminalStatus(t *testing.T) {
	clean := NewBatch(Actor{ID: "op-1"}, Source{}, 2).
		Started(time.Now()).
		ApplyChunk(ChunkOutcome{CreatedIDs: []uuid.UUID{uuid.New(), uuid.New()}}).
		Completed(time.Now())
	assert.Equal(t, BatchStatusCompleted, clean.Status)
	require.NotNil(t, clean.CompletedAt)

	dirty := NewBatch(Actor{ID: "op-1"}, Source{}, 2).
		Started(time.Now()).
		ApplyChunk(ChunkOutcome{
			CreatedIDs: []uuid.UUID{uuid.New()},
			Failures:   []RowIssue{{Row: 2, Message: "nope"}},
		}).
		Completed(time.Now())
	assert.Equal(t, BatchStatusCompletedWithErrors, dirty.Status)
}

func TestFailedFatallyRecordsSyntheticRowZero(t *testing.T) {
	batch := NewBatch(Actor{ID: "op-1"}, Source{}, 5).
		Started(time.Now()).
		FailedFatally(time.Now(), "store unreachable")

	assert.Equal(t, BatchStatusFailed, batch.Status)
	require.NotEmpty(t, batch.Errors)
	last := batch.Errors[len(batch.Errors)-1]
	assert.Equal(t, 0, last.Row)
	assert.Equal(t, "store unreachable", last.Message)
	assert.NotNil(t, batch.CompletedAt)
}

func TestCancelGuards(t *testing.T) {
	for _, status := range []BatchStatus{BatchStatusPending, BatchStatusValidating, BatchStatusProcessing} {
		batch := NewBatch(Actor{ID: "op-1"}, Source{}, 1)
		batch.Status = status
		cancelled, err := batch.Cancelled(time.Now())
		require.NoError(t, err, "status %s", status)
		assert.Equal(t, BatchStatusCancelled, cancelled.Status)
	}

	for _, status := range []BatchStatus{BatchStatusCompleted, BatchStatusCompletedWithErrors, BatchStatusFailed, BatchStatusCancelled, BatchStatusRolledBack} {
		batch := NewBatch(Actor{ID: "op-1"}, Source{}, 1)
		batch.Status = status
		_, err := batch.Cancelled(time.Now())
		assert.ErrorIs(t, err, ErrNotCancellable, "status %s", status)
		assert.Equal(t, status, batch.Status)
	}
}

func TestRollbackGuards(t *testing.T) {
	for _, status := range []BatchStatus{BatchStatusCompleted, BatchStatusCompletedWithErrors} {
		batch := NewBatch(Actor{ID: "op-1"}, Source{}, 1)
		batch.Status = status
		rolled, err := batch.RolledBack(time.Now(), "rolled back by ops")
		require.NoError(t, err, "status %s", status)
		assert.Equal(t, BatchStatusRolledBack, rolled.Status)
		require.NotEmpty(t, rolled.Errors)
		assert.Equal(t, 0, rolled.Errors[len(rolled.Errors)-1].Row)
	}

	for _, status := range []BatchStatus{BatchStatusPending, BatchStatusValidating, BatchStatusProcessing, BatchStatusFailed, BatchStatusCancelled, BatchStatusRolledBack} {
		batch := NewBatch(Actor{ID: "op-1"}, Source{}, 1)
		batch.Status = status
		_, err := batch.RolledBack(time.Now(), "")
		assert.ErrorIs(t, err, ErrNotRollbackable, "status %s", status)
	}
}

func TestTerminalStatuses(t *testing.T) {
	terminal := []BatchStatus{BatchStatusCompleted, BatchStatusCompletedWithErrors, BatchStatusFailed, BatchStatusCancelled, BatchStatusRolledBack}
	for _, status := range terminal {
		assert.True(t, status.Terminal(), "status %s", status)
	}
	for _, status := range []BatchStatus{BatchStatusPending, BatchStatusValidating, BatchStatusProcessing} {
		assert.False(t, status.Terminal(), "status %s", status)
	}
}
