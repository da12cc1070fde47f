package importer

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/quizbank/importer/internal/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildProgressPercentage(t *testing.T) {
	tests := []struct {
		processed int
		total     int
		want      int
	}{
		{0, 200, 0},
		{50, 200, 25},
		{1, 3, 33},
		{2, 3, 67},
		{200, 200, 100},
		{0, 0, 0},
	}

	for _, tc := range tests {
		batch := domain.Batch{ID: uuid.New(), TotalRows: tc.total, ProcessedRows: tc.processed}
		got := BuildProgress(batch, 20)
		assert.Equalf(t, tc.want, got.ProgressPercentage, "%d/%d", tc.processed, tc.total)
	}
}

func TestBuildProgressKeepsTailOfErrors(t *testing.T) {
	batch := domain.Batch{ID: uuid.New(), TotalRows: 100}
	for row := 1; row <= 30; row++ {
		batch.Errors = append(batch.Errors, domain.RowIssue{Row: row, Message: fmt.Sprintf("row %d failed", row)})
	}

	got := BuildProgress(batch, 20)
	require.Len(t, got.Errors, 20)
	assert.Equal(t, 11, got.Errors[0].Row)
	assert.Equal(t, 30, got.Errors[19].Row)

	// Window of zero means no truncation.
	assert.Len(t, BuildProgress(batch, 0).Errors, 30)
}

func TestBuildProgressDoesNotShareErrorSlice(t *testing.T) {
	batch := domain.Batch{ID: uuid.New(), Errors: []domain.RowIssue{{Row: 1, Message: "boom"}}}
	got := BuildProgress(batch, 20)
	got.Errors[0].Message = "mutated"
	assert.Equal(t, "boom", batch.Errors[0].Message)
}

func TestProgressIsMonotonicAcrossPolls(t *testing.T) {
	cfg := testConfig()
	cfg.ChunkSize = 2
	service, _, questions, _ := newTestService(cfg)
	questions.createHook = func(domain.Question) error {
		time.Sleep(2 * time.Millisecond)
		return nil
	}

	batch, err := service.InitializeBatch(context.Background(), domain.Actor{ID: "op-1"}, domain.Source{}, 10)
	require.NoError(t, err)
	require.NoError(t, service.Process(batch, makeRecords(10, 3, 7)))

	var polled []Progress
	deadline := time.Now().Add(2 * time.Second)
	for {
		snapshot, err := service.Progress(context.Background(), batch.ID)
		require.NoError(t, err)
		polled = append(polled, snapshot)
		if snapshot.IsComplete {
			break
		}
		require.True(t, time.Now().Before(deadline), "batch never completed")
		time.Sleep(time.Millisecond)
	}

	for i := 1; i < len(polled); i++ {
		assert.GreaterOrEqual(t, polled[i].ProcessedRows, polled[i-1].ProcessedRows)
		assert.GreaterOrEqual(t, polled[i].ProgressPercentage, polled[i-1].ProgressPercentage)
	}

	last := polled[len(polled)-1]
	assert.Equal(t, domain.BatchStatusCompleted, last.Status)
	assert.Equal(t, 10, last.ProcessedRows)
	assert.Equal(t, 100, last.ProgressPercentage)
}

func TestBuildProgressCompletion(t *testing.T) {
	running := domain.Batch{ID: uuid.New(), Status: domain.BatchStatusProcessing}
	assert.False(t, BuildProgress(running, 20).IsComplete)

	for _, status := range []domain.BatchStatus{
		domain.BatchStatusCompleted,
		domain.BatchStatusCompletedWithErrors,
		domain.BatchStatusFailed,
		domain.BatchStatusCancelled,
		domain.BatchStatusRolledBack,
	} {
		done := domain.Batch{ID: uuid.New(), Status: status}
		assert.Truef(t, BuildProgress(done, 20).IsComplete, "status %s", status)
	}
}
