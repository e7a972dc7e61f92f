package queue

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pitimon/claude-mem-plugin/pkg/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Config{Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// S1 (partial) — insertRaw creates exactly one pending, retry_count=0 row.
func TestInsertRawEvent_CreatesPendingRow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.InsertRawEvent(ctx, InsertRawEventParams{
		SessionDBID:      1,
		ContentSessionID: "sess-1",
		ToolName:         "Read",
		ToolInput:        `{"path":"/x"}`,
		ToolResponse:     `{"ok":true}`,
	})
	require.NoError(t, err)
	require.Positive(t, id)

	row, err := s.GetRawEvent(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, models.StatusPending, row.Status)
	assert.Equal(t, 0, row.RetryCount)
	assert.Greater(t, row.CreatedAtEpoch, int64(0))
}

// S2 — retry budget: three consecutive failures exhaust MAX_RETRIES=3.
func TestMarkFailed_RetryBudget(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.InsertRawEvent(ctx, InsertRawEventParams{SessionDBID: 1, ToolName: "Read"})
	require.NoError(t, err)

	// Claim then fail, three times.
	for i := 1; i <= 3; i++ {
		claimed, err := s.ClaimBatchForSummarization(ctx, 10)
		require.NoError(t, err)
		require.Len(t, claimed, 1)

		require.NoError(t, s.MarkFailed(ctx, id, "upstream error"))

		row, err := s.GetRawEvent(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, i, row.RetryCount)
		if i < 3 {
			assert.Equal(t, models.StatusPending, row.Status)
		} else {
			assert.Equal(t, models.StatusFailed, row.Status)
		}
	}

	// Tick 4: nothing left to claim.
	claimed, err := s.ClaimBatchForSummarization(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, claimed)
}

// S3 — stall release reverts only summarizing rows older than threshold, retry_count unchanged.
func TestReleaseStuckEvents(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	stale := &models.RawToolEvent{
		SessionDBID:    1,
		ToolName:       "Read",
		Status:         models.StatusSummarizing,
		RetryCount:     1,
		CreatedAtEpoch: models.NowEpochMillis() - 10*60*1000,
	}
	staleID, err := s.InsertRawEventForTest(ctx, stale)
	require.NoError(t, err)

	fresh := &models.RawToolEvent{
		SessionDBID:    1,
		ToolName:       "Read",
		Status:         models.StatusSummarizing,
		RetryCount:     0,
		CreatedAtEpoch: models.NowEpochMillis(),
	}
	freshID, err := s.InsertRawEventForTest(ctx, fresh)
	require.NoError(t, err)

	n, err := s.ReleaseStuckEvents(ctx, 5*60*1000)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	row, err := s.GetRawEvent(ctx, staleID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, row.Status)
	assert.Equal(t, 1, row.RetryCount)

	row2, err := s.GetRawEvent(ctx, freshID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSummarizing, row2.Status)
}

// S4 — two concurrent claim batches never overlap.
func TestClaimBatchForSummarization_NoOverlap(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		_, err := s.InsertRawEvent(ctx, InsertRawEventParams{SessionDBID: 1, ToolName: "Read"})
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	results := make([][]*models.RawToolEvent, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			batch, err := s.ClaimBatchForSummarization(ctx, 10)
			require.NoError(t, err)
			results[idx] = batch
		}(i)
	}
	wg.Wait()

	seen := map[int64]bool{}
	total := 0
	for _, batch := range results {
		for _, e := range batch {
			assert.False(t, seen[e.ID], "id %d claimed twice", e.ID)
			seen[e.ID] = true
			total++
		}
	}
	assert.Equal(t, 20, total)
}

// S5 — oversize tool_response is truncated with a trailing marker.
func TestInsertRawEvent_TruncatesOversizeResponse(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	big := strings.Repeat("x", 100_000)
	id, err := s.InsertRawEvent(ctx, InsertRawEventParams{
		SessionDBID: 1,
		ToolName:    "Read",
		ToolResponse: big,
	})
	require.NoError(t, err)

	row, err := s.GetRawEvent(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, DefaultToolResponseCap+len(TruncationSuffix), len(row.ToolResponse))
	assert.True(t, strings.HasSuffix(row.ToolResponse, TruncationSuffix))
}

// S6 — duplicate summary requests for the same session are rejected.
func TestInsertRawSummaryRequest_DuplicateGuard(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.InsertRawSummaryRequest(ctx, InsertRawSummaryRequestParams{SessionDBID: 42, UserPrompt: "first"})
	require.NoError(t, err)

	_, err = s.InsertRawSummaryRequest(ctx, InsertRawSummaryRequestParams{SessionDBID: 42, UserPrompt: "second"})
	assert.ErrorIs(t, err, ErrDuplicateSummaryPending)
}

func TestDeleteCompleted_OnlyRemovesOldCompleted(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.InsertRawEvent(ctx, InsertRawEventParams{SessionDBID: 1, ToolName: "Read"})
	require.NoError(t, err)
	_, err = s.ClaimBatchForSummarization(ctx, 10)
	require.NoError(t, err)
	require.NoError(t, s.MarkCompleted(ctx, id, 7))

	n, err := s.DeleteCompleted(ctx, models.NowEpochMillis()+1000)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	row, err := s.GetRawEvent(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, row)
}
