package sessionstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pitimon/claude-mem-plugin/pkg/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestEnsureSession_CreatesThenReuses(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess1, err := s.EnsureSession(ctx, "mem-sess-1", "my-project")
	require.NoError(t, err)
	assert.Positive(t, sess1.ID)

	sess2, err := s.EnsureSession(ctx, "mem-sess-1", "my-project")
	require.NoError(t, err)
	assert.Equal(t, sess1.ID, sess2.ID)
}

func TestGetSessionByID_Unknown(t *testing.T) {
	s := newTestStore(t)
	sess, err := s.GetSessionByID(context.Background(), 999)
	require.NoError(t, err)
	assert.Nil(t, sess)
}

func TestStoreObservations_AssignsIDsInOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	result, err := s.StoreObservations(ctx, "mem-sess-1", "my-project", 1, []models.Observation{
		{Type: "investigation", Title: "First", Narrative: "a"},
		{Type: "investigation", Title: "Second", Narrative: "b"},
	}, nil, 0)
	require.NoError(t, err)
	require.Len(t, result.ObservationIDs, 2)
	assert.NotEqual(t, result.ObservationIDs[0], result.ObservationIDs[1])
	assert.Zero(t, result.SummaryID)
}

func TestStoreObservations_WithSummary(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	result, err := s.StoreObservations(ctx, "mem-sess-1", "my-project", 2, nil, &models.SessionSummary{
		Request:   "Add retry budget",
		Learned:   "single-writer SQLite needs SetMaxOpenConns(1)",
		Completed: []string{"done thing"},
	}, 128)
	require.NoError(t, err)
	assert.Empty(t, result.ObservationIDs)
	assert.Positive(t, result.SummaryID)
}

func TestGetRecentObservations_NewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.StoreObservations(ctx, "mem-sess-1", "proj", 1, []models.Observation{
		{Type: "t", Title: "Older"},
	}, nil, 0)
	require.NoError(t, err)
	_, err = s.StoreObservations(ctx, "mem-sess-1", "proj", 2, []models.Observation{
		{Type: "t", Title: "Newer"},
	}, nil, 0)
	require.NoError(t, err)

	recent, err := s.GetRecentObservations(ctx, "proj", 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Contains(t, recent[0].Text, "Newer")
}

func TestGetRecentObservations_ScopedByProject(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.StoreObservations(ctx, "mem-sess-1", "proj-a", 1, []models.Observation{{Type: "t", Title: "A"}}, nil, 0)
	require.NoError(t, err)
	_, err = s.StoreObservations(ctx, "mem-sess-1", "proj-b", 1, []models.Observation{{Type: "t", Title: "B"}}, nil, 0)
	require.NoError(t, err)

	recent, err := s.GetRecentObservations(ctx, "proj-a", 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Contains(t, recent[0].Text, "A")
}
