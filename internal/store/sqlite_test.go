package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heytcass/jasper/internal/jasperr"
	"github.com/heytcass/jasper/internal/model"
)

func newTestStore(t *testing.T) Store {
	t.Helper()
	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCurrentBeforeAnyAppendIsNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Current(context.Background())
	require.Error(t, err)
	assert.True(t, jasperr.Is(err, jasperr.NotFound))
}

func TestAppendAdvancesCurrentPointer(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	insight := model.Insight{CreatedAt: time.Now(), Emoji: "📅", Preview: "busy day", Body: "details", Urgency: 5, ContextFingerprint: "abc123", Provider: "anthropic", Model: "claude-3-5-sonnet"}
	saved, err := s.Append(ctx, insight)
	require.NoError(t, err)
	assert.NotZero(t, saved.ID)

	current, err := s.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, saved.ID, current.ID)
	assert.Equal(t, "busy day", current.Preview)

	pointer, err := s.Pointer(ctx)
	require.NoError(t, err)
	assert.Equal(t, saved.ID, pointer.CurrentInsightID)
	assert.Equal(t, "abc123", pointer.LastAnalyzedFingerprint)
}

func TestRecordEvaluationDoesNotChangeCurrentInsight(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	saved, err := s.Append(ctx, model.Insight{CreatedAt: time.Now(), ContextFingerprint: "fp1"})
	require.NoError(t, err)

	require.NoError(t, s.RecordEvaluation(ctx, "fp2"))

	pointer, err := s.Pointer(ctx)
	require.NoError(t, err)
	assert.Equal(t, saved.ID, pointer.CurrentInsightID)
	assert.Equal(t, "fp2", pointer.LastAnalyzedFingerprint)
}

func TestListReturnsSmallestIDsFirstUpToLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	var ids []int64
	for i := 0; i < 3; i++ {
		saved, err := s.Append(ctx, model.Insight{CreatedAt: time.Now(), ContextFingerprint: "fp"})
		require.NoError(t, err)
		ids = append(ids, saved.ID)
	}

	list, err := s.List(ctx, 0, 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, ids[0], list[0].ID)
	assert.Equal(t, ids[1], list[1].ID)
}

func TestListSinceMaxIDReturnsEmpty(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	var maxID int64
	for i := 0; i < 3; i++ {
		saved, err := s.Append(ctx, model.Insight{CreatedAt: time.Now(), ContextFingerprint: "fp"})
		require.NoError(t, err)
		maxID = saved.ID
	}

	list, err := s.List(ctx, maxID, 10)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestByIDNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.ByID(context.Background(), 999)
	require.Error(t, err)
	assert.True(t, jasperr.Is(err, jasperr.NotFound))
}

func TestRetainNeverDeletesCurrentInsightEvenIfStaleOrOverCount(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	old := time.Now().Add(-48 * time.Hour)
	current, err := s.Append(ctx, model.Insight{CreatedAt: old, ContextFingerprint: "fp-current"})
	require.NoError(t, err)

	_, err = s.Retain(ctx, int64((time.Hour).Seconds()), 0)
	require.NoError(t, err)

	got, err := s.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, current.ID, got.ID)
}

func TestRetainKeepsOnlyMaxCount(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := s.Append(ctx, model.Insight{CreatedAt: time.Now(), ContextFingerprint: "fp"})
		require.NoError(t, err)
	}
	_, err := s.Retain(ctx, int64((24 * time.Hour).Seconds()), 2)
	require.NoError(t, err)

	list, err := s.List(ctx, 0, 10)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}
