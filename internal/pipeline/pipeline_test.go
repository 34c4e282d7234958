package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heytcass/jasper/internal/jasperr"
	"github.com/heytcass/jasper/internal/llm/types"
	"github.com/heytcass/jasper/internal/model"
	"github.com/heytcass/jasper/internal/store"
)

type stubClient struct {
	resp types.SummarizeResponse
	err  error
}

func (s *stubClient) Summarize(ctx context.Context, req types.SummarizeRequest) (types.SummarizeResponse, error) {
	return s.resp, s.err
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRunCommitsInsightOnSuccess(t *testing.T) {
	st := newTestStore(t)
	client := &stubClient{resp: types.SummarizeResponse{Emoji: "📅", Preview: "p", Body: "b", Urgency: 3}}
	p := New(client, st, nil)

	snapshot := model.ContextSnapshot{TakenAt: time.Now(), Items: []model.ContextItem{{SourceID: "cal", SourceUID: "1", Title: "Standup"}}}
	insight, err := p.Run(context.Background(), snapshot, "fp1", "anthropic", "claude-3-5-sonnet")
	require.NoError(t, err)
	assert.Equal(t, "p", insight.Preview)

	current, err := st.Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, insight.ID, current.ID)
}

func TestRunDoesNotCommitOnClientError(t *testing.T) {
	st := newTestStore(t)
	client := &stubClient{err: jasperr.New(jasperr.LLMTransport, "test", "boom")}
	p := New(client, st, nil)

	_, err := p.Run(context.Background(), model.ContextSnapshot{TakenAt: time.Now()}, "fp1", "anthropic", "claude")
	require.Error(t, err)

	_, err = st.Current(context.Background())
	assert.True(t, jasperr.Is(err, jasperr.NotFound), "no insight should have been committed")
}

func TestBuildBundleTruncatesOversizedSnapshot(t *testing.T) {
	items := make([]model.ContextItem, maxItemsInBundle+10)
	for i := range items {
		items[i] = model.ContextItem{SourceID: "cal", SourceUID: string(rune('a' + i%26)), Title: "event"}
	}
	bundle := buildBundle(model.ContextSnapshot{TakenAt: time.Now(), Items: items})
	count := 0
	for _, r := range bundle {
		if r == '\n' {
			count++
		}
	}
	assert.LessOrEqual(t, count, maxItemsInBundle+3)
}
