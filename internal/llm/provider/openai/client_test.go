package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heytcass/jasper/internal/jasperr"
	"github.com/heytcass/jasper/internal/llm/types"
)

func TestSummarizeParsesValidResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(chatResponse{
			Choices: []struct {
				Message chatMessage `json:"message"`
			}{{Message: chatMessage{Role: "assistant", Content: `{"emoji":"📧","preview":"inbox quiet","body":"nothing urgent","urgency":1}`}}},
		})
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "test", BaseURL: srv.URL})
	resp, err := c.Summarize(context.Background(), types.SummarizeRequest{ContextBody: "mail"})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Urgency)
}

func TestSummarizeRetriesAndSurfacesRateLimitedOn429(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"rate limited"}`))
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "test", BaseURL: srv.URL, MaxRetries: 2})
	_, err := c.Summarize(context.Background(), types.SummarizeRequest{ContextBody: "mail"})
	require.Error(t, err)
	assert.True(t, jasperr.Is(err, jasperr.LLMRateLimited))
	assert.False(t, jasperr.Is(err, jasperr.LLMRejected))
	assert.Equal(t, 3, calls, "429 must retry up to maxRetries, not fail immediately")
}

func TestSummarizeRecoversAfterTransient429(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"rate limited"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(chatResponse{
			Choices: []struct {
				Message chatMessage `json:"message"`
			}{{Message: chatMessage{Role: "assistant", Content: `{"emoji":"📧","preview":"inbox quiet","body":"nothing urgent","urgency":1}`}}},
		})
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "test", BaseURL: srv.URL, MaxRetries: 2})
	resp, err := c.Summarize(context.Background(), types.SummarizeRequest{ContextBody: "mail"})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Urgency)
	assert.Equal(t, 2, calls)
}
