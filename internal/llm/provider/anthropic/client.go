// Package anthropic implements the analysis pipeline's LLM Client against
// Anthropic's Messages API: same base URL, API version header, and
// request/response shapes as a single non-streaming call, with bounded
// retry-with-backoff on transient failures.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/heytcass/jasper/internal/jasperr"
	"github.com/heytcass/jasper/internal/llm/types"
)

const (
	DefaultBaseURL    = "https://api.anthropic.com"
	DefaultModel      = "claude-3-5-sonnet-20241022"
	DefaultAPIVersion = "2023-06-01"
	DefaultTimeout    = 30 * time.Second
)

// Config carries the Anthropic-specific adapter settings.
type Config struct {
	APIKey     string
	Model      string
	BaseURL    string
	MaxRetries int
}

// Client calls the Anthropic Messages API for single-shot summarization.
type Client struct {
	apiKey     string
	model      string
	baseURL    string
	maxRetries int
	httpClient *http.Client
}

func NewClient(cfg Config) *Client {
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		apiKey:     cfg.APIKey,
		model:      model,
		baseURL:    baseURL,
		maxRetries: cfg.MaxRetries,
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
}

type messagesRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Summarize sends the context bundle to Claude and parses its JSON reply
// into a SummarizeResponse. Transport failures and 5xx responses retry with
// exponential backoff up to maxRetries. 429 responses are retried too,
// honoring the Retry-After header when present, and surface as
// jasperr.LLMRateLimited if retries are exhausted. Other 4xx responses are
// not retried and surface as jasperr.LLMRejected.
func (c *Client) Summarize(ctx context.Context, req types.SummarizeRequest) (types.SummarizeResponse, error) {
	body := messagesRequest{
		Model:     c.model,
		MaxTokens: req.MaxTokens,
		System:    req.SystemPrompt,
		Messages:  []anthropicMessage{{Role: "user", Content: req.ContextBody}},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return types.SummarizeResponse{}, jasperr.Wrap(jasperr.LLMTransport, "anthropic.Summarize", err)
	}

	var resp messagesResponse
	delay := time.Second
	for attempt := 0; ; attempt++ {
		status, retryAfter, err := c.doRequest(ctx, payload, &resp)
		if err == nil {
			break
		}
		if status == http.StatusTooManyRequests {
			if attempt >= c.maxRetries {
				return types.SummarizeResponse{}, jasperr.RateLimited("anthropic.Summarize", status, retryAfter, err)
			}
			wait := delay
			if retryAfter > 0 {
				wait = retryAfter
			}
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return types.SummarizeResponse{}, jasperr.Wrap(jasperr.LLMTimeout, "anthropic.Summarize", ctx.Err())
			}
			delay *= 2
			continue
		}
		if status >= 400 && status < 500 {
			return types.SummarizeResponse{}, jasperr.Rejected("anthropic.Summarize", status, err)
		}
		if attempt >= c.maxRetries {
			if ctx.Err() != nil {
				return types.SummarizeResponse{}, jasperr.Wrap(jasperr.LLMTimeout, "anthropic.Summarize", ctx.Err())
			}
			return types.SummarizeResponse{}, jasperr.Wrap(jasperr.LLMTransport, "anthropic.Summarize", err)
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return types.SummarizeResponse{}, jasperr.Wrap(jasperr.LLMTimeout, "anthropic.Summarize", ctx.Err())
		}
		delay *= 2
	}

	if len(resp.Content) == 0 {
		return types.SummarizeResponse{}, jasperr.New(jasperr.ResponseMalformed, "anthropic.Summarize", "empty content in response")
	}
	return parseInsightJSON(resp.Content[0].Text, resp.Usage.InputTokens, resp.Usage.OutputTokens)
}

func (c *Client) doRequest(ctx context.Context, payload []byte, out *messagesResponse) (int, time.Duration, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return 0, 0, err
	}
	httpReq.Header.Set("content-type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", DefaultAPIVersion)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return 0, 0, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, 0, err
	}
	if resp.StatusCode >= 400 {
		return resp.StatusCode, parseRetryAfter(resp.Header.Get("Retry-After")), fmt.Errorf("anthropic: status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return resp.StatusCode, 0, err
	}
	return resp.StatusCode, 0, nil
}

// parseRetryAfter parses an HTTP Retry-After header's delay-seconds form.
// Unparseable or absent values return zero, signaling "use our own backoff".
func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	secs, err := strconv.Atoi(strings.TrimSpace(header))
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// insightJSON is the structured shape the system prompt instructs the
// model to reply in.
type insightJSON struct {
	Emoji   string `json:"emoji"`
	Preview string `json:"preview"`
	Body    string `json:"body"`
	Urgency int    `json:"urgency"`
}

func parseInsightJSON(text string, inputTokens, outputTokens int) (types.SummarizeResponse, error) {
	var parsed insightJSON
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &parsed); err != nil {
		return types.SummarizeResponse{}, jasperr.Wrap(jasperr.ResponseMalformed, "anthropic.parseInsightJSON", err)
	}
	if parsed.Preview == "" || parsed.Body == "" {
		return types.SummarizeResponse{}, jasperr.New(jasperr.ResponseMalformed, "anthropic.parseInsightJSON", "missing preview or body field")
	}
	if parsed.Urgency < 0 || parsed.Urgency > 10 {
		return types.SummarizeResponse{}, jasperr.New(jasperr.ResponseMalformed, "anthropic.parseInsightJSON", "urgency out of range [0,10]")
	}
	return types.SummarizeResponse{
		Emoji:   parsed.Emoji,
		Preview: parsed.Preview,
		Body:    parsed.Body,
		Urgency: parsed.Urgency,
		Usage: types.TokenUsage{
			PromptTokens:     inputTokens,
			CompletionTokens: outputTokens,
			TotalTokens:      inputTokens + outputTokens,
		},
	}, nil
}
