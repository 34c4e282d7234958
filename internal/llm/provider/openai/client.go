// Package openai implements the analysis pipeline's LLM Client against
// OpenAI's chat completions API, as a single non-streaming call.
package openai

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
	DefaultBaseURL = "https://api.openai.com"
	DefaultModel   = "gpt-4o"
	DefaultTimeout = 30 * time.Second
)

type Config struct {
	APIKey     string
	Model      string
	BaseURL    string
	MaxRetries int
}

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

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	MaxTokens      int           `json:"max_tokens"`
	ResponseFormat struct {
		Type string `json:"type"`
	} `json:"response_format"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

type insightJSON struct {
	Emoji   string `json:"emoji"`
	Preview string `json:"preview"`
	Body    string `json:"body"`
	Urgency int    `json:"urgency"`
}

func (c *Client) Summarize(ctx context.Context, req types.SummarizeRequest) (types.SummarizeResponse, error) {
	body := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: req.SystemPrompt},
			{Role: "user", Content: req.ContextBody},
		},
		MaxTokens: req.MaxTokens,
	}
	body.ResponseFormat.Type = "json_object"

	payload, err := json.Marshal(body)
	if err != nil {
		return types.SummarizeResponse{}, jasperr.Wrap(jasperr.LLMTransport, "openai.Summarize", err)
	}

	var resp chatResponse
	delay := time.Second
	for attempt := 0; ; attempt++ {
		status, retryAfter, err := c.doRequest(ctx, payload, &resp)
		if err == nil {
			break
		}
		if status == http.StatusTooManyRequests {
			if attempt >= c.maxRetries {
				return types.SummarizeResponse{}, jasperr.RateLimited("openai.Summarize", status, retryAfter, err)
			}
			wait := delay
			if retryAfter > 0 {
				wait = retryAfter
			}
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return types.SummarizeResponse{}, jasperr.Wrap(jasperr.LLMTimeout, "openai.Summarize", ctx.Err())
			}
			delay *= 2
			continue
		}
		if status >= 400 && status < 500 {
			return types.SummarizeResponse{}, jasperr.Rejected("openai.Summarize", status, err)
		}
		if attempt >= c.maxRetries {
			if ctx.Err() != nil {
				return types.SummarizeResponse{}, jasperr.Wrap(jasperr.LLMTimeout, "openai.Summarize", ctx.Err())
			}
			return types.SummarizeResponse{}, jasperr.Wrap(jasperr.LLMTransport, "openai.Summarize", err)
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return types.SummarizeResponse{}, jasperr.Wrap(jasperr.LLMTimeout, "openai.Summarize", ctx.Err())
		}
		delay *= 2
	}

	if len(resp.Choices) == 0 {
		return types.SummarizeResponse{}, jasperr.New(jasperr.ResponseMalformed, "openai.Summarize", "no choices in response")
	}

	var parsed insightJSON
	if err := json.Unmarshal([]byte(strings.TrimSpace(resp.Choices[0].Message.Content)), &parsed); err != nil {
		return types.SummarizeResponse{}, jasperr.Wrap(jasperr.ResponseMalformed, "openai.Summarize", err)
	}
	if parsed.Preview == "" || parsed.Body == "" {
		return types.SummarizeResponse{}, jasperr.New(jasperr.ResponseMalformed, "openai.Summarize", "missing preview or body field")
	}
	if parsed.Urgency < 0 || parsed.Urgency > 10 {
		return types.SummarizeResponse{}, jasperr.New(jasperr.ResponseMalformed, "openai.Summarize", "urgency out of range [0,10]")
	}

	return types.SummarizeResponse{
		Emoji:   parsed.Emoji,
		Preview: parsed.Preview,
		Body:    parsed.Body,
		Urgency: parsed.Urgency,
		Usage: types.TokenUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.PromptTokens + resp.Usage.CompletionTokens,
		},
	}, nil
}

func (c *Client) doRequest(ctx context.Context, payload []byte, out *chatResponse) (int, time.Duration, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return 0, 0, err
	}
	httpReq.Header.Set("content-type", "application/json")
	httpReq.Header.Set("authorization", "Bearer "+c.apiKey)

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
		return resp.StatusCode, parseRetryAfter(resp.Header.Get("Retry-After")), fmt.Errorf("openai: status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
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
