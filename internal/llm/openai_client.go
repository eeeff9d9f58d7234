package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	ottoerrors "otto/internal/errors"
	"otto/internal/logging"
)

// openAIClient talks to any OpenAI-compatible /chat/completions endpoint.
type openAIClient struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	logger     logging.Logger
}

// Options configures NewOpenAIClient.
type Options struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
	Logger  logging.Logger
}

// NewOpenAIClient builds a Client for an OpenAI-compatible provider.
func NewOpenAIClient(opts Options) (Client, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("llm: api key is required")
	}
	if opts.Model == "" {
		return nil, fmt.Errorf("llm: model is required")
	}
	baseURL := strings.TrimSuffix(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &openAIClient{
		baseURL:    baseURL,
		apiKey:     opts.APIKey,
		model:      opts.Model,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logging.OrNop(opts.Logger),
	}, nil
}

func (c *openAIClient) Model() string { return c.model }

// Wire structures for the OpenAI chat completions API.

type wireMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

type wireToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

type wireTool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string          `json:"name"`
		Description string          `json:"description"`
		Parameters  ParameterSchema `json:"parameters"`
	} `json:"function"`
}

type wireRequest struct {
	Model       string        `json:"model"`
	Messages    []wireMessage `json:"messages"`
	Tools       []wireTool    `json:"tools,omitempty"`
	ToolChoice  string        `json:"tool_choice,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type wireResponse struct {
	Choices []struct {
		Message struct {
			Role      string         `json:"role"`
			Content   string         `json:"content"`
			ToolCalls []wireToolCall `json:"tool_calls"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens        int `json:"prompt_tokens"`
		CompletionTokens    int `json:"completion_tokens"`
		TotalTokens         int `json:"total_tokens"`
		PromptTokensDetails struct {
			CachedTokens int `json:"cached_tokens"`
		} `json:"prompt_tokens_details"`
	} `json:"usage"`
	Model string `json:"model"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error"`
}

func (c *openAIClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}

	wire := wireRequest{
		Model:       model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		ToolChoice:  req.ToolChoice,
	}
	for _, m := range req.Messages {
		wm := wireMessage{Role: m.Role, Content: m.Content, ToolCallID: m.ToolCallID}
		for _, tc := range m.ToolCalls {
			wm.ToolCalls = append(wm.ToolCalls, wireToolCall{
				ID:       tc.ID,
				Type:     "function",
				Function: FunctionCall{Name: tc.Name, Arguments: tc.Args},
			})
		}
		wire.Messages = append(wire.Messages, wm)
	}
	for _, t := range req.Tools {
		var wt wireTool
		wt.Type = "function"
		wt.Function.Name = t.Name
		wt.Function.Description = t.Description
		wt.Function.Parameters = t.Parameters
		wire.Tools = append(wire.Tools, wt)
	}

	body, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("marshal completion request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build completion request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ottoerrors.Wrap(ottoerrors.KindTimeout, "model request timed out", err)
		}
		return nil, ottoerrors.NewTransientError(err, "model request failed")
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, ottoerrors.NewTransientError(err, "read model response")
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := fmt.Errorf("llm status %d: %s", resp.StatusCode, truncateForLog(string(payload)))
		if isRetryableStatus(resp.StatusCode) {
			return nil, ottoerrors.NewTransientError(apiErr, "model temporarily unavailable")
		}
		return nil, ottoerrors.NewPermanentError(apiErr, "model rejected the request")
	}

	var wr wireResponse
	if err := json.Unmarshal(payload, &wr); err != nil {
		return nil, fmt.Errorf("decode completion response: %w", err)
	}
	if wr.Error != nil {
		return nil, ottoerrors.NewPermanentError(
			fmt.Errorf("llm api error: %s", wr.Error.Message), "model rejected the request")
	}
	if len(wr.Choices) == 0 {
		return nil, fmt.Errorf("completion response has no choices")
	}

	choice := wr.Choices[0]
	out := &CompletionResponse{
		Content:      choice.Message.Content,
		FinishReason: choice.FinishReason,
		Model:        wr.Model,
		Usage: TokenUsage{
			PromptTokens:     wr.Usage.PromptTokens,
			CompletionTokens: wr.Usage.CompletionTokens,
			TotalTokens:      wr.Usage.TotalTokens,
			CachedTokens:     wr.Usage.PromptTokensDetails.CachedTokens,
		},
	}
	for _, tc := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:   tc.ID,
			Type: tc.Type,
			Name: tc.Function.Name,
			Args: tc.Function.Arguments,
			Raw:  tc.Function,
		})
	}

	c.logger.Debug("completion done model=%s tokens=%d cached=%d latency=%s",
		model, out.Usage.TotalTokens, out.Usage.CachedTokens, time.Since(start))
	return out, nil
}

func isRetryableStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout, http.StatusTooManyRequests,
		http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

func truncateForLog(s string) string {
	if len(s) > 512 {
		return s[:512] + "..."
	}
	return s
}
