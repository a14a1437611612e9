package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"aigentd/internal/llm"
)

type Config struct {
	BaseURL    string
	Model      string
	HTTPClient *http.Client
}

type Client struct {
	cfg Config
}

func New(cfg Config) *Client {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 90 * time.Second}
	}
	cfg.BaseURL = strings.TrimSuffix(strings.TrimSpace(cfg.BaseURL), "/")
	return &Client{cfg: cfg}
}

var _ llm.Client = (*Client)(nil)

func (c *Client) Chat(ctx context.Context, messages []llm.Message, maxTokens int) (llm.Completion, error) {
	body, err := c.buildPayload(messages, maxTokens)
	if err != nil {
		return llm.Completion{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return llm.Completion{}, fmt.Errorf("build ollama request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	started := time.Now()
	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return llm.Completion{}, fmt.Errorf("%w: %v", llm.ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return llm.Completion{}, fmt.Errorf("%w: read body: %v", llm.ErrBackendUnavailable, err)
	}
	latency := time.Since(started).Milliseconds()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return llm.Completion{}, fmt.Errorf("%w: ollama status %d", llm.ErrBackendUnavailable, resp.StatusCode)
	}

	completion, err := parseChatResponse(respBody)
	if err != nil {
		return llm.Completion{}, err
	}
	completion.LatencyMS = latency
	return completion, nil
}

func (c *Client) buildPayload(messages []llm.Message, maxTokens int) ([]byte, error) {
	options := map[string]any{"temperature": 0.7}
	if maxTokens > 0 {
		options["num_predict"] = maxTokens
	}
	payload := map[string]any{
		"model":    c.cfg.Model,
		"messages": messages,
		"stream":   false,
		"options":  options,
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal ollama payload: %w", err)
	}
	return b, nil
}

func parseChatResponse(body []byte) (llm.Completion, error) {
	var resp struct {
		Message *struct {
			Content string `json:"content"`
		} `json:"message"`
		PromptEvalCount *int `json:"prompt_eval_count"`
		EvalCount       *int `json:"eval_count"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return llm.Completion{}, fmt.Errorf("%w: decode chat response: %v", llm.ErrBackendFormat, err)
	}
	if resp.Message == nil {
		return llm.Completion{}, fmt.Errorf("%w: missing message in chat response", llm.ErrBackendFormat)
	}

	out := llm.Completion{
		Content:          strings.TrimSpace(resp.Message.Content),
		PromptTokens:     resp.PromptEvalCount,
		CompletionTokens: resp.EvalCount,
	}
	if resp.PromptEvalCount != nil && resp.EvalCount != nil {
		total := *resp.PromptEvalCount + *resp.EvalCount
		out.TotalTokens = &total
	}
	return out, nil
}
