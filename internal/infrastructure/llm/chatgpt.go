package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"FRBScanner/internal/config"
	"FRBScanner/internal/ports"
)

const defaultChatEndpoint = "https://api.openai.com/v1/chat/completions"

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
}

// ChatGPTClient implements ports.ExtractionBackend backed by OpenAI-compatible APIs.
type ChatGPTClient struct {
	endpoint     string
	model        string
	apiKey       string
	systemPrompt string
	maxTokens    int
	httpClient   *http.Client
}

var _ ports.ExtractionBackend = (*ChatGPTClient)(nil)

// NewChatGPTClient builds a client from configuration.
func NewChatGPTClient(cfg config.ExtractionConfig, opts ...Option) *ChatGPTClient {
	c := &ChatGPTClient{
		endpoint:     cfg.Endpoint,
		model:        cfg.Model,
		apiKey:       cfg.APIKey,
		systemPrompt: cfg.SystemPrompt,
		maxTokens:    cfg.MaxTokens,
		httpClient:   &http.Client{Timeout: timeoutOr(cfg.Timeout, 60*time.Second)},
	}
	if c.endpoint == "" {
		c.endpoint = defaultChatEndpoint
	}
	o := applyOptions(opts)
	if o.httpClient != nil {
		c.httpClient = o.httpClient
	}
	return c
}

// Complete posts the document prompt as a user message and returns the first choice.
func (c *ChatGPTClient) Complete(ctx context.Context, req ports.ExtractionRequest) (string, error) {
	if c == nil {
		return "", errors.New("chatgpt client is nil")
	}
	if c.apiKey == "" || c.model == "" {
		return "", errors.New("chatgpt client misconfigured")
	}

	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: pickSystem(c.systemPrompt, req.System)},
			{Role: "user", Content: req.Prompt},
		},
		MaxTokens: c.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("marshal chatgpt payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("chatgpt request for %s: %w", req.DocumentID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("chatgpt error %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode chatgpt response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", errors.New("chatgpt returned no choices")
	}
	return out.Choices[0].Message.Content, nil
}
