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

const (
	defaultMessagesEndpoint = "https://api.anthropic.com/v1/messages"
	anthropicVersion        = "2023-06-01"
	defaultMaxTokens        = 1024
)

type messagesRequest struct {
	Model     string        `json:"model"`
	MaxTokens int           `json:"max_tokens"`
	System    string        `json:"system,omitempty"`
	Messages  []chatMessage `json:"messages"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

// AnthropicClient implements ports.ExtractionBackend with the Messages API.
type AnthropicClient struct {
	endpoint     string
	model        string
	apiKey       string
	systemPrompt string
	maxTokens    int
	httpClient   *http.Client
}

var _ ports.ExtractionBackend = (*AnthropicClient)(nil)

// NewAnthropicClient builds a client from configuration.
func NewAnthropicClient(cfg config.ExtractionConfig, opts ...Option) *AnthropicClient {
	c := &AnthropicClient{
		endpoint:     cfg.Endpoint,
		model:        cfg.Model,
		apiKey:       cfg.APIKey,
		systemPrompt: cfg.SystemPrompt,
		maxTokens:    cfg.MaxTokens,
		httpClient:   &http.Client{Timeout: timeoutOr(cfg.Timeout, 60*time.Second)},
	}
	if c.endpoint == "" {
		c.endpoint = defaultMessagesEndpoint
	}
	if c.maxTokens <= 0 {
		c.maxTokens = defaultMaxTokens
	}
	o := applyOptions(opts)
	if o.httpClient != nil {
		c.httpClient = o.httpClient
	}
	return c
}

// Complete sends one user turn and joins the text blocks of the reply.
func (c *AnthropicClient) Complete(ctx context.Context, req ports.ExtractionRequest) (string, error) {
	if c == nil {
		return "", errors.New("anthropic client is nil")
	}
	if c.apiKey == "" || c.model == "" {
		return "", errors.New("anthropic client misconfigured")
	}

	body, err := json.Marshal(messagesRequest{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		System:    pickSystem(c.systemPrompt, req.System),
		Messages:  []chatMessage{{Role: "user", Content: req.Prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("marshal anthropic payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("anthropic request for %s: %w", req.DocumentID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("anthropic error %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	var out messagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode anthropic response: %w", err)
	}

	var text strings.Builder
	for _, block := range out.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return "", errors.New("anthropic returned no text content")
	}
	return text.String(), nil
}
