package ml

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"FRBScanner/internal/ports"
)

// Client talks to a self-hosted inference service exposing POST /extract.
// The service receives the prompt and answers {"output": "<model text>"}.
type Client struct {
	endpoint string
	apiKey   string
	model    string
	http     *http.Client
}

var _ ports.ExtractionBackend = (*Client)(nil)

type extractRequest struct {
	DocumentID string `json:"document_id"`
	Origin     string `json:"origin"`
	Model      string `json:"model,omitempty"`
	System     string `json:"system,omitempty"`
	Prompt     string `json:"prompt"`
}

type extractResponse struct {
	Output string `json:"output"`
}

// NewClient creates a reusable HTTP client. A zero timeout means 60s.
func NewClient(endpoint, apiKey, model string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		endpoint: strings.TrimSuffix(endpoint, "/"),
		apiKey:   apiKey,
		model:    model,
		http:     &http.Client{Timeout: timeout},
	}
}

// Complete forwards the extraction prompt and returns the raw model output.
func (c *Client) Complete(ctx context.Context, req ports.ExtractionRequest) (string, error) {
	if c.endpoint == "" {
		return "", errors.New("inference endpoint is not configured")
	}

	payload := extractRequest{
		DocumentID: req.DocumentID,
		Origin:     string(req.Origin),
		Model:      c.model,
		System:     req.System,
		Prompt:     req.Prompt,
	}

	var resp extractResponse
	if err := c.post(ctx, "/extract", payload, &resp); err != nil {
		return "", fmt.Errorf("extract %s: %w", req.DocumentID, err)
	}
	return resp.Output, nil
}

func (c *Client) post(ctx context.Context, path string, payload any, v any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
