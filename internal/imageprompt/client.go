// Package imageprompt implements the two-step Image Prompt Synthesizer (C5):
// gathering scene inputs, merging them via an "Expert Prompt Engineer"
// meta-prompt, and submitting the result to an image generation endpoint.
package imageprompt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"learningodyssey/internal/retry"
)

// Client is a small authenticated JSON/HTTP client for the image endpoint.
// The endpoint's own wire protocol is out of scope, so this stays a generic
// client in the shape of the teacher's OpenRouterClient rather than a
// vendor SDK.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	policy     retry.Policy
}

func NewClient(apiKey, baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	policy := retry.DefaultPolicy()
	policy.MaxAttempts = 5
	return &Client{apiKey: apiKey, baseURL: strings.TrimSuffix(baseURL, "/"), httpClient: httpClient, logger: logger, policy: policy}
}

type imageRequest struct {
	Prompt string `json:"prompt"`
}

type imageResponse struct {
	Data []struct {
		URL string `json:"url"`
	} `json:"data"`
}

// GenerateImage submits prompt and returns the resulting image URL. It
// retries transient failures up to 5 times with exponential backoff and
// treats any malformed or empty payload as a non-retryable error so callers
// don't spin on a guaranteed-bad response.
func (c *Client) GenerateImage(ctx context.Context, prompt string) (string, error) {
	var url string
	resp, body, err := retry.DoHTTP(ctx, c.policy, c.logger, func(ctx context.Context) (*http.Response, []byte, error) {
		return c.doRequest(ctx, prompt)
	})
	if err != nil {
		return "", fmt.Errorf("image endpoint: %w", err)
	}
	_ = resp

	var parsed imageResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("image endpoint: decode response: %w", err)
	}
	if len(parsed.Data) == 0 || strings.TrimSpace(parsed.Data[0].URL) == "" {
		return "", fmt.Errorf("image endpoint: empty image payload")
	}
	url = parsed.Data[0].URL
	return url, nil
}

func (c *Client) doRequest(ctx context.Context, prompt string) (*http.Response, []byte, error) {
	buf, err := json.Marshal(imageRequest{Prompt: prompt})
	if err != nil {
		return nil, nil, fmt.Errorf("marshal image request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/images/generations", bytes.NewReader(buf))
	if err != nil {
		return nil, nil, fmt.Errorf("build image request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("execute image request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp, nil, fmt.Errorf("read image response: %w", err)
	}
	return resp, body, nil
}
