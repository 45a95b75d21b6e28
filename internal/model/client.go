package model

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Backend is a handle to one configured generation backend:
// prompt messages in, completion text out.
type Backend interface {
	Generate(ctx context.Context, messages []Message) (string, error)
}

// ErrRateLimited marks a backend rejection that is safe to retry.
var ErrRateLimited = errors.New("rate limited")

// openAIClient speaks the OpenAI-compatible chat-completions protocol that
// every supported provider exposes.
type openAIClient struct {
	spec   Spec
	apiKey string
	http   *http.Client
}

func newOpenAIClient(spec Spec, apiKey string) *openAIClient {
	return &openAIClient{
		spec:   spec,
		apiKey: apiKey,
		http:   &http.Client{Timeout: spec.RequestTimeout},
	}
}

// MaxRetries reports the spec's attempt budget for GenerateWithRetry.
func (c *openAIClient) MaxRetries() int {
	return c.spec.MaxRetries
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *openAIClient) Generate(ctx context.Context, messages []Message) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:       c.spec.Model,
		Messages:    messages,
		Temperature: c.spec.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("encode chat request: %w", err)
	}

	url := strings.TrimSuffix(c.spec.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("call %s: %w", url, err)
	}
	defer res.Body.Close()

	data, err := io.ReadAll(io.LimitReader(res.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("read chat response: %w", err)
	}
	if res.StatusCode == http.StatusTooManyRequests {
		return "", fmt.Errorf("%s returned 429: %w", c.spec.Provider, ErrRateLimited)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return "", fmt.Errorf("%s returned %d: %s", c.spec.Provider, res.StatusCode, truncate(string(data), 200))
	}

	var parsed chatResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("%s error: %s", c.spec.Provider, parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("%s returned no choices", c.spec.Provider)
	}
	return parsed.Choices[0].Message.Content, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
