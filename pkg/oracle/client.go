package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
)

// ErrRateLimited marks an HTTP 429 from the messages API so callers
// can classify the failure for backoff.
var ErrRateLimited = errors.New("oracle rate limited")

const (
	// DefaultBaseURL is the messages API endpoint root.
	DefaultBaseURL = "https://api.anthropic.com"

	// DefaultModel is used when no model is configured.
	DefaultModel = "claude-sonnet-4-5"

	apiVersion = "2023-06-01"
)

// HTTPConfig configures the messages-API client.
type HTTPConfig struct {
	BaseURL string
	APIKey  string
	Model   string

	// Client overrides the HTTP client. Leave the default timeout at
	// zero and bound calls with context deadlines instead.
	Client *http.Client
}

// HTTPClient is a Client backed by the Anthropic messages API.
type HTTPClient struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

// NewHTTPClient builds a client from cfg, filling defaults.
func NewHTTPClient(cfg HTTPConfig) (*HTTPClient, error) {
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		key = strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY"))
	}
	if key == "" {
		return nil, fmt.Errorf("oracle API key is required (set ANTHROPIC_API_KEY)")
	}

	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultModel
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 0}
	}

	return &HTTPClient{baseURL: base, apiKey: key, model: model, client: client}, nil
}

type messagesRequest struct {
	Model     string           `json:"model"`
	MaxTokens int              `json:"max_tokens"`
	Messages  []messagePayload `json:"messages"`
}

type messagePayload struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Generate sends a single-turn prompt and returns the concatenated
// text blocks of the response.
func (c *HTTPClient) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	if maxTokens <= 0 {
		maxTokens = DefaultHealMaxTokens
	}

	body := messagesRequest{
		Model:     c.model,
		MaxTokens: maxTokens,
		Messages:  []messagePayload{{Role: "user", Content: prompt}},
	}
	b, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", apiVersion)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode == http.StatusTooManyRequests {
		return "", fmt.Errorf("messages.create: %s: %w", strings.TrimSpace(string(raw)), ErrRateLimited)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("messages.create failed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var parsed messagesResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("decode messages response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("messages API error: %s: %s", parsed.Error.Type, parsed.Error.Message)
	}

	var sb strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("messages response contained no text content")
	}
	return sb.String(), nil
}
