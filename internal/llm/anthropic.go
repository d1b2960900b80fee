package llm

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
)

const (
	// DefaultAnthropicBaseURL is the Anthropic API base URL.
	DefaultAnthropicBaseURL = "https://api.anthropic.com"
	// DefaultAnthropicModel is the model used for enrichment.
	DefaultAnthropicModel = "claude-3-5-haiku-latest"

	anthropicAPIVersion       = "2023-06-01"
	defaultAnthropicMaxTokens = 1024
	defaultAnthropicTimeout   = 60 * time.Second
)

type messagesRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	Temperature float64            `json:"temperature"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type messagesResponse struct {
	ID         string         `json:"id"`
	Content    []contentBlock `json:"content"`
	Model      string         `json:"model"`
	StopReason string         `json:"stop_reason"`
}

type anthropicErrorResponse struct {
	Type  string `json:"type"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// AnthropicClient calls the Anthropic Messages API. Each call issues
// exactly one HTTP request; retries belong to the caller.
type AnthropicClient struct {
	httpClient  *http.Client
	apiKey      string
	model       string
	baseURL     string
	temperature float64
}

// AnthropicOption configures the Anthropic client.
type AnthropicOption func(*AnthropicClient)

// WithAnthropicModel sets the model identifier.
func WithAnthropicModel(model string) AnthropicOption {
	return func(c *AnthropicClient) {
		if model != "" {
			c.model = model
		}
	}
}

// WithAnthropicBaseURL sets the API base URL.
func WithAnthropicBaseURL(u string) AnthropicOption {
	return func(c *AnthropicClient) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithAnthropicHTTPClient sets a custom HTTP client.
func WithAnthropicHTTPClient(hc *http.Client) AnthropicOption {
	return func(c *AnthropicClient) { c.httpClient = hc }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) AnthropicOption {
	return func(c *AnthropicClient) { c.temperature = t }
}

// NewAnthropicClient creates a Messages API client authenticated by apiKey.
func NewAnthropicClient(apiKey string, opts ...AnthropicOption) (*AnthropicClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("anthropic: API key is required")
	}
	c := &AnthropicClient{
		httpClient:  &http.Client{Timeout: defaultAnthropicTimeout},
		apiKey:      apiKey,
		model:       DefaultAnthropicModel,
		baseURL:     DefaultAnthropicBaseURL,
		temperature: 0.5,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Model returns the model identifier being used.
func (c *AnthropicClient) Model() string { return c.model }

// Complete sends a single user prompt.
func (c *AnthropicClient) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	return c.CompleteMessages(ctx, []Message{{Role: RoleUser, Content: prompt}}, maxTokens)
}

// CompleteMessages sends messages to the Messages API. System messages are
// folded into the request's system field.
func (c *AnthropicClient) CompleteMessages(ctx context.Context, messages []Message, maxTokens int) (string, error) {
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}

	req := messagesRequest{
		Model:       c.model,
		MaxTokens:   maxTokens,
		Temperature: c.temperature,
	}
	var system []string
	for _, m := range messages {
		if m.Role == RoleSystem {
			system = append(system, m.Content)
			continue
		}
		req.Messages = append(req.Messages, anthropicMessage{Role: m.Role, Content: m.Content})
	}
	req.System = strings.Join(system, "\n\n")
	if len(req.Messages) == 0 {
		return "", fmt.Errorf("anthropic: at least one non-system message is required")
	}

	resp, err := c.send(ctx, req)
	if err != nil {
		return "", err
	}

	for _, block := range resp.Content {
		if block.Type == "text" && strings.TrimSpace(block.Text) != "" {
			return strings.TrimSpace(block.Text), nil
		}
	}
	return "", &APIError{
		Provider:   "anthropic",
		StatusCode: http.StatusOK,
		Type:       "empty_response",
		Message:    "response contains no text content",
	}
}

func (c *AnthropicClient) send(ctx context.Context, apiReq messagesRequest) (*messagesResponse, error) {
	body, err := json.Marshal(apiReq)
	if err != nil {
		return nil, fmt.Errorf("anthropic: failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("anthropic: failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicAPIVersion)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("anthropic: request cancelled: %w", ctx.Err())
		}
		return nil, &APIError{
			Provider: "anthropic",
			Type:     "network_error",
			Message:  fmt.Sprintf("request failed: %v", err),
		}
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, 10<<20))
	if err != nil {
		return nil, &APIError{
			Provider: "anthropic",
			Type:     "network_error",
			Message:  fmt.Sprintf("failed to read response body: %v", err),
		}
	}

	if httpResp.StatusCode != http.StatusOK {
		apiErr := parseAnthropicAPIError(httpResp.StatusCode, respBody)
		if secs, err := strconv.Atoi(strings.TrimSpace(httpResp.Header.Get("retry-after"))); err == nil && secs > 0 {
			apiErr.Wait = time.Duration(secs) * time.Second
		}
		return nil, apiErr
	}

	var resp messagesResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("anthropic: failed to unmarshal response: %w", err)
	}
	return &resp, nil
}

func parseAnthropicAPIError(statusCode int, body []byte) *APIError {
	apiErr := &APIError{
		Provider:   "anthropic",
		StatusCode: statusCode,
		Message:    strings.TrimSpace(string(body)),
	}

	var errResp anthropicErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		apiErr.Message = errResp.Error.Message
		apiErr.Type = errResp.Error.Type
	}
	return apiErr
}
