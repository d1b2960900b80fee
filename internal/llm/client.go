// Package llm provides Claude backends for paper enrichment: the
// Anthropic Messages API and the Claude Code CLI.
package llm

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/henrybloomingdale/paperstack/internal/retry"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client is implemented by every completion backend.
type Client interface {
	CompleteMessages(ctx context.Context, messages []Message, maxTokens int) (string, error)
}

// APIError represents a failed completion call.
type APIError struct {
	// Provider is the backend name ("anthropic", "claude-cli").
	Provider string
	// StatusCode is the HTTP status code, or 0 when no response was received.
	StatusCode int
	// Type is the error type reported by the backend.
	Type string
	// Message is the human-readable detail.
	Message string
	// Wait is the server's Retry-After hint, if any.
	Wait time.Duration
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("%s: API error (status %d, type %s): %s", e.Provider, e.StatusCode, e.Type, e.Message)
	}
	return fmt.Sprintf("%s: API error (status %d): %s", e.Provider, e.StatusCode, e.Message)
}

// IsTransient reports whether the call may succeed on retry: no response
// (network failure or timeout), request timeout, rate limiting, server
// errors and Anthropic's 529 overload.
func (e *APIError) IsTransient() bool {
	return e.StatusCode == 0 ||
		e.StatusCode == http.StatusRequestTimeout ||
		e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode >= 500
}

// RetryAfter returns the server's backoff hint.
func (e *APIError) RetryAfter() time.Duration { return e.Wait }

// IsTransient classifies err for retry purposes. It is retry.IsTransient,
// kept here so callers that only see llm errors need not import retry.
func IsTransient(err error) bool {
	return retry.IsTransient(err)
}
