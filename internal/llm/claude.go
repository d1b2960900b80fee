// Claude CLI wrapper for LLM inference.
//
// Instead of calling the Anthropic API directly (which requires an API
// key), this backend shells out to the Claude Code CLI binary, which
// handles OAuth authentication via the user's Anthropic account.
//
// The claude binary must be installed: npm install -g @anthropic-ai/claude-code
//
// Security Model:
//   - Prompts are NOT shell-escaped because they are passed as arguments to exec.Command,
//     not through a shell. Go's exec.Command uses execve() directly.
//   - Input validation rejects prompts with null bytes (which could truncate strings in C code).
//   - Output is captured from stdout which contains only the text response in text mode.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// DefaultClaudeTimeout bounds a single CLI invocation.
const DefaultClaudeTimeout = 60 * time.Second

// ClaudeClient wraps the Claude CLI for LLM inference.
type ClaudeClient struct {
	model      string
	binaryPath string
	maxTurns   int
	timeout    time.Duration
	security   SecurityConfig
	run        func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ClaudeOption configures the Claude client.
type ClaudeOption func(*ClaudeClient)

// WithClaudeModel sets the model alias or identifier (default "haiku").
func WithClaudeModel(model string) ClaudeOption {
	return func(c *ClaudeClient) {
		if model != "" {
			c.model = model
		}
	}
}

// WithTimeout sets the timeout for Claude CLI calls.
func WithTimeout(d time.Duration) ClaudeOption {
	return func(c *ClaudeClient) { c.timeout = d }
}

// WithClaudeSecurityConfig sets the security configuration for sandbox and limits.
func WithClaudeSecurityConfig(cfg SecurityConfig) ClaudeOption {
	return func(c *ClaudeClient) { c.security = cfg }
}

// WithBinaryPath overrides the claude binary lookup.
func WithBinaryPath(path string) ClaudeOption {
	return func(c *ClaudeClient) { c.binaryPath = path }
}

// NewClaudeClient creates a client that shells out to the claude CLI.
func NewClaudeClient(opts ...ClaudeOption) (*ClaudeClient, error) {
	c := &ClaudeClient{
		model:    "haiku",
		maxTurns: 1,
		timeout:  DefaultClaudeTimeout,
		security: ForEnrichment(),
		run:      runCommand,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.binaryPath == "" {
		binaryPath, err := exec.LookPath("claude")
		if err != nil {
			return nil, fmt.Errorf("claude CLI not found (install: npm install -g @anthropic-ai/claude-code)")
		}
		c.binaryPath = binaryPath
	}
	if !c.security.SandboxMode.IsValid() {
		return nil, fmt.Errorf("invalid sandbox mode %q", c.security.SandboxMode)
	}
	return c, nil
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// Complete sends a prompt to Claude CLI and returns the response.
func (c *ClaudeClient) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	sanitizedPrompt, err := SanitizePromptWithConfig(prompt, c.security)
	if err != nil {
		return "", fmt.Errorf("invalid prompt: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	args := []string{
		"-p", // Print mode (non-interactive)
		"--output-format", "text",
		"--model", c.model,
		"--max-turns", strconv.Itoa(c.maxTurns),
	}
	// Without --dangerously-skip-permissions the CLI refuses tool use in
	// print mode, which is what read-only wants.
	if c.security.SandboxMode == SandboxFullAccess {
		args = append(args, "--dangerously-skip-permissions")
	}
	args = append(args, "--", sanitizedPrompt)

	output, err := c.run(callCtx, c.binaryPath, args...)
	if err != nil {
		return "", c.handleError(ctx, callCtx, err)
	}

	text := strings.TrimSpace(string(output))
	if text == "" {
		return "", &APIError{Provider: "claude-cli", Type: "empty_response", Message: "empty response from claude CLI"}
	}
	return text, nil
}

// CompleteMessages flattens the conversation into a single prompt.
func (c *ClaudeClient) CompleteMessages(ctx context.Context, messages []Message, maxTokens int) (string, error) {
	var parts []string
	for _, m := range messages {
		parts = append(parts, m.Content)
	}
	return c.Complete(ctx, strings.Join(parts, "\n\n"), maxTokens)
}

// handleError converts CLI failures into APIErrors so the retry policy can
// tell throttling and timeouts apart from authentication problems.
func (c *ClaudeClient) handleError(parent, callCtx context.Context, err error) error {
	if parent.Err() != nil {
		return fmt.Errorf("claude CLI request was cancelled: %w", parent.Err())
	}
	if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return &APIError{
			Provider: "claude-cli",
			Type:     "timeout",
			Message:  fmt.Sprintf("timed out after %d seconds", int(c.timeout.Seconds())),
		}
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		stderr := strings.ToLower(string(exitErr.Stderr))

		if strings.Contains(stderr, "not authenticated") ||
			strings.Contains(stderr, "login") ||
			strings.Contains(stderr, "unauthorized") ||
			strings.Contains(stderr, "api key") {
			return &APIError{
				Provider:   "claude-cli",
				StatusCode: http.StatusUnauthorized,
				Type:       "authentication_error",
				Message:    "claude CLI not authenticated - run 'claude login'",
			}
		}

		if strings.Contains(stderr, "rate limit") || strings.Contains(stderr, "too many requests") {
			return &APIError{
				Provider:   "claude-cli",
				StatusCode: http.StatusTooManyRequests,
				Type:       "rate_limit_error",
				Message:    "claude CLI rate limited",
			}
		}

		if strings.Contains(stderr, "overloaded") {
			return &APIError{
				Provider:   "claude-cli",
				StatusCode: 529,
				Type:       "overloaded_error",
				Message:    "claude CLI reports the model is overloaded",
			}
		}

		return &APIError{
			Provider:   "claude-cli",
			StatusCode: http.StatusBadRequest,
			Type:       "cli_error",
			Message:    fmt.Sprintf("exit %d: %s", exitErr.ExitCode(), strings.TrimSpace(string(exitErr.Stderr))),
		}
	}

	return fmt.Errorf("claude CLI error: %w", err)
}
