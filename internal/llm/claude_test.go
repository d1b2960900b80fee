package llm

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"testing"
	"time"
)

func newFakeClaude(t *testing.T, run func(ctx context.Context, name string, args ...string) ([]byte, error)) *ClaudeClient {
	t.Helper()
	c, err := NewClaudeClient(WithBinaryPath("/usr/bin/claude"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c.run = run
	return c
}

func TestClaudeClient_CompleteArgs(t *testing.T) {
	var gotArgs []string
	c := newFakeClaude(t, func(ctx context.Context, name string, args ...string) ([]byte, error) {
		gotArgs = args
		return []byte("  Defensive\n"), nil
	})

	out, err := c.Complete(context.Background(), "classify $x & y", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "Defensive" {
		t.Errorf("expected %q, got %q", "Defensive", out)
	}

	joined := strings.Join(gotArgs, " ")
	if !strings.Contains(joined, "--model haiku") {
		t.Errorf("expected default model in args, got %q", joined)
	}
	if strings.Contains(joined, "--dangerously-skip-permissions") {
		t.Error("read-only mode must not skip permissions")
	}
	if gotArgs[len(gotArgs)-1] != "classify $x & y" {
		t.Errorf("expected prompt as final arg, got %q", gotArgs[len(gotArgs)-1])
	}
}

func TestClaudeClient_FullAccessFlag(t *testing.T) {
	var gotArgs []string
	c := newFakeClaude(t, func(ctx context.Context, name string, args ...string) ([]byte, error) {
		gotArgs = args
		return []byte("ok"), nil
	})
	c.security = c.security.WithFullAccess()

	if _, err := c.Complete(context.Background(), "hi", 10); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(strings.Join(gotArgs, " "), "--dangerously-skip-permissions") {
		t.Error("expected full access to skip permissions")
	}
}

func TestClaudeClient_CompleteMessagesJoins(t *testing.T) {
	var prompt string
	c := newFakeClaude(t, func(ctx context.Context, name string, args ...string) ([]byte, error) {
		prompt = args[len(args)-1]
		return []byte("ok"), nil
	})

	_, err := c.CompleteMessages(context.Background(), []Message{
		{Role: RoleSystem, Content: "system"},
		{Role: RoleUser, Content: "user"},
	}, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if prompt != "system\n\nuser" {
		t.Errorf("expected joined prompt, got %q", prompt)
	}
}

func TestClaudeClient_InvalidPromptNotRun(t *testing.T) {
	called := false
	c := newFakeClaude(t, func(ctx context.Context, name string, args ...string) ([]byte, error) {
		called = true
		return nil, nil
	})

	_, err := c.Complete(context.Background(), "bad\x00prompt", 10)
	if !errors.Is(err, ErrNullByte) {
		t.Errorf("expected ErrNullByte, got %v", err)
	}
	if IsTransient(err) {
		t.Error("invalid prompt must not be transient")
	}
	if called {
		t.Error("CLI must not run for an invalid prompt")
	}
}

func TestClaudeClient_Timeout(t *testing.T) {
	c := newFakeClaude(t, func(ctx context.Context, name string, args ...string) ([]byte, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	c.timeout = 10 * time.Millisecond

	_, err := c.Complete(context.Background(), "hi", 10)
	if !IsTransient(err) {
		t.Errorf("expected timeout to be transient, got %v", err)
	}
}

func TestClaudeClient_ParentCancelled(t *testing.T) {
	c := newFakeClaude(t, func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return nil, ctx.Err()
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Complete(ctx, "hi", 10)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if IsTransient(err) {
		t.Error("cancellation must not be transient")
	}
}

func TestClaudeClient_ExitErrors(t *testing.T) {
	tests := []struct {
		stderr    string
		status    int
		transient bool
	}{
		{"Error: not authenticated", 401, false},
		{"rate limit exceeded", 429, true},
		{"model overloaded", 529, true},
		{"something else", 400, false},
	}

	for _, tt := range tests {
		t.Run(tt.stderr, func(t *testing.T) {
			c := newFakeClaude(t, func(ctx context.Context, name string, args ...string) ([]byte, error) {
				return nil, &exec.ExitError{Stderr: []byte(tt.stderr)}
			})

			_, err := c.Complete(context.Background(), "hi", 10)
			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("expected *APIError, got %T: %v", err, err)
			}
			if apiErr.StatusCode != tt.status {
				t.Errorf("expected status %d, got %d", tt.status, apiErr.StatusCode)
			}
			if IsTransient(err) != tt.transient {
				t.Errorf("expected transient=%v for %q", tt.transient, tt.stderr)
			}
		})
	}
}

func TestClaudeClient_EmptyOutput(t *testing.T) {
	c := newFakeClaude(t, func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return []byte("   "), nil
	})

	_, err := c.Complete(context.Background(), "hi", 10)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Type != "empty_response" {
		t.Errorf("expected empty_response APIError, got %v", err)
	}
}

func TestNewClaudeClient_InvalidSandbox(t *testing.T) {
	_, err := NewClaudeClient(
		WithBinaryPath("/usr/bin/claude"),
		WithClaudeSecurityConfig(SecurityConfig{SandboxMode: "workspace-write"}),
	)
	if err == nil {
		t.Error("expected error for unknown sandbox mode")
	}
}
