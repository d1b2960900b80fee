package llm

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrEmptyPrompt     = errors.New("prompt is empty")
	ErrNullByte        = errors.New("prompt contains null bytes")
	ErrPromptTooLong   = errors.New("prompt exceeds maximum length")
	ErrShellMetachars  = errors.New("prompt contains shell metacharacters")
	ErrPromptInjection = errors.New("prompt contains injection markers")
)

const shellMetachars = "`$|;&<>"

var injectionMarkers = []string{
	"ignore previous instructions",
	"ignore all previous instructions",
	"disregard the above",
	"<|im_start|>",
	"<|endoftext|>",
	"\n\nhuman:",
	"\n\nassistant:",
}

// SanitizePrompt validates a prompt against DefaultSecurityConfig.
func SanitizePrompt(prompt string) (string, error) {
	return SanitizePromptWithConfig(prompt, DefaultSecurityConfig())
}

// SanitizePromptWithConfig trims the prompt and rejects it if it violates cfg.
func SanitizePromptWithConfig(prompt string, cfg SecurityConfig) (string, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", ErrEmptyPrompt
	}
	if strings.ContainsRune(prompt, 0) {
		return "", ErrNullByte
	}
	if cfg.MaxPromptLength > 0 && len(prompt) > cfg.MaxPromptLength {
		return "", fmt.Errorf("%w (%d > %d bytes)", ErrPromptTooLong, len(prompt), cfg.MaxPromptLength)
	}
	if !cfg.AllowShellMetachars && strings.ContainsAny(prompt, shellMetachars) {
		return "", ErrShellMetachars
	}
	if cfg.BlockPromptInjection {
		lower := strings.ToLower(prompt)
		for _, marker := range injectionMarkers {
			if strings.Contains(lower, marker) {
				return "", fmt.Errorf("%w: %q", ErrPromptInjection, strings.TrimSpace(marker))
			}
		}
	}
	return prompt, nil
}
