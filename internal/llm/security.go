// Security configuration for the Claude CLI backend.
//
// Threat Model:
//
// The Claude Code CLI can execute tools on the host. Paper abstracts are
// untrusted input, and papers about prompt injection routinely quote the
// very payloads we would want to block, so the defence leans on the CLI's
// permission system rather than on content filtering.
//
// Risks mitigated:
//   - Prompt injection: an abstract could try to steer the model into
//     running commands. Without --dangerously-skip-permissions the CLI
//     refuses tool use in print mode, so it fails closed.
//   - Oversized input: prompt length limits keep a single paper from
//     blowing the context window.
//   - String truncation in C code: null bytes are rejected.
package llm

// SandboxMode controls what the Claude CLI may do on the system.
type SandboxMode string

const (
	// SandboxReadOnly prevents file writes and destructive commands.
	SandboxReadOnly SandboxMode = "read-only"

	// SandboxFullAccess bypasses all permission checks.
	// DANGEROUS: only with an explicit --unsafe flag.
	SandboxFullAccess SandboxMode = "danger-full-access"
)

// IsValid returns true if the sandbox mode is recognized.
func (m SandboxMode) IsValid() bool {
	switch m {
	case SandboxReadOnly, SandboxFullAccess:
		return true
	default:
		return false
	}
}

// IsDangerous returns true if the mode allows potentially destructive operations.
func (m SandboxMode) IsDangerous() bool {
	return m == SandboxFullAccess
}

// String returns the mode value for CLI flags.
func (m SandboxMode) String() string {
	return string(m)
}

// SecurityConfig holds security settings for the CLI backend.
type SecurityConfig struct {
	// SandboxMode controls filesystem and command restrictions.
	SandboxMode SandboxMode

	// MaxPromptLength limits prompt size in bytes. Zero disables the check.
	MaxPromptLength int

	// AllowShellMetachars permits shell metacharacters in prompts.
	// They are never interpreted (exec.Command bypasses the shell).
	AllowShellMetachars bool

	// BlockPromptInjection rejects prompts containing known injection markers.
	BlockPromptInjection bool
}

// DefaultSecurityConfig returns a safe default configuration.
func DefaultSecurityConfig() SecurityConfig {
	return SecurityConfig{
		SandboxMode:          SandboxReadOnly,
		MaxPromptLength:      100 * 1024,
		AllowShellMetachars:  false,
		BlockPromptInjection: true,
	}
}

// ForEnrichment returns the config used when summarizing and labelling
// abstracts. Abstracts contain $, & and | in math and routinely quote
// injection payloads, so those checks are relaxed; the sandbox is not.
func ForEnrichment() SecurityConfig {
	return SecurityConfig{
		SandboxMode:          SandboxReadOnly,
		MaxPromptLength:      50 * 1024,
		AllowShellMetachars:  true,
		BlockPromptInjection: false,
	}
}

// WithFullAccess returns a copy with full access enabled.
func (c SecurityConfig) WithFullAccess() SecurityConfig {
	c.SandboxMode = SandboxFullAccess
	return c
}
