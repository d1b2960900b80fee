// Package enrich summarizes and classifies papers with a language model.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/henrybloomingdale/paperstack/internal/llm"
	"github.com/henrybloomingdale/paperstack/internal/paper"
)

// ErrMalformedInput is returned for papers that cannot be analyzed, such as
// those without an abstract. It is never retried.
var ErrMalformedInput = errors.New("malformed input")

// MaxSummaryLength is Notion's limit for a single rich text item.
const MaxSummaryLength = 2000

// Config controls the completion requests.
type Config struct {
	SummaryTokens int // max tokens for the summary (default: 100)
	LabelTokens   int // max tokens for each label (default: 10)
}

// DefaultConfig returns the token budgets used by the CLI.
func DefaultConfig() Config {
	return Config{
		SummaryTokens: 100,
		LabelTokens:   10,
	}
}

// maxPartials bounds the completions kept for papers awaiting a retry.
const maxPartials = 256

// Enricher produces an enrichment triple for a paper. Each Analyze call
// either returns all three fields or an error. When a completion fails
// transiently, the ones that succeeded are kept and the next Analyze of the
// same paper resumes after them.
type Enricher struct {
	llm    llm.Client
	cfg    Config
	logger zerolog.Logger

	focusSystem  string
	attackSystem string

	mu       sync.Mutex
	partials map[string]partial
}

// partial holds the raw completions already made for one paper.
type partial struct {
	summary, focus string
	steps          int // completions done, in order: summary, focus
}

// New creates an Enricher backed by client.
func New(client llm.Client, cfg Config, logger zerolog.Logger) *Enricher {
	if cfg.SummaryTokens <= 0 {
		cfg.SummaryTokens = DefaultConfig().SummaryTokens
	}
	if cfg.LabelTokens <= 0 {
		cfg.LabelTokens = DefaultConfig().LabelTokens
	}
	return &Enricher{
		llm:          client,
		cfg:          cfg,
		logger:       logger.With().Str("component", "enrich").Logger(),
		focusSystem:  buildFocusPrompt(),
		attackSystem: buildAttackTypePrompt(),
		partials:     make(map[string]partial),
	}
}

// Analyze summarizes the paper's abstract and assigns focus and attack type
// labels. Labels outside the fixed sets come back as the Unclassified sentinel.
func (e *Enricher) Analyze(ctx context.Context, p paper.Paper) (paper.Enrichment, error) {
	abstract := strings.TrimSpace(p.Abstract)
	if abstract == "" {
		return paper.Enrichment{}, fmt.Errorf("%w: paper %s has no abstract", ErrMalformedInput, p.ID())
	}
	if strings.TrimSpace(p.Title) == "" {
		return paper.Enrichment{}, fmt.Errorf("%w: paper %s has no title", ErrMalformedInput, p.ID())
	}

	key := p.ID()
	done := e.takePartial(key)
	var err error

	if done.steps < 1 {
		if done.summary, err = e.complete(ctx, summarizePrompt, abstract, e.cfg.SummaryTokens); err != nil {
			return e.fail(key, done, fmt.Errorf("summary: %w", err))
		}
		done.steps = 1
	}

	if done.steps < 2 {
		if done.focus, err = e.complete(ctx, e.focusSystem, abstract, e.cfg.LabelTokens); err != nil {
			return e.fail(key, done, fmt.Errorf("focus label: %w", err))
		}
		done.steps = 2
	}

	rawAttack, err := e.complete(ctx, e.attackSystem, abstract, e.cfg.LabelTokens)
	if err != nil {
		return e.fail(key, done, fmt.Errorf("attack type: %w", err))
	}
	summary, rawFocus := done.summary, done.focus

	result := paper.Enrichment{
		Summary:    cleanSummary(summary),
		Focus:      paper.ParseFocus(rawFocus),
		AttackType: paper.ParseAttackType(rawAttack),
	}
	if result.Summary == "" {
		return paper.Enrichment{}, fmt.Errorf("%w: empty summary for paper %s", ErrMalformedInput, p.ID())
	}

	if result.Focus == paper.FocusUnclassified {
		e.logger.Warn().Str("paper", p.ID()).Str("raw", rawFocus).Msg("unrecognized focus label")
	}
	if result.AttackType == paper.AttackUnclassified {
		e.logger.Warn().Str("paper", p.ID()).Str("raw", rawAttack).Msg("unrecognized attack type")
	}
	return result, nil
}

func (e *Enricher) takePartial(key string) partial {
	e.mu.Lock()
	defer e.mu.Unlock()
	done := e.partials[key]
	delete(e.partials, key)
	return done
}

// fail keeps the finished completions when err will be retried.
func (e *Enricher) fail(key string, done partial, err error) (paper.Enrichment, error) {
	if done.steps > 0 && IsTransient(err) {
		e.mu.Lock()
		if len(e.partials) >= maxPartials {
			clear(e.partials)
		}
		e.partials[key] = done
		e.mu.Unlock()
	}
	return paper.Enrichment{}, err
}

func (e *Enricher) complete(ctx context.Context, system, abstract string, maxTokens int) (string, error) {
	return e.llm.CompleteMessages(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: system},
		{Role: llm.RoleUser, Content: abstract},
	}, maxTokens)
}

// IsTransient reports whether an Analyze error is worth retrying.
func IsTransient(err error) bool {
	if errors.Is(err, ErrMalformedInput) {
		return false
	}
	return llm.IsTransient(err)
}

func cleanSummary(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "\"'")
	s = strings.TrimSpace(s)
	return truncate(s, MaxSummaryLength)
}

// truncate returns s truncated to at most maxLen runes.
func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
