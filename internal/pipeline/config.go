package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"github.com/henrybloomingdale/paperstack/internal/arxiv"
	"github.com/henrybloomingdale/paperstack/internal/retry"
)

// ErrInvalidConfiguration is returned by Run when a precondition is unmet.
// No backend is called in that case.
var ErrInvalidConfiguration = errors.New("invalid configuration")

// DefaultWorkers is the number of papers processed concurrently.
const DefaultWorkers = 4

// FailurePolicy decides what happens to a paper whose analysis failed.
type FailurePolicy string

const (
	// SkipWrite leaves papers with failed analysis out of the sink.
	SkipWrite FailurePolicy = "skip"
	// WriteBlank writes them with empty enrichment fields.
	WriteBlank FailurePolicy = "blank"
)

// ParseFailurePolicy accepts "skip" or "blank"; empty means SkipWrite.
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch FailurePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", SkipWrite:
		return SkipWrite, nil
	case WriteBlank:
		return WriteBlank, nil
	default:
		return "", fmt.Errorf("unknown analysis failure policy %q (use skip or blank)", s)
	}
}

// Config controls one pipeline run.
type Config struct {
	Query        string
	Limit        int
	Sort         arxiv.Sort
	SkipAnalysis bool
	DryRun       bool
	Workers      int

	// Retry bounds the attempts for each Analyze and Write call.
	Retry retry.Policy
	// Classify reports whether an error is transient. Defaults to retry.IsTransient.
	Classify func(error) bool

	OnAnalysisFailure FailurePolicy

	// SkipSeen skips papers the ledger reports as already written.
	SkipSeen bool
}

// DefaultConfig returns the configuration used by arxiv-to-notion.
func DefaultConfig() Config {
	return Config{
		Limit:             10,
		Sort:              arxiv.SortDate,
		Workers:           DefaultWorkers,
		Retry:             retry.DefaultPolicy(),
		Classify:          retry.IsTransient,
		OnAnalysisFailure: SkipWrite,
	}
}

// Validate checks the run preconditions that do not depend on collaborators.
func (c Config) Validate() error {
	var problems []string
	if strings.TrimSpace(c.Query) == "" {
		problems = append(problems, "no query specified")
	}
	if c.Limit < 1 {
		problems = append(problems, fmt.Sprintf("limit must be >= 1, got %d", c.Limit))
	}
	if c.Workers < 1 {
		problems = append(problems, fmt.Sprintf("workers must be >= 1, got %d", c.Workers))
	}
	if err := c.Retry.Validate(); err != nil {
		problems = append(problems, "retry: "+err.Error())
	}
	if _, err := ParseFailurePolicy(string(c.OnAnalysisFailure)); err != nil {
		problems = append(problems, err.Error())
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfiguration, strings.Join(problems, "; "))
	}
	return nil
}
