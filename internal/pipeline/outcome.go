package pipeline

import (
	"time"

	"github.com/henrybloomingdale/paperstack/internal/paper"
)

// State is a step in a paper's processing.
type State string

const (
	StateFetched      State = "fetched"
	StateEnriching    State = "enriching"
	StateEnriched     State = "enriched"
	StateEnrichFailed State = "enrich_failed"
	StateSkipped      State = "skipped"
	StateWriting      State = "writing"
	StateWritten      State = "written"
	StateWriteFailed  State = "write_failed"
	StateDone         State = "done"

	// StateInterrupted marks a paper cut short by cancellation.
	StateInterrupted State = "interrupted"
	// StateSeen marks a paper the ledger reported as already written.
	StateSeen State = "seen"
)

// Stage names the backend call a failure came from.
type Stage string

const (
	StageAnalyze Stage = "analyze"
	StageWrite   Stage = "write"
)

// Outcome is the result of processing one paper.
type Outcome struct {
	Index int
	Paper paper.Paper

	// Final is StateDone, StateInterrupted or StateSeen.
	Final State
	// Analysis is StateEnriched, StateEnrichFailed or StateSkipped.
	Analysis State
	// Write is StateWritten, StateWriteFailed or StateSkipped.
	Write State

	AnalyzeAttempts int
	WriteAttempts   int

	// Stage and Err describe the failure, if any.
	Stage Stage
	Err   error
}

// Failed reports whether any stage failed.
func (o Outcome) Failed() bool { return o.Err != nil && o.Final == StateDone }

// Failure is one entry in the run summary's failure list.
type Failure struct {
	PaperID string `json:"paper_id" yaml:"paper_id"`
	Title   string `json:"title" yaml:"title"`
	Stage   Stage  `json:"stage" yaml:"stage"`
	Reason  string `json:"reason" yaml:"reason"`
}

// Summary aggregates the outcomes of a run. Fetched counts papers that
// reached a final state; interrupted and already-seen papers are reported
// separately.
type Summary struct {
	Query           string        `json:"query" yaml:"query"`
	DryRun          bool          `json:"dry_run" yaml:"dry_run"`
	Fetched         int           `json:"fetched" yaml:"fetched"`
	Enriched        int           `json:"enriched" yaml:"enriched"`
	EnrichFailed    int           `json:"enrich_failed" yaml:"enrich_failed"`
	AnalysisSkipped int           `json:"analysis_skipped" yaml:"analysis_skipped"`
	Written         int           `json:"written" yaml:"written"`
	WriteFailed     int           `json:"write_failed" yaml:"write_failed"`
	WriteSkipped    int           `json:"write_skipped" yaml:"write_skipped"`
	AlreadySeen     int           `json:"already_seen" yaml:"already_seen"`
	Interrupted     int           `json:"interrupted" yaml:"interrupted"`
	Cancelled       bool          `json:"cancelled" yaml:"cancelled"`
	Failures        []Failure     `json:"failures" yaml:"failures"`
	Duration        time.Duration `json:"duration_ns" yaml:"duration"`
}

// Add folds one outcome into the summary.
func (s *Summary) Add(o Outcome) {
	switch o.Final {
	case StateInterrupted:
		s.Interrupted++
		return
	case StateSeen:
		s.AlreadySeen++
		return
	}

	s.Fetched++
	switch o.Analysis {
	case StateEnriched:
		s.Enriched++
	case StateEnrichFailed:
		s.EnrichFailed++
	case StateSkipped:
		s.AnalysisSkipped++
	}
	switch o.Write {
	case StateWritten:
		s.Written++
	case StateWriteFailed:
		s.WriteFailed++
	case StateSkipped:
		s.WriteSkipped++
	}

	if o.Err != nil {
		s.Failures = append(s.Failures, Failure{
			PaperID: o.Paper.ID(),
			Title:   o.Paper.Title,
			Stage:   o.Stage,
			Reason:  o.Err.Error(),
		})
	}
}

// Failed returns the number of papers that failed any stage.
func (s Summary) Failed() int { return len(s.Failures) }
