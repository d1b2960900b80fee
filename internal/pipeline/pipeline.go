// Package pipeline drives papers from a source through enrichment into a
// sink, recording a per-paper outcome and a run summary.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/henrybloomingdale/paperstack/internal/arxiv"
	"github.com/henrybloomingdale/paperstack/internal/paper"
	"github.com/henrybloomingdale/paperstack/internal/retry"
)

// ErrSourceUnavailable is returned by Run when the paper source fails.
var ErrSourceUnavailable = arxiv.ErrSourceUnavailable

// Source yields papers for a query.
type Source interface {
	Search(ctx context.Context, query string, limit int, sort arxiv.Sort) iter.Seq2[paper.Paper, error]
}

// Analyzer produces an enrichment triple for a paper.
type Analyzer interface {
	Analyze(ctx context.Context, p paper.Paper) (paper.Enrichment, error)
}

// Sink persists a paper.
type Sink interface {
	Write(ctx context.Context, p paper.Paper) error
}

// Ledger remembers outcomes across runs. Seen takes the unversioned paper
// ID so a revision of an already written paper counts as seen.
type Ledger interface {
	Seen(ctx context.Context, id string) (bool, error)
	Record(ctx context.Context, o Outcome) error
}

// ProgressUpdate is emitted once per paper as its outcome is aggregated.
type ProgressUpdate struct {
	Outcome   Outcome
	Processed int
	Limit     int
}

// ProgressCallback receives progress updates from the pipeline.
// It is called from a single goroutine and must not block.
type ProgressCallback func(ProgressUpdate)

// Pipeline processes the papers of one query.
type Pipeline struct {
	source   Source
	analyzer Analyzer
	sink     Sink
	ledger   Ledger
	cfg      Config
	logger   zerolog.Logger
	progress ProgressCallback
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithProgress sets a callback for progress updates.
func WithProgress(cb ProgressCallback) Option {
	return func(p *Pipeline) { p.progress = cb }
}

// WithLedger records every outcome and enables Config.SkipSeen.
func WithLedger(l Ledger) Option {
	return func(p *Pipeline) { p.ledger = l }
}

// New creates a pipeline. In dry-run mode sink is replaced by a DryRunSink
// and may be nil; with SkipAnalysis the analyzer may be nil.
func New(source Source, analyzer Analyzer, sink Sink, cfg Config, opts ...Option) *Pipeline {
	p := &Pipeline{
		source:   source,
		analyzer: analyzer,
		sink:     sink,
		cfg:      cfg,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.cfg.Classify == nil {
		p.cfg.Classify = retry.IsTransient
	}
	if p.cfg.OnAnalysisFailure == "" {
		p.cfg.OnAnalysisFailure = SkipWrite
	}
	if p.cfg.DryRun {
		p.sink = NewDryRunSink(p.logger)
	}
	return p
}

func (p *Pipeline) validate() error {
	if err := p.cfg.Validate(); err != nil {
		return err
	}
	switch {
	case p.source == nil:
		return fmt.Errorf("%w: no paper source", ErrInvalidConfiguration)
	case p.analyzer == nil && !p.cfg.SkipAnalysis:
		return fmt.Errorf("%w: analysis enabled without an analyzer", ErrInvalidConfiguration)
	case p.sink == nil:
		return fmt.Errorf("%w: no sink configured", ErrInvalidConfiguration)
	case p.cfg.SkipSeen && p.ledger == nil:
		return fmt.Errorf("%w: skip-seen requires a ledger", ErrInvalidConfiguration)
	}
	return nil
}

type job struct {
	index int
	paper paper.Paper
}

// Run drains the source and processes every paper. Per-paper failures are
// recorded in the summary and never returned. Cancelling ctx stops new
// backend calls; the partial summary is returned with Cancelled set and a
// nil error. A source failure returns the partial summary and an error
// wrapping ErrSourceUnavailable.
func (p *Pipeline) Run(ctx context.Context) (*Summary, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	summary := &Summary{Query: p.cfg.Query, DryRun: p.cfg.DryRun}

	p.logger.Info().
		Str("query", p.cfg.Query).
		Int("limit", p.cfg.Limit).
		Str("sort", string(p.cfg.Sort)).
		Int("workers", p.cfg.Workers).
		Bool("skip_analysis", p.cfg.SkipAnalysis).
		Bool("dry_run", p.cfg.DryRun).
		Msg("pipeline started")

	jobs := make(chan job)
	results := make(chan Outcome)

	var srcErr error
	go func() {
		defer close(jobs)
		i := 0
		for pp, err := range p.source.Search(ctx, p.cfg.Query, p.cfg.Limit, p.cfg.Sort) {
			if err != nil {
				srcErr = err
				return
			}
			select {
			case jobs <- job{index: i, paper: pp}:
				i++
			case <-ctx.Done():
				return
			}
		}
	}()

	var wg sync.WaitGroup
	for range p.cfg.Workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				results <- p.process(ctx, j)
			}
		}()
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	processed := 0
	for o := range results {
		summary.Add(o)
		processed++
		if p.ledger != nil && o.Final != StateInterrupted {
			// The run's own context may be cancelled; the ledger should still
			// learn about papers that finished.
			if err := p.ledger.Record(context.WithoutCancel(ctx), o); err != nil {
				p.logger.Warn().Err(err).Str("paper", o.Paper.ID()).Msg("ledger record failed")
			}
		}
		if p.progress != nil {
			p.progress(ProgressUpdate{Outcome: o, Processed: processed, Limit: p.cfg.Limit})
		}
	}

	summary.Cancelled = ctx.Err() != nil
	summary.Duration = time.Since(start)

	log := p.logger.Info().
		Int("fetched", summary.Fetched).
		Int("enriched", summary.Enriched).
		Int("enrich_failed", summary.EnrichFailed).
		Int("written", summary.Written).
		Int("write_failed", summary.WriteFailed).
		Int("interrupted", summary.Interrupted).
		Bool("cancelled", summary.Cancelled).
		Dur("duration", summary.Duration)

	if srcErr != nil && !summary.Cancelled {
		log.Msg("pipeline aborted")
		if !errors.Is(srcErr, ErrSourceUnavailable) {
			srcErr = fmt.Errorf("%w: %w", ErrSourceUnavailable, srcErr)
		}
		return summary, srcErr
	}
	log.Msg("pipeline finished")
	return summary, nil
}

// process runs one paper through its state machine. Cancellation is checked
// before every backend call; a paper cut short is reported as interrupted.
func (p *Pipeline) process(ctx context.Context, j job) Outcome {
	o := Outcome{Index: j.index, Paper: j.paper}
	log := p.logger.With().Str("paper", j.paper.ID()).Logger()
	interrupted := func() Outcome {
		o.Final = StateInterrupted
		log.Debug().Msg("interrupted")
		return o
	}

	if ctx.Err() != nil {
		return interrupted()
	}

	if p.cfg.SkipSeen {
		seen, err := p.ledger.Seen(ctx, j.paper.ID())
		if err != nil {
			log.Warn().Err(err).Msg("ledger lookup failed")
		}
		if seen {
			o.Final = StateSeen
			log.Debug().Msg("already written, skipping")
			return o
		}
	}

	if p.cfg.SkipAnalysis {
		o.Analysis = StateSkipped
	} else {
		var e paper.Enrichment
		attempts, err := retry.Do(ctx, p.cfg.Retry, p.cfg.Classify, func(ctx context.Context) error {
			var err error
			e, err = p.analyzer.Analyze(ctx, j.paper)
			return err
		})
		o.AnalyzeAttempts = attempts
		if err == nil {
			err = o.Paper.Enrich(e)
		}

		switch {
		case ctx.Err() != nil:
			return interrupted()
		case err != nil:
			o.Analysis = StateEnrichFailed
			o.Stage = StageAnalyze
			o.Err = err
			log.Warn().Err(err).Int("attempts", attempts).Msg("analysis failed")
		default:
			o.Analysis = StateEnriched
			log.Debug().Int("attempts", attempts).Msg("enriched")
		}
	}

	if o.Analysis == StateEnrichFailed && p.cfg.OnAnalysisFailure == SkipWrite {
		o.Write = StateSkipped
		o.Final = StateDone
		return o
	}

	if ctx.Err() != nil {
		return interrupted()
	}

	attempts, err := retry.Do(ctx, p.cfg.Retry, p.cfg.Classify, func(ctx context.Context) error {
		return p.sink.Write(ctx, o.Paper)
	})
	o.WriteAttempts = attempts
	switch {
	case err == nil:
		o.Write = StateWritten
		log.Debug().Int("attempts", attempts).Msg("written")
	case ctx.Err() != nil:
		return interrupted()
	default:
		o.Write = StateWriteFailed
		// A failed write takes precedence in the failure list; the analysis
		// error is still visible in the log.
		o.Stage = StageWrite
		o.Err = err
		log.Warn().Err(err).Int("attempts", attempts).Msg("write failed")
	}

	o.Final = StateDone
	return o
}
