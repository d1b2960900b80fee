package pipeline

import (
	"context"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/henrybloomingdale/paperstack/internal/paper"
)

// DryRunSink stands in for the real sink in dry-run mode. Write never
// touches the network and always succeeds.
type DryRunSink struct {
	logger zerolog.Logger
	writes atomic.Int64
}

// NewDryRunSink returns a sink that only logs.
func NewDryRunSink(logger zerolog.Logger) *DryRunSink {
	return &DryRunSink{logger: logger}
}

// Write records a simulated write.
func (s *DryRunSink) Write(ctx context.Context, p paper.Paper) error {
	s.writes.Add(1)
	s.logger.Debug().Str("paper", p.ID()).Msg("dry run: skipping write")
	return nil
}

// Writes returns the number of simulated writes.
func (s *DryRunSink) Writes() int64 { return s.writes.Load() }
