// Command arxiv-to-notion retrieves arXiv papers, enriches them with Claude
// and writes them to a Notion database.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/henrybloomingdale/paperstack/internal/arxiv"
	"github.com/henrybloomingdale/paperstack/internal/config"
	"github.com/henrybloomingdale/paperstack/internal/enrich"
	"github.com/henrybloomingdale/paperstack/internal/ledger"
	"github.com/henrybloomingdale/paperstack/internal/llm"
	"github.com/henrybloomingdale/paperstack/internal/logging"
	"github.com/henrybloomingdale/paperstack/internal/notion"
	"github.com/henrybloomingdale/paperstack/internal/output"
	"github.com/henrybloomingdale/paperstack/internal/paper"
	"github.com/henrybloomingdale/paperstack/internal/pipeline"
	"github.com/henrybloomingdale/paperstack/internal/retry"
)

// sampleSize is how many processed papers a dry run prints.
const sampleSize = 3

var (
	flagNotionToken  string
	flagDatabaseID   string
	flagClaudeToken  string
	flagModel        string
	flagClaudeCLI    bool
	flagQuery        string
	flagDefaultQuery bool
	flagMaxResults   int
	flagSort         string
	flagWorkers      int
	flagSkipAnalysis bool
	flagDryRun       bool
	flagOnFailure    string
	flagMaxAttempts  int
	flagNoProgress   bool

	flagLedger    string
	flagSkipSeen  bool
	flagConfig    string
	flagLogLevel  string
	flagLogFormat string
	flagJSON      bool
	flagHuman     bool
	flagFormat    string

	flagHistoryLimit int
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	// A second interrupt terminates immediately.
	go func() {
		<-ctx.Done()
		stop()
	}()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
	stop()
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "arxiv-to-notion",
		Short: "Store arXiv papers in Notion with Claude analysis",
		Long: `Retrieve papers from arXiv, analyze each abstract with Claude (summary, focus
label, attack type) and write the enriched papers to a Notion database.

Per-paper failures are retried when transient and reported in the run
summary; they do not fail the run.`,
		Example: `  arxiv-to-notion --query "adversarial attacks" --max-results 50
  arxiv-to-notion --use-default-query --max-results 100
  arxiv-to-notion --use-default-query --dry-run --limit 5
  arxiv-to-notion history
  arxiv-to-notion setup`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		PreRunE:      validateFlags,
		RunE:         runPipeline,
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&flagConfig, "config", "", "Config file (default: ./paperstack.yaml or ~/.config/paperstack/paperstack.yaml)")
	pf.StringVar(&flagLedger, "ledger", "", "Run ledger database (default: user config dir when --skip-seen is set)")
	pf.StringVar(&flagLogLevel, "log-level", "warn", "Log level: trace, debug, info, warn, error, off")
	pf.StringVar(&flagLogFormat, "log-format", "console", "Log format: console or json")
	pf.BoolVar(&flagJSON, "json", false, "Print results as JSON")
	pf.BoolVarP(&flagHuman, "human", "H", false, "Rich colorful terminal output")
	pf.StringVar(&flagFormat, "output-format", "", "Output format: simple, json, yaml, or human (default: human on a terminal, simple otherwise)")

	f := cmd.Flags()
	f.StringVar(&flagNotionToken, "notion-token", "", "Notion API token (default: NOTION_TOKEN env var)")
	f.StringVar(&flagDatabaseID, "database-id", "", "Notion database ID or URL (default: DATABASE_ID env var)")
	f.StringVar(&flagClaudeToken, "claude-token", "", "Claude API key (default: CLAUDE_API_KEY or ANTHROPIC_API_KEY env var)")
	f.StringVar(&flagModel, "model", llm.DefaultAnthropicModel, "Claude model used for analysis")
	f.BoolVar(&flagClaudeCLI, "claude-cli", false, "Analyze through the local claude CLI instead of the API")
	f.StringVarP(&flagQuery, "query", "q", "", "Custom arXiv search query")
	f.BoolVar(&flagDefaultQuery, "use-default-query", false, "Use the default AI security query")
	f.IntVar(&flagMaxResults, "max-results", 10, "Maximum number of papers to retrieve (alias --limit)")
	f.StringVar(&flagSort, "sort", string(arxiv.SortDate), "Sort by date, relevance, or lastUpdatedDate")
	f.IntVar(&flagWorkers, "workers", pipeline.DefaultWorkers, "Papers processed concurrently")
	f.BoolVar(&flagSkipAnalysis, "skip-analysis", false, "Skip Claude analysis and only store basic paper data")
	f.BoolVar(&flagDryRun, "dry-run", false, "Process papers but don't write to Notion")
	f.StringVar(&flagOnFailure, "on-analysis-failure", string(pipeline.SkipWrite), "What to do with papers whose analysis failed: skip or blank")
	f.IntVar(&flagMaxAttempts, "max-attempts", retry.DefaultPolicy().MaxAttempts, "Attempts per analysis or write call, including the first")
	f.Duration("retry-base-delay", retry.DefaultPolicy().BaseDelay, "Wait before the first retry")
	f.Duration("retry-max-delay", retry.DefaultPolicy().MaxDelay, "Longest wait between retries")
	f.BoolVar(&flagSkipSeen, "skip-seen", false, "Skip papers a previous run already wrote (uses the ledger)")
	f.BoolVar(&flagNoProgress, "no-progress", false, "Do not print per-paper progress")
	f.SetNormalizeFunc(config.NormalizeFlags)

	cmd.MarkFlagsMutuallyExclusive("query", "use-default-query")
	cmd.MarkFlagsMutuallyExclusive("json", "human")

	cmd.AddCommand(newHistoryCmd(), newSetupCmd())
	return cmd
}

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "history",
		Short:        "Show previous runs recorded in the ledger",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		PreRunE:      validateFlags,
		RunE:         runHistory,
	}
	cmd.Flags().IntVar(&flagHistoryLimit, "limit", 20, "Number of runs to show (0 for all)")
	return cmd
}

// validateFlags checks output flags that config loading does not cover.
func validateFlags(cmd *cobra.Command, args []string) error {
	if flagFormat != "" {
		f, err := output.ParseFormat(flagFormat)
		if err != nil {
			return err
		}
		if f == output.FormatDetailed {
			return fmt.Errorf("--output-format detailed only applies to paper-search")
		}
	}
	if (flagJSON || flagHuman) && flagFormat != "" {
		return fmt.Errorf("--output-format cannot be combined with --json or --human")
	}
	if flagHistoryLimit < 0 {
		return fmt.Errorf("--limit must be >= 0")
	}
	return nil
}

func loadConfig(cmd *cobra.Command) (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(cmd.Flags(), config.Options{ConfigFile: flagConfig})
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	lc := logging.DefaultConfig()
	lc.Level = cfg.Log.Level
	lc.Format = cfg.Log.Format
	lc.Output = cmd.ErrOrStderr()
	return cfg, logging.New(lc), nil
}

func outputCfg(w io.Writer) (output.OutputConfig, error) {
	f, err := output.ResolveFormat(flagFormat, flagJSON, flagHuman, w)
	if err != nil {
		return output.OutputConfig{}, err
	}
	return output.OutputConfig{Format: f}, nil
}

// pipelineConfig maps loaded settings onto a pipeline configuration.
func pipelineConfig(cfg *config.Config, query string) (pipeline.Config, error) {
	sort, err := cfg.SortOrder()
	if err != nil {
		return pipeline.Config{}, err
	}
	policy, err := pipeline.ParseFailurePolicy(cfg.OnAnalysisFailure)
	if err != nil {
		return pipeline.Config{}, err
	}

	pc := pipeline.DefaultConfig()
	pc.Query = query
	pc.Limit = cfg.MaxResults
	pc.Sort = sort
	pc.SkipAnalysis = cfg.SkipAnalysis
	pc.DryRun = cfg.DryRun
	pc.Workers = cfg.Workers
	pc.OnAnalysisFailure = policy
	pc.SkipSeen = cfg.SkipSeen
	pc.Retry = retry.Policy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseDelay:   cfg.Retry.BaseDelay,
		MaxDelay:    cfg.Retry.MaxDelay,
	}
	pc.Classify = enrich.IsTransient
	return pc, pc.Validate()
}

// newLLMClient picks the completion backend.
func newLLMClient(cfg *config.Config) (llm.Client, error) {
	if cfg.UseClaudeCLI {
		var opts []llm.ClaudeOption
		if cfg.Model != llm.DefaultAnthropicModel {
			opts = append(opts, llm.WithClaudeModel(cfg.Model))
		}
		return llm.NewClaudeClient(opts...)
	}
	return llm.NewAnthropicClient(cfg.ClaudeAPIKey,
		llm.WithAnthropicModel(cfg.Model),
		llm.WithAnthropicBaseURL(cfg.Endpoints.Anthropic),
	)
}

// newNotionSink builds the sink and checks the token and database schema
// before any paper is processed.
func newNotionSink(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*notion.Sink, error) {
	client := notion.NewClient(cfg.NotionToken,
		notion.WithBaseURL(cfg.Endpoints.Notion),
		notion.WithLogger(logger),
	)
	sink := notion.NewSink(client, cfg.DatabaseID, logger)
	if err := sink.Preflight(ctx); err != nil {
		return nil, fmt.Errorf("notion pre-flight failed: %w", err)
	}
	return sink, nil
}

// ledgerPath returns where the ledger lives, or "" when it is disabled.
// Live runs ask Notion what was already written, so only a dry run with
// --skip-seen falls back to the default ledger.
func ledgerPath(cfg *config.Config) string {
	switch {
	case cfg.Ledger != "":
		return cfg.Ledger
	case cfg.SkipSeen && cfg.DryRun:
		return ledger.DefaultPath()
	default:
		return ""
	}
}

func runPipeline(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	stdout, stderr := cmd.OutOrStdout(), cmd.ErrOrStderr()

	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	query, err := cfg.ResolveQuery()
	if err != nil {
		return err
	}
	if err := cfg.CheckCredentials(); err != nil {
		return err
	}
	pc, err := pipelineConfig(cfg, query)
	if err != nil {
		return err
	}
	outCfg, err := outputCfg(stdout)
	if err != nil {
		return err
	}

	fmt.Fprintln(stderr, "[+] arXiv to Notion")
	fmt.Fprintf(stderr, "    |- Max results: %d\n", pc.Limit)
	fmt.Fprintf(stderr, "    |- Skip analysis: %t\n", pc.SkipAnalysis)
	fmt.Fprintf(stderr, "    |- Dry run: %t\n", pc.DryRun)
	fmt.Fprintf(stderr, "    |- Search query: %s\n", shorten(query, 100))

	var analyzer pipeline.Analyzer
	if !pc.SkipAnalysis {
		client, err := newLLMClient(cfg)
		if err != nil {
			return fmt.Errorf("claude client: %w", err)
		}
		analyzer = enrich.New(client, enrich.DefaultConfig(), logger)
	}

	var sink pipeline.Sink
	var notionSink *notion.Sink
	if !pc.DryRun {
		fmt.Fprintln(stderr, " |- Validating Notion token and database...")
		s, err := newNotionSink(ctx, cfg, logger)
		if err != nil {
			return err
		}
		sink, notionSink = s, s
		fmt.Fprintln(stderr, "    |- Notion target valid")
	}

	opts := []pipeline.Option{pipeline.WithLogger(logger)}

	var run *ledger.Run
	if path := ledgerPath(cfg); path != "" {
		l, err := ledger.Open(ctx, path)
		if err != nil {
			return err
		}
		defer l.Close()
		run, err = l.BeginRun(ctx, query, pc.DryRun)
		if err != nil {
			return err
		}
		logger.Debug().Str("path", path).Int64("run", run.ID).Msg("ledger enabled")
	}
	switch {
	case notionSink != nil && (pc.SkipSeen || run != nil):
		opts = append(opts, pipeline.WithLedger(notionLedger{sink: notionSink, run: run}))
	case run != nil:
		opts = append(opts, pipeline.WithLedger(run))
	}

	var sample []paper.Paper
	human := outCfg.Format == output.FormatHuman
	useTUI := !flagNoProgress && output.IsTerminal(stderr) && output.IsTerminal(os.Stdin)
	progressCh := make(chan pipeline.ProgressUpdate, 1024)

	opts = append(opts, pipeline.WithProgress(func(u pipeline.ProgressUpdate) {
		if pc.DryRun && len(sample) < sampleSize && u.Outcome.Final == pipeline.StateDone {
			sample = append(sample, u.Outcome.Paper)
		}
		switch {
		case useTUI:
			select {
			case progressCh <- u:
			default:
			}
		case !flagNoProgress:
			output.FormatProgress(stderr, u, human)
		}
	}))

	fmt.Fprintln(stderr, " |- Processing papers...")
	p := pipeline.New(arxiv.NewClient(
		arxiv.WithBaseURL(cfg.Endpoints.Arxiv),
		arxiv.WithLogger(logger),
	), analyzer, sink, pc, opts...)

	var summary *pipeline.Summary
	var runErr error
	if useTUI {
		summary, runErr = runWithTUI(ctx, p, progressCh, pc.Limit, stderr)
	} else {
		summary, runErr = p.Run(ctx)
	}
	if summary == nil {
		return runErr
	}

	if run != nil {
		if err := run.Finish(context.WithoutCancel(ctx), summary); err != nil {
			logger.Warn().Err(err).Msg("ledger finish failed")
		}
	}

	if pc.DryRun && len(sample) > 0 && outCfg.Format != output.FormatJSON && outCfg.Format != output.FormatYAML {
		fmt.Fprintf(stdout, "Dry run: showing %d processed papers", len(sample))
		output.FormatSample(stdout, sample)
		fmt.Fprintln(stdout)
	}
	if err := output.FormatSummary(stdout, summary, outCfg); err != nil {
		return err
	}

	if runErr != nil {
		if errors.Is(runErr, pipeline.ErrSourceUnavailable) {
			return fmt.Errorf("arXiv search failed: %w", runErr)
		}
		return runErr
	}
	return nil
}

// notionLedger answers Seen from the target database and records outcomes
// in the local ledger when one is open.
type notionLedger struct {
	sink *notion.Sink
	run  *ledger.Run
}

func (l notionLedger) Seen(ctx context.Context, id string) (bool, error) {
	return l.sink.Seen(ctx, id)
}

func (l notionLedger) Record(ctx context.Context, o pipeline.Outcome) error {
	if l.run == nil {
		return nil
	}
	return l.run.Record(ctx, o)
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	path := cfg.Ledger
	if path == "" {
		path = ledger.DefaultPath()
	}
	outCfg, err := outputCfg(cmd.OutOrStdout())
	if err != nil {
		return err
	}

	l, err := ledger.Open(cmd.Context(), path)
	if err != nil {
		return err
	}
	defer l.Close()

	runs, err := l.History(cmd.Context(), flagHistoryLimit)
	if err != nil {
		return fmt.Errorf("read history: %w", err)
	}
	return output.FormatHistory(cmd.OutOrStdout(), runs, outCfg)
}

func shorten(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
