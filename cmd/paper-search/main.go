// Command paper-search queries arXiv and prints matching papers.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/henrybloomingdale/paperstack/internal/arxiv"
	"github.com/henrybloomingdale/paperstack/internal/config"
	"github.com/henrybloomingdale/paperstack/internal/logging"
	"github.com/henrybloomingdale/paperstack/internal/output"
)

// largeLimit is the result count above which a slow-query warning is shown.
const largeLimit = 1000

var (
	flagQuery        string
	flagDefaultQuery bool
	flagLimit        int
	flagSort         string
	flagFormat       string
	flagShowAuthors  bool
	flagShowAbstract bool
	flagJSON         bool
	flagHuman        bool
	flagFull         bool
	flagCSV          string
	flagRIS          string
	flagConfig       string
	flagLogLevel     string
	flagLogFormat    string
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
		Use:   "paper-search",
		Short: "Search arXiv for papers",
		Long:  `Search arXiv for academic papers and display titles and links, optionally with authors, abstracts and CSV/RIS export.`,
		Example: `  paper-search --query "machine learning security" --limit 10
  paper-search --use-default-query --limit 20
  paper-search --query "adversarial attacks" --limit 5 --sort relevance --show-authors
  paper-search -q "prompt injection" --output-format json`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		PreRunE:      validateFlags,
		RunE:         runSearch,
	}

	f := cmd.Flags()
	f.StringVarP(&flagQuery, "query", "q", "", "Search query for arXiv papers")
	f.BoolVar(&flagDefaultQuery, "use-default-query", false, "Use the default AI security research query")
	f.IntVar(&flagLimit, "max-results", 10, "Number of papers to retrieve (alias --limit)")
	f.StringVar(&flagSort, "sort", string(arxiv.SortDate), "Sort by date, relevance, or lastUpdatedDate")
	f.StringVar(&flagFormat, "output-format", "", "Output format: simple, detailed, json, yaml, or human (default: human on a terminal, simple otherwise)")
	f.BoolVar(&flagShowAuthors, "show-authors", false, "Include author information in output")
	f.BoolVar(&flagShowAbstract, "show-abstract", false, "Include abstract preview in output")
	f.BoolVar(&flagJSON, "json", false, "Output as structured JSON (same as --output-format json)")
	f.BoolVarP(&flagHuman, "human", "H", false, "Rich colorful terminal output")
	f.BoolVar(&flagFull, "full", false, "Show full abstracts")
	f.StringVar(&flagCSV, "csv", "", "Export results to CSV file")
	f.StringVar(&flagRIS, "ris", "", "Export results to RIS file")
	f.StringVar(&flagConfig, "config", "", "Config file (default: ./paperstack.yaml or ~/.config/paperstack/paperstack.yaml)")
	f.StringVar(&flagLogLevel, "log-level", "warn", "Log level: trace, debug, info, warn, error, off")
	f.StringVar(&flagLogFormat, "log-format", "console", "Log format: console or json")
	f.SetNormalizeFunc(config.NormalizeFlags)

	cmd.MarkFlagsMutuallyExclusive("query", "use-default-query")
	cmd.MarkFlagsMutuallyExclusive("json", "human")
	return cmd
}

// validateFlags checks output flags that config loading does not cover.
func validateFlags(cmd *cobra.Command, args []string) error {
	if flagFormat != "" {
		if _, err := output.ParseFormat(flagFormat); err != nil {
			return err
		}
	}
	if flagJSON && flagHuman {
		return fmt.Errorf("--json and --human cannot be used together")
	}
	if (flagJSON || flagHuman) && flagFormat != "" {
		return fmt.Errorf("--output-format cannot be combined with --json or --human")
	}
	return nil
}

// resolveFormat picks the output format from flags, falling back to human
// output when w is a terminal.
func resolveFormat(w io.Writer) output.Format {
	f, err := output.ResolveFormat(flagFormat, flagJSON, flagHuman, w)
	if err != nil {
		return output.FormatSimple
	}
	return f
}

func outputCfg(w io.Writer) output.OutputConfig {
	return output.OutputConfig{
		Format:       resolveFormat(w),
		ShowAuthors:  flagShowAuthors,
		ShowAbstract: flagShowAbstract,
		Full:         flagFull,
		CSVFile:      flagCSV,
		RISFile:      flagRIS,
	}
}

func newLogger(cfg *config.Config, w io.Writer) zerolog.Logger {
	lc := logging.DefaultConfig()
	lc.Level = cfg.Log.Level
	lc.Format = cfg.Log.Format
	lc.Output = w
	return logging.New(lc)
}

func runSearch(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cmd.Flags(), config.Options{ConfigFile: flagConfig})
	if err != nil {
		return err
	}
	stdout, stderr := cmd.OutOrStdout(), cmd.ErrOrStderr()
	logger := newLogger(cfg, stderr)

	query, err := cfg.ResolveQuery()
	if err != nil {
		return err
	}
	sort, err := cfg.SortOrder()
	if err != nil {
		return err
	}

	if cfg.UseDefaultQuery {
		fmt.Fprintln(stderr, "🔍 Using default AI security research query")
	} else {
		fmt.Fprintf(stderr, "🔍 Searching for: %s\n", query)
	}
	if cfg.MaxResults > largeLimit {
		fmt.Fprintln(stderr, "⚠️  Large limit may take a long time. Consider using a smaller value.")
	}
	fmt.Fprintf(stderr, "📊 Retrieving %d papers (sorted by %s)\n", cfg.MaxResults, sort)

	client := arxiv.NewClient(
		arxiv.WithBaseURL(cfg.Endpoints.Arxiv),
		arxiv.WithLogger(logger),
	)
	papers, err := arxiv.Collect(client.Search(cmd.Context(), query, cfg.MaxResults, sort))
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	logger.Debug().Int("papers", len(papers)).Msg("search complete")

	return output.FormatPapers(stdout, papers, outputCfg(stdout))
}
