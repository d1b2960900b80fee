// Package output provides formatting for paperstack CLI output.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/henrybloomingdale/paperstack/internal/ledger"
	"github.com/henrybloomingdale/paperstack/internal/paper"
	"github.com/henrybloomingdale/paperstack/internal/pipeline"
)

// Format selects how results are rendered on stdout.
type Format string

const (
	FormatSimple   Format = "simple"
	FormatDetailed Format = "detailed"
	FormatJSON     Format = "json"
	FormatYAML     Format = "yaml"
	FormatHuman    Format = "human"
)

// ParseFormat converts a --output-format value.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatSimple, FormatDetailed, FormatJSON, FormatYAML, FormatHuman:
		return f, nil
	case "":
		return FormatSimple, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want simple, detailed, json, yaml or human)", s)
	}
}

// ResolveFormat picks the output format from CLI flags. The --json and
// --human shortcuts win over an explicit format; with none of them set, a
// terminal gets human output and anything else simple.
func ResolveFormat(format string, jsonFlag, human bool, w io.Writer) (Format, error) {
	switch {
	case jsonFlag:
		return FormatJSON, nil
	case human:
		return FormatHuman, nil
	case strings.TrimSpace(format) != "":
		return ParseFormat(format)
	case IsTerminal(w):
		return FormatHuman, nil
	default:
		return FormatSimple, nil
	}
}

// OutputConfig controls which output mode(s) are active.
type OutputConfig struct {
	Format       Format
	ShowAuthors  bool   // Include authors in simple output
	ShowAbstract bool   // Include an abstract preview in simple output
	Full         bool   // Show full abstract (detailed and human modes)
	CSVFile      string // Export results to this CSV path (works alongside any mode)
	RISFile      string // Export results to this RIS path (works alongside any mode)
}

// previewLen is the abstract preview length in plain output.
const previewLen = 200

// FormatPapers writes search results.
func FormatPapers(w io.Writer, papers []paper.Paper, cfg OutputConfig) error {
	if cfg.CSVFile != "" {
		if err := writePapersCSV(cfg.CSVFile, papers); err != nil {
			return fmt.Errorf("CSV export failed: %w", err)
		}
	}
	if cfg.RISFile != "" {
		if err := writePapersRIS(cfg.RISFile, papers); err != nil {
			return fmt.Errorf("RIS export failed: %w", err)
		}
	}

	switch cfg.Format {
	case FormatJSON:
		if papers == nil {
			papers = []paper.Paper{}
		}
		return writeJSON(w, papers)
	case FormatYAML:
		return writeYAML(w, papers)
	case FormatHuman:
		return formatPapersHuman(w, papers, cfg)
	case FormatDetailed:
		cfg.ShowAuthors, cfg.ShowAbstract = true, true
		return formatPapersPlain(w, papers, cfg, true)
	default:
		return formatPapersPlain(w, papers, cfg, false)
	}
}

// FormatSummary writes the end-of-run report.
func FormatSummary(w io.Writer, s *pipeline.Summary, cfg OutputConfig) error {
	switch cfg.Format {
	case FormatJSON:
		return writeJSON(w, s)
	case FormatYAML:
		return writeYAML(w, s)
	case FormatHuman:
		return formatSummaryHuman(w, s)
	default:
		return formatSummaryPlain(w, s)
	}
}

// FormatHistory writes previous runs recorded in the ledger.
func FormatHistory(w io.Writer, runs []ledger.RunRecord, cfg OutputConfig) error {
	switch cfg.Format {
	case FormatJSON:
		if runs == nil {
			runs = []ledger.RunRecord{}
		}
		return writeJSON(w, runs)
	case FormatYAML:
		return writeYAML(w, runs)
	case FormatHuman:
		return formatHistoryHuman(w, runs)
	default:
		return formatHistoryPlain(w, runs)
	}
}

// FormatProgress writes one line for a processed paper.
func FormatProgress(w io.Writer, u pipeline.ProgressUpdate, human bool) {
	if human {
		formatProgressHuman(w, u)
		return
	}
	fmt.Fprintf(w, "[%d/%d] %s %s (%s)\n", u.Processed, u.Limit, progressMark(u.Outcome), truncate(u.Outcome.Paper.Title, 60), progressStatus(u.Outcome))
}

// FormatSample writes the enrichment of processed papers, used by dry runs
// to show what would have been written.
func FormatSample(w io.Writer, papers []paper.Paper) {
	for i, p := range papers {
		fmt.Fprintf(w, "\n%d. %s\n", i+1, p.Title)
		fmt.Fprintf(w, "   Link: %s\n", p.Link)
		if p.Enrichment == nil {
			fmt.Fprintln(w, "   (not enriched)")
			continue
		}
		fmt.Fprintf(w, "   Summary: %s\n", p.Enrichment.Summary)
		fmt.Fprintf(w, "   Focus: %s\n", p.Enrichment.Focus)
		fmt.Fprintf(w, "   Attack Type: %s\n", p.Enrichment.AttackType)
	}
}

// --- Plain text formatters (default) ---

func formatPapersPlain(w io.Writer, papers []paper.Paper, cfg OutputConfig, detailed bool) error {
	if len(papers) == 0 {
		fmt.Fprintln(w, "No papers found.")
		return nil
	}

	fmt.Fprintf(w, "Found %d papers\n\n", len(papers))

	for i, p := range papers {
		if i > 0 {
			fmt.Fprintf(w, "%s\n", strings.Repeat("─", 80))
		}

		fmt.Fprintf(w, "%2d. %s\n", i+1, p.Title)
		fmt.Fprintf(w, "    Link: %s\n", p.Link)

		if cfg.ShowAuthors && len(p.Authors) > 0 {
			fmt.Fprintf(w, "    Authors: %s\n", authorList(p.Authors, 3))
		}
		if detailed {
			if !p.Published.IsZero() {
				fmt.Fprintf(w, "    Published: %s\n", p.Published.Format("2006-01-02"))
			}
			if len(p.Categories) > 0 {
				fmt.Fprintf(w, "    Categories: %s\n", strings.Join(p.Categories, ", "))
			}
			if e := p.Enrichment; e != nil {
				fmt.Fprintf(w, "    Summary: %s\n", e.Summary)
				fmt.Fprintf(w, "    Focus: %s\n", e.Focus)
				fmt.Fprintf(w, "    Attack Type: %s\n", e.AttackType)
			}
		}
		if cfg.ShowAbstract && p.Abstract != "" {
			abstract := strings.ReplaceAll(p.Abstract, "\n", " ")
			if !cfg.Full {
				abstract = truncate(abstract, previewLen)
			}
			fmt.Fprintf(w, "    Abstract: %s\n", abstract)
		}
	}

	return nil
}

func formatSummaryPlain(w io.Writer, s *pipeline.Summary) error {
	if s.DryRun {
		fmt.Fprintln(w, "Run summary (dry run)")
	} else {
		fmt.Fprintln(w, "Run summary")
	}
	if s.Query != "" {
		fmt.Fprintf(w, "  Query: %s\n", truncate(s.Query, 100))
	}
	fmt.Fprintf(w, "  Fetched:          %d\n", s.Fetched)
	fmt.Fprintf(w, "  Enriched:         %d\n", s.Enriched)
	fmt.Fprintf(w, "  Analysis failed:  %d\n", s.EnrichFailed)
	fmt.Fprintf(w, "  Analysis skipped: %d\n", s.AnalysisSkipped)
	fmt.Fprintf(w, "  Written:          %d\n", s.Written)
	fmt.Fprintf(w, "  Write failed:     %d\n", s.WriteFailed)
	fmt.Fprintf(w, "  Write skipped:    %d\n", s.WriteSkipped)
	if s.AlreadySeen > 0 {
		fmt.Fprintf(w, "  Already written:  %d\n", s.AlreadySeen)
	}
	fmt.Fprintf(w, "  Duration:         %s\n", s.Duration.Round(time.Millisecond))

	if s.Cancelled {
		fmt.Fprintf(w, "\nRun cancelled: %d papers interrupted\n", s.Interrupted)
	}

	if len(s.Failures) > 0 {
		fmt.Fprintf(w, "\nFailures (%d):\n", len(s.Failures))
		for _, f := range s.Failures {
			fmt.Fprintf(w, "  - %s [%s] %s: %s\n", f.PaperID, f.Stage, truncate(f.Title, 50), f.Reason)
		}
	}
	return nil
}

func formatHistoryPlain(w io.Writer, runs []ledger.RunRecord) error {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return nil
	}
	for _, r := range runs {
		fmt.Fprintf(w, "#%d  %s  fetched=%d enriched=%d written=%d failed=%d%s\n",
			r.ID, r.StartedAt.Local().Format("2006-01-02 15:04"),
			r.Fetched, r.Enriched, r.Written, r.EnrichFailed+r.WriteFailed, runFlags(r))
		fmt.Fprintf(w, "    %s\n", truncate(r.Query, 76))
	}
	return nil
}

// --- Shared helpers ---

// authorList joins up to n names, noting how many were left out.
func authorList(authors []string, n int) string {
	if len(authors) <= n {
		return strings.Join(authors, ", ")
	}
	return fmt.Sprintf("%s (and %d others)", strings.Join(authors[:n], ", "), len(authors)-n)
}

func progressMark(o pipeline.Outcome) string {
	switch {
	case o.Final == pipeline.StateInterrupted:
		return "!"
	case o.Final == pipeline.StateSeen:
		return "="
	case o.Failed():
		return "x"
	default:
		return "+"
	}
}

func progressStatus(o pipeline.Outcome) string {
	switch o.Final {
	case pipeline.StateInterrupted:
		return "interrupted"
	case pipeline.StateSeen:
		return "already written"
	}
	if o.Err != nil {
		return fmt.Sprintf("%s failed: %v", o.Stage, o.Err)
	}
	parts := []string{string(o.Analysis)}
	if o.Write != "" {
		parts = append(parts, string(o.Write))
	}
	return strings.Join(parts, ", ")
}

func runFlags(r ledger.RunRecord) string {
	var flags []string
	if r.DryRun {
		flags = append(flags, "dry-run")
	}
	if r.Cancelled {
		flags = append(flags, "cancelled")
	}
	if r.FinishedAt == nil {
		flags = append(flags, "unfinished")
	}
	if len(flags) == 0 {
		return ""
	}
	return " [" + strings.Join(flags, ", ") + "]"
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func writeYAML(w io.Writer, v interface{}) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
