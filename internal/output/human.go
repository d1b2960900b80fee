package output

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/henrybloomingdale/paperstack/internal/ledger"
	"github.com/henrybloomingdale/paperstack/internal/paper"
	"github.com/henrybloomingdale/paperstack/internal/pipeline"
)

// --- Styles ---

var (
	cyan       = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	bold       = lipgloss.NewStyle().Bold(true)
	dim        = lipgloss.NewStyle().Faint(true)
	green      = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	red        = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	yellow     = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	magenta    = lipgloss.NewStyle().Foreground(lipgloss.Color("5"))
	labelStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("4"))
	boxStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("6")).
			Padding(0, 1)
)

// humanAbstractLen is where human-mode abstracts are cut without --full.
const humanAbstractLen = 500

// truncate cuts a string to maxLen characters, appending "…" if truncated.
func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-1]) + "…"
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Headers(headers...).
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("8"))).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("4"))
			}
			return lipgloss.NewStyle()
		})
}

// --- Papers ---

func formatPapersHuman(w io.Writer, papers []paper.Paper, cfg OutputConfig) error {
	if len(papers) == 0 {
		fmt.Fprintln(w, "📚 No papers found.")
		return nil
	}

	fmt.Fprintln(w, bold.Render(fmt.Sprintf("📚 Found %d papers", len(papers))))
	fmt.Fprintln(w)

	if !cfg.ShowAbstract && !cfg.Full {
		t := newTable("#", "arXiv", "Title", "Published")
		for i, p := range papers {
			published := ""
			if !p.Published.IsZero() {
				published = p.Published.Format("2006-01-02")
			}
			t.Row(fmt.Sprintf("%d", i+1), cyan.Render(p.ID()), bold.Render(truncate(p.Title, 60)), published)
		}
		fmt.Fprintln(w, t.Render())
		fmt.Fprintln(w)
		fmt.Fprintln(w, dim.Render("💾 Use --csv papers.csv or --ris papers.ris to export"))
		return nil
	}

	for i, p := range papers {
		if i > 0 {
			fmt.Fprintln(w)
		}

		// Title card
		meta := cyan.Render("arXiv: " + p.ID())
		if !p.Published.IsZero() {
			meta += dim.Render(" · ") + p.Published.Format("2006-01-02")
		}
		fmt.Fprintln(w, boxStyle.Render(bold.Render(p.Title)+"\n"+meta))
		fmt.Fprintln(w)

		if len(p.Authors) > 0 {
			fmt.Fprintf(w, "  %s %s\n", labelStyle.Render("Authors:"), strings.Join(p.Authors, ", "))
		}
		fmt.Fprintf(w, "  %s %s\n", labelStyle.Render("Link:"), yellow.Render(p.Link))
		if len(p.Categories) > 0 {
			fmt.Fprintf(w, "  %s %s\n", labelStyle.Render("Categories:"), magenta.Render(strings.Join(p.Categories, ", ")))
		}
		if e := p.Enrichment; e != nil {
			fmt.Fprintf(w, "  %s %s\n", labelStyle.Render("Focus:"), green.Render(string(e.Focus)))
			fmt.Fprintf(w, "  %s %s\n", labelStyle.Render("Attack Type:"), green.Render(string(e.AttackType)))
			fmt.Fprintf(w, "  %s %s\n", labelStyle.Render("Summary:"), e.Summary)
		}

		if p.Abstract != "" {
			fmt.Fprintln(w)
			fmt.Fprintf(w, "  %s\n", labelStyle.Render("Abstract:"))
			abstract := p.Abstract
			cut := !cfg.Full && len([]rune(abstract)) > humanAbstractLen
			if cut {
				abstract = truncate(abstract, humanAbstractLen)
			}
			for _, line := range strings.Split(wordWrap(abstract, 76), "\n") {
				fmt.Fprintf(w, "  %s\n", line)
			}
			if cut {
				fmt.Fprintf(w, "  %s\n", dim.Render("[use --full for complete abstract]"))
			}
		}
	}

	return nil
}

// --- Progress ---

func formatProgressHuman(w io.Writer, u pipeline.ProgressUpdate) {
	o := u.Outcome
	var mark string
	switch {
	case o.Final == pipeline.StateInterrupted:
		mark = yellow.Render("⏸")
	case o.Final == pipeline.StateSeen:
		mark = dim.Render("≡")
	case o.Failed():
		mark = red.Render("✗")
	default:
		mark = green.Render("✓")
	}
	counter := dim.Render(fmt.Sprintf("[%d/%d]", u.Processed, u.Limit))
	fmt.Fprintf(w, "%s %s %s %s\n", counter, mark, truncate(o.Paper.Title, 60), dim.Render("("+progressStatus(o)+")"))
}

// --- Summary ---

func formatSummaryHuman(w io.Writer, s *pipeline.Summary) error {
	header := "📊 Run summary"
	if s.DryRun {
		header += " (dry run)"
	}
	fmt.Fprintln(w, bold.Render(header))
	if s.Query != "" {
		fmt.Fprintf(w, "   Query: %s\n", dim.Render(truncate(s.Query, 100)))
	}
	fmt.Fprintln(w)

	count := func(n int, style lipgloss.Style) string {
		if n == 0 {
			return dim.Render("0")
		}
		return style.Render(fmt.Sprintf("%d", n))
	}

	t := newTable("Stage", "Count").
		Row("Fetched", bold.Render(fmt.Sprintf("%d", s.Fetched))).
		Row("Enriched", count(s.Enriched, green)).
		Row("Analysis failed", count(s.EnrichFailed, red)).
		Row("Analysis skipped", count(s.AnalysisSkipped, yellow)).
		Row("Written", count(s.Written, green)).
		Row("Write failed", count(s.WriteFailed, red)).
		Row("Write skipped", count(s.WriteSkipped, yellow))
	if s.AlreadySeen > 0 {
		t.Row("Already written", count(s.AlreadySeen, cyan))
	}
	fmt.Fprintln(w, t.Render())
	fmt.Fprintf(w, "   %s\n", dim.Render("Duration: "+s.Duration.Round(time.Millisecond).String()))

	if s.Cancelled {
		fmt.Fprintln(w)
		fmt.Fprintln(w, yellow.Render(fmt.Sprintf("⏸  Run cancelled: %d papers interrupted", s.Interrupted)))
	}

	if len(s.Failures) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, bold.Render(fmt.Sprintf("✗ Failures (%d)", len(s.Failures))))
		ft := newTable("arXiv", "Stage", "Title", "Reason")
		for _, f := range s.Failures {
			ft.Row(cyan.Render(f.PaperID), string(f.Stage), truncate(f.Title, 40), red.Render(truncate(f.Reason, 60)))
		}
		fmt.Fprintln(w, ft.Render())
	}
	return nil
}

// --- History ---

func formatHistoryHuman(w io.Writer, runs []ledger.RunRecord) error {
	if len(runs) == 0 {
		fmt.Fprintln(w, "🗂️  No runs recorded.")
		return nil
	}

	fmt.Fprintln(w, bold.Render(fmt.Sprintf("🗂️  %d runs", len(runs))))
	fmt.Fprintln(w)

	t := newTable("#", "Started", "Query", "Fetched", "Enriched", "Written", "Failed", "Notes")
	for _, r := range runs {
		failed := r.EnrichFailed + r.WriteFailed
		failedCell := dim.Render("0")
		if failed > 0 {
			failedCell = red.Render(fmt.Sprintf("%d", failed))
		}
		t.Row(
			cyan.Render(fmt.Sprintf("%d", r.ID)),
			r.StartedAt.Local().Format("2006-01-02 15:04"),
			truncate(r.Query, 40),
			fmt.Sprintf("%d", r.Fetched),
			fmt.Sprintf("%d", r.Enriched),
			green.Render(fmt.Sprintf("%d", r.Written)),
			failedCell,
			dim.Render(strings.Trim(runFlags(r), " []")),
		)
	}
	fmt.Fprintln(w, t.Render())
	return nil
}

// wordWrap wraps text at the given width, breaking at spaces.
func wordWrap(text string, width int) string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return ""
	}

	var lines []string
	current := words[0]

	for _, word := range words[1:] {
		if len([]rune(current))+1+len([]rune(word)) > width {
			lines = append(lines, current)
			current = word
		} else {
			current += " " + word
		}
	}
	lines = append(lines, current)
	return strings.Join(lines, "\n")
}
