package main

import (
	"context"
	"fmt"
	"io"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/henrybloomingdale/paperstack/internal/pipeline"
)

// runWithTUI runs the pipeline behind a spinner and progress bar. Pressing
// q, esc or ctrl+c cancels the run; the partial summary is still returned.
func runWithTUI(ctx context.Context, p *pipeline.Pipeline, progressCh chan pipeline.ProgressUpdate, limit int, w io.Writer) (*pipeline.Summary, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		summary *pipeline.Summary
		err     error
	}
	out := make(chan result, 1)

	go func() {
		defer close(progressCh)
		s, err := p.Run(ctx)
		out <- result{summary: s, err: err}
	}()

	prog := tea.NewProgram(
		newRunProgressModel(progressCh, cancel, limit),
		tea.WithOutput(w),
		tea.WithContext(ctx),
	)
	if _, uiErr := prog.Run(); uiErr != nil {
		cancel()
		o := <-out
		if o.summary != nil {
			return o.summary, o.err
		}
		return nil, uiErr
	}
	o := <-out
	return o.summary, o.err
}

// --- progress UI (Charm) ---

type runProgressMsg pipeline.ProgressUpdate

type runProgressDoneMsg struct{}

type runProgressModel struct {
	ch     <-chan pipeline.ProgressUpdate
	cancel context.CancelFunc

	spinner spinner.Model
	bar     progress.Model

	limit     int
	processed int
	written   int
	failed    int
	last      string
}

func newRunProgressModel(ch <-chan pipeline.ProgressUpdate, cancel context.CancelFunc, limit int) runProgressModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))

	bar := progress.New(progress.WithDefaultGradient())
	bar.Width = 32

	return runProgressModel{
		ch:      ch,
		cancel:  cancel,
		spinner: sp,
		bar:     bar,
		limit:   limit,
		last:    "Fetching papers from arXiv...",
	}
}

func (m runProgressModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitRunProgress(m.ch))
}

func waitRunProgress(ch <-chan pipeline.ProgressUpdate) tea.Cmd {
	return func() tea.Msg {
		u, ok := <-ch
		if !ok {
			return runProgressDoneMsg{}
		}
		return runProgressMsg(u)
	}
}

func (m runProgressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc", "q":
			if m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case runProgressMsg:
		u := pipeline.ProgressUpdate(msg)
		m.processed = u.Processed
		if u.Limit > 0 {
			m.limit = u.Limit
		}
		if u.Outcome.Write == pipeline.StateWritten {
			m.written++
		}
		if u.Outcome.Failed() {
			m.failed++
		}
		m.last = u.Outcome.Paper.Title
		return m, waitRunProgress(m.ch)

	case runProgressDoneMsg:
		return m, tea.Quit
	}
	return m, nil
}

func (m runProgressModel) View() string {
	bold := lipgloss.NewStyle().Bold(true)
	subtle := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))

	line := fmt.Sprintf("%s %s", m.spinner.View(), bold.Render(shorten(m.last, 70)))
	if m.limit == 0 {
		return line + "\n"
	}
	pct := float64(m.processed) / float64(m.limit)
	if pct > 1 {
		pct = 1
	}
	count := subtle.Render(fmt.Sprintf(" %d/%d  written %d  failed %d", m.processed, m.limit, m.written, m.failed))
	return line + "\n" + m.bar.ViewAs(pct) + count + "\n"
}
