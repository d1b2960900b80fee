package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/huh/spinner"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/henrybloomingdale/paperstack/internal/config"
	"github.com/henrybloomingdale/paperstack/internal/llm"
	"github.com/henrybloomingdale/paperstack/internal/notion"
	"github.com/henrybloomingdale/paperstack/internal/output"
	"github.com/henrybloomingdale/paperstack/internal/pipeline"
)

var (
	flagSetupPath     string
	flagSetupNoVerify bool
)

// Styles.
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("99")).
			MarginBottom(1)

	subtitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			Italic(true)

	successStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("42"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))
)

const (
	backendAPI = "api"
	backendCLI = "cli"
)

func newSetupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Interactively create a config file",
		Long: `Walk through the Notion and Claude settings and write them to a config file.

The Notion token and database are checked before the file is saved unless
--no-verify is given.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE:         runSetup,
	}
	cmd.Flags().StringVar(&flagSetupPath, "path", "", "Where to write the config (default: ~/.config/paperstack/paperstack.yaml)")
	cmd.Flags().BoolVar(&flagSetupNoVerify, "no-verify", false, "Save without checking the Notion database")
	return cmd
}

// setupAnswers holds the raw form values.
type setupAnswers struct {
	notionToken  string
	databaseID   string
	backend      string
	claudeKey    string
	model        string
	defaultQuery bool
	query        string
	maxResults   string
	workers      string
	skipSeen     bool
}

func answersFrom(cfg *config.Config) setupAnswers {
	a := setupAnswers{
		notionToken:  cfg.NotionToken,
		databaseID:   cfg.DatabaseID,
		backend:      backendAPI,
		claudeKey:    cfg.ClaudeAPIKey,
		model:        cfg.Model,
		defaultQuery: cfg.UseDefaultQuery || strings.TrimSpace(cfg.Query) == "",
		query:        cfg.Query,
		maxResults:   strconv.Itoa(cfg.MaxResults),
		workers:      strconv.Itoa(cfg.Workers),
		skipSeen:     cfg.SkipSeen,
	}
	if cfg.UseClaudeCLI {
		a.backend = backendCLI
	}
	return a
}

// file converts the answers into the settings to save.
func (a setupAnswers) file() (config.File, error) {
	f := config.File{
		NotionToken:     strings.TrimSpace(a.notionToken),
		UseClaudeCLI:    a.backend == backendCLI,
		UseDefaultQuery: a.defaultQuery,
		SkipSeen:        a.skipSeen,
	}

	id, err := notion.FormatID(a.databaseID)
	if err != nil {
		return config.File{}, err
	}
	f.DatabaseID = id

	if !f.UseClaudeCLI {
		f.ClaudeAPIKey = strings.TrimSpace(a.claudeKey)
	}
	if m := strings.TrimSpace(a.model); m != "" && m != llm.DefaultAnthropicModel {
		f.Model = m
	}
	if !a.defaultQuery {
		f.Query = strings.TrimSpace(a.query)
	}

	if f.MaxResults, err = intOrZero(a.maxResults); err != nil {
		return config.File{}, fmt.Errorf("max results: %w", err)
	}
	if f.Workers, err = intOrZero(a.workers); err != nil {
		return config.File{}, fmt.Errorf("workers: %w", err)
	}
	return f, nil
}

func intOrZero(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}

func validatePositiveInt(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil // Allow empty for defaults.
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("please enter a whole number")
	}
	if n < 1 {
		return fmt.Errorf("must be at least 1")
	}
	return nil
}

func validateRequired(what string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("please enter %s", what)
		}
		return nil
	}
}

func validateDatabaseID(s string) error {
	_, err := notion.FormatID(s)
	return err
}

func setupForm(a *setupAnswers, confirm *bool) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Notion integration token").
				Description("From notion.so/my-integrations; the database must be shared with it").
				EchoMode(huh.EchoModePassword).
				Value(&a.notionToken).
				Validate(validateRequired("a token")),
			huh.NewInput().
				Title("Notion database").
				Description("Database ID or the URL of the database page").
				Value(&a.databaseID).
				Validate(validateDatabaseID),
		).Title("Notion"),

		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Claude backend").
				Options(
					huh.NewOption("Anthropic API (API key)", backendAPI),
					huh.NewOption("Local claude CLI (uses its login)", backendCLI),
				).
				Value(&a.backend),
			huh.NewInput().
				Title("Model").
				Placeholder(llm.DefaultAnthropicModel).
				Value(&a.model),
		).Title("Claude"),

		huh.NewGroup(
			huh.NewInput().
				Title("Claude API key").
				EchoMode(huh.EchoModePassword).
				Value(&a.claudeKey).
				Validate(validateRequired("an API key")),
		).WithHideFunc(func() bool { return a.backend == backendCLI }),

		huh.NewGroup(
			huh.NewConfirm().
				Title("Use the default AI security query?").
				Value(&a.defaultQuery),
			huh.NewInput().
				Title("Papers per run").
				Placeholder("10").
				Value(&a.maxResults).
				Validate(validatePositiveInt),
			huh.NewInput().
				Title("Workers").
				Description("Papers processed concurrently").
				Placeholder(strconv.Itoa(pipeline.DefaultWorkers)).
				Value(&a.workers).
				Validate(validatePositiveInt),
			huh.NewConfirm().
				Title("Skip papers already written by earlier runs?").
				Value(&a.skipSeen),
		).Title("Runs"),

		huh.NewGroup(
			huh.NewText().
				Title("Search query").
				Description("arXiv query syntax, e.g. \"prompt injection\" OR jailbreak").
				Value(&a.query).
				Validate(validateRequired("a query")),
		).WithHideFunc(func() bool { return a.defaultQuery }),

		huh.NewGroup(
			huh.NewConfirm().
				Title("Save these settings?").
				Affirmative("Save").
				Negative("Cancel").
				Value(confirm),
		),
	).WithTheme(huh.ThemeCatppuccin())
}

func runSetup(cmd *cobra.Command, args []string) error {
	if !output.IsTerminal(os.Stdout) || !output.IsTerminal(os.Stdin) {
		return errors.New("setup needs an interactive terminal; write paperstack.yaml by hand instead")
	}
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	path := flagSetupPath
	if path == "" {
		path = config.UserConfigPath()
	}

	// Prefill from the existing file and environment.
	opts := config.Options{}
	if _, err := os.Stat(path); err == nil {
		opts.ConfigFile = path
	}
	current, err := config.Load(nil, opts)
	if err != nil {
		return err
	}
	answers := answersFrom(current)

	fmt.Fprintln(out, titleStyle.Render("📚 arXiv to Notion setup"))
	fmt.Fprintln(out, subtitleStyle.Render("Settings are saved to "+path))

	var confirm bool
	if err := setupForm(&answers, &confirm).RunWithContext(ctx); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			fmt.Fprintln(out, dimStyle.Render("\nCancelled."))
			return nil
		}
		return err
	}
	if !confirm {
		fmt.Fprintln(out, dimStyle.Render("\nCancelled."))
		return nil
	}

	f, err := answers.file()
	if err != nil {
		return err
	}

	if !flagSetupNoVerify {
		sink := notion.NewSink(
			notion.NewClient(f.NotionToken, notion.WithBaseURL(current.Endpoints.Notion)),
			f.DatabaseID,
			zerolog.Nop(),
		)
		var verifyErr error
		spinErr := spinner.New().
			Title("Checking Notion database...").
			Context(ctx).
			Action(func() { verifyErr = sink.Preflight(ctx) }).
			Run()
		if spinErr != nil {
			return spinErr
		}
		if verifyErr != nil {
			return fmt.Errorf("notion check failed (use --no-verify to save anyway): %w", verifyErr)
		}
	}

	if err := config.SaveFile(path, f); err != nil {
		return err
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, successStyle.Render("✓ Saved "+path))
	fmt.Fprintln(out, dimStyle.Render("Try: arxiv-to-notion --dry-run --limit 3"))
	return nil
}
