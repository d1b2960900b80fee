package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/henrybloomingdale/paperstack/internal/arxiv"
)

func clearEnvVars(t *testing.T) {
	t.Helper()
	for _, names := range envAliases {
		for _, n := range names {
			t.Setenv(n, "")
		}
	}
	for _, n := range []string{"PAPERSTACK_ENDPOINTS_ARXIV", "PAPERSTACK_MAX_RESULTS", "PAPERSTACK_WORKERS", "PAPERSTACK_RETRY_MAX_ATTEMPTS", "PAPERSTACK_LOG_LEVEL", "PAPERSTACK_DRY_RUN"} {
		t.Setenv(n, "")
	}
}

// isolated returns Options that only look inside a fresh temp dir.
func isolated(t *testing.T) (Options, string) {
	t.Helper()
	dir := t.TempDir()
	return Options{ConfigPaths: []string{dir}, EnvFile: filepath.Join(dir, ".env")}, dir
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func testFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("notion-token", "", "")
	fs.String("database-id", "", "")
	fs.Int("max-results", 10, "")
	fs.Bool("dry-run", false, "")
	fs.String("log-level", "warn", "")
	fs.Int("workers", 4, "")
	return fs
}

func TestLoad_Defaults(t *testing.T) {
	clearEnvVars(t)
	opts, _ := isolated(t)

	cfg, err := Load(nil, opts)
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.MaxResults)
	assert.Equal(t, "date", cfg.Sort)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, "skip", cfg.OnAnalysisFailure)
	assert.Equal(t, "claude-3-5-haiku-latest", cfg.Model)
	assert.Equal(t, 4, cfg.Retry.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Retry.BaseDelay)
	assert.Equal(t, 30*time.Second, cfg.Retry.MaxDelay)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Empty(t, cfg.NotionToken)
	assert.Equal(t, arxiv.DefaultBaseURL, cfg.Endpoints.Arxiv)
	assert.Equal(t, "https://api.notion.com", cfg.Endpoints.Notion)
}

func TestLoad_EnvironmentAliases(t *testing.T) {
	clearEnvVars(t)
	opts, _ := isolated(t)
	t.Setenv("NOTION_TOKEN", "secret_env")
	t.Setenv("NOTION_DATABASE_ID", "db-env")
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant")
	t.Setenv("PAPERSTACK_RETRY_MAX_ATTEMPTS", "6")

	cfg, err := Load(nil, opts)
	require.NoError(t, err)

	assert.Equal(t, "secret_env", cfg.NotionToken)
	assert.Equal(t, "db-env", cfg.DatabaseID)
	assert.Equal(t, "sk-ant", cfg.ClaudeAPIKey)
	assert.Equal(t, 6, cfg.Retry.MaxAttempts)
}

func TestLoad_PreferredAliasWins(t *testing.T) {
	clearEnvVars(t)
	opts, _ := isolated(t)
	t.Setenv("DATABASE_ID", "primary")
	t.Setenv("NOTION_DATABASE_ID", "secondary")

	cfg, err := Load(nil, opts)
	require.NoError(t, err)
	assert.Equal(t, "primary", cfg.DatabaseID)
}

func TestLoad_Precedence(t *testing.T) {
	clearEnvVars(t)
	opts, dir := isolated(t)

	writeFile(t, filepath.Join(dir, "paperstack.yaml"), `
notion_token: from-file
database_id: file-db
max_results: 20
workers: 2
retry:
  base_delay: 2s
  max_delay: 10s
log:
  level: info
`)
	writeFile(t, opts.EnvFile, "NOTION_TOKEN=from-dotenv\nPAPERSTACK_MAX_RESULTS=30\nPAPERSTACK_RETRY_BASE_DELAY=3s\n")
	t.Setenv("NOTION_TOKEN", "from-env")

	fs := testFlags()
	require.NoError(t, fs.Parse([]string{"--workers", "8"}))

	cfg, err := Load(fs, opts)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.NotionToken, "environment beats .env")
	assert.Equal(t, 30, cfg.MaxResults, ".env beats config file")
	assert.Equal(t, "file-db", cfg.DatabaseID, "config file beats defaults")
	assert.Equal(t, 3*time.Second, cfg.Retry.BaseDelay)
	assert.Equal(t, 10*time.Second, cfg.Retry.MaxDelay)
	assert.Equal(t, 8, cfg.Workers, "flag beats config file")
	assert.Equal(t, "info", cfg.Log.Level, "unset flag does not override config file")
}

func TestLoad_FlagBeatsEnvironment(t *testing.T) {
	clearEnvVars(t)
	opts, _ := isolated(t)
	t.Setenv("NOTION_TOKEN", "from-env")

	fs := testFlags()
	require.NoError(t, fs.Parse([]string{"--notion-token", "from-flag", "--dry-run"}))

	cfg, err := Load(fs, opts)
	require.NoError(t, err)
	assert.Equal(t, "from-flag", cfg.NotionToken)
	assert.True(t, cfg.DryRun)
}

func TestLoad_ExplicitConfigFile(t *testing.T) {
	clearEnvVars(t)
	opts, dir := isolated(t)
	path := filepath.Join(dir, "custom.yaml")
	writeFile(t, path, "sort: relevance\n")
	opts.ConfigFile = path

	cfg, err := Load(nil, opts)
	require.NoError(t, err)
	assert.Equal(t, "relevance", cfg.Sort)

	opts.ConfigFile = filepath.Join(dir, "missing.yaml")
	_, err = Load(nil, opts)
	assert.Error(t, err)
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"bad sort", "sort: popularity\n"},
		{"zero results", "max_results: 0\n"},
		{"too many workers", "workers: 100\n"},
		{"bad policy", "on_analysis_failure: retry\n"},
		{"bad log format", "log:\n  format: xml\n"},
		{"max below base", "retry:\n  base_delay: 10s\n  max_delay: 1s\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnvVars(t)
			opts, dir := isolated(t)
			writeFile(t, filepath.Join(dir, "paperstack.yaml"), tt.yaml)

			_, err := Load(nil, opts)
			assert.Error(t, err)
		})
	}
}

func TestCheckCredentials(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"all present", Config{NotionToken: "t", DatabaseID: "d", ClaudeAPIKey: "k"}, false},
		{"dry run needs no notion", Config{DryRun: true, ClaudeAPIKey: "k"}, false},
		{"skip analysis needs no key", Config{NotionToken: "t", DatabaseID: "d", SkipAnalysis: true}, false},
		{"claude cli needs no key", Config{NotionToken: "t", DatabaseID: "d", UseClaudeCLI: true}, false},
		{"dry run and skip analysis", Config{DryRun: true, SkipAnalysis: true}, false},
		{"missing token", Config{DatabaseID: "d", ClaudeAPIKey: "k"}, true},
		{"missing database", Config{NotionToken: "t", ClaudeAPIKey: "k"}, true},
		{"missing key", Config{NotionToken: "t", DatabaseID: "d"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.CheckCredentials()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMissingCredentials)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestResolveQuery(t *testing.T) {
	q, err := (&Config{UseDefaultQuery: true, Query: "ignored"}).ResolveQuery()
	require.NoError(t, err)
	assert.Equal(t, arxiv.DefaultQuery, q)

	q, err = (&Config{Query: "  llm jailbreak "}).ResolveQuery()
	require.NoError(t, err)
	assert.Equal(t, "llm jailbreak", q)

	_, err = (&Config{}).ResolveQuery()
	assert.ErrorIs(t, err, ErrNoQuery)
}

func TestLoad_EndpointOverride(t *testing.T) {
	clearEnvVars(t)
	opts, _ := isolated(t)
	t.Setenv("PAPERSTACK_ENDPOINTS_ARXIV", "http://127.0.0.1:9999/api")

	cfg, err := Load(nil, opts)
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:9999/api", cfg.Endpoints.Arxiv)

	t.Setenv("PAPERSTACK_ENDPOINTS_ARXIV", "not a url")
	_, err = Load(nil, opts)
	assert.Error(t, err)
}

func TestNormalizeFlags(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.Int("max-results", 10, "")
	fs.String("claude-token", "", "")
	fs.SetNormalizeFunc(NormalizeFlags)

	require.NoError(t, fs.Parse([]string{"--limit", "25", "--claude-api-key", "k"}))

	n, err := fs.GetInt("max-results")
	require.NoError(t, err)
	assert.Equal(t, 25, n)
	key, err := fs.GetString("claude-token")
	require.NoError(t, err)
	assert.Equal(t, "k", key)
	assert.True(t, fs.Changed("max-results"))
}

func TestSaveFile_LoadsBack(t *testing.T) {
	clearEnvVars(t)
	path := filepath.Join(t.TempDir(), "nested", "paperstack.yaml")

	err := SaveFile(path, File{
		NotionToken:     "secret_abc",
		DatabaseID:      "0123456789abcdef0123456789abcdef",
		UseClaudeCLI:    true,
		UseDefaultQuery: true,
		MaxResults:      25,
		Workers:         2,
	})
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	cfg, err := Load(nil, Options{ConfigFile: path, EnvFile: filepath.Join(t.TempDir(), ".env")})
	require.NoError(t, err)
	assert.Equal(t, "secret_abc", cfg.NotionToken)
	assert.Equal(t, "0123456789abcdef0123456789abcdef", cfg.DatabaseID)
	assert.True(t, cfg.UseClaudeCLI)
	assert.True(t, cfg.UseDefaultQuery)
	assert.Equal(t, 25, cfg.MaxResults)
	assert.Equal(t, 2, cfg.Workers)
	assert.Equal(t, "date", cfg.Sort, "unset keys keep their defaults")
}

func TestUserConfigPath(t *testing.T) {
	t.Setenv("HOME", "/home/tester")
	assert.Equal(t, filepath.Join("/home/tester", ".config", "paperstack", "paperstack.yaml"), UserConfigPath())
}
