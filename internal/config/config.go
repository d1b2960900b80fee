// Package config loads CLI settings from defaults, an optional config file,
// an optional .env file, the environment and command-line flags, in
// increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/henrybloomingdale/paperstack/internal/arxiv"
	"github.com/henrybloomingdale/paperstack/internal/llm"
	"github.com/henrybloomingdale/paperstack/internal/notion"
)

var (
	// ErrNoQuery is returned when neither a query nor the default query was requested.
	ErrNoQuery = errors.New("no query specified (use --query or --use-default-query)")
	// ErrMissingCredentials is returned when an enabled feature lacks its credentials.
	ErrMissingCredentials = errors.New("missing credentials")
)

// Config holds every setting the CLIs read.
type Config struct {
	NotionToken  string `mapstructure:"notion_token"`
	DatabaseID   string `mapstructure:"database_id"`
	ClaudeAPIKey string `mapstructure:"claude_api_key"`
	Model        string `mapstructure:"model"`
	UseClaudeCLI bool   `mapstructure:"claude_cli"`

	Query           string `mapstructure:"query"`
	UseDefaultQuery bool   `mapstructure:"use_default_query"`
	MaxResults      int    `mapstructure:"max_results" validate:"min=1"`
	Sort            string `mapstructure:"sort" validate:"oneof=date relevance lastUpdatedDate last-updated"`

	Workers           int    `mapstructure:"workers" validate:"min=1,max=32"`
	SkipAnalysis      bool   `mapstructure:"skip_analysis"`
	DryRun            bool   `mapstructure:"dry_run"`
	OnAnalysisFailure string `mapstructure:"on_analysis_failure" validate:"oneof=skip blank"`

	Retry RetryConfig `mapstructure:"retry"`

	Ledger   string `mapstructure:"ledger"`
	SkipSeen bool   `mapstructure:"skip_seen"`

	Log LogConfig `mapstructure:"log"`

	Endpoints EndpointsConfig `mapstructure:"endpoints"`
}

// RetryConfig bounds retries of enrichment and write calls.
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts" validate:"min=1,max=10"`
	BaseDelay   time.Duration `mapstructure:"base_delay" validate:"min=0"`
	MaxDelay    time.Duration `mapstructure:"max_delay" validate:"min=0,gtefield=BaseDelay"`
}

// LogConfig controls diagnostic logging.
type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=trace debug info warn warning error off"`
	Format string `mapstructure:"format" validate:"oneof=console json"`
}

// EndpointsConfig overrides backend base URLs, for proxies and local fakes.
type EndpointsConfig struct {
	Arxiv     string `mapstructure:"arxiv" validate:"url"`
	Notion    string `mapstructure:"notion" validate:"url"`
	Anthropic string `mapstructure:"anthropic" validate:"url"`
}

// Options locate the optional files. Empty fields use the defaults.
type Options struct {
	// ConfigFile is an explicit config file path.
	ConfigFile string
	// ConfigPaths are searched for paperstack.yaml when ConfigFile is empty.
	ConfigPaths []string
	// EnvFile is the .env path; defaults to ".env" in the working directory.
	EnvFile string
}

// envAliases lists the environment variables recognized for each key, in
// order of preference. Other keys use PAPERSTACK_<KEY>.
var envAliases = map[string][]string{
	"notion_token":   {"PAPERSTACK_NOTION_TOKEN", "NOTION_TOKEN"},
	"database_id":    {"PAPERSTACK_DATABASE_ID", "DATABASE_ID", "NOTION_DATABASE_ID"},
	"claude_api_key": {"PAPERSTACK_CLAUDE_API_KEY", "CLAUDE_API_KEY", "ANTHROPIC_API_KEY"},
}

// flagKeys maps command-line flag names to config keys.
var flagKeys = map[string]string{
	"notion-token":        "notion_token",
	"database-id":         "database_id",
	"claude-token":        "claude_api_key",
	"model":               "model",
	"claude-cli":          "claude_cli",
	"query":               "query",
	"use-default-query":   "use_default_query",
	"max-results":         "max_results",
	"sort":                "sort",
	"workers":             "workers",
	"skip-analysis":       "skip_analysis",
	"dry-run":             "dry_run",
	"on-analysis-failure": "on_analysis_failure",
	"max-attempts":        "retry.max_attempts",
	"retry-base-delay":    "retry.base_delay",
	"retry-max-delay":     "retry.max_delay",
	"ledger":              "ledger",
	"skip-seen":           "skip_seen",
	"log-level":           "log.level",
	"log-format":          "log.format",
}

// NormalizeFlags maps alternate flag spellings to their canonical names.
// Install it with FlagSet.SetNormalizeFunc.
func NormalizeFlags(_ *pflag.FlagSet, name string) pflag.NormalizedName {
	switch name {
	case "limit":
		name = "max-results"
	case "claude-api-key":
		name = "claude-token"
	}
	return pflag.NormalizedName(name)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("notion_token", "")
	v.SetDefault("database_id", "")
	v.SetDefault("claude_api_key", "")
	v.SetDefault("model", llm.DefaultAnthropicModel)
	v.SetDefault("claude_cli", false)

	v.SetDefault("query", "")
	v.SetDefault("use_default_query", false)
	v.SetDefault("max_results", 10)
	v.SetDefault("sort", string(arxiv.SortDate))

	v.SetDefault("workers", 4)
	v.SetDefault("skip_analysis", false)
	v.SetDefault("dry_run", false)
	v.SetDefault("on_analysis_failure", "skip")

	v.SetDefault("retry.max_attempts", 4)
	v.SetDefault("retry.base_delay", "1s")
	v.SetDefault("retry.max_delay", "30s")

	v.SetDefault("ledger", "")
	v.SetDefault("skip_seen", false)

	v.SetDefault("log.level", "warn")
	v.SetDefault("log.format", "console")

	v.SetDefault("endpoints.arxiv", arxiv.DefaultBaseURL)
	v.SetDefault("endpoints.notion", notion.DefaultBaseURL)
	v.SetDefault("endpoints.anthropic", llm.DefaultAnthropicBaseURL)
}

// Load resolves the configuration. flags may be nil; only flags that were
// set on the command line override other sources.
func Load(flags *pflag.FlagSet, opts Options) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if err := readConfigFile(v, opts); err != nil {
		return nil, err
	}
	if err := mergeDotEnv(v, opts.EnvFile); err != nil {
		return nil, err
	}

	v.SetEnvPrefix("PAPERSTACK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	for key, names := range envAliases {
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag --%s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func readConfigFile(v *viper.Viper, opts Options) error {
	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file: %w", err)
		}
		return nil
	}

	v.SetConfigName("paperstack")
	v.SetConfigType("yaml")
	paths := opts.ConfigPaths
	if paths == nil {
		paths = []string{"."}
		if dir := userConfigDir(); dir != "" {
			paths = append(paths, dir)
		}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}
	return nil
}

// mergeDotEnv layers a .env file above the config file. Only recognized
// names are used; a missing file is not an error.
func mergeDotEnv(v *viper.Viper, path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); err != nil {
		return nil
	}

	dv := viper.New()
	dv.SetConfigFile(path)
	dv.SetConfigType("env")
	if err := dv.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	merged := map[string]any{}
	for _, key := range v.AllKeys() {
		names := envAliases[key]
		if names == nil {
			names = []string{"PAPERSTACK_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))}
		}
		// Later names in the alias list have lower priority.
		for i := len(names) - 1; i >= 0; i-- {
			if name := strings.ToLower(names[i]); dv.IsSet(name) {
				setNested(merged, key, dv.Get(name))
			}
		}
	}
	if len(merged) == 0 {
		return nil
	}
	return v.MergeConfigMap(merged)
}

func setNested(m map[string]any, key string, val any) {
	parts := strings.Split(key, ".")
	for _, p := range parts[:len(parts)-1] {
		next, ok := m[p].(map[string]any)
		if !ok {
			next = map[string]any{}
			m[p] = next
		}
		m = next
	}
	m[parts[len(parts)-1]] = val
}

// Validate checks value ranges. Credentials are checked separately because
// which ones are needed depends on the mode.
func (c *Config) Validate() error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
			}
			return errors.New(strings.Join(msgs, "; "))
		}
		return err
	}
	return nil
}

// CheckCredentials reports the credentials the pipeline needs but lacks:
// Notion unless this is a dry run, and an API key when analysis runs
// against the Anthropic API.
func (c *Config) CheckCredentials() error {
	var missing []string
	if !c.DryRun {
		if c.NotionToken == "" {
			missing = append(missing, "Notion token (--notion-token or NOTION_TOKEN)")
		}
		if c.DatabaseID == "" {
			missing = append(missing, "Notion database ID (--database-id or DATABASE_ID)")
		}
	}
	if !c.SkipAnalysis && !c.UseClaudeCLI && c.ClaudeAPIKey == "" {
		missing = append(missing, "Claude API key (--claude-token or CLAUDE_API_KEY)")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingCredentials, strings.Join(missing, ", "))
	}
	return nil
}

// ResolveQuery returns the query to run.
func (c *Config) ResolveQuery() (string, error) {
	if c.UseDefaultQuery {
		return arxiv.DefaultQuery, nil
	}
	if q := strings.TrimSpace(c.Query); q != "" {
		return q, nil
	}
	return "", ErrNoQuery
}

// SortOrder parses the configured sort.
func (c *Config) SortOrder() (arxiv.Sort, error) {
	return arxiv.ParseSort(c.Sort)
}

func userConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil || strings.TrimSpace(home) == "" {
		return ""
	}
	return filepath.Join(home, ".config", "paperstack")
}

// UserConfigPath is the per-user config file searched after ./paperstack.yaml.
func UserConfigPath() string {
	dir := userConfigDir()
	if dir == "" {
		return "paperstack.yaml"
	}
	return filepath.Join(dir, "paperstack.yaml")
}

// File is the subset of settings written by the setup wizard. Keys match
// the ones Load reads.
type File struct {
	NotionToken     string `yaml:"notion_token,omitempty"`
	DatabaseID      string `yaml:"database_id,omitempty"`
	ClaudeAPIKey    string `yaml:"claude_api_key,omitempty"`
	Model           string `yaml:"model,omitempty"`
	UseClaudeCLI    bool   `yaml:"claude_cli,omitempty"`
	Query           string `yaml:"query,omitempty"`
	UseDefaultQuery bool   `yaml:"use_default_query,omitempty"`
	MaxResults      int    `yaml:"max_results,omitempty"`
	Workers         int    `yaml:"workers,omitempty"`
	SkipSeen        bool   `yaml:"skip_seen,omitempty"`
}

// SaveFile writes f as YAML. The file holds credentials, so it is only
// readable by the owner.
func SaveFile(path string, f File) error {
	data, err := yaml.Marshal(f)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
