package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/henrybloomingdale/paperstack/internal/output"
)

func resetGlobalFlags() {
	flagFormat = ""
	flagJSON = false
	flagHuman = false
	flagShowAuthors = false
	flagShowAbstract = false
	flagFull = false
	flagCSV = ""
	flagRIS = ""
}

// arxivStub serves n entries and records the last query string.
func arxivStub(t *testing.T, n int, lastQuery *atomic.Value) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if lastQuery != nil {
			lastQuery.Store(r.URL.RawQuery)
		}
		var b strings.Builder
		b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom" xmlns:opensearch="http://a9.com/-/spec/opensearch/1.1/">`)
		fmt.Fprintf(&b, "<opensearch:totalResults>%d</opensearch:totalResults>", n)
		for i := 0; i < n; i++ {
			fmt.Fprintf(&b, `<entry>
  <id>http://arxiv.org/abs/2402.%05dv1</id>
  <published>2024-02-01T00:00:00Z</published>
  <updated>2024-02-01T00:00:00Z</updated>
  <title>Jailbreak Study %d</title>
  <summary>Abstract %d.</summary>
  <author><name>Ada Lovelace</name></author>
  <category term="cs.CL"/>
</entry>`, i, i, i)
		}
		b.WriteString(`</feed>`)
		w.Header().Set("Content-Type", "application/atom+xml")
		w.Write([]byte(b.String()))
	}))
	t.Cleanup(srv.Close)
	return srv
}

// runCLI executes a fresh root command against the stub server.
func runCLI(t *testing.T, srvURL string, args ...string) (string, string, error) {
	t.Helper()
	return runCLIContext(t, context.Background(), srvURL, args...)
}

func runCLIContext(t *testing.T, ctx context.Context, srvURL string, args ...string) (string, string, error) {
	t.Helper()
	cfgPath := filepath.Join(t.TempDir(), "paperstack.yaml")
	if err := os.WriteFile(cfgPath, []byte("log:\n  level: off\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("PAPERSTACK_ENDPOINTS_ARXIV", srvURL)

	cmd := newRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--config", cfgPath}, args...))
	err := cmd.ExecuteContext(ctx)
	return stdout.String(), stderr.String(), err
}

func TestResolveFormat(t *testing.T) {
	var buf bytes.Buffer

	resetGlobalFlags()
	if got := resolveFormat(&buf); got != output.FormatSimple {
		t.Errorf("expected simple for non-terminal, got %q", got)
	}

	resetGlobalFlags()
	flagJSON = true
	if got := resolveFormat(&buf); got != output.FormatJSON {
		t.Errorf("expected json, got %q", got)
	}

	resetGlobalFlags()
	flagHuman = true
	if got := resolveFormat(&buf); got != output.FormatHuman {
		t.Errorf("expected human, got %q", got)
	}

	resetGlobalFlags()
	flagFormat = "detailed"
	if got := resolveFormat(&buf); got != output.FormatDetailed {
		t.Errorf("expected detailed, got %q", got)
	}
}

func TestValidateFlags(t *testing.T) {
	resetGlobalFlags()
	flagFormat = "xml"
	if err := validateFlags(nil, nil); err == nil {
		t.Fatal("expected error for unknown output format")
	}

	resetGlobalFlags()
	flagJSON = true
	flagHuman = true
	if err := validateFlags(nil, nil); err == nil {
		t.Fatal("expected error for --json with --human")
	}

	resetGlobalFlags()
	flagJSON = true
	flagFormat = "yaml"
	if err := validateFlags(nil, nil); err == nil {
		t.Fatal("expected error for --json with --output-format")
	}

	resetGlobalFlags()
	flagFormat = "yaml"
	if err := validateFlags(nil, nil); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
}

func TestSearch_Simple(t *testing.T) {
	var upstream atomic.Value
	srv := arxivStub(t, 3, &upstream)

	stdout, stderr, err := runCLI(t, srv.URL, "--query", "jailbreak", "--limit", "3", "--sort", "relevance")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.Contains(stdout, "Found 3 papers") {
		t.Errorf("expected count header, got:\n%s", stdout)
	}
	if !strings.Contains(stdout, "Link: http://arxiv.org/abs/2402.00002v1") {
		t.Errorf("expected links in output, got:\n%s", stdout)
	}
	if !strings.Contains(stderr, "Searching for: jailbreak") {
		t.Errorf("expected status on stderr, got %q", stderr)
	}
	lastQuery, _ := upstream.Load().(string)
	if !strings.Contains(lastQuery, "sortBy=relevance") || !strings.Contains(lastQuery, "max_results=3") {
		t.Errorf("unexpected upstream query %q", lastQuery)
	}
}

func TestSearch_JSON(t *testing.T) {
	srv := arxivStub(t, 2, nil)

	stdout, _, err := runCLI(t, srv.URL, "--use-default-query", "--json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var papers []map[string]interface{}
	if err := json.Unmarshal([]byte(stdout), &papers); err != nil {
		t.Fatalf("stdout is not JSON: %v\n%s", err, stdout)
	}
	if len(papers) != 2 {
		t.Fatalf("expected 2 papers, got %d", len(papers))
	}
}

func TestSearch_EmptyIsNotAnError(t *testing.T) {
	srv := arxivStub(t, 0, nil)

	stdout, _, err := runCLI(t, srv.URL, "--query", "nothing matches")
	if err != nil {
		t.Fatalf("empty result should not fail: %v", err)
	}
	if !strings.Contains(stdout, "No papers found") {
		t.Errorf("expected empty message, got %q", stdout)
	}
}

func TestSearch_LargeLimitWarning(t *testing.T) {
	srv := arxivStub(t, 1, nil)

	_, stderr, err := runCLI(t, srv.URL, "--query", "llm", "--max-results", "1500")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(stderr, "Large limit") {
		t.Errorf("expected large limit warning, got %q", stderr)
	}
}

func TestSearch_Exports(t *testing.T) {
	srv := arxivStub(t, 2, nil)
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "out.csv")
	risPath := filepath.Join(dir, "out.ris")

	_, _, err := runCLI(t, srv.URL, "-q", "llm", "--csv", csvPath, "--ris", risPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, p := range []string{csvPath, risPath} {
		if info, err := os.Stat(p); err != nil || info.Size() == 0 {
			t.Errorf("expected non-empty export at %s (err=%v)", p, err)
		}
	}
}

func TestSearch_Errors(t *testing.T) {
	srv := arxivStub(t, 1, nil)

	tests := []struct {
		name string
		args []string
	}{
		{"no query", []string{}},
		{"zero limit", []string{"-q", "llm", "--limit", "0"}},
		{"bad sort", []string{"-q", "llm", "--sort", "popularity"}},
		{"bad format", []string{"-q", "llm", "--output-format", "xml"}},
		{"query and default", []string{"-q", "llm", "--use-default-query"}},
		{"positional args", []string{"llm"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := runCLI(t, srv.URL, tt.args...); err == nil {
				t.Fatalf("expected error for %v", tt.args)
			}
		})
	}
}

func TestSearch_SourceUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer srv.Close()

	_, _, err := runCLI(t, srv.URL, "-q", "llm")
	if err == nil || !strings.Contains(err.Error(), "search failed") {
		t.Fatalf("expected search failure, got %v", err)
	}
}

func TestSearch_CancelledContextStopsSearch(t *testing.T) {
	var lastQuery atomic.Value
	srv := arxivStub(t, 3, &lastQuery)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := runCLIContext(t, ctx, srv.URL, "-q", "llm")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if lastQuery.Load() != nil {
		t.Errorf("cancelled search still reached arXiv: %v", lastQuery.Load())
	}
}
