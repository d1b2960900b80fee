package arxiv

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(srvURL string, opts ...Option) *Client {
	base := []Option{
		WithBaseURL(srvURL),
		WithRateLimit(0),
		WithRetry(2, time.Millisecond, 5*time.Millisecond),
	}
	return NewClient(append(base, opts...)...)
}

func TestNewClient_Defaults(t *testing.T) {
	c := NewClient()
	if c.BaseURL != DefaultBaseURL {
		t.Errorf("expected base URL %q, got %q", DefaultBaseURL, c.BaseURL)
	}
	if c.UserAgent != DefaultUserAgent {
		t.Errorf("expected user agent %q, got %q", DefaultUserAgent, c.UserAgent)
	}
	if c.PageSize != DefaultPageSize {
		t.Errorf("expected page size %d, got %d", DefaultPageSize, c.PageSize)
	}
	if c.MaxBytes != DefaultMaxResponseBytes {
		t.Errorf("expected max bytes %d, got %d", DefaultMaxResponseBytes, c.MaxBytes)
	}
	if c.Limiter == nil {
		t.Error("expected non-nil limiter")
	}
}

func TestNewClient_WithOptions(t *testing.T) {
	c := NewClient(
		WithBaseURL("http://localhost:9999"),
		WithPageSize(25),
		WithMaxResponseBytes(1024),
	)
	if c.BaseURL != "http://localhost:9999" {
		t.Errorf("expected base URL %q, got %q", "http://localhost:9999", c.BaseURL)
	}
	if c.PageSize != 25 {
		t.Errorf("expected page size 25, got %d", c.PageSize)
	}
	if c.MaxBytes != 1024 {
		t.Errorf("expected max bytes 1024, got %d", c.MaxBytes)
	}

	// Non-positive page sizes keep the default.
	if got := NewClient(WithPageSize(0)).PageSize; got != DefaultPageSize {
		t.Errorf("expected default page size, got %d", got)
	}
}

func TestDoGet_SendsUserAgentAndParams(t *testing.T) {
	var gotUA, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotQuery = r.URL.Query().Get("search_query")
		w.Write([]byte(`OK`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	params := url.Values{}
	params.Set("search_query", "all:electron")

	if _, err := c.DoGet(context.Background(), "query", params); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotUA != DefaultUserAgent {
		t.Errorf("expected user agent %q, got %q", DefaultUserAgent, gotUA)
	}
	if gotQuery != "all:electron" {
		t.Errorf("expected search_query %q, got %q", "all:electron", gotQuery)
	}
}

func TestDoGet_RateLimitSequential(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping rate limit test in short mode")
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`OK`))
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL), WithRateLimit(200*time.Millisecond))

	start := time.Now()
	for i := 0; i < 3; i++ {
		if _, err := c.DoGet(context.Background(), "query", nil); err != nil {
			t.Fatalf("request %d failed: %v", i, err)
		}
	}
	elapsed := time.Since(start)

	// 3 requests with burst 1 at 200ms spacing need at least ~400ms.
	if elapsed < 380*time.Millisecond {
		t.Errorf("rate limiting too fast: 3 requests completed in %v (expected >= 400ms)", elapsed)
	}
}

func TestDoGet_ResponseTooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("X", 2048)))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, WithMaxResponseBytes(1024))

	_, err := c.DoGet(context.Background(), "query", nil)
	if err == nil {
		t.Fatal("expected error for oversized response, got nil")
	}
	if !strings.Contains(err.Error(), "exceeds maximum size") {
		t.Errorf("expected 'exceeds maximum size' error, got: %v", err)
	}
}

func TestDoGet_ResponseWithinLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("small response"))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, WithMaxResponseBytes(1024))

	body, err := c.DoGet(context.Background(), "query", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(body) != "small response" {
		t.Errorf("expected 'small response', got %q", string(body))
	}
}

func TestDoGet_ContextCancellation(t *testing.T) {
	c := newTestClient("http://127.0.0.1:1")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := c.DoGet(ctx, "query", nil); err == nil {
		t.Error("expected error from cancelled context, got nil")
	}
}

func TestDoGet_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.DoGet(context.Background(), "query", nil)
	if err == nil {
		t.Fatal("expected error for HTTP 500, got nil")
	}
	if !strings.Contains(err.Error(), "500") {
		t.Errorf("expected '500' in error message, got: %v", err)
	}
}

func TestDoGet_RetriesThrottledThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`OK`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	body, err := c.DoGet(context.Background(), "query", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(body) != "OK" {
		t.Errorf("expected OK, got %q", body)
	}
	if calls.Load() != 2 {
		t.Errorf("expected 2 calls, got %d", calls.Load())
	}
}

func TestDoGet_HTTP429Exhausted(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.DoGet(context.Background(), "query", nil)
	if err == nil {
		t.Fatal("expected error for HTTP 429, got nil")
	}
	if !strings.Contains(err.Error(), "429") {
		t.Errorf("expected '429' in error message, got: %v", err)
	}
	// One initial attempt plus two retries.
	if calls.Load() != 3 {
		t.Errorf("expected 3 calls, got %d", calls.Load())
	}
}

func TestDoGet_URLJoinPath(t *testing.T) {
	var receivedPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedPath = r.URL.Path
		w.Write([]byte(`OK`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL + "/api/")
	if _, err := c.DoGet(context.Background(), "query", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if receivedPath != "/api/query" {
		t.Errorf("expected path /api/query, got %q", receivedPath)
	}
}

func TestRetryAfterDuration(t *testing.T) {
	if got := retryAfterDuration("2"); got != 2*time.Second {
		t.Errorf("expected 2s, got %v", got)
	}
	if got := retryAfterDuration(""); got != 0 {
		t.Errorf("expected 0, got %v", got)
	}
	if got := retryAfterDuration("-1"); got != 0 {
		t.Errorf("expected 0 for negative, got %v", got)
	}
	if got := retryAfterDuration("garbage"); got != 0 {
		t.Errorf("expected 0 for garbage, got %v", got)
	}
}
