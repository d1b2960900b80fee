// Package arxiv provides a client for the arXiv export API with
// rate limiting, bounded retries on throttling, and response size guards.
package arxiv

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the arXiv export API base URL.
	DefaultBaseURL = "https://export.arxiv.org/api"
	// DefaultUserAgent identifies this application to arXiv.
	DefaultUserAgent = "paperstack/1.0 (+https://github.com/henrybloomingdale/paperstack)"

	// DefaultRequestInterval follows arXiv's request of one call every three seconds.
	DefaultRequestInterval = 3 * time.Second

	// DefaultPageSize is the number of entries requested per API page.
	DefaultPageSize = 100

	// DefaultMaxResponseBytes is the maximum response body size (20 MB).
	DefaultMaxResponseBytes int64 = 20 * 1024 * 1024

	// Retry policy for throttled or temporarily unavailable responses.
	defaultMaxRetries    = 3
	defaultBaseRetryWait = 3 * time.Second
	defaultMaxRetryWait  = 30 * time.Second
)

// ErrSourceUnavailable is the sentinel for any failure to reach arXiv or
// to decode its response.
var ErrSourceUnavailable = errors.New("arxiv source unavailable")

// SourceError wraps the underlying cause of an unavailable source.
type SourceError struct {
	Op  string
	Err error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrSourceUnavailable, e.Op, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrSourceUnavailable) hold for every SourceError.
func (e *SourceError) Is(target error) bool { return target == ErrSourceUnavailable }

// Client is an HTTP client for the arXiv query API.
type Client struct {
	BaseURL    string
	UserAgent  string
	HTTPClient *http.Client
	Limiter    *rate.Limiter
	PageSize   int
	MaxBytes   int64
	MaxRetries int
	RetryWait  time.Duration
	MaxWait    time.Duration
	Logger     zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL sets the base URL for requests.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.BaseURL = u }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.HTTPClient = hc }
}

// WithRateLimit sets the minimum interval between requests.
// A zero interval disables rate limiting.
func WithRateLimit(every time.Duration) Option {
	return func(c *Client) {
		if every <= 0 {
			c.Limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		c.Limiter = rate.NewLimiter(rate.Every(every), 1)
	}
}

// WithPageSize sets how many entries are requested per page.
func WithPageSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.PageSize = n
		}
	}
}

// WithMaxResponseBytes sets the maximum allowed response body size.
func WithMaxResponseBytes(n int64) Option {
	return func(c *Client) { c.MaxBytes = n }
}

// WithRetry sets the retry count and backoff bounds for throttled responses.
func WithRetry(maxRetries int, base, max time.Duration) Option {
	return func(c *Client) {
		c.MaxRetries = maxRetries
		c.RetryWait = base
		c.MaxWait = max
	}
}

// WithLogger sets the logger used for request diagnostics.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.Logger = l }
}

// NewClient creates a new arXiv client with the given options.
func NewClient(opts ...Option) *Client {
	c := &Client{
		BaseURL:    DefaultBaseURL,
		UserAgent:  DefaultUserAgent,
		PageSize:   DefaultPageSize,
		MaxBytes:   DefaultMaxResponseBytes,
		MaxRetries: defaultMaxRetries,
		RetryWait:  defaultBaseRetryWait,
		MaxWait:    defaultMaxRetryWait,
		Limiter:    rate.NewLimiter(rate.Every(DefaultRequestInterval), 1),
		HTTPClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		Logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DoGet performs a rate-limited GET request against endpoint and returns
// the body. 429 and 503 responses are retried with backoff.
func (c *Client) DoGet(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	u, err := url.JoinPath(c.BaseURL, endpoint)
	if err != nil {
		return nil, fmt.Errorf("building URL: %w", err)
	}
	fullURL := u
	if len(params) > 0 {
		fullURL += "?" + params.Encode()
	}

	for attempt := 0; attempt <= c.MaxRetries; attempt++ {
		if err := c.Limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
		if err != nil {
			return nil, fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("User-Agent", c.UserAgent)

		resp, err := c.HTTPClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("executing request: %w", err)
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable {
			if attempt >= c.MaxRetries {
				resp.Body.Close()
				return nil, fmt.Errorf("arXiv returned HTTP %d after %d retries", resp.StatusCode, c.MaxRetries)
			}

			wait := retryAfterDuration(resp.Header.Get("Retry-After"))
			resp.Body.Close()
			if wait <= 0 {
				wait = c.RetryWait * time.Duration(1<<attempt)
			}
			if c.MaxWait > 0 && wait > c.MaxWait {
				wait = c.MaxWait
			}
			c.Logger.Debug().
				Int("status", resp.StatusCode).
				Int("attempt", attempt+1).
				Dur("wait", wait).
				Msg("arxiv throttled, retrying")
			if err := sleepWithContext(ctx, wait); err != nil {
				return nil, fmt.Errorf("retry canceled: %w", err)
			}
			continue
		}

		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("arXiv returned HTTP %d for %s", resp.StatusCode, endpoint)
		}

		r := io.LimitReader(resp.Body, c.MaxBytes+1)
		body, err := io.ReadAll(r)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("reading response: %w", err)
		}
		if int64(len(body)) > c.MaxBytes {
			return nil, fmt.Errorf("response exceeds maximum size of %d bytes", c.MaxBytes)
		}

		return body, nil
	}

	return nil, fmt.Errorf("unreachable request loop")
}

func retryAfterDuration(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}

	if secs, err := strconv.Atoi(v); err == nil {
		if secs > 0 {
			return time.Duration(secs) * time.Second
		}
		return 0
	}

	if t, err := http.ParseTime(v); err == nil {
		d := time.Until(t)
		if d > 0 {
			return d
		}
	}

	return 0
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
