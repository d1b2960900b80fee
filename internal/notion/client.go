// Package notion writes enriched papers to a Notion database through the
// Notion REST API.
package notion

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

	"github.com/jomei/notionapi"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the Notion API base URL.
	DefaultBaseURL = "https://api.notion.com"
	// APIVersion is the Notion-Version header sent with every request.
	APIVersion = "2022-06-28"

	// DefaultRequestsPerSecond is Notion's documented average rate limit.
	DefaultRequestsPerSecond = 3
)

// ErrInvalidToken is returned when Notion rejects the integration token.
var ErrInvalidToken = errors.New("notion token is invalid")

// APIError is a failed Notion request. Status is 0 when no response was
// received.
type APIError struct {
	Status  int
	Code    string
	Message string
	// Wait is the Retry-After hint sent with a 429.
	Wait time.Duration
	Err  error
}

func (e *APIError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("notion: request failed: %s", e.Message)
	}
	return fmt.Sprintf("notion: HTTP %d %s: %s", e.Status, e.Code, e.Message)
}

func (e *APIError) Unwrap() error { return e.Err }

// IsTransient reports whether the request may succeed if repeated.
func (e *APIError) IsTransient() bool {
	return e.Status == 0 || e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// RetryAfter returns the server's backoff hint.
func (e *APIError) RetryAfter() time.Duration { return e.Wait }

// Client wraps the notionapi SDK with request pacing and error mapping.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
	Limiter    *rate.Limiter
	Logger     zerolog.Logger

	api *notionapi.Client
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

// WithRateLimit sets the sustained request rate. Zero disables limiting.
func WithRateLimit(perSecond float64) Option {
	return func(c *Client) {
		if perSecond <= 0 {
			c.Limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		c.Limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
}

// WithLogger sets the logger used for request diagnostics.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.Logger = l }
}

// NewClient creates a Notion client authenticated with an integration token.
func NewClient(token string, opts ...Option) *Client {
	c := &Client{
		BaseURL: DefaultBaseURL,
		Token:   token,
		Limiter: rate.NewLimiter(rate.Limit(DefaultRequestsPerSecond), 1),
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		Logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	hc := *c.HTTPClient
	next := hc.Transport
	if next == nil {
		next = http.DefaultTransport
	}
	hc.Transport = &transport{client: c, next: next}

	c.api = notionapi.NewClient(
		notionapi.Token(token),
		notionapi.WithHTTPClient(&hc),
		notionapi.WithVersion(APIVersion),
	)
	return c
}

// ValidateToken checks the integration token by fetching the bot user.
func (c *Client) ValidateToken(ctx context.Context) (*notionapi.User, error) {
	u, err := c.api.User.Me(ctx)
	if err != nil {
		err = c.mapErr(err)
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized {
			return nil, fmt.Errorf("%w: %s", ErrInvalidToken, apiErr.Message)
		}
		return nil, err
	}
	return u, nil
}

// RetrieveDatabase fetches a database's schema.
func (c *Client) RetrieveDatabase(ctx context.Context, id string) (*notionapi.Database, error) {
	db, err := c.api.Database.Get(ctx, notionapi.DatabaseID(id))
	if err != nil {
		return nil, c.mapErr(err)
	}
	return db, nil
}

// CreatePage adds a page with the given properties to a database.
func (c *Client) CreatePage(ctx context.Context, databaseID string, props notionapi.Properties) (*notionapi.Page, error) {
	page, err := c.api.Page.Create(ctx, &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(databaseID),
		},
		Properties: props,
	})
	if err != nil {
		return nil, c.mapErr(err)
	}
	return page, nil
}

// urlFilter filters on a url-typed property. Notion keys the condition by
// the property's type.
type urlFilter struct {
	notionapi.PropertyFilter
	URL *notionapi.TextFilterCondition `json:"url,omitempty"`
}

// HasPageWithURL reports whether a page in the database has a urlProp
// value containing needle.
func (c *Client) HasPageWithURL(ctx context.Context, databaseID, urlProp, needle string) (bool, error) {
	resp, err := c.api.Database.Query(ctx, notionapi.DatabaseID(databaseID), &notionapi.DatabaseQueryRequest{
		Filter: &urlFilter{
			PropertyFilter: notionapi.PropertyFilter{Property: urlProp},
			URL:            &notionapi.TextFilterCondition{Contains: needle},
		},
		PageSize: 1,
	})
	if err != nil {
		return false, c.mapErr(err)
	}
	return len(resp.Results) > 0, nil
}

// mapErr converts SDK and transport failures into *APIError. Cancellation
// is returned unchanged.
func (c *Client) mapErr(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	var nerr *notionapi.Error
	if errors.As(err, &nerr) {
		return &APIError{Status: nerr.Status, Code: string(nerr.Code), Message: nerr.Message, Err: err}
	}
	return &APIError{Message: err.Error(), Err: err}
}

// transport paces requests with the client's limiter, points them at
// BaseURL and turns 429 responses into *APIError so the caller's retry
// policy, not the SDK, decides when to try again.
type transport struct {
	client *Client
	next   http.RoundTripper
}

func (t *transport) RoundTrip(req *http.Request) (*http.Response, error) {
	c := t.client
	if err := c.Limiter.Wait(req.Context()); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	base, err := url.Parse(c.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	out := req.Clone(req.Context())
	out.URL.Scheme = base.Scheme
	out.URL.Host = base.Host
	out.URL.Path = strings.TrimSuffix(base.Path, "/") + req.URL.Path
	out.URL.RawPath = ""
	out.Host = ""

	resp, err := t.next.RoundTrip(out)
	if err != nil {
		return nil, err
	}
	c.Logger.Debug().Str("method", req.Method).Str("path", req.URL.Path).Int("status", resp.StatusCode).Msg("notion request")

	if resp.StatusCode == http.StatusTooManyRequests {
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
		return nil, &APIError{
			Status:  http.StatusTooManyRequests,
			Code:    "rate_limited",
			Message: "rate limited",
			Wait:    retryAfter(resp.Header.Get("Retry-After")),
		}
	}
	return resp, nil
}

func retryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
