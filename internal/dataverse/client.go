// Package dataverse is a client for the Dataverse Web API (OData v4). It
// executes requests with bounded retry, follows paged collections, and
// submits atomic $batch changesets.
package dataverse

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Retry and backoff defaults.
const (
	DefaultMaxAttempts = 3
	DefaultBaseBackoff = 1 * time.Second
	DefaultMaxBackoff  = 60 * time.Second
	DefaultUserAgent   = "dataverse-go/0.1"
)

const odataVersion = "4.0"

// TokenSource provides bearer tokens. It is asked once per attempt so a
// token that expires between retries is replaced.
type TokenSource interface {
	BearerToken(ctx context.Context) (string, error)
}

// Client is an HTTP client for one Dataverse environment. It is safe for
// concurrent use.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	token       TokenSource
	logger      *slog.Logger
	userAgent   string
	maxAttempts int
	baseBackoff time.Duration
	maxBackoff  time.Duration
	limiter     *rate.Limiter
	metrics     *Metrics

	// sleepFunc waits between retries. Tests override it to avoid real delays.
	sleepFunc func(ctx context.Context, d time.Duration) error
}

// Option configures a Client.
type Option func(*Client)

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithMaxAttempts sets the total number of attempts per request (minimum 1).
func WithMaxAttempts(n int) Option {
	return func(c *Client) {
		if n >= 1 {
			c.maxAttempts = n
		}
	}
}

// WithBackoff sets the exponential backoff base and cap.
func WithBackoff(base, maxBackoff time.Duration) Option {
	return func(c *Client) {
		if base > 0 {
			c.baseBackoff = base
		}

		if maxBackoff > 0 {
			c.maxBackoff = maxBackoff
		}
	}
}

// WithRateLimit caps outgoing attempts at rps per second with the given
// burst. A non-positive rps disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}

		if burst < 1 {
			burst = 1
		}

		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithMetrics records request metrics.
func WithMetrics(m *Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// NewClient creates a client for the service root baseURL, e.g.
// "https://contoso.api.crm.dynamics.com/api/data/v9.2".
func NewClient(baseURL string, httpClient *http.Client, token TokenSource, logger *slog.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	c := &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		httpClient:  httpClient,
		token:       token,
		logger:      logger,
		userAgent:   DefaultUserAgent,
		maxAttempts: DefaultMaxAttempts,
		baseBackoff: DefaultBaseBackoff,
		maxBackoff:  DefaultMaxBackoff,
		sleepFunc:   timeSleep,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// BaseURL returns the service root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Execute sends one logical request. endpoint is relative to the service
// root unless it is an absolute http(s) URL. HTTP 429, 503 and transport
// failures are retried up to the attempt limit; every other error status is
// returned at once as *HTTPError. Each attempt fetches a fresh token and
// resends the same method, body and headers.
func (c *Client) Execute(ctx context.Context, method, endpoint string, body []byte, header http.Header) (*Response, error) {
	return c.execute(ctx, method, endpoint, body, header, c.maxAttempts)
}

// execute is Execute with an explicit attempt bound.
func (c *Client) execute(
	ctx context.Context, method, endpoint string, body []byte, header http.Header, maxAttempts int,
) (*Response, error) {
	reqURL := c.resolve(endpoint)

	for attempt := 1; ; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("dataverse: request canceled: %w", err)
			}
		}

		tok, err := c.token.BearerToken(ctx)
		if err != nil {
			return nil, fmt.Errorf("dataverse: obtaining token: %w", err)
		}

		start := time.Now()

		resp, respBody, err := c.exchange(ctx, method, reqURL, tok, body, header)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("dataverse: request canceled: %w", ctx.Err())
			}

			c.metrics.observe(method, "error", time.Since(start))

			if attempt < maxAttempts {
				backoff := c.calcBackoff(attempt)
				c.logger.Warn("retrying after network error",
					slog.String("method", method),
					slog.String("endpoint", endpoint),
					slog.Int("attempt", attempt),
					slog.Duration("backoff", backoff),
					slog.String("error", err.Error()),
				)
				c.metrics.retry("transport")

				if sleepErr := c.sleepFunc(ctx, backoff); sleepErr != nil {
					return nil, fmt.Errorf("dataverse: request canceled: %w", sleepErr)
				}

				continue
			}

			c.logger.Error("request failed after retries",
				slog.String("method", method),
				slog.String("endpoint", endpoint),
				slog.Int("attempts", attempt),
				slog.String("error", err.Error()),
			)

			return nil, &TransportError{Method: method, URL: redactQuery(reqURL), Attempts: attempt, Err: err}
		}

		c.metrics.observe(method, strconv.Itoa(resp.StatusCode), time.Since(start))

		if resp.StatusCode < http.StatusBadRequest {
			c.logger.Debug("request succeeded",
				slog.String("method", method),
				slog.String("endpoint", endpoint),
				slog.Int("status", resp.StatusCode),
				slog.Int("attempt", attempt),
			)

			return newResponse(resp.StatusCode, resp.Header, respBody), nil
		}

		if isRetryable(resp.StatusCode) && attempt < maxAttempts {
			backoff := c.retryBackoff(resp.Header, attempt)
			c.logger.Warn("retrying after HTTP error",
				slog.String("method", method),
				slog.String("endpoint", endpoint),
				slog.Int("status", resp.StatusCode),
				slog.Int("attempt", attempt),
				slog.Duration("backoff", backoff),
			)
			c.metrics.retry(strconv.Itoa(resp.StatusCode))

			if err := c.sleepFunc(ctx, backoff); err != nil {
				return nil, fmt.Errorf("dataverse: request canceled: %w", err)
			}

			continue
		}

		httpErr := newHTTPError(resp.StatusCode, resp.Header, respBody)

		if attempt > 1 {
			c.logger.Error("request failed after retries",
				slog.String("method", method),
				slog.String("endpoint", endpoint),
				slog.Int("status", resp.StatusCode),
				slog.Int("attempts", attempt),
			)
		}

		return nil, httpErr
	}
}

// exchange sends one request and reads the whole body. A failure reading
// the body counts as a transport failure like a failed send.
func (c *Client) exchange(
	ctx context.Context, method, reqURL, tok string, body []byte, header http.Header,
) (*http.Response, []byte, error) {
	resp, err := c.doOnce(ctx, method, reqURL, tok, body, header)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("reading response body: %w", err)
	}

	return resp, respBody, nil
}

// doOnce executes a single HTTP request (no retry).
func (c *Client) doOnce(
	ctx context.Context, method, reqURL, token string, body []byte, header http.Header,
) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("OData-Version", odataVersion)
	req.Header.Set("OData-MaxVersion", odataVersion)
	req.Header.Set("Accept", "application/json")

	for k, vs := range header {
		req.Header.Del(k)

		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	if body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("User-Agent", c.userAgent)

	return c.httpClient.Do(req)
}

func (c *Client) resolve(endpoint string) string {
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return endpoint
	}

	return c.baseURL + "/" + strings.TrimLeft(endpoint, "/")
}

// retryBackoff honours Retry-After (delta seconds or HTTP date) and falls
// back to exponential backoff.
func (c *Client) retryBackoff(h http.Header, attempt int) time.Duration {
	ra := h.Get("Retry-After")
	if ra == "" {
		return c.calcBackoff(attempt)
	}

	if seconds, err := strconv.Atoi(ra); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second
	}

	if at, err := http.ParseTime(ra); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}

		return 0
	}

	return c.calcBackoff(attempt)
}

// calcBackoff returns base * 2^(attempt-1), capped. attempt is 1-based.
func (c *Client) calcBackoff(attempt int) time.Duration {
	backoff := c.baseBackoff
	for i := 1; i < attempt; i++ {
		backoff *= 2
		if backoff >= c.maxBackoff {
			return c.maxBackoff
		}
	}

	return min(backoff, c.maxBackoff)
}

// redactQuery drops the query string, which can carry filter values.
func redactQuery(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}

	u.RawQuery = ""

	return u.String()
}

// timeSleep waits for d or until ctx is canceled.
func timeSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
