// Package httpclient provides the JSON-over-HTTP client shared by the
// record store and list provider integrations. Requests are paced with a
// token bucket and retried with exponential back-off on 429 and 5xx.
package httpclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/listsync/listsync/internal/versions"
)

const (
	// DefaultTimeout is the default timeout for a single HTTP request
	DefaultTimeout = 30 * time.Second

	// DefaultMaxTries bounds the attempts made for one logical request
	DefaultMaxTries = 5

	// DefaultMaxElapsed bounds the total time spent retrying one logical request
	DefaultMaxElapsed = 2 * time.Minute

	// MaxResponseSize is the maximum allowed response size (100MB)
	MaxResponseSize = 100 * 1024 * 1024

	maxErrorDetail = 512
)

// Client performs paced, retried JSON requests against one API
type Client struct {
	http       *http.Client
	limiter    *rate.Limiter
	authorize  func(*http.Request)
	userAgent  string
	maxTries   uint
	maxElapsed time.Duration
	initial    time.Duration
}

// Option configures a Client
type Option func(*Client)

// WithTimeout sets the per-request timeout
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.http.Timeout = timeout
		}
	}
}

// WithHTTPClient replaces the underlying http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithRateLimit paces requests to rps with the given burst.
// A non-positive rps disables pacing.
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

// WithRetry bounds retries by attempt count and total elapsed time
func WithRetry(maxTries uint, maxElapsed time.Duration) Option {
	return func(c *Client) {
		c.maxTries = maxTries
		c.maxElapsed = maxElapsed
	}
}

// WithInitialBackoff sets the first retry delay
func WithInitialBackoff(d time.Duration) Option {
	return func(c *Client) {
		c.initial = d
	}
}

// WithBearerToken authenticates requests with a bearer token
func WithBearerToken(token string) Option {
	return func(c *Client) {
		c.authorize = func(req *http.Request) {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}
}

// WithBasicAuth authenticates requests with HTTP basic auth
func WithBasicAuth(user, password string) Option {
	return func(c *Client) {
		c.authorize = func(req *http.Request) {
			req.SetBasicAuth(user, password)
		}
	}
}

// New creates a Client
func New(opts ...Option) *Client {
	c := &Client{
		http:       &http.Client{Timeout: DefaultTimeout},
		userAgent:  versions.UserAgent(),
		maxTries:   DefaultMaxTries,
		maxElapsed: DefaultMaxElapsed,
		initial:    500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DoJSON sends in (when non-nil) as a JSON body and decodes a JSON response into out (when non-nil).
// Transport errors, 429 and 5xx responses are retried. Other non-2xx responses fail with *HTTPError.
func (c *Client) DoJSON(ctx context.Context, method, url string, in, out any) error {
	var payload []byte
	if in != nil {
		var err error
		payload, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
	}

	body, err := c.do(ctx, method, url, payload, true)
	if err != nil {
		return err
	}

	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response from %s %s: %w", method, url, err)
	}
	return nil
}

// Download fetches url without credentials and returns the raw body.
// It is meant for pre-signed URLs handed out by the API.
func (c *Client) Download(ctx context.Context, url string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, url, nil, false)
}

func (c *Client) do(ctx context.Context, method, url string, payload []byte, authenticated bool) ([]byte, error) {
	attempt := 0
	operation := func() ([]byte, error) {
		attempt++
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, backoff.Permanent(fmt.Errorf("rate limiter: %w", err))
			}
		}

		body, err := c.once(ctx, method, url, payload, authenticated)
		if err == nil {
			return body, nil
		}

		var httpErr *HTTPError
		if errors.As(err, &httpErr) {
			if !httpErr.Retryable() {
				return nil, backoff.Permanent(err)
			}
			slog.Warn("Retrying HTTP request",
				"method", method,
				"url", url,
				"status", httpErr.StatusCode,
				"attempt", attempt,
			)
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, backoff.Permanent(err)
		}
		slog.Warn("Retrying HTTP request after transport error",
			"method", method,
			"url", url,
			"attempt", attempt,
			"error", err,
		)
		return nil, err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.initial

	opts := []backoff.RetryOption{backoff.WithBackOff(b)}
	if c.maxTries > 0 {
		opts = append(opts, backoff.WithMaxTries(c.maxTries))
	}
	if c.maxElapsed > 0 {
		opts = append(opts, backoff.WithMaxElapsedTime(c.maxElapsed))
	}

	return backoff.Retry(ctx, operation, opts...)
}

func (c *Client) once(ctx context.Context, method, url string, payload []byte, authenticated bool) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}

	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authenticated && c.authorize != nil {
		c.authorize(req)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.ContentLength > MaxResponseSize {
		return nil, backoff.Permanent(fmt.Errorf("response size %d bytes exceeds maximum allowed size of %d bytes",
			resp.ContentLength, MaxResponseSize))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(body)) > MaxResponseSize {
		return nil, backoff.Permanent(fmt.Errorf("response size exceeds maximum allowed size of %d bytes", MaxResponseSize))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		httpErr := NewHTTPError(resp.StatusCode, method, url, resp.Status, truncate(body))
		if resp.StatusCode == http.StatusTooManyRequests {
			if seconds, convErr := strconv.Atoi(resp.Header.Get("Retry-After")); convErr == nil && seconds > 0 {
				return nil, errors.Join(httpErr, backoff.RetryAfter(seconds))
			}
		}
		return nil, httpErr
	}

	return body, nil
}

func truncate(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxErrorDetail {
		return s[:maxErrorDetail] + "..."
	}
	return s
}
