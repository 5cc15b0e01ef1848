// Package http provides HTTP client infrastructure for YouTube interactions
// with built-in retry logic, rate limiting, and error handling.
package http

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"ytcomments/retry"
)

// Client wraps an HTTP client with retry logic, request pacing, and a
// per-domain circuit breaker.
type Client struct {
	base           *http.Client
	config         *Config
	rateLimiter    *RateLimiter
	circuitBreaker *CircuitBreaker
	session        *Session
}

// Config holds HTTP client configuration.
type Config struct {
	// Timeout for individual HTTP requests.
	Timeout time.Duration

	// Retry configuration applied around each request.
	Retry retry.Config

	// Classifier decides which request errors are retried. Nil falls back
	// to IsRetryableDefault.
	Classifier retry.ErrorClassifier

	// UserAgent for HTTP requests.
	UserAgent string

	// RateLimiter configuration.
	RateLimiter RateLimiterConfig

	// CircuitBreaker configuration.
	CircuitBreaker CircuitBreakerConfig
}

// DefaultConfig returns sensible defaults for HTTP client configuration.
func DefaultConfig() *Config {
	cbConfig := DefaultCircuitBreakerConfig()
	cbConfig.IsTransientError = IsTransientHTTPError
	return &Config{
		Timeout:        30 * time.Second,
		Retry:          retry.DefaultConfig(),
		UserAgent:      "ytcomments/1.0",
		RateLimiter:    DefaultRateLimiterConfig(),
		CircuitBreaker: cbConfig,
	}
}

// IsRetryableDefault retries timeouts and server-side failures; everything
// else is permanent.
func IsRetryableDefault(err error) bool {
	if !retry.IsRetryable(err) {
		return false
	}
	if IsTimeout(err) {
		return true
	}
	if _, ok := err.(*RateLimitError); ok {
		return true
	}
	if httpErr, ok := err.(*HTTPError); ok {
		return httpErr.StatusCode >= 500
	}
	return true
}

// IsRetryableTimeoutOnly retries network timeouts and nothing else. The
// comment continuation endpoint uses this: any HTTP-level rejection is a
// terminal answer, not a transient fault.
func IsRetryableTimeoutOnly(err error) bool {
	if !retry.IsRetryable(err) {
		return false
	}
	return IsTimeout(err)
}

// New creates a new HTTP client with the given configuration and session.
// A nil session disables cookie handling.
func New(cfg *Config, session *Session) *Client {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	transport := &http.Transport{
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 10,
		MaxConnsPerHost:     20,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,
	}

	base := &http.Client{
		Timeout:   cfg.Timeout,
		Transport: transport,
	}
	if session != nil {
		base.Jar = session.Jar()
	}

	return &Client{
		base:           base,
		config:         cfg,
		rateLimiter:    NewRateLimiter(cfg.RateLimiter),
		circuitBreaker: NewCircuitBreaker(cfg.CircuitBreaker),
		session:        session,
	}
}

// Response represents an HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	// URL is the final request URL after any redirects.
	URL string
}

// Get performs a GET request.
func (c *Client) Get(ctx context.Context, url string) (*Response, error) {
	return c.Do(ctx, http.MethodGet, url, nil, nil)
}

// Post performs a POST request with the given body.
func (c *Client) Post(ctx context.Context, url string, body []byte, headers map[string]string) (*Response, error) {
	return c.Do(ctx, http.MethodPost, url, body, headers)
}

// Do performs an HTTP request with retry logic and rate limit handling.
// The body is replayed on every retry attempt. Non-2xx responses are
// returned as *HTTPError (or *RateLimitError for 429/503).
func (c *Client) Do(ctx context.Context, method, urlStr string, body []byte, headers map[string]string) (*Response, error) {
	domain := extractDomain(urlStr)

	if err := c.circuitBreaker.Allow(domain); err != nil {
		return nil, err
	}

	if err := c.rateLimiter.WaitForBackoff(ctx, urlStr); err != nil {
		c.circuitBreaker.RecordFailure(domain, err)
		return nil, err
	}
	if err := c.rateLimiter.Wait(ctx, urlStr); err != nil {
		c.circuitBreaker.RecordFailure(domain, err)
		return nil, err
	}

	classifier := c.config.Classifier
	if classifier == nil {
		classifier = IsRetryableDefault
	}

	var result *Response

	err := retry.Do(ctx, c.config.Retry, classifier, func(ctx context.Context) error {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}

		req, err := http.NewRequestWithContext(ctx, method, urlStr, reader)
		if err != nil {
			return err
		}

		req.Header.Set("User-Agent", c.config.UserAgent)
		for k, v := range c.sessionHeaders() {
			req.Header.Set(k, v)
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := c.base.Do(req)
		if err != nil {
			return fmt.Errorf("http request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests ||
			resp.StatusCode == http.StatusServiceUnavailable {
			retryAfter := parseRetryAfter(resp.Header)
			backoff := c.rateLimiter.RecordThrottle(urlStr, retryAfter)
			return &RateLimitError{
				StatusCode: resp.StatusCode,
				RetryAfter: backoff,
			}
		}

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response body: %w", err)
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return &HTTPError{
				StatusCode: resp.StatusCode,
				Body:       respBody,
			}
		}

		finalURL := urlStr
		if resp.Request != nil && resp.Request.URL != nil {
			finalURL = resp.Request.URL.String()
		}

		result = &Response{
			StatusCode: resp.StatusCode,
			Header:     resp.Header,
			Body:       respBody,
			URL:        finalURL,
		}
		return nil
	})

	if err != nil {
		c.circuitBreaker.RecordFailure(domain, err)
		return nil, err
	}
	if result == nil {
		c.circuitBreaker.RecordFailure(domain, ErrNoResponse)
		return nil, ErrNoResponse
	}

	c.rateLimiter.RecordSuccess(urlStr)
	c.circuitBreaker.RecordSuccess(domain)
	return result, nil
}

// sessionHeaders returns the session's default headers, or nil.
func (c *Client) sessionHeaders() map[string]string {
	if c.session == nil {
		return nil
	}
	return c.session.Headers()
}

// parseRetryAfter extracts the Retry-After header value as a duration.
func parseRetryAfter(header http.Header) time.Duration {
	retryAfter := header.Get("Retry-After")
	if retryAfter == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(retryAfter); err == nil {
		return time.Duration(seconds) * time.Second
	}
	if t, err := http.ParseTime(retryAfter); err == nil {
		return time.Until(t)
	}
	return 0
}

// Close releases idle connections held by the client.
func (c *Client) Close() error {
	if c.base != nil {
		c.base.CloseIdleConnections()
	}
	return nil
}
