// Package fetch performs bounded, retried JSON GETs against the ICD-10
// catalog and classifies every failure into a small closed taxonomy.
package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"
)

const (
	DefaultTimeout    = 8 * time.Second
	DefaultRetries    = 2
	DefaultRetryDelay = 350 * time.Millisecond

	maxBodyBytes = 4 << 20
)

// Options bounds a single FetchJSON call.
type Options struct {
	Timeout    time.Duration
	Retries    int
	RetryDelay time.Duration
}

// DefaultOptions returns the 8s / 2 retries / 350ms budget.
func DefaultOptions() Options {
	return Options{
		Timeout:    DefaultTimeout,
		Retries:    DefaultRetries,
		RetryDelay: DefaultRetryDelay,
	}
}

func (o Options) normalized() Options {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Retries < 0 {
		o.Retries = 0
	}
	if o.RetryDelay < 0 {
		o.RetryDelay = 0
	}
	return o
}

// Fetcher retrieves a decoded JSON payload from a URL.
type Fetcher interface {
	FetchJSON(ctx context.Context, url string, opts Options) (any, error)
}

// Client is a stateless JSON fetcher. The zero value is usable.
type Client struct {
	HTTPClient *http.Client
	Logger     *logging.Logger
	UserAgent  string

	// Sleep waits between retries; tests replace it to record delays.
	Sleep func(ctx context.Context, d time.Duration) error
}

var _ Fetcher = (*Client)(nil)

// FetchJSON GETs url and decodes the JSON body. Retryable failures are
// retried with a linear delay; the last failure is returned as an *APIError.
// Caller cancellation returns an error matching ErrCanceled.
func (c *Client) FetchJSON(ctx context.Context, url string, opts Options) (any, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	opts = opts.normalized()
	policy := newRetryPolicy(opts.RetryDelay, opts.Retries)
	host := hostLabel(url)

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, canceled(context.Cause(ctx))
		}

		c.debug("Catalog request", zap.String("url", url), zap.Int("attempt", attempt))

		start := time.Now()
		payload, err := c.attempt(ctx, url, opts.Timeout)
		attemptDuration.WithLabelValues(host).Observe(time.Since(start).Seconds())
		attemptsTotal.WithLabelValues(host, outcomeLabel(err)).Inc()

		if err == nil {
			return payload, nil
		}

		var apiErr *APIError
		if !errors.As(err, &apiErr) || !apiErr.Retryable() {
			return nil, err
		}

		wait := policy.NextBackOff()
		if wait == backoff.Stop {
			return nil, err
		}

		retriesTotal.WithLabelValues(host).Inc()
		c.debug("Retrying catalog request",
			zap.String("url", url),
			zap.String("code", string(apiErr.Code)),
			zap.Duration("delay", wait))

		if err := c.sleep(ctx, wait); err != nil {
			return nil, canceled(context.Cause(ctx))
		}
	}
}

func (c *Client) attempt(parent context.Context, url string, timeout time.Duration) (any, error) {
	ctx, cancel := context.WithTimeoutCause(parent, timeout, errAttemptTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &APIError{Code: CodeUnknown, URL: url, Detail: "invalid request", Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, classify(parent, ctx, url, err)
	}
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup on HTTP response body

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, classify(parent, ctx, url, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{
			Code:   CodeHTTP,
			Status: resp.StatusCode,
			Detail: extractDetail(resp.Header.Get("Content-Type"), body),
			URL:    url,
		}
	}

	var payload any
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &APIError{Code: CodeUnknown, URL: url, Detail: "invalid JSON body", Err: err}
	}
	return payload, nil
}

// classify maps a transport error to cancellation, TIMEOUT or NETWORK by
// inspecting context causes, never the error text.
func classify(parent, attemptCtx context.Context, url string, err error) error {
	if parent.Err() != nil {
		return canceled(context.Cause(parent))
	}
	if errors.Is(context.Cause(attemptCtx), errAttemptTimeout) {
		return &APIError{Code: CodeTimeout, URL: url, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &APIError{Code: CodeTimeout, URL: url, Err: err}
	}
	return &APIError{Code: CodeNetwork, URL: url, Err: err}
}

// extractDetail prefers the detail, message or error string of a JSON body
// and otherwise returns the raw text.
func extractDetail(contentType string, body []byte) string {
	raw := strings.TrimSpace(string(body))
	if raw == "" {
		return ""
	}

	if strings.Contains(strings.ToLower(contentType), "application/json") {
		var parsed map[string]any
		if err := json.Unmarshal(bytes.TrimSpace(body), &parsed); err == nil {
			for _, key := range []string{"detail", "message", "error"} {
				if value, ok := parsed[key].(string); ok && value != "" {
					return value
				}
			}
		}
	}
	return raw
}

func (c *Client) httpClient() *http.Client {
	if c != nil && c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) sleep(ctx context.Context, d time.Duration) error {
	if c != nil && c.Sleep != nil {
		return c.Sleep(ctx, d)
	}
	return sleepContext(ctx, d)
}

func (c *Client) debug(msg string, fields ...zap.Field) {
	if c == nil || c.Logger == nil {
		return
	}
	c.Logger.Debug(msg, fields...)
}
