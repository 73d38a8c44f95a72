// Package fetch downloads remote data files, such as the city's collision CSV export,
// with a bounded retry loop for network errors and server-side failures.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/rewired-gh/crashmap/internal/logger"
)

// Client downloads files over HTTP(S)
type Client struct {
	httpClient     *http.Client
	maxRetries     int
	retryDelayBase time.Duration
}

// ClientConfig holds retry behaviour for the client
type ClientConfig struct {
	MaxRetries     int
	RetryDelayBase time.Duration
}

// NewClient creates a new download client. timeout bounds connecting, the
// TLS handshake and waiting for response headers; the body is streamed and
// only the request context limits how long reading it may take.
func NewClient(timeout time.Duration, cfg ClientConfig) *Client {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelayBase <= 0 {
		cfg.RetryDelayBase = time.Second
	}
	return &Client{
		httpClient:     &http.Client{Transport: newTransport(timeout)},
		maxRetries:     cfg.MaxRetries,
		retryDelayBase: cfg.RetryDelayBase,
	}
}

func newTransport(timeout time.Duration) *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	if timeout <= 0 {
		return t
	}
	dialer := &net.Dialer{Timeout: timeout, KeepAlive: 30 * time.Second}
	t.DialContext = dialer.DialContext
	t.TLSHandshakeTimeout = timeout
	t.ResponseHeaderTimeout = timeout
	return t
}

// Open performs a GET and returns the response body. The caller must close it.
// Network errors and 5xx responses are retried with linear back-off; other
// non-2xx statuses fail immediately.
func (c *Client) Open(ctx context.Context, url string) (io.ReadCloser, error) {
	var lastErr error

	for i := 0; i < c.maxRetries; i++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "text/csv, */*")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			logger.Debug("Download attempt %d for %s failed: %v", i+1, url, err)
			if !c.backoff(ctx, i) {
				return nil, ctx.Err()
			}
			continue
		}

		if resp.StatusCode >= 500 {
			resp.Body.Close()
			lastErr = fmt.Errorf("server error: %d", resp.StatusCode)
			logger.Debug("Download attempt %d for %s failed: %v", i+1, url, lastErr)
			if !c.backoff(ctx, i) {
				return nil, ctx.Err()
			}
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			resp.Body.Close()
			return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
		}

		return resp.Body, nil
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// backoff sleeps before the next attempt; it returns false if ctx ended first.
func (c *Client) backoff(ctx context.Context, attempt int) bool {
	t := time.NewTimer(c.retryDelayBase * time.Duration(attempt+1))
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
