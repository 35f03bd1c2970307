// Package httpretry provides an HTTP client with bounded retries, fixed
// exponential backoff and error classification for provider API calls.
package httpretry

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sassongal/revWave-sub000/internal/domain"
	"github.com/sassongal/revWave-sub000/internal/pkg/logger"
	"github.com/sassongal/revWave-sub000/internal/pkg/metrics"
)

const (
	// DefaultMaxAttempts is the total number of attempts, including the first.
	DefaultMaxAttempts = 3
	// DefaultBaseDelay is the wait before the second attempt; it doubles
	// for each subsequent attempt (1s, 2s, 4s, ...).
	DefaultBaseDelay = 1 * time.Second
	// DefaultAttemptTimeout bounds a single attempt.
	DefaultAttemptTimeout = 30 * time.Second

	maxErrorBody = 2048
)

var log = logger.With("httpretry")

// HTTPDoer is the interface for executing HTTP requests.
// Both *http.Client and *RetryClient satisfy this interface.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// RetryClient wraps an HTTPDoer with retry logic using exponential backoff
// without jitter.
type RetryClient struct {
	client      HTTPDoer
	maxAttempts int
	baseDelay   time.Duration
	sleep       SleepFunc
	// retryAuth retries 401 responses, which provider APIs return for an
	// access token that expired between load and use.
	retryAuth bool
}

// NewRetryClient creates a new RetryClient that wraps the given HTTPDoer.
// If client is nil, a default http.Client with a 30s per-attempt timeout is used.
// maxAttempts is the total number of attempts (default 3).
func NewRetryClient(client HTTPDoer, maxAttempts int) *RetryClient {
	if client == nil {
		client = &http.Client{Timeout: DefaultAttemptTimeout}
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &RetryClient{
		client:      client,
		maxAttempts: maxAttempts,
		baseDelay:   DefaultBaseDelay,
		sleep:       sleepContext,
		retryAuth:   true,
	}
}

// WithSleep replaces the backoff wait. Tests use it to record delays.
func (rc *RetryClient) WithSleep(fn SleepFunc) *RetryClient {
	rc.sleep = fn
	return rc
}

// NoAuthRetry returns a copy of rc that treats 401 like any other 4xx.
// Token endpoints answer 401 for revoked client credentials, which no retry
// can fix.
func (rc *RetryClient) NoAuthRetry() *RetryClient {
	cp := *rc
	cp.retryAuth = false
	return &cp
}

// Request builds and executes a request. body may be nil.
func (rc *RetryClient) Request(ctx context.Context, method, url string, headers http.Header, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("httpretry: build request: %w", err)
	}
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	return rc.Do(req)
}

// Do executes the request with retry logic and returns the response only
// when its status is below 400. The caller must close the body.
//
// Classification:
//   - 4xx other than 401: *domain.ClientError, no retry
//   - 401: retried, or *domain.ClientError after NoAuthRetry
//   - 5xx, network errors: retried
//   - retries exhausted: domain.ErrExhaustedRetries
//   - context cancellation: returned as-is
func (rc *RetryClient) Do(req *http.Request) (*http.Response, error) {
	var lastErr error

	for attempt := 1; attempt <= rc.maxAttempts; attempt++ {
		if req.Context().Err() != nil {
			return nil, req.Context().Err()
		}

		if attempt > 1 {
			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return nil, fmt.Errorf("httpretry: failed to reset request body: %w", err)
				}
				req.Body = body
			}

			delay := rc.delay(attempt)
			metrics.HTTPRetriesTotal.Inc()
			log.Warn("retrying request",
				"method", req.Method,
				"host", req.URL.Host,
				"path", req.URL.Path,
				"attempt", attempt,
				"max_attempts", rc.maxAttempts,
				"delay", delay,
				"cause", lastErr,
			)
			if err := rc.sleep(req.Context(), delay); err != nil {
				return nil, err
			}
		}

		resp, err := rc.client.Do(req)
		if err != nil {
			if req.Context().Err() != nil {
				return nil, req.Context().Err()
			}
			lastErr = err
			continue
		}

		switch {
		case resp.StatusCode < 400:
			return resp, nil
		case resp.StatusCode < 500 && (resp.StatusCode != http.StatusUnauthorized || !rc.retryAuth):
			return nil, &domain.ClientError{StatusCode: resp.StatusCode, Body: readErrorBody(resp)}
		default:
			lastErr = fmt.Errorf("server returned status %d", resp.StatusCode)
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}
	}

	return nil, fmt.Errorf("%w (%d attempts): %v", domain.ErrExhaustedRetries, rc.maxAttempts, lastErr)
}

// delay returns the wait before the given attempt (attempt >= 2):
// baseDelay * 2^(attempt-2).
func (rc *RetryClient) delay(attempt int) time.Duration {
	return rc.baseDelay << (attempt - 2)
}

func readErrorBody(resp *http.Response) string {
	defer resp.Body.Close()
	b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return strings.TrimSpace(string(b))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
