package httpretry

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sassongal/revWave-sub000/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sequenceServer replies with the given status codes in order, repeating
// the last one once exhausted.
func sequenceServer(t *testing.T, codes ...int) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(atomic.AddInt32(&calls, 1)) - 1
		if n >= len(codes) {
			n = len(codes) - 1
		}
		w.WriteHeader(codes[n])
		io.WriteString(w, `{"ok":true}`)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func recordingClient(delays *[]time.Duration) *RetryClient {
	return NewRetryClient(nil, 0).WithSleep(func(_ context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return nil
	})
}

func TestRetryThenSuccess(t *testing.T) {
	srv, calls := sequenceServer(t, 500, 500, 200)
	var delays []time.Duration
	rc := recordingClient(&delays)

	resp, err := rc.Request(context.Background(), http.MethodGet, srv.URL, nil, nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(3), atomic.LoadInt32(calls))
	assert.Equal(t, []time.Duration{1 * time.Second, 2 * time.Second}, delays)
}

func TestClientErrorIsImmediate(t *testing.T) {
	srv, calls := sequenceServer(t, 404)
	var delays []time.Duration
	rc := recordingClient(&delays)

	_, err := rc.Request(context.Background(), http.MethodGet, srv.URL, nil, nil)
	require.Error(t, err)

	var ce *domain.ClientError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, 404, ce.StatusCode)
	assert.ErrorIs(t, err, domain.ErrClientError)
	assert.Empty(t, delays)
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
}

func TestUnauthorizedIsRetried(t *testing.T) {
	srv, calls := sequenceServer(t, 401, 200)
	var delays []time.Duration
	rc := recordingClient(&delays)

	resp, err := rc.Request(context.Background(), http.MethodGet, srv.URL, nil, nil)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, int32(2), atomic.LoadInt32(calls))
	assert.Len(t, delays, 1)
}

func TestNoAuthRetryRejectsUnauthorized(t *testing.T) {
	srv, calls := sequenceServer(t, 401, 200)
	var delays []time.Duration
	base := recordingClient(&delays)
	rc := base.NoAuthRetry()

	_, err := rc.Request(context.Background(), http.MethodPost, srv.URL, nil, []byte("grant_type=refresh_token"))
	var ce *domain.ClientError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, http.StatusUnauthorized, ce.StatusCode)
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
	assert.Empty(t, delays)

	// the original client keeps retrying 401
	resp, err := base.Request(context.Background(), http.MethodGet, srv.URL, nil, nil)
	require.NoError(t, err)
	resp.Body.Close()
}

func TestExhaustedRetries(t *testing.T) {
	srv, calls := sequenceServer(t, 503)
	var delays []time.Duration
	rc := recordingClient(&delays)

	_, err := rc.Request(context.Background(), http.MethodGet, srv.URL, nil, nil)
	require.ErrorIs(t, err, domain.ErrExhaustedRetries)
	assert.NotErrorIs(t, err, domain.ErrClientError)
	assert.Equal(t, int32(3), atomic.LoadInt32(calls))
	assert.Equal(t, []time.Duration{1 * time.Second, 2 * time.Second}, delays)
}

func TestDelayScheduleDoubles(t *testing.T) {
	rc := NewRetryClient(nil, 4)
	assert.Equal(t, 1*time.Second, rc.delay(2))
	assert.Equal(t, 2*time.Second, rc.delay(3))
	assert.Equal(t, 4*time.Second, rc.delay(4))
}

type failingDoer struct{ calls int }

func (f *failingDoer) Do(*http.Request) (*http.Response, error) {
	f.calls++
	return nil, errors.New("connection reset by peer")
}

func TestNetworkErrorsAreRetried(t *testing.T) {
	doer := &failingDoer{}
	var delays []time.Duration
	rc := NewRetryClient(doer, 3).WithSleep(func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	})

	_, err := rc.Request(context.Background(), http.MethodGet, "http://example.invalid/x", nil, nil)
	require.ErrorIs(t, err, domain.ErrExhaustedRetries)
	assert.Contains(t, err.Error(), "connection reset")
	assert.Equal(t, 3, doer.calls)
	assert.Len(t, delays, 2)
}

func TestBodyIsResentOnRetry(t *testing.T) {
	var bodies []string
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		bodies = append(bodies, string(b))
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	var delays []time.Duration
	rc := recordingClient(&delays)
	h := http.Header{}
	h.Set("Content-Type", "application/json")

	resp, err := rc.Request(context.Background(), http.MethodPost, srv.URL, h, []byte(`{"comment":"thanks"}`))
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, []string{`{"comment":"thanks"}`, `{"comment":"thanks"}`}, bodies)
}

func TestContextCancelStopsRetries(t *testing.T) {
	srv, calls := sequenceServer(t, 500)
	ctx, cancel := context.WithCancel(context.Background())

	rc := NewRetryClient(nil, 3).WithSleep(func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	})

	_, err := rc.Request(ctx, http.MethodGet, srv.URL, nil, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
}
