package llm

import (
	"context"
	"errors"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/openai/openai-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry(maxRetries int) *RetryHandler {
	return NewRetryHandler(RetryConfig{
		MaxRetries:     maxRetries,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
	})
}

func TestRetryConfigDefaults(t *testing.T) {
	h := NewRetryHandler(RetryConfig{MaxRetries: -2, Multiplier: 0.5})
	assert.Equal(t, 0, h.cfg.MaxRetries, "negative retries clamp to zero")
	assert.Equal(t, 200*time.Millisecond, h.cfg.InitialBackoff)
	assert.Equal(t, 3*time.Second, h.cfg.MaxBackoff)
	assert.Equal(t, 2.0, h.cfg.Multiplier, "multipliers at or below 1 fall back")
}

func TestRetryDoStopsOnFirstSuccess(t *testing.T) {
	calls := 0
	err := fastRetry(3).Do(context.Background(), func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryDoRetriesRateLimitThenSucceeds(t *testing.T) {
	calls := 0
	err := fastRetry(3).Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return &openai.Error{StatusCode: http.StatusTooManyRequests}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryDoExhaustsAttempts(t *testing.T) {
	calls := 0
	rateLimited := &openai.Error{StatusCode: http.StatusServiceUnavailable}
	err := fastRetry(2).Do(context.Background(), func() error {
		calls++
		return rateLimited
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls, "one initial attempt plus two retries")
}

func TestRetryDoDoesNotRetryClientErrors(t *testing.T) {
	calls := 0
	err := fastRetry(3).Do(context.Background(), func() error {
		calls++
		return &openai.Error{StatusCode: http.StatusBadRequest}
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls, "4xx responses are final")
}

func TestRetryDoRespectsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := NewRetryHandler(RetryConfig{MaxRetries: 5, InitialBackoff: time.Hour}).Do(ctx, func() error {
		calls++
		cancel()
		return &openai.Error{StatusCode: http.StatusInternalServerError}
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls, "cancellation pre-empts the backoff sleep")
}

func TestRetryableClassification(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil wrapped transport op error", &net.OpError{Op: "dial", Err: errors.New("connection refused")}, true},
		{"timeout", timeoutErr{}, true},
		{"rate limit", &openai.Error{StatusCode: http.StatusTooManyRequests}, true},
		{"request timeout", &openai.Error{StatusCode: http.StatusRequestTimeout}, true},
		{"bad gateway", &openai.Error{StatusCode: http.StatusBadGateway}, true},
		{"unauthorized", &openai.Error{StatusCode: http.StatusUnauthorized}, false},
		{"not found", &openai.Error{StatusCode: http.StatusNotFound}, false},
		{"context canceled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, false},
		{"plain error", errors.New("malformed response"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, retryable(tc.err))
		})
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }
