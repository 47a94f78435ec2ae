package broker

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryerRetriesTransient(t *testing.T) {
	r := NewRetryer(RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond})

	calls := 0
	err := r.Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return NewTransientError("paper", "get_price", false, fmt.Errorf("connection reset"))
		}
		return nil
	}, nil)

	assert.NoError(t, err, "transient failures within the attempt budget should recover")
	assert.Equal(t, 3, calls, "should retry until success")
}

func TestRetryerStopsAtAttemptBudget(t *testing.T) {
	r := NewRetryer(RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond})

	calls := 0
	err := r.Do(context.Background(), func() error {
		calls++
		return NewTransientError("paper", "get_price", false, fmt.Errorf("still down"))
	}, nil)

	assert.Error(t, err, "exhausted attempts should surface the last error")
	assert.Equal(t, 3, calls, "should stop at the attempt budget")
}

func TestRetryerPermanentFailsFast(t *testing.T) {
	r := NewRetryer(RetryConfig{})

	calls := 0
	err := r.Do(context.Background(), func() error {
		calls++
		return NewPermanentError("paper", "open_position", fmt.Errorf("insufficient margin"))
	}, nil)

	assert.Error(t, err, "permanent failure should surface")
	assert.Equal(t, 1, calls, "permanent failures are never retried")
}

func TestRetryerAuthFailsFast(t *testing.T) {
	r := NewRetryer(RetryConfig{})

	calls := 0
	err := r.Do(context.Background(), func() error {
		calls++
		return &AuthError{Venue: "binance", Err: fmt.Errorf("invalid api key")}
	}, nil)

	assert.Error(t, err, "auth failure should surface")
	assert.Equal(t, 1, calls, "auth failures are never retried")
	assert.True(t, IsAuth(err), "error should classify as auth")
}

func TestRetryerGuardAborts(t *testing.T) {
	r := NewRetryer(RetryConfig{MaxAttempts: 5, InitialBackoff: time.Millisecond})

	guardErr := errors.New("order already recorded on venue")
	calls := 0
	err := r.Do(context.Background(), func() error {
		calls++
		return NewTransientError("binance", "open_position", true, fmt.Errorf("timeout"))
	}, func(cause error) error {
		if WasSent(cause) {
			return guardErr
		}
		return nil
	})

	assert.ErrorIs(t, err, guardErr, "guard error should abort the loop")
	assert.Equal(t, 1, calls, "no resend after the guard aborts")
}

func TestRetryerHonorsContext(t *testing.T) {
	r := NewRetryer(RetryConfig{MaxAttempts: 10, InitialBackoff: 50 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := r.Do(ctx, func() error {
		return NewTransientError("paper", "get_price", false, fmt.Errorf("down"))
	}, nil)

	assert.ErrorIs(t, err, context.Canceled, "canceled context should stop retrying")
}
