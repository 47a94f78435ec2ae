package broker

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsTransientClassification(t *testing.T) {
	assert.False(t, IsTransient(nil), "nil is not transient")
	assert.False(t, IsTransient(context.Canceled), "cancellation is not transient")
	assert.False(t, IsTransient(context.DeadlineExceeded), "engine deadlines are not transient")

	transient := NewTransientError("binance", "get_price", false, fmt.Errorf("502"))
	assert.True(t, IsTransient(transient), "marked transient errors retry")

	wrapped := fmt.Errorf("engine: price refresh: %w", transient)
	assert.True(t, IsTransient(wrapped), "classification should survive wrapping")

	permanent := NewPermanentError("binance", "open_position", fmt.Errorf("invalid symbol"))
	assert.False(t, IsTransient(permanent), "permanent errors never retry")

	auth := &AuthError{Venue: "binance", Err: fmt.Errorf("401")}
	assert.False(t, IsTransient(auth), "auth errors never retry")
}

func TestWasSent(t *testing.T) {
	sent := NewTransientError("binance", "open_position", true, fmt.Errorf("timeout after submit"))
	assert.True(t, WasSent(sent), "sent flag should be visible")
	assert.True(t, WasSent(fmt.Errorf("wrap: %w", sent)), "sent flag should survive wrapping")

	unsent := NewTransientError("binance", "open_position", false, fmt.Errorf("connection refused"))
	assert.False(t, WasSent(unsent), "pre-submission failures are not sent")
	assert.False(t, WasSent(fmt.Errorf("plain")), "plain errors are not sent")
}

func TestExecutionErrorMessage(t *testing.T) {
	err := NewTransientError("paper", "close_position", false, fmt.Errorf("boom"))
	assert.Contains(t, err.Error(), "paper", "message should name the venue")
	assert.Contains(t, err.Error(), "close_position", "message should name the operation")
	assert.Contains(t, err.Error(), "transient", "message should include the classification")
}
