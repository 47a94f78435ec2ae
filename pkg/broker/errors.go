package broker

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ExecutionError wraps a venue failure with the classification the engine
// needs: whether the failure is transient, and whether the request may have
// reached the venue (Sent) so a resend must reconcile first.
type ExecutionError struct {
	Venue     string
	Op        string
	Transient bool
	Sent      bool
	Err       error
}

func (e *ExecutionError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("broker %s: %s failed (%s): %v", e.Venue, e.Op, kind, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// NewTransientError marks a failure worth retrying. sent signals that the
// request may already be recorded on the venue.
func NewTransientError(venue, op string, sent bool, err error) *ExecutionError {
	return &ExecutionError{Venue: venue, Op: op, Transient: true, Sent: sent, Err: err}
}

// NewPermanentError marks a failure that must not be retried.
func NewPermanentError(venue, op string, err error) *ExecutionError {
	return &ExecutionError{Venue: venue, Op: op, Err: err}
}

// AuthError reports invalid or expired credentials. It is fatal for the
// engine: intake halts until an operator intervenes.
type AuthError struct {
	Venue string
	Err   error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("broker %s: authentication failed: %v", e.Venue, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// IsTransient reports whether err is safe to retry with backoff. An explicit
// adapter classification always wins; raw context errors are never retried.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var execErr *ExecutionError
	if errors.As(err, &execErr) {
		return execErr.Transient
	}

	var authErr *AuthError
	if errors.As(err, &authErr) {
		return false
	}

	switch {
	case errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	return false
}

// WasSent reports whether the failed request may already be recorded on the
// venue, in which case a resend requires an OrderStatus reconciliation.
func WasSent(err error) bool {
	var execErr *ExecutionError
	if errors.As(err, &execErr) {
		return execErr.Sent
	}
	return false
}

// IsAuth reports whether err is a credential failure.
func IsAuth(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}
