package broker

import (
	"context"
	"math"
	"time"
)

const (
	defaultMaxAttempts    = 3
	defaultInitialBackoff = 200 * time.Millisecond
	defaultMaxBackoff     = 3 * time.Second
	defaultBackoffFactor  = 2.0
)

// RetryConfig encapsulates exponential backoff settings for venue calls.
type RetryConfig struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
}

// Retryer executes venue operations with bounded backoff. Only failures
// classified transient by IsTransient are retried; permanent and credential
// failures surface immediately.
type Retryer struct {
	cfg RetryConfig
}

// NewRetryer constructs a Retryer with sane defaults.
func NewRetryer(cfg RetryConfig) *Retryer {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = defaultInitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = defaultMaxBackoff
	}
	if cfg.Multiplier <= 1 {
		cfg.Multiplier = defaultBackoffFactor
	}
	return &Retryer{cfg: cfg}
}

// Do executes fn until it succeeds, fails permanently, or exhausts attempts.
// The guard hook runs before every resend; returning an error aborts the
// retry loop with that error. The engine uses the guard to reconcile
// possibly-submitted orders so no state-mutating call is resent blindly.
func (r *Retryer) Do(ctx context.Context, fn func() error, guard func(error) error) error {
	attempts := 1
	backoff := r.cfg.InitialBackoff

	for {
		err := fn()
		if err == nil {
			return nil
		}
		if !IsTransient(err) || attempts >= r.cfg.MaxAttempts {
			return err
		}
		if guard != nil {
			if gerr := guard(err); gerr != nil {
				return gerr
			}
		}
		attempts++

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}

		backoff = time.Duration(math.Min(
			float64(r.cfg.MaxBackoff),
			float64(backoff)*r.cfg.Multiplier,
		))
	}
}
