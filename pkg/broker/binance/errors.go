package binance

import (
	"context"
	"errors"

	"github.com/adshao/go-binance/v2/common"

	"tradeagent/pkg/broker"
)

// wrapErr classifies a go-binance failure into the engine's error taxonomy.
// mutating marks operations that may already be recorded on the venue when
// the transport fails mid-flight.
func (v *Venue) wrapErr(op string, mutating bool, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case -1022, -2014, -2015: // bad signature, bad key format, invalid key/IP/permissions
			return &broker.AuthError{Venue: v.name, Err: err}
		case -1001, -1003, -1021: // internal error, rate limited, timestamp drift
			return broker.NewTransientError(v.name, op, false, err)
		case -1007: // venue timeout, send status unknown
			return broker.NewTransientError(v.name, op, mutating, err)
		default:
			return broker.NewPermanentError(v.name, op, err)
		}
	}

	// Transport-level failure: the request may or may not have reached the venue.
	return broker.NewTransientError(v.name, op, mutating, err)
}

func apiCode(err error) int64 {
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return 0
}
