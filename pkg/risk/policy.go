package risk

import (
	"math"

	"tradeagent/pkg/portfolio"
	"tradeagent/pkg/signal"
)

// Reason labels a rejection.
type Reason string

const (
	ReasonLowConfidence  Reason = "low_confidence"
	ReasonMaxPositions   Reason = "max_positions_reached"
	ReasonDailyLossLimit Reason = "daily_loss_limit_reached"
)

// Decision is the outcome of evaluating one signal against a portfolio view.
// Sizing is the advisory notional in quote currency; it is set only for
// accepted entries and converted to a unit quantity by the caller using a
// live price.
type Decision struct {
	Accepted bool
	Reason   Reason
	Sizing   float64
}

// Accept builds an accepting decision carrying the advisory sizing.
func Accept(sizing float64) Decision {
	return Decision{Accepted: true, Sizing: sizing}
}

// Reject builds a rejecting decision with the given reason.
func Reject(reason Reason) Decision {
	return Decision{Reason: reason}
}

// Evaluate applies the risk rules in order; the first failing rule wins.
// It is a pure function over the view and never mutates state, so callers
// may evaluate concurrently against the same snapshot.
//
// The confidence floor applies to every signal. The position cap and the
// daily loss gate apply to entries only: partials, stop moves and closes
// reduce exposure and must stay available on a bad day.
func Evaluate(sig signal.Signal, view portfolio.View, cfg Config) Decision {
	if sig.Confidence < cfg.ConfidenceThreshold {
		return Reject(ReasonLowConfidence)
	}

	if sig.Kind != signal.KindEntry {
		return Accept(0)
	}

	if cfg.MaxOpenPositions > 0 && view.OpenCount() >= cfg.MaxOpenPositions {
		return Reject(ReasonMaxPositions)
	}
	if cfg.MaxDailyLossPercent > 0 && view.DailyLossFraction() >= cfg.MaxDailyLossPercent/100 {
		return Reject(ReasonDailyLossLimit)
	}

	pct := math.Min(cfg.PositionSizePercent, cfg.MaxPositionSizePercent)
	return Accept(view.Balance * pct / 100)
}
