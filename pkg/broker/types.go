package broker

import (
	"time"

	"tradeagent/pkg/signal"
)

// OpenRequest asks the venue to open a position at market.
type OpenRequest struct {
	ClientOrderID string      // caller-generated, unique per submission attempt
	Symbol        string
	Side          signal.Side
	Quantity      float64
	StopLoss      float64 // optional, 0 means none
	TakeProfit    float64 // optional, 0 means none
}

// CloseRequest reduces an existing position by Quantity units.
type CloseRequest struct {
	ClientOrderID string
	PositionRef   string // venue reference returned when the position was opened
	Symbol        string
	Side          signal.Side // side of the position being reduced
	Quantity      float64
}

// ModifyStopRequest moves the protective stop of an open position.
type ModifyStopRequest struct {
	PositionRef string
	Symbol      string
	Side        signal.Side
	NewStop     float64
}

// OrderResult reports the venue's confirmation of a fill.
type OrderResult struct {
	OrderRef       string // venue-assigned order identifier
	ClientOrderID  string
	Filled         bool
	FillPrice      float64
	FilledQuantity float64
	ExecutedAt     time.Time
}

// OrderState is the venue-side lifecycle of a submitted order, used to
// reconcile ambiguous failures.
type OrderState string

const (
	// OrderStateUnknown means the venue has no record of the client order id.
	OrderStateUnknown OrderState = "unknown"
	// OrderStatePending means the order is recorded but not yet filled.
	OrderStatePending  OrderState = "pending"
	OrderStateFilled   OrderState = "filled"
	OrderStateRejected OrderState = "rejected"
	OrderStateCanceled OrderState = "canceled"
)
