package broker

import "context"

// Adapter exposes execution capabilities in a venue-agnostic fashion.
type Adapter interface {
	// Account information.
	GetBalance(ctx context.Context) (float64, error)
	GetPrice(ctx context.Context, symbol string) (float64, error)

	// Order management. Every mutating request carries a caller-generated
	// client order id so an ambiguous failure can be reconciled through
	// OrderStatus before any resend.
	OpenPosition(ctx context.Context, req OpenRequest) (*OrderResult, error)
	ClosePosition(ctx context.Context, req CloseRequest) (*OrderResult, error)
	ModifyStop(ctx context.Context, req ModifyStopRequest) error

	// OrderStatus reports what the venue recorded for a client order id.
	OrderStatus(ctx context.Context, symbol, clientOrderID string) (OrderState, error)

	// Name identifies the venue for logs and journal records.
	Name() string
}
