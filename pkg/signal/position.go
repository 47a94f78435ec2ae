package signal

import (
	"time"

	"github.com/google/uuid"
)

// Status tracks a position through its lifecycle. Transitions only move
// forward: Open -> PartiallyClosed (zero or more times) -> Closed.
type Status string

const (
	StatusOpen            Status = "open"
	StatusPartiallyClosed Status = "partially_closed"
	StatusClosed          Status = "closed"
)

// Position is a broker-side holding tracked locally. RemainingSize never
// grows; it reaches zero exactly when Status becomes Closed.
type Position struct {
	ID            string    `json:"id" msgpack:"id"`
	Symbol        string    `json:"symbol" msgpack:"symbol"`
	Side          Side      `json:"side" msgpack:"side"`
	OpenedSize    float64   `json:"opened_size" msgpack:"opened_size"`
	RemainingSize float64   `json:"remaining_size" msgpack:"remaining_size"`
	EntryPrice    float64   `json:"entry_price" msgpack:"entry_price"`
	StopLoss      float64   `json:"stop_loss,omitempty" msgpack:"stop_loss,omitempty"`
	TakeProfits   []float64 `json:"take_profits,omitempty" msgpack:"take_profits,omitempty"`
	Status        Status    `json:"status" msgpack:"status"`
	RealizedPnL   float64   `json:"realized_pnl" msgpack:"realized_pnl"`
	BrokerRef     string    `json:"broker_ref,omitempty" msgpack:"broker_ref,omitempty"`
	OpenedAt      time.Time `json:"opened_at" msgpack:"opened_at"`
	ClosedAt      time.Time `json:"closed_at,omitempty" msgpack:"closed_at,omitempty"`
}

// NewPosition creates an Open position with a fresh identifier.
func NewPosition(symbol string, side Side, quantity, entryPrice float64, openedAt time.Time) *Position {
	return &Position{
		ID:            uuid.NewString(),
		Symbol:        symbol,
		Side:          side,
		OpenedSize:    quantity,
		RemainingSize: quantity,
		EntryPrice:    entryPrice,
		Status:        StatusOpen,
		OpenedAt:      openedAt,
	}
}

// Closed reports whether the position has no remaining size.
func (p *Position) Closed() bool { return p.Status == StatusClosed }

// ProfitOn computes the realized profit of exiting quantity units that were
// entered at entryPrice and exited at exitPrice, signed by side.
func ProfitOn(side Side, entryPrice, exitPrice, quantity float64) float64 {
	if side == SideShort {
		return (entryPrice - exitPrice) * quantity
	}
	return (exitPrice - entryPrice) * quantity
}
