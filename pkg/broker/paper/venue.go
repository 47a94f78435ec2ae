package paper

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"tradeagent/pkg/broker"
	"tradeagent/pkg/signal"
)

const defaultStartingBalance = 100000.0

// Venue is a paper-trading execution venue that keeps positions, equity and
// submitted orders in memory. Fills are synchronous at the latest mark price.
type Venue struct {
	mu sync.Mutex

	name string
	cash float64

	markPx    map[string]float64        // latest mark price per symbol
	positions map[string]*positionState // venue ref -> state
	orders    map[string]orderRecord    // client order id -> outcome
}

type positionState struct {
	Ref    string
	Symbol string
	Side   signal.Side
	Qty    float64
	Entry  float64
	Stop   float64
}

type orderRecord struct {
	State broker.OrderState
	Ref   string
}

// New constructs a paper venue. A non-positive startingBalance falls back to
// the default equity.
func New(name string, startingBalance float64) *Venue {
	if name == "" {
		name = "paper"
	}
	if startingBalance <= 0 {
		startingBalance = defaultStartingBalance
	}
	return &Venue{
		name:      name,
		cash:      startingBalance,
		markPx:    make(map[string]float64),
		positions: make(map[string]*positionState),
		orders:    make(map[string]orderRecord),
	}
}

// Name identifies the venue instance.
func (v *Venue) Name() string { return v.name }

// SetMarkPrice updates the reference price used for fills and equity.
func (v *Venue) SetMarkPrice(ctx context.Context, symbol string, price float64) error {
	if price <= 0 {
		return fmt.Errorf("paper: mark price must be positive")
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.markPx[signal.NormalizeSymbol(symbol)] = price
	return nil
}

// GetBalance returns current equity: cash plus unrealized PnL marked to the
// latest prices.
func (v *Venue) GetBalance(ctx context.Context) (float64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	equity := v.cash
	for _, state := range v.positions {
		mark := v.markPx[state.Symbol]
		if mark <= 0 {
			mark = state.Entry
		}
		equity += signal.ProfitOn(state.Side, state.Entry, mark, state.Qty)
	}
	return equity, nil
}

// GetPrice returns the latest mark price for the symbol.
func (v *Venue) GetPrice(ctx context.Context, symbol string) (float64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	sym := signal.NormalizeSymbol(symbol)
	price, ok := v.markPx[sym]
	if !ok || price <= 0 {
		return 0, broker.NewPermanentError(v.name, "get_price", fmt.Errorf("no mark price for %s", sym))
	}
	return price, nil
}

// OpenPosition fills a market open at the current mark price.
func (v *Venue) OpenPosition(ctx context.Context, req broker.OpenRequest) (*broker.OrderResult, error) {
	if req.Quantity <= 0 {
		return nil, broker.NewPermanentError(v.name, "open_position", fmt.Errorf("quantity must be positive"))
	}
	if req.Side != signal.SideLong && req.Side != signal.SideShort {
		return nil, broker.NewPermanentError(v.name, "open_position", fmt.Errorf("side must be long or short"))
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if req.ClientOrderID != "" {
		if _, exists := v.orders[req.ClientOrderID]; exists {
			return nil, broker.NewPermanentError(v.name, "open_position", fmt.Errorf("duplicate client order id %s", req.ClientOrderID))
		}
	}

	sym := signal.NormalizeSymbol(req.Symbol)
	mark, ok := v.markPx[sym]
	if !ok || mark <= 0 {
		return nil, broker.NewPermanentError(v.name, "open_position", fmt.Errorf("no mark price for %s", sym))
	}

	ref := uuid.NewString()
	v.positions[ref] = &positionState{
		Ref:    ref,
		Symbol: sym,
		Side:   req.Side,
		Qty:    req.Quantity,
		Entry:  mark,
		Stop:   req.StopLoss,
	}
	v.recordOrderLocked(req.ClientOrderID, broker.OrderStateFilled, ref)

	return &broker.OrderResult{
		OrderRef:       ref,
		ClientOrderID:  req.ClientOrderID,
		Filled:         true,
		FillPrice:      mark,
		FilledQuantity: req.Quantity,
		ExecutedAt:     time.Now(),
	}, nil
}

// ClosePosition reduces the referenced position at the current mark price and
// realizes PnL into cash. Quantities above the remaining size clamp.
func (v *Venue) ClosePosition(ctx context.Context, req broker.CloseRequest) (*broker.OrderResult, error) {
	if req.Quantity <= 0 {
		return nil, broker.NewPermanentError(v.name, "close_position", fmt.Errorf("quantity must be positive"))
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if req.ClientOrderID != "" {
		if _, exists := v.orders[req.ClientOrderID]; exists {
			return nil, broker.NewPermanentError(v.name, "close_position", fmt.Errorf("duplicate client order id %s", req.ClientOrderID))
		}
	}

	state, ok := v.positions[req.PositionRef]
	if !ok {
		return nil, broker.NewPermanentError(v.name, "close_position", fmt.Errorf("unknown position ref %s", req.PositionRef))
	}

	mark := v.markPx[state.Symbol]
	if mark <= 0 {
		mark = state.Entry
	}

	qty := math.Min(req.Quantity, state.Qty)
	v.cash += signal.ProfitOn(state.Side, state.Entry, mark, qty)
	state.Qty -= qty
	if state.Qty < 1e-10 {
		delete(v.positions, req.PositionRef)
	}
	v.recordOrderLocked(req.ClientOrderID, broker.OrderStateFilled, req.PositionRef)

	return &broker.OrderResult{
		OrderRef:       req.PositionRef,
		ClientOrderID:  req.ClientOrderID,
		Filled:         true,
		FillPrice:      mark,
		FilledQuantity: qty,
		ExecutedAt:     time.Now(),
	}, nil
}

// ModifyStop updates the protective stop on the referenced position.
func (v *Venue) ModifyStop(ctx context.Context, req broker.ModifyStopRequest) error {
	if req.NewStop <= 0 {
		return broker.NewPermanentError(v.name, "modify_stop", fmt.Errorf("stop price must be positive"))
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	state, ok := v.positions[req.PositionRef]
	if !ok {
		return broker.NewPermanentError(v.name, "modify_stop", fmt.Errorf("unknown position ref %s", req.PositionRef))
	}
	state.Stop = req.NewStop
	return nil
}

// OrderStatus reports what the venue recorded for a client order id.
func (v *Venue) OrderStatus(ctx context.Context, symbol, clientOrderID string) (broker.OrderState, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	rec, ok := v.orders[clientOrderID]
	if !ok {
		return broker.OrderStateUnknown, nil
	}
	return rec.State, nil
}

// OpenQuantity reports the remaining venue-side quantity for a position ref.
// Zero means the position is gone. Used by tests and reconciliation checks.
func (v *Venue) OpenQuantity(ref string) float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	if state, ok := v.positions[ref]; ok {
		return state.Qty
	}
	return 0
}

// StopFor reports the current stop price for a position ref.
func (v *Venue) StopFor(ref string) float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	if state, ok := v.positions[ref]; ok {
		return state.Stop
	}
	return 0
}

func (v *Venue) recordOrderLocked(clientOrderID string, state broker.OrderState, ref string) {
	if clientOrderID == "" {
		return
	}
	v.orders[clientOrderID] = orderRecord{State: state, Ref: ref}
}

// Registry hook for broker.Config.
func init() {
	broker.Register("paper", func(name string, cfg *broker.VenueConfig) (broker.Adapter, error) {
		return New(name, cfg.StartingBalance), nil
	})
}
