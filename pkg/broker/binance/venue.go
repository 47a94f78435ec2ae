package binance

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2/futures"

	"tradeagent/pkg/broker"
	"tradeagent/pkg/signal"
)

// Venue executes orders on Binance USD-M futures through go-binance. One-way
// position mode is assumed: at most one venue position per symbol, protected
// by a single close-all stop order the venue tracks for ModifyStop.
type Venue struct {
	name   string
	client *futures.Client
	logger broker.Logger

	mu         sync.Mutex
	precision  map[string]symbolPrecision // filled lazily from exchange info
	stopOrders map[string]int64           // symbol -> active protective stop order id
}

type symbolPrecision struct {
	price    int
	quantity int
}

// Option customizes venue construction.
type Option func(*Venue)

// WithHTTPClient overrides the HTTP transport, e.g. for recorded tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(v *Venue) { v.client.HTTPClient = hc }
}

// WithLogger attaches a structured logger.
func WithLogger(l broker.Logger) Option {
	return func(v *Venue) {
		if l != nil {
			v.logger = l
		}
	}
}

// New constructs a Binance venue adapter.
func New(name, apiKey, apiSecret string, testnet bool, opts ...Option) *Venue {
	if name == "" {
		name = "binance"
	}
	futures.UseTestnet = testnet
	v := &Venue{
		name:       name,
		client:     futures.NewClient(apiKey, apiSecret),
		logger:     broker.NopLogger{},
		precision:  make(map[string]symbolPrecision),
		stopOrders: make(map[string]int64),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Name identifies the venue instance.
func (v *Venue) Name() string { return v.name }

// GetBalance returns total margin balance (wallet balance plus unrealized PnL).
func (v *Venue) GetBalance(ctx context.Context) (float64, error) {
	account, err := v.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return 0, v.wrapErr("get_balance", false, err)
	}
	balance, err := strconv.ParseFloat(account.TotalMarginBalance, 64)
	if err != nil {
		return 0, broker.NewPermanentError(v.name, "get_balance", fmt.Errorf("parse balance %q: %w", account.TotalMarginBalance, err))
	}
	return balance, nil
}

// GetPrice returns the latest traded price for the symbol.
func (v *Venue) GetPrice(ctx context.Context, symbol string) (float64, error) {
	prices, err := v.client.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, v.wrapErr("get_price", false, err)
	}
	if len(prices) == 0 {
		return 0, broker.NewPermanentError(v.name, "get_price", fmt.Errorf("no price for %s", symbol))
	}
	price, err := strconv.ParseFloat(prices[0].Price, 64)
	if err != nil {
		return 0, broker.NewPermanentError(v.name, "get_price", fmt.Errorf("parse price %q: %w", prices[0].Price, err))
	}
	return price, nil
}

// OpenPosition submits a market order and, when requested, arms protective
// stop and take-profit orders. The position result reflects the market fill.
func (v *Venue) OpenPosition(ctx context.Context, req broker.OpenRequest) (*broker.OrderResult, error) {
	prec, err := v.precisionFor(ctx, req.Symbol)
	if err != nil {
		return nil, err
	}
	qty := formatDecimals(req.Quantity, prec.quantity)
	if parsed, _ := strconv.ParseFloat(qty, 64); parsed <= 0 {
		return nil, broker.NewPermanentError(v.name, "open_position", fmt.Errorf("quantity %.10f rounds to zero at precision %d", req.Quantity, prec.quantity))
	}

	svc := v.client.NewCreateOrderService().
		Symbol(req.Symbol).
		Side(orderSide(req.Side, false)).
		Type(futures.OrderTypeMarket).
		Quantity(qty).
		NewOrderResponseType(futures.NewOrderRespTypeRESULT)
	if req.ClientOrderID != "" {
		svc = svc.NewClientOrderID(req.ClientOrderID)
	}

	resp, err := svc.Do(ctx)
	if err != nil {
		return nil, v.wrapErr("open_position", true, err)
	}
	if resp.Status != futures.OrderStatusTypeFilled {
		if _, cancelErr := v.client.NewCancelOrderService().Symbol(req.Symbol).OrderID(resp.OrderID).Do(ctx); cancelErr != nil {
			v.logger.Warn(ctx, "cancel of unfilled market order failed", broker.Fields{"symbol": req.Symbol, "order_id": resp.OrderID, "error": cancelErr})
		}
		return nil, broker.NewPermanentError(v.name, "open_position", fmt.Errorf("order %d not filled: %s", resp.OrderID, resp.Status))
	}

	fillPrice, _ := strconv.ParseFloat(resp.AvgPrice, 64)
	filledQty, _ := strconv.ParseFloat(resp.ExecutedQuantity, 64)

	if req.StopLoss > 0 {
		if stopErr := v.armStop(ctx, req.Symbol, req.Side, req.StopLoss, prec); stopErr != nil {
			v.logger.Warn(ctx, "stop placement failed after fill", broker.Fields{"symbol": req.Symbol, "stop": req.StopLoss, "error": stopErr})
		}
	}
	if req.TakeProfit > 0 {
		if tpErr := v.armTakeProfit(ctx, req.Symbol, req.Side, req.TakeProfit, prec); tpErr != nil {
			v.logger.Warn(ctx, "take-profit placement failed after fill", broker.Fields{"symbol": req.Symbol, "take_profit": req.TakeProfit, "error": tpErr})
		}
	}

	return &broker.OrderResult{
		OrderRef:       strconv.FormatInt(resp.OrderID, 10),
		ClientOrderID:  resp.ClientOrderID,
		Filled:         true,
		FillPrice:      fillPrice,
		FilledQuantity: filledQty,
		ExecutedAt:     time.Now(),
	}, nil
}

// ClosePosition reduces the symbol's position with a reduce-only market order.
func (v *Venue) ClosePosition(ctx context.Context, req broker.CloseRequest) (*broker.OrderResult, error) {
	prec, err := v.precisionFor(ctx, req.Symbol)
	if err != nil {
		return nil, err
	}
	qty := formatDecimals(req.Quantity, prec.quantity)
	if parsed, _ := strconv.ParseFloat(qty, 64); parsed <= 0 {
		return nil, broker.NewPermanentError(v.name, "close_position", fmt.Errorf("quantity %.10f rounds to zero at precision %d", req.Quantity, prec.quantity))
	}

	svc := v.client.NewCreateOrderService().
		Symbol(req.Symbol).
		Side(orderSide(req.Side, true)).
		Type(futures.OrderTypeMarket).
		Quantity(qty).
		ReduceOnly(true).
		NewOrderResponseType(futures.NewOrderRespTypeRESULT)
	if req.ClientOrderID != "" {
		svc = svc.NewClientOrderID(req.ClientOrderID)
	}

	resp, err := svc.Do(ctx)
	if err != nil {
		return nil, v.wrapErr("close_position", true, err)
	}
	if resp.Status != futures.OrderStatusTypeFilled {
		if _, cancelErr := v.client.NewCancelOrderService().Symbol(req.Symbol).OrderID(resp.OrderID).Do(ctx); cancelErr != nil {
			v.logger.Warn(ctx, "cancel of unfilled close order failed", broker.Fields{"symbol": req.Symbol, "order_id": resp.OrderID, "error": cancelErr})
		}
		return nil, broker.NewPermanentError(v.name, "close_position", fmt.Errorf("order %d not filled: %s", resp.OrderID, resp.Status))
	}

	fillPrice, _ := strconv.ParseFloat(resp.AvgPrice, 64)
	filledQty, _ := strconv.ParseFloat(resp.ExecutedQuantity, 64)

	v.releaseStopIfFlat(ctx, req.Symbol)

	return &broker.OrderResult{
		OrderRef:       strconv.FormatInt(resp.OrderID, 10),
		ClientOrderID:  resp.ClientOrderID,
		Filled:         true,
		FillPrice:      fillPrice,
		FilledQuantity: filledQty,
		ExecutedAt:     time.Now(),
	}, nil
}

// ModifyStop replaces the symbol's protective stop with a new close-all stop.
// The old stop is canceled only after the replacement is live.
func (v *Venue) ModifyStop(ctx context.Context, req broker.ModifyStopRequest) error {
	prec, err := v.precisionFor(ctx, req.Symbol)
	if err != nil {
		return err
	}
	if req.NewStop <= 0 {
		return broker.NewPermanentError(v.name, "modify_stop", fmt.Errorf("stop price must be positive"))
	}
	return v.armStop(ctx, req.Symbol, req.Side, req.NewStop, prec)
}

// OrderStatus reports what the venue recorded for a client order id.
func (v *Venue) OrderStatus(ctx context.Context, symbol, clientOrderID string) (broker.OrderState, error) {
	order, err := v.client.NewGetOrderService().Symbol(symbol).OrigClientOrderID(clientOrderID).Do(ctx)
	if err != nil {
		if apiCode(err) == -2013 { // order does not exist
			return broker.OrderStateUnknown, nil
		}
		return broker.OrderStateUnknown, v.wrapErr("order_status", false, err)
	}
	switch order.Status {
	case futures.OrderStatusTypeFilled:
		return broker.OrderStateFilled, nil
	case futures.OrderStatusTypeNew, futures.OrderStatusTypePartiallyFilled:
		return broker.OrderStatePending, nil
	case futures.OrderStatusTypeCanceled, futures.OrderStatusTypeExpired:
		return broker.OrderStateCanceled, nil
	case futures.OrderStatusTypeRejected:
		return broker.OrderStateRejected, nil
	default:
		return broker.OrderStateUnknown, nil
	}
}

func (v *Venue) armStop(ctx context.Context, symbol string, side signal.Side, stop float64, prec symbolPrecision) error {
	resp, err := v.client.NewCreateOrderService().
		Symbol(symbol).
		Side(orderSide(side, true)).
		Type(futures.OrderTypeStopMarket).
		StopPrice(formatDecimals(stop, prec.price)).
		ClosePosition(true).
		Do(ctx)
	if err != nil {
		return v.wrapErr("arm_stop", true, err)
	}

	v.mu.Lock()
	old := v.stopOrders[symbol]
	v.stopOrders[symbol] = resp.OrderID
	v.mu.Unlock()

	if old != 0 {
		if _, cancelErr := v.client.NewCancelOrderService().Symbol(symbol).OrderID(old).Do(ctx); cancelErr != nil && apiCode(cancelErr) != -2011 { // unknown order
			v.logger.Warn(ctx, "cancel of superseded stop failed", broker.Fields{"symbol": symbol, "order_id": old, "error": cancelErr})
		}
	}
	return nil
}

func (v *Venue) armTakeProfit(ctx context.Context, symbol string, side signal.Side, target float64, prec symbolPrecision) error {
	_, err := v.client.NewCreateOrderService().
		Symbol(symbol).
		Side(orderSide(side, true)).
		Type(futures.OrderTypeTakeProfitMarket).
		StopPrice(formatDecimals(target, prec.price)).
		ClosePosition(true).
		Do(ctx)
	if err != nil {
		return v.wrapErr("arm_take_profit", true, err)
	}
	return nil
}

// releaseStopIfFlat cancels the tracked stop once the venue position is gone,
// so a stale close-all stop cannot linger after a full close. Failures only
// warn; the stop is harmless on a flat position.
func (v *Venue) releaseStopIfFlat(ctx context.Context, symbol string) {
	v.mu.Lock()
	stopID := v.stopOrders[symbol]
	v.mu.Unlock()
	if stopID == 0 {
		return
	}

	risks, err := v.client.NewGetPositionRiskService().Symbol(symbol).Do(ctx)
	if err != nil {
		v.logger.Warn(ctx, "position risk query failed", broker.Fields{"symbol": symbol, "error": err})
		return
	}
	for _, risk := range risks {
		amt, _ := strconv.ParseFloat(risk.PositionAmt, 64)
		if amt != 0 {
			return
		}
	}

	if _, err := v.client.NewCancelOrderService().Symbol(symbol).OrderID(stopID).Do(ctx); err != nil && apiCode(err) != -2011 {
		v.logger.Warn(ctx, "cancel of orphaned stop failed", broker.Fields{"symbol": symbol, "order_id": stopID, "error": err})
		return
	}
	v.mu.Lock()
	delete(v.stopOrders, symbol)
	v.mu.Unlock()
}

func (v *Venue) precisionFor(ctx context.Context, symbol string) (symbolPrecision, error) {
	v.mu.Lock()
	prec, ok := v.precision[symbol]
	v.mu.Unlock()
	if ok {
		return prec, nil
	}

	info, err := v.client.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return symbolPrecision{}, v.wrapErr("exchange_info", false, err)
	}

	v.mu.Lock()
	for _, s := range info.Symbols {
		v.precision[s.Symbol] = symbolPrecision{price: s.PricePrecision, quantity: s.QuantityPrecision}
	}
	prec, ok = v.precision[symbol]
	v.mu.Unlock()
	if !ok {
		return symbolPrecision{}, broker.NewPermanentError(v.name, "exchange_info", fmt.Errorf("unknown symbol %s", symbol))
	}
	return prec, nil
}

func orderSide(side signal.Side, closing bool) futures.SideType {
	long := side == signal.SideLong
	if closing {
		long = !long
	}
	if long {
		return futures.SideTypeBuy
	}
	return futures.SideTypeSell
}

// formatDecimals rounds down to the venue's step so an order never exceeds
// the intended quantity.
func formatDecimals(val float64, decimals int) string {
	factor := math.Pow10(decimals)
	floored := math.Floor(val*factor) / factor
	return strconv.FormatFloat(floored, 'f', decimals, 64)
}

// Registry hook for broker.Config.
func init() {
	broker.Register("binance", func(name string, cfg *broker.VenueConfig) (broker.Adapter, error) {
		opts := []Option{}
		if cfg.Timeout > 0 {
			opts = append(opts, WithHTTPClient(&http.Client{Timeout: cfg.Timeout}))
		}
		return New(name, cfg.APIKey, cfg.APISecret, cfg.Testnet, opts...), nil
	})
}
