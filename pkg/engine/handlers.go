package engine

import (
	"context"
	"errors"
	"fmt"
	"math"

	"tradeagent/pkg/broker"
	"tradeagent/pkg/journal"
	"tradeagent/pkg/portfolio"
	"tradeagent/pkg/risk"
	"tradeagent/pkg/signal"
)

// handleEntry opens a position: refresh equity, gate through risk policy,
// price and size the order, submit it, and commit the fill. The cap is
// re-checked inside CommitOpen; losing that race unwinds the venue order.
func (e *Engine) handleEntry(ctx context.Context, sig signal.Signal) {
	if sig.Side == signal.SideUnspecified {
		e.finish(ctx, sig, journal.DispositionRejected, "entry without direction", nil, nil)
		return
	}

	if err := e.refreshBalance(ctx); err != nil {
		e.fail(ctx, sig, err)
		return
	}

	view := e.store.View(e.now())
	decision := risk.Evaluate(sig, view, e.riskCfg)
	if !decision.Accepted {
		e.finish(ctx, sig, journal.DispositionRejected, string(decision.Reason), nil, nil)
		return
	}

	price, err := e.entryPrice(ctx, sig)
	if err != nil {
		e.fail(ctx, sig, err)
		return
	}
	if price <= 0 {
		e.fail(ctx, sig, fmt.Errorf("engine: no price available for %s", sig.Symbol))
		return
	}
	quantity := decision.Sizing / price
	if quantity <= 0 || math.IsNaN(quantity) || math.IsInf(quantity, 0) {
		e.fail(ctx, sig, fmt.Errorf("engine: sizing %.6g at price %.6g yields unusable quantity", decision.Sizing, price))
		return
	}

	req := broker.OpenRequest{
		ClientOrderID: sig.SourceID,
		Symbol:        sig.Symbol,
		Side:          sig.Side,
		Quantity:      quantity,
		StopLoss:      sig.StopLoss,
	}
	if len(sig.TakeProfits) > 0 {
		req.TakeProfit = sig.TakeProfits[0]
	}

	var result *broker.OrderResult
	err = e.retryer.Do(ctx, func() error {
		var callErr error
		result, callErr = e.venue.OpenPosition(ctx, req)
		return callErr
	}, e.reconcileGuard(ctx, sig.Symbol, sig.SourceID))
	if err != nil {
		e.fail(ctx, sig, err)
		return
	}
	if result == nil || !result.Filled {
		e.fail(ctx, sig, fmt.Errorf("engine: venue %s did not fill entry %s", e.venue.Name(), sig.SourceID))
		return
	}

	fillPrice := result.FillPrice
	if fillPrice <= 0 {
		fillPrice = price
	}
	fillQty := result.FilledQuantity
	if fillQty <= 0 {
		fillQty = quantity
	}
	openedAt := result.ExecutedAt
	if openedAt.IsZero() {
		openedAt = e.now()
	}

	pos := signal.NewPosition(sig.Symbol, sig.Side, fillQty, fillPrice, openedAt)
	pos.StopLoss = sig.StopLoss
	pos.TakeProfits = append([]float64(nil), sig.TakeProfits...)
	pos.BrokerRef = result.OrderRef

	if err := e.store.CommitOpen(pos, e.riskCfg.MaxOpenPositions, e.now()); err != nil {
		if errors.Is(err, portfolio.ErrPositionLimit) {
			e.unwind(ctx, sig, pos, result)
			return
		}
		e.fail(ctx, sig, err)
		return
	}

	e.logger.Info(ctx, "position opened", Fields{
		"position_id": pos.ID,
		"symbol":      pos.Symbol,
		"side":        pos.Side,
		"quantity":    pos.OpenedSize,
		"fill_price":  pos.EntryPrice,
		"stop_loss":   pos.StopLoss,
	})
	e.finish(ctx, sig, journal.DispositionExecuted, "", pos, result)
}

// handleAlert notes an informational pre-entry mention. The confidence floor
// still applies; nothing is ever sent to the venue.
func (e *Engine) handleAlert(ctx context.Context, sig signal.Signal) {
	decision := risk.Evaluate(sig, e.store.View(e.now()), e.riskCfg)
	if !decision.Accepted {
		e.finish(ctx, sig, journal.DispositionRejected, string(decision.Reason), nil, nil)
		return
	}
	e.logger.Info(ctx, "entry alert noted, monitoring only", Fields{
		"source_id": sig.SourceID,
		"symbol":    sig.Symbol,
	})
	e.finish(ctx, sig, journal.DispositionIgnored, "informational alert", nil, nil)
}

// handlePositionOp executes a partial exit, stop move or close against the
// matched open position. Matching runs here, inside the symbol's worker, so
// the candidate set cannot change between match and commit.
func (e *Engine) handlePositionOp(ctx context.Context, sig signal.Signal) {
	view := e.store.View(e.now())
	decision := risk.Evaluate(sig, view, e.riskCfg)
	if !decision.Accepted {
		e.finish(ctx, sig, journal.DispositionRejected, string(decision.Reason), nil, nil)
		return
	}

	pos, candidates, err := Match(sig, view.Open)
	if err != nil {
		e.finish(ctx, sig, journal.DispositionRejected, "no_open_position", nil, nil)
		return
	}
	if candidates > 1 {
		e.logger.Warn(ctx, "ambiguous position match, using most recent", Fields{
			"source_id":  sig.SourceID,
			"symbol":     pos.Symbol,
			"candidates": candidates,
		})
	}

	switch sig.Kind {
	case signal.KindPartialExit:
		e.reducePosition(ctx, sig, pos, pos.RemainingSize*sig.PartialFraction)
	case signal.KindClose:
		e.reducePosition(ctx, sig, pos, pos.RemainingSize)
	case signal.KindStopMove:
		e.moveStop(ctx, sig, pos)
	}
}

// reducePosition sells quantity units out of pos and commits the fill. A
// full-size quantity closes the position.
func (e *Engine) reducePosition(ctx context.Context, sig signal.Signal, pos signal.Position, quantity float64) {
	if quantity <= 0 {
		e.fail(ctx, sig, fmt.Errorf("engine: reduce quantity %.6g for position %s", quantity, pos.ID))
		return
	}

	req := broker.CloseRequest{
		ClientOrderID: sig.SourceID,
		PositionRef:   pos.BrokerRef,
		Symbol:        pos.Symbol,
		Side:          pos.Side,
		Quantity:      quantity,
	}
	var result *broker.OrderResult
	err := e.retryer.Do(ctx, func() error {
		var callErr error
		result, callErr = e.venue.ClosePosition(ctx, req)
		return callErr
	}, e.reconcileGuard(ctx, pos.Symbol, sig.SourceID))
	if err != nil {
		e.fail(ctx, sig, err)
		return
	}
	if result == nil || !result.Filled {
		e.fail(ctx, sig, fmt.Errorf("engine: venue %s did not fill reduce %s", e.venue.Name(), sig.SourceID))
		return
	}

	fillQty := result.FilledQuantity
	if fillQty <= 0 {
		fillQty = quantity
	}
	updated, err := e.store.CommitReduce(pos.ID, fillQty, result.FillPrice, e.now())
	if err != nil {
		e.fail(ctx, sig, err)
		return
	}

	realized := updated.RealizedPnL - pos.RealizedPnL
	e.logger.Info(ctx, "position reduced", Fields{
		"position_id": updated.ID,
		"symbol":      updated.Symbol,
		"quantity":    fillQty,
		"fill_price":  result.FillPrice,
		"realized":    realized,
		"remaining":   updated.RemainingSize,
		"status":      updated.Status,
	})
	e.record(ctx, &journal.Record{
		SourceID:       sig.SourceID,
		Kind:           string(sig.Kind),
		Symbol:         updated.Symbol,
		Disposition:    journal.DispositionExecuted,
		PositionID:     updated.ID,
		OrderRef:       result.OrderRef,
		FillPrice:      result.FillPrice,
		FilledQuantity: fillQty,
		RealizedPnL:    realized,
	})
	e.store.MarkProcessed(sig.SourceID)
}

// moveStop repoints the protective stop. A signal with no explicit price is
// a breakeven request and targets the position's entry price. The resend
// guard refuses retries that may already be recorded: a stop modification
// cannot be looked up by client order id afterwards.
func (e *Engine) moveStop(ctx context.Context, sig signal.Signal, pos signal.Position) {
	newStop := sig.StopLoss
	if newStop <= 0 {
		newStop = pos.EntryPrice
	}

	req := broker.ModifyStopRequest{
		PositionRef: pos.BrokerRef,
		Symbol:      pos.Symbol,
		Side:        pos.Side,
		NewStop:     newStop,
	}
	err := e.retryer.Do(ctx, func() error {
		return e.venue.ModifyStop(ctx, req)
	}, func(callErr error) error {
		if !broker.WasSent(callErr) {
			return nil
		}
		return fmt.Errorf("engine: stop modification for %s may be recorded, refusing blind retry: %w", pos.ID, callErr)
	})
	if err != nil {
		e.fail(ctx, sig, err)
		return
	}

	updated, err := e.store.CommitStop(pos.ID, newStop)
	if err != nil {
		e.fail(ctx, sig, err)
		return
	}

	e.logger.Info(ctx, "stop moved", Fields{
		"position_id": updated.ID,
		"symbol":      updated.Symbol,
		"stop_loss":   updated.StopLoss,
	})
	e.record(ctx, &journal.Record{
		SourceID:    sig.SourceID,
		Kind:        string(sig.Kind),
		Symbol:      updated.Symbol,
		Disposition: journal.DispositionExecuted,
		PositionID:  updated.ID,
		Extra:       map[string]interface{}{"new_stop": newStop},
	})
	e.store.MarkProcessed(sig.SourceID)
}

// unwind closes a venue order whose local commit lost the position-cap race.
// The fill exists on the venue but not in the store, so it is closed right
// away and the outcome journaled as a post-hoc risk rejection.
func (e *Engine) unwind(ctx context.Context, sig signal.Signal, pos *signal.Position, result *broker.OrderResult) {
	req := broker.CloseRequest{
		ClientOrderID: sig.SourceID + ":unwind",
		PositionRef:   result.OrderRef,
		Symbol:        sig.Symbol,
		Side:          sig.Side,
		Quantity:      pos.OpenedSize,
	}
	err := e.retryer.Do(ctx, func() error {
		_, callErr := e.venue.ClosePosition(ctx, req)
		return callErr
	}, e.reconcileGuard(ctx, sig.Symbol, req.ClientOrderID))
	if err != nil {
		// The fill is live on the venue but absent from the store, and the
		// close could not remove it. Journal it as unreconciled so an
		// operator can flatten the stray position by hand.
		e.logger.Error(ctx, err, Fields{
			"source_id": sig.SourceID,
			"order_ref": result.OrderRef,
			"symbol":    sig.Symbol,
			"quantity":  pos.OpenedSize,
			"stage":     "unwind",
		})
		e.record(ctx, &journal.Record{
			SourceID:       sig.SourceID,
			Kind:           string(sig.Kind),
			Symbol:         sig.Symbol,
			Disposition:    journal.DispositionUnreconciled,
			Reason:         fmt.Sprintf("unwind close failed, venue fill untracked: %v", err),
			OrderRef:       result.OrderRef,
			FillPrice:      result.FillPrice,
			FilledQuantity: result.FilledQuantity,
		})
		e.store.MarkProcessed(sig.SourceID)
		if broker.IsAuth(err) {
			e.halt(err)
		}
		return
	}

	e.logger.Warn(ctx, "entry unwound, position cap consumed by concurrent commit", Fields{
		"source_id": sig.SourceID,
		"symbol":    sig.Symbol,
	})
	e.record(ctx, &journal.Record{
		SourceID:    sig.SourceID,
		Kind:        string(sig.Kind),
		Symbol:      sig.Symbol,
		Disposition: journal.DispositionRejected,
		Reason:      string(risk.ReasonMaxPositions),
		OrderRef:    result.OrderRef,
	})
	e.store.MarkProcessed(sig.SourceID)
}

// reconcileGuard returns the resend guard for a state-mutating venue call:
// a failure that may have reached the venue is retried only after
// OrderStatus confirms no record of the client order id exists.
func (e *Engine) reconcileGuard(ctx context.Context, symbol, clientOrderID string) func(error) error {
	return func(callErr error) error {
		if !broker.WasSent(callErr) {
			return nil
		}
		state, err := e.venue.OrderStatus(ctx, symbol, clientOrderID)
		if err != nil {
			return fmt.Errorf("engine: reconcile order %s: %w", clientOrderID, err)
		}
		switch state {
		case broker.OrderStateUnknown, broker.OrderStateRejected, broker.OrderStateCanceled:
			return nil
		}
		return fmt.Errorf("engine: order %s recorded as %s on venue, refusing blind retry: %w", clientOrderID, state, callErr)
	}
}

// refreshBalance pulls equity from the venue ahead of an entry. The call is
// opportunistic: on failure risk evaluation proceeds against the last known
// balance. Only a credential failure is surfaced.
func (e *Engine) refreshBalance(ctx context.Context) error {
	var balance float64
	err := e.retryer.Do(ctx, func() error {
		var callErr error
		balance, callErr = e.venue.GetBalance(ctx)
		return callErr
	}, nil)
	if err != nil {
		if broker.IsAuth(err) {
			return err
		}
		e.logger.Warn(ctx, "balance refresh failed, using last known equity", Fields{"error": err})
		return nil
	}
	e.store.SetBalance(balance, e.now())
	return nil
}

// entryPrice returns the live price for sizing, falling back to the price
// the signal quotes (explicit entry or zone midpoint) when the venue cannot
// supply one. Only a credential failure is surfaced.
func (e *Engine) entryPrice(ctx context.Context, sig signal.Signal) (float64, error) {
	var price float64
	err := e.retryer.Do(ctx, func() error {
		var callErr error
		price, callErr = e.venue.GetPrice(ctx, sig.Symbol)
		return callErr
	}, nil)
	if err == nil && price > 0 {
		return price, nil
	}
	if err != nil {
		if broker.IsAuth(err) {
			return 0, err
		}
		e.logger.Warn(ctx, "live price unavailable, falling back to quoted entry", Fields{
			"symbol": sig.Symbol,
			"error":  err,
		})
	}
	return sig.ReferenceEntry(), nil
}

// finish journals a terminal outcome and marks the source id processed.
func (e *Engine) finish(ctx context.Context, sig signal.Signal, disp journal.Disposition, reason string, pos *signal.Position, result *broker.OrderResult) {
	rec := &journal.Record{
		SourceID:    sig.SourceID,
		Kind:        string(sig.Kind),
		Symbol:      sig.Symbol,
		Disposition: disp,
		Reason:      reason,
	}
	if pos != nil {
		rec.PositionID = pos.ID
	}
	if result != nil {
		rec.OrderRef = result.OrderRef
		rec.FillPrice = result.FillPrice
		rec.FilledQuantity = result.FilledQuantity
	}
	e.record(ctx, rec)
	e.store.MarkProcessed(sig.SourceID)
}

// fail journals an execution failure. The id is normally marked processed,
// because the venue may have partially acted and redelivery must not blindly
// run the signal again. A credential failure instead halts the engine and
// leaves the id unprocessed so the next run, with working credentials, can
// execute the message.
func (e *Engine) fail(ctx context.Context, sig signal.Signal, err error) {
	e.logger.Error(ctx, err, Fields{
		"source_id": sig.SourceID,
		"kind":      sig.Kind,
		"symbol":    sig.Symbol,
	})
	e.record(ctx, &journal.Record{
		SourceID:    sig.SourceID,
		Kind:        string(sig.Kind),
		Symbol:      sig.Symbol,
		Disposition: journal.DispositionFailed,
		Reason:      err.Error(),
	})
	if broker.IsAuth(err) {
		e.halt(err)
		return
	}
	e.store.MarkProcessed(sig.SourceID)
}
