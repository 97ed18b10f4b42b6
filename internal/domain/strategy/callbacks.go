package strategy

import (
	"fmt"

	"github.com/shopspring/decimal"
)

func (e *Engine) rejectTransition(callback string, state State, detail string) error {
	e.logger.Warn("Invalid transition rejected", map[string]any{
		"strategy": e.desc.Name,
		"callback": callback,
		"side":     string(state.Side),
		"detail":   detail,
	})
	return fmt.Errorf("%s: %s: %w", callback, detail, ErrInvalidTransition)
}

func validFill(fill Fill) bool {
	return fill.Price > 0 && fill.Qty > 0 && finite(fill.Price, fill.Qty)
}

// OnEntryFilled 開倉或加倉請求成交
//
// ENTRY 成交：FLAT → LONG/SHORT，參考價設為成交價，加倉計數歸零。
// ADD_UNIT 成交：加倉計數 +1，參考價移到成交價，並返回整體倉位的 REPLACE_STOP。
func (e *Engine) OnEntryFilled(state State, fill Fill) (State, []OrderRequest, error) {
	if !validFill(fill) {
		return state, nil, e.rejectTransition("OnEntryFilled", state, fmt.Sprintf("invalid fill %+v", fill))
	}

	switch {
	case state.Pending != nil && state.Pending.ID == fill.OrderID && state.IsFlat():
		req := *state.Pending
		next := state
		next.Side = req.Side
		next.Quantity = fill.Qty
		next.EntryPrice = fill.Price
		next.StopPrice = req.Stop
		next.TargetPrice = req.Target
		next.Pending = nil
		next.CancelRequested = false
		next.PendingAdd = nil
		next.PyramidLevels = 0
		next.ReferencePrice = fill.Price
		next.Closing = false

		e.logger.Info("Entry filled", map[string]any{
			"strategy": e.desc.Name,
			"side":     string(next.Side),
			"qty":      fill.Qty,
			"price":    fill.Price,
			"stop":     next.StopPrice,
		})
		return next, nil, nil

	case state.PendingAdd != nil && state.PendingAdd.ID == fill.OrderID && !state.IsFlat():
		req := *state.PendingAdd
		next := state

		oldQty := decimal.NewFromFloat(state.Quantity)
		addQty := decimal.NewFromFloat(fill.Qty)
		total := oldQty.Add(addQty)
		avg := decimal.NewFromFloat(state.EntryPrice).Mul(oldQty).
			Add(decimal.NewFromFloat(fill.Price).Mul(addQty)).
			Div(total)

		multiplier := 0.0
		if e.desc.Pyramid != nil {
			multiplier = e.desc.Pyramid.StopMultiplier(e.params)
		}
		stop := fill.Price - state.Side.Sign()*multiplier*req.Volatility

		next.Quantity = total.InexactFloat64()
		next.EntryPrice = avg.InexactFloat64()
		next.PendingAdd = nil
		next.PyramidLevels++
		next.ReferencePrice = fill.Price
		next.StopPrice = stop

		e.logger.Info("Pyramid unit filled", map[string]any{
			"strategy": e.desc.Name,
			"level":    next.PyramidLevels,
			"price":    fill.Price,
			"quantity": next.Quantity,
			"stop":     stop,
		})

		replace := OrderRequest{
			ID:     newRequestID(),
			Kind:   KindReplaceStop,
			Side:   next.Side,
			Type:   Market,
			Qty:    next.Quantity,
			Price:  stop,
			Stop:   stop,
			Bar:    state.Bar,
			Reason: "pyramid stop",
		}
		return next, []OrderRequest{replace}, nil
	}

	return state, nil, e.rejectTransition("OnEntryFilled", state, "no pending request "+fill.OrderID)
}

// clearPending 清除匹配的開倉或加倉請求
func clearPending(state State, orderID string) (State, bool) {
	switch {
	case state.Pending != nil && state.Pending.ID == orderID:
		state.Pending = nil
		state.CancelRequested = false
		return state, true
	case state.PendingAdd != nil && state.PendingAdd.ID == orderID:
		state.PendingAdd = nil
		return state, true
	}
	return state, false
}

// OnEntryCancelled 主機確認取消開倉或加倉請求
func (e *Engine) OnEntryCancelled(state State, orderID string) (State, error) {
	next, ok := clearPending(state, orderID)
	if !ok {
		return state, e.rejectTransition("OnEntryCancelled", state, "no pending request "+orderID)
	}
	e.logger.Info("Entry cancelled", "strategy", e.desc.Name, "order", orderID)
	return next, nil
}

// OnEntryRejected 主機拒絕開倉或加倉請求，不自動重試
func (e *Engine) OnEntryRejected(state State, rejection *HostRejection) (State, error) {
	if rejection == nil {
		return state, e.rejectTransition("OnEntryRejected", state, "nil rejection")
	}
	next, ok := clearPending(state, rejection.OrderID)
	if !ok {
		return state, e.rejectTransition("OnEntryRejected", state, "no pending request "+rejection.OrderID)
	}
	e.logger.Warn("Entry rejected by host", map[string]any{
		"strategy": e.desc.Name,
		"order":    rejection.OrderID,
		"reason":   rejection.Reason,
	})
	return next, nil
}

// exit 持倉 → FLAT 的共同處理
func (e *Engine) exit(callback string, state State, fill Fill, profitable func(pnl float64) bool) (State, error) {
	if state.IsFlat() {
		return state, e.rejectTransition(callback, state, "no open position")
	}
	if fill.Price <= 0 || !finite(fill.Price) {
		return state, e.rejectTransition(callback, state, fmt.Sprintf("invalid exit price %v", fill.Price))
	}

	pnl := (fill.Price - state.EntryPrice) * state.Side.Sign() * state.Quantity
	next := state.flatten()
	next.LastWasProfitable = profitable(pnl)

	e.logger.Info("Position closed", map[string]any{
		"strategy": e.desc.Name,
		"callback": callback,
		"side":     string(state.Side),
		"entry":    state.EntryPrice,
		"exit":     fill.Price,
		"pnl":      pnl,
	})
	return next, nil
}

// OnLiquidated 平倉成交
func (e *Engine) OnLiquidated(state State, fill Fill) (State, error) {
	return e.exit("OnLiquidated", state, fill, func(pnl float64) bool { return pnl > 0 })
}

// OnStopFilled 止損成交
func (e *Engine) OnStopFilled(state State, fill Fill) (State, error) {
	return e.exit("OnStopFilled", state, fill, func(float64) bool { return false })
}

// OnTargetFilled 止盈成交
func (e *Engine) OnTargetFilled(state State, fill Fill) (State, error) {
	return e.exit("OnTargetFilled", state, fill, func(float64) bool { return true })
}
