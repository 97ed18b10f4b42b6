package simulator

import (
	"errors"
	"fmt"

	"dizzycode.xyz/strategy-engine/internal/domain/strategy"
	"dizzycode.xyz/strategy-engine/internal/domain/value_objects"
	"github.com/shopspring/decimal"
)

// ExitKind 保護單類型
type ExitKind string

const (
	ExitNone   ExitKind = ""
	ExitStop   ExitKind = "STOP"
	ExitTarget ExitKind = "TARGET"
)

// ErrInsufficientBalance 餘額不足以支付開倉成本
var ErrInsufficientBalance = errors.New("insufficient balance")

// Execution 一筆模擬成交
type Execution struct {
	Price    float64 // 成交價（含滑點）
	Qty      float64 // 成交數量（幣）
	Notional float64 // 成交金額 = Price × Qty
	Fee      float64 // 手續費 = Notional × feeRate
}

// OrderSimulator 成交模擬器
type OrderSimulator struct {
	feeRate  float64 // OKX taker 手續費: 0.05% (0.0005)
	slippage float64 // 滑點比例（0.001 = 0.1%）
}

// NewOrderSimulator 創建成交模擬器
func NewOrderSimulator(feeRate, slippage float64) *OrderSimulator {
	return &OrderSimulator{
		feeRate:  feeRate,
		slippage: slippage,
	}
}

// FeeRate 手續費率
func (s *OrderSimulator) FeeRate() float64 {
	return s.feeRate
}

// execution 依價格與數量計算成交金額與手續費
func (s *OrderSimulator) execution(price, qty float64) Execution {
	priceD := decimal.NewFromFloat(price)
	notional := priceD.Mul(decimal.NewFromFloat(qty))
	fee := notional.Mul(decimal.NewFromFloat(s.feeRate))
	return Execution{
		Price:    price,
		Qty:      qty,
		Notional: notional.InexactFloat64(),
		Fee:      fee.InexactFloat64(),
	}
}

// slip 滑點永遠對成交方不利
//
// 買入（開多、平空）價格向上，賣出（開空、平多）價格向下。
func (s *OrderSimulator) slip(price float64, buying bool) float64 {
	if s.slippage == 0 {
		return price
	}
	factor := decimal.NewFromFloat(1).Add(decimal.NewFromFloat(s.slippage))
	if !buying {
		factor = decimal.NewFromFloat(1).Sub(decimal.NewFromFloat(s.slippage))
	}
	return decimal.NewFromFloat(price).Mul(factor).InexactFloat64()
}

// SimulateOpen 模擬開倉或加倉
//
// 市價單以當根收盤價成交（含滑點）；限價單只在K線觸及限價時以限價成交。
// 返回 ok=false 表示限價單本根未成交。
// 成本（成交金額 + 手續費）超過 balance 時返回 ErrInsufficientBalance。
func (s *OrderSimulator) SimulateOpen(req strategy.OrderRequest, candle value_objects.Candle, balance float64) (Execution, bool, error) {
	if req.Qty <= 0 {
		return Execution{}, false, fmt.Errorf("invalid quantity %v", req.Qty)
	}

	var price float64
	switch req.Type {
	case strategy.Limit:
		if !candle.Touches(req.Price) {
			return Execution{}, false, nil
		}
		price = req.Price
	default:
		price = s.slip(candle.Close().Value(), req.Side == strategy.Long)
	}

	exec := s.execution(price, req.Qty)
	if cost := exec.Notional + exec.Fee; cost > balance {
		return Execution{}, false, fmt.Errorf(
			"%w: need %.2f USDT (notional: %.2f + fee: %.2f), have %.2f USDT",
			ErrInsufficientBalance, cost, exec.Notional, exec.Fee, balance,
		)
	}
	return exec, true, nil
}

// SimulateClose 以指定價格平倉（LIQUIDATE 使用收盤價並套用滑點）
func (s *OrderSimulator) SimulateClose(side strategy.Side, price, qty float64, applySlippage bool) (Execution, error) {
	if price <= 0 {
		return Execution{}, errors.New("close price must be positive")
	}
	if qty <= 0 {
		return Execution{}, errors.New("close quantity must be positive")
	}
	if applySlippage {
		price = s.slip(price, side == strategy.Short)
	}
	return s.execution(price, qty), nil
}

// CheckProtective 檢查K線是否觸及止損或止盈
//
// 同一根K線同時觸及兩者時視為止損先成交。
// stop / target 為 0 表示沒有設置。
func (s *OrderSimulator) CheckProtective(side strategy.Side, stop, target float64, candle value_objects.Candle) (ExitKind, float64) {
	high := candle.High().Value()
	low := candle.Low().Value()

	var stopHit, targetHit bool
	switch side {
	case strategy.Long:
		stopHit = stop > 0 && low <= stop
		targetHit = target > 0 && high >= target
	case strategy.Short:
		stopHit = stop > 0 && high >= stop
		targetHit = target > 0 && low <= target
	default:
		return ExitNone, 0
	}

	switch {
	case stopHit:
		return ExitStop, gapPrice(side, stop, candle.Open().Value())
	case targetHit:
		return ExitTarget, target
	}
	return ExitNone, 0
}

// gapPrice 開盤跳空越過止損時以開盤價成交
func gapPrice(side strategy.Side, level, open float64) float64 {
	if side == strategy.Long && open < level {
		return open
	}
	if side == strategy.Short && open > level {
		return open
	}
	return level
}
