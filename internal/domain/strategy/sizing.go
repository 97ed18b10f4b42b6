package strategy

import (
	"math"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

func finite(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// positive 檢查數量 > 0 並轉回 float64
func positive(qty decimal.Decimal, reason string) (float64, error) {
	q := qty.InexactFloat64()
	if !qty.IsPositive() {
		return q, &SizingError{Qty: q, Reason: reason}
	}
	return q, nil
}

// RiskToQty 風險標準化倉位：止損觸發時剛好虧損 riskPercent% 的資金
//
//	qty = (riskPercent / 100 × balance) / |entry − stop|
func RiskToQty(balance, riskPercent, entry, stop float64) (float64, error) {
	if !finite(balance, riskPercent, entry, stop) {
		return 0, &SizingError{Reason: "non-finite input"}
	}
	if entry <= 0 || stop <= 0 {
		return 0, &SizingError{Reason: "entry and stop must be positive"}
	}

	distance := decimal.NewFromFloat(entry).Sub(decimal.NewFromFloat(stop)).Abs()
	if distance.IsZero() {
		return 0, &SizingError{Reason: "entry equals stop"}
	}

	risk := decimal.NewFromFloat(riskPercent).Div(hundred).Mul(decimal.NewFromFloat(balance))
	return positive(risk.Div(distance), "risk-normalized quantity must be > 0")
}

// SizeToQty 全額配置倉位：扣除來回手續費後用盡餘額
//
//	qty = balance / (price × (1 + 2 × feeRate))
//
// precision >= 0 時向下取整到 precision 位小數。
func SizeToQty(balance, price, feeRate float64, precision int) (float64, error) {
	if !finite(balance, price, feeRate) {
		return 0, &SizingError{Reason: "non-finite input"}
	}
	if price <= 0 {
		return 0, &SizingError{Reason: "price must be positive"}
	}
	if feeRate < 0 {
		return 0, &SizingError{Reason: "fee rate must be >= 0"}
	}

	fee := decimal.NewFromFloat(feeRate).Mul(decimal.NewFromInt(2))
	unitCost := decimal.NewFromFloat(price).Mul(decimal.NewFromInt(1).Add(fee))
	qty := decimal.NewFromFloat(balance).Div(unitCost)
	if precision >= 0 {
		qty = qty.RoundFloor(int32(precision))
	}
	return positive(qty, "full-allocation quantity must be > 0")
}

// VolatilityUnit 波動單位（海龜 Unit）
//
//	qty = (riskPercent / 100 × balance) / (volatility × dollarsPerPoint)
func VolatilityUnit(balance, riskPercent, volatility, dollarsPerPoint float64) (float64, error) {
	if !finite(balance, riskPercent, volatility, dollarsPerPoint) {
		return 0, &SizingError{Reason: "non-finite input"}
	}
	if volatility <= 0 || dollarsPerPoint <= 0 {
		return 0, &SizingError{Reason: "volatility and dollars per point must be positive"}
	}

	risk := decimal.NewFromFloat(riskPercent).Div(hundred).Mul(decimal.NewFromFloat(balance))
	per := decimal.NewFromFloat(volatility).Mul(decimal.NewFromFloat(dollarsPerPoint))
	return positive(risk.Div(per), "volatility unit must be > 0")
}

// CheckMargin 名目價值不得超過可用保證金
func CheckMargin(qty, price, availableMargin float64) error {
	if !finite(qty, price, availableMargin) {
		return &SizingError{Qty: qty, Reason: "non-finite input"}
	}
	if qty <= 0 {
		return &SizingError{Qty: qty, Reason: "quantity must be > 0"}
	}
	notional := decimal.NewFromFloat(qty).Mul(decimal.NewFromFloat(price))
	if notional.GreaterThan(decimal.NewFromFloat(availableMargin)) {
		return &SizingError{Qty: qty, Reason: "notional " + notional.StringFixed(2) + " exceeds available margin"}
	}
	return nil
}

// Number 從參數取值的數字（常數或參數）
type Number func(Params) float64

// Const 固定值
func Const(v float64) Number {
	return func(Params) float64 { return v }
}

// Param 參數值
func Param(name string) Number {
	return func(p Params) float64 { return p.Float(name) }
}

// SizingRule 根據開倉計劃計算數量
type SizingRule func(ctx *Context, plan EntryPlan) (float64, error)

// VolatilityFunc 計算波動度（通常是 ATR）
type VolatilityFunc func(ctx *Context) (float64, error)

// RiskNormalized 風險標準化 sizing，計劃必須帶止損
func RiskNormalized(riskPercent Number) SizingRule {
	return func(ctx *Context, plan EntryPlan) (float64, error) {
		if plan.Stop <= 0 {
			return 0, &SizingError{Reason: "risk-normalized sizing requires a protective stop"}
		}
		return RiskToQty(ctx.Account().Balance, riskPercent(ctx.Params()), plan.Price, plan.Stop)
	}
}

// FullAllocation 全額配置 sizing，precision < 0 表示不取整
// 市價計劃以加上帳戶滑點後的價格計算，成交價偏移時仍在餘額之內。
func FullAllocation(precision int) SizingRule {
	return func(ctx *Context, plan EntryPlan) (float64, error) {
		acct := ctx.Account()
		price := plan.Price
		if plan.Type != Limit && acct.Slippage > 0 {
			price = decimal.NewFromFloat(price).
				Mul(decimal.NewFromInt(1).Add(decimal.NewFromFloat(acct.Slippage))).
				InexactFloat64()
		}
		return SizeToQty(acct.Balance, price, acct.FeeRate, precision)
	}
}

// VolatilityUnits 波動單位 sizing
func VolatilityUnits(riskPercent Number, volatility VolatilityFunc, dollarsPerPoint float64) SizingRule {
	return func(ctx *Context, plan EntryPlan) (float64, error) {
		vol, err := volatility(ctx)
		if err != nil {
			return 0, err
		}
		return VolatilityUnit(ctx.Account().Balance, riskPercent(ctx.Params()), vol, dollarsPerPoint)
	}
}
