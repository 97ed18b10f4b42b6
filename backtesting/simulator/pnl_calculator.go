package simulator

import (
	"dizzycode.xyz/strategy-engine/internal/domain/strategy"
	"github.com/shopspring/decimal"
)

// PnLCalculator 盈虧計算器
//
// 所有價格變化率與盈虧金額都由這裡統一計算，內部使用 decimal 避免浮點誤差。
// 方向由 strategy.Side 決定：LONG 價格上漲獲利，SHORT 價格下跌獲利。
type PnLCalculator struct{}

// NewPnLCalculator 創建盈虧計算器實例
func NewPnLCalculator() *PnLCalculator {
	return &PnLCalculator{}
}

// CalculatePriceChangePercent 計算價格變化百分比
//
// 公式: (currentPrice - basePrice) / basePrice * 100
//
//	percent := calc.CalculatePriceChangePercent(2510, 2500)
//	// percent = 0.4
func (pc *PnLCalculator) CalculatePriceChangePercent(currentPrice, basePrice float64) float64 {
	if basePrice == 0 {
		return 0
	}
	currentPriceD := decimal.NewFromFloat(currentPrice)
	basePriceD := decimal.NewFromFloat(basePrice)
	return currentPriceD.Sub(basePriceD).Div(basePriceD).Mul(decimal.NewFromInt(100)).InexactFloat64()
}

// CalculatePnL 計算盈虧（未扣手續費）
//
// 參數:
//   - side: 持倉方向
//   - closePrice: 平倉價格（或當前價格）
//   - basePrice: 基準價格（平均成本）
//   - qty: 持倉數量（幣）
//
// 範例:
//
//	amount, percent := calc.CalculatePnL(strategy.Short, 2490, 2500, 0.08)
//	// amount = 0.8 USDT, percent = 0.4%
func (pc *PnLCalculator) CalculatePnL(side strategy.Side, closePrice, basePrice, qty float64) (pnlAmount, pnlPercent float64) {
	if basePrice == 0 {
		return 0, 0
	}
	sign := decimal.NewFromFloat(side.Sign())
	closePriceD := decimal.NewFromFloat(closePrice)
	basePriceD := decimal.NewFromFloat(basePrice)

	priceChangeD := closePriceD.Sub(basePriceD).Mul(sign)
	pnlPercentD := priceChangeD.Div(basePriceD).Mul(decimal.NewFromInt(100))
	pnlAmountD := priceChangeD.Mul(decimal.NewFromFloat(qty))

	return pnlAmountD.InexactFloat64(), pnlPercentD.InexactFloat64()
}

// AveragePrice 累進平均成本
//
// 新平均成本 = (原平均成本 × 原數量 + 新價格 × 新數量) / (原數量 + 新數量)
func (pc *PnLCalculator) AveragePrice(avgPrice, qty, price, addQty float64) float64 {
	total := decimal.NewFromFloat(qty).Add(decimal.NewFromFloat(addQty))
	if total.IsZero() {
		return 0
	}
	return decimal.NewFromFloat(avgPrice).Mul(decimal.NewFromFloat(qty)).
		Add(decimal.NewFromFloat(price).Mul(decimal.NewFromFloat(addQty))).
		Div(total).
		InexactFloat64()
}
