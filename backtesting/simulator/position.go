package simulator

import (
	"errors"
	"fmt"
	"time"

	"dizzycode.xyz/strategy-engine/internal/domain/strategy"
	"github.com/shopspring/decimal"
)

// ErrNoOpenPosition 沒有持倉
var ErrNoOpenPosition = errors.New("no open position")

// Unit 一筆開倉或加倉
type Unit struct {
	ID         string
	Side       strategy.Side
	EntryPrice float64
	Qty        float64
	Fee        float64 // 開倉手續費
	OpenTime   time.Time
}

// ClosedTrade 一輪完整交易（首次開倉到全部平倉）
type ClosedTrade struct {
	PositionID   string
	Side         strategy.Side
	Units        int
	AvgPrice     float64 // 所有單位的平均成本
	ClosePrice   float64
	Qty          float64
	OpenTime     time.Time
	CloseTime    time.Time
	GrossPnL     float64 // 未扣手續費
	PnLPercent   float64 // 相對平均成本
	Fees         float64 // 開倉 + 平倉手續費
	RealizedPnL  float64 // 扣除所有手續費
	HoldDuration time.Duration
	Reason       string
}

// PositionTracker 倉位追蹤器
//
// 同一時間只追蹤一個方向的持倉，加倉時累進計算平均成本。
type PositionTracker struct {
	units      []Unit
	closed     []ClosedTrade
	nextID     int
	positionID string
	side       strategy.Side
	avgCost    float64 // 累進的平均成本
	totalQty   float64 // 總持倉幣數
	pnl        *PnLCalculator
}

// NewPositionTracker 創建倉位追蹤器
func NewPositionTracker() *PositionTracker {
	return &PositionTracker{
		units:  make([]Unit, 0),
		closed: make([]ClosedTrade, 0),
		nextID: 1,
		side:   strategy.Flat,
		pnl:    NewPnLCalculator(),
	}
}

// Open 開倉或加倉
func (pt *PositionTracker) Open(side strategy.Side, exec Execution, openTime time.Time) (Unit, error) {
	if side != strategy.Long && side != strategy.Short {
		return Unit{}, fmt.Errorf("invalid side %q", side)
	}
	if pt.IsOpen() && pt.side != side {
		return Unit{}, fmt.Errorf("cannot add %s unit to %s position", side, pt.side)
	}

	if !pt.IsOpen() {
		pt.positionID = fmt.Sprintf("pos_%d", pt.nextID)
		pt.nextID++
		pt.side = side
	}

	pt.avgCost = pt.pnl.AveragePrice(pt.avgCost, pt.totalQty, exec.Price, exec.Qty)
	pt.totalQty = decimal.NewFromFloat(pt.totalQty).Add(decimal.NewFromFloat(exec.Qty)).InexactFloat64()

	unit := Unit{
		ID:         fmt.Sprintf("%s_%d", pt.positionID, len(pt.units)+1),
		Side:       side,
		EntryPrice: exec.Price,
		Qty:        exec.Qty,
		Fee:        exec.Fee,
		OpenTime:   openTime,
	}
	pt.units = append(pt.units, unit)
	return unit, nil
}

// Close 全部平倉
func (pt *PositionTracker) Close(exec Execution, closeTime time.Time, reason string) (ClosedTrade, error) {
	if !pt.IsOpen() {
		return ClosedTrade{}, ErrNoOpenPosition
	}

	gross, percent := pt.pnl.CalculatePnL(pt.side, exec.Price, pt.avgCost, pt.totalQty)
	fees := pt.OpenFees() + exec.Fee

	trade := ClosedTrade{
		PositionID:   pt.positionID,
		Side:         pt.side,
		Units:        len(pt.units),
		AvgPrice:     pt.avgCost,
		ClosePrice:   exec.Price,
		Qty:          pt.totalQty,
		OpenTime:     pt.units[0].OpenTime,
		CloseTime:    closeTime,
		GrossPnL:     gross,
		PnLPercent:   percent,
		Fees:         fees,
		RealizedPnL:  gross - fees,
		HoldDuration: closeTime.Sub(pt.units[0].OpenTime),
		Reason:       reason,
	}
	pt.closed = append(pt.closed, trade)

	pt.units = make([]Unit, 0)
	pt.side = strategy.Flat
	pt.avgCost = 0
	pt.totalQty = 0
	pt.positionID = ""

	return trade, nil
}

// IsOpen 是否有持倉
func (pt *PositionTracker) IsOpen() bool {
	return len(pt.units) > 0
}

// Side 持倉方向
func (pt *PositionTracker) Side() strategy.Side {
	return pt.side
}

// Units 當前持倉的所有單位
func (pt *PositionTracker) Units() []Unit {
	return pt.units
}

// ClosedTrades 所有已平倉交易
func (pt *PositionTracker) ClosedTrades() []ClosedTrade {
	return pt.closed
}

// AverageCost 平均成本
func (pt *PositionTracker) AverageCost() float64 {
	return pt.avgCost
}

// TotalQty 總持倉幣數
func (pt *PositionTracker) TotalQty() float64 {
	return pt.totalQty
}

// OpenFees 當前持倉已支付的開倉手續費
func (pt *PositionTracker) OpenFees() float64 {
	total := 0.0
	for _, u := range pt.units {
		total += u.Fee
	}
	return total
}

// CostBasis 開倉時投入的 USDT 總和
func (pt *PositionTracker) CostBasis() float64 {
	total := decimal.Zero
	for _, u := range pt.units {
		total = total.Add(decimal.NewFromFloat(u.EntryPrice).Mul(decimal.NewFromFloat(u.Qty)))
	}
	return total.InexactFloat64()
}

// CalculateUnrealizedPnL 計算未實現盈虧（含預估平倉手續費）
//
// 開倉手續費已在開倉時從餘額中扣除，這裡只扣預估的平倉費。
func (pt *PositionTracker) CalculateUnrealizedPnL(currentPrice, feeRate float64) float64 {
	if !pt.IsOpen() {
		return 0
	}
	gross, _ := pt.pnl.CalculatePnL(pt.side, currentPrice, pt.avgCost, pt.totalQty)
	closeFee := currentPrice * pt.totalQty * feeRate
	return gross - closeFee
}

// GetAverageHoldDuration 獲取平均持倉時長
func (pt *PositionTracker) GetAverageHoldDuration() time.Duration {
	if len(pt.closed) == 0 {
		return 0
	}
	total := time.Duration(0)
	for _, c := range pt.closed {
		total += c.HoldDuration
	}
	return total / time.Duration(len(pt.closed))
}
