package metrics

import (
	"time"

	"dizzycode.xyz/strategy-engine/backtesting/simulator"
)

// BacktestResult 回測結果
type BacktestResult struct {
	InitialBalance float64 // 初始資金
	FinalBalance   float64 // 最終資金（可用餘額）
	TotalEquity    float64 // 總權益（餘額 + 未平倉成本 + 浮盈虧）

	// 倉位分析
	TotalOpenedUnits  int     // 總開倉單位數（含加倉）
	OpenPositionQty   float64 // 未平倉數量（幣）
	OpenPositionValue float64 // 未平倉成本（USDT）

	// 交易統計
	TotalProfitGross float64       // 已平倉總利潤（未扣手續費）
	TotalFeesPaid    float64       // 總手續費（開倉 + 平倉）
	UnrealizedPnL    float64       // 未實現盈虧（含預估平倉手續費）
	NetProfit        float64       // 淨利潤 = 總權益 - 初始資金
	TotalReturn      float64       // 總收益率 (%)
	ProfitFactor     float64       // 盈虧比（含未實現盈虧）
	WinRate          float64       // 勝率 (%)
	AvgHoldDuration  time.Duration // 平均持倉時長
	MaxDrawdown      float64       // 最大回撤 (%)

	TotalTrades   int     // 總交易次數（已平倉）
	WinningTrades int     // 盈利交易次數
	LosingTrades  int     // 虧損交易次數
	TotalProfit   float64 // 總盈利金額（已實現，已扣費）
	TotalLoss     float64 // 總虧損金額（已實現，已扣費）
}

// BalanceSnapshot 權益快照（用於計算最大回撤）
type BalanceSnapshot struct {
	Time    time.Time
	Balance float64
}

// MetricsCalculator 指標計算器
type MetricsCalculator struct {
	initialBalance   float64
	balanceSnapshots []BalanceSnapshot
}

// NewMetricsCalculator 創建指標計算器
func NewMetricsCalculator(initialBalance float64) *MetricsCalculator {
	return &MetricsCalculator{
		initialBalance:   initialBalance,
		balanceSnapshots: make([]BalanceSnapshot, 0),
	}
}

// RecordBalance 記錄權益快照
func (mc *MetricsCalculator) RecordBalance(timestamp time.Time, equity float64) {
	mc.balanceSnapshots = append(mc.balanceSnapshots, BalanceSnapshot{
		Time:    timestamp,
		Balance: equity,
	})
}

// Calculate 計算回測指標
//
// 參數：
//   - tracker: 倉位追蹤器（已平倉交易與未平倉持倉）
//   - finalBalance: 最終可用資金（不包含未平倉）
//   - lastPrice: 最後價格（用於計算未實現盈虧）
//   - feeRate: 手續費率（預估平倉手續費）
//   - openedUnits: 總開倉單位數
func (mc *MetricsCalculator) Calculate(
	tracker *simulator.PositionTracker,
	finalBalance float64,
	lastPrice float64,
	feeRate float64,
	openedUnits int,
) BacktestResult {
	trades := tracker.ClosedTrades()
	totalTrades := len(trades)

	unrealizedPnL := tracker.CalculateUnrealizedPnL(lastPrice, feeRate)
	openValue := tracker.CostBasis()
	totalEquity := finalBalance + openValue + unrealizedPnL
	netProfit := totalEquity - mc.initialBalance

	totalReturn := 0.0
	if mc.initialBalance > 0 {
		totalReturn = (netProfit / mc.initialBalance) * 100
	}

	winningTrades := 0
	losingTrades := 0
	totalProfitGross := 0.0
	totalFees := tracker.OpenFees()
	totalProfitRealized := 0.0
	totalLossRealized := 0.0

	for _, trade := range trades {
		totalProfitGross += trade.GrossPnL
		totalFees += trade.Fees
		if trade.RealizedPnL > 0 {
			winningTrades++
			totalProfitRealized += trade.RealizedPnL
		} else if trade.RealizedPnL < 0 {
			losingTrades++
			totalLossRealized += -trade.RealizedPnL
		}
	}

	winRate := 0.0
	if totalTrades > 0 {
		winRate = (float64(winningTrades) / float64(totalTrades)) * 100
	}

	// 盈虧比含未實現盈虧
	totalProfitWithUnrealized := totalProfitRealized
	totalLossWithUnrealized := totalLossRealized
	if unrealizedPnL > 0 {
		totalProfitWithUnrealized += unrealizedPnL
	} else if unrealizedPnL < 0 {
		totalLossWithUnrealized += -unrealizedPnL
	}

	profitFactor := 0.0
	if totalLossWithUnrealized > 0 {
		profitFactor = totalProfitWithUnrealized / totalLossWithUnrealized
	} else if totalProfitWithUnrealized > 0 {
		profitFactor = 999.99 // 無虧損
	}

	return BacktestResult{
		InitialBalance: mc.initialBalance,
		FinalBalance:   finalBalance,
		TotalEquity:    totalEquity,

		TotalOpenedUnits:  openedUnits,
		OpenPositionQty:   tracker.TotalQty(),
		OpenPositionValue: openValue,

		TotalProfitGross: totalProfitGross,
		TotalFeesPaid:    totalFees,
		UnrealizedPnL:    unrealizedPnL,
		NetProfit:        netProfit,
		TotalReturn:      totalReturn,
		ProfitFactor:     profitFactor,
		WinRate:          winRate,
		AvgHoldDuration:  tracker.GetAverageHoldDuration(),
		MaxDrawdown:      mc.calculateMaxDrawdown(),

		TotalTrades:   totalTrades,
		WinningTrades: winningTrades,
		LosingTrades:  losingTrades,
		TotalProfit:   totalProfitRealized,
		TotalLoss:     totalLossRealized,
	}
}

// calculateMaxDrawdown 計算最大回撤
//
// 最大回撤 = (歷史最高權益 - 之後的最低權益) / 歷史最高權益 * 100
func (mc *MetricsCalculator) calculateMaxDrawdown() float64 {
	if len(mc.balanceSnapshots) == 0 {
		return 0.0
	}

	maxDrawdown := 0.0
	peak := mc.balanceSnapshots[0].Balance

	for _, snapshot := range mc.balanceSnapshots {
		if snapshot.Balance > peak {
			peak = snapshot.Balance
		}
		if peak > 0 {
			drawdown := ((peak - snapshot.Balance) / peak) * 100
			if drawdown > maxDrawdown {
				maxDrawdown = drawdown
			}
		}
	}

	return maxDrawdown
}

// GetBalanceSnapshots 獲取權益快照列表（用於繪圖或調試）
func (mc *MetricsCalculator) GetBalanceSnapshots() []BalanceSnapshot {
	return mc.balanceSnapshots
}
