package strategy

import (
	"time"

	"dizzycode.xyz/strategy-engine/internal/domain/value_objects"
)

// State 策略實例的完整狀態
//
// State 是值：OnBar 與每個回調都接收一份 State 並返回更新後的 State，
// 引擎本身不保存持倉狀態。Pending / PendingAdd 指向的請求不會被修改。
type State struct {
	Side        Side    `json:"side"`
	Quantity    float64 `json:"quantity"`
	EntryPrice  float64 `json:"entryPrice"` // 所有單位的平均成本
	StopPrice   float64 `json:"stopPrice"`
	TargetPrice float64 `json:"targetPrice"`

	// Pending 尚未成交的開倉請求（只在 FLAT 時存在）
	Pending *OrderRequest `json:"pending,omitempty"`
	// CancelRequested 已對 Pending 發出 CANCEL_ENTRY，等待主機確認
	CancelRequested bool `json:"cancelRequested"`
	// PendingAdd 尚未成交的加倉請求
	PendingAdd *OrderRequest `json:"pendingAdd,omitempty"`

	PyramidLevels  int     `json:"pyramidLevels"`  // 已加倉次數（不含初始單位）
	ReferencePrice float64 `json:"referencePrice"` // 最近一個單位的開倉價

	// Closing 已發出 LIQUIDATE，等待平倉成交
	Closing bool `json:"closing"`
	// LastWasProfitable 上一筆交易獲利
	LastWasProfitable bool `json:"lastWasProfitable"`

	Bar int `json:"bar"` // 最近一次評估的K線序號
}

// NewState 初始狀態：FLAT、沒有掛單
func NewState() State {
	return State{Side: Flat, Bar: -1}
}

// IsFlat 是否空倉
func (s State) IsFlat() bool { return s.Side == Flat }

// HasPending 是否有未成交的開倉請求
func (s State) HasPending() bool { return s.Pending != nil }

// flatten 回到 FLAT：持倉、加倉計數、參考價全部歸零
func (s State) flatten() State {
	s.Side = Flat
	s.Quantity = 0
	s.EntryPrice = 0
	s.StopPrice = 0
	s.TargetPrice = 0
	s.PendingAdd = nil
	s.PyramidLevels = 0
	s.ReferencePrice = 0
	s.Closing = false
	return s
}

// Position 主機回報的當前持倉
type Position struct {
	Side       Side
	Qty        float64
	AvgPrice   float64
	PnLPercent float64 // 未實現盈虧百分比
}

// Account 主機提供的帳戶狀態（唯讀）
type Account struct {
	Balance         float64
	AvailableMargin float64
	FeeRate         float64
	Slippage        float64 // 市價單預估滑點（比例）
	Position        Position
}

// DefaultHistoryLimit 主機預設傳給策略的歷史K線數量
const DefaultHistoryLimit = 400

// Bar 一根已收盤的K線以及評估所需的上下文
type Bar struct {
	Index   int                    // 遞增的K線序號
	Candles []value_objects.Candle // 歷史K線（舊到新），最後一根為當前K線
	Account Account
	Time    time.Time
}

// Current 當前K線
func (b Bar) Current() (value_objects.Candle, bool) {
	if len(b.Candles) == 0 {
		return value_objects.Candle{}, false
	}
	return b.Candles[len(b.Candles)-1], true
}
