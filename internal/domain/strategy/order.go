package strategy

import (
	"fmt"

	"github.com/google/uuid"
)

// Side 持倉方向
type Side string

const (
	Flat  Side = "FLAT"
	Long  Side = "LONG"
	Short Side = "SHORT"
)

// Sign LONG = 1，SHORT = -1，FLAT = 0
func (s Side) Sign() float64 {
	switch s {
	case Long:
		return 1
	case Short:
		return -1
	default:
		return 0
	}
}

// Opposite 反方向
func (s Side) Opposite() Side {
	switch s {
	case Long:
		return Short
	case Short:
		return Long
	default:
		return Flat
	}
}

// OrderKind 訂單請求類型
type OrderKind string

const (
	KindEntry       OrderKind = "ENTRY"
	KindAddUnit     OrderKind = "ADD_UNIT"
	KindCancelEntry OrderKind = "CANCEL_ENTRY"
	KindLiquidate   OrderKind = "LIQUIDATE"
	KindReplaceStop OrderKind = "REPLACE_STOP"
)

// OrderType 市價或限價
type OrderType string

const (
	Market OrderType = "MARKET"
	Limit  OrderType = "LIMIT"
)

// OrderRequest 引擎發給主機的訂單請求
//
// 主機執行後透過回調（OnEntryFilled 等）把結果送回引擎。
// 請求本身不可變，State 裡保存的是副本。
type OrderRequest struct {
	ID     string    `json:"id"`
	Kind   OrderKind `json:"kind"`
	Side   Side      `json:"side"`
	Type   OrderType `json:"type"`
	Qty    float64   `json:"qty"`
	Price  float64   `json:"price"`            // 限價或參考價；LIQUIDATE 為當根收盤價
	Stop   float64   `json:"stop,omitempty"`   // 保護性止損價
	Target float64   `json:"target,omitempty"` // 止盈價，0 表示沒有
	Bar    int       `json:"bar"`              // 發出請求的K線序號

	// TargetID CANCEL_ENTRY 要取消的請求
	TargetID string `json:"targetId,omitempty"`
	// Volatility ADD_UNIT 發出時的波動度，成交後用來計算新的整體止損
	Volatility float64 `json:"volatility,omitempty"`
	Reason     string  `json:"reason,omitempty"`
}

func newRequestID() string {
	return uuid.NewString()
}

func (o OrderRequest) String() string {
	return fmt.Sprintf("%s %s %s qty=%.6f price=%.4f stop=%.4f target=%.4f",
		o.Kind, o.Side, o.Type, o.Qty, o.Price, o.Stop, o.Target)
}

// Fill 主機回報的成交
type Fill struct {
	OrderID string
	Price   float64
	Qty     float64
}
