package application

import (
	"fmt"

	"dizzycode.xyz/strategy-engine/internal/domain/strategy"
)

// OrderEventType 主機（下單服務）回報的事件類型
type OrderEventType string

const (
	EventEntryFilled    OrderEventType = "ENTRY_FILLED"
	EventEntryCancelled OrderEventType = "ENTRY_CANCELLED"
	EventEntryRejected  OrderEventType = "ENTRY_REJECTED"
	EventLiquidated     OrderEventType = "LIQUIDATED"
	EventStopFilled     OrderEventType = "STOP_FILLED"
	EventTargetFilled   OrderEventType = "TARGET_FILLED"
)

// OrderEvent 訂單執行結果
//
// ENTRY_* 事件以 OrderID 對應之前發出的 ENTRY / ADD_UNIT 請求；
// 平倉類事件只需要成交價。
type OrderEvent struct {
	Type    OrderEventType `json:"type"`
	OrderID string         `json:"orderId"`
	Price   float64        `json:"price"`
	Qty     float64        `json:"qty"`
	Reason  string         `json:"reason,omitempty"`
}

// Validate 檢查事件類型和必要欄位
func (e OrderEvent) Validate() error {
	switch e.Type {
	case EventEntryFilled, EventEntryCancelled, EventEntryRejected:
		if e.OrderID == "" {
			return fmt.Errorf("%s event requires orderId", e.Type)
		}
	case EventLiquidated, EventStopFilled, EventTargetFilled:
	default:
		return fmt.Errorf("unknown order event type %q", e.Type)
	}
	return nil
}

func (e OrderEvent) fill() strategy.Fill {
	return strategy.Fill{OrderID: e.OrderID, Price: e.Price, Qty: e.Qty}
}
