package messaging

import (
	"encoding/json"
	"fmt"
	"time"

	"dizzycode.xyz/strategy-engine/internal/domain/strategy"
)

// OrderMessage 發布到 Redis / RabbitMQ 的訂單請求
type OrderMessage struct {
	InstID    string `json:"instId"`
	Timestamp int64  `json:"ts"` // milliseconds
	strategy.OrderRequest
}

// NewOrderMessage 包裝訂單請求
func NewOrderMessage(instID string, req strategy.OrderRequest, now time.Time) OrderMessage {
	return OrderMessage{
		InstID:       instID,
		Timestamp:    now.UnixMilli(),
		OrderRequest: req,
	}
}

// MarshalOrderMessage 序列化訂單請求
func MarshalOrderMessage(instID string, req strategy.OrderRequest, now time.Time) ([]byte, error) {
	data, err := json.Marshal(NewOrderMessage(instID, req, now))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal order request: %w", err)
	}
	return data, nil
}
