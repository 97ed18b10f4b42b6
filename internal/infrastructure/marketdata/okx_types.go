package marketdata

import (
	"encoding/json"
	"fmt"

	"dizzycode.xyz/strategy-engine/backtesting/loader"
	"dizzycode.xyz/strategy-engine/internal/domain/value_objects"
)

// BusinessWSURL OKX K線頻道所在的 WebSocket 端點
const BusinessWSURL = "wss://ws.okx.com:8443/ws/v5/business"

// SubscribeRequest WebSocket 訂閱請求
type SubscribeRequest struct {
	Op   string       `json:"op"`
	Args []ChannelArg `json:"args"`
}

// ChannelArg 頻道參數
type ChannelArg struct {
	Channel string `json:"channel"`
	InstID  string `json:"instId"`
}

// wsMessage WebSocket 推送
// 數據格式為數組: [ts, open, high, low, close, vol, volCcy, volCcyQuote, confirm]
type wsMessage struct {
	Event string      `json:"event,omitempty"` // subscribe, error
	Code  string      `json:"code,omitempty"`
	Msg   string      `json:"msg,omitempty"`
	Arg   *ChannelArg `json:"arg,omitempty"`
	Data  [][]string  `json:"data,omitempty"`
}

// CandleChannel OKX K線頻道名稱，例如 candle1H
func CandleChannel(bar string) string {
	return "candle" + bar
}

// NewCandleSubscribeRequest 創建K線訂閱請求
func NewCandleSubscribeRequest(instID, bar string) SubscribeRequest {
	return SubscribeRequest{
		Op:   "subscribe",
		Args: []ChannelArg{{Channel: CandleChannel(bar), InstID: instID}},
	}
}

// ParseCandleMessage 解析一則推送，只返回已收盤（confirm=1）的K線
//
// 事件訊息（subscribe）返回空切片；error 事件返回錯誤。
func ParseCandleMessage(data []byte) ([]value_objects.Candle, error) {
	var msg wsMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}

	if msg.Event == "error" {
		return nil, fmt.Errorf("okx error %s: %s", msg.Code, msg.Msg)
	}
	if msg.Event != "" || len(msg.Data) == 0 {
		return nil, nil
	}

	candles := make([]value_objects.Candle, 0, len(msg.Data))
	for i, row := range msg.Data {
		if len(row) < 9 {
			return nil, fmt.Errorf("invalid candle data length at index %d: %d", i, len(row))
		}
		if row[8] != "1" {
			continue
		}

		candle, err := loader.ParseRow(row)
		if err != nil {
			return nil, fmt.Errorf("candle at index %d: %w", i, err)
		}
		candles = append(candles, candle)
	}
	return candles, nil
}
