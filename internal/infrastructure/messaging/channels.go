package messaging

import "fmt"

// Redis channel / key 格式
const (
	channelCandle      = "market.candle.%s.%s" // bar, instId
	channelOrderEvents = "order.events.%s"     // instId
	channelOrders      = "strategy.orders.%s"  // instId
	keyCandleHistory   = "candle.history.%s.%s"
	keyAccountState    = "account.state.%s"
)

// CandleChannel market.candle.{bar}.{instId}
func CandleChannel(bar, instID string) string { return fmt.Sprintf(channelCandle, bar, instID) }

// OrderEventChannel order.events.{instId}
func OrderEventChannel(instID string) string { return fmt.Sprintf(channelOrderEvents, instID) }

// OrderChannel strategy.orders.{instId}
func OrderChannel(instID string) string { return fmt.Sprintf(channelOrders, instID) }
