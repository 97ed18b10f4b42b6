package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"dizzycode.xyz/strategy-engine/internal/domain/value_objects"
	"dizzycode.xyz/strategy-engine/pkg/logger"
)

// ErrUnconfirmedCandle K線尚未收盤
var ErrUnconfirmedCandle = errors.New("candle not confirmed")

// CandleData market-data-server 寫入 Redis 的K線格式
type CandleData struct {
	InstID  string `json:"instId"`
	Bar     string `json:"bar"`
	Open    string `json:"open"`
	High    string `json:"high"`
	Low     string `json:"low"`
	Close   string `json:"close"`
	Vol     string `json:"vol,omitempty"`
	Confirm string `json:"confirm"`
	Ts      string `json:"ts"` // Timestamp in milliseconds
}

// CandleSubscriber subscribes to candle data from Redis Pub/Sub
type CandleSubscriber struct {
	client *RedisClient
	logger logger.Logger
}

// NewCandleSubscriber creates a new CandleSubscriber
func NewCandleSubscriber(client *RedisClient, log logger.Logger) *CandleSubscriber {
	return &CandleSubscriber{
		client: client,
		logger: log,
	}
}

// Subscribe subscribes to candle data and invokes the callback for each closed candle
// Channel format: market.candle.{bar}.{instId}
// Example: market.candle.1H.ETH-USDT-SWAP
func (s *CandleSubscriber) Subscribe(
	ctx context.Context,
	instID string,
	bar string,
	onCandle func(candle value_objects.Candle) error,
) error {
	channel := CandleChannel(bar, instID)

	s.logger.Info("Subscribing to candle channel", map[string]any{
		"channel": channel,
		"instId":  instID,
		"bar":     bar,
	})

	pubsub := s.client.Client().Subscribe(ctx, channel)
	defer pubsub.Close()

	// Wait for subscription confirmation
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to channel %s: %w", channel, err)
	}

	s.logger.Info("Successfully subscribed to candle channel", map[string]any{"channel": channel})

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Candle subscription cancelled", map[string]any{"channel": channel})
			return ctx.Err()

		case msg, ok := <-messages:
			if !ok {
				return fmt.Errorf("candle channel %s closed", channel)
			}
			if msg == nil {
				continue
			}

			candle, err := ParseCandleMessage([]byte(msg.Payload))
			if errors.Is(err, ErrUnconfirmedCandle) {
				continue
			}
			if err != nil {
				s.logger.Error("Failed to parse candle message", map[string]any{
					"error":   err,
					"channel": channel,
				})
				continue
			}

			if err := onCandle(candle); err != nil {
				s.logger.Error("Candle handler failed", map[string]any{
					"error":   err,
					"channel": channel,
				})
			}
		}
	}
}

// ParseCandleMessage 解析 pub/sub 訊息，未收盤的K線返回 ErrUnconfirmedCandle
func ParseCandleMessage(payload []byte) (value_objects.Candle, error) {
	var data CandleData
	if err := json.Unmarshal(payload, &data); err != nil {
		return value_objects.Candle{}, fmt.Errorf("failed to parse candle JSON: %w", err)
	}
	if data.Confirm == "0" {
		return value_objects.Candle{}, ErrUnconfirmedCandle
	}
	return ParseCandleData(data)
}

// ParseCandleData 轉換為領域K線
func ParseCandleData(data CandleData) (value_objects.Candle, error) {
	open, err := strconv.ParseFloat(data.Open, 64)
	if err != nil {
		return value_objects.Candle{}, fmt.Errorf("invalid open price '%s': %w", data.Open, err)
	}

	high, err := strconv.ParseFloat(data.High, 64)
	if err != nil {
		return value_objects.Candle{}, fmt.Errorf("invalid high price '%s': %w", data.High, err)
	}

	low, err := strconv.ParseFloat(data.Low, 64)
	if err != nil {
		return value_objects.Candle{}, fmt.Errorf("invalid low price '%s': %w", data.Low, err)
	}

	close, err := strconv.ParseFloat(data.Close, 64)
	if err != nil {
		return value_objects.Candle{}, fmt.Errorf("invalid close price '%s': %w", data.Close, err)
	}

	volume := 0.0
	if data.Vol != "" {
		volume, err = strconv.ParseFloat(data.Vol, 64)
		if err != nil {
			return value_objects.Candle{}, fmt.Errorf("invalid volume '%s': %w", data.Vol, err)
		}
	}

	// OKX uses milliseconds
	tsMs, err := strconv.ParseInt(data.Ts, 10, 64)
	if err != nil {
		return value_objects.Candle{}, fmt.Errorf("invalid timestamp '%s': %w", data.Ts, err)
	}

	candle, err := value_objects.NewCandle(open, high, low, close, volume, time.UnixMilli(tsMs))
	if err != nil {
		return value_objects.Candle{}, fmt.Errorf("failed to create candle: %w", err)
	}
	return candle, nil
}
