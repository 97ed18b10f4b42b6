package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"dizzycode.xyz/strategy-engine/internal/application"
	"dizzycode.xyz/strategy-engine/pkg/logger"
)

// OrderEventSubscriber 訂閱下單服務回報的訂單事件
type OrderEventSubscriber struct {
	client *RedisClient
	logger logger.Logger
}

// NewOrderEventSubscriber creates a new OrderEventSubscriber
func NewOrderEventSubscriber(client *RedisClient, log logger.Logger) *OrderEventSubscriber {
	return &OrderEventSubscriber{
		client: client,
		logger: log,
	}
}

// Subscribe Channel format: order.events.{instId}
func (s *OrderEventSubscriber) Subscribe(
	ctx context.Context,
	instID string,
	onEvent func(event application.OrderEvent) error,
) error {
	channel := OrderEventChannel(instID)

	pubsub := s.client.Client().Subscribe(ctx, channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to channel %s: %w", channel, err)
	}

	s.logger.Info("Successfully subscribed to order event channel", map[string]any{"channel": channel})

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Order event subscription cancelled", map[string]any{"channel": channel})
			return ctx.Err()

		case msg, ok := <-messages:
			if !ok {
				return fmt.Errorf("order event channel %s closed", channel)
			}
			if msg == nil {
				continue
			}

			event, err := ParseOrderEvent([]byte(msg.Payload))
			if err != nil {
				s.logger.Error("Failed to parse order event", map[string]any{
					"error":   err,
					"channel": channel,
				})
				continue
			}

			if err := onEvent(event); err != nil {
				s.logger.Error("Order event handler failed", map[string]any{
					"error":   err,
					"channel": channel,
					"type":    string(event.Type),
				})
			}
		}
	}
}

// ParseOrderEvent 解析並驗證訂單事件
func ParseOrderEvent(payload []byte) (application.OrderEvent, error) {
	var event application.OrderEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return application.OrderEvent{}, fmt.Errorf("failed to parse order event JSON: %w", err)
	}
	if err := event.Validate(); err != nil {
		return application.OrderEvent{}, err
	}
	return event, nil
}
