package messaging

import (
	"context"
	"fmt"
	"time"

	"dizzycode.xyz/strategy-engine/internal/domain/strategy"
	"dizzycode.xyz/strategy-engine/pkg/logger"
)

// RedisOrderPublisher implements the OrderPublisher port from application layer
type RedisOrderPublisher struct {
	client *RedisClient
	logger logger.Logger
}

// NewRedisOrderPublisher creates a new RedisOrderPublisher
func NewRedisOrderPublisher(client *RedisClient, log logger.Logger) *RedisOrderPublisher {
	return &RedisOrderPublisher{
		client: client,
		logger: log,
	}
}

// Publish implements application.OrderPublisher interface
// Publishes order request to Redis Pub/Sub channel: strategy.orders.{instId}
func (p *RedisOrderPublisher) Publish(ctx context.Context, instID string, req strategy.OrderRequest) error {
	channel := OrderChannel(instID)

	data, err := MarshalOrderMessage(instID, req, time.Now())
	if err != nil {
		return err
	}

	if err := p.client.Client().Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish order request to channel %s: %w", channel, err)
	}

	p.logger.Debug("Order request published to Redis", map[string]any{
		"channel": channel,
		"id":      req.ID,
		"kind":    string(req.Kind),
	})
	return nil
}
