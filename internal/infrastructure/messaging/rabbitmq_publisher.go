package messaging

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"dizzycode.xyz/strategy-engine/internal/domain/strategy"
	"dizzycode.xyz/strategy-engine/internal/infrastructure/config"
	"dizzycode.xyz/strategy-engine/pkg/logger"
)

// ErrChannelNotReady RabbitMQ channel 尚未建立或已關閉
var ErrChannelNotReady = errors.New("rabbitmq channel not initialized")

// RabbitMQOrderPublisher 把訂單請求投遞到持久化隊列
type RabbitMQOrderPublisher struct {
	config  config.RabbitMQConfig
	logger  logger.Logger
	conn    *amqp.Connection
	channel *amqp.Channel
	mu      sync.RWMutex
	closed  bool
}

// NewRabbitMQOrderPublisher 連線並宣告隊列
func NewRabbitMQOrderPublisher(cfg config.RabbitMQConfig, log logger.Logger) (*RabbitMQOrderPublisher, error) {
	p := &RabbitMQOrderPublisher{config: cfg, logger: log}

	log.Info("Connecting to RabbitMQ", map[string]any{
		"url":   MaskURL(cfg.URL),
		"queue": cfg.Queue,
	})

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create channel: %w", err)
	}

	// durable, not auto-deleted, not exclusive
	if _, err := channel.QueueDeclare(cfg.Queue, true, false, false, false, nil); err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue %s: %w", cfg.Queue, err)
	}

	p.conn = conn
	p.channel = channel
	p.watchClose()

	log.Info("RabbitMQ connected successfully", "queue", cfg.Queue)
	return p, nil
}

// watchClose 連線或 channel 被關閉時記錄日誌
func (p *RabbitMQOrderPublisher) watchClose() {
	connClosed := p.conn.NotifyClose(make(chan *amqp.Error, 1))
	chanClosed := p.channel.NotifyClose(make(chan *amqp.Error, 1))

	go func() {
		select {
		case err := <-connClosed:
			if err != nil {
				p.logger.Error("RabbitMQ connection error", "error", err.Error())
			}
		case err := <-chanClosed:
			if err != nil {
				p.logger.Error("RabbitMQ channel error", "error", err.Error())
			}
		}

		p.mu.Lock()
		p.channel = nil
		p.mu.Unlock()
	}()
}

// Publish implements application.OrderPublisher interface
func (p *RabbitMQOrderPublisher) Publish(ctx context.Context, instID string, req strategy.OrderRequest) error {
	p.mu.RLock()
	channel := p.channel
	p.mu.RUnlock()
	if channel == nil {
		return ErrChannelNotReady
	}

	now := time.Now()
	body, err := MarshalOrderMessage(instID, req, now)
	if err != nil {
		return err
	}

	err = channel.PublishWithContext(ctx, "", p.config.Queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    req.ID,
		Timestamp:    now,
		Type:         string(req.Kind),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("failed to publish to queue %s: %w", p.config.Queue, err)
	}

	p.logger.Debug("Order request published to RabbitMQ", map[string]any{
		"queue": p.config.Queue,
		"id":    req.ID,
		"kind":  string(req.Kind),
	})
	return nil
}

// Close closes the channel and connection
func (p *RabbitMQOrderPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	var errs []error
	if p.channel != nil {
		if err := p.channel.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, err)
		}
		p.channel = nil
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, err)
		}
		p.conn = nil
	}

	p.logger.Info("RabbitMQ connection closed")
	return errors.Join(errs...)
}

// MaskURL masks the password in the URL for logging
func MaskURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "invalid-url"
	}

	if parsed.User != nil {
		if _, hasPassword := parsed.User.Password(); hasPassword {
			parsed.User = url.UserPassword(parsed.User.Username(), "***")
		}
	}

	return parsed.String()
}
