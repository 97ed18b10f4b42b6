// Package marketdata 直接從 OKX WebSocket 讀取已收盤K線
package marketdata

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"dizzycode.xyz/strategy-engine/internal/domain/value_objects"
	"dizzycode.xyz/strategy-engine/pkg/logger"
)

const (
	DefaultPingInterval   = 20 * time.Second
	DefaultPongWait       = 30 * time.Second
	DefaultWriteWait      = 10 * time.Second
	DefaultReconnectDelay = 5 * time.Second
)

// FeedConfig OKX K線訂閱配置
type FeedConfig struct {
	URL            string
	InstID         string
	Bar            string
	PingInterval   time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
	ReconnectDelay time.Duration
}

// OKXCandleFeed 訂閱 OKX K線頻道，斷線自動重連
type OKXCandleFeed struct {
	config FeedConfig
	dialer *websocket.Dialer
	logger logger.Logger
}

// NewOKXCandleFeed 創建K線訂閱
func NewOKXCandleFeed(config FeedConfig, log logger.Logger) *OKXCandleFeed {
	if config.URL == "" {
		config.URL = BusinessWSURL
	}
	if config.PingInterval == 0 {
		config.PingInterval = DefaultPingInterval
	}
	if config.PongWait == 0 {
		config.PongWait = DefaultPongWait
	}
	if config.WriteWait == 0 {
		config.WriteWait = DefaultWriteWait
	}
	if config.ReconnectDelay == 0 {
		config.ReconnectDelay = DefaultReconnectDelay
	}

	return &OKXCandleFeed{
		config: config,
		dialer: websocket.DefaultDialer,
		logger: log,
	}
}

// Run 訂閱並在每根已收盤K線呼叫 onCandle，直到 ctx 取消
func (f *OKXCandleFeed) Run(ctx context.Context, onCandle func(value_objects.Candle) error) error {
	for {
		err := f.session(ctx, onCandle)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		f.logger.Warn("OKX candle feed disconnected, reconnecting", map[string]any{
			"instId": f.config.InstID,
			"bar":    f.config.Bar,
			"error":  err,
			"delay":  f.config.ReconnectDelay.String(),
		})

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(f.config.ReconnectDelay):
		}
	}
}

// session 一次連線的生命週期
func (f *OKXCandleFeed) session(ctx context.Context, onCandle func(value_objects.Candle) error) error {
	conn, _, err := f.dialer.DialContext(ctx, f.config.URL, nil)
	if err != nil {
		return fmt.Errorf("failed to dial %s: %w", f.config.URL, err)
	}
	defer conn.Close()

	var writeMu sync.Mutex
	write := func(messageType int, data []byte) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		conn.SetWriteDeadline(time.Now().Add(f.config.WriteWait))
		return conn.WriteMessage(messageType, data)
	}

	conn.SetWriteDeadline(time.Now().Add(f.config.WriteWait))
	if err := conn.WriteJSON(NewCandleSubscribeRequest(f.config.InstID, f.config.Bar)); err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	f.logger.Info("Subscribed to OKX candle channel", map[string]any{
		"instId":  f.config.InstID,
		"channel": CandleChannel(f.config.Bar),
	})

	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// ctx 取消時關閉連線讓 ReadMessage 返回
	go func() {
		<-sessionCtx.Done()
		conn.Close()
	}()

	// OKX 使用文字 "ping" / "pong" 保活
	go func() {
		ticker := time.NewTicker(f.config.PingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-sessionCtx.Done():
				return
			case <-ticker.C:
				if err := write(websocket.TextMessage, []byte("ping")); err != nil {
					f.logger.Warn("OKX ping failed", "error", err)
					cancel()
					return
				}
			}
		}
	}()

	for {
		conn.SetReadDeadline(time.Now().Add(f.config.PongWait))
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read failed: %w", err)
		}
		if string(data) == "pong" {
			continue
		}

		candles, err := ParseCandleMessage(data)
		if err != nil {
			f.logger.Error("Failed to handle OKX message", "error", err)
			continue
		}
		for _, candle := range candles {
			if err := onCandle(candle); err != nil {
				f.logger.Error("Candle handler failed", map[string]any{
					"instId": f.config.InstID,
					"error":  err,
				})
			}
		}
	}
}
