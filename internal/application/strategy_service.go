package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"dizzycode.xyz/strategy-engine/internal/domain/strategy"
	"dizzycode.xyz/strategy-engine/internal/domain/value_objects"
	"dizzycode.xyz/strategy-engine/pkg/logger"
)

// DefaultHistoryLimit 保留給策略的歷史K線數量
const DefaultHistoryLimit = strategy.DefaultHistoryLimit

// OrderPublisher 訂單請求發布器介面（端口）
// 應用層定義介面，基礎設施層實現
type OrderPublisher interface {
	Publish(ctx context.Context, instID string, req strategy.OrderRequest) error
}

// AccountReader 帳戶狀態讀取介面（端口）
type AccountReader interface {
	GetAccount(ctx context.Context, instID string) (strategy.Account, error)
}

// StrategyService 策略應用服務
// 職責：
// 1. 保存單一交易對的策略狀態和歷史K線
// 2. 把收盤K線和訂單事件交給領域引擎
// 3. 通過端口發布訂單請求
//
// K線和訂單事件可能來自不同的 goroutine，全部以 mutex 串行處理。
type StrategyService struct {
	mu sync.Mutex

	instID       string
	engine       *strategy.Engine
	state        strategy.State
	history      []value_objects.Candle
	historyLimit int
	barIndex     int
	lastTs       time.Time

	publisher OrderPublisher
	accounts  AccountReader
	logger    logger.Logger
}

// NewStrategyService 創建策略服務
func NewStrategyService(
	instID string,
	engine *strategy.Engine,
	publisher OrderPublisher,
	accounts AccountReader,
	historyLimit int,
	log logger.Logger,
) (*StrategyService, error) {
	if instID == "" {
		return nil, errors.New("instID is required")
	}
	if engine == nil || publisher == nil || accounts == nil {
		return nil, errors.New("engine, publisher and account reader are required")
	}
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	if log == nil {
		log = logger.NewNop()
	}

	return &StrategyService{
		instID:       instID,
		engine:       engine,
		state:        strategy.NewState(),
		history:      make([]value_objects.Candle, 0, historyLimit),
		historyLimit: historyLimit,
		barIndex:     -1,
		publisher:    publisher,
		accounts:     accounts,
		logger:       log,
	}, nil
}

// InstID 交易對
func (s *StrategyService) InstID() string { return s.instID }

// Seed 以歷史K線預熱（不評估策略）
// candles 必須從舊到新排序
func (s *StrategyService) Seed(candles []value_objects.Candle) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	added := 0
	for _, c := range candles {
		if s.append(c) {
			added++
		}
	}

	s.logger.Info("History seeded", map[string]any{
		"instId":  s.instID,
		"candles": added,
		"history": len(s.history),
	})
	return added
}

// append 加入一根K線，重複或更舊的K線會被忽略
func (s *StrategyService) append(c value_objects.Candle) bool {
	if !s.lastTs.IsZero() && !c.Timestamp().After(s.lastTs) {
		return false
	}
	s.history = append(s.history, c)
	if len(s.history) > s.historyLimit {
		s.history = s.history[len(s.history)-s.historyLimit:]
	}
	s.lastTs = c.Timestamp()
	s.barIndex++
	return true
}

// HandleCandle 處理已收盤K線用例
func (s *StrategyService) HandleCandle(ctx context.Context, candle value_objects.Candle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// 1. 重複推送直接忽略
	if !s.append(candle) {
		s.logger.Debug("Stale candle ignored", map[string]any{
			"instId": s.instID,
			"ts":     candle.Timestamp().UnixMilli(),
		})
		return nil
	}

	// 2. 讀取帳戶
	account, err := s.accounts.GetAccount(ctx, s.instID)
	if err != nil {
		s.logger.Error("Failed to read account", map[string]any{
			"instId": s.instID,
			"error":  err,
		})
		return fmt.Errorf("read account: %w", err)
	}

	// 3. 調用領域邏輯
	candles := make([]value_objects.Candle, len(s.history))
	copy(candles, s.history)
	bar := strategy.Bar{
		Index:   s.barIndex,
		Candles: candles,
		Account: account,
		Time:    candle.Timestamp(),
	}

	next, orders := s.engine.OnBar(s.state, bar)
	s.state = next

	if len(orders) == 0 {
		s.logger.Debug("No order generated", map[string]any{
			"instId": s.instID,
			"bar":    s.barIndex,
			"close":  candle.Close().Value(),
		})
		return nil
	}

	// 4. 發布訂單請求
	return s.publish(ctx, orders)
}

// HandleOrderEvent 處理訂單執行結果用例
func (s *StrategyService) HandleOrderEvent(ctx context.Context, event OrderEvent) error {
	if err := event.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		next   strategy.State
		extras []strategy.OrderRequest
		err    error
	)

	switch event.Type {
	case EventEntryFilled:
		next, extras, err = s.engine.OnEntryFilled(s.state, event.fill())
	case EventEntryCancelled:
		next, err = s.engine.OnEntryCancelled(s.state, event.OrderID)
	case EventEntryRejected:
		next, err = s.engine.OnEntryRejected(s.state, &strategy.HostRejection{
			OrderID: event.OrderID,
			Reason:  event.Reason,
		})
	case EventLiquidated:
		next, err = s.engine.OnLiquidated(s.state, event.fill())
	case EventStopFilled:
		next, err = s.engine.OnStopFilled(s.state, event.fill())
	case EventTargetFilled:
		next, err = s.engine.OnTargetFilled(s.state, event.fill())
	}

	if err != nil {
		s.logger.Warn("Order event rejected", map[string]any{
			"instId": s.instID,
			"type":   string(event.Type),
			"order":  event.OrderID,
			"error":  err,
		})
		return err
	}

	s.state = next
	s.logger.Info("Order event applied", map[string]any{
		"instId": s.instID,
		"type":   string(event.Type),
		"price":  event.Price,
		"side":   string(next.Side),
	})

	if len(extras) == 0 {
		return nil
	}
	return s.publish(ctx, extras)
}

// publish 逐筆發布，失敗的請求回滾對應的等待狀態
//
// ENTRY / ADD_UNIT 發布失敗視為主機拒絕；LIQUIDATE / CANCEL_ENTRY 發布失敗時
// 清除等待標記，讓下一根K線重新評估。
func (s *StrategyService) publish(ctx context.Context, orders []strategy.OrderRequest) error {
	var errs []error

	for _, req := range orders {
		err := s.publisher.Publish(ctx, s.instID, req)
		if err == nil {
			s.logger.Info("Order request published", map[string]any{
				"instId": s.instID,
				"id":     req.ID,
				"kind":   string(req.Kind),
				"side":   string(req.Side),
				"qty":    req.Qty,
				"price":  req.Price,
				"reason": req.Reason,
			})
			continue
		}

		s.logger.Error("Failed to publish order request", map[string]any{
			"instId": s.instID,
			"id":     req.ID,
			"kind":   string(req.Kind),
			"error":  err,
		})
		errs = append(errs, fmt.Errorf("publish %s %s: %w", req.Kind, req.ID, err))

		switch req.Kind {
		case strategy.KindEntry, strategy.KindAddUnit:
			next, rerr := s.engine.OnEntryRejected(s.state, &strategy.HostRejection{
				OrderID: req.ID,
				Reason:  "publish failed: " + err.Error(),
			})
			if rerr == nil {
				s.state = next
			}
		case strategy.KindLiquidate:
			s.state.Closing = false
		case strategy.KindCancelEntry:
			s.state.CancelRequested = false
		}
	}

	return errors.Join(errs...)
}

// State 當前策略狀態
func (s *StrategyService) State() strategy.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Snapshot 狀態摘要（查詢用例）
func (s *StrategyService) Snapshot() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.engine.Snapshot(s.state)
	snapshot["instId"] = s.instID
	snapshot["history"] = len(s.history)
	snapshot["barIndex"] = s.barIndex
	if !s.lastTs.IsZero() {
		snapshot["lastCandle"] = s.lastTs.UTC().Format(time.RFC3339)
	}
	return snapshot
}
