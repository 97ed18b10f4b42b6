package engine

import (
	"errors"
	"fmt"

	"dizzycode.xyz/strategy-engine/backtesting/loader"
	"dizzycode.xyz/strategy-engine/backtesting/metrics"
	"dizzycode.xyz/strategy-engine/backtesting/simulator"
	"dizzycode.xyz/strategy-engine/internal/domain/strategy"
	"dizzycode.xyz/strategy-engine/internal/domain/strategy/strategies"
	"dizzycode.xyz/strategy-engine/internal/domain/value_objects"
	"dizzycode.xyz/strategy-engine/pkg/logger"
)

// DefaultHistoryLimit 每根K線傳給策略的歷史長度
const DefaultHistoryLimit = strategy.DefaultHistoryLimit

// BacktestConfig 回測配置
type BacktestConfig struct {
	InitialBalance float64        // 初始資金
	FeeRate        float64        // 手續費率（默認: 0.0005 = 0.05%）
	Slippage       float64        // 滑點（默認: 0）
	InstID         string         // 交易對 (e.g., "ETH-USDT-SWAP")
	Strategy       string         // 策略名稱（見 strategies.Names()）
	Params         map[string]any // 策略參數覆蓋
	HistoryLimit   int            // 歷史K線窗口，0 使用 DefaultHistoryLimit
}

// BacktestEngine 回測引擎核心
//
// 逐根K線驅動 strategy.Engine：先撮合上一根留下的限價單，
// 再檢查止損止盈，最後評估策略並執行返回的訂單請求。
type BacktestEngine struct {
	strategy        *strategy.Engine
	state           strategy.State
	simulator       *simulator.OrderSimulator
	positionTracker *simulator.PositionTracker
	calculator      *metrics.MetricsCalculator
	config          BacktestConfig
	logger          logger.Logger

	balance     float64
	openOrders  []strategy.OrderRequest // 等待成交的限價單
	entryBar    int                     // 當前持倉首次成交的K線序號
	openedUnits int
	tradeLog    []TradeLog
}

// NewBacktestEngine 依策略名稱創建回測引擎
func NewBacktestEngine(config BacktestConfig, log logger.Logger) (*BacktestEngine, error) {
	eng, err := strategies.New(config.Strategy, config.Params, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create strategy %q: %w", config.Strategy, err)
	}
	return NewBacktestEngineWithStrategy(eng, config, log)
}

// NewBacktestEngineWithStrategy 使用已建立的策略引擎創建回測引擎
func NewBacktestEngineWithStrategy(eng *strategy.Engine, config BacktestConfig, log logger.Logger) (*BacktestEngine, error) {
	if eng == nil {
		return nil, errors.New("strategy engine is nil")
	}
	if config.InitialBalance <= 0 {
		return nil, fmt.Errorf("initial balance must be positive, got %v", config.InitialBalance)
	}
	if config.FeeRate < 0 || config.Slippage < 0 {
		return nil, fmt.Errorf("fee rate and slippage must be >= 0")
	}
	if config.HistoryLimit <= 0 {
		config.HistoryLimit = DefaultHistoryLimit
	}
	if log == nil {
		log = logger.NewNop()
	}

	return &BacktestEngine{
		strategy:        eng,
		state:           strategy.NewState(),
		simulator:       simulator.NewOrderSimulator(config.FeeRate, config.Slippage),
		positionTracker: simulator.NewPositionTracker(),
		calculator:      metrics.NewMetricsCalculator(config.InitialBalance),
		config:          config,
		logger:          log,
		balance:         config.InitialBalance,
		entryBar:        -1,
	}, nil
}

// Run 執行回測
//
// 回測流程（每根K線）：
//  1. 撮合之前K線留下的限價單（開倉 / 加倉）
//  2. 檢查持倉是否觸及止損或止盈
//  3. 調用策略 OnBar 取得訂單請求並執行
//  4. 記錄權益快照（用於計算最大回撤）
//
// 回測結束時不強制平倉，未平倉部分以最後收盤價計入未實現盈虧。
func (e *BacktestEngine) Run(candles []value_objects.Candle) (metrics.BacktestResult, error) {
	if len(candles) == 0 {
		return metrics.BacktestResult{}, fmt.Errorf("no candles provided")
	}

	e.calculator.RecordBalance(candles[0].Timestamp(), e.balance)

	for i, candle := range candles {
		e.fillOpenOrders(i, candle)
		e.checkProtective(i, candle)

		start := 0
		if i+1 > e.config.HistoryLimit {
			start = i + 1 - e.config.HistoryLimit
		}
		bar := strategy.Bar{
			Index:   i,
			Candles: candles[start : i+1],
			Account: e.account(candle),
			Time:    candle.Timestamp(),
		}

		next, orders := e.strategy.OnBar(e.state, bar)
		e.state = next
		for _, req := range orders {
			e.route(i, candle, req)
		}

		e.calculator.RecordBalance(candle.Timestamp(), e.equity(candle.Close().Value()))
	}

	last := candles[len(candles)-1]
	result := e.calculator.Calculate(
		e.positionTracker,
		e.balance,
		last.Close().Value(),
		e.config.FeeRate,
		e.openedUnits,
	)

	e.logger.Info("Backtest finished", map[string]any{
		"strategy":  e.strategy.Name(),
		"instId":    e.config.InstID,
		"candles":   len(candles),
		"trades":    result.TotalTrades,
		"netProfit": result.NetProfit,
	})
	return result, nil
}

// RunFromFile 載入歷史數據並執行回測
func (e *BacktestEngine) RunFromFile(filepath string) (metrics.BacktestResult, error) {
	candles, err := loader.LoadFromJSON(filepath)
	if err != nil {
		return metrics.BacktestResult{}, fmt.Errorf("failed to load candles: %w", err)
	}
	return e.Run(candles)
}

// account 提供給策略的帳戶快照
func (e *BacktestEngine) account(candle value_objects.Candle) strategy.Account {
	price := candle.Close().Value()
	pos := strategy.Position{Side: strategy.Flat}
	if e.positionTracker.IsOpen() {
		avg := e.positionTracker.AverageCost()
		pos = strategy.Position{
			Side:     e.positionTracker.Side(),
			Qty:      e.positionTracker.TotalQty(),
			AvgPrice: avg,
		}
		if avg > 0 {
			pos.PnLPercent = (price - avg) / avg * 100 * pos.Side.Sign()
		}
	}
	return strategy.Account{
		Balance:         e.equity(price),
		AvailableMargin: e.balance,
		FeeRate:         e.config.FeeRate,
		Slippage:        e.config.Slippage,
		Position:        pos,
	}
}

// equity 餘額 + 未平倉成本 + 未實現盈虧
func (e *BacktestEngine) equity(price float64) float64 {
	return e.balance + e.positionTracker.CostBasis() + e.positionTracker.CalculateUnrealizedPnL(price, e.config.FeeRate)
}

// route 執行策略返回的訂單請求
func (e *BacktestEngine) route(i int, candle value_objects.Candle, req strategy.OrderRequest) {
	switch req.Kind {
	case strategy.KindEntry, strategy.KindAddUnit:
		if req.Type == strategy.Limit {
			e.openOrders = append(e.openOrders, req)
			e.logger.Debug("Limit order queued", "order", req.ID, "kind", string(req.Kind), "price", req.Price)
			return
		}
		e.execute(i, candle, req)

	case strategy.KindCancelEntry:
		if !e.dropOrder(req.TargetID) {
			e.logger.Debug("Cancel for unknown order ignored", "order", req.TargetID)
			return
		}
		next, err := e.strategy.OnEntryCancelled(e.state, req.TargetID)
		if err != nil {
			e.logger.Error("Cancel callback failed", "order", req.TargetID, "error", err)
			return
		}
		e.state = next
		e.record(TradeLog{Time: candle.Timestamp(), Action: ActionCancel, Side: req.Side, Balance: e.balance, Reason: req.Reason})

	case strategy.KindLiquidate:
		e.closePosition(candle, req.Price, true, req.Reason, req.ID, e.strategy.OnLiquidated)

	case strategy.KindReplaceStop:
		// 新止損已寫入 state.StopPrice，之後的K線以它檢查
		e.logger.Debug("Stop replaced", "stop", req.Stop, "qty", req.Qty)
	}
}

// execute 撮合開倉 / 加倉請求，返回請求是否已結束（成交或被拒絕）
func (e *BacktestEngine) execute(i int, candle value_objects.Candle, req strategy.OrderRequest) bool {
	exec, ok, err := e.simulator.SimulateOpen(req, candle, e.balance)
	var unit simulator.Unit
	if err == nil && ok {
		unit, err = e.positionTracker.Open(req.Side, exec, candle.Timestamp())
	}
	if err != nil {
		e.reject(candle, req, err)
		return true
	}
	if !ok {
		return false
	}

	e.balance -= exec.Notional + exec.Fee
	e.openedUnits++
	if req.Kind == strategy.KindEntry {
		e.entryBar = i
	}

	next, extra, err := e.strategy.OnEntryFilled(e.state, strategy.Fill{OrderID: req.ID, Price: exec.Price, Qty: exec.Qty})
	if err != nil {
		e.logger.Error("Fill callback failed", "order", req.ID, "error", err)
	} else {
		e.state = next
	}
	for _, r := range extra {
		e.route(i, candle, r)
	}

	action := ActionOpen
	if req.Kind == strategy.KindAddUnit {
		action = ActionAdd
	}
	e.record(TradeLog{
		Time:       candle.Timestamp(),
		Action:     action,
		Side:       req.Side,
		Price:      exec.Price,
		Qty:        exec.Qty,
		Balance:    e.balance,
		Fee:        exec.Fee,
		Reason:     req.Reason,
		PositionID: unit.ID,
	})
	return true
}

// reject 主機拒絕：回報引擎並記錄
func (e *BacktestEngine) reject(candle value_objects.Candle, req strategy.OrderRequest, cause error) {
	rejection := &strategy.HostRejection{OrderID: req.ID, Reason: cause.Error()}
	next, err := e.strategy.OnEntryRejected(e.state, rejection)
	if err != nil {
		e.logger.Error("Reject callback failed", "order", req.ID, "error", err)
	} else {
		e.state = next
	}
	e.logger.Warn("Order rejected", "order", req.ID, "kind", string(req.Kind), "reason", cause.Error())
	e.record(TradeLog{Time: candle.Timestamp(), Action: ActionReject, Side: req.Side, Qty: req.Qty, Balance: e.balance, Reason: cause.Error()})
}

// fillOpenOrders 撮合之前K線留下的限價單
func (e *BacktestEngine) fillOpenOrders(i int, candle value_objects.Candle) {
	if len(e.openOrders) == 0 {
		return
	}
	remaining := e.openOrders[:0]
	for _, req := range e.openOrders {
		if req.Bar >= i || !e.execute(i, candle, req) {
			remaining = append(remaining, req)
		}
	}
	e.openOrders = remaining
}

// checkProtective 持倉（不含本根才成交的）觸及止損或止盈時平倉
func (e *BacktestEngine) checkProtective(i int, candle value_objects.Candle) {
	if !e.positionTracker.IsOpen() || e.entryBar >= i {
		return
	}
	kind, price := e.simulator.CheckProtective(e.state.Side, e.state.StopPrice, e.state.TargetPrice, candle)
	switch kind {
	case simulator.ExitStop:
		e.closePosition(candle, price, false, fmt.Sprintf("stop_%.4f", e.state.StopPrice), "", e.strategy.OnStopFilled)
	case simulator.ExitTarget:
		e.closePosition(candle, price, false, fmt.Sprintf("target_%.4f", e.state.TargetPrice), "", e.strategy.OnTargetFilled)
	}
}

type exitCallback func(strategy.State, strategy.Fill) (strategy.State, error)

// closePosition 全部平倉並回報引擎，同時丟棄未成交的加倉單
func (e *BacktestEngine) closePosition(candle value_objects.Candle, price float64, slip bool, reason, orderID string, callback exitCallback) {
	if !e.positionTracker.IsOpen() {
		e.logger.Warn("Close requested without position", "reason", reason)
		return
	}

	exec, err := e.simulator.SimulateClose(e.positionTracker.Side(), price, e.positionTracker.TotalQty(), slip)
	if err != nil {
		e.logger.Error("Close simulation failed", "reason", reason, "error", err)
		return
	}
	basis := e.positionTracker.CostBasis()
	trade, err := e.positionTracker.Close(exec, candle.Timestamp(), reason)
	if err != nil {
		e.logger.Error("Close failed", "reason", reason, "error", err)
		return
	}
	e.balance += basis + trade.GrossPnL - exec.Fee
	e.entryBar = -1

	next, err := callback(e.state, strategy.Fill{OrderID: orderID, Price: exec.Price, Qty: exec.Qty})
	if err != nil {
		e.logger.Error("Exit callback failed", "reason", reason, "error", err)
	} else {
		e.state = next
	}

	remaining := e.openOrders[:0]
	for _, req := range e.openOrders {
		if req.Kind != strategy.KindAddUnit {
			remaining = append(remaining, req)
		}
	}
	e.openOrders = remaining

	e.record(TradeLog{
		Time:       candle.Timestamp(),
		Action:     ActionClose,
		Side:       trade.Side,
		Price:      exec.Price,
		Qty:        exec.Qty,
		Balance:    e.balance,
		PnLPercent: trade.PnLPercent,
		PnL:        trade.GrossPnL,
		Fee:        exec.Fee,
		Reason:     reason,
		PositionID: trade.PositionID,
	})
}

// dropOrder 移除等待中的限價單
func (e *BacktestEngine) dropOrder(id string) bool {
	for i, req := range e.openOrders {
		if req.ID == id {
			e.openOrders = append(e.openOrders[:i], e.openOrders[i+1:]...)
			return true
		}
	}
	return false
}

// State 當前策略狀態
func (e *BacktestEngine) State() strategy.State {
	return e.state
}

// Balance 當前可用餘額
func (e *BacktestEngine) Balance() float64 {
	return e.balance
}

// GetPositionTracker 獲取倉位追蹤器（用於調試）
func (e *BacktestEngine) GetPositionTracker() *simulator.PositionTracker {
	return e.positionTracker
}

// GetMetricsCalculator 獲取指標計算器（用於調試）
func (e *BacktestEngine) GetMetricsCalculator() *metrics.MetricsCalculator {
	return e.calculator
}
