package strategy

import (
	"errors"
	"fmt"
	"math"

	"dizzycode.xyz/strategy-engine/pkg/logger"
)

// Engine 單一策略實例的決策引擎
//
// 引擎是同步的，不開 goroutine，也不保存持倉狀態：
// 每根已收盤K線呼叫一次 OnBar，主機把成交結果透過回調送回。
// 同一個 Engine 不可同時被多個 goroutine 使用。
type Engine struct {
	desc   Descriptor
	params Params
	memo   *Memo
	logger logger.Logger
}

// NewEngine 創建引擎（工廠方法）
// 參數驗證失敗返回 *ConfigurationError
func NewEngine(desc Descriptor, overrides map[string]any, log logger.Logger) (*Engine, error) {
	if desc.Name == "" {
		return nil, &ConfigurationError{Reason: "strategy name is required"}
	}
	if desc.ShouldLong == nil && desc.ShouldShort == nil {
		return nil, &ConfigurationError{Reason: fmt.Sprintf("strategy %s has no entry predicate", desc.Name)}
	}
	if desc.Sizing == nil {
		return nil, &ConfigurationError{Reason: fmt.Sprintf("strategy %s has no sizing rule", desc.Name)}
	}
	if desc.Pyramid != nil && desc.Pyramid.Volatility == nil {
		return nil, &ConfigurationError{Reason: "pyramid rule requires a volatility measure"}
	}

	params, err := ResolveParams(desc.Params, overrides)
	if err != nil {
		return nil, err
	}
	if desc.Validate != nil {
		if err := desc.Validate(params); err != nil {
			if IsConfigurationError(err) {
				return nil, err
			}
			return nil, &ConfigurationError{Reason: err.Error()}
		}
	}

	if log == nil {
		log = logger.NewNop()
	}

	return &Engine{
		desc:   desc,
		params: params,
		memo:   NewMemo(),
		logger: log,
	}, nil
}

// Name 策略名稱
func (e *Engine) Name() string { return e.desc.Name }

// Params 解析後的參數
func (e *Engine) Params() Params { return e.params }

func (e *Engine) context(state State, bar Bar) *Context {
	e.memo.Advance(bar.Index)
	return &Context{
		bar:    bar,
		state:  state,
		params: e.params,
		memo:   e.memo,
		log:    e.logger,
	}
}

// OnBar 處理一根已收盤K線
//
// 依序：取消檢查 → (FLAT) 過濾 + 開倉 → (持倉) 平倉 → 加倉。
// 任何錯誤或 panic 都不會離開這個函數；出錯時返回原本的 state。
func (e *Engine) OnBar(state State, bar Bar) (next State, orders []OrderRequest) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Strategy evaluation panicked", map[string]any{
				"strategy": e.desc.Name,
				"bar":      bar.Index,
				"panic":    fmt.Sprint(r),
			})
			next, orders = state, nil
		}
	}()

	next = state
	next.Bar = bar.Index

	if _, ok := bar.Current(); !ok {
		e.logger.Warn("Bar without candles ignored", "strategy", e.desc.Name, "bar", bar.Index)
		return next, nil
	}

	ctx := e.context(next, bar)

	// 未成交的開倉請求：只做取消檢查
	if next.Pending != nil {
		if !next.CancelRequested && next.Pending.Bar < bar.Index && e.shouldCancel(ctx, next.Pending.ID) {
			orders = append(orders, e.cancelRequest(*next.Pending, bar.Index, "cancel policy"))
			next.CancelRequested = true
		}
		return next, orders
	}

	if next.IsFlat() {
		return e.enter(ctx, next)
	}

	if next.Closing {
		return next, nil
	}

	if e.shouldExit(ctx) {
		if next.PendingAdd != nil {
			orders = append(orders, e.cancelRequest(*next.PendingAdd, bar.Index, "position exit"))
			next.PendingAdd = nil
		}
		orders = append(orders, OrderRequest{
			ID:     newRequestID(),
			Kind:   KindLiquidate,
			Side:   next.Side,
			Type:   Market,
			Qty:    next.Quantity,
			Price:  ctx.Price(),
			Bar:    bar.Index,
			Reason: "exit signal",
		})
		next.Closing = true
		e.logger.Info("Exit signal", map[string]any{
			"strategy": e.desc.Name,
			"side":     string(next.Side),
			"price":    ctx.Price(),
			"bar":      bar.Index,
		})
		return next, orders
	}

	if add, ok := e.maybePyramid(ctx, next); ok {
		next.PendingAdd = &add
		orders = append(orders, add)
	}

	return next, orders
}

// EvaluateFilters 所有過濾條件的 AND，沒有過濾條件時為 true
func (e *Engine) EvaluateFilters(state State, bar Bar) bool {
	return e.evaluateFilters(e.context(state, bar))
}

// ShouldEnterLong 當根是否符合做多條件（不含過濾條件）
func (e *Engine) ShouldEnterLong(state State, bar Bar) bool {
	return e.predicate(e.context(state, bar), "long", e.desc.ShouldLong)
}

// ShouldEnterShort 當根是否符合做空條件（不含過濾條件）
func (e *Engine) ShouldEnterShort(state State, bar Bar) bool {
	return e.predicate(e.context(state, bar), "short", e.desc.ShouldShort)
}

// ShouldCancelPendingEntry 是否取消未成交的開倉請求
// 同一根K線重複呼叫返回相同結果
func (e *Engine) ShouldCancelPendingEntry(state State, bar Bar) bool {
	if state.Pending == nil {
		return false
	}
	return e.shouldCancel(e.context(state, bar), state.Pending.ID)
}

func (e *Engine) evaluateFilters(ctx *Context) bool {
	for i, f := range e.desc.Filters {
		if !e.predicate(ctx, fmt.Sprintf("filter.%d", i), Predicate(f)) {
			return false
		}
	}
	return true
}

func (e *Engine) shouldCancel(ctx *Context, pendingID string) bool {
	if e.desc.CancelPolicy == nil {
		return false
	}
	return e.predicate(ctx, "cancel."+pendingID, e.desc.CancelPolicy)
}

func (e *Engine) shouldExit(ctx *Context) bool {
	side := ctx.Side()
	if e.predicate(ctx, "exit."+string(side), e.desc.ShouldExit) {
		return true
	}
	if !e.desc.ExitOnReversal {
		return false
	}
	switch side {
	case Long:
		return e.predicate(ctx, "short", e.desc.ShouldShort)
	case Short:
		return e.predicate(ctx, "long", e.desc.ShouldLong)
	}
	return false
}

// predicate 執行判斷並快取結果
// 錯誤（含歷史不足）與 panic 一律視為 false
func (e *Engine) predicate(ctx *Context, name string, p Predicate) bool {
	if p == nil {
		return false
	}
	ok, _ := Cached(ctx, "engine.predicate."+name, func() (result bool, err error) {
		defer func() {
			if r := recover(); r != nil {
				e.logger.Error("Predicate panicked", map[string]any{
					"strategy":  e.desc.Name,
					"predicate": name,
					"panic":     fmt.Sprint(r),
				})
				result, err = false, nil
			}
		}()

		v, err := p(ctx)
		if err != nil {
			if errors.Is(err, ErrInsufficientHistory) {
				e.logger.Debug("Predicate skipped", "strategy", e.desc.Name, "predicate", name, "error", err)
			} else {
				e.logger.Warn("Predicate failed", "strategy", e.desc.Name, "predicate", name, "error", err)
			}
			return false, nil
		}
		return v, nil
	})
	return ok
}

// enter FLAT 狀態下的開倉評估
func (e *Engine) enter(ctx *Context, state State) (State, []OrderRequest) {
	if !e.evaluateFilters(ctx) {
		return state, nil
	}

	long := e.predicate(ctx, "long", e.desc.ShouldLong)
	short := e.predicate(ctx, "short", e.desc.ShouldShort)

	var side Side
	switch {
	case long && short:
		e.logger.Warn("Both entry predicates true, no trade", "strategy", e.desc.Name, "bar", ctx.Index())
		return state, nil
	case long:
		side = Long
	case short:
		side = Short
	default:
		return state, nil
	}

	if state.LastWasProfitable && e.desc.SuppressAfterWin != nil && e.desc.SuppressAfterWin(e.params) {
		e.logger.Info("Entry suppressed after profitable trade", "strategy", e.desc.Name, "side", string(side))
		state.LastWasProfitable = false
		return state, nil
	}

	req, err := e.entryRequest(ctx, side)
	if err != nil {
		if IsSizingError(err) {
			e.logger.Warn("Entry skipped", map[string]any{
				"strategy": e.desc.Name,
				"side":     string(side),
				"error":    err,
			})
		} else {
			e.logger.Error("Entry planning failed", map[string]any{
				"strategy": e.desc.Name,
				"side":     string(side),
				"error":    err,
			})
		}
		return state, nil
	}

	state.Pending = &req
	state.CancelRequested = false

	e.logger.Info("Entry requested", map[string]any{
		"strategy": e.desc.Name,
		"side":     string(side),
		"qty":      req.Qty,
		"price":    req.Price,
		"stop":     req.Stop,
		"target":   req.Target,
		"bar":      req.Bar,
	})

	return state, []OrderRequest{req}
}

func (e *Engine) entryRequest(ctx *Context, side Side) (OrderRequest, error) {
	planner := e.desc.GoLong
	if side == Short {
		planner = e.desc.GoShort
	}
	if planner == nil {
		planner = MarketAtClose
	}

	plan, err := safePlan(planner, ctx)
	if err != nil {
		return OrderRequest{}, err
	}
	if plan.Type == "" {
		plan.Type = Market
	}
	if plan.Price == 0 {
		plan.Price = ctx.Price()
	}
	if err := validatePlan(side, plan); err != nil {
		return OrderRequest{}, err
	}

	qty, err := e.size(ctx, plan)
	if err != nil {
		return OrderRequest{}, err
	}

	return OrderRequest{
		ID:     newRequestID(),
		Kind:   KindEntry,
		Side:   side,
		Type:   plan.Type,
		Qty:    qty,
		Price:  plan.Price,
		Stop:   plan.Stop,
		Target: plan.Target,
		Bar:    ctx.Index(),
		Reason: "entry signal",
	}, nil
}

func safePlan(planner Planner, ctx *Context) (plan EntryPlan, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("planner panicked: %v", r)
		}
	}()
	return planner(ctx)
}

// validatePlan 止損止盈必須在正確的一側
func validatePlan(side Side, plan EntryPlan) error {
	if !finite(plan.Price, plan.Stop, plan.Target) || plan.Price <= 0 {
		return &SizingError{Reason: fmt.Sprintf("invalid entry price %v", plan.Price)}
	}
	sign := side.Sign()
	if plan.Stop != 0 && (plan.Stop <= 0 || (plan.Price-plan.Stop)*sign <= 0) {
		return &SizingError{Reason: fmt.Sprintf("stop %v on wrong side of entry %v for %s", plan.Stop, plan.Price, side)}
	}
	if plan.Target != 0 && (plan.Target <= 0 || (plan.Target-plan.Price)*sign <= 0) {
		return &SizingError{Reason: fmt.Sprintf("target %v on wrong side of entry %v for %s", plan.Target, plan.Price, side)}
	}
	return nil
}

// size 套用 sizing 規則並檢查可用保證金
func (e *Engine) size(ctx *Context, plan EntryPlan) (qty float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			qty, err = 0, &SizingError{Reason: fmt.Sprintf("sizing panicked: %v", r)}
		}
	}()

	qty, err = e.desc.Sizing(ctx, plan)
	if err != nil {
		if IsSizingError(err) {
			return 0, err
		}
		return 0, &SizingError{Reason: err.Error()}
	}
	if err := CheckMargin(qty, plan.Price, ctx.Account().AvailableMargin); err != nil {
		return 0, err
	}
	return qty, nil
}

// maybePyramid 持倉順勢移動足夠距離時加一個單位
func (e *Engine) maybePyramid(ctx *Context, state State) (OrderRequest, bool) {
	rule := e.desc.Pyramid
	if rule == nil || state.PendingAdd != nil {
		return OrderRequest{}, false
	}
	if state.PyramidLevels >= int(rule.MaxLevels(e.params)) {
		return OrderRequest{}, false
	}

	vol, err := Cached(ctx, "engine.pyramid.volatility", func() (float64, error) {
		return rule.Volatility(ctx)
	})
	if err != nil || vol <= 0 || math.IsNaN(vol) {
		return OrderRequest{}, false
	}

	price := ctx.Price()
	sign := state.Side.Sign()
	trigger := state.ReferencePrice + sign*rule.Threshold(e.params)*vol
	if (price-trigger)*sign < 0 {
		return OrderRequest{}, false
	}

	stop := price - sign*rule.StopMultiplier(e.params)*vol
	plan := EntryPlan{Type: Market, Price: price, Stop: stop}
	qty, err := e.size(ctx, plan)
	if err != nil {
		e.logger.Warn("Pyramid unit skipped", "strategy", e.desc.Name, "error", err)
		return OrderRequest{}, false
	}

	e.logger.Info("Pyramid unit requested", map[string]any{
		"strategy":  e.desc.Name,
		"level":     state.PyramidLevels + 1,
		"price":     price,
		"reference": state.ReferencePrice,
		"qty":       qty,
	})

	return OrderRequest{
		ID:         newRequestID(),
		Kind:       KindAddUnit,
		Side:       state.Side,
		Type:       Market,
		Qty:        qty,
		Price:      price,
		Stop:       stop,
		Bar:        ctx.Index(),
		Volatility: vol,
		Reason:     "pyramid",
	}, true
}

func (e *Engine) cancelRequest(target OrderRequest, bar int, reason string) OrderRequest {
	e.logger.Info("Cancel requested", "strategy", e.desc.Name, "order", target.ID, "reason", reason)
	return OrderRequest{
		ID:       newRequestID(),
		Kind:     KindCancelEntry,
		Side:     target.Side,
		Type:     target.Type,
		Qty:      target.Qty,
		Price:    target.Price,
		Bar:      bar,
		TargetID: target.ID,
		Reason:   reason,
	}
}

// Snapshot 狀態摘要（用於監控和日誌）
func (e *Engine) Snapshot(state State) map[string]any {
	snapshot := map[string]any{
		"strategy":          e.desc.Name,
		"side":              string(state.Side),
		"quantity":          state.Quantity,
		"entryPrice":        state.EntryPrice,
		"stopPrice":         state.StopPrice,
		"targetPrice":       state.TargetPrice,
		"pyramidLevels":     state.PyramidLevels,
		"referencePrice":    state.ReferencePrice,
		"closing":           state.Closing,
		"lastWasProfitable": state.LastWasProfitable,
		"bar":               state.Bar,
		"params":            e.params.Map(),
	}
	if state.Pending != nil {
		snapshot["pending"] = state.Pending.String()
	}
	if state.PendingAdd != nil {
		snapshot["pendingAdd"] = state.PendingAdd.String()
	}
	return snapshot
}
