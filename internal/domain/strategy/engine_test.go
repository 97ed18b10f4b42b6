package strategy

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dizzycode.xyz/strategy-engine/internal/domain/value_objects"
)

var defaultAccount = Account{Balance: 10000, AvailableMargin: 10000, FeeRate: 0}

func makeBar(index int, price float64) Bar {
	return makeBarWithAccount(index, price, defaultAccount)
}

func makeBarWithAccount(index int, price float64, acct Account) Bar {
	ts := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(index) * time.Hour)
	return Bar{
		Index:   index,
		Candles: []value_objects.Candle{value_objects.MustCandle(price, price, price, price, 1, ts)},
		Account: acct,
		Time:    ts,
	}
}

// switches 測試用的可控條件
type switches struct {
	filter bool
	long   bool
	short  bool
	exit   bool
}

func (s *switches) descriptor() Descriptor {
	return Descriptor{
		Name:        "test",
		Filters:     []Filter{func(*Context) (bool, error) { return s.filter, nil }},
		ShouldLong:  func(*Context) (bool, error) { return s.long, nil },
		ShouldShort: func(*Context) (bool, error) { return s.short, nil },
		ShouldExit:  func(*Context) (bool, error) { return s.exit, nil },
		Sizing:      FullAllocation(-1),
	}
}

func newTestEngine(t *testing.T, desc Descriptor) *Engine {
	t.Helper()
	e, err := NewEngine(desc, nil, nil)
	require.NoError(t, err)
	return e
}

// openLong 開倉並確認成交
func openLong(t *testing.T, e *Engine, state State, index int, price float64) State {
	t.Helper()
	state, orders := e.OnBar(state, makeBar(index, price))
	require.Len(t, orders, 1)
	require.Equal(t, KindEntry, orders[0].Kind)

	state, extra, err := e.OnEntryFilled(state, Fill{OrderID: orders[0].ID, Price: price, Qty: orders[0].Qty})
	require.NoError(t, err)
	require.Empty(t, extra)
	return state
}

func TestOnBar_FiltersFalseBlocksEntry(t *testing.T) {
	sw := &switches{filter: false, long: true}
	e := newTestEngine(t, sw.descriptor())

	state := NewState()
	for i := 0; i < 5; i++ {
		var orders []OrderRequest
		state, orders = e.OnBar(state, makeBar(i, 100))
		assert.Empty(t, orders, "bar %d", i)
	}
	assert.True(t, state.IsFlat())
	assert.Nil(t, state.Pending)
}

func TestOnBar_NoFiltersMeansTrue(t *testing.T) {
	desc := Descriptor{
		Name:       "nofilter",
		ShouldLong: Always,
		Sizing:     FullAllocation(-1),
	}
	e := newTestEngine(t, desc)

	state, orders := e.OnBar(NewState(), makeBar(0, 50))
	require.Len(t, orders, 1)
	assert.Equal(t, Long, orders[0].Side)
	assert.NotNil(t, state.Pending)
	assert.True(t, e.EvaluateFilters(state, makeBar(0, 50)))
}

func TestFullAllocation_SlippageAllowance(t *testing.T) {
	acct := Account{Balance: 10000, AvailableMargin: 10000, FeeRate: 0.0005, Slippage: 0.001}

	tests := []struct {
		name    string
		planner Planner
		qty     float64
	}{
		// 10000 / (100 × 1.001 × 1.001)
		{"market sized at slipped price", MarketAtClose, 99.800},
		// 10000 / (100 × 1.001)
		{"limit ignores slippage", func(ctx *Context) (EntryPlan, error) {
			return EntryPlan{Type: Limit, Price: 100}, nil
		}, 99.900},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine(t, Descriptor{
				Name:       "all-in",
				ShouldLong: Always,
				GoLong:     tt.planner,
				Sizing:     FullAllocation(3),
			})
			_, orders := e.OnBar(NewState(), makeBarWithAccount(0, 100, acct))
			require.Len(t, orders, 1)
			assert.InDelta(t, tt.qty, orders[0].Qty, 1e-9)
		})
	}
}

func TestOnBar_BothEntriesTrueMeansNoTrade(t *testing.T) {
	sw := &switches{filter: true, long: true, short: true}
	e := newTestEngine(t, sw.descriptor())

	state, orders := e.OnBar(NewState(), makeBar(0, 100))
	assert.Empty(t, orders)
	assert.Nil(t, state.Pending)
}

func TestOnBar_EntryRequestAndFill(t *testing.T) {
	sw := &switches{filter: true, short: true}
	e := newTestEngine(t, sw.descriptor())

	state, orders := e.OnBar(NewState(), makeBar(0, 50))
	require.Len(t, orders, 1)
	req := orders[0]
	assert.Equal(t, KindEntry, req.Kind)
	assert.Equal(t, Short, req.Side)
	assert.Equal(t, Market, req.Type)
	assert.Equal(t, 50.0, req.Price)
	assert.InDelta(t, 200.0, req.Qty, 1e-9)
	assert.NotEmpty(t, req.ID)

	// 掛單期間不再發出新的開倉
	state, orders = e.OnBar(state, makeBar(1, 50))
	assert.Empty(t, orders)

	state, _, err := e.OnEntryFilled(state, Fill{OrderID: req.ID, Price: 49, Qty: req.Qty})
	require.NoError(t, err)
	assert.Equal(t, Short, state.Side)
	assert.Equal(t, 49.0, state.ReferencePrice)
	assert.Equal(t, 0, state.PyramidLevels)
	assert.Nil(t, state.Pending)
}

func TestCallbacks_InvalidTransitions(t *testing.T) {
	sw := &switches{filter: true, long: true}
	e := newTestEngine(t, sw.descriptor())
	flat := NewState()

	tests := []struct {
		name string
		call func(State) (State, error)
	}{
		{"stop fill while flat", func(s State) (State, error) { return e.OnStopFilled(s, Fill{Price: 100, Qty: 1}) }},
		{"target fill while flat", func(s State) (State, error) { return e.OnTargetFilled(s, Fill{Price: 100, Qty: 1}) }},
		{"liquidation while flat", func(s State) (State, error) { return e.OnLiquidated(s, Fill{Price: 100, Qty: 1}) }},
		{"fill without request", func(s State) (State, error) {
			next, _, err := e.OnEntryFilled(s, Fill{OrderID: "missing", Price: 100, Qty: 1})
			return next, err
		}},
		{"cancel without request", func(s State) (State, error) { return e.OnEntryCancelled(s, "missing") }},
		{"rejection without request", func(s State) (State, error) {
			return e.OnEntryRejected(s, &HostRejection{OrderID: "missing", Reason: "margin"})
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, err := tt.call(flat)
			assert.ErrorIs(t, err, ErrInvalidTransition)
			assert.Equal(t, flat, next)
		})
	}
}

func TestCallbacks_EntryFillWhileLongIsRejected(t *testing.T) {
	sw := &switches{filter: true, long: true}
	e := newTestEngine(t, sw.descriptor())

	state, orders := e.OnBar(NewState(), makeBar(0, 100))
	id := orders[0].ID
	state, _, err := e.OnEntryFilled(state, Fill{OrderID: id, Price: 100, Qty: 1})
	require.NoError(t, err)

	// 同一個請求再次成交
	again, _, err := e.OnEntryFilled(state, Fill{OrderID: id, Price: 100, Qty: 1})
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, state, again)
}

func TestOnBar_ExitIssuesSingleLiquidation(t *testing.T) {
	sw := &switches{filter: true, long: true}
	e := newTestEngine(t, sw.descriptor())

	state := openLong(t, e, NewState(), 0, 100)

	sw.exit = true
	state, orders := e.OnBar(state, makeBar(1, 110))
	require.Len(t, orders, 1)
	assert.Equal(t, KindLiquidate, orders[0].Kind)
	assert.Equal(t, state.Quantity, orders[0].Qty)
	assert.True(t, state.Closing)

	// 等待成交期間不重複平倉
	state, orders = e.OnBar(state, makeBar(2, 111))
	assert.Empty(t, orders)

	state, err := e.OnLiquidated(state, Fill{Price: 111, Qty: state.Quantity})
	require.NoError(t, err)
	assert.True(t, state.IsFlat())
	assert.False(t, state.Closing)
	assert.True(t, state.LastWasProfitable)
	assert.Equal(t, 0, state.PyramidLevels)
	assert.Zero(t, state.ReferencePrice)
}

func TestOnBar_ReversalTreatedAsExit(t *testing.T) {
	sw := &switches{filter: true, long: true}
	desc := sw.descriptor()
	desc.ExitOnReversal = true
	e := newTestEngine(t, desc)

	state := openLong(t, e, NewState(), 0, 100)

	sw.long, sw.short = false, true
	state, orders := e.OnBar(state, makeBar(1, 95))
	require.Len(t, orders, 1)
	assert.Equal(t, KindLiquidate, orders[0].Kind)
	// 不會同時反向開倉
	assert.Equal(t, Long, state.Side)
}

func TestOnBar_SizingErrorSkipsOrder(t *testing.T) {
	sw := &switches{filter: true, long: true}
	e := newTestEngine(t, sw.descriptor())

	broke := Account{Balance: 0, AvailableMargin: 0}
	state, orders := e.OnBar(NewState(), makeBarWithAccount(0, 100, broke))
	assert.Empty(t, orders)
	assert.True(t, state.IsFlat())
	assert.Nil(t, state.Pending)
}

func TestOnBar_MarginExceededSkipsOrder(t *testing.T) {
	desc := Descriptor{
		Name:       "risk",
		ShouldLong: Always,
		GoLong: func(ctx *Context) (EntryPlan, error) {
			return EntryPlan{Price: 100, Stop: 99.9}, nil
		},
		Sizing: RiskNormalized(Const(2)),
	}
	e := newTestEngine(t, desc)

	// 2% × 10000 / 0.1 = 2000 單位，名目 200000 超過保證金
	state, orders := e.OnBar(NewState(), makeBar(0, 100))
	assert.Empty(t, orders)
	assert.Nil(t, state.Pending)
}

func TestOnBar_InvalidStopSideSkipsOrder(t *testing.T) {
	desc := Descriptor{
		Name:       "badstop",
		ShouldLong: Always,
		GoLong: func(ctx *Context) (EntryPlan, error) {
			return EntryPlan{Stop: ctx.Price() + 5}, nil
		},
		Sizing: RiskNormalized(Const(2)),
	}
	e := newTestEngine(t, desc)

	_, orders := e.OnBar(NewState(), makeBar(0, 100))
	assert.Empty(t, orders)
}

func TestOnBar_PanicsAndErrorsAreContained(t *testing.T) {
	desc := Descriptor{
		Name:        "panicky",
		ShouldLong:  func(*Context) (bool, error) { panic("boom") },
		ShouldShort: func(*Context) (bool, error) { return true, errors.New("broken indicator") },
		Sizing:      FullAllocation(-1),
	}
	e := newTestEngine(t, desc)

	state := NewState()
	var orders []OrderRequest
	assert.NotPanics(t, func() {
		state, orders = e.OnBar(state, makeBar(0, 100))
	})
	assert.Empty(t, orders)
	assert.True(t, state.IsFlat())
	assert.Equal(t, 0, state.Bar)
}

func TestOnBar_InsufficientHistoryIsFalse(t *testing.T) {
	desc := Descriptor{
		Name: "history",
		ShouldLong: func(ctx *Context) (bool, error) {
			if err := ctx.RequireHistory(200); err != nil {
				return true, err
			}
			return true, nil
		},
		Sizing: FullAllocation(-1),
	}
	e := newTestEngine(t, desc)

	_, orders := e.OnBar(NewState(), makeBar(0, 100))
	assert.Empty(t, orders)
}

func TestOnBar_EmptyBarIgnored(t *testing.T) {
	sw := &switches{filter: true, long: true}
	e := newTestEngine(t, sw.descriptor())

	state, orders := e.OnBar(NewState(), Bar{Index: 3})
	assert.Empty(t, orders)
	assert.Equal(t, 3, state.Bar)
}

func TestCancelPolicy_IdempotentWithinBar(t *testing.T) {
	calls := 0
	desc := Descriptor{
		Name:       "cancel",
		ShouldLong: Always,
		Sizing:     FullAllocation(-1),
		// 每次呼叫結果都不同，快取保證同一根K線結果一致
		CancelPolicy: func(*Context) (bool, error) {
			calls++
			return calls%2 == 1, nil
		},
	}
	e := newTestEngine(t, desc)

	state, orders := e.OnBar(NewState(), makeBar(0, 100))
	require.Len(t, orders, 1)
	entryID := orders[0].ID

	bar := makeBar(1, 100)
	first := e.ShouldCancelPendingEntry(state, bar)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, e.ShouldCancelPendingEntry(state, bar))
	}
	assert.Equal(t, 1, calls)

	state, orders = e.OnBar(state, bar)
	require.Len(t, orders, 1)
	assert.Equal(t, KindCancelEntry, orders[0].Kind)
	assert.Equal(t, entryID, orders[0].TargetID)
	assert.True(t, state.CancelRequested)

	// 已發出取消，不重複
	state, orders = e.OnBar(state, makeBar(2, 100))
	assert.Empty(t, orders)

	state, err := e.OnEntryCancelled(state, entryID)
	require.NoError(t, err)
	assert.Nil(t, state.Pending)
	assert.False(t, state.CancelRequested)
}

func TestCancelPolicy_NilNeverCancels(t *testing.T) {
	desc := Descriptor{Name: "keep", ShouldLong: Always, Sizing: FullAllocation(-1)}
	e := newTestEngine(t, desc)

	state, _ := e.OnBar(NewState(), makeBar(0, 100))
	for i := 1; i < 4; i++ {
		var orders []OrderRequest
		state, orders = e.OnBar(state, makeBar(i, 100))
		assert.Empty(t, orders)
		assert.False(t, e.ShouldCancelPendingEntry(state, makeBar(i, 100)))
	}
	assert.NotNil(t, state.Pending)
}

func TestOnEntryRejected_ResetsPending(t *testing.T) {
	sw := &switches{filter: true, long: true}
	e := newTestEngine(t, sw.descriptor())

	state, orders := e.OnBar(NewState(), makeBar(0, 100))
	state, err := e.OnEntryRejected(state, &HostRejection{OrderID: orders[0].ID, Reason: "insufficient margin"})
	require.NoError(t, err)
	assert.Nil(t, state.Pending)
	assert.True(t, state.IsFlat())

	// 不自動重試：下一根K線重新評估
	state, orders = e.OnBar(state, makeBar(1, 100))
	require.Len(t, orders, 1)
	assert.Equal(t, KindEntry, orders[0].Kind)
	assert.NotNil(t, state.Pending)
}

func pyramidDescriptor(maxLevels float64) Descriptor {
	return Descriptor{
		Name:       "pyramid",
		ShouldLong: Always,
		GoLong: func(ctx *Context) (EntryPlan, error) {
			return EntryPlan{Stop: ctx.Price() - 10}, nil
		},
		Sizing: VolatilityUnits(Const(1), func(*Context) (float64, error) { return 5, nil }, 1),
		Pyramid: &PyramidRule{
			MaxLevels:      Const(maxLevels),
			Threshold:      Const(0.5),
			StopMultiplier: Const(2),
			Volatility:     func(*Context) (float64, error) { return 5, nil },
		},
	}
}

func TestPyramid_Scenario(t *testing.T) {
	e := newTestEngine(t, pyramidDescriptor(4))

	state := openLong(t, e, NewState(), 0, 100)
	assert.Equal(t, 90.0, state.StopPrice)

	// 102 < 100 + 0.5 × 5
	state, orders := e.OnBar(state, makeBar(1, 102))
	assert.Empty(t, orders)

	state, orders = e.OnBar(state, makeBar(2, 102.5))
	require.Len(t, orders, 1)
	add := orders[0]
	assert.Equal(t, KindAddUnit, add.Kind)
	assert.Equal(t, Long, add.Side)
	assert.InDelta(t, 20.0, add.Qty, 1e-9) // 1% × 10000 / 5

	state, orders, err := e.OnEntryFilled(state, Fill{OrderID: add.ID, Price: 102.5, Qty: add.Qty})
	require.NoError(t, err)
	require.Len(t, orders, 1)
	replace := orders[0]
	assert.Equal(t, KindReplaceStop, replace.Kind)
	assert.InDelta(t, 92.5, replace.Price, 1e-9)
	assert.InDelta(t, state.Quantity, replace.Qty, 1e-9)
	assert.InDelta(t, 40.0, state.Quantity, 1e-9)
	assert.InDelta(t, 101.25, state.EntryPrice, 1e-9)
	assert.Equal(t, 1, state.PyramidLevels)
	assert.Equal(t, 102.5, state.ReferencePrice)
	assert.InDelta(t, 92.5, state.StopPrice, 1e-9)
}

func TestPyramid_Short(t *testing.T) {
	desc := pyramidDescriptor(4)
	desc.ShouldLong = nil
	desc.ShouldShort = Always
	desc.GoShort = func(ctx *Context) (EntryPlan, error) {
		return EntryPlan{Stop: ctx.Price() + 10}, nil
	}
	e := newTestEngine(t, desc)

	state, orders := e.OnBar(NewState(), makeBar(0, 100))
	state, _, err := e.OnEntryFilled(state, Fill{OrderID: orders[0].ID, Price: 100, Qty: orders[0].Qty})
	require.NoError(t, err)

	state, orders = e.OnBar(state, makeBar(1, 97.5))
	require.Len(t, orders, 1)

	_, orders, err = e.OnEntryFilled(state, Fill{OrderID: orders[0].ID, Price: 97.5, Qty: orders[0].Qty})
	require.NoError(t, err)
	assert.InDelta(t, 107.5, orders[0].Price, 1e-9)
}

func TestPyramid_BoundedAndResetOnStop(t *testing.T) {
	e := newTestEngine(t, pyramidDescriptor(2))

	state := openLong(t, e, NewState(), 0, 100)
	price := 100.0
	for i := 1; i <= 6; i++ {
		price += 5
		var orders []OrderRequest
		state, orders = e.OnBar(state, makeBar(i, price))
		for _, o := range orders {
			if o.Kind == KindAddUnit {
				state, _, _ = e.OnEntryFilled(state, Fill{OrderID: o.ID, Price: price, Qty: o.Qty})
			}
		}
		assert.LessOrEqual(t, state.PyramidLevels, 2)
	}
	assert.Equal(t, 2, state.PyramidLevels)

	state, err := e.OnStopFilled(state, Fill{Price: 110, Qty: state.Quantity})
	require.NoError(t, err)
	assert.True(t, state.IsFlat())
	assert.Equal(t, 0, state.PyramidLevels)
	assert.Zero(t, state.ReferencePrice)
	assert.False(t, state.LastWasProfitable)
}

func TestPyramid_ExitBeforeAdd(t *testing.T) {
	desc := pyramidDescriptor(4)
	exit := false
	desc.ShouldExit = func(*Context) (bool, error) { return exit, nil }
	e := newTestEngine(t, desc)

	state := openLong(t, e, NewState(), 0, 100)
	exit = true
	state, orders := e.OnBar(state, makeBar(1, 110))
	require.Len(t, orders, 1)
	assert.Equal(t, KindLiquidate, orders[0].Kind)
	assert.Nil(t, state.PendingAdd)
	assert.Equal(t, 0, state.PyramidLevels)
}

func TestPyramid_LevelsKeptWhileClosing(t *testing.T) {
	desc := pyramidDescriptor(1)
	exit := false
	desc.ShouldExit = func(*Context) (bool, error) { return exit, nil }
	e := newTestEngine(t, desc)

	state := openLong(t, e, NewState(), 0, 100)
	state, orders := e.OnBar(state, makeBar(1, 103))
	require.Len(t, orders, 1)
	require.Equal(t, KindAddUnit, orders[0].Kind)
	state, _, err := e.OnEntryFilled(state, Fill{OrderID: orders[0].ID, Price: 103, Qty: orders[0].Qty})
	require.NoError(t, err)
	require.Equal(t, 1, state.PyramidLevels)

	exit = true
	state, orders = e.OnBar(state, makeBar(2, 104))
	require.Len(t, orders, 1)
	assert.Equal(t, KindLiquidate, orders[0].Kind)
	assert.True(t, state.Closing)
	assert.Equal(t, 1, state.PyramidLevels)

	// 平倉請求未送達，主機清除 Closing 後重新評估
	state.Closing = false
	exit = false
	state, orders = e.OnBar(state, makeBar(3, 110))
	assert.Empty(t, orders)
	assert.Nil(t, state.PendingAdd)
	assert.Equal(t, 1, state.PyramidLevels)

	state, err = e.OnLiquidated(state, Fill{Price: 110, Qty: state.Quantity})
	require.NoError(t, err)
	assert.True(t, state.IsFlat())
	assert.Equal(t, 0, state.PyramidLevels)
}

func TestSuppressAfterWin(t *testing.T) {
	sw := &switches{filter: true, long: true}
	desc := sw.descriptor()
	desc.SuppressAfterWin = func(Params) bool { return true }
	e := newTestEngine(t, desc)

	state := openLong(t, e, NewState(), 0, 100)
	state, err := e.OnTargetFilled(state, Fill{Price: 120, Qty: state.Quantity})
	require.NoError(t, err)
	assert.True(t, state.LastWasProfitable)

	// 獲利後的第一個信號被跳過，旗標被消耗
	state, orders := e.OnBar(state, makeBar(1, 120))
	assert.Empty(t, orders)
	assert.False(t, state.LastWasProfitable)

	_, orders = e.OnBar(state, makeBar(2, 120))
	require.Len(t, orders, 1)
	assert.Equal(t, KindEntry, orders[0].Kind)
}

func TestNewEngine_ConfigurationErrors(t *testing.T) {
	tests := []struct {
		name      string
		desc      Descriptor
		overrides map[string]any
	}{
		{"missing name", Descriptor{ShouldLong: Always, Sizing: FullAllocation(-1)}, nil},
		{"missing predicates", Descriptor{Name: "x", Sizing: FullAllocation(-1)}, nil},
		{"missing sizing", Descriptor{Name: "x", ShouldLong: Always}, nil},
		{"unknown param", Descriptor{Name: "x", ShouldLong: Always, Sizing: FullAllocation(-1)}, map[string]any{"nope": 1}},
		{"out of range", Descriptor{
			Name: "x", ShouldLong: Always, Sizing: FullAllocation(-1),
			Params: []ParamSpec{{Name: "period", Type: ParamInt, Min: 2, Max: 10, Default: 5}},
		}, map[string]any{"period": 11}},
		{"validate", Descriptor{
			Name: "x", ShouldLong: Always, Sizing: FullAllocation(-1),
			Validate: func(Params) error { return errors.New("fast must be < slow") },
		}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewEngine(tt.desc, tt.overrides, nil)
			require.Error(t, err)
			assert.True(t, IsConfigurationError(err))
		})
	}
}

func TestSnapshot(t *testing.T) {
	sw := &switches{filter: true, long: true}
	e := newTestEngine(t, sw.descriptor())

	state, _ := e.OnBar(NewState(), makeBar(0, 100))
	snap := e.Snapshot(state)
	assert.Equal(t, "test", snap["strategy"])
	assert.Equal(t, "FLAT", snap["side"])
	assert.Contains(t, snap, "pending")
}
