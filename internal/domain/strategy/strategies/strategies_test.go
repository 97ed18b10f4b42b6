package strategies

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dizzycode.xyz/strategy-engine/internal/domain/indicator"
	"dizzycode.xyz/strategy-engine/internal/domain/strategy"
	"dizzycode.xyz/strategy-engine/internal/domain/value_objects"
)

var testAccount = strategy.Account{Balance: 10000, AvailableMargin: 10000, FeeRate: 0.001}

// candlesFromCloses 以前一根收盤價為開盤價，高低點各外擴 0.1
func candlesFromCloses(closes []float64) []value_objects.Candle {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]value_objects.Candle, len(closes))
	for i, c := range closes {
		open := c
		if i > 0 {
			open = closes[i-1]
		}
		high := math.Max(open, c) + 0.1
		low := math.Min(open, c) - 0.1
		out[i] = value_objects.MustCandle(open, high, low, c, 10, start.Add(time.Duration(i)*time.Hour))
	}
	return out
}

func barAt(candles []value_objects.Candle, i int) strategy.Bar {
	return strategy.Bar{
		Index:   i,
		Candles: candles[:i+1],
		Account: testAccount,
		Time:    candles[i].Timestamp(),
	}
}

func TestRegistry_AllDefaultsResolve(t *testing.T) {
	names := Names()
	require.Len(t, names, 11)

	for _, name := range names {
		t.Run(name, func(t *testing.T) {
			e, err := New(name, nil, nil)
			require.NoError(t, err)
			assert.Equal(t, name, e.Name())
		})
	}
}

func TestRegistry_Unknown(t *testing.T) {
	_, err := New("grid", nil, nil)
	require.Error(t, err)
	assert.True(t, strategy.IsConfigurationError(err))
}

func TestRegistry_OverrideOutOfRange(t *testing.T) {
	_, err := New("dual_thrust", map[string]any{"stop_loss_atr_rate": 2.5}, nil)
	assert.True(t, strategy.IsConfigurationError(err))

	_, err = New("sma_crossover", map[string]any{"fast_period": 60, "slow_period": 50}, nil)
	assert.True(t, strategy.IsConfigurationError(err))
}

// rsi2Series 長期上漲後連續兩根下跌
func rsi2Series() []float64 {
	closes := make([]float64, 0, 213)
	for i := 0; i < 210; i++ {
		closes = append(closes, 80+0.2*float64(i))
	}
	last := closes[len(closes)-1]
	return append(closes, last-1, last-2)
}

func TestRSI2_Scenario(t *testing.T) {
	closes := rsi2Series()
	closes = append(closes, 125) // 反彈到 SMA(5) 之上
	candles := candlesFromCloses(closes)

	e, err := New("rsi2", nil, nil)
	require.NoError(t, err)

	entryBar := len(closes) - 2
	src := closes[:entryBar+1]
	slow, err := indicator.SMA(src, 200)
	require.NoError(t, err)
	r, err := indicator.RSI(src, 2)
	require.NoError(t, err)
	require.Greater(t, closes[entryBar], slow)
	require.LessOrEqual(t, r, 10.0)

	state := strategy.NewState()
	state, orders := e.OnBar(state, barAt(candles, entryBar))
	require.Len(t, orders, 1)
	entry := orders[0]
	assert.Equal(t, strategy.KindEntry, entry.Kind)
	assert.Equal(t, strategy.Long, entry.Side)
	assert.Equal(t, closes[entryBar], entry.Price)

	state, _, err = e.OnEntryFilled(state, strategy.Fill{OrderID: entry.ID, Price: entry.Price, Qty: entry.Qty})
	require.NoError(t, err)
	assert.Equal(t, strategy.Long, state.Side)

	state, orders = e.OnBar(state, barAt(candles, entryBar+1))
	require.Len(t, orders, 1)
	assert.Equal(t, strategy.KindLiquidate, orders[0].Kind)
	assert.True(t, state.Closing)
}

func TestRSI2_InsufficientHistory(t *testing.T) {
	closes := rsi2Series()[:150]
	candles := candlesFromCloses(closes)

	e, err := New("rsi2", nil, nil)
	require.NoError(t, err)

	for i := range candles {
		_, orders := e.OnBar(strategy.NewState(), barAt(candles, i))
		assert.Empty(t, orders)
	}
}

func turtleCandles() []value_objects.Candle {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	var candles []value_objects.Candle
	for i := 0; i < 30; i++ {
		candles = append(candles, value_objects.MustCandle(100, 101, 99, 100, 1, start.Add(time.Duration(i)*time.Hour)))
	}
	// 區間內
	candles = append(candles, value_objects.MustCandle(100, 100.5, 99.5, 100, 1, start.Add(30*time.Hour)))
	// 突破
	candles = append(candles, value_objects.MustCandle(100, 106, 99.5, 105, 1, start.Add(31*time.Hour)))
	return candles
}

func TestTurtle_BreakoutEntry(t *testing.T) {
	candles := turtleCandles()
	e, err := New("turtle", nil, nil)
	require.NoError(t, err)

	i := len(candles) - 1
	_, orders := e.OnBar(strategy.NewState(), barAt(candles, i))
	require.Len(t, orders, 1)
	entry := orders[0]
	assert.Equal(t, strategy.Long, entry.Side)

	high, low, close := make([]float64, len(candles)), make([]float64, len(candles)), make([]float64, len(candles))
	for j, c := range candles {
		high[j], low[j], close[j] = c.High().Value(), c.Low().Value(), c.Close().Value()
	}
	n, err := indicator.ATR(high, low, close, 20)
	require.NoError(t, err)

	assert.InDelta(t, 105-2*n, entry.Stop, 1e-9)
	assert.InDelta(t, 0.01*testAccount.Balance/n, entry.Qty, 1e-6)
}

func TestTurtle_NoBreakoutNoEntry(t *testing.T) {
	candles := turtleCandles()
	e, err := New("turtle", nil, nil)
	require.NoError(t, err)

	_, orders := e.OnBar(strategy.NewState(), barAt(candles, len(candles)-2))
	assert.Empty(t, orders)
}

func TestTVRSI_EntryPlan(t *testing.T) {
	// 先跌後漲，讓 RSI 由超賣回升
	var closes []float64
	for i := 0; i < 30; i++ {
		closes = append(closes, 200-2*float64(i))
	}
	for i := 1; i <= 20; i++ {
		closes = append(closes, closes[29]+3*float64(i))
	}
	candles := candlesFromCloses(closes)

	values, err := indicator.RSISeries(closes, 14)
	require.NoError(t, err)

	crossBar := -1
	for i := 16; i < len(closes); i++ {
		if values[i-1] <= 35 && values[i] > 35 {
			crossBar = i
			break
		}
	}
	require.NotEqual(t, -1, crossBar, "data must contain an RSI cross above 35")

	e, err := New("tv_rsi", nil, nil)
	require.NoError(t, err)

	state := strategy.NewState()
	for i := 0; i < crossBar; i++ {
		var orders []strategy.OrderRequest
		state, orders = e.OnBar(state, barAt(candles, i))
		require.Empty(t, orders, "bar %d", i)
	}

	_, orders := e.OnBar(state, barAt(candles, crossBar))
	require.Len(t, orders, 1)
	price := closes[crossBar]
	assert.InDelta(t, price*0.95, orders[0].Stop, 1e-9)
	assert.InDelta(t, price*1.10, orders[0].Target, 1e-9)
	// 取整到 3 位小數
	assert.InDelta(t, math.Round(orders[0].Qty*1000)/1000, orders[0].Qty, 1e-9)
}

func TestDualThrust_Bands(t *testing.T) {
	closes := make([]float64, 40)
	for i := range closes {
		closes[i] = 100 + float64(i%5)
	}
	candles := candlesFromCloses(closes)

	e, err := New("dual_thrust", map[string]any{"up_length": 5, "down_length": 5, "anchor_bars": 1}, nil)
	require.NoError(t, err)

	// 最後一根收盤 104，開盤 103；range = max(104-(100-0.1), (104+0.1)-100) = 4.1
	// 上軌 = 103 + 0.71 × 4.1 ≈ 105.9 > 104，下軌 = 103 − 0.67 × 4.1 ≈ 100.25 < 104
	bar := barAt(candles, len(candles)-1)
	assert.False(t, e.ShouldEnterLong(strategy.NewState(), bar))
	assert.False(t, e.ShouldEnterShort(strategy.NewState(), bar))

	// range = 120 − 99.9 = 20.1，上軌 = 104 + 0.71 × 20.1 ≈ 118.3
	breakout := append(append([]float64{}, closes...), 120)
	candles = candlesFromCloses(breakout)
	bar = barAt(candles, len(candles)-1)
	assert.True(t, e.ShouldEnterLong(strategy.NewState(), bar))
}

func TestDonchian_RequiresTrendHistory(t *testing.T) {
	closes := make([]float64, 100)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	candles := candlesFromCloses(closes)

	e, err := New("donchian", nil, nil)
	require.NoError(t, err)

	// SMA(200) 不足：過濾條件為 false
	bar := barAt(candles, len(candles)-1)
	assert.False(t, e.EvaluateFilters(strategy.NewState(), bar))
	assert.True(t, e.ShouldEnterLong(strategy.NewState(), bar))

	_, orders := e.OnBar(strategy.NewState(), bar)
	assert.Empty(t, orders)
}

func TestMACDEMA_LongInUptrend(t *testing.T) {
	closes := make([]float64, 160)
	for i := range closes {
		// 加速上漲：MACD 在訊號線之上
		closes[i] = 100 + 0.01*float64(i*i)
	}
	candles := candlesFromCloses(closes)

	e, err := New("macd_ema", nil, nil)
	require.NoError(t, err)

	_, orders := e.OnBar(strategy.NewState(), barAt(candles, len(candles)-1))
	require.Len(t, orders, 1)
	assert.Equal(t, strategy.Long, orders[0].Side)
}

func TestBollinger_NeedsIchimokuHistory(t *testing.T) {
	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	candles := candlesFromCloses(closes)

	e, err := New("bollinger", nil, nil)
	require.NoError(t, err)

	bar := barAt(candles, len(candles)-1)
	assert.False(t, e.EvaluateFilters(strategy.NewState(), bar))
}

func TestKDJ_EntryMatchesIndicator(t *testing.T) {
	closes := make([]float64, 80)
	for i := range closes {
		closes[i] = 100 + 5*math.Sin(float64(i)/4)
	}
	candles := candlesFromCloses(closes)

	high, low, close := make([]float64, len(candles)), make([]float64, len(candles)), make([]float64, len(candles))
	for j, c := range candles {
		high[j], low[j], close[j] = c.High().Value(), c.Low().Value(), c.Close().Value()
	}

	e, err := New("kdj", nil, nil)
	require.NoError(t, err)

	for i := 20; i < len(candles); i++ {
		res, err := indicator.KDJ(high[:i+1], low[:i+1], close[:i+1], 9, 3, 3)
		require.NoError(t, err)
		k, d, j := res.K[i], res.D[i], res.J[i]

		got := e.ShouldEnterLong(strategy.NewState(), barAt(candles, i))
		assert.Equal(t, j > k && j > d, got, "bar %d", i)
	}
}

func TestMAGen_Descriptor(t *testing.T) {
	desc := MAGen()
	assert.NotNil(t, desc.GoLong)
	assert.NotNil(t, desc.GoShort)
	assert.NotNil(t, desc.CancelPolicy)

	_, err := New("magen", map[string]any{"ma_type_fast": 9}, nil)
	assert.True(t, strategy.IsConfigurationError(err))
}

func TestMAGen_LookbackMustFitHistory(t *testing.T) {
	tests := []struct {
		name    string
		params  map[string]any
		wantErr bool
	}{
		{"defaults", nil, false},
		{"dema 100 fits", map[string]any{"ma_type_slow": int(indicator.MATypeDEMA), "ma_period_slow": 100}, false},
		{"dema 200 too long", map[string]any{"ma_type_slow": int(indicator.MATypeDEMA), "ma_period_slow": 200}, true},
		{"t3 100 too long", map[string]any{"ma_type_fast": int(indicator.MATypeT3), "ma_period_fast": 100}, true},
		{"t3 50 fits", map[string]any{"ma_type_fast": int(indicator.MATypeT3), "ma_period_fast": 50}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New("magen", tt.params, nil)
			if tt.wantErr {
				assert.True(t, strategy.IsConfigurationError(err), "got %v", err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestIFR2_FiltersNeedLongHistory(t *testing.T) {
	closes := rsi2Series()[:150]
	candles := candlesFromCloses(closes)

	e, err := New("ifr2", nil, nil)
	require.NoError(t, err)

	// 一目均衡表需要 120 + 60 根
	assert.False(t, e.EvaluateFilters(strategy.NewState(), barAt(candles, len(candles)-1)))
}
