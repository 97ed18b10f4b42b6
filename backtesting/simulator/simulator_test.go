package simulator

import (
	"testing"
	"time"

	"dizzycode.xyz/strategy-engine/internal/domain/strategy"
	"dizzycode.xyz/strategy-engine/internal/domain/value_objects"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	OKXTakerFeeRate = 0.0005 // OKX Taker 手續費：0.05%
)

var t0 = time.Date(2024, 9, 30, 0, 0, 0, 0, time.UTC)

func candle(open, high, low, close float64) value_objects.Candle {
	return value_objects.MustCandle(open, high, low, close, 1, t0)
}

func TestPnLCalculator_CalculatePnL(t *testing.T) {
	calc := NewPnLCalculator()

	tests := []struct {
		name       string
		side       strategy.Side
		closePrice float64
		basePrice  float64
		qty        float64
		amount     float64
		percent    float64
	}{
		{"long profit", strategy.Long, 2510, 2500, 0.08, 0.8, 0.4},
		{"long loss", strategy.Long, 2490, 2500, 0.08, -0.8, -0.4},
		{"short profit", strategy.Short, 2490, 2500, 0.08, 0.8, 0.4},
		{"short loss", strategy.Short, 2510, 2500, 0.08, -0.8, -0.4},
		{"zero base", strategy.Long, 2510, 0, 0.08, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			amount, percent := calc.CalculatePnL(tt.side, tt.closePrice, tt.basePrice, tt.qty)
			assert.InDelta(t, tt.amount, amount, 1e-9)
			assert.InDelta(t, tt.percent, percent, 1e-9)
		})
	}
}

func TestPnLCalculator_AveragePrice(t *testing.T) {
	calc := NewPnLCalculator()
	assert.InDelta(t, 101.25, calc.AveragePrice(100, 10, 102.5, 10), 1e-9)
	assert.InDelta(t, 102.5, calc.AveragePrice(0, 0, 102.5, 10), 1e-9)
	assert.Equal(t, 0.0, calc.AveragePrice(0, 0, 102.5, 0))
	assert.InDelta(t, 0.4, calc.CalculatePriceChangePercent(2510, 2500), 1e-9)
}

func TestOrderSimulator_SimulateOpen_Market(t *testing.T) {
	sim := NewOrderSimulator(OKXTakerFeeRate, 0)
	req := strategy.OrderRequest{Kind: strategy.KindEntry, Side: strategy.Long, Type: strategy.Market, Qty: 2}

	exec, ok, err := sim.SimulateOpen(req, candle(99, 101, 98, 100), 1000)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 100.0, exec.Price)
	assert.InDelta(t, 200.0, exec.Notional, 1e-9)
	assert.InDelta(t, 0.1, exec.Fee, 1e-9)
}

func TestOrderSimulator_Slippage(t *testing.T) {
	sim := NewOrderSimulator(OKXTakerFeeRate, 0.001)
	c := candle(99, 101, 98, 100)

	long, _, err := sim.SimulateOpen(strategy.OrderRequest{Side: strategy.Long, Type: strategy.Market, Qty: 1}, c, 1000)
	require.NoError(t, err)
	assert.InDelta(t, 100.1, long.Price, 1e-9)

	short, _, err := sim.SimulateOpen(strategy.OrderRequest{Side: strategy.Short, Type: strategy.Market, Qty: 1}, c, 1000)
	require.NoError(t, err)
	assert.InDelta(t, 99.9, short.Price, 1e-9)

	// 平多是賣出
	exit, err := sim.SimulateClose(strategy.Long, 100, 1, true)
	require.NoError(t, err)
	assert.InDelta(t, 99.9, exit.Price, 1e-9)

	// 止損價不套用滑點
	exit, err = sim.SimulateClose(strategy.Long, 95, 1, false)
	require.NoError(t, err)
	assert.Equal(t, 95.0, exit.Price)
}

func TestOrderSimulator_SimulateOpen_InsufficientBalance(t *testing.T) {
	sim := NewOrderSimulator(OKXTakerFeeRate, 0)
	req := strategy.OrderRequest{Side: strategy.Long, Type: strategy.Market, Qty: 2}

	_, ok, err := sim.SimulateOpen(req, candle(99, 101, 98, 100), 100)
	require.Error(t, err)
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	assert.Contains(t, err.Error(), "insufficient balance")
}

func TestOrderSimulator_SimulateOpen_Limit(t *testing.T) {
	sim := NewOrderSimulator(OKXTakerFeeRate, 0.01)
	req := strategy.OrderRequest{Side: strategy.Long, Type: strategy.Limit, Qty: 1, Price: 95}

	_, ok, err := sim.SimulateOpen(req, candle(99, 101, 96, 100), 1000)
	require.NoError(t, err)
	assert.False(t, ok, "candle did not touch the limit")

	exec, ok, err := sim.SimulateOpen(req, candle(99, 101, 94, 100), 1000)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 95.0, exec.Price, "limit fills at the limit price without slippage")
}

func TestOrderSimulator_SimulateClose_Invalid(t *testing.T) {
	sim := NewOrderSimulator(OKXTakerFeeRate, 0)
	_, err := sim.SimulateClose(strategy.Long, 0, 1, false)
	assert.Error(t, err)
	_, err = sim.SimulateClose(strategy.Long, 100, 0, false)
	assert.Error(t, err)
}

func TestOrderSimulator_CheckProtective(t *testing.T) {
	sim := NewOrderSimulator(OKXTakerFeeRate, 0)

	tests := []struct {
		name   string
		side   strategy.Side
		stop   float64
		target float64
		candle value_objects.Candle
		kind   ExitKind
		price  float64
	}{
		{"long untouched", strategy.Long, 95, 110, candle(100, 105, 96, 101), ExitNone, 0},
		{"long target", strategy.Long, 95, 110, candle(100, 111, 96, 109), ExitTarget, 110},
		{"long stop", strategy.Long, 95, 110, candle(100, 105, 94, 96), ExitStop, 95},
		{"long both touched stop wins", strategy.Long, 95, 110, candle(100, 111, 94, 100), ExitStop, 95},
		{"long gap below stop", strategy.Long, 95, 110, candle(90, 92, 88, 91), ExitStop, 90},
		{"long without target", strategy.Long, 95, 0, candle(100, 200, 96, 150), ExitNone, 0},
		{"short stop", strategy.Short, 105, 90, candle(100, 106, 99, 104), ExitStop, 105},
		{"short target", strategy.Short, 105, 90, candle(100, 101, 89, 92), ExitTarget, 90},
		{"short gap above stop", strategy.Short, 105, 90, candle(110, 112, 108, 111), ExitStop, 110},
		{"flat", strategy.Flat, 95, 110, candle(100, 111, 94, 100), ExitNone, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, price := sim.CheckProtective(tt.side, tt.stop, tt.target, tt.candle)
			assert.Equal(t, tt.kind, kind)
			assert.Equal(t, tt.price, price)
		})
	}
}

func TestPositionTracker_PyramidAndClose(t *testing.T) {
	pt := NewPositionTracker()
	assert.False(t, pt.IsOpen())

	first, err := pt.Open(strategy.Long, Execution{Price: 100, Qty: 10, Fee: 0.5}, t0)
	require.NoError(t, err)
	assert.Equal(t, "pos_1_1", first.ID)

	second, err := pt.Open(strategy.Long, Execution{Price: 102.5, Qty: 10, Fee: 0.5125}, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "pos_1_2", second.ID)

	assert.Equal(t, strategy.Long, pt.Side())
	assert.InDelta(t, 101.25, pt.AverageCost(), 1e-9)
	assert.InDelta(t, 20.0, pt.TotalQty(), 1e-9)
	assert.InDelta(t, 2025.0, pt.CostBasis(), 1e-9)
	assert.InDelta(t, 73.95, pt.CalculateUnrealizedPnL(105, OKXTakerFeeRate), 1e-9)

	_, err = pt.Open(strategy.Short, Execution{Price: 100, Qty: 1}, t0)
	assert.Error(t, err, "opposite side while open")

	trade, err := pt.Close(Execution{Price: 110, Qty: 20, Fee: 1.1}, t0.Add(3*time.Hour), "target")
	require.NoError(t, err)
	assert.Equal(t, "pos_1", trade.PositionID)
	assert.Equal(t, 2, trade.Units)
	assert.InDelta(t, 175.0, trade.GrossPnL, 1e-9)
	assert.InDelta(t, 2.1125, trade.Fees, 1e-9)
	assert.InDelta(t, 172.8875, trade.RealizedPnL, 1e-9)
	assert.InDelta(t, 8.641975, trade.PnLPercent, 1e-6)
	assert.Equal(t, 3*time.Hour, trade.HoldDuration)

	assert.False(t, pt.IsOpen())
	assert.Equal(t, strategy.Flat, pt.Side())
	assert.Equal(t, 0.0, pt.CalculateUnrealizedPnL(105, OKXTakerFeeRate))
	assert.Equal(t, 3*time.Hour, pt.GetAverageHoldDuration())

	// 下一輪使用新的持倉ID
	unit, err := pt.Open(strategy.Short, Execution{Price: 100, Qty: 1}, t0)
	require.NoError(t, err)
	assert.Equal(t, "pos_2_1", unit.ID)
}

func TestPositionTracker_CloseWithoutPosition(t *testing.T) {
	pt := NewPositionTracker()
	_, err := pt.Close(Execution{Price: 100, Qty: 1}, t0, "stop")
	assert.ErrorIs(t, err, ErrNoOpenPosition)

	_, err = pt.Open(strategy.Flat, Execution{Price: 100, Qty: 1}, t0)
	assert.Error(t, err)
}
