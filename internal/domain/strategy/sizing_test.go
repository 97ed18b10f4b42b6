package strategy

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRiskToQty(t *testing.T) {
	tests := []struct {
		name          string
		balance, risk float64
		entry, stop   float64
		want          float64
		wantErr       bool
	}{
		{"long example", 10000, 2, 100, 90, 20, false},
		{"short example", 10000, 2, 90, 100, 20, false},
		{"entry equals stop", 10000, 2, 100, 100, 0, true},
		{"zero risk", 10000, 0, 100, 90, 0, true},
		{"negative balance", -10000, 2, 100, 90, 0, true},
		{"NaN", math.NaN(), 2, 100, 90, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RiskToQty(tt.balance, tt.risk, tt.entry, tt.stop)
			if tt.wantErr {
				assert.True(t, IsSizingError(err), "expected SizingError, got %v", err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestSizeToQty(t *testing.T) {
	got, err := SizeToQty(1000, 50, 0.001, -1)
	require.NoError(t, err)
	assert.InDelta(t, 19.96, got, 0.001)

	// 手續費被計入：名目價值不超過餘額
	assert.LessOrEqual(t, got*50, 1000.0)

	floored, err := SizeToQty(1000, 50, 0.001, 3)
	require.NoError(t, err)
	assert.Equal(t, 19.96, floored)

	_, err = SizeToQty(0, 50, 0.001, 3)
	assert.True(t, IsSizingError(err))

	// 取整後為 0
	_, err = SizeToQty(1, 50000, 0, 3)
	assert.True(t, IsSizingError(err))

	_, err = SizeToQty(1000, 0, 0, 3)
	assert.True(t, IsSizingError(err))
}

func TestVolatilityUnit(t *testing.T) {
	got, err := VolatilityUnit(10000, 1, 5, 1)
	require.NoError(t, err)
	assert.InDelta(t, 20.0, got, 1e-9)

	got, err = VolatilityUnit(10000, 1, 5, 10)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, got, 1e-9)

	_, err = VolatilityUnit(10000, 1, 0, 1)
	assert.True(t, IsSizingError(err))
}

func TestCheckMargin(t *testing.T) {
	assert.NoError(t, CheckMargin(20, 100, 2000))
	assert.True(t, IsSizingError(CheckMargin(20.01, 100, 2000)))
	assert.True(t, IsSizingError(CheckMargin(0, 100, 2000)))
	assert.True(t, IsSizingError(CheckMargin(-1, 100, 2000)))
}
