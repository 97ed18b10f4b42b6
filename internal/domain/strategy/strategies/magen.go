package strategies

import (
	"fmt"

	"dizzycode.xyz/strategy-engine/internal/domain/indicator"
	"dizzycode.xyz/strategy-engine/internal/domain/strategy"
)

// MAGen 可調均線交叉 + ADX 強度
//
// 快線穿越慢線且 ADX 高於 adx_entry 時入場；均線反向排列且 ADX 低於 adx_exit 時出場。
// 均線類型與價格來源都是參數（類型 0..8 對應 talib MA 類型，來源 0=close .. 6=ohlc4）。
func MAGen() strategy.Descriptor {
	return strategy.Descriptor{
		Name:        "magen",
		Description: "Configurable moving-average cross confirmed by ADX",
		Params: []strategy.ParamSpec{
			floatParam("stop_loss_atr_rate", 1, 4, 2),
			floatParam("take_profit_atr_rate", 3, 20, 5),
			intParam("atr_period", 5, 40, 32),
			intParam("ma_period_slow", 3, 200, 20),
			intParam("ma_source_slow", 0, 6, 0),
			intParam("ma_period_fast", 3, 100, 5),
			intParam("ma_source_fast", 0, 6, 0),
			intParam("ma_type_slow", 0, 8, int(indicator.MATypeEMA)),
			intParam("ma_type_fast", 0, 8, int(indicator.MATypeEMA)),
			intParam("adx_period", 3, 60, 8),
			intParam("adx_exit", 3, 40, 15),
			intParam("adx_entry", 3, 40, 13),
		},
		Validate: func(p strategy.Params) error {
			for _, suffix := range []string{"fast", "slow"} {
				if err := maWindowFits(p, suffix); err != nil {
					return err
				}
			}
			return nil
		},
		ShouldLong: func(ctx *strategy.Context) (bool, error) {
			return maEntry(ctx, 1)
		},
		ShouldShort: func(ctx *strategy.Context) (bool, error) {
			return maEntry(ctx, -1)
		},
		GoLong:  atrStops(strategy.Long, "atr_period", "stop_loss_atr_rate", "take_profit_atr_rate"),
		GoShort: atrStops(strategy.Short, "atr_period", "stop_loss_atr_rate", "take_profit_atr_rate"),
		Sizing:  strategy.RiskNormalized(strategy.Const(3)),
		ShouldExit: func(ctx *strategy.Context) (bool, error) {
			fast, slow, err := maPair(ctx)
			if err != nil {
				return false, err
			}
			adx, err := adxValue(ctx)
			if err != nil {
				return false, err
			}
			f, s := fast[len(fast)-1], slow[len(slow)-1]
			weak := adx < ctx.Params().Float("adx_exit")
			return (isLong(ctx) && f < s && weak) || (isShort(ctx) && f > s && weak), nil
		},
		CancelPolicy: strategy.Always,
	}
}

func maSeries(ctx *strategy.Context, suffix string) ([]float64, error) {
	p := ctx.Params()
	period := p.Int("ma_period_" + suffix)
	maType := indicator.MAType(p.Int("ma_type_" + suffix))
	source, err := indicator.SourceFromIndex(p.Int("ma_source_" + suffix))
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("ma.%s.%d.%s", maType, period, source)
	return strategy.Cached(ctx, key, func() ([]float64, error) {
		// 交叉判斷需要前一根也是有效值
		need, err := maType.Lookback(period)
		if err != nil {
			return nil, err
		}
		if err := ctx.RequireHistory(need + 1); err != nil {
			return nil, err
		}
		src, err := ctx.Series(source)
		if err != nil {
			return nil, err
		}
		return indicator.MASeries(src, period, maType)
	})
}

// maWindowFits 均線（含前一根）必須放得進預設歷史窗口，否則永遠不會有訊號
func maWindowFits(p strategy.Params, suffix string) error {
	period := p.Int("ma_period_" + suffix)
	maType := indicator.MAType(p.Int("ma_type_" + suffix))
	need, err := maType.Lookback(period)
	if err != nil {
		return &strategy.ConfigurationError{Param: "ma_type_" + suffix, Reason: err.Error()}
	}
	if need+1 > strategy.DefaultHistoryLimit {
		return &strategy.ConfigurationError{
			Param: "ma_period_" + suffix,
			Reason: fmt.Sprintf("%s(%d) needs %d candles, history window is %d",
				maType, period, need+1, strategy.DefaultHistoryLimit),
		}
	}
	return nil
}

func maPair(ctx *strategy.Context) (fast, slow []float64, err error) {
	if fast, err = maSeries(ctx, "fast"); err != nil {
		return nil, nil, err
	}
	if slow, err = maSeries(ctx, "slow"); err != nil {
		return nil, nil, err
	}
	return fast, slow, nil
}

func adxValue(ctx *strategy.Context) (float64, error) {
	period := ctx.Params().Int("adx_period")
	return strategy.Cached(ctx, fmt.Sprintf("adx.%d", period), func() (float64, error) {
		high, low, close, err := ctx.OHLC()
		if err != nil {
			return 0, err
		}
		return indicator.ADX(high, low, close, period)
	})
}

// maEntry direction 1 = 快線上穿，-1 = 快線下穿
func maEntry(ctx *strategy.Context, direction int) (bool, error) {
	fast, slow, err := maPair(ctx)
	if err != nil {
		return false, err
	}

	dir := indicator.Above
	if direction < 0 {
		dir = indicator.Below
	}
	crossed, err := indicator.CrossedSeries(fast, slow, dir)
	if err != nil || !crossed {
		return false, err
	}

	adx, err := adxValue(ctx)
	if err != nil {
		return false, err
	}
	return adx > ctx.Params().Float("adx_entry"), nil
}
