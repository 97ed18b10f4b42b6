package strategies

import (
	"fmt"

	"dizzycode.xyz/strategy-engine/internal/domain/indicator"
	"dizzycode.xyz/strategy-engine/internal/domain/strategy"
)

// 全額配置時數量取到小數點後 3 位
const qtyPrecision = 3

func intParam(name string, lo, hi float64, def int) strategy.ParamSpec {
	return strategy.ParamSpec{Name: name, Type: strategy.ParamInt, Min: lo, Max: hi, Default: def}
}

func floatParam(name string, lo, hi, def float64) strategy.ParamSpec {
	return strategy.ParamSpec{Name: name, Type: strategy.ParamFloat, Min: lo, Max: hi, Default: def}
}

func closes(ctx *strategy.Context) ([]float64, error) {
	return ctx.Series(indicator.SourceClose)
}

func sma(ctx *strategy.Context, period int) (float64, error) {
	return strategy.Cached(ctx, fmt.Sprintf("sma.%d", period), func() (float64, error) {
		src, err := closes(ctx)
		if err != nil {
			return 0, err
		}
		return indicator.SMA(src, period)
	})
}

func ema(ctx *strategy.Context, period int) (float64, error) {
	return strategy.Cached(ctx, fmt.Sprintf("ema.%d", period), func() (float64, error) {
		src, err := closes(ctx)
		if err != nil {
			return 0, err
		}
		return indicator.EMA(src, period)
	})
}

func rsiSeries(ctx *strategy.Context, period int) ([]float64, error) {
	return strategy.Cached(ctx, fmt.Sprintf("rsi.%d", period), func() ([]float64, error) {
		src, err := closes(ctx)
		if err != nil {
			return nil, err
		}
		return indicator.RSISeries(src, period)
	})
}

func rsi(ctx *strategy.Context, period int) (float64, error) {
	series, err := rsiSeries(ctx, period)
	if err != nil {
		return 0, err
	}
	return indicator.Last(series)
}

func atr(ctx *strategy.Context, period int) (float64, error) {
	return strategy.Cached(ctx, fmt.Sprintf("atr.%d", period), func() (float64, error) {
		high, low, close, err := ctx.OHLC()
		if err != nil {
			return 0, err
		}
		return indicator.ATR(high, low, close, period)
	})
}

// atrFrom 以參數決定週期的 ATR
func atrFrom(periodParam string) strategy.VolatilityFunc {
	return func(ctx *strategy.Context) (float64, error) {
		return atr(ctx, ctx.Params().Int(periodParam))
	}
}

// previousDonchian 不含當根K線的唐奇安通道
func previousDonchian(ctx *strategy.Context, period int) (indicator.Bands, error) {
	return strategy.Cached(ctx, fmt.Sprintf("donchian.prev.%d", period), func() (indicator.Bands, error) {
		high, low, _, err := ctx.OHLC()
		if err != nil {
			return indicator.Bands{}, err
		}
		if len(high) < 2 {
			return indicator.Bands{}, fmt.Errorf("donchian needs a previous candle: %w", strategy.ErrInsufficientHistory)
		}
		return indicator.Donchian(high[:len(high)-1], low[:len(low)-1], period)
	})
}

func ichimoku(ctx *strategy.Context, p indicator.IchimokuParams) (indicator.Cloud, error) {
	key := fmt.Sprintf("ichimoku.%d.%d.%d.%d", p.Conversion, p.Base, p.Lagging, p.Displacement)
	return strategy.Cached(ctx, key, func() (indicator.Cloud, error) {
		high, low, _, err := ctx.OHLC()
		if err != nil {
			return indicator.Cloud{}, err
		}
		return indicator.Ichimoku(high, low, p)
	})
}

// aboveCloud 收盤價位於雲層之上
func aboveCloud(p indicator.IchimokuParams) strategy.Filter {
	return func(ctx *strategy.Context) (bool, error) {
		cloud, err := ichimoku(ctx, p)
		if err != nil {
			return false, err
		}
		return cloud.Above(ctx.Price()), nil
	}
}

// atrStops 以 ATR 倍數計算止損（及可選止盈）的開倉計劃
func atrStops(side strategy.Side, periodParam, stopParam, targetParam string) strategy.Planner {
	return func(ctx *strategy.Context) (strategy.EntryPlan, error) {
		vol, err := atr(ctx, ctx.Params().Int(periodParam))
		if err != nil {
			return strategy.EntryPlan{}, err
		}
		price := ctx.Price()
		sign := side.Sign()
		plan := strategy.EntryPlan{
			Type:  strategy.Market,
			Price: price,
			Stop:  price - sign*vol*ctx.Params().Float(stopParam),
		}
		if targetParam != "" {
			plan.Target = price + sign*vol*ctx.Params().Float(targetParam)
		}
		return plan, nil
	}
}

func isLong(ctx *strategy.Context) bool  { return ctx.Side() == strategy.Long }
func isShort(ctx *strategy.Context) bool { return ctx.Side() == strategy.Short }
