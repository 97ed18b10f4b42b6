package strategies

import (
	"fmt"

	"dizzycode.xyz/strategy-engine/internal/domain/indicator"
	"dizzycode.xyz/strategy-engine/internal/domain/strategy"
)

// MACDEMA MACD 與 EMA(100) 趨勢策略（只做多）
func MACDEMA() strategy.Descriptor {
	return strategy.Descriptor{
		Name:        "macd_ema",
		Description: "MACD above signal while price is above the long EMA",
		Params: []strategy.ParamSpec{
			intParam("ema", 50, 200, 100),
			intParam("fastperiod", 10, 18, 12),
			intParam("slowperiod", 19, 36, 26),
			intParam("signalperiod", 3, 9, 9),
		},
		ShouldLong: func(ctx *strategy.Context) (bool, error) {
			m, sig, trend, err := macdEMA(ctx)
			if err != nil {
				return false, err
			}
			return ctx.Price() > trend && m > sig, nil
		},
		ShouldExit: func(ctx *strategy.Context) (bool, error) {
			m, sig, trend, err := macdEMA(ctx)
			if err != nil {
				return false, err
			}
			return m < sig && ctx.Price() < trend, nil
		},
		Sizing:       strategy.FullAllocation(qtyPrecision),
		CancelPolicy: strategy.Always,
	}
}

func macdEMA(ctx *strategy.Context) (macd, signal, trend float64, err error) {
	p := ctx.Params()
	key := fmt.Sprintf("macd.%d.%d.%d", p.Int("fastperiod"), p.Int("slowperiod"), p.Int("signalperiod"))
	res, err := strategy.Cached(ctx, key, func() (indicator.MACDResult, error) {
		src, err := closes(ctx)
		if err != nil {
			return indicator.MACDResult{}, err
		}
		return indicator.MACD(src, p.Int("fastperiod"), p.Int("slowperiod"), p.Int("signalperiod"))
	})
	if err != nil {
		return 0, 0, 0, err
	}
	if macd, err = indicator.Last(res.MACD); err != nil {
		return 0, 0, 0, err
	}
	if signal, err = indicator.Last(res.Signal); err != nil {
		return 0, 0, 0, err
	}
	if trend, err = ema(ctx, p.Int("ema")); err != nil {
		return 0, 0, 0, err
	}
	return macd, signal, trend, nil
}
