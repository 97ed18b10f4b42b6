package strategies

import (
	"dizzycode.xyz/strategy-engine/internal/domain/indicator"
	"dizzycode.xyz/strategy-engine/internal/domain/strategy"
)

// rsiCross RSI 穿越判斷，前一根也必須是有效的 RSI
func rsiCross(ctx *strategy.Context, level float64, dir indicator.Direction) (bool, error) {
	period := ctx.Params().Int("rsi_period")
	if err := ctx.RequireHistory(period + 2); err != nil {
		return false, err
	}
	series, err := rsiSeries(ctx, period)
	if err != nil {
		return false, err
	}
	return indicator.Crossed(series, level, dir)
}

// TVRSI RSI 趨勢策略（只做多）
//
//	做多：RSI 上穿 35
//	平倉：RSI 下穿 75
//	緊急出場：RSI 下穿 10
//
// 固定 5% 止損、10% 止盈。
func TVRSI() strategy.Descriptor {
	return strategy.Descriptor{
		Name:        "tv_rsi",
		Description: "RSI trend with fixed percentage stop and target",
		Params: []strategy.ParamSpec{
			intParam("rsi_period", 2, 50, 14),
			floatParam("entry_level", 1, 99, 35),
			floatParam("exit_level", 1, 99, 75),
			floatParam("emergency_level", 1, 99, 10),
			floatParam("stop_percent", 0.5, 50, 5),
			floatParam("target_percent", 0.5, 100, 10),
		},
		ShouldLong: func(ctx *strategy.Context) (bool, error) {
			return rsiCross(ctx, ctx.Params().Float("entry_level"), indicator.Above)
		},
		GoLong: func(ctx *strategy.Context) (strategy.EntryPlan, error) {
			price := ctx.Price()
			p := ctx.Params()
			return strategy.EntryPlan{
				Type:   strategy.Market,
				Price:  price,
				Stop:   price * (1 - p.Float("stop_percent")/100),
				Target: price * (1 + p.Float("target_percent")/100),
			}, nil
		},
		Sizing: strategy.FullAllocation(qtyPrecision),
		ShouldExit: func(ctx *strategy.Context) (bool, error) {
			overbought, err := rsiCross(ctx, ctx.Params().Float("exit_level"), indicator.Below)
			if err != nil {
				return false, err
			}
			emergency, err := rsiCross(ctx, ctx.Params().Float("emergency_level"), indicator.Below)
			if err != nil {
				return false, err
			}
			return overbought || emergency, nil
		},
	}
}
