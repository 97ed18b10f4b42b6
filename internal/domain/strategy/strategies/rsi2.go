package strategies

import "dizzycode.xyz/strategy-engine/internal/domain/strategy"

// RSI2 Connors RSI(2) 均值回歸
//
// 價格在 SMA(200) 之上且 RSI(2) 超賣時做多，價格回到 SMA(5) 之上平倉；做空鏡像。
func RSI2() strategy.Descriptor {
	return strategy.Descriptor{
		Name:        "rsi2",
		Description: "Connors RSI(2) mean reversion",
		Params: []strategy.ParamSpec{
			intParam("fast_sma_period", 2, 50, 5),
			intParam("slow_sma_period", 50, 400, 200),
			intParam("rsi_period", 2, 14, 2),
			floatParam("rsi_ob_threshold", 50, 100, 90),
			floatParam("rsi_os_threshold", 0, 50, 10),
		},
		ShouldLong: func(ctx *strategy.Context) (bool, error) {
			slow, err := sma(ctx, ctx.Params().Int("slow_sma_period"))
			if err != nil {
				return false, err
			}
			r, err := rsi(ctx, ctx.Params().Int("rsi_period"))
			if err != nil {
				return false, err
			}
			return ctx.Price() > slow && r <= ctx.Params().Float("rsi_os_threshold"), nil
		},
		ShouldShort: func(ctx *strategy.Context) (bool, error) {
			slow, err := sma(ctx, ctx.Params().Int("slow_sma_period"))
			if err != nil {
				return false, err
			}
			r, err := rsi(ctx, ctx.Params().Int("rsi_period"))
			if err != nil {
				return false, err
			}
			return ctx.Price() < slow && r >= ctx.Params().Float("rsi_ob_threshold"), nil
		},
		ShouldExit: func(ctx *strategy.Context) (bool, error) {
			fast, err := sma(ctx, ctx.Params().Int("fast_sma_period"))
			if err != nil {
				return false, err
			}
			price := ctx.Price()
			return (isLong(ctx) && price > fast) || (isShort(ctx) && price < fast), nil
		},
		Sizing: strategy.FullAllocation(qtyPrecision),
	}
}
