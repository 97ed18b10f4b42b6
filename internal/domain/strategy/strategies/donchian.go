package strategies

import "dizzycode.xyz/strategy-engine/internal/domain/strategy"

// Donchian 唐奇安通道趨勢跟隨（只做多）
// 收盤突破前一根的上軌入場，跌破下軌出場；SMA(200) 之上才允許入場。
func Donchian() strategy.Descriptor {
	return strategy.Descriptor{
		Name:        "donchian",
		Description: "Donchian channel breakout with long-term trend filter",
		Params: []strategy.ParamSpec{
			intParam("donchian_period", 5, 100, 20),
			intParam("trend_period", 50, 400, 200),
		},
		Filters: []strategy.Filter{
			func(ctx *strategy.Context) (bool, error) {
				trend, err := sma(ctx, ctx.Params().Int("trend_period"))
				if err != nil {
					return false, err
				}
				return ctx.Price() > trend, nil
			},
		},
		ShouldLong: func(ctx *strategy.Context) (bool, error) {
			dc, err := previousDonchian(ctx, ctx.Params().Int("donchian_period"))
			if err != nil {
				return false, err
			}
			return ctx.Price() > dc.Upper, nil
		},
		ShouldExit: func(ctx *strategy.Context) (bool, error) {
			dc, err := previousDonchian(ctx, ctx.Params().Int("donchian_period"))
			if err != nil {
				return false, err
			}
			return ctx.Price() < dc.Lower, nil
		},
		Sizing:       strategy.FullAllocation(qtyPrecision),
		CancelPolicy: strategy.Always,
	}
}
