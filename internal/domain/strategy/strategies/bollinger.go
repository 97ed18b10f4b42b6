package strategies

import (
	"fmt"

	"dizzycode.xyz/strategy-engine/internal/domain/indicator"
	"dizzycode.xyz/strategy-engine/internal/domain/strategy"
)

// Bollinger 布林通道突破（只做多）
// 雲層之上收盤突破 hl2 布林上軌入場，跌破中軌出場。
func Bollinger() strategy.Descriptor {
	return strategy.Descriptor{
		Name:        "bollinger",
		Description: "Bollinger upper-band breakout in an Ichimoku uptrend",
		Params: []strategy.ParamSpec{
			intParam("bb_period", 5, 100, 20),
			floatParam("bb_dev", 0.5, 4, 2),
		},
		Filters: []strategy.Filter{aboveCloud(indicator.DefaultIchimoku)},
		ShouldLong: func(ctx *strategy.Context) (bool, error) {
			bb, err := bands(ctx)
			if err != nil {
				return false, err
			}
			return ctx.Price() > bb.Upper, nil
		},
		ShouldExit: func(ctx *strategy.Context) (bool, error) {
			bb, err := bands(ctx)
			if err != nil {
				return false, err
			}
			return ctx.Price() < bb.Middle, nil
		},
		Sizing:       strategy.FullAllocation(qtyPrecision),
		CancelPolicy: strategy.Always,
	}
}

func bands(ctx *strategy.Context) (indicator.Bands, error) {
	period, dev := ctx.Params().Int("bb_period"), ctx.Params().Float("bb_dev")
	return strategy.Cached(ctx, fmt.Sprintf("bbands.hl2.%d.%v", period, dev), func() (indicator.Bands, error) {
		src, err := ctx.Series(indicator.SourceHL2)
		if err != nil {
			return indicator.Bands{}, err
		}
		return indicator.BollingerBands(src, period, dev, dev)
	})
}
