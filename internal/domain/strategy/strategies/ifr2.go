package strategies

import (
	"dizzycode.xyz/strategy-engine/internal/domain/indicator"
	"dizzycode.xyz/strategy-engine/internal/domain/strategy"
)

// 加密貨幣市場調整過的一目均衡表參數
var cryptoIchimoku = indicator.IchimokuParams{Conversion: 20, Base: 30, Lagging: 120, Displacement: 60}

// IFR2 RSI(2) 變體（只做多）
//
// 只在雲層之上且 Hilbert 趨勢模式為趨勢時入場；
// 收盤價高於前兩根K線的最高價時出場。
func IFR2() strategy.Descriptor {
	return strategy.Descriptor{
		Name:        "ifr2",
		Description: "RSI(2) with Ichimoku and Hilbert trend-mode filters",
		Params: []strategy.ParamSpec{
			intParam("rsi_period", 2, 14, 2),
			floatParam("rsi_threshold", 1, 50, 10),
		},
		Filters: []strategy.Filter{
			aboveCloud(cryptoIchimoku),
			func(ctx *strategy.Context) (bool, error) {
				src, err := closes(ctx)
				if err != nil {
					return false, err
				}
				mode, err := indicator.HTTrendMode(src)
				if err != nil {
					return false, err
				}
				return mode == 1, nil
			},
		},
		ShouldLong: func(ctx *strategy.Context) (bool, error) {
			r, err := rsi(ctx, ctx.Params().Int("rsi_period"))
			if err != nil {
				return false, err
			}
			return r < ctx.Params().Float("rsi_threshold"), nil
		},
		ShouldExit: func(ctx *strategy.Context) (bool, error) {
			highs, err := ctx.Series(indicator.SourceHigh)
			if err != nil {
				return false, err
			}
			prev1, err := indicator.Ago(highs, 1)
			if err != nil {
				return false, err
			}
			prev2, err := indicator.Ago(highs, 2)
			if err != nil {
				return false, err
			}
			return ctx.Price() > prev1 && ctx.Price() > prev2, nil
		},
		Sizing:       strategy.FullAllocation(qtyPrecision),
		CancelPolicy: strategy.Always,
	}
}
