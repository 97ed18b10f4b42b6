package strategies

import (
	"fmt"
	"slices"

	"dizzycode.xyz/strategy-engine/internal/domain/indicator"
	"dizzycode.xyz/strategy-engine/internal/domain/strategy"
)

// DualThrust 雙推力突破
//
// 上軌 = 錨定開盤價 + up_coeff × range，下軌 = 錨定開盤價 − down_coeff × range，
// range = max(最高收盤 − 最低低點, 最高高點 − 最低收盤)。
// 錨定開盤價是 anchor_bars 根之前（含當根）的開盤價，對應較大週期的開盤。
func DualThrust() strategy.Descriptor {
	return strategy.Descriptor{
		Name:        "dual_thrust",
		Description: "Dual thrust range breakout",
		Params: []strategy.ParamSpec{
			floatParam("stop_loss_atr_rate", 0.1, 2.0, 2),
			intParam("down_length", 3, 30, 21),
			intParam("up_length", 3, 30, 21),
			floatParam("down_coeff", 0.1, 3.0, 0.67),
			floatParam("up_coeff", 0.1, 3.0, 0.71),
			intParam("anchor_bars", 1, 96, 4),
			intParam("atr_period", 5, 50, 14),
		},
		ShouldLong: func(ctx *strategy.Context) (bool, error) {
			up, err := upThrust(ctx)
			if err != nil {
				return false, err
			}
			return ctx.Price() > up, nil
		},
		ShouldShort: func(ctx *strategy.Context) (bool, error) {
			down, err := downThrust(ctx)
			if err != nil {
				return false, err
			}
			return ctx.Price() < down, nil
		},
		GoLong:         atrStops(strategy.Long, "atr_period", "stop_loss_atr_rate", ""),
		GoShort:        atrStops(strategy.Short, "atr_period", "stop_loss_atr_rate", ""),
		Sizing:         strategy.RiskNormalized(strategy.Const(2)),
		ExitOnReversal: true,
		CancelPolicy:   strategy.Always,
	}
}

// thrustRange 最近 length 根K線的推力區間
func thrustRange(ctx *strategy.Context, length int) (float64, error) {
	return strategy.Cached(ctx, fmt.Sprintf("dual_thrust.range.%d", length), func() (float64, error) {
		if err := ctx.RequireHistory(length); err != nil {
			return 0, err
		}
		high, low, close, err := ctx.OHLC()
		if err != nil {
			return 0, err
		}
		n := len(close)
		h, l, c := high[n-length:], low[n-length:], close[n-length:]

		return max(slices.Max(c)-slices.Min(l), slices.Max(h)-slices.Min(c)), nil
	})
}

func anchorOpen(ctx *strategy.Context) (float64, error) {
	bars := ctx.Params().Int("anchor_bars")
	if err := ctx.RequireHistory(bars); err != nil {
		return 0, err
	}
	opens, err := ctx.Series(indicator.SourceOpen)
	if err != nil {
		return 0, err
	}
	return indicator.Ago(opens, bars-1)
}

func upThrust(ctx *strategy.Context) (float64, error) {
	open, err := anchorOpen(ctx)
	if err != nil {
		return 0, err
	}
	r, err := thrustRange(ctx, ctx.Params().Int("up_length"))
	if err != nil {
		return 0, err
	}
	return open + ctx.Params().Float("up_coeff")*r, nil
}

func downThrust(ctx *strategy.Context) (float64, error) {
	open, err := anchorOpen(ctx)
	if err != nil {
		return 0, err
	}
	r, err := thrustRange(ctx, ctx.Params().Int("down_length"))
	if err != nil {
		return 0, err
	}
	return open - ctx.Params().Float("down_coeff")*r, nil
}
