package strategies

import "dizzycode.xyz/strategy-engine/internal/domain/strategy"

// Turtle 海龜交易法則
//
// 入場：突破前 N 根唐奇安通道。出場：反向突破較短通道，或反向入場信號。
// 倉位：1% 風險 / ATR 的波動單位，順勢每 0.5N 加倉一次，最多 4 次，
// 加倉後整體止損移到最新單位的 2N。S1 系統在上一筆獲利後跳過下一個信號。
func Turtle() strategy.Descriptor {
	return strategy.Descriptor{
		Name:        "turtle",
		Description: "Original turtle trading rules",
		Params: []strategy.ParamSpec{
			floatParam("unit_risk_percent", 0.1, 5, 1),
			intParam("entry_dc_period", 5, 100, 20),
			intParam("exit_dc_period", 3, 100, 10),
			intParam("atr_period", 5, 100, 20),
			floatParam("atr_multiplier", 0.5, 5, 2),
			intParam("maximum_pyramiding_levels", 0, 10, 4),
			floatParam("pyramiding_threshold", 0.1, 3, 0.5),
			{Name: "system_type", Type: strategy.ParamString, Default: "S1", Options: []string{"S1", "S2"}},
		},
		ShouldLong: func(ctx *strategy.Context) (bool, error) {
			dc, err := previousDonchian(ctx, ctx.Params().Int("entry_dc_period"))
			if err != nil {
				return false, err
			}
			return ctx.High() >= dc.Upper, nil
		},
		ShouldShort: func(ctx *strategy.Context) (bool, error) {
			dc, err := previousDonchian(ctx, ctx.Params().Int("entry_dc_period"))
			if err != nil {
				return false, err
			}
			return ctx.Low() <= dc.Lower, nil
		},
		GoLong:  atrStops(strategy.Long, "atr_period", "atr_multiplier", ""),
		GoShort: atrStops(strategy.Short, "atr_period", "atr_multiplier", ""),
		Sizing:  strategy.VolatilityUnits(strategy.Param("unit_risk_percent"), atrFrom("atr_period"), 1),
		ShouldExit: func(ctx *strategy.Context) (bool, error) {
			dc, err := previousDonchian(ctx, ctx.Params().Int("exit_dc_period"))
			if err != nil {
				return false, err
			}
			return (isLong(ctx) && ctx.Low() <= dc.Lower) || (isShort(ctx) && ctx.High() >= dc.Upper), nil
		},
		ExitOnReversal: true,
		Pyramid: &strategy.PyramidRule{
			MaxLevels:      strategy.Param("maximum_pyramiding_levels"),
			Threshold:      strategy.Param("pyramiding_threshold"),
			StopMultiplier: strategy.Param("atr_multiplier"),
			Volatility:     atrFrom("atr_period"),
		},
		SuppressAfterWin: func(p strategy.Params) bool {
			return p.String("system_type") == "S1"
		},
	}
}
