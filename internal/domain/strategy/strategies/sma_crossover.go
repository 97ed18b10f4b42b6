package strategies

import (
	"fmt"

	"dizzycode.xyz/strategy-engine/internal/domain/strategy"
)

// SMACrossover 黃金交叉做多、死亡交叉做空
func SMACrossover() strategy.Descriptor {
	return strategy.Descriptor{
		Name:        "sma_crossover",
		Description: "Golden cross / death cross",
		Params: []strategy.ParamSpec{
			intParam("fast_period", 5, 100, 50),
			intParam("slow_period", 20, 400, 200),
		},
		Validate: func(p strategy.Params) error {
			if p.Int("fast_period") >= p.Int("slow_period") {
				return &strategy.ConfigurationError{
					Param:  "fast_period",
					Reason: fmt.Sprintf("must be < slow_period (%d)", p.Int("slow_period")),
				}
			}
			return nil
		},
		ShouldLong: func(ctx *strategy.Context) (bool, error) {
			fast, slow, err := smaPair(ctx)
			return err == nil && fast > slow, err
		},
		ShouldShort: func(ctx *strategy.Context) (bool, error) {
			fast, slow, err := smaPair(ctx)
			return err == nil && fast < slow, err
		},
		ShouldExit: func(ctx *strategy.Context) (bool, error) {
			fast, slow, err := smaPair(ctx)
			if err != nil {
				return false, err
			}
			return (isLong(ctx) && fast < slow) || (isShort(ctx) && fast > slow), nil
		},
		Sizing: strategy.FullAllocation(qtyPrecision),
	}
}

func smaPair(ctx *strategy.Context) (fast, slow float64, err error) {
	if fast, err = sma(ctx, ctx.Params().Int("fast_period")); err != nil {
		return 0, 0, err
	}
	if slow, err = sma(ctx, ctx.Params().Int("slow_period")); err != nil {
		return 0, 0, err
	}
	return fast, slow, nil
}
