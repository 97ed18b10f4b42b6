package strategies

import (
	"fmt"

	"dizzycode.xyz/strategy-engine/internal/domain/indicator"
	"dizzycode.xyz/strategy-engine/internal/domain/strategy"
)

const kdjKey = "kdj.point"

type kdjPoint struct {
	K, D, J float64
}

// KDJ 隨機指標 KDJ（只做多）
//
// J 同時高於 K 與 D 時入場；持倉獲利且 J 比上一根低，或 J 跌破 K 與 D 時出場。
func KDJ() strategy.Descriptor {
	return strategy.Descriptor{
		Name:        "kdj",
		Description: "KDJ momentum with ATR stop",
		Params: []strategy.ParamSpec{
			intParam("fastk_period", 3, 30, 9),
			intParam("slowk_period", 1, 10, 3),
			intParam("slowd_period", 1, 10, 3),
			intParam("atr_period", 5, 50, 14),
			floatParam("stop_atr_rate", 0.5, 5, 2),
			floatParam("risk_percent", 0.5, 10, 5),
		},
		ShouldLong: func(ctx *strategy.Context) (bool, error) {
			cur, _, err := kdjValues(ctx)
			if err != nil {
				return false, err
			}
			return cur.J > cur.K && cur.J > cur.D, nil
		},
		GoLong: atrStops(strategy.Long, "atr_period", "stop_atr_rate", ""),
		Sizing: strategy.RiskNormalized(strategy.Param("risk_percent")),
		ShouldExit: func(ctx *strategy.Context) (bool, error) {
			if !isLong(ctx) {
				return false, nil
			}
			cur, prev, err := kdjValues(ctx)
			if err != nil {
				return false, err
			}
			state := ctx.State()
			inProfit := ctx.Price() > state.EntryPrice
			if pos := ctx.Account().Position; pos.Side == strategy.Long {
				inProfit = pos.PnLPercent > 0
			}
			if inProfit && prev.J > cur.J {
				return true, nil
			}
			return cur.J < cur.K && cur.J < cur.D, nil
		},
		CancelPolicy: strategy.Always,
	}
}

// kdjValues 當根與上一根的 KDJ
// 上一根優先從單根快取讀取，沒有時從序列取
func kdjValues(ctx *strategy.Context) (cur, prev kdjPoint, err error) {
	p := ctx.Params()
	series, err := strategy.Cached(ctx, fmt.Sprintf("kdj.%d.%d.%d", p.Int("fastk_period"), p.Int("slowk_period"), p.Int("slowd_period")),
		func() (indicator.KDJResult, error) {
			high, low, close, err := ctx.OHLC()
			if err != nil {
				return indicator.KDJResult{}, err
			}
			return indicator.KDJ(high, low, close, p.Int("fastk_period"), p.Int("slowk_period"), p.Int("slowd_period"))
		})
	if err != nil {
		return kdjPoint{}, kdjPoint{}, err
	}

	cur, err = strategy.Cached(ctx, kdjKey, func() (kdjPoint, error) {
		return pointAt(series, 0)
	})
	if err != nil {
		return kdjPoint{}, kdjPoint{}, err
	}

	if cached, ok := strategy.Previous[kdjPoint](ctx, kdjKey); ok {
		return cur, cached, nil
	}
	prev, err = pointAt(series, 1)
	return cur, prev, err
}

func pointAt(series indicator.KDJResult, ago int) (kdjPoint, error) {
	k, err := indicator.Ago(series.K, ago)
	if err != nil {
		return kdjPoint{}, err
	}
	d, err := indicator.Ago(series.D, ago)
	if err != nil {
		return kdjPoint{}, err
	}
	j, err := indicator.Ago(series.J, ago)
	if err != nil {
		return kdjPoint{}, err
	}
	return kdjPoint{K: k, D: d, J: j}, nil
}
