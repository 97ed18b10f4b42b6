// Package strategies 內建策略
//
// 每個策略都是一個 strategy.Descriptor 建構函數，以名稱註冊。
package strategies

import (
	"fmt"
	"sort"

	"dizzycode.xyz/strategy-engine/internal/domain/strategy"
	"dizzycode.xyz/strategy-engine/pkg/logger"
)

// Constructor 建立策略描述
type Constructor func() strategy.Descriptor

var registry = map[string]Constructor{
	"rsi2":          RSI2,
	"turtle":        Turtle,
	"dual_thrust":   DualThrust,
	"donchian":      Donchian,
	"ifr2":          IFR2,
	"macd_ema":      MACDEMA,
	"magen":         MAGen,
	"sma_crossover": SMACrossover,
	"tv_rsi":        TVRSI,
	"kdj":           KDJ,
	"bollinger":     Bollinger,
}

// Names 所有已註冊的策略名稱（已排序）
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get 取得策略描述
func Get(name string) (strategy.Descriptor, error) {
	ctor, ok := registry[name]
	if !ok {
		return strategy.Descriptor{}, &strategy.ConfigurationError{
			Reason: fmt.Sprintf("unknown strategy %q (available: %v)", name, Names()),
		}
	}
	return ctor(), nil
}

// New 依名稱建立引擎並套用參數覆寫
func New(name string, overrides map[string]any, log logger.Logger) (*strategy.Engine, error) {
	desc, err := Get(name)
	if err != nil {
		return nil, err
	}
	return strategy.NewEngine(desc, overrides, log)
}
