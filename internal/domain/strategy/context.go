package strategy

import (
	"fmt"

	"dizzycode.xyz/strategy-engine/internal/domain/indicator"
	"dizzycode.xyz/strategy-engine/pkg/logger"
)

// Context 單根K線的唯讀評估上下文
//
// 指標值透過 Cached 寫入引擎的單根快取，同一根K線內重複查詢不會重算；
// Previous 讀取上一根K線算出的同名值。
type Context struct {
	bar    Bar
	state  State
	params Params
	memo   *Memo
	log    logger.Logger
}

func (c *Context) Bar() Bar              { return c.bar }
func (c *Context) Index() int            { return c.bar.Index }
func (c *Context) State() State          { return c.state }
func (c *Context) Side() Side            { return c.state.Side }
func (c *Context) Params() Params        { return c.params }
func (c *Context) Account() Account      { return c.bar.Account }
func (c *Context) Logger() logger.Logger { return c.log }

// Len 可用的歷史K線數量
func (c *Context) Len() int { return len(c.bar.Candles) }

// Price 當前收盤價
func (c *Context) Price() float64 {
	candle, ok := c.bar.Current()
	if !ok {
		return 0
	}
	return candle.Close().Value()
}

// Open 當前開盤價
func (c *Context) Open() float64 { return c.ago(0, indicator.SourceOpen) }

// High 當前最高價
func (c *Context) High() float64 { return c.ago(0, indicator.SourceHigh) }

// Low 當前最低價
func (c *Context) Low() float64 { return c.ago(0, indicator.SourceLow) }

func (c *Context) ago(n int, src indicator.Source) float64 {
	series, err := c.Series(src)
	if err != nil {
		return 0
	}
	v, err := indicator.Ago(series, n)
	if err != nil {
		return 0
	}
	return v
}

// Series 取出整段歷史的價格序列（快取）
func (c *Context) Series(src indicator.Source) ([]float64, error) {
	return Cached(c, "series:"+string(src), func() ([]float64, error) {
		return indicator.Extract(c.bar.Candles, src)
	})
}

// OHLC 高、低、收三條序列
func (c *Context) OHLC() (high, low, close []float64, err error) {
	if high, err = c.Series(indicator.SourceHigh); err != nil {
		return nil, nil, nil, err
	}
	if low, err = c.Series(indicator.SourceLow); err != nil {
		return nil, nil, nil, err
	}
	if close, err = c.Series(indicator.SourceClose); err != nil {
		return nil, nil, nil, err
	}
	return high, low, close, nil
}

// RequireHistory 歷史不足 n 根時返回 ErrInsufficientHistory
func (c *Context) RequireHistory(n int) error {
	if c.Len() < n {
		return fmt.Errorf("need %d candles, have %d: %w", n, c.Len(), ErrInsufficientHistory)
	}
	return nil
}

// Cached 在當前K線計算一次並快取（錯誤也會快取）
func Cached[T any](c *Context, key string, fn func() (T, error)) (T, error) {
	if v, ok, err := c.memo.Get(key); ok {
		if err != nil {
			var zero T
			return zero, err
		}
		return v.(T), nil
	}

	v, err := fn()
	c.memo.Set(key, v, err)
	return v, err
}

// Previous 讀取上一根K線快取的值；上一根沒有算過或不是相鄰K線時返回 false
func Previous[T any](c *Context, key string) (T, bool) {
	var zero T
	v, ok := c.memo.Previous(key)
	if !ok {
		return zero, false
	}
	typed, ok := v.(T)
	if !ok {
		return zero, false
	}
	return typed, true
}
