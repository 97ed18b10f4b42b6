// Package indicator 技術指標計算
//
// 所有函數都是對 go-talib 的薄封裝，並在呼叫前檢查 lookback：
// 歷史K線不足時返回 ErrInsufficientHistory，而不是讓 talib 回傳全零序列。
package indicator

import (
	"errors"
	"fmt"

	"github.com/markcheno/go-talib"
)

// ErrInsufficientHistory 歷史K線數量不足以計算指標
var ErrInsufficientHistory = errors.New("insufficient history for indicator lookback")

// require 檢查序列長度是否足夠
func require(name string, have, need int) error {
	if have < need {
		return fmt.Errorf("%s needs %d candles, have %d: %w", name, need, have, ErrInsufficientHistory)
	}
	return nil
}

func requirePeriod(name string, period int) error {
	if period <= 0 {
		return fmt.Errorf("%s period must be > 0, got %d", name, period)
	}
	return nil
}

// Last 返回序列最後一個值
func Last(series []float64) (float64, error) {
	if len(series) == 0 {
		return 0, fmt.Errorf("empty series: %w", ErrInsufficientHistory)
	}
	return series[len(series)-1], nil
}

// Ago 返回 n 根之前的值（Ago(s, 0) == Last(s)）
func Ago(series []float64, n int) (float64, error) {
	if n < 0 || len(series) <= n {
		return 0, fmt.Errorf("need %d values, have %d: %w", n+1, len(series), ErrInsufficientHistory)
	}
	return series[len(series)-1-n], nil
}

// SMASeries 簡單移動平均
func SMASeries(src []float64, period int) ([]float64, error) {
	if err := requirePeriod("SMA", period); err != nil {
		return nil, err
	}
	if err := require("SMA", len(src), period); err != nil {
		return nil, err
	}
	return talib.Sma(src, period), nil
}

// SMA 最新一根的簡單移動平均
func SMA(src []float64, period int) (float64, error) {
	series, err := SMASeries(src, period)
	if err != nil {
		return 0, err
	}
	return Last(series)
}

// EMASeries 指數移動平均
func EMASeries(src []float64, period int) ([]float64, error) {
	if err := requirePeriod("EMA", period); err != nil {
		return nil, err
	}
	if err := require("EMA", len(src), period); err != nil {
		return nil, err
	}
	return talib.Ema(src, period), nil
}

// EMA 最新一根的指數移動平均
func EMA(src []float64, period int) (float64, error) {
	series, err := EMASeries(src, period)
	if err != nil {
		return 0, err
	}
	return Last(series)
}

// RSISeries 相對強弱指標
func RSISeries(src []float64, period int) ([]float64, error) {
	if err := requirePeriod("RSI", period); err != nil {
		return nil, err
	}
	if err := require("RSI", len(src), period+1); err != nil {
		return nil, err
	}
	return talib.Rsi(src, period), nil
}

// RSI 最新一根的 RSI
func RSI(src []float64, period int) (float64, error) {
	series, err := RSISeries(src, period)
	if err != nil {
		return 0, err
	}
	return Last(series)
}

// ATRSeries 平均真實波幅
func ATRSeries(high, low, close []float64, period int) ([]float64, error) {
	if err := requirePeriod("ATR", period); err != nil {
		return nil, err
	}
	if err := require("ATR", len(close), period+1); err != nil {
		return nil, err
	}
	return talib.Atr(high, low, close, period), nil
}

// ATR 最新一根的 ATR
func ATR(high, low, close []float64, period int) (float64, error) {
	series, err := ATRSeries(high, low, close, period)
	if err != nil {
		return 0, err
	}
	return Last(series)
}

// ADX 平均趨向指標
func ADX(high, low, close []float64, period int) (float64, error) {
	if err := requirePeriod("ADX", period); err != nil {
		return 0, err
	}
	if err := require("ADX", len(close), 2*period); err != nil {
		return 0, err
	}
	return Last(talib.Adx(high, low, close, period))
}

// MACDResult MACD 三條線
type MACDResult struct {
	MACD   []float64
	Signal []float64
	Hist   []float64
}

// MACD 計算 MACD 序列
func MACD(src []float64, fast, slow, signal int) (MACDResult, error) {
	for _, p := range []int{fast, slow, signal} {
		if err := requirePeriod("MACD", p); err != nil {
			return MACDResult{}, err
		}
	}
	if fast >= slow {
		return MACDResult{}, fmt.Errorf("MACD fast period %d must be < slow period %d", fast, slow)
	}
	if err := require("MACD", len(src), slow+signal-1); err != nil {
		return MACDResult{}, err
	}
	macd, sig, hist := talib.Macd(src, fast, slow, signal)
	return MACDResult{MACD: macd, Signal: sig, Hist: hist}, nil
}

// Bands 通道上中下軌
type Bands struct {
	Upper  float64
	Middle float64
	Lower  float64
}

// BollingerBands 布林通道（SMA 中軌）
func BollingerBands(src []float64, period int, devUp, devDown float64) (Bands, error) {
	if err := requirePeriod("BBANDS", period); err != nil {
		return Bands{}, err
	}
	if err := require("BBANDS", len(src), period); err != nil {
		return Bands{}, err
	}
	upper, middle, lower := talib.BBands(src, period, devUp, devDown, talib.SMA)
	return Bands{
		Upper:  upper[len(upper)-1],
		Middle: middle[len(middle)-1],
		Lower:  lower[len(lower)-1],
	}, nil
}

// Donchian 唐奇安通道：period 根內最高價與最低價
func Donchian(high, low []float64, period int) (Bands, error) {
	if err := requirePeriod("DONCHIAN", period); err != nil {
		return Bands{}, err
	}
	if err := require("DONCHIAN", len(high), period); err != nil {
		return Bands{}, err
	}
	upper, err := Last(talib.Max(high, period))
	if err != nil {
		return Bands{}, err
	}
	lower, err := Last(talib.Min(low, period))
	if err != nil {
		return Bands{}, err
	}
	return Bands{Upper: upper, Middle: (upper + lower) / 2, Lower: lower}, nil
}

// HTTrendMode Hilbert Transform 趨勢模式：1 為趨勢，0 為週期
func HTTrendMode(src []float64) (int, error) {
	if err := require("HT_TRENDMODE", len(src), 64); err != nil {
		return 0, err
	}
	v, err := Last(talib.HtTrendMode(src))
	if err != nil {
		return 0, err
	}
	return int(v), nil
}
