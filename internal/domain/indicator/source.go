package indicator

import (
	"fmt"

	"dizzycode.xyz/strategy-engine/internal/domain/value_objects"
)

// Source K線價格來源
type Source string

const (
	SourceClose Source = "close"
	SourceHigh  Source = "high"
	SourceLow   Source = "low"
	SourceOpen  Source = "open"
	SourceHL2   Source = "hl2"
	SourceHLC3  Source = "hlc3"
	SourceOHLC4 Source = "ohlc4"
)

// sourceByIndex 參數檔使用整數選擇來源（0=close ... 6=ohlc4）
var sourceByIndex = []Source{SourceClose, SourceHigh, SourceLow, SourceOpen, SourceHL2, SourceHLC3, SourceOHLC4}

// SourceFromIndex 整數參數轉來源
func SourceFromIndex(i int) (Source, error) {
	if i < 0 || i >= len(sourceByIndex) {
		return "", fmt.Errorf("source index %d out of range [0,%d]", i, len(sourceByIndex)-1)
	}
	return sourceByIndex[i], nil
}

// Extract 從K線取出指定來源的序列（舊到新）
func Extract(candles []value_objects.Candle, src Source) ([]float64, error) {
	out := make([]float64, len(candles))
	for i, c := range candles {
		switch src {
		case SourceClose:
			out[i] = c.Close().Value()
		case SourceHigh:
			out[i] = c.High().Value()
		case SourceLow:
			out[i] = c.Low().Value()
		case SourceOpen:
			out[i] = c.Open().Value()
		case SourceHL2:
			out[i] = c.HL2()
		case SourceHLC3:
			out[i] = c.HLC3()
		case SourceOHLC4:
			out[i] = c.OHLC4()
		default:
			return nil, fmt.Errorf("unknown candle source %q", src)
		}
	}
	return out, nil
}
