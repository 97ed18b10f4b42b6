package value_objects

import (
	"errors"
	"fmt"
	"time"
)

// Candle K線值對象
// 包含開高低收量及時間信息
type Candle struct {
	open      Price
	high      Price
	low       Price
	close     Price
	volume    float64
	timestamp time.Time
}

// NewCandle 創建K線（工廠方法）
func NewCandle(open, high, low, close, volume float64, timestamp time.Time) (Candle, error) {
	openPrice, err := NewPrice(open)
	if err != nil {
		return Candle{}, fmt.Errorf("invalid open price: %w", err)
	}

	highPrice, err := NewPrice(high)
	if err != nil {
		return Candle{}, fmt.Errorf("invalid high price: %w", err)
	}

	lowPrice, err := NewPrice(low)
	if err != nil {
		return Candle{}, fmt.Errorf("invalid low price: %w", err)
	}

	closePrice, err := NewPrice(close)
	if err != nil {
		return Candle{}, fmt.Errorf("invalid close price: %w", err)
	}

	// 驗證業務規則：high >= low
	if !highPrice.IsAboveOrEqual(lowPrice) {
		return Candle{}, errors.New("high price must be >= low price")
	}

	if volume < 0 {
		return Candle{}, fmt.Errorf("volume must be >= 0, got %v", volume)
	}

	return Candle{
		open:      openPrice,
		high:      highPrice,
		low:       lowPrice,
		close:     closePrice,
		volume:    volume,
		timestamp: timestamp,
	}, nil
}

// MustCandle 創建K線，失敗時 panic（測試及已驗證資料用）
func MustCandle(open, high, low, close, volume float64, timestamp time.Time) Candle {
	c, err := NewCandle(open, high, low, close, volume, timestamp)
	if err != nil {
		panic(err)
	}
	return c
}

// Getters
func (c Candle) Open() Price          { return c.open }
func (c Candle) High() Price          { return c.high }
func (c Candle) Low() Price           { return c.low }
func (c Candle) Close() Price         { return c.close }
func (c Candle) Volume() float64      { return c.volume }
func (c Candle) Timestamp() time.Time { return c.timestamp }

// HL2 (high + low) / 2
func (c Candle) HL2() float64 {
	return (c.high.Value() + c.low.Value()) / 2
}

// HLC3 (high + low + close) / 3
func (c Candle) HLC3() float64 {
	return (c.high.Value() + c.low.Value() + c.close.Value()) / 3
}

// OHLC4 (open + high + low + close) / 4
func (c Candle) OHLC4() float64 {
	return (c.open.Value() + c.high.Value() + c.low.Value() + c.close.Value()) / 4
}

// Range 振幅 high - low
func (c Candle) Range() float64 {
	return c.high.Value() - c.low.Value()
}

// Touches 判斷價格是否落在這根K線的高低點之間
func (c Candle) Touches(price float64) bool {
	return price >= c.low.Value() && price <= c.high.Value()
}

// IsBullish 判斷是否為陽線
func (c Candle) IsBullish() bool {
	return c.close.Value() > c.open.Value()
}

// IsBearish 判斷是否為陰線
func (c Candle) IsBearish() bool {
	return c.close.Value() < c.open.Value()
}
