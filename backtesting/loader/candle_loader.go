package loader

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"dizzycode.xyz/strategy-engine/internal/domain/value_objects"
)

// OKXResponse OKX API 返回格式
type OKXResponse struct {
	Code string     `json:"code"`
	Msg  string     `json:"msg"`
	Data [][]string `json:"data"` // OKX 返回的是字符串數組
}

// CandleLoader K線數據加載器
//
// 數組索引：[ts, o, h, l, c, vol, volCcy, volCcyQuote, confirm]
type CandleLoader struct {
	filepath string
}

// NewCandleLoader 創建加載器
func NewCandleLoader(filepath string) *CandleLoader {
	return &CandleLoader{
		filepath: filepath,
	}
}

// Load 載入歷史K線數據
// 返回：Candle切片（從舊到新排序）
func (l *CandleLoader) Load() ([]value_objects.Candle, error) {
	data, err := os.ReadFile(l.filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return Parse(data)
}

// Parse 解析 OKX JSON 內容
func Parse(data []byte) ([]value_objects.Candle, error) {
	var response OKXResponse
	if err := json.Unmarshal(data, &response); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}

	if response.Code != "0" {
		return nil, fmt.Errorf("OKX error: %s", response.Msg)
	}

	if len(response.Data) == 0 {
		return nil, fmt.Errorf("no data in file")
	}

	candles := make([]value_objects.Candle, 0, len(response.Data))
	for i, row := range response.Data {
		if len(row) < 5 {
			return nil, fmt.Errorf("invalid candle at index %d: insufficient fields", i)
		}

		candle, err := ParseRow(row)
		if err != nil {
			return nil, fmt.Errorf("failed to parse candle at index %d: %w", i, err)
		}
		candles = append(candles, candle)
	}

	// OKX 是從新到舊，我們需要從舊到新
	if len(candles) > 1 && candles[0].Timestamp().After(candles[len(candles)-1].Timestamp()) {
		for i, j := 0, len(candles)-1; i < j; i, j = i+1, j-1 {
			candles[i], candles[j] = candles[j], candles[i]
		}
	}

	return candles, nil
}

// ParseRow 解析一筆 OKX K線數組（REST 與 WebSocket 格式相同）
func ParseRow(row []string) (value_objects.Candle, error) {
	if len(row) < 5 {
		return value_objects.Candle{}, fmt.Errorf("insufficient fields: %d", len(row))
	}

	tsMs, err := strconv.ParseInt(row[0], 10, 64)
	if err != nil {
		return value_objects.Candle{}, fmt.Errorf("invalid timestamp: %w", err)
	}

	prices := make([]float64, 4)
	names := [4]string{"open", "high", "low", "close"}
	for i := range prices {
		prices[i], err = strconv.ParseFloat(row[i+1], 64)
		if err != nil {
			return value_objects.Candle{}, fmt.Errorf("invalid %s price: %w", names[i], err)
		}
	}

	volume := 0.0
	if len(row) > 5 && row[5] != "" {
		volume, err = strconv.ParseFloat(row[5], 64)
		if err != nil {
			return value_objects.Candle{}, fmt.Errorf("invalid volume: %w", err)
		}
	}

	candle, err := value_objects.NewCandle(prices[0], prices[1], prices[2], prices[3], volume, time.UnixMilli(tsMs))
	if err != nil {
		return value_objects.Candle{}, fmt.Errorf("failed to create candle: %w", err)
	}
	return candle, nil
}

// LoadFromJSON 便捷函數：從 JSON 文件加載 K 線數據
func LoadFromJSON(filepath string) ([]value_objects.Candle, error) {
	return NewCandleLoader(filepath).Load()
}
