package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"dizzycode.xyz/strategy-engine/internal/domain/value_objects"
	"dizzycode.xyz/strategy-engine/pkg/logger"
)

// MarketDataReader 從 Redis 讀取市場數據
type MarketDataReader struct {
	client *RedisClient
	logger logger.Logger
}

// NewMarketDataReader 創建 MarketDataReader
func NewMarketDataReader(client *RedisClient, log logger.Logger) *MarketDataReader {
	return &MarketDataReader{
		client: client,
		logger: log,
	}
}

// GetCandleHistories 讀取歷史K線，用於策略預熱
// Key format: candle.history.{bar}.{instId}（LPUSH，新的在前）
func (r *MarketDataReader) GetCandleHistories(ctx context.Context, instID string, bar string) ([]value_objects.Candle, error) {
	key := fmt.Sprintf(keyCandleHistory, bar, instID)

	val, err := r.client.Client().LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get candle history from Redis (key: %s): %w", key, err)
	}

	candles, err := ParseCandleHistory(val)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}

	r.logger.Debug("Retrieved candle history from Redis", map[string]any{
		"key":     key,
		"candles": len(candles),
	})
	return candles, nil
}

// ParseCandleHistory 解析歷史K線列表，跳過未收盤的K線，返回從舊到新排序
func ParseCandleHistory(items []string) ([]value_objects.Candle, error) {
	candles := make([]value_objects.Candle, 0, len(items))
	for i, item := range items {
		var data CandleData
		if err := json.Unmarshal([]byte(item), &data); err != nil {
			return nil, fmt.Errorf("failed to parse candle at index %d: %w", i, err)
		}
		if data.Confirm == "0" {
			continue
		}

		candle, err := ParseCandleData(data)
		if err != nil {
			return nil, fmt.Errorf("failed to convert candle at index %d: %w", i, err)
		}
		candles = append(candles, candle)
	}

	sort.SliceStable(candles, func(i, j int) bool {
		return candles[i].Timestamp().Before(candles[j].Timestamp())
	})
	return candles, nil
}
