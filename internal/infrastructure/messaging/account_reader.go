package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"dizzycode.xyz/strategy-engine/internal/domain/strategy"
	"dizzycode.xyz/strategy-engine/internal/infrastructure/config"
	"dizzycode.xyz/strategy-engine/pkg/logger"
)

// AccountData 下單服務寫入的帳戶狀態
// 數字欄位接受字串或數值
type AccountData struct {
	Balance         decimal.Decimal `json:"balance"`
	AvailableMargin decimal.Decimal `json:"availableMargin"`
	FeeRate         decimal.Decimal `json:"feeRate"`
	Position        *PositionData   `json:"position,omitempty"`
}

// PositionData 當前持倉
type PositionData struct {
	Side       string          `json:"side"`
	Qty        decimal.Decimal `json:"qty"`
	AvgPrice   decimal.Decimal `json:"avgPrice"`
	PnLPercent decimal.Decimal `json:"pnlPercent"`
}

// RedisAccountReader implements the AccountReader port
// Key format: account.state.{instId}
type RedisAccountReader struct {
	client   *RedisClient
	fallback config.AccountConfig
	logger   logger.Logger
}

// NewRedisAccountReader creates a new RedisAccountReader
func NewRedisAccountReader(client *RedisClient, fallback config.AccountConfig, log logger.Logger) *RedisAccountReader {
	return &RedisAccountReader{
		client:   client,
		fallback: fallback,
		logger:   log,
	}
}

// GetAccount 讀取帳戶狀態，key 不存在時使用預設資金
func (r *RedisAccountReader) GetAccount(ctx context.Context, instID string) (strategy.Account, error) {
	key := fmt.Sprintf(keyAccountState, instID)

	val, err := r.client.Client().Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		r.logger.Debug("Account state not found, using fallback", map[string]any{
			"key":     key,
			"balance": r.fallback.FallbackBalance,
		})
		return FallbackAccount(r.fallback), nil
	}
	if err != nil {
		return strategy.Account{}, fmt.Errorf("failed to get account from Redis (key: %s): %w", key, err)
	}

	account, err := ParseAccount([]byte(val), r.fallback.FeeRate)
	if err != nil {
		return strategy.Account{}, err
	}
	account.Slippage = r.fallback.Slippage
	return account, nil
}

// FallbackAccount 空倉且全部資金可用
func FallbackAccount(cfg config.AccountConfig) strategy.Account {
	return strategy.Account{
		Balance:         cfg.FallbackBalance,
		AvailableMargin: cfg.FallbackBalance,
		FeeRate:         cfg.FeeRate,
		Slippage:        cfg.Slippage,
		Position:        strategy.Position{Side: strategy.Flat},
	}
}

// ParseAccount 解析帳戶 JSON
// feeRate 缺省時使用 defaultFeeRate；availableMargin 缺省時等於 balance
func ParseAccount(payload []byte, defaultFeeRate float64) (strategy.Account, error) {
	var data AccountData
	if err := json.Unmarshal(payload, &data); err != nil {
		return strategy.Account{}, fmt.Errorf("failed to parse account JSON: %w", err)
	}
	if data.Balance.IsNegative() {
		return strategy.Account{}, fmt.Errorf("invalid balance %s", data.Balance)
	}

	account := strategy.Account{
		Balance:         data.Balance.InexactFloat64(),
		AvailableMargin: data.AvailableMargin.InexactFloat64(),
		FeeRate:         data.FeeRate.InexactFloat64(),
		Position:        strategy.Position{Side: strategy.Flat},
	}
	if data.AvailableMargin.IsZero() {
		account.AvailableMargin = account.Balance
	}
	if data.FeeRate.IsZero() {
		account.FeeRate = defaultFeeRate
	}

	if data.Position != nil && data.Position.Qty.IsPositive() {
		side := strategy.Side(data.Position.Side)
		if side != strategy.Long && side != strategy.Short {
			return strategy.Account{}, fmt.Errorf("invalid position side %q", data.Position.Side)
		}
		account.Position = strategy.Position{
			Side:       side,
			Qty:        data.Position.Qty.InexactFloat64(),
			AvgPrice:   data.Position.AvgPrice.InexactFloat64(),
			PnLPercent: data.Position.PnLPercent.InexactFloat64(),
		}
	}

	return account, nil
}
