package strategy

import (
	"errors"
	"fmt"

	"dizzycode.xyz/strategy-engine/internal/domain/indicator"
)

var (
	// ErrInsufficientHistory 歷史K線不足，相關條件視為 false
	ErrInsufficientHistory = indicator.ErrInsufficientHistory

	// ErrInvalidTransition 回調順序不合法（例如 FLAT 狀態收到止損成交）
	ErrInvalidTransition = errors.New("invalid state transition")
)

// ConfigurationError 參數不合法，在建構時返回，整個 run 無法開始
type ConfigurationError struct {
	Param  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Param == "" {
		return fmt.Sprintf("configuration error: %s", e.Reason)
	}
	return fmt.Sprintf("configuration error: param %q: %s", e.Param, e.Reason)
}

// SizingError 倉位計算結果不可下單（數量 <= 0 或超出可用保證金），跳過該訂單
type SizingError struct {
	Qty    float64
	Reason string
}

func (e *SizingError) Error() string {
	return fmt.Sprintf("sizing error: %s (qty=%v)", e.Reason, e.Qty)
}

// HostRejection 主機拒絕了訂單（例如保證金不足），透過回調通知引擎
type HostRejection struct {
	OrderID string
	Reason  string
}

func (e *HostRejection) Error() string {
	return fmt.Sprintf("order %s rejected by host: %s", e.OrderID, e.Reason)
}

// IsSizingError 判斷是否為倉位計算錯誤
func IsSizingError(err error) bool {
	var se *SizingError
	return errors.As(err, &se)
}

// IsConfigurationError 判斷是否為參數錯誤
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}
