package engine

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"

	"dizzycode.xyz/strategy-engine/internal/domain/strategy"
)

// 交易日誌動作
const (
	ActionOpen   = "OPEN"
	ActionAdd    = "ADD"
	ActionClose  = "CLOSE"
	ActionCancel = "CANCEL"
	ActionReject = "REJECT"
)

// TradeLog 交易日誌（用於 debug 與導出）
type TradeLog struct {
	TradeID    int           // 交易序號
	Time       time.Time     // 時間
	Action     string        // OPEN / ADD / CLOSE / CANCEL / REJECT
	Side       strategy.Side // 持倉方向
	Price      float64       // 成交價格
	Qty        float64       // 數量（幣）
	Balance    float64       // 成交後可用餘額
	PnLPercent float64       // 盈虧百分比（僅平倉時）
	PnL        float64       // 盈虧金額（僅平倉時，未扣手續費）
	Fee        float64       // 手續費
	Reason     string        // 原因
	PositionID string        // 倉位ID（關聯開倉和平倉）
}

var csvHeader = []string{
	"TradeID", "Time", "Action", "Side", "Price", "Qty", "Balance", "PnL%", "PnL", "Fee", "Reason", "PositionID",
}

func (e *BacktestEngine) record(entry TradeLog) {
	entry.TradeID = len(e.tradeLog) + 1
	e.tradeLog = append(e.tradeLog, entry)
}

// GetTradeLog 獲取交易日誌
func (e *BacktestEngine) GetTradeLog() []TradeLog {
	return e.tradeLog
}

// GetTotalFees 計算總手續費
func (e *BacktestEngine) GetTotalFees() float64 {
	totalFees := 0.0
	for _, log := range e.tradeLog {
		totalFees += log.Fee
	}
	return totalFees
}

// ExportTradeLogCSV 導出交易日誌到 CSV 文件
func (e *BacktestEngine) ExportTradeLogCSV(filepath string) error {
	f, err := os.Create(filepath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, log := range e.tradeLog {
		if err := w.Write(log.Record()); err != nil {
			return fmt.Errorf("failed to write CSV row %d: %w", log.TradeID, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to write CSV file: %w", err)
	}
	return nil
}

// Record CSV 欄位
//
// 價格與餘額保留 4 位小數，手續費 8 位（與 OKX 一致）。
func (l TradeLog) Record() []string {
	return []string{
		strconv.Itoa(l.TradeID),
		l.Time.UTC().Format("2006-01-02 15:04:05"),
		l.Action,
		string(l.Side),
		strconv.FormatFloat(l.Price, 'f', 4, 64),
		strconv.FormatFloat(l.Qty, 'f', 6, 64),
		strconv.FormatFloat(l.Balance, 'f', 4, 64),
		strconv.FormatFloat(l.PnLPercent, 'f', 4, 64),
		strconv.FormatFloat(l.PnL, 'f', 4, 64),
		strconv.FormatFloat(l.Fee, 'f', 8, 64),
		l.Reason,
		l.PositionID,
	}
}
