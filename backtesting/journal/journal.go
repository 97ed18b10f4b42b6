// Package journal 回測交易日誌的 SQLite 存儲
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"dizzycode.xyz/strategy-engine/backtesting/engine"
	"dizzycode.xyz/strategy-engine/backtesting/metrics"
	"dizzycode.xyz/strategy-engine/internal/domain/strategy"

	_ "modernc.org/sqlite" // SQLite driver
)

// ErrNotFound 記錄不存在
var ErrNotFound = errors.New("record not found")

const schema = `
CREATE TABLE IF NOT EXISTS runs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    strategy TEXT NOT NULL,
    inst_id TEXT NOT NULL,
    params TEXT,
    initial_balance REAL NOT NULL,
    final_equity REAL NOT NULL,
    net_profit REAL NOT NULL,
    max_drawdown REAL NOT NULL,
    trades INTEGER NOT NULL,
    created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS trades (
    run_id INTEGER NOT NULL REFERENCES runs(id),
    seq INTEGER NOT NULL,
    time INTEGER NOT NULL,
    action TEXT NOT NULL,
    side TEXT NOT NULL,
    price REAL NOT NULL,
    qty REAL NOT NULL,
    balance REAL NOT NULL,
    pnl_percent REAL NOT NULL,
    pnl REAL NOT NULL,
    fee REAL NOT NULL,
    reason TEXT,
    position_id TEXT,
    PRIMARY KEY (run_id, seq)
);
`

// Run 一次回測的摘要
type Run struct {
	ID             int64
	Strategy       string
	InstID         string
	Params         map[string]any
	InitialBalance float64
	FinalEquity    float64
	NetProfit      float64
	MaxDrawdown    float64
	Trades         int
	CreatedAt      time.Time
}

// NewRun 由回測配置與結果建立摘要
func NewRun(cfg engine.BacktestConfig, result metrics.BacktestResult, createdAt time.Time) Run {
	return Run{
		Strategy:       cfg.Strategy,
		InstID:         cfg.InstID,
		Params:         cfg.Params,
		InitialBalance: result.InitialBalance,
		FinalEquity:    result.TotalEquity,
		NetProfit:      result.NetProfit,
		MaxDrawdown:    result.MaxDrawdown,
		Trades:         result.TotalTrades,
		CreatedAt:      createdAt,
	}
}

// Journal SQLite 交易日誌
type Journal struct {
	db *sql.DB
}

// Open 打開（必要時創建）SQLite 數據庫並建立表
func Open(path string) (*Journal, error) {
	if path == "" {
		return nil, errors.New("journal path is empty")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create journal directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite 單一寫入者
	db.SetConnMaxLifetime(time.Hour)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Journal{db: db}, nil
}

// Close 關閉數據庫
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

// SaveRun 在同一個交易中寫入回測摘要與交易日誌，返回 run ID
func (j *Journal) SaveRun(ctx context.Context, run Run, trades []engine.TradeLog) (int64, error) {
	params, err := json.Marshal(run.Params)
	if err != nil {
		return 0, fmt.Errorf("encode params: %w", err)
	}

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO runs (strategy, inst_id, params, initial_balance, final_equity, net_profit, max_drawdown, trades, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.Strategy, run.InstID, string(params), run.InitialBalance, run.FinalEquity, run.NetProfit,
		run.MaxDrawdown, run.Trades, run.CreatedAt.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("insert run: %w", err)
	}
	runID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("run id: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO trades (run_id, seq, time, action, side, price, qty, balance, pnl_percent, pnl, fee, reason, position_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("prepare trade insert: %w", err)
	}
	defer stmt.Close()

	for _, t := range trades {
		if _, err := stmt.ExecContext(ctx, runID, t.TradeID, t.Time.UnixMilli(), t.Action, string(t.Side),
			t.Price, t.Qty, t.Balance, t.PnLPercent, t.PnL, t.Fee, t.Reason, t.PositionID); err != nil {
			return 0, fmt.Errorf("insert trade %d: %w", t.TradeID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return runID, nil
}

// GetRun 查詢單次回測摘要
func (j *Journal) GetRun(ctx context.Context, id int64) (Run, error) {
	row := j.db.QueryRowContext(ctx, `
		SELECT id, strategy, inst_id, params, initial_balance, final_equity, net_profit, max_drawdown, trades, created_at
		FROM runs WHERE id = ?
	`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrNotFound
	}
	return run, err
}

// ListRuns 依時間倒序列出回測，strategy 為空表示全部
func (j *Journal) ListRuns(ctx context.Context, strategyName string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, strategy, inst_id, params, initial_balance, final_equity, net_profit, max_drawdown, trades, created_at
		FROM runs
		WHERE ? = '' OR strategy = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, strategyName, strategyName, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Trades 查詢一次回測的交易日誌（依序號排序）
func (j *Journal) Trades(ctx context.Context, runID int64) ([]engine.TradeLog, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT seq, time, action, side, price, qty, balance, pnl_percent, pnl, fee, COALESCE(reason, ''), COALESCE(position_id, '')
		FROM trades WHERE run_id = ? ORDER BY seq
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	var trades []engine.TradeLog
	for rows.Next() {
		var (
			t    engine.TradeLog
			ts   int64
			side string
		)
		if err := rows.Scan(&t.TradeID, &ts, &t.Action, &side, &t.Price, &t.Qty, &t.Balance,
			&t.PnLPercent, &t.PnL, &t.Fee, &t.Reason, &t.PositionID); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		t.Time = time.UnixMilli(ts).UTC()
		t.Side = strategy.Side(side)
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (Run, error) {
	var (
		run    Run
		params sql.NullString
		ts     int64
	)
	if err := s.Scan(&run.ID, &run.Strategy, &run.InstID, &params, &run.InitialBalance, &run.FinalEquity,
		&run.NetProfit, &run.MaxDrawdown, &run.Trades, &ts); err != nil {
		return Run{}, err
	}
	run.CreatedAt = time.UnixMilli(ts).UTC()
	if params.Valid && params.String != "" && params.String != "null" {
		if err := json.Unmarshal([]byte(params.String), &run.Params); err != nil {
			return Run{}, fmt.Errorf("decode params: %w", err)
		}
	}
	return run, nil
}
