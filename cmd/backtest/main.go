package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"dizzycode.xyz/strategy-engine/backtesting/engine"
	"dizzycode.xyz/strategy-engine/backtesting/journal"
	"dizzycode.xyz/strategy-engine/backtesting/metrics"
	"dizzycode.xyz/strategy-engine/internal/domain/strategy/strategies"
	"dizzycode.xyz/strategy-engine/pkg/logger"
)

// paramsExample -params 說明中的範例（sma_crossover）
const paramsExample = `{"fast_period":10,"slow_period":30}`

func main() {
	// 解析命令行參數
	dataFile := flag.String("data", "", "歷史數據文件路徑 (必填)")
	strategyName := flag.String("strategy", "sma_crossover", "策略名稱 (見 --list)")
	paramsJSON := flag.String("params", "", "策略參數 JSON，例如: '"+paramsExample+"'")
	initialBalance := flag.Float64("initial-balance", 10000.0, "初始資金 (USDT)")
	feeRate := flag.Float64("fee-rate", 0.0005, "手續費率 (默認: 0.0005 = 0.05%)")
	slippage := flag.Float64("slippage", 0.0, "滑點 (默認: 0)")
	instID := flag.String("inst-id", "ETH-USDT-SWAP", "交易對")
	historyLimit := flag.Int("history", engine.DefaultHistoryLimit, "每根K線傳給策略的歷史長度")
	csvFile := flag.String("csv", "", "交易記錄 CSV 輸出路徑 (可選)")
	journalFile := flag.String("journal", "", "SQLite 交易日誌路徑 (可選)")
	logLevel := flag.String("log-level", "warn", "日誌等級: debug, info, warn, error")
	list := flag.Bool("list", false, "列出所有策略")

	flag.Parse()

	if *list {
		fmt.Println("可用策略:")
		for _, name := range strategies.Names() {
			fmt.Printf("  • %s\n", name)
		}
		return
	}

	// 驗證必填參數
	if *dataFile == "" {
		fmt.Println("錯誤: 必須指定歷史數據文件路徑")
		fmt.Println()
		fmt.Println("使用方式:")
		fmt.Println("  go run ./cmd/backtest --data=data/20240930-20241001-1H-ETH-USDT-SWAP.json --strategy=turtle")
		fmt.Println()
		fmt.Println("參數說明:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	// 檢查文件是否存在
	if _, err := os.Stat(*dataFile); os.IsNotExist(err) {
		fmt.Printf("錯誤: 文件不存在: %s\n", *dataFile)
		os.Exit(1)
	}

	params, err := parseParams(*paramsJSON)
	if err != nil {
		fmt.Printf("錯誤: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewZap(logger.ZapOptions{
		ServiceName: "backtest",
		IsPretty:    true,
		Level:       logger.ParseLevel(*logLevel),
	})
	if err != nil {
		fmt.Printf("錯誤: 創建 logger 失敗: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// 打印配置信息
	fmt.Println("========================================")
	fmt.Println("回測引擎 - 配置信息")
	fmt.Println("========================================")
	fmt.Printf("數據文件: %s\n", *dataFile)
	fmt.Printf("交易對: %s\n", *instID)
	fmt.Printf("策略: %s\n", *strategyName)
	if len(params) > 0 {
		fmt.Printf("參數覆蓋: %s\n", *paramsJSON)
	}
	fmt.Printf("初始資金: $%.2f USDT\n", *initialBalance)
	fmt.Printf("手續費率: %.4f%% (%.6f)\n", *feeRate*100, *feeRate)
	fmt.Printf("滑點: %.4f%%\n", *slippage*100)
	fmt.Println("========================================")
	fmt.Println()

	// 創建回測引擎配置
	config := engine.BacktestConfig{
		InitialBalance: *initialBalance,
		FeeRate:        *feeRate,
		Slippage:       *slippage,
		InstID:         *instID,
		Strategy:       *strategyName,
		Params:         params,
		HistoryLimit:   *historyLimit,
	}

	// 創建回測引擎
	fmt.Println("正在初始化回測引擎...")
	backtestEngine, err := engine.NewBacktestEngine(config, log)
	if err != nil {
		fmt.Printf("錯誤: 創建回測引擎失敗: %v\n", err)
		os.Exit(1)
	}

	// 運行回測
	fmt.Printf("正在載入歷史數據: %s\n", *dataFile)
	startTime := time.Now()
	result, err := backtestEngine.RunFromFile(*dataFile)
	if err != nil {
		fmt.Printf("錯誤: 回測執行失敗: %v\n", err)
		os.Exit(1)
	}
	duration := time.Since(startTime)

	// 打印回測結果
	printBacktestResult(result, *dataFile, duration)

	if *csvFile != "" {
		if err := backtestEngine.ExportTradeLogCSV(*csvFile); err != nil {
			fmt.Printf("錯誤: 匯出交易記錄失敗: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("交易記錄已匯出: %s (%d 筆)\n", *csvFile, len(backtestEngine.GetTradeLog()))
	}

	if *journalFile != "" {
		runID, err := saveJournal(*journalFile, config, result, backtestEngine.GetTradeLog())
		if err != nil {
			fmt.Printf("錯誤: 寫入交易日誌失敗: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("交易日誌已寫入: %s (run #%d)\n", *journalFile, runID)
	}
}

// parseParams 解析 JSON 參數覆蓋
func parseParams(raw string) (map[string]any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var params map[string]any
	if err := json.Unmarshal([]byte(raw), &params); err != nil {
		return nil, fmt.Errorf("無效的參數 JSON: %w", err)
	}
	return params, nil
}

func saveJournal(path string, config engine.BacktestConfig, result metrics.BacktestResult, trades []engine.TradeLog) (int64, error) {
	j, err := journal.Open(path)
	if err != nil {
		return 0, err
	}
	defer j.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return j.SaveRun(ctx, journal.NewRun(config, result, time.Now()), trades)
}

// printBacktestResult 格式化輸出回測結果
func printBacktestResult(result metrics.BacktestResult, dataFile string, duration time.Duration) {
	fmt.Println()
	fmt.Println("========================================")
	fmt.Printf("回測結果: %s\n", dataFile)
	fmt.Println("========================================")
	fmt.Printf("執行時間: %v\n", duration)
	fmt.Println()

	// 資金狀況
	fmt.Println("📊 資金狀況")
	fmt.Println("----------------------------------------")
	fmt.Printf("初始資金: $%.2f USDT\n", result.InitialBalance)
	fmt.Printf("可用餘額: $%.2f USDT\n", result.FinalBalance)
	fmt.Printf("總權益:   $%.2f USDT\n", result.TotalEquity)
	if result.OpenPositionQty > 0 {
		fmt.Printf("未平倉:   %.6f (價值 $%.2f，未實現 $%.2f)\n",
			result.OpenPositionQty, result.OpenPositionValue, result.UnrealizedPnL)
	}
	fmt.Printf("淨利潤:   $%.2f USDT", result.NetProfit)
	if result.NetProfit > 0 {
		fmt.Printf(" ✅\n")
	} else if result.NetProfit < 0 {
		fmt.Printf(" ❌\n")
	} else {
		fmt.Printf(" ⚠️\n")
	}
	fmt.Printf("總收益率: %.2f%%", result.TotalReturn)
	if result.TotalReturn > 0 {
		fmt.Printf(" 📈\n")
	} else if result.TotalReturn < 0 {
		fmt.Printf(" 📉\n")
	} else {
		fmt.Printf(" ➡️\n")
	}
	fmt.Printf("最大回撤: %.2f%%", result.MaxDrawdown)
	if result.MaxDrawdown < 5 {
		fmt.Printf(" ✅\n")
	} else if result.MaxDrawdown < 20 {
		fmt.Printf(" ⚠️\n")
	} else {
		fmt.Printf(" ❌\n")
	}
	fmt.Printf("手續費:   $%.2f USDT\n", result.TotalFeesPaid)
	fmt.Println()

	// 交易統計
	fmt.Println("📈 交易統計")
	fmt.Println("----------------------------------------")
	fmt.Printf("開倉單位:   %d\n", result.TotalOpenedUnits)
	fmt.Printf("總交易次數: %d\n", result.TotalTrades)
	fmt.Printf("盈利交易:   %d\n", result.WinningTrades)
	fmt.Printf("虧損交易:   %d\n", result.LosingTrades)
	fmt.Printf("勝率:       %.2f%%", result.WinRate)
	if result.WinRate >= 60 {
		fmt.Printf(" ✅\n")
	} else if result.WinRate >= 40 {
		fmt.Printf(" ⚠️\n")
	} else {
		fmt.Printf(" ❌\n")
	}
	fmt.Println()

	// 盈虧分析
	fmt.Println("💰 盈虧分析")
	fmt.Println("----------------------------------------")
	fmt.Printf("總盈利金額: $%.2f USDT\n", result.TotalProfit)
	fmt.Printf("總虧損金額: $%.2f USDT\n", result.TotalLoss)
	fmt.Printf("盈虧比:     %.2f", result.ProfitFactor)
	if result.ProfitFactor >= 2.0 {
		fmt.Printf(" ✅ (優秀)\n")
	} else if result.ProfitFactor >= 1.5 {
		fmt.Printf(" ✅ (良好)\n")
	} else if result.ProfitFactor >= 1.0 {
		fmt.Printf(" ⚠️ (一般)\n")
	} else {
		fmt.Printf(" ❌ (需改進)\n")
	}
	fmt.Printf("平均持倉時長: %v\n", formatDuration(result.AvgHoldDuration))
	fmt.Println("========================================")
}

// formatDuration 格式化時間長度
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0f秒", d.Seconds())
	} else if d < time.Hour {
		return fmt.Sprintf("%.1f分鐘", d.Minutes())
	} else if d < 24*time.Hour {
		return fmt.Sprintf("%.1f小時", d.Hours())
	}
	return fmt.Sprintf("%.1f天", d.Hours()/24)
}
