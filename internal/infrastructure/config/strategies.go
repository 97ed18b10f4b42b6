package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultBar 未指定週期時使用的K線週期
const DefaultBar = "1H"

// StrategyConfig 一個策略實例（YAML 條目）
//
//	strategies:
//	  - name: turtle
//	    instId: BTC-USDT-SWAP
//	    bar: 4H
//	    params:
//	      entry_length: 20
type StrategyConfig struct {
	Name         string         `yaml:"name"`
	InstID       string         `yaml:"instId"`
	Bar          string         `yaml:"bar"`
	HistoryLimit int            `yaml:"historyLimit"`
	Active       *bool          `yaml:"active"`
	Params       map[string]any `yaml:"params"`
}

// IsActive 未設定 active 時視為啟用
func (c StrategyConfig) IsActive() bool {
	return c.Active == nil || *c.Active
}

// StrategiesFile YAML 頂層結構
type StrategiesFile struct {
	Strategies []StrategyConfig `yaml:"strategies"`
}

// LoadStrategies 從 YAML 文件讀取策略配置
func LoadStrategies(path string) ([]StrategyConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read strategies file: %w", err)
	}
	return ParseStrategies(data)
}

// ParseStrategies 解析 YAML 並返回啟用的策略
// 同一個 instId 只能有一個策略實例
func ParseStrategies(data []byte) ([]StrategyConfig, error) {
	var file StrategiesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse strategies file: %w", err)
	}

	seen := make(map[string]bool)
	result := make([]StrategyConfig, 0, len(file.Strategies))
	for i, cfg := range file.Strategies {
		if !cfg.IsActive() {
			continue
		}
		if cfg.Name == "" {
			return nil, fmt.Errorf("strategy at index %d: name is required", i)
		}
		if cfg.InstID == "" {
			return nil, fmt.Errorf("strategy %s: instId is required", cfg.Name)
		}
		if seen[cfg.InstID] {
			return nil, fmt.Errorf("strategy %s: duplicate instId %s", cfg.Name, cfg.InstID)
		}
		seen[cfg.InstID] = true

		if cfg.Bar == "" {
			cfg.Bar = DefaultBar
		}
		if cfg.Params == nil {
			cfg.Params = map[string]any{}
		}
		result = append(result, cfg)
	}

	if len(result) == 0 {
		return nil, fmt.Errorf("no active strategy configured")
	}
	return result, nil
}
