package logger

import "fmt"

// Logger 日誌介面
// context 可以是 map[string]any，也可以是 key/value 交替的參數
//
//	log.Info("Order published", map[string]any{"id": id})
//	log.Info("Order published", "id", id)
type Logger interface {
	Debug(msg string, context ...any)
	Info(msg string, context ...any)
	Warn(msg string, context ...any)
	Error(msg string, context ...any)
	Sync() error
}

// ParseContext 將 context 參數統一轉成 map
func ParseContext(context []any) map[string]any {
	result := make(map[string]any)

	for i := 0; i < len(context); i++ {
		switch v := context[i].(type) {
		case nil:
			continue
		case map[string]any:
			for key, value := range v {
				result[key] = value
			}
		case string:
			if i+1 < len(context) {
				result[v] = context[i+1]
				i++
			} else {
				result[v] = nil
			}
		default:
			result[fmt.Sprintf("arg%d", i)] = v
		}
	}

	return result
}

// nopLogger 丟棄所有輸出，測試用
type nopLogger struct{}

// NewNop creates a logger that discards everything
func NewNop() Logger {
	return nopLogger{}
}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
func (nopLogger) Sync() error          { return nil }
