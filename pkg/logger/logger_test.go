package logger

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseContext(t *testing.T) {
	tests := []struct {
		name    string
		context []any
		want    map[string]any
	}{
		{
			name:    "map 參數",
			context: []any{map[string]any{"instId": "ETH-USDT", "bar": "5m"}},
			want:    map[string]any{"instId": "ETH-USDT", "bar": "5m"},
		},
		{
			name:    "key/value 參數",
			context: []any{"price", 2500.5, "side", "LONG"},
			want:    map[string]any{"price": 2500.5, "side": "LONG"},
		},
		{
			name:    "落單的 key",
			context: []any{"dangling"},
			want:    map[string]any{"dangling": nil},
		},
		{
			name:    "nil 被忽略",
			context: []any{nil},
			want:    map[string]any{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseContext(tt.context))
		})
	}
}

func TestNewZap(t *testing.T) {
	log, err := NewZap(ZapOptions{ServiceName: "test", Level: ErrorLevel})
	assert.NoError(t, err)

	// 不應 panic
	log.Debug("hidden", "k", 1)
	log.Error("visible", map[string]any{"error": errors.New("boom")})
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DebugLevel, ParseLevel("debug"))
	assert.Equal(t, WarnLevel, ParseLevel("warning"))
	assert.Equal(t, InfoLevel, ParseLevel("nonsense"))
}
