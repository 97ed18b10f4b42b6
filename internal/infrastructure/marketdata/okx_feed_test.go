package marketdata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dizzycode.xyz/strategy-engine/internal/domain/value_objects"
	"dizzycode.xyz/strategy-engine/pkg/logger"
)

func TestNewCandleSubscribeRequest(t *testing.T) {
	req := NewCandleSubscribeRequest("BTC-USDT-SWAP", "4H")
	assert.Equal(t, "subscribe", req.Op)
	require.Len(t, req.Args, 1)
	assert.Equal(t, "candle4H", req.Args[0].Channel)
	assert.Equal(t, "BTC-USDT-SWAP", req.Args[0].InstID)
}

func TestParseCandleMessage(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    int
		wantErr bool
	}{
		{
			name:    "confirmed candle",
			payload: `{"arg":{"channel":"candle1H","instId":"BTC-USDT"},"data":[["1735689600000","100","110","95","105","12","0","0","1"]]}`,
			want:    1,
		},
		{
			name:    "unconfirmed candle skipped",
			payload: `{"arg":{"channel":"candle1H","instId":"BTC-USDT"},"data":[["1735689600000","100","110","95","105","12","0","0","0"]]}`,
			want:    0,
		},
		{
			name:    "subscribe event",
			payload: `{"event":"subscribe","arg":{"channel":"candle1H","instId":"BTC-USDT"}}`,
			want:    0,
		},
		{name: "error event", payload: `{"event":"error","code":"60012","msg":"Invalid request"}`, wantErr: true},
		{name: "short row", payload: `{"data":[["1735689600000","100"]]}`, wantErr: true},
		{name: "invalid json", payload: `{`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			candles, err := ParseCandleMessage([]byte(tt.payload))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, candles, tt.want)
		})
	}
}

func TestOKXCandleFeed_Run(t *testing.T) {
	upgrader := websocket.Upgrader{}
	subscribed := make(chan SubscribeRequest, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var req SubscribeRequest
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		subscribed <- req

		conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"subscribe","arg":{"channel":"candle1H","instId":"ETH-USDT"}}`))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"arg":{"channel":"candle1H","instId":"ETH-USDT"},"data":[["1735689600000","100","110","95","104","3","0","0","0"]]}`))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"arg":{"channel":"candle1H","instId":"ETH-USDT"},"data":[["1735689600000","100","110","95","105","3","0","0","1"]]}`))

		// 保持連線直到客戶端關閉
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	feed := NewOKXCandleFeed(FeedConfig{
		URL:    "ws" + strings.TrimPrefix(server.URL, "http"),
		InstID: "ETH-USDT",
		Bar:    "1H",
	}, logger.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	received := make(chan value_objects.Candle, 1)
	done := make(chan error, 1)
	go func() {
		done <- feed.Run(ctx, func(c value_objects.Candle) error {
			received <- c
			return nil
		})
	}()

	select {
	case req := <-subscribed:
		assert.Equal(t, "candle1H", req.Args[0].Channel)
	case <-ctx.Done():
		t.Fatal("no subscribe request")
	}

	select {
	case candle := <-received:
		assert.Equal(t, 105.0, candle.Close().Value())
	case <-ctx.Done():
		t.Fatal("no candle received")
	}

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
