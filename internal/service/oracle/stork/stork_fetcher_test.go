package stork

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/InjectiveLabs/price-aggregator/internal/service/oracle/types"
)

const testSubscribeMessage = `{"type":"subscribe","trace_id":"test","data":["%s"]}`

func newStorkServer(t *testing.T, subscribeC chan<- string) *httptest.Server {
	t.Helper()

	upgrader := websocket.Upgrader{}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		subscribeC <- string(msg)

		_ = conn.WriteJSON(map[string]string{"type": "subscribe", "trace_id": "test"})

		payload, _ := json.Marshal(oracleData{"BTCUSD": validData()})
		_ = conn.WriteJSON(messageResponse{
			Type: messageTypeOraclePrices.String(),
			Data: payload,
		})

		// keep the stream open until the client goes away
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
}

func TestFetcherReceivesPrices(t *testing.T) {
	subscribeC := make(chan string, 1)
	srv := newStorkServer(t, subscribeC)
	defer srv.Close()

	fetcher := NewFetcher(types.WsConfig{
		WebsocketUrl: "ws" + strings.TrimPrefix(srv.URL, "http"),
		Message:      testSubscribeMessage,
	}, "BTCUSD", "ETHUSD")

	ctx, cancel := context.WithCancel(context.Background())
	doneC := make(chan error, 1)
	go func() {
		doneC <- fetcher.Run(ctx)
	}()

	select {
	case msg := <-subscribeC:
		assert.Equal(t, `{"type":"subscribe","trace_id":"test","data":["BTCUSD","ETHUSD"]}`, msg)
	case <-time.After(5 * time.Second):
		t.Fatal("no subscription received")
	}

	require.Eventually(t, func() bool {
		_, ok := fetcher.Data("BTCUSD")
		return ok
	}, 5*time.Second, 10*time.Millisecond)

	data, _ := fetcher.Data("BTCUSD")
	assert.Equal(t, "65000000000000000000000", data.Price)
	require.Len(t, data.SignedPrices, 1)

	_, ok := fetcher.Data("ETHUSD")
	assert.False(t, ok)

	cancel()
	select {
	case err := <-doneC:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("fetcher did not stop")
	}
}

func TestFetcherTrackDeduplicates(t *testing.T) {
	f := NewFetcher(types.WsConfig{Message: testSubscribeMessage}, "BTCUSD").(*storkFetcher)

	f.Track("BTCUSD")
	f.Track("ETHUSD")
	f.Track("ETHUSD")

	assert.Equal(t, []string{"BTCUSD", "ETHUSD"}, f.assetIDs)
}
