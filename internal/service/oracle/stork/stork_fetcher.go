package stork

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/InjectiveLabs/metrics"
	log "github.com/InjectiveLabs/suplog"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/InjectiveLabs/price-aggregator/internal/service/oracle/types"
	"github.com/InjectiveLabs/price-aggregator/internal/service/oracle/utils"
)

const MaxRetriesReConnectWebSocket = 5

var ErrInvalidMessage = errors.New("received invalid message")

type storkFetcher struct {
	cfg types.WsConfig

	conn    *websocket.Conn
	writeMu sync.Mutex

	assetIDs   []string
	latestData map[string]Data
	mu         sync.RWMutex

	logger  log.Logger
	svcTags metrics.Tags
}

// NewFetcher returns a Fetcher streaming signed prices for assetIDs.
// cfg.Message is a subscribe template with one %s placeholder for the quoted id list.
func NewFetcher(cfg types.WsConfig, assetIDs ...string) Fetcher {
	f := &storkFetcher{
		cfg:        cfg,
		latestData: make(map[string]Data),
		logger: log.WithFields(log.Fields{
			"svc":      "oracle",
			"provider": "storkFetcher",
		}),
		svcTags: metrics.Tags{
			"provider": "storkFetcher",
		},
	}

	for _, id := range assetIDs {
		f.addAssetID(id)
	}

	return f
}

func (f *storkFetcher) Data(assetID string) (Data, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	data, ok := f.latestData[assetID]
	return data, ok
}

func (f *storkFetcher) Track(assetID string) {
	if !f.addAssetID(assetID) {
		return
	}

	f.mu.RLock()
	conn := f.conn
	f.mu.RUnlock()

	if conn != nil {
		if err := f.subscribe(conn, []string{assetID}); err != nil {
			f.logger.WithError(err).WithField("asset_id", assetID).Warningln("failed to subscribe to new asset")
		}
	}
}

func (f *storkFetcher) addAssetID(assetID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, id := range f.assetIDs {
		if id == assetID {
			return false
		}
	}

	f.assetIDs = append(f.assetIDs, assetID)
	return true
}

// Run keeps a subscription alive until ctx is cancelled, reconnecting with backoff.
func (f *storkFetcher) Run(ctx context.Context) error {
	b := utils.NewReconnectBackoff()

	for {
		conn, err := utils.ConnectWebSocket(ctx, f.cfg.WebsocketUrl, f.cfg.WebsocketHeader, MaxRetriesReConnectWebSocket)
		if err != nil {
			return errors.Wrap(err, "failed to connect to stork websocket")
		}

		started := time.Now()
		err = f.start(ctx, conn)
		if ctx.Err() != nil {
			return nil
		}

		metrics.CustomReport(func(s metrics.Statter, tagSpec []string) {
			s.Count("feed_provider.stork.reconnect.count", 1, tagSpec, 1)
		}, f.svcTags)

		// a connection that lived for a while resets the backoff
		if time.Since(started) > time.Minute {
			b.Reset()
		}

		delay := b.Duration()
		f.logger.WithError(err).Warningf("stork stream interrupted, reconnecting in %s", delay)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
	}
}

func (f *storkFetcher) start(ctx context.Context, conn *websocket.Conn) error {
	f.mu.Lock()
	f.conn = conn
	ids := append([]string(nil), f.assetIDs...)
	f.mu.Unlock()

	defer f.reset()

	stop := make(chan struct{})
	defer close(stop)

	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-stop:
		}
	}()

	if len(ids) > 0 {
		if err := f.subscribe(conn, ids); err != nil {
			return err
		}
	}

	return f.readMessages(conn)
}

// subscribe sends the subscription message for ids to the websocket server.
func (f *storkFetcher) subscribe(conn *websocket.Conn, ids []string) error {
	msg := fmt.Sprintf(f.cfg.Message, strings.Join(ids, "\",\""))
	f.logger.Debugln("subscribing to assets:", ids)

	f.writeMu.Lock()
	defer f.writeMu.Unlock()

	if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
		return errors.Wrap(err, "error writing subscription message")
	}

	return nil
}

func (f *storkFetcher) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.conn != nil {
		_ = f.conn.Close()
		f.conn = nil
	}
}

func (f *storkFetcher) readMessages(conn *websocket.Conn) error {
	for {
		_, messageRead, err := conn.ReadMessage()
		if err != nil {
			return errors.Wrap(err, "error reading message")
		}

		var msgResp messageResponse
		if err = json.Unmarshal(messageRead, &msgResp); err != nil {
			f.logger.WithError(err).Warningln("error unmarshalling feed message")
			continue
		}

		switch msgResp.Type {
		case messageTypeInvalid.String():
			return errors.Wrap(ErrInvalidMessage, string(msgResp.Data))
		case messageTypeSubscribe.String():
			f.logger.Infoln("subscription confirmed, trace id:", msgResp.TraceID)
		case messageTypeOraclePrices.String():
			var data oracleData
			if err = json.Unmarshal(msgResp.Data, &data); err != nil {
				f.logger.WithError(err).Warningln("error unmarshalling oracle data")
				continue
			}

			f.mu.Lock()
			for assetID, d := range data {
				f.latestData[assetID] = d
			}
			f.mu.Unlock()

			metrics.CustomReport(func(s metrics.Statter, tagSpec []string) {
				s.Count("feed_provider.stork.price_receive.count", int64(len(data)), tagSpec, 1)
			}, f.svcTags)
		default:
			f.logger.Warningln("received unknown message type:", msgResp.Type)
		}
	}
}
