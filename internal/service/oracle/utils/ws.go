package utils

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/url"
	"time"

	log "github.com/InjectiveLabs/suplog"
	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"
	"github.com/pkg/errors"
)

// NewReconnectBackoff is the backoff shared by websocket dialers and reconnect loops.
func NewReconnectBackoff() *backoff.Backoff {
	return &backoff.Backoff{
		Min:    500 * time.Millisecond,
		Max:    5 * time.Second,
		Factor: 2,
		Jitter: true,
	}
}

// ConnectWebSocket dials websocketUrl, retrying up to maxRetries times.
// A non-empty urlHeader is sent as HTTP Basic credentials.
func ConnectWebSocket(ctx context.Context, websocketUrl, urlHeader string, maxRetries int) (conn *websocket.Conn, err error) {
	u, err := url.Parse(websocketUrl)
	if err != nil {
		return nil, errors.Wrapf(err, "can not parse WS url %s", websocketUrl)
	}

	header := http.Header{}
	if urlHeader != "" {
		header.Add("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(urlHeader)))
	}

	dialer := *websocket.DefaultDialer
	dialer.EnableCompression = true

	b := NewReconnectBackoff()
	for {
		conn, _, err = dialer.DialContext(ctx, u.String(), header)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		} else if err == nil {
			log.WithField("url", u.Host).Infoln("connected to WebSocket server")
			return conn, nil
		}

		if int(b.Attempt()) >= maxRetries {
			return nil, errors.Wrapf(err, "reached maximum retries (%d)", maxRetries)
		}

		delay := b.Duration()
		log.WithError(err).Infof("failed to connect to WebSocket server, retry %d in %s", int(b.Attempt()), delay)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
}
