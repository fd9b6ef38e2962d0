package feed

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultWriteTimeout     = 5 * time.Second
	defaultCloseGrace       = 2 * time.Second
)

// StreamURL builds a combined-stream endpoint such as
// wss://stream.binance.com:443/stream?streams=btcusdt@kline_1m/ethusdt@kline_1m.
func StreamURL(base string, streams []string) string {
	return strings.TrimRight(base, "/") + "/stream?streams=" + strings.Join(streams, "/")
}

// WSTransport receives frames over a websocket. Pings are answered with a
// pong before Events.OnKeepAlive runs. There is no reconnect: when the
// connection ends Run returns.
type WSTransport struct {
	URL              string
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	// CloseGrace bounds the wait for the server's close frame after ctx is
	// cancelled.
	CloseGrace time.Duration
	Header     http.Header

	logger *zap.Logger
}

// NewWSTransport creates a transport for url with default timeouts.
func NewWSTransport(url string, logger *zap.Logger) *WSTransport {
	return &WSTransport{
		URL:              url,
		HandshakeTimeout: defaultHandshakeTimeout,
		WriteTimeout:     defaultWriteTimeout,
		CloseGrace:       defaultCloseGrace,
		logger:           logger.Named("ws"),
	}
}

// Run implements Transport.
func (t *WSTransport) Run(ctx context.Context, events Events) error {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: orDefault(t.HandshakeTimeout, defaultHandshakeTimeout),
	}
	conn, resp, err := dialer.DialContext(ctx, t.URL, t.Header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("%w: %s: %v (status %d)", ErrConnect, t.URL, err, resp.StatusCode)
		}
		return fmt.Errorf("%w: %s: %v", ErrConnect, t.URL, err)
	}
	defer conn.Close()

	writeTimeout := orDefault(t.WriteTimeout, defaultWriteTimeout)
	conn.SetPingHandler(func(appData string) error {
		err := conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeTimeout))
		if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
			var ne net.Error
			if !errors.As(err, &ne) || !ne.Timeout() {
				return err
			}
		}
		events.OnKeepAlive(ctx, []byte(appData))
		return nil
	})

	events.OnOpen(ctx)

	done := make(chan struct{})
	defer close(done)
	stop := context.AfterFunc(ctx, func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client shutdown")
		if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeTimeout)); err != nil {
			t.logger.Debug("Close frame not sent", zap.Error(err))
		}
		select {
		case <-done:
		case <-time.After(orDefault(t.CloseGrace, defaultCloseGrace)):
			conn.Close()
		}
	})
	defer stop()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			var ce *websocket.CloseError
			switch {
			case errors.As(err, &ce) && ce.Code != websocket.CloseAbnormalClosure:
				events.OnClose(ctx, ce.Code, ce.Text)
			case ctx.Err() != nil:
				events.OnClose(ctx, websocket.CloseNormalClosure, "client shutdown")
			default:
				events.OnError(ctx, err)
				events.OnClose(ctx, 0, "")
			}
			return nil
		}
		events.OnMessage(ctx, raw)
	}
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
