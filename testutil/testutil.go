// Package testutil holds helpers shared by the feed, consumer and pipeline tests.
package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// Percentile returns the p-th percentile value from a slice of durations.
func Percentile(latencies []time.Duration, p float64) time.Duration {
	if len(latencies) == 0 {
		return 0
	}
	sorted := make([]time.Duration, len(latencies))
	copy(sorted, latencies)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := int(float64(len(sorted))*p + 0.5)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// KlineFrame renders a combined-stream kline frame closing at price.
func KlineFrame(symbol, price string) string {
	return fmt.Sprintf(`{"stream":"%s@kline_1m","data":{"e":"kline","s":"%s","k":{"s":"%s","c":"%s"}}}`,
		strings.ToLower(symbol), symbol, symbol, price)
}

// WSURL rewrites an httptest server URL to the ws scheme.
func WSURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// WSServer upgrades every request and hands the connection to serve. The
// connection is closed when serve returns. Close the server when done.
func WSServer(serve func(conn *websocket.Conn)) *httptest.Server {
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		serve(conn)
	}))
}
