package feed

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"time"
)

const maxReplayLine = 1 << 20

// closeNormal is the RFC 6455 normal closure code reported when a replay ends.
const closeNormal = 1000

// ReplayTransport plays back newline-delimited frames, one per line, as if
// they had arrived on a live connection. Blank lines are skipped.
type ReplayTransport struct {
	Reader io.Reader
	// Interval paces frames; zero replays as fast as the queue accepts them.
	Interval time.Duration
}

// OpenReplay opens a recorded feed file. The caller closes the returned file.
func OpenReplay(path string, interval time.Duration) (*ReplayTransport, *os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: replay %s: %v", ErrConnect, path, err)
	}
	return &ReplayTransport{Reader: f, Interval: interval}, f, nil
}

// Run implements Transport.
func (t *ReplayTransport) Run(ctx context.Context, events Events) error {
	if t.Reader == nil {
		return fmt.Errorf("%w: no replay input", ErrConnect)
	}

	scanner := bufio.NewScanner(t.Reader)
	scanner.Buffer(make([]byte, 0, 64*1024), maxReplayLine)

	events.OnOpen(ctx)

	var ticker *time.Ticker
	if t.Interval > 0 {
		ticker = time.NewTicker(t.Interval)
		defer ticker.Stop()
	}

	for scanner.Scan() {
		if ctx.Err() != nil {
			events.OnClose(ctx, closeNormal, "client shutdown")
			return nil
		}
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if ticker != nil {
			select {
			case <-ctx.Done():
				events.OnClose(ctx, closeNormal, "client shutdown")
				return nil
			case <-ticker.C:
			}
		}
		// scanner reuses its buffer
		events.OnMessage(ctx, bytes.Clone(line))
	}

	if err := scanner.Err(); err != nil {
		events.OnError(ctx, err)
		events.OnClose(ctx, 0, "")
		return nil
	}
	events.OnClose(ctx, closeNormal, "replay finished")
	return nil
}
