// Package feed implements the message source: a long-lived goroutine that
// receives frames from a transport, decodes them and hands them to the
// consumer through a bounded queue.
package feed

import (
	"context"
	"errors"
	"fmt"
)

// ErrConnect wraps failures to establish the transport. It is the only error
// a Transport returns from Run; everything after the connection opened is
// reported through Events.
var ErrConnect = errors.New("feed: cannot connect")

// Events is the capability a transport drives. Calls are made from the
// transport's goroutine, one at a time.
type Events interface {
	OnOpen(ctx context.Context)
	OnMessage(ctx context.Context, raw []byte)
	// OnKeepAlive runs after the transport has already answered the ping.
	OnKeepAlive(ctx context.Context, payload []byte)
	OnError(ctx context.Context, err error)
	// OnClose reports the close code and reason; code 0 means the connection
	// ended because of an error rather than a close handshake.
	OnClose(ctx context.Context, code int, reason string)
}

// Transport delivers frames to Events until the connection ends or ctx is
// cancelled. It returns an error wrapping ErrConnect if it never opened.
type Transport interface {
	Run(ctx context.Context, events Events) error
}

// State of a message source.
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateReceiving
	StateKeepAlive
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateReceiving:
		return "receiving"
	case StateKeepAlive:
		return "keepalive"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// canMove reports whether the source may go from s to next.
func (s State) canMove(next State) bool {
	switch s {
	case StateConnecting:
		return next == StateOpen || next == StateClosed
	case StateOpen, StateReceiving, StateKeepAlive:
		return next == StateReceiving || next == StateKeepAlive ||
			next == StateClosing || next == StateClosed
	case StateClosing:
		return next == StateClosed
	default:
		return false
	}
}
