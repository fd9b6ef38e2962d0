package feed

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Aidin1998/pricefeed/internal/market"
	"github.com/Aidin1998/pricefeed/internal/queue"
	"github.com/Aidin1998/pricefeed/pkg/metrics"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Source decodes frames delivered by a Transport and puts them on the queue.
// It is the queue's producer; it shuts the queue down when the connection
// ends so the consumer can drain and exit.
type Source struct {
	id     string
	queue  *queue.Bounded[market.Message]
	logger *zap.Logger
	now    func() time.Time

	state        atomic.Int32
	seq          atomic.Uint64
	received     atomic.Uint64
	decodeErrors atomic.Uint64
	keepAlives   atomic.Uint64

	errMu   sync.Mutex
	lastErr error
}

// SourceStats is a snapshot of source counters.
type SourceStats struct {
	ID           string `json:"id"`
	State        string `json:"state"`
	Received     uint64 `json:"received"`
	DecodeErrors uint64 `json:"decode_errors"`
	KeepAlives   uint64 `json:"keepalives"`
	LastError    string `json:"last_error,omitempty"`
}

// NewSource creates a source feeding q.
func NewSource(q *queue.Bounded[market.Message], logger *zap.Logger) *Source {
	id := uuid.NewString()
	return &Source{
		id:     id,
		queue:  q,
		logger: logger.Named("source").With(zap.String("source_id", id)),
		now:    time.Now,
	}
}

// Run drives t until the connection ends. The queue is shut down on return
// whatever the outcome, and the returned error is t's connect error, if any.
func (s *Source) Run(ctx context.Context, t Transport) error {
	s.state.Store(int32(StateConnecting))
	s.logger.Info("Connecting message source")

	err := t.Run(ctx, s)
	if err != nil {
		s.recordErr(err)
		s.logger.Error("Message source failed to connect", zap.Error(err))
	}
	s.finish()
	return err
}

// ID identifies this source in logs.
func (s *Source) ID() string { return s.id }

// State returns the current state; safe from any goroutine.
func (s *Source) State() State { return State(s.state.Load()) }

// Err returns the last transport error observed.
func (s *Source) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.lastErr
}

// Stats returns counters for observability.
func (s *Source) Stats() SourceStats {
	st := SourceStats{
		ID:           s.id,
		State:        s.State().String(),
		Received:     s.received.Load(),
		DecodeErrors: s.decodeErrors.Load(),
		KeepAlives:   s.keepAlives.Load(),
	}
	if err := s.Err(); err != nil {
		st.LastError = err.Error()
	}
	return st
}

// OnOpen implements Events.
func (s *Source) OnOpen(ctx context.Context) {
	s.moveTo(StateOpen)
	metrics.ConnectionEvents.WithLabelValues("open").Inc()
	s.logger.Info("Connection opened")
}

// OnMessage implements Events. Undecodable frames are logged and dropped;
// a full queue blocks here, which stalls reads from the transport.
func (s *Source) OnMessage(ctx context.Context, raw []byte) {
	s.moveTo(StateReceiving)

	msg, err := market.Decode(raw, s.seq.Add(1), s.now())
	if err != nil {
		s.decodeErrors.Add(1)
		metrics.MessagesSkipped.WithLabelValues("decode").Inc()
		s.logger.Warn("Dropping undecodable frame", zap.Error(err), zap.Int("bytes", len(raw)))
		return
	}

	if err := s.queue.Put(ctx, msg); err != nil {
		s.logger.Debug("Frame not enqueued", zap.Uint64("seq", msg.Seq), zap.Error(err))
		return
	}
	s.received.Add(1)
	metrics.MessagesReceived.Inc()
	metrics.QueueDepth.Set(float64(s.queue.Len()))
}

// OnKeepAlive implements Events.
func (s *Source) OnKeepAlive(ctx context.Context, payload []byte) {
	s.moveTo(StateKeepAlive)
	s.keepAlives.Add(1)
	metrics.ConnectionEvents.WithLabelValues("keepalive").Inc()
	s.logger.Info("Got a ping, pong already sent", zap.ByteString("payload", payload))
}

// OnError implements Events. The source goes straight to closed and
// releases the consumer.
func (s *Source) OnError(ctx context.Context, err error) {
	s.recordErr(err)
	metrics.ConnectionEvents.WithLabelValues("error").Inc()
	s.logger.Error("Transport error", zap.Error(err))
	s.finish()
}

// OnClose implements Events.
func (s *Source) OnClose(ctx context.Context, code int, reason string) {
	metrics.ConnectionEvents.WithLabelValues("close").Inc()
	if code != 0 {
		s.logger.Info("Connection closed", zap.Int("code", code), zap.String("reason", reason))
	} else {
		s.logger.Warn("Connection closed by error")
	}
	s.moveTo(StateClosing)
	s.finish()
}

func (s *Source) finish() {
	s.moveTo(StateClosed)
	s.queue.Shutdown()
}

func (s *Source) recordErr(err error) {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	s.lastErr = err
}

// moveTo applies a transition if the state machine allows it.
func (s *Source) moveTo(next State) {
	for {
		cur := State(s.state.Load())
		if cur == next || !cur.canMove(next) {
			return
		}
		if s.state.CompareAndSwap(int32(cur), int32(next)) {
			return
		}
	}
}
