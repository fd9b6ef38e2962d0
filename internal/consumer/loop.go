// Package consumer drains the message queue on a single goroutine and keeps
// the latest price per symbol.
package consumer

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/Aidin1998/pricefeed/internal/market"
	"github.com/Aidin1998/pricefeed/internal/queue"
	"github.com/Aidin1998/pricefeed/pkg/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "github.com/Aidin1998/pricefeed/internal/consumer"

// Loop is the queue's consumer. The price book is owned by the goroutine
// running Run and is never shared; sinks get copies.
type Loop struct {
	queue   *queue.Bounded[market.Message]
	extract market.Extractor
	book    *PriceBook
	sinks   []Sink
	lagWarn int
	logger  *zap.Logger
	tracer  trace.Tracer
	now     func() time.Time

	processed atomic.Uint64
	skipped   atomic.Uint64
	lagging   bool
}

// LoopStats is a snapshot of loop counters.
type LoopStats struct {
	Processed uint64 `json:"processed"`
	Skipped   uint64 `json:"skipped"`
}

// Option configures a Loop.
type Option func(*Loop)

// WithExtractor sets how symbol and price are read from messages.
func WithExtractor(e market.Extractor) Option {
	return func(l *Loop) { l.extract = e }
}

// WithSinks adds observers of every update.
func WithSinks(sinks ...Sink) Option {
	return func(l *Loop) { l.sinks = append(l.sinks, sinks...) }
}

// WithLagThreshold warns when at least n messages are waiting after one is
// handled, applied or skipped, a sign the loop is not keeping up with the
// source. Zero disables it.
func WithLagThreshold(n int) Option {
	return func(l *Loop) { l.lagWarn = n }
}

// WithTracerProvider traces every handled message through tp instead of the
// global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(l *Loop) { l.tracer = tp.Tracer(tracerName) }
}

// New creates a loop draining q.
func New(q *queue.Bounded[market.Message], logger *zap.Logger, opts ...Option) *Loop {
	l := &Loop{
		queue:   q,
		extract: market.KlineExtractor(),
		book:    NewPriceBook(),
		logger:  logger.Named("consumer"),
		tracer:  otel.Tracer(tracerName),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run processes messages until the queue is shut down and drained (nil) or
// ctx ends (ctx.Err()). Messages without a symbol or price are skipped.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Info("Consumer loop started", zap.Int("queue_capacity", l.queue.Cap()))
	for {
		msg, err := l.queue.Get(ctx)
		if err != nil {
			if errors.Is(err, queue.ErrClosed) {
				l.logger.Info("Queue closed and drained, consumer loop exiting", zap.Any("stats", l.Stats()))
				return nil
			}
			return err
		}
		l.handle(ctx, msg)
	}
}

func (l *Loop) handle(ctx context.Context, msg market.Message) {
	ctx, span := l.tracer.Start(ctx, "consumer.handle",
		trace.WithAttributes(attribute.Int64("message.seq", int64(msg.Seq))))
	defer span.End()
	// skipped messages count toward lag too
	defer l.checkLag()

	quote, err := l.extract.Extract(msg)
	if err != nil {
		l.skipped.Add(1)
		reason := "missing_field"
		if errors.Is(err, market.ErrBadPrice) {
			reason = "bad_price"
		}
		metrics.MessagesSkipped.WithLabelValues(reason).Inc()
		span.SetAttributes(attribute.String("skip.reason", reason))
		l.logger.Debug("Skipping message", zap.Uint64("seq", msg.Seq), zap.Error(err))
		return
	}
	span.SetAttributes(attribute.String("quote.symbol", quote.Symbol))

	l.book.Set(quote.Symbol, quote.Price)
	l.processed.Add(1)
	metrics.MessagesProcessed.Inc()
	if !msg.ReceivedAt.IsZero() {
		metrics.ProcessLatency.Observe(l.now().Sub(msg.ReceivedAt).Seconds())
	}

	if len(l.sinks) == 0 {
		return
	}
	u := Update{Quote: quote, Snapshot: l.book.Snapshot()}
	for _, s := range l.sinks {
		if err := s.Observe(ctx, u); err != nil {
			metrics.SinkErrors.WithLabelValues(s.Name()).Inc()
			span.RecordError(err, trace.WithAttributes(attribute.String("sink", s.Name())))
			l.logger.Warn("Sink failed", zap.String("sink", s.Name()), zap.Error(err))
		}
	}
}

func (l *Loop) checkLag() {
	depth := l.queue.Len()
	metrics.QueueDepth.Set(float64(depth))
	if l.lagWarn <= 0 {
		return
	}
	switch {
	case depth >= l.lagWarn && !l.lagging:
		l.lagging = true
		l.logger.Warn("Consumer falling behind source", zap.Int("queue_depth", depth), zap.Int("threshold", l.lagWarn))
	case depth < l.lagWarn && l.lagging:
		l.lagging = false
		l.logger.Info("Consumer caught up", zap.Int("queue_depth", depth))
	}
}

// Stats returns counters; safe from any goroutine.
func (l *Loop) Stats() LoopStats {
	return LoopStats{
		Processed: l.processed.Load(),
		Skipped:   l.skipped.Load(),
	}
}

// Book returns a copy of the price book. Call it only after Run has returned;
// while the loop runs, observe the book through a Sink.
func (l *Loop) Book() Snapshot {
	return l.book.Snapshot()
}
