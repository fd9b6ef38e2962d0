package consumer

import (
	"context"

	"github.com/Aidin1998/pricefeed/internal/market"
	"go.uber.org/zap"
)

// Update is delivered to sinks after every applied quote.
type Update struct {
	Quote    market.Quote
	Snapshot Snapshot
}

// Sink observes price updates. Observe runs on the consumer goroutine, so a
// slow sink slows the loop and, through the queue, the source.
type Sink interface {
	Name() string
	Observe(ctx context.Context, u Update) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, u Update) error

// Name implements Sink.
func (f SinkFunc) Name() string { return "func" }

// Observe implements Sink.
func (f SinkFunc) Observe(ctx context.Context, u Update) error { return f(ctx, u) }

// LogSink writes every update and the full book to the logger.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a LogSink.
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger.Named("prices")}
}

// Name implements Sink.
func (s *LogSink) Name() string { return "log" }

// Observe implements Sink.
func (s *LogSink) Observe(_ context.Context, u Update) error {
	s.logger.Info("Price updated",
		zap.String("symbol", u.Quote.Symbol),
		zap.String("price", u.Quote.Price.String()),
		zap.Uint64("seq", u.Quote.Seq),
		zap.Object("book", u.Snapshot),
	)
	return nil
}
