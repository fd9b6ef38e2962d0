// Package pipeline wires a message source to the consumer loop through a
// bounded queue and manages their lifecycle.
package pipeline

import (
	"context"
	"time"

	"github.com/Aidin1998/pricefeed/internal/consumer"
	"github.com/Aidin1998/pricefeed/internal/feed"
	"github.com/Aidin1998/pricefeed/internal/market"
	"github.com/Aidin1998/pricefeed/internal/queue"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Config sizes the pipeline.
type Config struct {
	QueueCapacity    int
	LagWarnThreshold int
	Extractor        market.Extractor
}

// Status is a point-in-time view of the running pipeline.
type Status struct {
	Source        feed.SourceStats   `json:"source"`
	Consumer      consumer.LoopStats `json:"consumer"`
	QueueDepth    int                `json:"queue_depth"`
	QueueCapacity int                `json:"queue_capacity"`
	QueueClosed   bool               `json:"queue_closed"`
	QueueStats    queue.Stats        `json:"queue_stats"`
}

// Pipeline owns the queue, the source goroutine and the consumer loop.
type Pipeline struct {
	queue     *queue.Bounded[market.Message]
	source    *feed.Source
	loop      *consumer.Loop
	transport feed.Transport
	logger    *zap.Logger
}

// New assembles a pipeline reading from transport.
func New(cfg Config, transport feed.Transport, logger *zap.Logger, sinks ...consumer.Sink) *Pipeline {
	extractor := cfg.Extractor
	if len(extractor.Symbol) == 0 || len(extractor.Price) == 0 {
		extractor = market.KlineExtractor()
	}

	q := queue.New[market.Message](cfg.QueueCapacity)
	return &Pipeline{
		queue:  q,
		source: feed.NewSource(q, logger),
		loop: consumer.New(q, logger,
			consumer.WithExtractor(extractor),
			consumer.WithLagThreshold(cfg.LagWarnThreshold),
			consumer.WithSinks(sinks...),
		),
		transport: transport,
		logger:    logger.Named("pipeline"),
	}
}

// Run starts the source and the consumer and blocks until both finish.
// Cancelling ctx closes the transport; the source then shuts the queue and
// the consumer drains what is left before returning. The error is the
// transport's connect error, if it never opened.
func (p *Pipeline) Run(ctx context.Context) error {
	started := time.Now()
	p.logger.Info("Starting pipeline",
		zap.String("source_id", p.source.ID()),
		zap.Int("queue_capacity", p.queue.Cap()))

	var g errgroup.Group
	g.Go(func() error {
		return p.source.Run(ctx, p.transport)
	})
	g.Go(func() error {
		// the loop ends on queue shutdown, not on ctx, so buffered messages drain
		return p.loop.Run(context.WithoutCancel(ctx))
	})
	err := g.Wait()

	st := p.Status()
	p.logger.Info("Pipeline stopped",
		zap.Duration("uptime", time.Since(started)),
		zap.Uint64("received", st.Source.Received),
		zap.Uint64("processed", st.Consumer.Processed),
		zap.Uint64("skipped", st.Consumer.Skipped),
		zap.Error(err))
	return err
}

// Status reports source, queue and consumer counters; safe while running.
func (p *Pipeline) Status() Status {
	return Status{
		Source:        p.source.Stats(),
		Consumer:      p.loop.Stats(),
		QueueDepth:    p.queue.Len(),
		QueueCapacity: p.queue.Cap(),
		QueueClosed:   p.queue.Closed(),
		QueueStats:    p.queue.Stats(),
	}
}

// Book returns the final price book. Call it after Run has returned.
func (p *Pipeline) Book() consumer.Snapshot {
	return p.loop.Book()
}
