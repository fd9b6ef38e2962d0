package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/Aidin1998/pricefeed/api"
	"github.com/Aidin1998/pricefeed/internal/config"
	"github.com/Aidin1998/pricefeed/internal/consumer"
	"github.com/Aidin1998/pricefeed/internal/feed"
	"github.com/Aidin1998/pricefeed/internal/marketdata"
	"github.com/Aidin1998/pricefeed/internal/pipeline"
	"github.com/Aidin1998/pricefeed/pkg/logger"
	"github.com/Aidin1998/pricefeed/pkg/tracing"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "path to config file (defaults to the standard search paths)")
	flag.Parse()

	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using environment variables")
	}

	var paths []string
	if *configPath != "" {
		paths = append(paths, *configPath)
	}
	cfg, err := config.Load(paths...)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zapLogger, err := logger.NewLogger(cfg.Log.Level)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zapLogger.Sync()

	flushTraces := func() {}
	if cfg.Tracing.Enabled {
		otelShutdown, err := tracing.Setup(context.Background(), tracing.Config{
			ServiceName: cfg.Tracing.ServiceName,
			PrettyPrint: cfg.Tracing.PrettyPrint,
		})
		if err != nil {
			zapLogger.Fatal("Failed to set up tracing", zap.Error(err))
		}
		flushTraces = func() {
			if err := otelShutdown(context.Background()); err != nil {
				zapLogger.Error("Failed to flush traces", zap.Error(err))
			}
		}
	}
	defer flushTraces()

	extractor, err := cfg.Extract.Extractor()
	if err != nil {
		zapLogger.Fatal("Invalid extraction paths", zap.Error(err))
	}

	transport, closeTransport, err := newTransport(cfg, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to open feed", zap.Error(err))
	}
	defer closeTransport()

	board := &api.PriceBoard{}
	sinks := []consumer.Sink{board}
	var closers []io.Closer
	if cfg.Sinks.Log {
		sinks = append(sinks, consumer.NewLogSink(zapLogger))
	}
	if cfg.Sinks.RedisAddr != "" {
		rs := marketdata.NewRedisSink(cfg.Sinks.RedisAddr, cfg.Sinks.RedisChannel)
		sinks = append(sinks, rs)
		closers = append(closers, rs)
	}
	if len(cfg.Sinks.KafkaBrokers) > 0 {
		ks := marketdata.NewKafkaSink(cfg.Sinks.KafkaBrokers, cfg.Sinks.KafkaTopic)
		sinks = append(sinks, ks)
		closers = append(closers, ks)
	}

	p := pipeline.New(pipeline.Config{
		QueueCapacity:    cfg.Queue.Capacity,
		LagWarnThreshold: cfg.Queue.LagWarnThreshold,
		Extractor:        extractor,
	}, transport, zapLogger, sinks...)

	var apiServer *api.Server
	if cfg.Status.Addr != "" {
		gin.SetMode(gin.ReleaseMode)
		apiServer = api.NewServer(zapLogger, p, board)
		go func() {
			if err := apiServer.Start(cfg.Status.Addr); err != nil {
				zapLogger.Fatal("Failed to start status server", zap.Error(err))
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runErr := p.Run(ctx)

	if apiServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Status.ShutdownTimeout)
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			zapLogger.Error("Failed to stop status server", zap.Error(err))
		}
		cancel()
	}
	for _, c := range closers {
		if err := c.Close(); err != nil {
			zapLogger.Error("Failed to close sink", zap.Error(err))
		}
	}

	if runErr != nil {
		if errors.Is(runErr, feed.ErrConnect) {
			zapLogger.Error("Could not connect to feed", zap.Error(runErr))
		} else {
			zapLogger.Error("Pipeline failed", zap.Error(runErr))
		}
		flushTraces()
		zapLogger.Sync()
		os.Exit(1)
	}

	final := p.Book()
	zapLogger.Info("Final prices", zap.Object("book", final))
}

// newTransport picks the replay file when configured, the live websocket otherwise.
func newTransport(cfg *config.Config, logger *zap.Logger) (feed.Transport, func(), error) {
	if cfg.Feed.ReplayFile != "" {
		t, f, err := feed.OpenReplay(cfg.Feed.ReplayFile, cfg.Feed.ReplayInterval)
		if err != nil {
			return nil, nil, err
		}
		return t, func() { f.Close() }, nil
	}
	ws := feed.NewWSTransport(cfg.Feed.URL(), logger)
	if cfg.Feed.HandshakeTimeout > 0 {
		ws.HandshakeTimeout = cfg.Feed.HandshakeTimeout
	}
	if cfg.Feed.WriteTimeout > 0 {
		ws.WriteTimeout = cfg.Feed.WriteTimeout
	}
	return ws, func() {}, nil
}
