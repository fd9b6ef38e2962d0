package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Aidin1998/pricefeed/internal/consumer"
	"github.com/Aidin1998/pricefeed/internal/pipeline"
	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
)

// StatusProvider reports the running pipeline state.
type StatusProvider interface {
	Status() pipeline.Status
}

// PriceBoard is a consumer.Sink holding the latest snapshot for readers on
// other goroutines. The loop hands it copies, so the book itself stays
// unshared.
type PriceBoard struct {
	mu      sync.RWMutex
	latest  consumer.Snapshot
	updated time.Time
}

// Name implements consumer.Sink.
func (b *PriceBoard) Name() string { return "board" }

// Observe implements consumer.Sink.
func (b *PriceBoard) Observe(_ context.Context, u consumer.Update) error {
	b.mu.Lock()
	b.latest = u.Snapshot
	b.updated = time.Now()
	b.mu.Unlock()
	return nil
}

// Latest returns the last snapshot and when it arrived.
func (b *PriceBoard) Latest() (consumer.Snapshot, time.Time) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.latest, b.updated
}

// Server represents the status server
type Server struct {
	router *gin.Engine
	logger *zap.Logger
	status StatusProvider
	board  *PriceBoard
	srv    *http.Server
}

// NewServer creates a status server over the pipeline and its price board
func NewServer(logger *zap.Logger, status StatusProvider, board *PriceBoard) *Server {
	router := gin.New()

	router.Use(ginzap.Ginzap(logger, time.RFC3339, true))
	router.Use(ginzap.RecoveryWithZap(logger, true))
	router.Use(otelgin.Middleware("pricefeed-api"))
	router.Use(cors.New(cors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{"GET", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}))

	s := &Server{
		router: router,
		logger: logger.Named("api"),
		status: status,
		board:  board,
	}
	s.registerRoutes()
	return s
}

// Router returns the internal Gin engine for testing purposes
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Start serves on addr until Shutdown. It returns nil after a clean shutdown.
func (s *Server) Start(addr string) error {
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.logger.Info("Starting status server", zap.String("addr", addr))
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) registerRoutes() {
	s.router.GET("/healthz", s.healthCheck)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/status", s.getStatus)
		v1.GET("/prices", s.getPrices)
		v1.GET("/prices/:symbol", s.getPrice)
	}
}

// healthCheck reports 200 while the source is connected, 503 otherwise.
func (s *Server) healthCheck(c *gin.Context) {
	st := s.status.Status()
	code := http.StatusOK
	switch st.Source.State {
	case "open", "receiving", "keepalive":
	default:
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"state":       st.Source.State,
		"queue_depth": st.QueueDepth,
	})
}

func (s *Server) getStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.status.Status())
}

func (s *Server) getPrices(c *gin.Context) {
	snap, updated := s.board.Latest()
	if snap == nil {
		snap = consumer.Snapshot{}
	}
	c.JSON(http.StatusOK, gin.H{
		"prices":     snap,
		"updated_at": updated,
	})
}

func (s *Server) getPrice(c *gin.Context) {
	symbol := strings.ToUpper(c.Param("symbol"))
	snap, _ := s.board.Latest()
	for _, e := range snap {
		if e.Symbol == symbol {
			c.JSON(http.StatusOK, e)
			return
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "unknown symbol", "symbol": symbol})
}
