package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Aidin1998/pricefeed/internal/config"
	"github.com/Aidin1998/pricefeed/internal/counter"
	"github.com/Aidin1998/pricefeed/pkg/logger"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "path to config file (defaults to the standard search paths)")
	flag.Parse()

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

	modes, err := cfg.Race.Modes()
	if err != nil {
		zapLogger.Fatal("Invalid locking mode", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	for _, mode := range modes {
		rc := counter.RaceConfig{
			Workers: cfg.Race.Workers,
			Amount:  cfg.Race.Amount,
			Repeats: cfg.Race.Repeats,
			Locking: mode,
		}
		started := time.Now()
		summary, err := counter.RunTrials(ctx, rc, cfg.Race.Trials, func(trial int, r counter.TrialResult) {
			zapLogger.Info("Trial finished",
				zap.Stringer("locking", mode),
				zap.Int("trial", trial),
				zap.Int64("expected", r.Expected),
				zap.Int64("got", r.Got),
				zap.Int64("deviation", r.Deviation()))
		})
		if err != nil {
			zapLogger.Error("Race interrupted", zap.Stringer("locking", mode), zap.Error(err))
			zapLogger.Sync()
			os.Exit(1)
		}
		zapLogger.Info("Race summary",
			zap.Stringer("locking", mode),
			zap.Stringer("summary", summary),
			zap.Int("deviated", summary.Deviated),
			zap.Duration("elapsed", time.Since(started)))
	}
}
