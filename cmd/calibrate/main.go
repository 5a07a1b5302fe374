// Command calibrate serves the interactive calibration API: headed browser
// sessions, DOM sync, element highlighting and snapshot persistence.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/testscribe/testscribe/internal/config"
	"github.com/testscribe/testscribe/internal/observability"
	"github.com/testscribe/testscribe/internal/session"
	"github.com/testscribe/testscribe/internal/snapshot"
)

func main() {
	godotenv.Load()

	cfg, err := config.LoadWithDefaults()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	metrics := observability.NewMetrics("testscribe", nil)
	store := snapshot.NewStore(cfg.Snapshot.Root, logger)
	manager := session.NewManager(cfg.Session, cfg.Snapshot, store, metrics, logger)
	defer manager.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := session.NewServer(cfg.Server, manager, metrics, logger)
	if err := srv.Run(ctx); err != nil {
		logger.Error("server stopped", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	zapCfg := zap.NewProductionConfig()
	level, err := zap.ParseAtomicLevel(cfg.GetLogLevel())
	if err != nil {
		return nil, err
	}
	zapCfg.Level = level
	return zapCfg.Build()
}
