package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/ivankudzin/matchcore/internal/app/workerapp"
	"github.com/ivankudzin/matchcore/internal/config"
	"github.com/ivankudzin/matchcore/internal/infra/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "matchcore worker: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	path := os.Getenv("APP_CONFIG")
	if path == "" {
		path = "configs/config.yaml"
	}
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(cfg.Log.Level, cfg.Env)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() {
		_ = log.Sync()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := workerapp.New(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("create worker app: %w", err)
	}
	defer app.Close()

	log.Info("reconcile worker started", zap.Duration("interval", cfg.Jobs.ReconcileInterval))
	if err := app.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run worker: %w", err)
	}
	return nil
}
