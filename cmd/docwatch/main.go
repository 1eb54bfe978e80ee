package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"github.com/Adda-Baaj/fia-docwatch/internal/app"
	"github.com/Adda-Baaj/fia-docwatch/internal/config"
	"github.com/Adda-Baaj/fia-docwatch/internal/logger"
	"github.com/Adda-Baaj/fia-docwatch/internal/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "docwatch start failed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	sugar, err := logger.Init(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Close()
	log := logger.New(sugar.Desugar())

	logger.InfoObj("docwatch starting", "config", cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	watcher, err := app.Build(ctx, cfg, log)
	if err != nil {
		logger.ErrorObj("failed to initialize watcher", "error", err.Error())
		return err
	}

	if cfg.MetricsAddr != "" {
		srv := server.NewServer(watcher, log)
		go func() {
			if err := srv.ListenAndServe(ctx, cfg.MetricsAddr); err != nil {
				logger.ErrorObj("status server stopped", "error", err.Error())
			}
		}()
	}

	if err := watcher.Run(ctx); err != nil {
		return fmt.Errorf("watcher run: %w", err)
	}

	return nil
}
