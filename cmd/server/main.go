package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/servepics/servepics/internal/app"
	"github.com/servepics/servepics/internal/config"
	"github.com/servepics/servepics/internal/logger"
)

func main() {
	cfg := config.Load()

	logger.Init(cfg.IsDevelopment(), cfg.SentryDSN)

	app, err := app.New(cfg)
	if err != nil {
		slog.Error("failed to initialize app", "error", err)
		panic(err)
	}
	defer func() {
		closeErr := app.Close()
		if closeErr != nil {
			slog.Error("failed to close app", "error", closeErr)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go app.Reaper.Run(ctx)

	slog.Info("server started", "env", cfg.AppEnv, "storage", cfg.StoragePath)

	<-ctx.Done()
	slog.Info("shutting down")
}
