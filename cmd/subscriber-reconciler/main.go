package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/magabrotheeeer/subscriber-service/internal/app/reconciler"
	"github.com/magabrotheeeer/subscriber-service/internal/config"
	"github.com/magabrotheeeer/subscriber-service/internal/lib/logger"
	"github.com/magabrotheeeer/subscriber-service/internal/lib/sl"
)

func main() {
	cfg := config.MustLoad()
	log := logger.New(cfg.Env)

	log.Info("starting subscriber reconciler", slog.String("env", cfg.Env))
	log.Debug("config loaded", slog.String("config", cfg.String()))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := reconciler.New(ctx, cfg, log)
	if err != nil {
		log.Error("failed to initialize reconciler app", sl.Err(err))
		os.Exit(1)
	}

	if err := app.Run(ctx); err != nil {
		log.Error("reconciler app stopped with error", sl.Err(err))
		os.Exit(1)
	}

	log.Info("reconciler app stopped gracefully")
}
