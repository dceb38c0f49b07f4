// The filer daemon runs the response poller on a fixed tick and exposes the
// ops HTTP surface (healthz, metrics). Filing itself is triggered by the
// owning system or by rerxctl; this process only drains due polls.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"rerfiler/internal/platform/bootstrap"
	"rerfiler/internal/platform/config"
	"rerfiler/internal/platform/httpserver"
	"rerfiler/internal/platform/logger"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.FromEnv()
	if err != nil {
		slog.Error("configuration error", "error", err)
		os.Exit(1)
	}

	log := logger.New(slog.LevelInfo)

	app, err := bootstrap.New(cfg, log, true)
	if err != nil {
		log.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := app.AuditWorker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("audit worker stopped", "error", err)
		}
	}()

	srv := httpserver.New(cfg.OpsAddr)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("ops server error", "error", err)
		}
	}()

	log.Info("filer started",
		"environment", cfg.Environment,
		"transport", cfg.TransportBackend,
		"store", cfg.StoreBackend,
		"poll_tick", cfg.PollTick.String(),
	)

	ticker := time.NewTicker(cfg.PollTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Error("graceful shutdown failed", "error", err)
			}
			log.Info("filer stopped")
			return
		case <-ticker.C:
			if err := app.Service.PollDue(ctx); err != nil {
				log.Warn("poll pass finished with failures", "error", err)
			}
		}
	}
}
