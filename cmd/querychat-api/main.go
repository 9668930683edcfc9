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

	"github.com/querychat/querychat/internal/api"
	"github.com/querychat/querychat/internal/api/uistatic"
	"github.com/querychat/querychat/internal/app"
	"github.com/querychat/querychat/internal/config"
	"github.com/querychat/querychat/internal/observability"
)

func main() {
	cfg, err := config.LoadFromEnv("querychat-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, app.Options{Logger: logger})
	if err != nil {
		logger.Error("failed to build question pipeline", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = application.Close() }()

	defaults := cfg.Database.Params()
	deps := api.Dependencies{
		Logger:            logger,
		Pipeline:          application.Pipeline,
		Connections:       application.Gateway,
		Catalog:           application.Catalog,
		Readiness:         api.CheckDatabaseConnection(application.Gateway, defaults),
		DependencyTimeout: 2 * time.Second,
		UI: uistatic.Handler(uistatic.Options{
			Defaults: defaults,
			RAG:      application.Retriever != nil,
		}),
	}
	if application.Retriever != nil {
		deps.Retriever = application.Retriever
	}

	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      api.NewHandler(cfg, deps),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	go func() {
		logger.Info("starting api server", slog.String("addr", cfg.HTTP.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}
