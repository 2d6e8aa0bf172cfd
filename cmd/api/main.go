package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/josh-kwaku/agency-ledger/internal/app"
	"github.com/josh-kwaku/agency-ledger/internal/config"
	"github.com/josh-kwaku/agency-ledger/internal/handler"
	"github.com/josh-kwaku/agency-ledger/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.Init("agency-ledger", cfg.LogLevel, cfg.AppEnv)

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	startupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	a, err := app.New(startupCtx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("closing resources failed", "error", err)
		}
	}()

	readiness := map[string]handler.Pinger{}
	if a.Redis != nil {
		readiness["redis"] = func(ctx context.Context) error { return a.Redis.Ping(ctx).Err() }
	}

	retryDone := make(chan struct{})
	go func() {
		defer close(retryDone)
		a.Retry.Start(ctx)
	}()

	mux := newRouter(routerDeps{
		cfg:         cfg,
		payments:    handler.NewPaymentHandler(a.Settlement),
		operators:   handler.NewOperatorHandler(a.Settlement),
		accounts:    handler.NewAccountHandler(a.Accounts, a.Poster),
		fx:          handler.NewFXHandler(a.Rates),
		auth:        handler.NewAuthHandler(a.Users, cfg.JWTSecret, cfg.JWTExpiry),
		health:      handler.NewHealthHandler(a.DB, readiness),
		idempotency: a.Idempotency,
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server started", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	select {
	case err := <-serveErr:
		stop()
		<-retryDone
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	<-retryDone

	logger.Info("server stopped")
	return nil
}
