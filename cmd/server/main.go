// Command server is the entry point for the Chirp API.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chirp/internal/bootstrap"
	"chirp/internal/config"
	"chirp/internal/middleware"
	"chirp/internal/server"
)

// @title Chirp API
// @version 1.0
// @description Microblogging API with timelines, follows, polls, notifications and media uploads
// @termsOfService http://swagger.io/terms/

// @contact.name API Support
// @contact.email support@chirp.dev

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8375
// @BasePath /api
// @schemes http https

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

func main() {
	if err := run(); err != nil {
		middleware.Logger.Error("server exited", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

const shutdownGrace = 15 * time.Second

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := bootstrap.InitRuntime(ctx, cfg, bootstrap.Options{
		Events:    true,
		Scheduler: true,
		Tracing:   cfg.TracingEnabled,
	})
	if err != nil {
		return fmt.Errorf("initialize runtime: %w", err)
	}

	srv, err := server.NewServer(rt)
	if err != nil {
		_ = rt.Close(context.Background())
		return fmt.Errorf("create server: %w", err)
	}
	rt.Start(ctx)

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Start() }()

	select {
	case <-ctx.Done():
		middleware.Logger.Info("shutdown signal received")
	case err = <-serveErr:
		middleware.Logger.Error("listener stopped", slog.String("error", err.Error()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	return errors.Join(err, srv.Shutdown(shutdownCtx), rt.Close(shutdownCtx))
}
