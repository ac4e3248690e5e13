// Package main provides the openBIM service API server entrypoint.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/louistrue/openBIM-service/internal/config"
	"github.com/louistrue/openBIM-service/internal/observability"
	"github.com/louistrue/openBIM-service/internal/storage"
	"github.com/louistrue/openBIM-service/internal/task"
	"github.com/louistrue/openBIM-service/internal/tmpfile"
)

func main() {
	// .env is optional; environment overrides win over YAML either way.
	_ = godotenv.Load()

	cfgPath := os.Getenv("CONFIG_PATH")
	if len(os.Args) > 2 && os.Args[1] == "--config" {
		cfgPath = os.Args[2]
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		ServiceName: cfg.Observability.ServiceName,
	})

	logger.Info().
		Str("host", cfg.Server.Host).
		Int("port", cfg.Server.Port).
		Str("task_store", cfg.Database.Driver).
		Bool("auth", cfg.Auth.Enabled).
		Msg("Starting openBIM service API")

	// Task store: in-memory by default, SQLite when configured so task
	// state survives restarts.
	var store task.Store
	switch cfg.Database.Driver {
	case "sqlite":
		db, err := storage.Open(cfg.Database.SQLite.Path)
		if err != nil {
			logger.Error().Err(err).Str("path", cfg.Database.SQLite.Path).Msg("Failed to open task database")
			os.Exit(1)
		}
		defer db.Close()
		store = storage.NewTaskRepository(db)
	default:
		store = task.NewMemoryStore()
	}

	dispatcher := task.NewDispatcher(logger, task.DispatcherConfig{
		MaxAttempts:    cfg.Callback.MaxAttempts,
		BaseDelay:      cfg.Callback.BaseDelay,
		MaxDelay:       cfg.Callback.MaxDelay,
		AttemptTimeout: cfg.Callback.AttemptTimeout,
	})

	manager := task.NewManager(logger, store, dispatcher, task.ManagerConfig{
		Workers:       cfg.Tasks.Workers,
		QueueSize:     cfg.Tasks.QueueSize,
		Retention:     cfg.Tasks.Retention,
		SweepInterval: cfg.Tasks.SweepInterval,
	})

	runCtx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()
	manager.Start(runCtx)

	janitor := tmpfile.NewJanitor(logger, cfg.Upload.TempDir, cfg.Upload.JanitorMaxAge, cfg.Upload.JanitorSweep)
	janitor.Start(runCtx)

	router := NewRouter(logger, cfg, manager)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("HTTP server listening")
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error().Err(err).Msg("Server error")
	case sig := <-shutdown:
		logger.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	}

	// Graceful shutdown: stop accepting requests, then drain workers.
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdown)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Graceful shutdown failed")
		if err := srv.Close(); err != nil {
			logger.Error().Err(err).Msg("Forced shutdown failed")
		}
	}

	cancelRun()
	manager.Close()

	logger.Info().Msg("Server stopped")
}
