// Package main provides the API router setup.
package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/louistrue/openBIM-service/cmd/openbim-api/handlers"
	"github.com/louistrue/openBIM-service/cmd/openbim-api/middleware"
	"github.com/louistrue/openBIM-service/internal/config"
	"github.com/louistrue/openBIM-service/internal/observability"
	"github.com/louistrue/openBIM-service/internal/task"
)

// NewRouter creates the main API router with all routes configured.
func NewRouter(logger *observability.Logger, cfg *config.Config, tasks *task.Manager) http.Handler {
	r := chi.NewRouter()

	// Global middleware. No request timeout here: /process streams for
	// as long as the extraction runs; the server's write timeout bounds it.
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS([]string{"*"}))

	// Health check (unauthenticated)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"healthy","service":"openbim-service"}`))
	})

	limits := handlers.UploadLimits{
		MaxBytes: cfg.Upload.MaxBytes,
		TempDir:  cfg.Upload.TempDir,
	}

	processHandler := handlers.NewProcessHandler(logger, limits)
	extractHandler := handlers.NewExtractHandler(logger, tasks, limits, cfg.Extraction.DefaultPageSize)
	splitHandler := handlers.NewSplitHandler(logger, limits)
	taskHandler := handlers.NewTaskHandler(logger, tasks)

	r.Route("/api/ifc", func(r chi.Router) {
		r.Use(middleware.APIKey(middleware.APIKeyConfig{
			Enabled:      cfg.Auth.Enabled,
			Keys:         cfg.APIKeys(),
			MaxAttempts:  cfg.Auth.MaxAttempts,
			AttemptReset: cfg.Auth.AttemptReset,
		}))

		r.Post("/process", processHandler.Process)
		r.Post("/extract-building-elements", extractHandler.Extract)
		r.Post("/split-by-storey", splitHandler.Split)
		r.Get("/tasks/{taskId}", taskHandler.Get)
	})

	return r
}
