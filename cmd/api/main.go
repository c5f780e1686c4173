package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path"
	"strconv"
	"syscall"

	"github.com/dvloznov/retail-etl/internal/api"
	"github.com/dvloznov/retail-etl/internal/api/handlers"
	"github.com/dvloznov/retail-etl/internal/app"
	"github.com/dvloznov/retail-etl/internal/config"
	"github.com/dvloznov/retail-etl/internal/jobs"
	"github.com/dvloznov/retail-etl/internal/jobs/inmemory"
	"github.com/dvloznov/retail-etl/internal/logger"
	"github.com/dvloznov/retail-etl/internal/objectstore"
)

func main() {
	// Parse command-line flags
	envFile := flag.String("env-file", ".env", "Optional dotenv file")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		log := logger.New()
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Initialize logger
	log, err := logger.NewFromConfig(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid log configuration")
	}

	ctx := logger.WithContext(context.Background(), log)

	session, err := app.NewSession(ctx, cfg, app.Options{})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create session")
	}
	defer session.Close()

	runner, err := session.Runner()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create pipeline runner")
	}

	// Initialize job infrastructure
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(cfg.Worker.QueueSize, cfg.Worker.Workers, jobStore)

	// Start worker in background to process jobs
	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	go func() {
		log.Info().Int("workers", cfg.Worker.Workers).Msg("Starting job worker")
		if err := jobQueue.Start(workerCtx, withTimeout(jobs.NewRunPipelineHandler(runner), cfg)); err != nil {
			log.Error().Err(err).Msg("Job worker stopped with error")
		}
	}()

	uploadRoot, err := objectstore.ParseURI(cfg.Source.URI)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid source URI")
	}
	uploadRoot.Key = path.Dir(uploadRoot.Key)
	if uploadRoot.Key == "." {
		uploadRoot.Key = ""
	}

	handler := api.NewRouter(api.Handlers{
		Runs: handlers.NewRunsHandler(jobQueue, session.Ledger, handlers.RunDefaults{
			SourceURI:  cfg.Source.URI,
			OutputURI:  cfg.Output.URI,
			MaxRetries: cfg.Worker.MaxRetries,
		}),
		Workbooks: handlers.NewWorkbooksHandler(session, uploadRoot, cfg.HTTP.MaxUploadBytes),
		Jobs:      handlers.NewJobsHandler(jobStore),
	}, cfg.HTTP.AuthToken, log)

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.HTTP.Port),
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Int("port", cfg.HTTP.Port).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Stop job queue and wait for in-flight jobs
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}

	cancelWorker()

	log.Info().Msg("Server exited")
}

// withTimeout bounds every job by the configured job timeout.
func withTimeout(next jobs.JobHandler, cfg *config.Config) jobs.JobHandler {
	return func(ctx context.Context, job jobs.Job) error {
		ctx, cancel := context.WithTimeout(ctx, cfg.Worker.JobTimeout)
		defer cancel()
		return next(ctx, job)
	}
}
