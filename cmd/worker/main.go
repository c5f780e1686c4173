package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/dvloznov/retail-etl/internal/app"
	"github.com/dvloznov/retail-etl/internal/config"
	"github.com/dvloznov/retail-etl/internal/domain"
	"github.com/dvloznov/retail-etl/internal/jobs"
	"github.com/dvloznov/retail-etl/internal/jobs/inmemory"
	"github.com/dvloznov/retail-etl/internal/logger"
)

func main() {
	envFile := flag.String("env-file", ".env", "Optional dotenv file")
	runNow := flag.Bool("run-now", false, "Enqueue one run at startup")
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

	// Create context that cancels on interrupt
	ctx, cancel := context.WithCancel(logger.WithContext(context.Background(), log))
	defer cancel()

	session, err := app.NewSession(ctx, cfg, app.Options{})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create session")
	}
	defer session.Close()

	runner, err := session.Runner()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create pipeline runner")
	}

	// Jobs live in process; the schedule and -run-now are the only producers.
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(cfg.Worker.QueueSize, cfg.Worker.Workers, jobStore)

	log.Info().Msg("Starting worker service")

	handler := jobs.NewRunPipelineHandler(runner)
	timed := func(ctx context.Context, job jobs.Job) error {
		ctx, cancel := context.WithTimeout(ctx, cfg.Worker.JobTimeout)
		defer cancel()
		return handler(ctx, job)
	}

	// Start consuming jobs
	if err := jobQueue.Start(ctx, timed); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job consumer")
	}

	template := jobs.RunPipelineJob{
		SourceURI:  cfg.Source.URI,
		OutputURI:  cfg.Output.URI,
		MaxRetries: cfg.Worker.MaxRetries,
	}

	var scheduler *jobs.Scheduler
	if cfg.Worker.Schedule != "" {
		scheduler, err = jobs.NewScheduler(ctx, cfg.Worker.Schedule, jobQueue, template)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create scheduler")
		}
		scheduler.Start()
		log.Info().Str("schedule", cfg.Worker.Schedule).Msg("Scheduled runs enabled")
	}

	if *runNow {
		job := template
		job.Trigger = domain.TriggerCLI
		if err := jobQueue.PublishRunPipeline(ctx, &job); err != nil {
			log.Fatal().Err(err).Msg("Failed to enqueue startup run")
		}
		log.Info().Str("job_id", job.JobID).Msg("Startup run enqueued")
	}

	if scheduler == nil && !*runNow {
		log.Warn().Msg("No schedule configured and -run-now not set, worker is idle")
	}

	log.Info().Msg("Worker service started, waiting for jobs...")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down worker service...")

	if scheduler != nil {
		scheduler.Stop()
	}

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer shutdownCancel()

	// Stop the queue and wait for in-flight jobs
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during graceful shutdown")
	}

	// Cancel context to stop workers
	cancel()

	log.Info().Msg("Worker service exited")
}
