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
	"github.com/dvloznov/retail-etl/internal/logger"
	"github.com/dvloznov/retail-etl/internal/pipeline"
)

func main() {
	// Parse CLI flags
	envFile := flag.String("env-file", ".env", "Optional dotenv file")
	source := flag.String("source", "", "Workbook URI (e.g. s3://raw/online_retail_II.xlsx)")
	output := flag.String("output", "", "Output root URI (e.g. s3://lake/retail)")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		log := logger.New()
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if *source != "" {
		cfg.Source.URI = *source
	}
	if *output != "" {
		cfg.Output.URI = *output
	}

	// Initialize structured logger
	log, err := logger.NewFromConfig(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid log configuration")
	}

	// Cancel the run on interrupt and bound it by the job timeout
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, cfg.Worker.JobTimeout)
	defer cancel()

	// Add logger to context
	ctx = logger.WithContext(ctx, log)

	if err := run(ctx, cfg); err != nil {
		log.Error().Err(err).Msg("ETL failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	session, err := app.NewSession(ctx, cfg, app.Options{})
	if err != nil {
		return err
	}
	defer session.Close()

	runner, err := session.Runner()
	if err != nil {
		return err
	}

	log := logger.FromContext(ctx)
	log.Info().Str("source_uri", cfg.Source.URI).Str("output_uri", cfg.Output.URI).Msg("Starting ETL")

	info, result, err := runner.Run(ctx, pipeline.Request{
		SourceURI: cfg.Source.URI,
		OutputURI: cfg.Output.URI,
		Trigger:   domain.TriggerCLI,
	})
	if err != nil {
		return err
	}

	log.Info().
		Str("run_id", info.ID).
		Int("tables", len(result.Outputs)).
		Int("rows_out", result.Stats.Output).
		Msg("ETL completed successfully")
	return nil
}
