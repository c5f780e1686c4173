package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path"
	"time"

	"github.com/dvloznov/retail-etl/internal/app"
	"github.com/dvloznov/retail-etl/internal/config"
	"github.com/dvloznov/retail-etl/internal/domain"
	"github.com/dvloznov/retail-etl/internal/logger"
	"github.com/dvloznov/retail-etl/internal/objectstore"
	"github.com/dvloznov/retail-etl/internal/pipeline"
	"github.com/rs/zerolog"
)

// exitCode is set by commands that fail after the session is open so that
// deferred cleanup still runs.
var exitCode int

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		runPipeline()
	case "upload":
		runUpload()
	case "inspect":
		runInspect()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
	os.Exit(exitCode)
}

func printUsage() {
	fmt.Println("Retail ETL CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  run       Run the ETL once and print the business summary")
	fmt.Println("  upload    Upload a local workbook to the source location")
	fmt.Println("  inspect   List recent runs from the run ledger")
	fmt.Println("  help      Show this help message")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
}

// bootstrap loads configuration, builds the logger and opens a session.
func bootstrap(envFile string) (context.Context, zerolog.Logger, *config.Config, *app.Session) {
	cfg, err := config.Load(envFile)
	if err != nil {
		log := logger.New()
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log, err := logger.NewFromConfig(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid log configuration")
	}
	ctx := logger.WithContext(context.Background(), log)

	session, err := app.NewSession(ctx, cfg, app.Options{})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create session")
	}
	return ctx, log, cfg, session
}

func runPipeline() {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	envFile := fs.String("env-file", ".env", "Optional dotenv file")
	source := fs.String("source", "", "Workbook URI (defaults to RETAIL_SOURCE_URI)")
	output := fs.String("output", "", "Output root URI (defaults to RETAIL_OUTPUT_URI)")
	dryRun := fs.Bool("dry-run", false, "Run every stage but keep outputs in memory")
	fs.Parse(os.Args[2:])

	ctx, log, cfg, session := bootstrap(*envFile)

	if *source == "" {
		*source = cfg.Source.URI
	}
	if *output == "" {
		*output = cfg.Output.URI
	}

	runner, err := session.Runner()
	if err != nil {
		session.Close()
		log.Fatal().Err(err).Msg("Failed to create pipeline runner")
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.Worker.JobTimeout)
	info, result, err := runner.Run(ctx, pipeline.Request{
		SourceURI: *source,
		OutputURI: *output,
		Trigger:   domain.TriggerCLI,
		DryRun:    *dryRun,
	})
	cancel()
	session.Close()
	if err != nil {
		log.Fatal().Err(err).Str("run_id", info.ID).Msg("Run failed")
	}

	fmt.Printf("Run %s completed: %d tables written", info.ID, len(result.Outputs))
	if *dryRun {
		fmt.Print(" (dry run)")
	}
	fmt.Println()
}

func runUpload() {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	envFile := fs.String("env-file", ".env", "Optional dotenv file")
	filePath := fs.String("file", "", "Path to local workbook")
	dest := fs.String("dest", "", "Destination URI (defaults to the file name next to RETAIL_SOURCE_URI)")
	fs.Parse(os.Args[2:])

	if *filePath == "" {
		fmt.Fprintln(os.Stderr, "Usage: cli upload -file PATH [-dest URI]")
		os.Exit(1)
	}

	ctx, log, cfg, session := bootstrap(*envFile)
	defer session.Close()

	var loc objectstore.Location
	var err error
	if *dest != "" {
		loc, err = objectstore.ParseURI(*dest)
	} else {
		loc, err = objectstore.ParseURI(cfg.Source.URI)
		loc.Key = objectstore.DefaultKey(path.Dir(loc.Key), *filePath)
	}
	if err != nil {
		log.Error().Err(err).Msg("Invalid destination")
		exitCode = 1
		return
	}

	store, err := session.Store(ctx, loc)
	if err != nil {
		log.Error().Err(err).Msg("Failed to open destination store")
		exitCode = 1
		return
	}

	log.Info().
		Str("file", *filePath).
		Str("dest", loc.String()).
		Msg("Uploading workbook")

	if err := objectstore.UploadFile(ctx, store, loc.Key, *filePath); err != nil {
		log.Error().Err(err).Msg("Upload failed")
		exitCode = 1
		return
	}

	fmt.Printf("Uploaded %s to %s\n", *filePath, loc.String())
}

func runInspect() {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	envFile := fs.String("env-file", ".env", "Optional dotenv file")
	limit := fs.Int("limit", 10, "Number of runs to show")
	fs.Parse(os.Args[2:])

	ctx, log, _, session := bootstrap(*envFile)
	defer session.Close()

	runs, err := session.Ledger.ListRecentRuns(ctx, *limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list runs")
		exitCode = 1
		return
	}

	fmt.Printf("\n=== Recent runs (%d) ===\n", len(runs))
	for i, run := range runs {
		fmt.Printf("\n%d. %s [%s]\n", i+1, run.ID, run.Status)
		fmt.Printf("   Trigger:  %s\n", run.Trigger)
		fmt.Printf("   Source:   %s\n", run.SourceURI)
		fmt.Printf("   Output:   %s\n", run.OutputURI)
		fmt.Printf("   Started:  %s\n", run.StartedAt.Format(time.RFC3339))
		if run.FinishedAt != nil {
			fmt.Printf("   Duration: %s\n", run.FinishedAt.Sub(run.StartedAt).Round(time.Second))
		}
		if run.FailedStage != "" {
			fmt.Printf("   Failed:   %s: %s\n", run.FailedStage, run.ErrorMessage)
		}
		if run.Summary != nil {
			fmt.Printf("   Revenue:  £%s across %d orders\n", run.Summary.TotalRevenue.StringFixed(2), run.Summary.TotalOrders)
		}
		if run.Stats != nil {
			fmt.Printf("   Rows:     %d in, %d out\n", run.Stats.Input, run.Stats.Output)
		}
	}
	fmt.Println()
}
