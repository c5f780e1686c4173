package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/retail-etl/internal/domain"
	"github.com/dvloznov/retail-etl/internal/logger"
	"github.com/dvloznov/retail-etl/internal/pipeline"
)

// PipelineRunner executes ETL runs.
type PipelineRunner interface {
	Run(ctx context.Context, req pipeline.Request) (domain.RunInfo, domain.RunResult, error)
}

// NewRunPipelineHandler returns a handler executing RunPipelineJobs with
// runner. Input errors (missing sheets, bad columns, unparseable URIs) are
// permanent; everything else is retried by the queue.
func NewRunPipelineHandler(runner PipelineRunner) JobHandler {
	return func(ctx context.Context, job Job) error {
		runJob, ok := job.(*RunPipelineJob)
		if !ok {
			return Permanent(fmt.Errorf("unexpected job type: %T", job))
		}

		log := logger.FromContext(ctx).With().Str("job_id", runJob.JobID).Logger()
		ctx = logger.WithContext(ctx, log)

		log.Info().
			Str("source_uri", runJob.SourceURI).
			Str("output_uri", runJob.OutputURI).
			Str("trigger", runJob.Trigger).
			Int("attempt", runJob.RetryCount+1).
			Msg("Processing run job")

		info, _, err := runner.Run(ctx, pipeline.Request{
			SourceURI: runJob.SourceURI,
			OutputURI: runJob.OutputURI,
			Trigger:   runJob.Trigger,
			DryRun:    runJob.DryRun,
		})
		runJob.RunID = info.ID
		if err != nil {
			log.Error().Err(err).Str("run_id", info.ID).Msg("Pipeline execution failed")
			var readErr *domain.SourceReadError
			var tsErr *domain.InvalidTimestampError
			if errors.As(err, &readErr) || errors.As(err, &tsErr) {
				return Permanent(err)
			}
			return err
		}

		log.Info().Str("run_id", info.ID).Msg("Pipeline execution completed successfully")
		return nil
	}
}
