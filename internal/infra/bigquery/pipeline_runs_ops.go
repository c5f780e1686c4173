package bigquery

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/retail-etl/internal/domain"
	"github.com/dvloznov/retail-etl/internal/logger"
	"google.golang.org/api/iterator"
)

const pipelineRunsTable = "pipeline_runs"

// runQuery runs a DML statement and waits for it to finish.
func runQuery(ctx context.Context, q *bigquery.Query) error {
	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("running query: %w", err)
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("waiting for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("job error: %w", err)
	}
	return nil
}

// StartRunWithClient inserts a new row into pipeline_runs with status=RUNNING.
func StartRunWithClient(ctx context.Context, client *bigquery.Client, datasetID string, run domain.RunInfo) error {
	q := client.Query(fmt.Sprintf(`
		INSERT %s.%s (
			run_id,
			source_uri,
			output_uri,
			trigger_source,
			started_ts,
			status
		)
		VALUES (
			@run_id,
			@source_uri,
			@output_uri,
			@trigger_source,
			@started_ts,
			@status
		)
	`, datasetID, pipelineRunsTable))

	q.Parameters = []bigquery.QueryParameter{
		{Name: "run_id", Value: run.ID},
		{Name: "source_uri", Value: run.SourceURI},
		{Name: "output_uri", Value: run.OutputURI},
		{Name: "trigger_source", Value: run.Trigger},
		{Name: "started_ts", Value: run.StartedAt},
		{Name: "status", Value: string(domain.RunStatusRunning)},
	}

	if err := runQuery(ctx, q); err != nil {
		return fmt.Errorf("StartRun: %w", err)
	}
	return nil
}

// MarkRunFailedWithClient sets status=FAILED, finished_ts, the failing stage
// and error_message. Errors are logged, not returned, so the original run
// failure stays the one reported to the caller.
func MarkRunFailedWithClient(ctx context.Context, client *bigquery.Client, datasetID, runID, stage string, runErr error) {
	log := logger.FromContext(ctx)

	q := client.Query(fmt.Sprintf(`
		UPDATE %s.%s
		SET status = @status,
		    finished_ts = @finished_ts,
		    failed_stage = @failed_stage,
		    error_message = @error_message
		WHERE run_id = @run_id
	`, datasetID, pipelineRunsTable))

	q.Parameters = []bigquery.QueryParameter{
		{Name: "status", Value: string(domain.RunStatusFailed)},
		{Name: "finished_ts", Value: time.Now()},
		{Name: "failed_stage", Value: stage},
		{Name: "error_message", Value: domain.TruncateError(runErr)},
		{Name: "run_id", Value: runID},
	}

	if err := runQuery(ctx, q); err != nil {
		log.Error().
			Err(err).
			Str("run_id", runID).
			Msg("MarkRunFailed: update failed")
	}
}

// MarkRunSucceededWithClient sets status=SUCCESS, finished_ts and the run
// counters, and clears error_message.
func MarkRunSucceededWithClient(ctx context.Context, client *bigquery.Client, datasetID, runID string, result domain.RunResult) error {
	metadata, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("MarkRunSucceeded: marshal metadata: %w", err)
	}

	q := client.Query(fmt.Sprintf(`
		UPDATE %s.%s
		SET status = @status,
		    finished_ts = @finished_ts,
		    error_message = "",
		    rows_input = @rows_input,
		    rows_output = @rows_output,
		    rows_dropped = @rows_dropped,
		    total_revenue = @total_revenue,
		    total_orders = @total_orders,
		    unique_customers = @unique_customers,
		    unique_products = @unique_products,
		    metadata = PARSE_JSON(@metadata)
		WHERE run_id = @run_id
	`, datasetID, pipelineRunsTable))

	q.Parameters = []bigquery.QueryParameter{
		{Name: "status", Value: string(domain.RunStatusSucceeded)},
		{Name: "finished_ts", Value: time.Now()},
		{Name: "rows_input", Value: int64(result.Stats.Input)},
		{Name: "rows_output", Value: int64(result.Stats.Output)},
		{Name: "rows_dropped", Value: int64(result.Stats.Dropped())},
		{Name: "total_revenue", Value: result.Summary.TotalRevenue.InexactFloat64()},
		{Name: "total_orders", Value: result.Summary.TotalOrders},
		{Name: "unique_customers", Value: result.Summary.UniqueCustomers},
		{Name: "unique_products", Value: result.Summary.UniqueProducts},
		{Name: "metadata", Value: string(metadata)},
		{Name: "run_id", Value: runID},
	}

	if err := runQuery(ctx, q); err != nil {
		return fmt.Errorf("MarkRunSucceeded: %w", err)
	}
	return nil
}

// ListRecentRunsWithClient returns up to limit runs, newest first.
func ListRecentRunsWithClient(ctx context.Context, client *bigquery.Client, datasetID string, limit int) ([]*PipelineRunRow, error) {
	q := client.Query(fmt.Sprintf(`
		SELECT
			run_id,
			source_uri,
			output_uri,
			trigger_source,
			started_ts,
			finished_ts,
			status,
			failed_stage,
			error_message,
			rows_input,
			rows_output,
			rows_dropped,
			total_revenue,
			total_orders,
			unique_customers,
			unique_products,
			metadata
		FROM `+"`%s.%s`"+`
		ORDER BY started_ts DESC
		LIMIT @limit
	`, datasetID, pipelineRunsTable))
	q.Parameters = []bigquery.QueryParameter{{Name: "limit", Value: int64(limit)}}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListRecentRuns: reading query: %w", err)
	}

	var runs []*PipelineRunRow
	for {
		var row PipelineRunRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListRecentRuns: iterating: %w", err)
		}
		runs = append(runs, &row)
	}

	return runs, nil
}
