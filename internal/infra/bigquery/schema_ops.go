package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/retail-etl/internal/logger"
	"google.golang.org/api/googleapi"
)

// PipelineRunsSchema returns the table schema inferred from PipelineRunRow.
func PipelineRunsSchema() (bigquery.Schema, error) {
	schema, err := bigquery.InferSchema(PipelineRunRow{})
	if err != nil {
		return nil, fmt.Errorf("PipelineRunsSchema: infer schema: %w", err)
	}
	return schema, nil
}

// EnsureTableWithClient creates the pipeline_runs table, partitioned by day
// of started_ts, when it does not exist yet.
func EnsureTableWithClient(ctx context.Context, client *bigquery.Client, datasetID string) error {
	table := client.Dataset(datasetID).Table(pipelineRunsTable)

	_, err := table.Metadata(ctx)
	if err == nil {
		return nil
	}
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) || apiErr.Code != http.StatusNotFound {
		return fmt.Errorf("EnsureTable: reading table metadata: %w", err)
	}

	schema, err := PipelineRunsSchema()
	if err != nil {
		return err
	}

	err = table.Create(ctx, &bigquery.TableMetadata{
		Schema:           schema,
		TimePartitioning: &bigquery.TimePartitioning{Field: "started_ts"},
		Description:      "Retail ETL pipeline runs",
	})
	if err != nil {
		return fmt.Errorf("EnsureTable: creating table: %w", err)
	}

	log := logger.FromContext(ctx)
	log.Info().
		Str("dataset", datasetID).
		Str("table", pipelineRunsTable).
		Msg("Created run ledger table")
	return nil
}
