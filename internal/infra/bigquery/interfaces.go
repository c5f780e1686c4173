package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/retail-etl/internal/domain"
)

// RunRepository stores pipeline runs in the BigQuery pipeline_runs table.
// It holds a shared client to avoid creating a new connection per call.
type RunRepository struct {
	client    *bigquery.Client
	datasetID string
}

// NewRunRepository creates a repository for datasetID in projectID.
func NewRunRepository(ctx context.Context, projectID, datasetID string) (*RunRepository, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewRunRepository: creating client: %w", err)
	}
	return &RunRepository{
		client:    client,
		datasetID: datasetID,
	}, nil
}

// Close closes the BigQuery client connection.
func (r *RunRepository) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// EnsureTable delegates to EnsureTableWithClient.
func (r *RunRepository) EnsureTable(ctx context.Context) error {
	return EnsureTableWithClient(ctx, r.client, r.datasetID)
}

// StartRun delegates to StartRunWithClient.
func (r *RunRepository) StartRun(ctx context.Context, run domain.RunInfo) error {
	return StartRunWithClient(ctx, r.client, r.datasetID, run)
}

// MarkRunFailed delegates to MarkRunFailedWithClient.
func (r *RunRepository) MarkRunFailed(ctx context.Context, runID, stage string, runErr error) {
	MarkRunFailedWithClient(ctx, r.client, r.datasetID, runID, stage, runErr)
}

// MarkRunSucceeded delegates to MarkRunSucceededWithClient.
func (r *RunRepository) MarkRunSucceeded(ctx context.Context, runID string, result domain.RunResult) error {
	return MarkRunSucceededWithClient(ctx, r.client, r.datasetID, runID, result)
}

// ListRecentRuns returns up to limit runs, newest first.
func (r *RunRepository) ListRecentRuns(ctx context.Context, limit int) ([]domain.RunRecord, error) {
	rows, err := ListRecentRunsWithClient(ctx, r.client, r.datasetID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]domain.RunRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.ToRecord())
	}
	return out, nil
}
