package bigquery

import (
	"encoding/json"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/retail-etl/internal/domain"
)

type PipelineRunRow struct {
	RunID         string `bigquery:"run_id"`         // REQUIRED
	SourceURI     string `bigquery:"source_uri"`     // REQUIRED
	OutputURI     string `bigquery:"output_uri"`     // REQUIRED
	TriggerSource string `bigquery:"trigger_source"` // NULLABLE

	StartedTS  time.Time              `bigquery:"started_ts"`  // REQUIRED
	FinishedTS bigquery.NullTimestamp `bigquery:"finished_ts"` // NULLABLE

	Status       string `bigquery:"status"`        // RUNNING, SUCCESS or FAILED
	FailedStage  string `bigquery:"failed_stage"`  // NULLABLE
	ErrorMessage string `bigquery:"error_message"` // NULLABLE

	RowsInput   bigquery.NullInt64 `bigquery:"rows_input"`   // NULLABLE
	RowsOutput  bigquery.NullInt64 `bigquery:"rows_output"`  // NULLABLE
	RowsDropped bigquery.NullInt64 `bigquery:"rows_dropped"` // NULLABLE

	TotalRevenue    bigquery.NullFloat64 `bigquery:"total_revenue"`    // NULLABLE
	TotalOrders     bigquery.NullInt64   `bigquery:"total_orders"`     // NULLABLE
	UniqueCustomers bigquery.NullInt64   `bigquery:"unique_customers"` // NULLABLE
	UniqueProducts  bigquery.NullInt64   `bigquery:"unique_products"`  // NULLABLE

	// Full RunResult as JSON.
	Metadata bigquery.NullJSON `bigquery:"metadata"` // NULLABLE
}

// ToRecord converts a ledger row into the domain representation.
func (r *PipelineRunRow) ToRecord() domain.RunRecord {
	rec := domain.RunRecord{
		RunInfo: domain.RunInfo{
			ID:        r.RunID,
			SourceURI: r.SourceURI,
			OutputURI: r.OutputURI,
			Trigger:   r.TriggerSource,
			StartedAt: r.StartedTS,
		},
		Status:       domain.RunStatus(r.Status),
		FailedStage:  r.FailedStage,
		ErrorMessage: r.ErrorMessage,
	}
	if r.FinishedTS.Valid {
		finished := r.FinishedTS.Timestamp
		rec.FinishedAt = &finished
	}
	if r.Metadata.Valid {
		var result domain.RunResult
		if err := json.Unmarshal([]byte(r.Metadata.JSONVal), &result); err == nil {
			rec.Stats = &result.Stats
			rec.Summary = &result.Summary
		}
	}
	return rec
}
