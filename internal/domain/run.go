package domain

import (
	"time"
)

// RunStatus is the lifecycle state of a pipeline run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "RUNNING"
	RunStatusSucceeded RunStatus = "SUCCESS"
	RunStatusFailed    RunStatus = "FAILED"
)

// Run triggers.
const (
	TriggerCLI      = "cli"
	TriggerAPI      = "api"
	TriggerSchedule = "schedule"
)

// RunInfo identifies a run and its inputs.
type RunInfo struct {
	ID        string    `json:"run_id"`
	SourceURI string    `json:"source_uri"`
	OutputURI string    `json:"output_uri"`
	Trigger   string    `json:"trigger"`
	StartedAt time.Time `json:"started_at"`
}

// TableOutput describes one written output table.
type TableOutput struct {
	Table string `json:"table"`
	URI   string `json:"uri"`
	Rows  int    `json:"rows"`
	Files int    `json:"files"`
	Bytes int64  `json:"bytes"`
}

// RunResult is what a successful run produced.
type RunResult struct {
	Stats               CleanStats      `json:"clean_stats"`
	Summary             BusinessSummary `json:"summary"`
	Outputs             []TableOutput   `json:"outputs"`
	MalformedTimestamps int             `json:"malformed_timestamps"`
}

// RunRecord is the ledger entry of a run.
type RunRecord struct {
	RunInfo
	Status       RunStatus        `json:"status"`
	FinishedAt   *time.Time       `json:"finished_at,omitempty"`
	FailedStage  string           `json:"failed_stage,omitempty"`
	ErrorMessage string           `json:"error_message,omitempty"`
	Stats        *CleanStats      `json:"clean_stats,omitempty"`
	Summary      *BusinessSummary `json:"summary,omitempty"`
}

// MaxErrorMessageLen bounds error messages stored in the run ledger.
const MaxErrorMessageLen = 2000

// TruncateError returns err's message cut to MaxErrorMessageLen bytes.
func TruncateError(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if len(msg) > MaxErrorMessageLen {
		msg = msg[:MaxErrorMessageLen]
	}
	return msg
}
