package pipeline

import "time"

// Stage names, in execution order.
const (
	StageFetchWorkbook = "fetch_workbook"
	StageIngest        = "ingest"
	StageClean         = "clean"
	StageEnrich        = "enrich"
	StageAggregate     = "aggregate"
	StageWriteOutputs  = "write_outputs"
	StageSummarize     = "summarize"
)

const (
	// DefaultLockKey is the run lock shared by every run writing the same outputs.
	DefaultLockKey = "retail-etl:run"

	// DefaultLockTTL bounds how long a crashed run can hold the lock.
	DefaultLockTTL = 30 * time.Minute

	// maxMalformedLogged is how many malformed timestamps are logged one by one.
	maxMalformedLogged = 20
)
