package pipeline

import (
	"context"

	"github.com/dvloznov/retail-etl/internal/domain"
	"github.com/dvloznov/retail-etl/internal/objectstore"
	"github.com/dvloznov/retail-etl/internal/sink"
)

// RunLedger records the lifecycle of runs.
type RunLedger interface {
	StartRun(ctx context.Context, run domain.RunInfo) error
	MarkRunFailed(ctx context.Context, runID, stage string, runErr error)
	MarkRunSucceeded(ctx context.Context, runID string, result domain.RunResult) error
}

// StoreProvider hands out object stores for storage locations. Stores are
// owned by the provider; callers must not close them.
type StoreProvider interface {
	Store(ctx context.Context, loc objectstore.Location) (objectstore.Store, error)
}

// BlobSource fetches the workbook blob.
type BlobSource interface {
	Get(ctx context.Context, key string) ([]byte, error)
}

// TableWriter persists output tables.
type TableWriter interface {
	WriteAll(ctx context.Context, tables []sink.Table) ([]sink.Output, error)
}
