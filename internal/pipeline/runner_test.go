package pipeline_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dvloznov/retail-etl/internal/domain"
	"github.com/dvloznov/retail-etl/internal/ingest"
	"github.com/dvloznov/retail-etl/internal/lock"
	"github.com/dvloznov/retail-etl/internal/logger"
	"github.com/dvloznov/retail-etl/internal/objectstore"
	"github.com/dvloznov/retail-etl/internal/pipeline"
	"github.com/dvloznov/retail-etl/internal/report"
	"github.com/dvloznov/retail-etl/internal/sink"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

const (
	sourceKey = "online_retail_II.xlsx"
	sourceURI = "memory://raw/online_retail_II.xlsx"
	outputURI = "memory://lake/retail"
)

var header = []interface{}{"Invoice", "StockCode", "Description", "Quantity", "InvoiceDate", "Price", "Customer ID", "Country"}

func testContext() context.Context {
	return logger.WithContext(context.Background(), logger.NewWithWriter(&bytes.Buffer{}))
}

func buildWorkbook(t *testing.T, sheets map[string][][]interface{}, order []string) []byte {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()

	for i, name := range order {
		if i == 0 {
			require.NoError(t, f.SetSheetName(f.GetSheetName(0), name))
		} else {
			_, err := f.NewSheet(name)
			require.NoError(t, err)
		}

		require.NoError(t, f.SetSheetRow(name, "A1", &header))
		for r, row := range sheets[name] {
			cell, err := excelize.CoordinatesToCellName(1, r+2)
			require.NoError(t, err)
			require.NoError(t, f.SetSheetRow(name, cell, &row))
		}
	}

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

// standardWorkbook holds eight rows: five valid ones, a return, a duplicate
// and a row with an unparseable date.
func standardWorkbook(t *testing.T) []byte {
	return buildWorkbook(t, map[string][][]interface{}{
		"Year 2009-2010": {
			{"489434", "85048", "GLASS BALL", 12, "2009-12-01 07:45:00", 6.95, 13085, "United Kingdom"},
			{"489434", "79323P", "PINK CHERRY LIGHTS", 12, "2009-12-01 07:45:00", 6.75, 13085, "United Kingdom"},
			{"C489449", "22087", "PAPER BUNTING", -12, "2009-12-01 10:33:00", 2.95, 16321, "Australia"},
			{"489437", "85048", "GLASS BALL", 1, "2009-12-02 11:00:00", 6.95, nil, "United Kingdom"},
			{"489437", "85048", "GLASS BALL", 1, "2009-12-02 11:00:00", 6.95, nil, "United Kingdom"},
			{"489438", "22350", "CAT BOWL", 4, "not a date", 2.55, 13078, "United Kingdom"},
		},
		"Year 2010-2011": {
			{"536365", "85123A", "HEART T-LIGHT HOLDER", 6, "2010-12-01 08:26:00", 2.55, 17850, "France"},
			{"536366", "22633", "HAND WARMER", 6, "2010-12-09 08:28:00", 1.85, 17850, "France"},
		},
	}, []string{"Year 2009-2010", "Year 2010-2011"})
}

func newSourceStore(t *testing.T, workbook []byte) *objectstore.MemoryStore {
	t.Helper()
	s := objectstore.NewMemoryStore()
	require.NoError(t, s.Put(context.Background(), sourceKey, workbook))
	return s
}

type recordingWriter struct {
	tables []sink.Table
}

func (w *recordingWriter) WriteAll(_ context.Context, tables []sink.Table) ([]sink.Output, error) {
	w.tables = tables
	out := make([]sink.Output, 0, len(tables))
	for _, t := range tables {
		out = append(out, sink.Output{Table: t.Name, Rows: t.Rows()})
	}
	return out, nil
}

type ledgerCalls struct {
	started   []domain.RunInfo
	failed    []string
	failErr   error
	succeeded []domain.RunResult
}

func (c *ledgerCalls) ledger() *MockRunLedger {
	return &MockRunLedger{
		StartRunFunc: func(_ context.Context, run domain.RunInfo) error {
			c.started = append(c.started, run)
			return nil
		},
		MarkRunFailedFunc: func(_ context.Context, _ string, stage string, runErr error) {
			c.failed = append(c.failed, stage)
			c.failErr = runErr
		},
		MarkRunSucceededFunc: func(_ context.Context, _ string, result domain.RunResult) error {
			c.succeeded = append(c.succeeded, result)
			return nil
		},
	}
}

func TestRunner_Run_EndToEnd(t *testing.T) {
	src := newSourceStore(t, standardWorkbook(t))
	lake := objectstore.NewMemoryStore()
	calls := &ledgerCalls{}
	banner := &bytes.Buffer{}

	r := &pipeline.Runner{
		Stores:   &MockStoreProvider{Stores: map[string]objectstore.Store{"raw": src, "lake": lake}},
		Sheets:   ingest.DefaultSheets,
		Ledger:   calls.ledger(),
		Locker:   lock.NewLocalLocker(),
		Emitter:  &recordingEmitter{},
		Reporter: report.NewConsoleReporter(banner),
	}

	info, result, err := r.Run(testContext(), pipeline.Request{
		RunID:     "run-e2e",
		SourceURI: sourceURI,
		OutputURI: outputURI,
		Trigger:   domain.TriggerCLI,
	})
	require.NoError(t, err)
	assert.Equal(t, "run-e2e", info.ID)

	assert.Equal(t, domain.CleanStats{
		Input:               8,
		DroppedNonPositive:  1,
		DroppedBadTimestamp: 1,
		DroppedDuplicates:   1,
		Output:              5,
	}, result.Stats)
	assert.Equal(t, 1, result.MalformedTimestamps)

	assert.True(t, decimal.RequireFromString("197.75").Equal(result.Summary.TotalRevenue), result.Summary.TotalRevenue.String())
	assert.Equal(t, int64(4), result.Summary.TotalOrders)
	assert.Equal(t, int64(3), result.Summary.UniqueCustomers)
	assert.Equal(t, int64(4), result.Summary.UniqueProducts)

	require.Len(t, result.Outputs, 6)
	assert.Equal(t, sink.TableCleaned, result.Outputs[0].Table)
	assert.Equal(t, 5, result.Outputs[0].Rows)
	assert.Equal(t, "memory://lake/retail/processed/retail_cleaned", result.Outputs[0].URI)

	keys, err := lake.List(context.Background(), "retail")
	require.NoError(t, err)
	assert.Contains(t, keys, "retail/processed/retail_cleaned/fiscal_year=2009-2010/part-00000.snappy.parquet")
	assert.Contains(t, keys, "retail/processed/retail_cleaned/fiscal_year=2010-2011/part-00000.snappy.parquet")
	assert.Contains(t, keys, "retail/processed/retail_enriched/fiscal_year=2009-2010/Month=12/part-00000.snappy.parquet")
	for _, path := range []string{
		"processed/retail_cleaned", "processed/retail_enriched",
		"analytics/customer_rfm", "analytics/product_performance",
		"analytics/country_sales", "analytics/monthly_trends",
	} {
		assert.Contains(t, keys, "retail/"+path+"/_SUCCESS")
	}

	require.Len(t, calls.started, 1)
	assert.Equal(t, sourceURI, calls.started[0].SourceURI)
	require.Len(t, calls.succeeded, 1)
	assert.Empty(t, calls.failed)

	assert.Contains(t, banner.String(), "£197.75")
}

func TestRunner_Run_IsIdempotent(t *testing.T) {
	workbook := standardWorkbook(t)
	run := func() map[string][]byte {
		lake := objectstore.NewMemoryStore()
		r := &pipeline.Runner{
			Stores: &MockStoreProvider{Stores: map[string]objectstore.Store{"raw": newSourceStore(t, workbook), "lake": lake}},
		}
		_, _, err := r.Run(testContext(), pipeline.Request{SourceURI: sourceURI, OutputURI: outputURI})
		require.NoError(t, err)

		keys, err := lake.List(context.Background(), "retail")
		require.NoError(t, err)
		files := make(map[string][]byte, len(keys))
		for _, k := range keys {
			files[k], err = lake.Get(context.Background(), k)
			require.NoError(t, err)
		}
		return files
	}

	first, second := run(), run()
	require.Equal(t, len(first), len(second))
	for k, v := range first {
		assert.Equal(t, v, second[k], k)
	}
}

func TestRunner_Run_MissingWorkbook(t *testing.T) {
	calls := &ledgerCalls{}
	r := &pipeline.Runner{
		Stores: &MockStoreProvider{Stores: map[string]objectstore.Store{
			"raw":  objectstore.NewMemoryStore(),
			"lake": objectstore.NewMemoryStore(),
		}},
		Ledger: calls.ledger(),
	}

	_, _, err := r.Run(testContext(), pipeline.Request{SourceURI: sourceURI, OutputURI: outputURI})

	var stageErr *domain.StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, pipeline.StageFetchWorkbook, stageErr.Stage)
	assert.ErrorIs(t, err, objectstore.ErrNotFound)
	var readErr *domain.SourceReadError
	require.ErrorAs(t, err, &readErr)
	assert.Equal(t, sourceURI, readErr.Object)
	assert.Equal(t, []string{pipeline.StageFetchWorkbook}, calls.failed)
	assert.Empty(t, calls.succeeded)
}

func TestRunner_Run_CorruptWorkbook(t *testing.T) {
	lake := objectstore.NewMemoryStore()
	calls := &ledgerCalls{}

	r := &pipeline.Runner{
		Stores: &MockStoreProvider{Stores: map[string]objectstore.Store{
			"raw":  newSourceStore(t, []byte("this is not a spreadsheet")),
			"lake": lake,
		}},
		Ledger: calls.ledger(),
	}
	_, _, err := r.Run(testContext(), pipeline.Request{SourceURI: sourceURI, OutputURI: outputURI})

	var readErr *domain.SourceReadError
	require.ErrorAs(t, err, &readErr)
	assert.Equal(t, sourceURI, readErr.Object)
	assert.Empty(t, readErr.Sheet)
	assert.Equal(t, []string{pipeline.StageIngest}, calls.failed)
	assert.Equal(t, 0, lake.Len())
}

func TestRunner_Run_MissingSheet(t *testing.T) {
	workbook := buildWorkbook(t, map[string][][]interface{}{
		"Year 2009-2010": {{"489434", "85048", "GLASS BALL", 12, "2009-12-01 07:45:00", 6.95, 13085, "United Kingdom"}},
	}, []string{"Year 2009-2010"})
	lake := objectstore.NewMemoryStore()
	calls := &ledgerCalls{}

	r := &pipeline.Runner{
		Stores: &MockStoreProvider{Stores: map[string]objectstore.Store{"raw": newSourceStore(t, workbook), "lake": lake}},
		Ledger: calls.ledger(),
	}
	_, _, err := r.Run(testContext(), pipeline.Request{SourceURI: sourceURI, OutputURI: outputURI})

	var readErr *domain.SourceReadError
	require.ErrorAs(t, err, &readErr)
	assert.Equal(t, "Year 2010-2011", readErr.Sheet)
	assert.Equal(t, []string{pipeline.StageIngest}, calls.failed)
	assert.Equal(t, 0, lake.Len())
}

func TestRunner_Run_SinkFailureFailsRun(t *testing.T) {
	lake := &failingPutStore{MemoryStore: objectstore.NewMemoryStore(), failOn: "customer_rfm"}
	calls := &ledgerCalls{}

	r := &pipeline.Runner{
		Stores: &MockStoreProvider{Stores: map[string]objectstore.Store{"raw": newSourceStore(t, standardWorkbook(t)), "lake": lake}},
		Ledger: calls.ledger(),
	}
	_, _, err := r.Run(testContext(), pipeline.Request{SourceURI: sourceURI, OutputURI: outputURI})

	var sinkErr *domain.SinkWriteError
	require.ErrorAs(t, err, &sinkErr)
	assert.Equal(t, sink.TableCustomerRFM, sinkErr.Table)
	assert.Equal(t, []string{pipeline.StageWriteOutputs}, calls.failed)
	assert.Empty(t, calls.succeeded)

	keys, err := lake.List(context.Background(), "retail")
	require.NoError(t, err)
	assert.Contains(t, keys, "retail/analytics/country_sales/_SUCCESS")
	assert.NotContains(t, keys, "retail/analytics/customer_rfm/_SUCCESS")
}

func TestRunner_Run_DryRunLeavesOutputUntouched(t *testing.T) {
	lake := objectstore.NewMemoryStore()
	r := &pipeline.Runner{
		Stores: &MockStoreProvider{Stores: map[string]objectstore.Store{"raw": newSourceStore(t, standardWorkbook(t)), "lake": lake}},
	}

	_, result, err := r.Run(testContext(), pipeline.Request{SourceURI: sourceURI, OutputURI: outputURI, DryRun: true})
	require.NoError(t, err)
	assert.Len(t, result.Outputs, 6)
	assert.Equal(t, 0, lake.Len())
}

func TestRunner_Run_LockHeld(t *testing.T) {
	locker := lock.NewLocalLocker()
	held, err := locker.Acquire(context.Background(), pipeline.DefaultLockKey, time.Minute)
	require.NoError(t, err)
	defer held.Release(context.Background())

	calls := &ledgerCalls{}
	r := &pipeline.Runner{
		Stores: &MockStoreProvider{},
		Ledger: calls.ledger(),
		Locker: locker,
	}
	_, _, err = r.Run(testContext(), pipeline.Request{SourceURI: sourceURI, OutputURI: outputURI})
	assert.ErrorIs(t, err, pipeline.ErrRunInProgress)
	assert.Empty(t, calls.started)
}

func TestRunner_Run_LedgerStartFailure(t *testing.T) {
	r := &pipeline.Runner{
		Stores: &MockStoreProvider{},
		Ledger: &MockRunLedger{StartRunFunc: func(context.Context, domain.RunInfo) error {
			return errors.New("dataset not found")
		}},
	}
	_, _, err := r.Run(testContext(), pipeline.Request{SourceURI: sourceURI, OutputURI: outputURI})
	assert.ErrorContains(t, err, "dataset not found")
}

func TestRunner_Run_InvalidURI(t *testing.T) {
	r := &pipeline.Runner{Stores: &MockStoreProvider{}}
	_, _, err := r.Run(testContext(), pipeline.Request{SourceURI: "ftp://host/file.xlsx", OutputURI: outputURI})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "unsupported scheme"))
}
