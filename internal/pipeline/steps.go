package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/retail-etl/internal/domain"
	"github.com/dvloznov/retail-etl/internal/ingest"
	"github.com/dvloznov/retail-etl/internal/logger"
	"github.com/dvloznov/retail-etl/internal/metrics"
	"github.com/dvloznov/retail-etl/internal/objectstore"
	"github.com/dvloznov/retail-etl/internal/report"
	"github.com/dvloznov/retail-etl/internal/sink"
	"github.com/dvloznov/retail-etl/internal/transform"
)

// Step represents a single stage of the ETL pipeline.
type Step interface {
	Name() string
	Execute(ctx context.Context, state *State) error
}

// rowCounter is implemented by steps that report how many rows they produced.
type rowCounter interface {
	Rows(state *State) int
}

// State holds the shared state across all pipeline steps.
type State struct {
	Run domain.RunInfo

	Workbook   []byte
	Raw        []domain.RawRow
	Cleaned    transform.CleanResult
	Enriched   []domain.EnrichedTransaction
	Aggregates domain.Aggregates
	Outputs    []domain.TableOutput
	Summary    domain.BusinessSummary
}

// Result returns the outcome of a completed run.
func (s *State) Result() domain.RunResult {
	return domain.RunResult{
		Stats:               s.Cleaned.Stats,
		Summary:             s.Summary,
		Outputs:             s.Outputs,
		MalformedTimestamps: len(s.Cleaned.Malformed),
	}
}

// Step 1: FetchWorkbookStep reads the workbook blob from the source store.
type FetchWorkbookStep struct {
	Source BlobSource
	Key    string
}

func (s *FetchWorkbookStep) Name() string { return StageFetchWorkbook }

func (s *FetchWorkbookStep) Execute(ctx context.Context, state *State) error {
	data, err := s.Source.Get(ctx, s.Key)
	if errors.Is(err, objectstore.ErrNotFound) {
		return &domain.SourceReadError{Object: state.Run.SourceURI, Err: err}
	}
	if err != nil {
		return fmt.Errorf("fetch workbook %s: %w", state.Run.SourceURI, err)
	}
	state.Workbook = data

	log := logger.FromContext(ctx)
	log.Info().Int("bytes", len(data)).Msg("Workbook fetched")
	return nil
}

// Step 2: IngestStep reads the configured sheets into raw rows.
type IngestStep struct {
	Sheets []ingest.SheetMapping
}

func (s *IngestStep) Name() string { return StageIngest }

func (s *IngestStep) Execute(ctx context.Context, state *State) error {
	wb, err := ingest.OpenWorkbookBytes(state.Workbook)
	if err != nil {
		return &domain.SourceReadError{Object: state.Run.SourceURI, Err: err}
	}
	defer wb.Close()

	raw, err := ingest.Ingest(ctx, wb, s.Sheets)
	if err != nil {
		return err
	}
	state.Raw = raw
	state.Workbook = nil
	return nil
}

func (s *IngestStep) Rows(state *State) int { return len(state.Raw) }

// Step 3: CleanStep validates raw rows and drops the invalid ones.
type CleanStep struct{}

func (s *CleanStep) Name() string { return StageClean }

func (s *CleanStep) Execute(ctx context.Context, state *State) error {
	result := transform.Clean(state.Raw)
	state.Cleaned = result
	state.Raw = nil

	log := logger.FromContext(ctx)
	for i, m := range result.Malformed {
		if i == maxMalformedLogged {
			log.Warn().Int("remaining", len(result.Malformed)-i).Msg("Further malformed invoice dates not logged")
			break
		}
		log.Warn().
			Int("offset", m.Offset).
			Str("sheet", m.Sheet).
			Str("value", m.Value).
			Err(m.Err).
			Msg("Malformed invoice date")
	}

	st := result.Stats
	metrics.RowsDropped.WithLabelValues("missing").Add(float64(st.DroppedMissing))
	metrics.RowsDropped.WithLabelValues("non_positive").Add(float64(st.DroppedNonPositive))
	metrics.RowsDropped.WithLabelValues("bad_timestamp").Add(float64(st.DroppedBadTimestamp))
	metrics.RowsDropped.WithLabelValues("duplicate").Add(float64(st.DroppedDuplicates))

	log.Info().
		Int("input", st.Input).
		Int("dropped_missing", st.DroppedMissing).
		Int("dropped_non_positive", st.DroppedNonPositive).
		Int("dropped_bad_timestamp", st.DroppedBadTimestamp).
		Int("dropped_duplicates", st.DroppedDuplicates).
		Int("output", st.Output).
		Msg("Cleaning complete")
	return nil
}

func (s *CleanStep) Rows(state *State) int { return len(state.Cleaned.Rows) }

// Step 4: EnrichStep derives the calendar columns.
type EnrichStep struct{}

func (s *EnrichStep) Name() string { return StageEnrich }

func (s *EnrichStep) Execute(ctx context.Context, state *State) error {
	enriched, err := transform.Enrich(state.Cleaned.Rows)
	if err != nil {
		return err
	}
	state.Enriched = enriched
	return nil
}

func (s *EnrichStep) Rows(state *State) int { return len(state.Enriched) }

// Step 5: AggregateStep computes the analytical views.
type AggregateStep struct{}

func (s *AggregateStep) Name() string { return StageAggregate }

func (s *AggregateStep) Execute(ctx context.Context, state *State) error {
	aggs, err := transform.Aggregate(ctx, state.Cleaned.Rows, state.Enriched)
	if err != nil {
		return err
	}
	state.Aggregates = aggs

	log := logger.FromContext(ctx)
	log.Info().
		Int("customers", len(aggs.Customers)).
		Int("products", len(aggs.Products)).
		Int("countries", len(aggs.Countries)).
		Int("months", len(aggs.Monthly)).
		Msg("Aggregation complete")
	return nil
}

func (s *AggregateStep) Rows(state *State) int {
	a := state.Aggregates
	return len(a.Customers) + len(a.Products) + len(a.Countries) + len(a.Monthly)
}

// Step 6: WriteOutputsStep persists the six output tables.
type WriteOutputsStep struct {
	Writer TableWriter
}

func (s *WriteOutputsStep) Name() string { return StageWriteOutputs }

func (s *WriteOutputsStep) Execute(ctx context.Context, state *State) error {
	tables := sink.Tables(state.Cleaned.Rows, state.Enriched, state.Aggregates)
	outputs, err := s.Writer.WriteAll(ctx, tables)
	state.Outputs = outputs
	for _, o := range outputs {
		metrics.SinkBytes.WithLabelValues(o.Table).Add(float64(o.Bytes))
	}
	return err
}

func (s *WriteOutputsStep) Rows(state *State) int {
	n := 0
	for _, o := range state.Outputs {
		n += o.Rows
	}
	return n
}

// Step 7: SummarizeStep computes the business summary and reports it.
type SummarizeStep struct {
	Reporter report.Reporter
}

func (s *SummarizeStep) Name() string { return StageSummarize }

func (s *SummarizeStep) Execute(ctx context.Context, state *State) error {
	state.Summary = transform.Summarize(state.Cleaned.Rows)
	if s.Reporter == nil {
		return nil
	}
	if err := s.Reporter.Report(ctx, state.Run.ID, state.Summary, state.Cleaned.Stats); err != nil {
		return fmt.Errorf("report summary: %w", err)
	}
	return nil
}
