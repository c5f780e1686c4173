// Package pipeline runs the retail ETL: fetch the workbook, ingest, clean,
// enrich, aggregate, write the Parquet outputs and summarize.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dvloznov/retail-etl/internal/domain"
	"github.com/dvloznov/retail-etl/internal/events"
	"github.com/dvloznov/retail-etl/internal/ingest"
	"github.com/dvloznov/retail-etl/internal/lock"
	"github.com/dvloznov/retail-etl/internal/logger"
	"github.com/dvloznov/retail-etl/internal/metrics"
	"github.com/dvloznov/retail-etl/internal/objectstore"
	"github.com/dvloznov/retail-etl/internal/report"
	"github.com/dvloznov/retail-etl/internal/sink"
	"github.com/dvloznov/retail-etl/internal/telemetry"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// ErrRunInProgress is returned when another run holds the run lock.
var ErrRunInProgress = errors.New("another run is in progress")

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps   []Step
	emitter events.Emitter
}

// NewPipeline creates a new pipeline with the given steps. Stage events go to
// emitter; a nil emitter logs them.
func NewPipeline(emitter events.Emitter, steps ...Step) *Pipeline {
	if emitter == nil {
		emitter = events.LogEmitter{}
	}
	return &Pipeline{steps: steps, emitter: emitter}
}

// Execute runs all steps sequentially and stops at the first failure, which
// is returned as *domain.StageError.
func (p *Pipeline) Execute(ctx context.Context, state *State) error {
	tracer := telemetry.Tracer()

	for i, step := range p.steps {
		index := i + 1
		stepCtx, span := tracer.Start(ctx, step.Name())
		span.SetAttributes(attribute.String("run_id", state.Run.ID), attribute.Int("index", index))
		log := logger.FromContext(stepCtx).With().Str("stage", step.Name()).Logger()
		stepCtx = logger.WithContext(stepCtx, log)

		p.emit(stepCtx, events.StageEvent{RunID: state.Run.ID, Stage: step.Name(), Index: index, Status: events.StatusStarted})
		start := time.Now()

		err := step.Execute(stepCtx, state)
		elapsed := time.Since(start)

		evt := events.StageEvent{
			RunID:      state.Run.ID,
			Stage:      step.Name(),
			Index:      index,
			DurationMs: elapsed.Milliseconds(),
		}
		if rc, ok := step.(rowCounter); ok {
			evt.Rows = rc.Rows(state)
			metrics.StageRows.WithLabelValues(step.Name()).Add(float64(evt.Rows))
		}

		if err != nil {
			metrics.StageDuration.WithLabelValues(step.Name(), "failed").Observe(elapsed.Seconds())
			span.RecordError(err)
			span.SetStatus(codes.Error, "stage failed")
			span.End()

			evt.Status = events.StatusFailed
			evt.Error = err.Error()
			p.emit(stepCtx, evt)
			return &domain.StageError{Stage: step.Name(), Index: index, Err: err}
		}

		metrics.StageDuration.WithLabelValues(step.Name(), "succeeded").Observe(elapsed.Seconds())
		span.SetAttributes(attribute.Int("rows", evt.Rows))
		span.End()

		evt.Status = events.StatusSucceeded
		p.emit(stepCtx, evt)
	}
	return nil
}

func (p *Pipeline) emit(ctx context.Context, evt events.StageEvent) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	if err := p.emitter.Emit(ctx, evt); err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Msg("Failed to emit stage event")
	}
}

// Request describes a run to execute.
type Request struct {
	RunID     string
	SourceURI string
	OutputURI string
	Trigger   string
	// DryRun writes outputs to a throwaway in-memory store.
	DryRun bool
}

// Runner wires the collaborators of a run and records its lifecycle.
type Runner struct {
	Stores   StoreProvider
	Sheets   []ingest.SheetMapping
	Ledger   RunLedger
	Locker   lock.Locker
	Emitter  events.Emitter
	Reporter report.Reporter

	Codec           sink.Codec
	SinkConcurrency int
	LockKey         string
	LockTTL         time.Duration
}

// NewETLPipeline creates the standard seven-step ETL pipeline.
func NewETLPipeline(source BlobSource, sourceKey string, sheets []ingest.SheetMapping, writer TableWriter, reporter report.Reporter, emitter events.Emitter) *Pipeline {
	return NewPipeline(emitter,
		&FetchWorkbookStep{Source: source, Key: sourceKey},
		&IngestStep{Sheets: sheets},
		&CleanStep{},
		&EnrichStep{},
		&AggregateStep{},
		&WriteOutputsStep{Writer: writer},
		&SummarizeStep{Reporter: reporter},
	)
}

// Run executes one full ETL run. The run is recorded RUNNING in the ledger
// before any stage starts and ends as SUCCESS or FAILED with the failing
// stage.
func (r *Runner) Run(ctx context.Context, req Request) (domain.RunInfo, domain.RunResult, error) {
	info := domain.RunInfo{
		ID:        req.RunID,
		SourceURI: req.SourceURI,
		OutputURI: req.OutputURI,
		Trigger:   req.Trigger,
		StartedAt: time.Now().UTC(),
	}
	if info.ID == "" {
		info.ID = uuid.NewString()
	}
	if info.Trigger == "" {
		info.Trigger = domain.TriggerCLI
	}

	log := logger.FromContext(ctx).With().Str("run_id", info.ID).Logger()
	ctx = logger.WithContext(ctx, log)

	srcLoc, err := objectstore.ParseURI(req.SourceURI)
	if err != nil {
		return info, domain.RunResult{}, fmt.Errorf("Run: source: %w", err)
	}
	outLoc, err := objectstore.ParseURI(req.OutputURI)
	if err != nil {
		return info, domain.RunResult{}, fmt.Errorf("Run: output: %w", err)
	}

	if r.Locker != nil {
		key := r.LockKey
		if key == "" {
			key = DefaultLockKey
		}
		ttl := r.LockTTL
		if ttl <= 0 {
			ttl = DefaultLockTTL
		}
		held, err := r.Locker.Acquire(ctx, key, ttl)
		if errors.Is(err, lock.ErrLockNotAcquired) {
			return info, domain.RunResult{}, ErrRunInProgress
		}
		if err != nil {
			return info, domain.RunResult{}, fmt.Errorf("Run: acquire run lock: %w", err)
		}
		defer func() {
			if err := held.Release(context.WithoutCancel(ctx)); err != nil {
				log.Warn().Err(err).Msg("Failed to release run lock")
			}
		}()
	}

	if r.Ledger != nil {
		if err := r.Ledger.StartRun(ctx, info); err != nil {
			return info, domain.RunResult{}, fmt.Errorf("Run: record run start: %w", err)
		}
	}

	log.Info().
		Str("source", info.SourceURI).
		Str("output", info.OutputURI).
		Str("trigger", info.Trigger).
		Bool("dry_run", req.DryRun).
		Msg("Run started")

	state := &State{Run: info}
	err = r.execute(ctx, state, srcLoc, outLoc, req.DryRun)
	elapsed := time.Since(info.StartedAt)

	if err != nil {
		stage := ""
		var stageErr *domain.StageError
		if errors.As(err, &stageErr) {
			stage = stageErr.Stage
		}
		if r.Ledger != nil {
			r.Ledger.MarkRunFailed(context.WithoutCancel(ctx), info.ID, stage, err)
		}
		metrics.RunsTotal.WithLabelValues(info.Trigger, string(domain.RunStatusFailed)).Inc()
		metrics.RunDuration.WithLabelValues(string(domain.RunStatusFailed)).Observe(elapsed.Seconds())
		log.Error().Err(err).Str("failed_stage", stage).Dur("duration", elapsed).Msg("Run failed")
		return info, domain.RunResult{}, err
	}

	result := state.Result()
	if r.Ledger != nil {
		if err := r.Ledger.MarkRunSucceeded(ctx, info.ID, result); err != nil {
			return info, result, fmt.Errorf("Run: record run success: %w", err)
		}
	}
	metrics.RunsTotal.WithLabelValues(info.Trigger, string(domain.RunStatusSucceeded)).Inc()
	metrics.RunDuration.WithLabelValues(string(domain.RunStatusSucceeded)).Observe(elapsed.Seconds())
	log.Info().
		Int("rows_output", result.Stats.Output).
		Int("tables", len(result.Outputs)).
		Dur("duration", elapsed).
		Msg("Run succeeded")

	return info, result, nil
}

func (r *Runner) execute(ctx context.Context, state *State, srcLoc, outLoc objectstore.Location, dryRun bool) error {
	source, err := r.Stores.Store(ctx, srcLoc)
	if err != nil {
		return &domain.StageError{Stage: StageFetchWorkbook, Index: 1, Err: err}
	}

	var outStore objectstore.Store
	if dryRun {
		outStore = objectstore.NewMemoryStore()
	} else if outStore, err = r.Stores.Store(ctx, outLoc); err != nil {
		return &domain.StageError{Stage: StageWriteOutputs, Index: 6, Err: err}
	}

	codec := r.Codec
	if codec == (sink.Codec{}) {
		codec = sink.Snappy
	}
	writer := sink.NewParquetSink(outStore, outLoc, sink.WithCodec(codec), sink.WithConcurrency(r.SinkConcurrency))

	sheets := r.Sheets
	if len(sheets) == 0 {
		sheets = ingest.DefaultSheets
	}

	reporter := r.Reporter
	if reporter == nil {
		reporter = report.Nop{}
	}

	p := NewETLPipeline(source, srcLoc.Key, sheets, writer, reporter, r.Emitter)
	return p.Execute(ctx, state)
}
