// Package events publishes pipeline stage lifecycle events.
package events

import (
	"context"
	"errors"
	"time"

	"github.com/dvloznov/retail-etl/internal/logger"
)

// Status of a stage event.
type Status string

const (
	StatusStarted   Status = "started"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// StageEvent reports the progress of one pipeline stage.
type StageEvent struct {
	RunID      string    `json:"run_id"`
	Stage      string    `json:"stage"`
	Index      int       `json:"index"`
	Status     Status    `json:"status"`
	Rows       int       `json:"rows"`
	DurationMs int64     `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Emitter publishes stage events. Emit failures must never fail a run, so
// callers log and continue.
type Emitter interface {
	Emit(ctx context.Context, evt StageEvent) error
	Close() error
}

// LogEmitter writes every event to the context logger.
type LogEmitter struct{}

func (LogEmitter) Emit(ctx context.Context, evt StageEvent) error {
	log := logger.FromContext(ctx)
	e := log.Info()
	if evt.Status == StatusFailed {
		e = log.Error().Str("error", evt.Error)
	}
	e.Str("run_id", evt.RunID).
		Str("stage", evt.Stage).
		Int("index", evt.Index).
		Str("status", string(evt.Status)).
		Int("rows", evt.Rows).
		Int64("duration_ms", evt.DurationMs).
		Msg("Stage event")
	return nil
}

func (LogEmitter) Close() error { return nil }

// Multi fans an event out to several emitters and joins their errors.
type Multi []Emitter

func (m Multi) Emit(ctx context.Context, evt StageEvent) error {
	var errs []error
	for _, e := range m {
		if err := e.Emit(ctx, evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, e := range m {
		if err := e.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
