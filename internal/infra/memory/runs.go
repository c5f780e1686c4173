// Package memory holds an in-memory run ledger used when no BigQuery
// dataset is configured.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dvloznov/retail-etl/internal/domain"
)

// RunLedger keeps run records in memory. It is safe for concurrent use.
// Records are lost on restart.
type RunLedger struct {
	mu   sync.RWMutex
	runs map[string]*domain.RunRecord
	now  func() time.Time
}

// NewRunLedger creates an empty ledger.
func NewRunLedger() *RunLedger {
	return &RunLedger{runs: make(map[string]*domain.RunRecord), now: time.Now}
}

func (l *RunLedger) StartRun(_ context.Context, run domain.RunInfo) error {
	if run.ID == "" {
		return fmt.Errorf("StartRun: run ID is required")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.runs[run.ID]; exists {
		return fmt.Errorf("StartRun: run %s already exists", run.ID)
	}
	l.runs[run.ID] = &domain.RunRecord{RunInfo: run, Status: domain.RunStatusRunning}
	return nil
}

func (l *RunLedger) MarkRunFailed(_ context.Context, runID, stage string, runErr error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.runs[runID]
	if !ok {
		return
	}
	finished := l.now().UTC()
	rec.Status = domain.RunStatusFailed
	rec.FinishedAt = &finished
	rec.FailedStage = stage
	rec.ErrorMessage = domain.TruncateError(runErr)
}

func (l *RunLedger) MarkRunSucceeded(_ context.Context, runID string, result domain.RunResult) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.runs[runID]
	if !ok {
		return fmt.Errorf("MarkRunSucceeded: run not found: %s", runID)
	}
	finished := l.now().UTC()
	stats, summary := result.Stats, result.Summary
	rec.Status = domain.RunStatusSucceeded
	rec.FinishedAt = &finished
	rec.Stats = &stats
	rec.Summary = &summary
	return nil
}

// GetRun returns a copy of the record of runID.
func (l *RunLedger) GetRun(_ context.Context, runID string) (domain.RunRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	rec, ok := l.runs[runID]
	if !ok {
		return domain.RunRecord{}, fmt.Errorf("run not found: %s", runID)
	}
	return copyRecord(rec), nil
}

// ListRecentRuns returns up to limit runs, newest first.
func (l *RunLedger) ListRecentRuns(_ context.Context, limit int) ([]domain.RunRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]domain.RunRecord, 0, len(l.runs))
	for _, rec := range l.runs {
		out = append(out, copyRecord(rec))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.After(out[j].StartedAt)
		}
		return out[i].ID < out[j].ID
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func copyRecord(rec *domain.RunRecord) domain.RunRecord {
	c := *rec
	if rec.FinishedAt != nil {
		t := *rec.FinishedAt
		c.FinishedAt = &t
	}
	if rec.Stats != nil {
		s := *rec.Stats
		c.Stats = &s
	}
	if rec.Summary != nil {
		s := *rec.Summary
		c.Summary = &s
	}
	return c
}
