package pipeline_test

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/dvloznov/retail-etl/internal/domain"
	"github.com/dvloznov/retail-etl/internal/events"
	"github.com/dvloznov/retail-etl/internal/objectstore"
)

// MockRunLedger is a mock implementation of RunLedger for testing.
type MockRunLedger struct {
	StartRunFunc         func(ctx context.Context, run domain.RunInfo) error
	MarkRunFailedFunc    func(ctx context.Context, runID, stage string, runErr error)
	MarkRunSucceededFunc func(ctx context.Context, runID string, result domain.RunResult) error
}

func (m *MockRunLedger) StartRun(ctx context.Context, run domain.RunInfo) error {
	if m.StartRunFunc != nil {
		return m.StartRunFunc(ctx, run)
	}
	return nil
}

func (m *MockRunLedger) MarkRunFailed(ctx context.Context, runID, stage string, runErr error) {
	if m.MarkRunFailedFunc != nil {
		m.MarkRunFailedFunc(ctx, runID, stage, runErr)
	}
}

func (m *MockRunLedger) MarkRunSucceeded(ctx context.Context, runID string, result domain.RunResult) error {
	if m.MarkRunSucceededFunc != nil {
		return m.MarkRunSucceededFunc(ctx, runID, result)
	}
	return nil
}

// MockStoreProvider hands out stores by bucket name.
type MockStoreProvider struct {
	Stores map[string]objectstore.Store
}

func (m *MockStoreProvider) Store(_ context.Context, loc objectstore.Location) (objectstore.Store, error) {
	s, ok := m.Stores[loc.Bucket]
	if !ok {
		return nil, fmt.Errorf("no store for bucket %q", loc.Bucket)
	}
	return s, nil
}

// recordingEmitter keeps every emitted stage event.
type recordingEmitter struct {
	mu     sync.Mutex
	events []events.StageEvent
}

func (r *recordingEmitter) Emit(_ context.Context, evt events.StageEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return nil
}

func (r *recordingEmitter) Close() error { return nil }

// failingPutStore fails every Put whose key contains failOn.
type failingPutStore struct {
	*objectstore.MemoryStore
	failOn string
}

func (s *failingPutStore) Put(ctx context.Context, key string, data []byte) error {
	if strings.Contains(key, s.failOn) {
		return fmt.Errorf("put %s: access denied", key)
	}
	return s.MemoryStore.Put(ctx, key, data)
}
