package inmemory

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dvloznov/retail-etl/internal/jobs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitForStatus(t *testing.T, store *Store, jobID string, status jobs.JobStatus) *jobs.RunPipelineJob {
	t.Helper()
	var got *jobs.RunPipelineJob
	require.Eventually(t, func() bool {
		j, err := store.GetJob(context.Background(), jobID)
		if err != nil {
			return false
		}
		got = j
		return j.Status == status
	}, 5*time.Second, 5*time.Millisecond)
	return got
}

func TestQueue_ProcessesJob(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := NewStore()
	q := NewQueue(10, 2, store)
	defer q.Close()

	require.NoError(t, q.Start(ctx, func(ctx context.Context, job jobs.Job) error { return nil }))

	job := &jobs.RunPipelineJob{SourceURI: "s3://raw/wb.xlsx", OutputURI: "s3://lake/retail", Trigger: "api"}
	require.NoError(t, q.PublishRunPipeline(ctx, job))
	assert.NotEmpty(t, job.JobID)
	assert.Equal(t, jobs.DefaultMaxRetries, job.MaxRetries)

	done := waitForStatus(t, store, job.JobID, jobs.JobStatusCompleted)
	assert.NotNil(t, done.StartedAt)
	assert.NotNil(t, done.CompletedAt)
	assert.Empty(t, done.Error)
}

func TestQueue_RetriesTransientFailures(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := NewStore()
	q := NewQueue(10, 1, store)
	q.backoff = time.Millisecond
	defer q.Close()

	var attempts atomic.Int32
	require.NoError(t, q.Start(ctx, func(ctx context.Context, job jobs.Job) error {
		if attempts.Add(1) < 3 {
			return errors.New("lock held")
		}
		return nil
	}))

	job := &jobs.RunPipelineJob{Trigger: "schedule"}
	require.NoError(t, q.PublishRunPipeline(ctx, job))

	done := waitForStatus(t, store, job.JobID, jobs.JobStatusCompleted)
	assert.Equal(t, 2, done.RetryCount)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestQueue_GivesUpAfterMaxRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := NewStore()
	q := NewQueue(10, 1, store)
	q.backoff = time.Millisecond
	defer q.Close()

	require.NoError(t, q.Start(ctx, func(ctx context.Context, job jobs.Job) error {
		return errors.New("bucket unreachable")
	}))

	job := &jobs.RunPipelineJob{MaxRetries: 2}
	require.NoError(t, q.PublishRunPipeline(ctx, job))

	failed := waitForStatus(t, store, job.JobID, jobs.JobStatusFailed)
	assert.Equal(t, 2, failed.RetryCount)
	assert.Equal(t, "bucket unreachable", failed.Error)
}

func TestQueue_PermanentErrorsAreNotRetried(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := NewStore()
	q := NewQueue(10, 1, store)
	q.backoff = time.Millisecond
	defer q.Close()

	var attempts atomic.Int32
	require.NoError(t, q.Start(ctx, func(ctx context.Context, job jobs.Job) error {
		attempts.Add(1)
		return jobs.Permanent(errors.New("sheet missing"))
	}))

	job := &jobs.RunPipelineJob{}
	require.NoError(t, q.PublishRunPipeline(ctx, job))

	failed := waitForStatus(t, store, job.JobID, jobs.JobStatusFailed)
	assert.Equal(t, 0, failed.RetryCount)
	assert.Equal(t, int32(1), attempts.Load())
}

func TestQueue_ClosedQueueRejectsJobs(t *testing.T) {
	q := NewQueue(1, 1, nil)
	require.NoError(t, q.Close())
	assert.Error(t, q.PublishRunPipeline(context.Background(), &jobs.RunPipelineJob{}))
	assert.Error(t, q.Start(context.Background(), func(context.Context, jobs.Job) error { return nil }))
}
