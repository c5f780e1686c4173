package jobs

import (
	"context"
	"fmt"
	"sync"

	"github.com/dvloznov/retail-etl/internal/domain"
	"github.com/dvloznov/retail-etl/internal/logger"
	"github.com/robfig/cron/v3"
)

// Scheduler publishes a RunPipelineJob on a cron schedule.
type Scheduler struct {
	cron      *cron.Cron
	publisher Publisher
	template  RunPipelineJob

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	running bool
}

// NewScheduler creates a scheduler publishing copies of template every time
// spec fires. spec uses the standard five field cron syntax or a descriptor
// such as "@daily".
func NewScheduler(ctx context.Context, spec string, publisher Publisher, template RunPipelineJob) (*Scheduler, error) {
	ctx, cancel := context.WithCancel(ctx)
	s := &Scheduler{
		cron:      cron.New(),
		publisher: publisher,
		template:  template,
		ctx:       ctx,
		cancel:    cancel,
	}

	if _, err := s.cron.AddFunc(spec, s.enqueue); err != nil {
		cancel()
		return nil, fmt.Errorf("NewScheduler: invalid schedule %q: %w", spec, err)
	}
	return s, nil
}

// Start starts the cron loop in the background.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	s.cron.Start()
	s.running = true
	log := logger.FromContext(s.ctx)
	log.Info().Msg("Scheduler started")
}

// Stop stops the cron loop and waits for a publish in progress.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.cancel()
	<-s.cron.Stop().Done()
	s.running = false
	log := logger.FromContext(s.ctx)
	log.Info().Msg("Scheduler stopped")
}

func (s *Scheduler) enqueue() {
	job := s.template
	job.JobID = ""
	job.Status = ""
	job.Trigger = domain.TriggerSchedule

	log := logger.FromContext(s.ctx)
	if err := s.publisher.PublishRunPipeline(s.ctx, &job); err != nil {
		log.Error().Err(err).Msg("Failed to enqueue scheduled run")
		return
	}
	log.Info().Str("job_id", job.JobID).Str("source_uri", job.SourceURI).Msg("Scheduled run enqueued")
}
