// Package app builds the per-process session shared by the commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/dvloznov/retail-etl/internal/config"
	"github.com/dvloznov/retail-etl/internal/domain"
	"github.com/dvloznov/retail-etl/internal/events"
	infraBQ "github.com/dvloznov/retail-etl/internal/infra/bigquery"
	"github.com/dvloznov/retail-etl/internal/infra/memory"
	"github.com/dvloznov/retail-etl/internal/lock"
	"github.com/dvloznov/retail-etl/internal/logger"
	"github.com/dvloznov/retail-etl/internal/objectstore"
	"github.com/dvloznov/retail-etl/internal/pipeline"
	"github.com/dvloznov/retail-etl/internal/report"
	"github.com/dvloznov/retail-etl/internal/telemetry"
	"github.com/redis/go-redis/v9"
)

// ServiceName names the service in traces.
const ServiceName = "retail-etl"

// RunLedger records runs and lists recent ones.
type RunLedger interface {
	pipeline.RunLedger
	ListRecentRuns(ctx context.Context, limit int) ([]domain.RunRecord, error)
}

// Session owns every long-lived collaborator of a process. It is created once
// from config, passed explicitly to whoever needs it and closed on exit.
type Session struct {
	Config   *config.Config
	Ledger   RunLedger
	Emitter  events.Emitter
	Locker   lock.Locker
	Reporter report.Reporter

	mu      sync.Mutex
	stores  map[string]objectstore.Store
	closers []io.Closer
	tracing telemetry.Shutdown
}

// Options override parts of the session built from config.
type Options struct {
	// ReportWriter receives the summary banner, stdout when nil.
	ReportWriter io.Writer
}

// NewSession builds a session from cfg. Optional backends are only
// connected when configured: BigQuery when the ledger is enabled, Kafka
// when brokers are set, Redis when an address is set.
func NewSession(ctx context.Context, cfg *config.Config, opts Options) (*Session, error) {
	log := logger.FromContext(ctx)
	s := &Session{
		Config:   cfg,
		Reporter: report.NewConsoleReporter(opts.ReportWriter),
		stores:   make(map[string]objectstore.Store),
	}

	shutdown, err := telemetry.Setup(ctx, telemetry.Config{ServiceName: ServiceName, Enabled: cfg.Tracing.Enabled})
	if err != nil {
		return nil, err
	}
	s.tracing = shutdown

	if cfg.GCP.LedgerEnabled {
		repo, err := infraBQ.NewRunRepository(ctx, cfg.GCP.ProjectID, cfg.GCP.Dataset)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("NewSession: %w", err)
		}
		s.closers = append(s.closers, repo)
		if err := repo.EnsureTable(ctx); err != nil {
			s.Close()
			return nil, fmt.Errorf("NewSession: %w", err)
		}
		s.Ledger = repo
		log.Info().Str("project", cfg.GCP.ProjectID).Str("dataset", cfg.GCP.Dataset).Msg("BigQuery run ledger enabled")
	} else {
		s.Ledger = memory.NewRunLedger()
	}

	emitters := events.Multi{events.LogEmitter{}}
	if brokers := cfg.KafkaBrokers(); len(brokers) > 0 {
		emitters = append(emitters, events.NewKafkaEmitter(brokers, cfg.Kafka.Topic))
		log.Info().Strs("brokers", brokers).Str("topic", cfg.Kafka.Topic).Msg("Kafka stage events enabled")
	}
	s.Emitter = emitters

	if cfg.Redis.Addr != "" {
		rdb, err := lock.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("NewSession: %w", err)
		}
		s.closers = append(s.closers, rdb)
		s.Locker = lock.NewRedisLocker(redis.UniversalClient(rdb), "retail-etl:")
		log.Info().Str("addr", cfg.Redis.Addr).Msg("Redis run lock enabled")
	} else {
		s.Locker = lock.NewLocalLocker()
	}

	return s, nil
}

// Store returns the store serving loc's bucket, opening it on first use.
func (s *Session) Store(ctx context.Context, loc objectstore.Location) (objectstore.Store, error) {
	key := loc.Scheme + "://" + loc.Bucket

	s.mu.Lock()
	defer s.mu.Unlock()

	if st, ok := s.stores[key]; ok {
		return st, nil
	}
	st, err := objectstore.Open(ctx, loc, s.Config.StoreOptions())
	if err != nil {
		return nil, fmt.Errorf("Store: %w", err)
	}
	s.stores[key] = st
	return st, nil
}

// Runner returns a pipeline runner bound to the session.
func (s *Session) Runner() (*pipeline.Runner, error) {
	sheets, err := s.Config.SheetMappings()
	if err != nil {
		return nil, err
	}
	codec, err := s.Config.Codec()
	if err != nil {
		return nil, err
	}
	return &pipeline.Runner{
		Stores:          s,
		Sheets:          sheets,
		Ledger:          s.Ledger,
		Locker:          s.Locker,
		Emitter:         s.Emitter,
		Reporter:        s.Reporter,
		Codec:           codec,
		SinkConcurrency: s.Config.Output.Concurrency,
		LockTTL:         s.Config.Redis.LockTTL,
	}, nil
}

// Close releases every resource of the session. It is safe to call more
// than once.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for key, st := range s.stores {
		if err := st.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store %s: %w", key, err))
		}
		delete(s.stores, key)
	}
	if s.Emitter != nil {
		if err := s.Emitter.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close emitter: %w", err))
		}
		s.Emitter = nil
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	if s.tracing != nil {
		if err := s.tracing(context.Background()); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracing: %w", err))
		}
		s.tracing = nil
	}
	return errors.Join(errs...)
}
