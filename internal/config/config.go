// Package config loads the retail ETL configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/dvloznov/retail-etl/internal/events"
	"github.com/dvloznov/retail-etl/internal/ingest"
	"github.com/dvloznov/retail-etl/internal/objectstore"
	"github.com/dvloznov/retail-etl/internal/sink"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/robfig/cron/v3"
)

// EnvPrefix prefixes every environment variable, e.g. RETAIL_SOURCE_URI.
const EnvPrefix = "RETAIL"

// Config represents the complete application configuration
type Config struct {
	Source  SourceConfig  `envconfig:"SOURCE"`
	Output  OutputConfig  `envconfig:"OUTPUT"`
	S3      S3Config      `envconfig:"S3"`
	GCP     GCPConfig     `envconfig:"GCP"`
	Kafka   KafkaConfig   `envconfig:"KAFKA"`
	Redis   RedisConfig   `envconfig:"REDIS"`
	Log     LogConfig     `envconfig:"LOG"`
	HTTP    HTTPConfig    `envconfig:"HTTP"`
	Worker  WorkerConfig  `envconfig:"WORKER"`
	Tracing TracingConfig `envconfig:"TRACING"`
}

// SourceConfig locates the input workbook.
type SourceConfig struct {
	URI    string   `envconfig:"URI" default:"file://data/online_retail_II.xlsx" validate:"required"`
	Sheets []string `envconfig:"SHEETS" default:"Year 2009-2010=2009-2010,Year 2010-2011=2010-2011" validate:"min=1"`
}

// OutputConfig locates the output root.
type OutputConfig struct {
	URI         string `envconfig:"URI" default:"file://output" validate:"required"`
	Compression string `envconfig:"COMPRESSION" default:"snappy" validate:"oneof=snappy gzip zstd uncompressed"`
	Concurrency int    `envconfig:"CONCURRENCY" default:"3" validate:"min=1,max=6"`
}

// S3Config configures s3:// locations. Endpoint is set for MinIO.
type S3Config struct {
	Endpoint   string `envconfig:"ENDPOINT"`
	Region     string `envconfig:"REGION" default:"us-east-1"`
	AccessKey  string `envconfig:"ACCESS_KEY"`
	SecretKey  string `envconfig:"SECRET_KEY" validate:"required_with=AccessKey"`
	PathStyle  bool   `envconfig:"PATH_STYLE" default:"false"`
	DisableSSL bool   `envconfig:"DISABLE_SSL" default:"false"`
}

// GCPConfig configures the BigQuery run ledger.
type GCPConfig struct {
	ProjectID     string `envconfig:"PROJECT_ID" validate:"required_if=LedgerEnabled true"`
	Dataset       string `envconfig:"DATASET" default:"retail" validate:"required_if=LedgerEnabled true"`
	LedgerEnabled bool   `envconfig:"LEDGER_ENABLED" default:"false"`
}

// KafkaConfig configures stage event publishing. Empty brokers disable it.
type KafkaConfig struct {
	Brokers string `envconfig:"BROKERS"`
	Topic   string `envconfig:"TOPIC" default:"retail-etl.stages" validate:"required_with=Brokers"`
}

// RedisConfig configures the shared run lock. An empty address uses an
// in-process lock.
type RedisConfig struct {
	Addr     string        `envconfig:"ADDR"`
	Password string        `envconfig:"PASSWORD"`
	DB       int           `envconfig:"DB" default:"0" validate:"min=0"`
	LockTTL  time.Duration `envconfig:"LOCK_TTL" default:"30m" validate:"min=1s"`
}

// LogConfig contains logging configuration
type LogConfig struct {
	Level  string `envconfig:"LEVEL" default:"info" validate:"oneof=trace debug info warn error"`
	Format string `envconfig:"FORMAT" default:"console" validate:"oneof=console json"`
}

// HTTPConfig contains HTTP server configuration
type HTTPConfig struct {
	Port            int           `envconfig:"PORT" default:"8080" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"WRITE_TIMEOUT" default:"15s"`
	IdleTimeout     time.Duration `envconfig:"IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
	AuthToken       string        `envconfig:"AUTH_TOKEN"`
	MaxUploadBytes  int64         `envconfig:"MAX_UPLOAD_BYTES" default:"268435456" validate:"min=1"`
}

// WorkerConfig configures the job queue and the optional cron schedule.
type WorkerConfig struct {
	Schedule   string        `envconfig:"SCHEDULE"`
	QueueSize  int           `envconfig:"QUEUE_SIZE" default:"100" validate:"min=1"`
	Workers    int           `envconfig:"WORKERS" default:"1" validate:"min=1"`
	MaxRetries int           `envconfig:"MAX_RETRIES" default:"3" validate:"min=0"`
	JobTimeout time.Duration `envconfig:"JOB_TIMEOUT" default:"1h"`
}

// TracingConfig toggles OpenTelemetry tracing to stdout.
type TracingConfig struct {
	Enabled bool `envconfig:"ENABLED" default:"false"`
}

// Load reads envFile when it exists, then the environment, and validates the
// result. Variables already set in the environment win over the file.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("Load: failed to read %s: %w", envFile, err)
		}
	}

	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("Load: failed to load config from env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("Load: config validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate checks struct constraints and the values that need parsing.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}
	if _, err := c.SheetMappings(); err != nil {
		return err
	}
	if _, err := objectstore.ParseURI(c.Source.URI); err != nil {
		return fmt.Errorf("source: %w", err)
	}
	if _, err := objectstore.ParseURI(c.Output.URI); err != nil {
		return fmt.Errorf("output: %w", err)
	}
	if c.Worker.Schedule != "" {
		if _, err := cron.ParseStandard(c.Worker.Schedule); err != nil {
			return fmt.Errorf("worker schedule %q: %w", c.Worker.Schedule, err)
		}
	}
	return nil
}

// SheetMappings parses the configured sheet to fiscal period mapping.
func (c *Config) SheetMappings() ([]ingest.SheetMapping, error) {
	return ingest.ParseSheetMappings(c.Source.Sheets)
}

// Codec returns the configured Parquet compression codec.
func (c *Config) Codec() (sink.Codec, error) {
	return sink.ParseCodec(c.Output.Compression)
}

// StoreOptions returns the object store backend settings.
func (c *Config) StoreOptions() objectstore.Options {
	return objectstore.Options{S3: objectstore.S3Config{
		Endpoint:   c.S3.Endpoint,
		Region:     c.S3.Region,
		AccessKey:  c.S3.AccessKey,
		SecretKey:  c.S3.SecretKey,
		PathStyle:  c.S3.PathStyle,
		DisableSSL: c.S3.DisableSSL,
	}}
}

// KafkaBrokers returns the configured broker list.
func (c *Config) KafkaBrokers() []string {
	return events.ParseBrokers(c.Kafka.Brokers)
}
