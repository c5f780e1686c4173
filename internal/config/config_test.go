package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dvloznov/retail-etl/internal/ingest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "file://data/online_retail_II.xlsx", cfg.Source.URI)
	assert.Equal(t, "file://output", cfg.Output.URI)
	assert.Equal(t, "snappy", cfg.Output.Compression)
	assert.Equal(t, 3, cfg.Output.Concurrency)
	assert.Equal(t, 30*time.Minute, cfg.Redis.LockTTL)
	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, "retail-etl.stages", cfg.Kafka.Topic)
	assert.False(t, cfg.GCP.LedgerEnabled)

	sheets, err := cfg.SheetMappings()
	require.NoError(t, err)
	assert.Equal(t, ingest.DefaultSheets, sheets)

	codec, err := cfg.Codec()
	require.NoError(t, err)
	assert.Equal(t, "snappy", codec.String())
	assert.Empty(t, cfg.KafkaBrokers())
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("RETAIL_SOURCE_URI", "s3://raw/online_retail_II.xlsx")
	t.Setenv("RETAIL_OUTPUT_URI", "s3://lake/retail")
	t.Setenv("RETAIL_OUTPUT_COMPRESSION", "zstd")
	t.Setenv("RETAIL_S3_ENDPOINT", "http://localhost:9000")
	t.Setenv("RETAIL_S3_ACCESS_KEY", "minio")
	t.Setenv("RETAIL_S3_SECRET_KEY", "minio123")
	t.Setenv("RETAIL_S3_PATH_STYLE", "true")
	t.Setenv("RETAIL_KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("RETAIL_WORKER_SCHEDULE", "0 3 * * *")
	t.Setenv("RETAIL_LOG_FORMAT", "json")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "s3://raw/online_retail_II.xlsx", cfg.Source.URI)
	opts := cfg.StoreOptions()
	assert.Equal(t, "http://localhost:9000", opts.S3.Endpoint)
	assert.True(t, opts.S3.PathStyle)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers())
	assert.Equal(t, "0 3 * * *", cfg.Worker.Schedule)

	codec, err := cfg.Codec()
	require.NoError(t, err)
	assert.Equal(t, "zstd", codec.String())
}

func TestLoad_EnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("RETAIL_OUTPUT_URI=gs://lake/from-file\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("RETAIL_OUTPUT_URI") })

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "gs://lake/from-file", cfg.Output.URI)
}

func TestLoad_MissingEnvFileIsIgnored(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.NoError(t, err)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"bad compression", map[string]string{"RETAIL_OUTPUT_COMPRESSION": "lz4"}},
		{"bad log level", map[string]string{"RETAIL_LOG_LEVEL": "loud"}},
		{"ledger without project", map[string]string{"RETAIL_GCP_LEDGER_ENABLED": "true"}},
		{"bad schedule", map[string]string{"RETAIL_WORKER_SCHEDULE": "every day"}},
		{"bad sheet mapping", map[string]string{"RETAIL_SOURCE_SHEETS": "Sheet1"}},
		{"unsupported output scheme", map[string]string{"RETAIL_OUTPUT_URI": "ftp://host/out"}},
		{"access key without secret", map[string]string{"RETAIL_S3_ACCESS_KEY": "minio"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load("")
			assert.Error(t, err)
		})
	}
}
