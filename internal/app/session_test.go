package app

import (
	"bytes"
	"context"
	"testing"

	"github.com/dvloznov/retail-etl/internal/config"
	"github.com/dvloznov/retail-etl/internal/infra/memory"
	"github.com/dvloznov/retail-etl/internal/lock"
	"github.com/dvloznov/retail-etl/internal/logger"
	"github.com/dvloznov/retail-etl/internal/objectstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSession(t *testing.T) *Session {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)

	ctx := logger.WithContext(context.Background(), logger.NewWithWriter(&bytes.Buffer{}))
	s, err := NewSession(ctx, cfg, Options{ReportWriter: &bytes.Buffer{}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestNewSession_LocalDefaults(t *testing.T) {
	s := testSession(t)

	assert.IsType(t, &memory.RunLedger{}, s.Ledger)
	assert.IsType(t, &lock.LocalLocker{}, s.Locker)
	assert.NotNil(t, s.Emitter)

	r, err := s.Runner()
	require.NoError(t, err)
	assert.Len(t, r.Sheets, 2)
	assert.Equal(t, "snappy", r.Codec.String())
	assert.Same(t, s, r.Stores)
}

func TestSession_StoreIsCachedPerBucket(t *testing.T) {
	s := testSession(t)
	ctx := context.Background()

	a, err := s.Store(ctx, objectstore.Location{Scheme: objectstore.SchemeMemory, Bucket: "lake", Key: "x"})
	require.NoError(t, err)
	b, err := s.Store(ctx, objectstore.Location{Scheme: objectstore.SchemeMemory, Bucket: "lake", Key: "y"})
	require.NoError(t, err)
	c, err := s.Store(ctx, objectstore.Location{Scheme: objectstore.SchemeMemory, Bucket: "raw"})
	require.NoError(t, err)

	assert.Same(t, a, b)
	assert.NotSame(t, a, c)

	_, err = s.Store(ctx, objectstore.Location{Scheme: "ftp", Bucket: "x"})
	assert.Error(t, err)
}

func TestSession_CloseIsIdempotent(t *testing.T) {
	s := testSession(t)
	_, err := s.Store(context.Background(), objectstore.Location{Scheme: objectstore.SchemeMemory, Bucket: "lake"})
	require.NoError(t, err)

	assert.NoError(t, s.Close())
	assert.NoError(t, s.Close())
}
