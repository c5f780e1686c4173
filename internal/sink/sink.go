// Package sink persists output tables as Parquet files in an object store.
package sink

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dvloznov/retail-etl/internal/domain"
	"github.com/dvloznov/retail-etl/internal/logger"
	"github.com/dvloznov/retail-etl/internal/objectstore"
	"golang.org/x/sync/errgroup"
)

// SuccessMarker is written last into a table directory once every part of
// the table is stored. A table without it is incomplete.
const SuccessMarker = "_SUCCESS"

// defaultConcurrency bounds how many tables are written at once.
const defaultConcurrency = 3

// Output describes a table that was written.
type Output = domain.TableOutput

// ParquetSink writes tables below a root location of an object store.
type ParquetSink struct {
	store       objectstore.Store
	root        objectstore.Location
	codec       Codec
	concurrency int
}

// Option configures a ParquetSink.
type Option func(*ParquetSink)

// WithCodec sets the compression codec. Snappy is the default.
func WithCodec(c Codec) Option {
	return func(s *ParquetSink) { s.codec = c }
}

// WithConcurrency sets how many tables WriteAll writes in parallel.
func WithConcurrency(n int) Option {
	return func(s *ParquetSink) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// NewParquetSink creates a sink writing under root in store.
func NewParquetSink(store objectstore.Store, root objectstore.Location, opts ...Option) *ParquetSink {
	s := &ParquetSink{
		store:       store,
		root:        root,
		codec:       Snappy,
		concurrency: defaultConcurrency,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Write replaces the contents of the table's path: prior objects are
// deleted, one Parquet file is written per partition and the success marker
// goes last. Failures are returned as *domain.SinkWriteError.
func (s *ParquetSink) Write(ctx context.Context, t Table) (Output, error) {
	loc := s.root.Join(t.Path)
	out := Output{Table: t.Name, URI: loc.String(), Rows: t.Rows()}
	log := logger.FromContext(ctx).With().Str("table", t.Name).Str("uri", out.URI).Logger()

	fail := func(err error) (Output, error) {
		return out, &domain.SinkWriteError{Table: t.Name, Path: out.URI, Err: err}
	}

	start := time.Now()
	if err := s.store.DeletePrefix(ctx, loc.Key); err != nil {
		return fail(fmt.Errorf("clear previous output: %w", err))
	}

	for _, p := range t.Parts {
		if err := ctx.Err(); err != nil {
			return fail(err)
		}

		data, err := p.encode(s.codec)
		if err != nil {
			return fail(fmt.Errorf("encode partition %q: %w", p.Dir(t.PartitionCols), err))
		}

		key := objectstore.JoinKey(loc.Key, p.Dir(t.PartitionCols), "part-00000"+s.codec.extension)
		if err := s.store.Put(ctx, key, data); err != nil {
			return fail(err)
		}
		out.Files++
		out.Bytes += int64(len(data))
	}

	if err := s.store.Put(ctx, objectstore.JoinKey(loc.Key, SuccessMarker), nil); err != nil {
		return fail(fmt.Errorf("write success marker: %w", err))
	}

	log.Info().
		Int("rows", out.Rows).
		Int("files", out.Files).
		Int64("bytes", out.Bytes).
		Dur("duration", time.Since(start)).
		Msg("Table written")

	return out, nil
}

// WriteAll writes every table, continuing past failures. When any write
// fails the returned error joins every *domain.SinkWriteError in the order
// of tables; outputs holds only the tables that were written.
func (s *ParquetSink) WriteAll(ctx context.Context, tables []Table) ([]Output, error) {
	results := make([]Output, len(tables))
	errs := make([]error, len(tables))

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, t := range tables {
		g.Go(func() error {
			results[i], errs[i] = s.Write(ctx, t)
			if errs[i] != nil {
				log := logger.FromContext(ctx)
				log.Error().Err(errs[i]).Str("table", t.Name).Msg("Table write failed")
			}
			return nil
		})
	}
	_ = g.Wait()

	outputs := make([]Output, 0, len(tables))
	for i := range tables {
		if errs[i] == nil {
			outputs = append(outputs, results[i])
		}
	}
	return outputs, errors.Join(errs...)
}
