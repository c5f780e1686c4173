package sink

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

// marshalParallelism is the number of goroutines parquet-go uses to marshal
// a row group.
const marshalParallelism = 4

// Codec is a Parquet page compression codec.
type Codec struct {
	name      string
	codec     parquet.CompressionCodec
	extension string
}

var codecs = map[string]Codec{
	"snappy":       {name: "snappy", codec: parquet.CompressionCodec_SNAPPY, extension: ".snappy.parquet"},
	"gzip":         {name: "gzip", codec: parquet.CompressionCodec_GZIP, extension: ".gz.parquet"},
	"zstd":         {name: "zstd", codec: parquet.CompressionCodec_ZSTD, extension: ".zstd.parquet"},
	"uncompressed": {name: "uncompressed", codec: parquet.CompressionCodec_UNCOMPRESSED, extension: ".parquet"},
}

// Snappy is the default codec.
var Snappy = codecs["snappy"]

// ParseCodec looks up a codec by name.
func ParseCodec(name string) (Codec, error) {
	c, ok := codecs[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Codec{}, fmt.Errorf("ParseCodec: unknown compression %q", name)
	}
	return c, nil
}

func (c Codec) String() string { return c.name }

// encodeParquet writes rows into a single in-memory Parquet file.
func encodeParquet[R any](rows []R, codec Codec) ([]byte, error) {
	var buf bytes.Buffer
	fw := writerfile.NewWriterFile(&buf)

	pw, err := writer.NewParquetWriter(fw, new(R), marshalParallelism)
	if err != nil {
		return nil, fmt.Errorf("failed to create parquet writer: %w", err)
	}
	pw.CompressionType = codec.codec

	for i := range rows {
		if err := pw.Write(rows[i]); err != nil {
			return nil, fmt.Errorf("failed to write record %d: %w", i, err)
		}
	}

	if err := pw.WriteStop(); err != nil {
		return nil, fmt.Errorf("error in WriteStop: %w", err)
	}
	if err := fw.Close(); err != nil {
		return nil, fmt.Errorf("error closing file writer: %w", err)
	}

	return buf.Bytes(), nil
}
