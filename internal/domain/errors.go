package domain

import (
	"fmt"
)

// SourceReadError is returned when the workbook object is missing or is not a
// readable workbook, or when a configured sheet is missing or cannot be read.
// The run cannot proceed without its input.
type SourceReadError struct {
	Object string
	Sheet  string
	Err    error
}

func (e *SourceReadError) Error() string {
	if e.Sheet == "" {
		return fmt.Sprintf("source read failed for %s: %v", e.Object, e.Err)
	}
	return fmt.Sprintf("source read failed for sheet %q: %v", e.Sheet, e.Err)
}

func (e *SourceReadError) Unwrap() error { return e.Err }

// MalformedTimestampError describes a row whose invoice date could not be
// parsed. Cleaning excludes such rows and keeps going.
type MalformedTimestampError struct {
	Offset int
	Sheet  string
	Value  string
	Err    error
}

func (e *MalformedTimestampError) Error() string {
	return fmt.Sprintf("malformed invoice date %q at row %d (sheet %q): %v", e.Value, e.Offset, e.Sheet, e.Err)
}

func (e *MalformedTimestampError) Unwrap() error { return e.Err }

// InvalidTimestampError is returned by enrichment when a cleaned row has no
// timestamp. It means an upstream invariant was broken.
type InvalidTimestampError struct {
	Offset    int
	Invoice   string
	StockCode string
}

func (e *InvalidTimestampError) Error() string {
	return fmt.Sprintf("row %d (invoice %q, stock code %q) has no invoice timestamp", e.Offset, e.Invoice, e.StockCode)
}

// SinkWriteError is returned when an output table could not be persisted.
type SinkWriteError struct {
	Table string
	Path  string
	Err   error
}

func (e *SinkWriteError) Error() string {
	return fmt.Sprintf("write %s to %s: %v", e.Table, e.Path, e.Err)
}

func (e *SinkWriteError) Unwrap() error { return e.Err }

// StageError wraps the failure of a pipeline stage with its name and position.
type StageError struct {
	Stage string
	Index int
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("pipeline step %d (%s) failed: %v", e.Index, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
