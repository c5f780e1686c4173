package ingest

import (
	"context"
	"fmt"
	"strings"

	"github.com/dvloznov/retail-etl/internal/domain"
	"github.com/dvloznov/retail-etl/internal/logger"
)

// SheetSource returns the rows of one sheet. *Workbook is the production
// implementation.
type SheetSource interface {
	ReadSheet(ctx context.Context, sheet string) ([]domain.RawRow, error)
}

// SheetMapping pairs a workbook sheet with the fiscal period its rows belong to.
type SheetMapping struct {
	Sheet  string `json:"sheet"`
	Period string `json:"period"`
}

// DefaultSheets are the two yearly sheets of the Online Retail II workbook.
var DefaultSheets = []SheetMapping{
	{Sheet: "Year 2009-2010", Period: "2009-2010"},
	{Sheet: "Year 2010-2011", Period: "2010-2011"},
}

// ParseSheetMapping parses "Sheet Name=period". The last '=' separates the
// two parts so sheet names may themselves contain '='.
func ParseSheetMapping(s string) (SheetMapping, error) {
	idx := strings.LastIndex(s, "=")
	if idx < 0 {
		return SheetMapping{}, fmt.Errorf("ParseSheetMapping: expected sheet=period, got %q", s)
	}

	m := SheetMapping{
		Sheet:  strings.TrimSpace(s[:idx]),
		Period: strings.TrimSpace(s[idx+1:]),
	}
	if m.Sheet == "" || m.Period == "" {
		return SheetMapping{}, fmt.Errorf("ParseSheetMapping: empty sheet or period in %q", s)
	}
	return m, nil
}

// ParseSheetMappings parses a list of mappings, rejecting duplicate sheets.
func ParseSheetMappings(values []string) ([]SheetMapping, error) {
	out := make([]SheetMapping, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		m, err := ParseSheetMapping(v)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[m.Sheet]; dup {
			return nil, fmt.Errorf("ParseSheetMappings: sheet %q listed twice", m.Sheet)
		}
		seen[m.Sheet] = struct{}{}
		out = append(out, m)
	}
	return out, nil
}

func (m SheetMapping) String() string {
	return m.Sheet + "=" + m.Period
}

// Ingest reads every mapped sheet in order, stamps the fiscal period and
// assigns a global offset so row order is stable across runs. Any sheet that
// cannot be read fails the whole ingestion with *domain.SourceReadError.
func Ingest(ctx context.Context, src SheetSource, sheets []SheetMapping) ([]domain.RawRow, error) {
	log := logger.FromContext(ctx)

	var out []domain.RawRow
	for _, m := range sheets {
		rows, err := src.ReadSheet(ctx, m.Sheet)
		if err != nil {
			return nil, &domain.SourceReadError{Sheet: m.Sheet, Err: err}
		}

		for i := range rows {
			rows[i].FiscalPeriod = m.Period
			rows[i].Sheet = m.Sheet
			rows[i].Offset = len(out) + i
		}
		out = append(out, rows...)

		log.Debug().
			Str("sheet", m.Sheet).
			Str("fiscal_period", m.Period).
			Int("rows", len(rows)).
			Msg("Sheet ingested")
	}

	return out, nil
}
