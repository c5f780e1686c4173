// Package report presents the business summary of a run to operators.
package report

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/dvloznov/retail-etl/internal/domain"
	"github.com/dvloznov/retail-etl/internal/logger"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Reporter presents a finished run.
type Reporter interface {
	Report(ctx context.Context, runID string, summary domain.BusinessSummary, stats domain.CleanStats) error
}

// ConsoleReporter prints the summary banner and logs the same values.
type ConsoleReporter struct {
	out     io.Writer
	printer *message.Printer
}

// NewConsoleReporter writes to out, or stdout when out is nil.
func NewConsoleReporter(out io.Writer) *ConsoleReporter {
	if out == nil {
		out = os.Stdout
	}
	return &ConsoleReporter{out: out, printer: message.NewPrinter(language.English)}
}

func (r *ConsoleReporter) Report(ctx context.Context, runID string, summary domain.BusinessSummary, stats domain.CleanStats) error {
	revenue := summary.TotalRevenue.StringFixed(2)

	p := r.printer
	if _, err := p.Fprintf(r.out, "\n=== Retail ETL summary (run %s) ===\n", runID); err != nil {
		return err
	}
	lines := []struct {
		format string
		args   []any
	}{
		{"Rows ingested:    %d\n", []any{stats.Input}},
		{"Rows cleaned:     %d (%d dropped)\n", []any{stats.Output, stats.Dropped()}},
		{"Total revenue:    £%s\n", []any{groupThousands(revenue)}},
		{"Total orders:     %d\n", []any{summary.TotalOrders}},
		{"Unique customers: %d\n", []any{summary.UniqueCustomers}},
		{"Unique products:  %d\n", []any{summary.UniqueProducts}},
	}
	for _, l := range lines {
		if _, err := p.Fprintf(r.out, l.format, l.args...); err != nil {
			return err
		}
	}

	log := logger.FromContext(ctx)
	log.Info().
		Str("run_id", runID).
		Str("total_revenue", revenue).
		Int64("total_orders", summary.TotalOrders).
		Int64("unique_customers", summary.UniqueCustomers).
		Int64("unique_products", summary.UniqueProducts).
		Int("rows_input", stats.Input).
		Int("rows_output", stats.Output).
		Msg("Business summary")
	return nil
}

// groupThousands inserts comma separators into the integer part of a plain
// decimal string such as "-1234567.89".
func groupThousands(s string) string {
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	intPart, frac, hasFrac := strings.Cut(s, ".")

	var b strings.Builder
	b.WriteString(sign)
	for i, c := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	if hasFrac {
		b.WriteByte('.')
		b.WriteString(frac)
	}
	return b.String()
}

// Nop discards reports.
type Nop struct{}

func (Nop) Report(context.Context, string, domain.BusinessSummary, domain.CleanStats) error {
	return nil
}
