package transform

import (
	"github.com/dvloznov/retail-etl/internal/domain"
)

// Enrich adds calendar attributes to every cleaned row. The mapping is one to
// one: the output has the same length and order as the input. Attributes are
// derived in UTC with English day and month names.
func Enrich(rows []domain.Transaction) ([]domain.EnrichedTransaction, error) {
	out := make([]domain.EnrichedTransaction, 0, len(rows))
	for _, tx := range rows {
		if tx.InvoiceDate.IsZero() {
			return nil, &domain.InvalidTimestampError{
				Offset:    tx.Offset,
				Invoice:   tx.Invoice,
				StockCode: tx.StockCode,
			}
		}

		ts := tx.InvoiceDate.UTC()
		month := int(ts.Month())
		out = append(out, domain.EnrichedTransaction{
			Transaction: tx,
			Year:        ts.Year(),
			Month:       month,
			Quarter:     (month-1)/3 + 1,
			DayName:     ts.Weekday().String(),
			Hour:        ts.Hour(),
			MonthName:   ts.Month().String(),
		})
	}
	return out, nil
}
