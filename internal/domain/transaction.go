package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// RawRow is one spreadsheet line exactly as read from the source, before any
// validation. An empty string means the cell was empty.
type RawRow struct {
	Invoice     string
	StockCode   string
	Description string
	Quantity    string
	InvoiceDate string
	Price       string
	CustomerID  string
	Country     string

	FiscalPeriod string // stamped at ingestion from the sheet mapping
	Sheet        string // originating sheet name
	Offset       int    // global ingestion order, used as the dedup tiebreak
}

// Transaction is one cleaned purchase line. Quantity and Price are always
// positive and (Invoice, StockCode, InvoiceDate) is unique within a table.
type Transaction struct {
	Invoice     string
	StockCode   string
	Description *string // nil when the source cell was empty
	Quantity    int64
	Price       decimal.Decimal
	InvoiceDate time.Time
	CustomerID  *string // nil for anonymous purchases
	Country     string

	FiscalPeriod string
	TotalAmount  decimal.Decimal // round(Quantity * Price, 2)

	Offset int
}

// Key returns the natural deduplication key of the transaction.
func (t Transaction) Key() TransactionKey {
	return TransactionKey{
		Invoice:     t.Invoice,
		StockCode:   t.StockCode,
		InvoiceDate: t.InvoiceDate.UnixNano(),
	}
}

// TransactionKey is the (invoice, stock code, invoice timestamp) triple.
type TransactionKey struct {
	Invoice     string
	StockCode   string
	InvoiceDate int64
}

// EnrichedTransaction is a Transaction plus calendar attributes derived from
// its InvoiceDate.
type EnrichedTransaction struct {
	Transaction

	Year      int
	Month     int // 1-12
	Quarter   int // 1-4
	DayName   string
	Hour      int // 0-23
	MonthName string
}

// StringValue dereferences an optional string, returning "" for nil.
func StringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
