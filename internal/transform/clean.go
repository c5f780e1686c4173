// Package transform holds the pure dataframe-style stages of the retail ETL:
// cleaning, enrichment, aggregation and the business summary. Nothing in this
// package performs I/O; every function returns new slices and leaves its input
// untouched.
package transform

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/dvloznov/retail-etl/internal/domain"
	"github.com/shopspring/decimal"
)

// CleanResult is the output of Clean.
type CleanResult struct {
	Rows      []domain.Transaction
	Stats     domain.CleanStats
	Malformed []*domain.MalformedTimestampError
}

// Clean turns raw rows into the validated transaction table. Rules apply in
// this order:
//  1. drop rows missing invoice, stock code, quantity or price
//  2. drop rows with quantity <= 0 or price <= 0
//  3. parse the invoice date, excluding rows where that fails
//  4. compute TotalAmount = round(quantity * price, 2)
//  5. drop duplicates of (invoice, stock code, invoice date), keeping the
//     row with the lowest ingestion offset
//
// Output rows are ordered by offset.
func Clean(raw []domain.RawRow) CleanResult {
	ordered := make([]domain.RawRow, len(raw))
	copy(ordered, raw)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Offset < ordered[j].Offset })

	result := CleanResult{
		Rows:  make([]domain.Transaction, 0, len(raw)),
		Stats: domain.CleanStats{Input: len(raw)},
	}
	seen := make(map[domain.TransactionKey]struct{}, len(raw))

	for _, r := range ordered {
		invoice := strings.TrimSpace(r.Invoice)
		stockCode := strings.TrimSpace(r.StockCode)
		qty, qtyOK := parseQuantity(r.Quantity)
		price, priceOK := parsePrice(r.Price)
		if invoice == "" || stockCode == "" || !qtyOK || !priceOK {
			result.Stats.DroppedMissing++
			continue
		}

		if qty <= 0 || !price.IsPositive() {
			result.Stats.DroppedNonPositive++
			continue
		}

		ts, err := ParseTimestamp(r.InvoiceDate)
		if err != nil {
			result.Stats.DroppedBadTimestamp++
			result.Malformed = append(result.Malformed, &domain.MalformedTimestampError{
				Offset: r.Offset,
				Sheet:  r.Sheet,
				Value:  r.InvoiceDate,
				Err:    err,
			})
			continue
		}

		tx := domain.Transaction{
			Invoice:      invoice,
			StockCode:    stockCode,
			Description:  optionalText(r.Description),
			Quantity:     qty,
			Price:        price,
			InvoiceDate:  ts,
			CustomerID:   normalizeCustomerID(r.CustomerID),
			Country:      strings.TrimSpace(r.Country),
			FiscalPeriod: r.FiscalPeriod,
			TotalAmount:  TotalAmount(qty, price),
			Offset:       r.Offset,
		}

		key := tx.Key()
		if _, dup := seen[key]; dup {
			result.Stats.DroppedDuplicates++
			continue
		}
		seen[key] = struct{}{}
		result.Rows = append(result.Rows, tx)
	}

	result.Stats.Output = len(result.Rows)
	return result
}

// TotalAmount returns quantity * price rounded half away from zero to cents.
func TotalAmount(quantity int64, price decimal.Decimal) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(quantity)).Round(2)
}

// parseQuantity accepts integral numbers, including the "6.0" form that
// spreadsheets produce for numeric cells.
func parseQuantity(s string) (int64, bool) {
	v := strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if v == "" {
		return 0, false
	}
	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		return n, true
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	if f > math.MaxInt64 || f < math.MinInt64 {
		return 0, false
	}
	return int64(f), true
}

// parsePrice reads the price through float64 so binary noise stored in the
// workbook ("2.5499999999999998") collapses to its shortest decimal form.
func parsePrice(s string) (decimal.Decimal, bool) {
	v := strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if v == "" {
		return decimal.Zero, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Zero, false
	}
	return decimal.NewFromFloat(f), true
}

func optionalText(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}

// normalizeCustomerID maps empty cells to nil and numeric ids stored as
// floats ("13085.0") to their integer form.
func normalizeCustomerID(s string) *string {
	v := strings.TrimSpace(s)
	if v == "" {
		return nil
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil && f == math.Trunc(f) && math.Abs(f) < 1e15 {
		id := strconv.FormatInt(int64(f), 10)
		return &id
	}
	return &v
}
