// Package ingest reads retail transaction sheets out of an Excel workbook.
package ingest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/dvloznov/retail-etl/internal/domain"
	"github.com/xuri/excelize/v2"
)

type column int

const (
	colInvoice column = iota
	colStockCode
	colDescription
	colQuantity
	colInvoiceDate
	colPrice
	colCustomerID
	colCountry
	numColumns
)

// headerAliases maps normalized header text to the column it names.
var headerAliases = map[string]column{
	"invoice":     colInvoice,
	"invoiceno":   colInvoice,
	"stockcode":   colStockCode,
	"description": colDescription,
	"quantity":    colQuantity,
	"invoicedate": colInvoiceDate,
	"price":       colPrice,
	"unitprice":   colPrice,
	"customerid":  colCustomerID,
	"country":     colCountry,
}

var columnNames = [numColumns]string{
	"Invoice", "StockCode", "Description", "Quantity", "InvoiceDate", "Price", "Customer ID", "Country",
}

// Workbook gives sheet level access to an xlsx document held in memory.
type Workbook struct {
	file *excelize.File
}

// OpenWorkbook parses an xlsx document from r.
func OpenWorkbook(r io.Reader) (*Workbook, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("OpenWorkbook: failed to open workbook: %w", err)
	}
	return &Workbook{file: f}, nil
}

// OpenWorkbookBytes is OpenWorkbook over an in-memory blob.
func OpenWorkbookBytes(data []byte) (*Workbook, error) {
	return OpenWorkbook(bytes.NewReader(data))
}

// Sheets lists the sheet names in workbook order.
func (w *Workbook) Sheets() []string {
	return w.file.GetSheetList()
}

// Close releases the temporary files excelize may have created.
func (w *Workbook) Close() error {
	return w.file.Close()
}

// ReadSheet returns every data row of the named sheet as text cells. Numbers
// and dates are read unformatted, so a date cell yields its Excel serial.
// Offsets are left at zero; Ingest assigns them.
func (w *Workbook) ReadSheet(ctx context.Context, sheet string) ([]domain.RawRow, error) {
	if idx, err := w.file.GetSheetIndex(sheet); err != nil || idx < 0 {
		return nil, fmt.Errorf("sheet %q not found", sheet)
	}

	rows, err := w.file.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}

	headerIdx, cols, err := locateHeader(rows)
	if err != nil {
		return nil, err
	}

	out := make([]domain.RawRow, 0, len(rows)-headerIdx-1)
	for i := headerIdx + 1; i < len(rows); i++ {
		if i%10000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		cells := rows[i]
		if isBlank(cells) {
			continue
		}

		get := func(c column) string {
			idx := cols[c]
			if idx < 0 || idx >= len(cells) {
				return ""
			}
			return cells[idx]
		}

		out = append(out, domain.RawRow{
			Invoice:     get(colInvoice),
			StockCode:   get(colStockCode),
			Description: get(colDescription),
			Quantity:    get(colQuantity),
			InvoiceDate: get(colInvoiceDate),
			Price:       get(colPrice),
			CustomerID:  get(colCustomerID),
			Country:     get(colCountry),
			Sheet:       sheet,
		})
	}

	return out, nil
}

// locateHeader finds the first row naming both the invoice and stock code
// columns and maps every known column to its cell index.
func locateHeader(rows [][]string) (int, [numColumns]int, error) {
	var cols [numColumns]int

	for i, row := range rows {
		for c := range cols {
			cols[c] = -1
		}
		for idx, cell := range row {
			if c, ok := headerAliases[normalizeHeader(cell)]; ok && cols[c] < 0 {
				cols[c] = idx
			}
		}
		if cols[colInvoice] < 0 || cols[colStockCode] < 0 {
			continue
		}

		var missing []string
		for c, idx := range cols {
			if idx < 0 {
				missing = append(missing, columnNames[c])
			}
		}
		if len(missing) > 0 {
			return 0, cols, fmt.Errorf("header row %d is missing columns: %s", i+1, strings.Join(missing, ", "))
		}
		return i, cols, nil
	}

	return 0, cols, fmt.Errorf("no header row with Invoice and StockCode columns")
}

func normalizeHeader(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer(" ", "", "_", "", "-", "").Replace(s)
}

func isBlank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
