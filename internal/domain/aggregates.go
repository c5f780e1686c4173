package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// CustomerSummary holds the RFM metrics of a single customer. A nil
// CustomerID is the anonymous bucket.
type CustomerSummary struct {
	CustomerID       *string
	LastPurchaseDate time.Time
	Frequency        int64
	MonetaryValue    decimal.Decimal
	Recency          int64 // days between the dataset max timestamp and LastPurchaseDate
}

// ProductSummary aggregates sales of one (stock code, description) pair.
type ProductSummary struct {
	StockCode         string
	Description       *string
	TotalQuantitySold int64
	TotalRevenue      decimal.Decimal
	UniqueCustomers   int64
}

// CountrySummary aggregates sales of one country. TotalOrders counts
// transaction lines, not distinct invoices.
type CountrySummary struct {
	Country         string
	TotalRevenue    decimal.Decimal
	TotalOrders     int64
	UniqueCustomers int64
}

// MonthlyTrend aggregates sales of one calendar month inside a fiscal period.
type MonthlyTrend struct {
	FiscalPeriod   string
	Year           int
	Month          int
	MonthName      string
	MonthlyRevenue decimal.Decimal
	MonthlyOrders  int64
}

// Aggregates is the full set of analytical views produced by a run.
type Aggregates struct {
	Customers []CustomerSummary
	Products  []ProductSummary
	Countries []CountrySummary
	Monthly   []MonthlyTrend
}

// BusinessSummary holds the operator-facing totals of a run.
type BusinessSummary struct {
	TotalRevenue    decimal.Decimal `json:"total_revenue"`
	TotalOrders     int64           `json:"total_orders"`
	UniqueCustomers int64           `json:"unique_customers"`
	UniqueProducts  int64           `json:"unique_products"`
}

// CleanStats counts how many rows each cleaning rule removed.
type CleanStats struct {
	Input               int `json:"input"`
	DroppedMissing      int `json:"dropped_missing"`
	DroppedNonPositive  int `json:"dropped_non_positive"`
	DroppedBadTimestamp int `json:"dropped_bad_timestamp"`
	DroppedDuplicates   int `json:"dropped_duplicates"`
	Output              int `json:"output"`
}

// Dropped returns the total number of rows removed by cleaning.
func (s CleanStats) Dropped() int {
	return s.DroppedMissing + s.DroppedNonPositive + s.DroppedBadTimestamp + s.DroppedDuplicates
}
