package transform

import (
	"context"
	"sort"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/retail-etl/internal/domain"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// customerKey distinguishes the anonymous bucket from a customer whose id
// happens to be the empty string.
type customerKey struct {
	id        string
	anonymous bool
}

func keyOfCustomer(id *string) customerKey {
	if id == nil {
		return customerKey{anonymous: true}
	}
	return customerKey{id: *id}
}

func (k customerKey) ptr() *string {
	if k.anonymous {
		return nil
	}
	id := k.id
	return &id
}

// Aggregate computes the four analytical views concurrently. The views are
// independent of each other and only read their inputs.
func Aggregate(ctx context.Context, cleaned []domain.Transaction, enriched []domain.EnrichedTransaction) (domain.Aggregates, error) {
	var out domain.Aggregates
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		out.Customers = CustomerRFM(cleaned)
		return nil
	})
	g.Go(func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		out.Products = ProductPerformance(cleaned)
		return nil
	})
	g.Go(func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		out.Countries = CountrySales(cleaned)
		return nil
	})
	g.Go(func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		out.Monthly = MonthlyTrends(enriched)
		return nil
	})

	if err := g.Wait(); err != nil {
		return domain.Aggregates{}, err
	}
	return out, nil
}

// CustomerRFM groups rows by customer. Recency is measured against the latest
// invoice timestamp of the whole table, so it is never negative and the most
// recent customer has recency 0. Rows are sorted with the anonymous bucket
// first, then by customer id.
func CustomerRFM(rows []domain.Transaction) []domain.CustomerSummary {
	if len(rows) == 0 {
		return []domain.CustomerSummary{}
	}

	var maxDate time.Time
	groups := make(map[customerKey]*domain.CustomerSummary)
	for _, tx := range rows {
		if tx.InvoiceDate.After(maxDate) {
			maxDate = tx.InvoiceDate
		}

		k := keyOfCustomer(tx.CustomerID)
		s, ok := groups[k]
		if !ok {
			s = &domain.CustomerSummary{CustomerID: k.ptr(), MonetaryValue: decimal.Zero}
			groups[k] = s
		}
		if tx.InvoiceDate.After(s.LastPurchaseDate) {
			s.LastPurchaseDate = tx.InvoiceDate
		}
		s.Frequency++
		s.MonetaryValue = s.MonetaryValue.Add(tx.TotalAmount)
	}

	latest := civil.DateOf(maxDate.UTC())
	out := make([]domain.CustomerSummary, 0, len(groups))
	for _, s := range groups {
		s.Recency = int64(latest.DaysSince(civil.DateOf(s.LastPurchaseDate.UTC())))
		out = append(out, *s)
	}

	sort.Slice(out, func(i, j int) bool {
		return lessOptional(out[i].CustomerID, out[j].CustomerID)
	})
	return out
}

type productKey struct {
	stockCode   string
	description string
	hasDesc     bool
}

// ProductPerformance groups rows by (stock code, description). Anonymous
// purchases do not count towards UniqueCustomers.
func ProductPerformance(rows []domain.Transaction) []domain.ProductSummary {
	groups := make(map[productKey]*domain.ProductSummary)
	customers := make(map[productKey]map[string]struct{})

	for _, tx := range rows {
		k := productKey{stockCode: tx.StockCode}
		if tx.Description != nil {
			k.description, k.hasDesc = *tx.Description, true
		}

		s, ok := groups[k]
		if !ok {
			s = &domain.ProductSummary{StockCode: tx.StockCode, Description: tx.Description, TotalRevenue: decimal.Zero}
			groups[k] = s
			customers[k] = make(map[string]struct{})
		}
		s.TotalQuantitySold += tx.Quantity
		s.TotalRevenue = s.TotalRevenue.Add(tx.TotalAmount)
		if tx.CustomerID != nil {
			customers[k][*tx.CustomerID] = struct{}{}
		}
	}

	out := make([]domain.ProductSummary, 0, len(groups))
	for k, s := range groups {
		s.UniqueCustomers = int64(len(customers[k]))
		out = append(out, *s)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].StockCode != out[j].StockCode {
			return out[i].StockCode < out[j].StockCode
		}
		return lessOptional(out[i].Description, out[j].Description)
	})
	return out
}

// CountrySales groups rows by country. TotalOrders counts transaction lines,
// not distinct invoices.
func CountrySales(rows []domain.Transaction) []domain.CountrySummary {
	groups := make(map[string]*domain.CountrySummary)
	customers := make(map[string]map[string]struct{})

	for _, tx := range rows {
		s, ok := groups[tx.Country]
		if !ok {
			s = &domain.CountrySummary{Country: tx.Country, TotalRevenue: decimal.Zero}
			groups[tx.Country] = s
			customers[tx.Country] = make(map[string]struct{})
		}
		s.TotalRevenue = s.TotalRevenue.Add(tx.TotalAmount)
		s.TotalOrders++
		if tx.CustomerID != nil {
			customers[tx.Country][*tx.CustomerID] = struct{}{}
		}
	}

	out := make([]domain.CountrySummary, 0, len(groups))
	for country, s := range groups {
		s.UniqueCustomers = int64(len(customers[country]))
		out = append(out, *s)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Country < out[j].Country })
	return out
}

type monthKey struct {
	period string
	year   int
	month  int
}

// MonthlyTrends groups enriched rows by fiscal period and calendar month.
func MonthlyTrends(rows []domain.EnrichedTransaction) []domain.MonthlyTrend {
	groups := make(map[monthKey]*domain.MonthlyTrend)

	for _, tx := range rows {
		k := monthKey{period: tx.FiscalPeriod, year: tx.Year, month: tx.Month}
		s, ok := groups[k]
		if !ok {
			s = &domain.MonthlyTrend{
				FiscalPeriod:   tx.FiscalPeriod,
				Year:           tx.Year,
				Month:          tx.Month,
				MonthName:      tx.MonthName,
				MonthlyRevenue: decimal.Zero,
			}
			groups[k] = s
		}
		s.MonthlyRevenue = s.MonthlyRevenue.Add(tx.TotalAmount)
		s.MonthlyOrders++
	}

	out := make([]domain.MonthlyTrend, 0, len(groups))
	for _, s := range groups {
		out = append(out, *s)
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.FiscalPeriod != b.FiscalPeriod {
			return a.FiscalPeriod < b.FiscalPeriod
		}
		if a.Year != b.Year {
			return a.Year < b.Year
		}
		return a.Month < b.Month
	})
	return out
}

// lessOptional orders nil before any value.
func lessOptional(a, b *string) bool {
	switch {
	case a == nil:
		return b != nil
	case b == nil:
		return false
	default:
		return *a < *b
	}
}
