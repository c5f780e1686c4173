package transform

import (
	"github.com/dvloznov/retail-etl/internal/domain"
	"github.com/shopspring/decimal"
)

// Summarize computes the business totals of the cleaned table. TotalOrders
// counts distinct invoices; UniqueCustomers counts the anonymous bucket once
// so it always equals the number of customer RFM rows.
func Summarize(rows []domain.Transaction) domain.BusinessSummary {
	revenue := decimal.Zero
	invoices := make(map[string]struct{})
	customers := make(map[customerKey]struct{})
	products := make(map[string]struct{})

	for _, tx := range rows {
		revenue = revenue.Add(tx.TotalAmount)
		invoices[tx.Invoice] = struct{}{}
		customers[keyOfCustomer(tx.CustomerID)] = struct{}{}
		products[tx.StockCode] = struct{}{}
	}

	return domain.BusinessSummary{
		TotalRevenue:    revenue,
		TotalOrders:     int64(len(invoices)),
		UniqueCustomers: int64(len(customers)),
		UniqueProducts:  int64(len(products)),
	}
}
