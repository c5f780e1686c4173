package sink

import (
	"time"

	"github.com/dvloznov/retail-etl/internal/domain"
)

// Parquet row layouts. Partition columns are encoded in the directory names
// and left out of the files.

type cleanedRecord struct {
	Invoice     string  `parquet:"name=Invoice, type=BYTE_ARRAY, convertedtype=UTF8"`
	StockCode   string  `parquet:"name=StockCode, type=BYTE_ARRAY, convertedtype=UTF8"`
	Description *string `parquet:"name=Description, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	Quantity    int64   `parquet:"name=Quantity, type=INT64"`
	InvoiceDate int64   `parquet:"name=InvoiceDate, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
	Price       float64 `parquet:"name=Price, type=DOUBLE"`
	CustomerID  *string `parquet:"name=CustomerID, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	Country     string  `parquet:"name=Country, type=BYTE_ARRAY, convertedtype=UTF8"`
	TotalAmount float64 `parquet:"name=TotalAmount, type=DOUBLE"`
}

type enrichedRecord struct {
	Invoice     string  `parquet:"name=Invoice, type=BYTE_ARRAY, convertedtype=UTF8"`
	StockCode   string  `parquet:"name=StockCode, type=BYTE_ARRAY, convertedtype=UTF8"`
	Description *string `parquet:"name=Description, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	Quantity    int64   `parquet:"name=Quantity, type=INT64"`
	InvoiceDate int64   `parquet:"name=InvoiceDate, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
	Price       float64 `parquet:"name=Price, type=DOUBLE"`
	CustomerID  *string `parquet:"name=CustomerID, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	Country     string  `parquet:"name=Country, type=BYTE_ARRAY, convertedtype=UTF8"`
	TotalAmount float64 `parquet:"name=TotalAmount, type=DOUBLE"`
	Year        int32   `parquet:"name=Year, type=INT32"`
	Quarter     int32   `parquet:"name=Quarter, type=INT32"`
	DayName     string  `parquet:"name=DayName, type=BYTE_ARRAY, convertedtype=UTF8"`
	Hour        int32   `parquet:"name=Hour, type=INT32"`
	MonthName   string  `parquet:"name=MonthName, type=BYTE_ARRAY, convertedtype=UTF8"`
}

type customerRecord struct {
	CustomerID       *string `parquet:"name=CustomerID, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	LastPurchaseDate int64   `parquet:"name=LastPurchaseDate, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
	Frequency        int64   `parquet:"name=Frequency, type=INT64"`
	MonetaryValue    float64 `parquet:"name=MonetaryValue, type=DOUBLE"`
	Recency          int64   `parquet:"name=Recency, type=INT64"`
}

type productRecord struct {
	StockCode         string  `parquet:"name=StockCode, type=BYTE_ARRAY, convertedtype=UTF8"`
	Description       *string `parquet:"name=Description, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	TotalQuantitySold int64   `parquet:"name=TotalQuantitySold, type=INT64"`
	TotalRevenue      float64 `parquet:"name=TotalRevenue, type=DOUBLE"`
	UniqueCustomers   int64   `parquet:"name=UniqueCustomers, type=INT64"`
}

type countryRecord struct {
	Country         string  `parquet:"name=Country, type=BYTE_ARRAY, convertedtype=UTF8"`
	TotalRevenue    float64 `parquet:"name=TotalRevenue, type=DOUBLE"`
	TotalOrders     int64   `parquet:"name=TotalOrders, type=INT64"`
	UniqueCustomers int64   `parquet:"name=UniqueCustomers, type=INT64"`
}

type monthlyRecord struct {
	FiscalYear     string  `parquet:"name=fiscal_year, type=BYTE_ARRAY, convertedtype=UTF8"`
	Year           int32   `parquet:"name=Year, type=INT32"`
	Month          int32   `parquet:"name=Month, type=INT32"`
	MonthName      string  `parquet:"name=MonthName, type=BYTE_ARRAY, convertedtype=UTF8"`
	MonthlyRevenue float64 `parquet:"name=MonthlyRevenue, type=DOUBLE"`
	MonthlyOrders  int64   `parquet:"name=MonthlyOrders, type=INT64"`
}

func millis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func toCleanedRecord(tx domain.Transaction) cleanedRecord {
	return cleanedRecord{
		Invoice:     tx.Invoice,
		StockCode:   tx.StockCode,
		Description: tx.Description,
		Quantity:    tx.Quantity,
		InvoiceDate: millis(tx.InvoiceDate),
		Price:       tx.Price.InexactFloat64(),
		CustomerID:  tx.CustomerID,
		Country:     tx.Country,
		TotalAmount: tx.TotalAmount.InexactFloat64(),
	}
}

func toEnrichedRecord(tx domain.EnrichedTransaction) enrichedRecord {
	return enrichedRecord{
		Invoice:     tx.Invoice,
		StockCode:   tx.StockCode,
		Description: tx.Description,
		Quantity:    tx.Quantity,
		InvoiceDate: millis(tx.InvoiceDate),
		Price:       tx.Price.InexactFloat64(),
		CustomerID:  tx.CustomerID,
		Country:     tx.Country,
		TotalAmount: tx.TotalAmount.InexactFloat64(),
		Year:        int32(tx.Year),
		Quarter:     int32(tx.Quarter),
		DayName:     tx.DayName,
		Hour:        int32(tx.Hour),
		MonthName:   tx.MonthName,
	}
}

func toCustomerRecord(c domain.CustomerSummary) customerRecord {
	return customerRecord{
		CustomerID:       c.CustomerID,
		LastPurchaseDate: millis(c.LastPurchaseDate),
		Frequency:        c.Frequency,
		MonetaryValue:    c.MonetaryValue.InexactFloat64(),
		Recency:          c.Recency,
	}
}

func toProductRecord(p domain.ProductSummary) productRecord {
	return productRecord{
		StockCode:         p.StockCode,
		Description:       p.Description,
		TotalQuantitySold: p.TotalQuantitySold,
		TotalRevenue:      p.TotalRevenue.InexactFloat64(),
		UniqueCustomers:   p.UniqueCustomers,
	}
}

func toCountryRecord(c domain.CountrySummary) countryRecord {
	return countryRecord{
		Country:         c.Country,
		TotalRevenue:    c.TotalRevenue.InexactFloat64(),
		TotalOrders:     c.TotalOrders,
		UniqueCustomers: c.UniqueCustomers,
	}
}

func toMonthlyRecord(m domain.MonthlyTrend) monthlyRecord {
	return monthlyRecord{
		FiscalYear:     m.FiscalPeriod,
		Year:           int32(m.Year),
		Month:          int32(m.Month),
		MonthName:      m.MonthName,
		MonthlyRevenue: m.MonthlyRevenue.InexactFloat64(),
		MonthlyOrders:  m.MonthlyOrders,
	}
}
