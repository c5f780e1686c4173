package sink

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dvloznov/retail-etl/internal/domain"
	"github.com/dvloznov/retail-etl/internal/objectstore"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xitongsys/parquet-go-source/buffer"
	"github.com/xitongsys/parquet-go/reader"
)

func sampleTransactions() []domain.Transaction {
	desc := "WHITE HANGING HEART"
	cust := "17850"
	mk := func(invoice, period string, at time.Time, customer *string) domain.Transaction {
		return domain.Transaction{
			Invoice:      invoice,
			StockCode:    "85123A",
			Description:  &desc,
			Quantity:     6,
			Price:        decimal.RequireFromString("2.55"),
			InvoiceDate:  at,
			CustomerID:   customer,
			Country:      "United Kingdom",
			FiscalPeriod: period,
			TotalAmount:  decimal.RequireFromString("15.30"),
		}
	}
	return []domain.Transaction{
		mk("489434", "2009-2010", time.Date(2009, 12, 1, 7, 45, 0, 0, time.UTC), &cust),
		mk("489435", "2009-2010", time.Date(2010, 1, 5, 9, 0, 0, 0, time.UTC), nil),
		mk("536365", "2010-2011", time.Date(2010, 12, 1, 8, 26, 0, 0, time.UTC), &cust),
	}
}

func sampleTables(t *testing.T) []Table {
	t.Helper()
	cleaned := sampleTransactions()
	enriched := make([]domain.EnrichedTransaction, len(cleaned))
	for i, tx := range cleaned {
		enriched[i] = domain.EnrichedTransaction{
			Transaction: tx,
			Year:        tx.InvoiceDate.Year(),
			Month:       int(tx.InvoiceDate.Month()),
			Quarter:     (int(tx.InvoiceDate.Month())-1)/3 + 1,
			DayName:     tx.InvoiceDate.Weekday().String(),
			Hour:        tx.InvoiceDate.Hour(),
			MonthName:   tx.InvoiceDate.Month().String(),
		}
	}
	cust := "17850"
	aggs := domain.Aggregates{
		Customers: []domain.CustomerSummary{
			{CustomerID: nil, LastPurchaseDate: cleaned[1].InvoiceDate, Frequency: 1, MonetaryValue: decimal.RequireFromString("15.30"), Recency: 330},
			{CustomerID: &cust, LastPurchaseDate: cleaned[2].InvoiceDate, Frequency: 2, MonetaryValue: decimal.RequireFromString("30.60")},
		},
		Products:  []domain.ProductSummary{{StockCode: "85123A", Description: cleaned[0].Description, TotalQuantitySold: 18, TotalRevenue: decimal.RequireFromString("45.90"), UniqueCustomers: 1}},
		Countries: []domain.CountrySummary{{Country: "United Kingdom", TotalRevenue: decimal.RequireFromString("45.90"), TotalOrders: 3, UniqueCustomers: 1}},
		Monthly: []domain.MonthlyTrend{
			{FiscalPeriod: "2009-2010", Year: 2009, Month: 12, MonthName: "December", MonthlyRevenue: decimal.RequireFromString("15.30"), MonthlyOrders: 1},
		},
	}
	return Tables(cleaned, enriched, aggs)
}

func isParquet(data []byte) bool {
	return len(data) >= 8 && bytes.HasPrefix(data, []byte("PAR1")) && bytes.HasSuffix(data, []byte("PAR1"))
}

func TestTables_CanonicalOrderAndPartitions(t *testing.T) {
	tables := sampleTables(t)

	names := make([]string, len(tables))
	for i, tb := range tables {
		names[i] = tb.Name
	}
	assert.Equal(t, []string{
		TableCleaned, TableEnriched, TableCustomerRFM,
		TableProductPerformance, TableCountrySales, TableMonthlyTrends,
	}, names)

	cleaned := tables[0]
	require.Len(t, cleaned.Parts, 2)
	assert.Equal(t, "fiscal_year=2009-2010", cleaned.Parts[0].Dir(cleaned.PartitionCols))
	assert.Equal(t, 2, cleaned.Parts[0].Rows)
	assert.Equal(t, 3, cleaned.Rows())

	enriched := tables[1]
	require.Len(t, enriched.Parts, 3)
	assert.Equal(t, "fiscal_year=2009-2010/Month=1", enriched.Parts[0].Dir(enriched.PartitionCols))

	assert.Empty(t, tables[2].PartitionCols)
	assert.Len(t, tables[2].Parts, 1)
}

func TestTables_AnalyticsAreSingleUnpartitionedFiles(t *testing.T) {
	tables := sampleTables(t)

	wantPaths := map[string]string{
		TableCustomerRFM:        "analytics/customer_rfm",
		TableProductPerformance: "analytics/product_performance",
		TableCountrySales:       "analytics/country_sales",
		TableMonthlyTrends:      "analytics/monthly_trends",
	}
	for _, tb := range tables[2:] {
		assert.Equal(t, wantPaths[tb.Name], tb.Path, tb.Name)
		assert.Empty(t, tb.PartitionCols, tb.Name)
		require.Len(t, tb.Parts, 1, tb.Name)
		assert.Equal(t, "", tb.Parts[0].Dir(tb.PartitionCols), tb.Name)
	}
}

func TestPart_DirEscapesValues(t *testing.T) {
	p := Part{Values: []string{"a/b=c", ""}}
	assert.Equal(t, "x=a%2Fb%3Dc/y=__HIVE_DEFAULT_PARTITION__", p.Dir([]string{"x", "y"}))
}

func TestParquetSink_WriteAll(t *testing.T) {
	ctx := context.Background()
	store := objectstore.NewMemoryStore()
	root := objectstore.Location{Scheme: objectstore.SchemeMemory, Bucket: "lake", Key: "retails"}

	// Stale output from an earlier run must disappear.
	require.NoError(t, store.Put(ctx, "retails/processed/retail_cleaned/fiscal_year=2008-2009/part-00000.snappy.parquet", []byte("old")))

	s := NewParquetSink(store, root)
	outputs, err := s.WriteAll(ctx, sampleTables(t))
	require.NoError(t, err)
	require.Len(t, outputs, 6)

	assert.Equal(t, "memory://lake/retails/processed/retail_cleaned", outputs[0].URI)
	assert.Equal(t, 3, outputs[0].Rows)
	assert.Equal(t, 2, outputs[0].Files)

	keys, err := store.List(ctx, "retails/processed/retail_cleaned")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"retails/processed/retail_cleaned/_SUCCESS",
		"retails/processed/retail_cleaned/fiscal_year=2009-2010/part-00000.snappy.parquet",
		"retails/processed/retail_cleaned/fiscal_year=2010-2011/part-00000.snappy.parquet",
	}, keys)

	for _, out := range outputs {
		loc, err := objectstore.ParseURI(out.URI)
		require.NoError(t, err)

		keys, err := store.List(ctx, loc.Key)
		require.NoError(t, err)
		assert.Contains(t, keys, loc.Key+"/"+SuccessMarker, out.Table)

		for _, k := range keys {
			if strings.HasSuffix(k, SuccessMarker) {
				continue
			}
			data, err := store.Get(ctx, k)
			require.NoError(t, err)
			assert.True(t, isParquet(data), k)
		}
	}
}

func TestParquetSink_Deterministic(t *testing.T) {
	ctx := context.Background()
	root := objectstore.Location{Scheme: objectstore.SchemeMemory, Bucket: "lake"}

	first := objectstore.NewMemoryStore()
	second := objectstore.NewMemoryStore()
	_, err := NewParquetSink(first, root).WriteAll(ctx, sampleTables(t))
	require.NoError(t, err)
	_, err = NewParquetSink(second, root).WriteAll(ctx, sampleTables(t))
	require.NoError(t, err)

	keys, err := first.List(ctx, "analytics")
	require.NoError(t, err)
	require.NotEmpty(t, keys)
	for _, k := range keys {
		a, err := first.Get(ctx, k)
		require.NoError(t, err)
		b, err := second.Get(ctx, k)
		require.NoError(t, err)
		assert.Equal(t, a, b, k)
	}
}

func TestParquetSink_EmptyTables(t *testing.T) {
	ctx := context.Background()
	store := objectstore.NewMemoryStore()
	s := NewParquetSink(store, objectstore.Location{Scheme: objectstore.SchemeMemory, Bucket: "lake"}, WithCodec(codecs["uncompressed"]))

	outputs, err := s.WriteAll(ctx, Tables(nil, nil, domain.Aggregates{}))
	require.NoError(t, err)
	require.Len(t, outputs, 6)

	keys, err := store.List(ctx, "processed/retail_cleaned")
	require.NoError(t, err)
	assert.Equal(t, []string{"processed/retail_cleaned/_SUCCESS"}, keys)

	data, err := store.Get(ctx, "analytics/customer_rfm/part-00000.parquet")
	require.NoError(t, err)
	assert.True(t, isParquet(data))
}

// failingStore rejects puts below one prefix.
type failingStore struct {
	*objectstore.MemoryStore
	prefix string
}

func (f *failingStore) Put(ctx context.Context, key string, data []byte) error {
	if strings.HasPrefix(key, f.prefix) {
		return errors.New("access denied")
	}
	return f.MemoryStore.Put(ctx, key, data)
}

func TestParquetSink_ContinueThenFail(t *testing.T) {
	ctx := context.Background()
	store := &failingStore{MemoryStore: objectstore.NewMemoryStore(), prefix: "analytics/"}
	s := NewParquetSink(store, objectstore.Location{Scheme: objectstore.SchemeMemory, Bucket: "lake"}, WithConcurrency(1))

	outputs, err := s.WriteAll(ctx, sampleTables(t))
	require.Error(t, err)

	require.Len(t, outputs, 2)
	assert.Equal(t, TableCleaned, outputs[0].Table)
	assert.Equal(t, TableEnriched, outputs[1].Table)

	var sinkErr *domain.SinkWriteError
	require.ErrorAs(t, err, &sinkErr)
	assert.Equal(t, TableCustomerRFM, sinkErr.Table)

	msg := err.Error()
	order := []string{TableCustomerRFM, TableProductPerformance, TableCountrySales, TableMonthlyTrends}
	last := -1
	for _, name := range order {
		idx := strings.Index(msg, "write "+name+" ")
		require.GreaterOrEqual(t, idx, 0, name)
		assert.Greater(t, idx, last, name)
		last = idx
	}

	keys, err := store.List(ctx, "analytics/customer_rfm")
	require.NoError(t, err)
	assert.NotContains(t, keys, "analytics/customer_rfm/_SUCCESS")
}

func TestParseCodec(t *testing.T) {
	c, err := ParseCodec(" GZIP ")
	require.NoError(t, err)
	assert.Equal(t, "gzip", c.String())

	_, err = ParseCodec("lz4-raw")
	assert.Error(t, err)
}

func TestEncodeParquet_RoundTrip(t *testing.T) {
	rows := sampleTransactions()
	records := make([]cleanedRecord, len(rows))
	for i, tx := range rows {
		records[i] = toCleanedRecord(tx)
	}

	data, err := encodeParquet(records, Snappy)
	require.NoError(t, err)
	require.True(t, isParquet(data))

	pr, err := reader.NewParquetReader(buffer.NewBufferFileFromBytes(data), new(cleanedRecord), 1)
	require.NoError(t, err)
	defer pr.ReadStop()

	require.Equal(t, int64(3), pr.GetNumRows())
	got := make([]cleanedRecord, pr.GetNumRows())
	require.NoError(t, pr.Read(&got))

	assert.Equal(t, "489434", got[0].Invoice)
	assert.Equal(t, int64(6), got[0].Quantity)
	assert.InDelta(t, 15.30, got[0].TotalAmount, 1e-9)
	assert.Equal(t, time.Date(2009, 12, 1, 7, 45, 0, 0, time.UTC).UnixMilli(), got[0].InvoiceDate)
	require.NotNil(t, got[0].CustomerID)
	assert.Equal(t, "17850", *got[0].CustomerID)
	assert.Nil(t, got[1].CustomerID)
}
