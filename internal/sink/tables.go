package sink

import (
	"sort"
	"strconv"
	"strings"

	"github.com/dvloznov/retail-etl/internal/domain"
)

// Output table names and their paths relative to the output root.
const (
	TableCleaned            = "retail_cleaned"
	TableEnriched           = "retail_enriched"
	TableCustomerRFM        = "customer_rfm"
	TableProductPerformance = "product_performance"
	TableCountrySales       = "country_sales"
	TableMonthlyTrends      = "monthly_trends"
)

// PartitionFiscalYear is the partition column holding the fiscal period.
const PartitionFiscalYear = "fiscal_year"

// Table is an output table ready to be written: its target path, partition
// columns and the row groups of each partition.
type Table struct {
	Name          string
	Path          string
	PartitionCols []string
	Parts         []Part
}

// Part holds the rows of one partition directory. Values line up with the
// table's PartitionCols and are empty for unpartitioned tables.
type Part struct {
	Values []string
	Rows   int
	encode func(Codec) ([]byte, error)
}

// Dir returns the Hive style directory of the part, e.g.
// "fiscal_year=2009-2010/Month=12".
func (p Part) Dir(cols []string) string {
	segs := make([]string, 0, len(cols))
	for i, c := range cols {
		segs = append(segs, c+"="+escapePartitionValue(p.Values[i]))
	}
	return strings.Join(segs, "/")
}

// Rows returns the total number of rows across all parts.
func (t Table) Rows() int {
	n := 0
	for _, p := range t.Parts {
		n += p.Rows
	}
	return n
}

var partitionEscaper = strings.NewReplacer("%", "%25", "/", "%2F", "=", "%3D")

func escapePartitionValue(v string) string {
	if v == "" {
		return "__HIVE_DEFAULT_PARTITION__"
	}
	return partitionEscaper.Replace(v)
}

// single wraps an unpartitioned table. Empty tables still produce one file so
// readers see the schema.
func single[T, R any](name, path string, rows []T, conv func(T) R) Table {
	return Table{
		Name:  name,
		Path:  path,
		Parts: []Part{newPart(nil, rows, conv)},
	}
}

// partitioned groups rows by key, keeping input order inside each group.
// Parts are sorted by their key values.
func partitioned[T, R any](name, path string, cols []string, rows []T, key func(T) []string, conv func(T) R) Table {
	groups := make(map[string][]T)
	values := make(map[string][]string)
	for _, r := range rows {
		vals := key(r)
		k := strings.Join(vals, "\x00")
		if _, ok := groups[k]; !ok {
			values[k] = vals
		}
		groups[k] = append(groups[k], r)
	}

	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]Part, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, newPart(values[k], groups[k], conv))
	}
	return Table{Name: name, Path: path, PartitionCols: cols, Parts: parts}
}

func newPart[T, R any](values []string, rows []T, conv func(T) R) Part {
	return Part{
		Values: values,
		Rows:   len(rows),
		encode: func(c Codec) ([]byte, error) {
			records := make([]R, len(rows))
			for i, r := range rows {
				records[i] = conv(r)
			}
			return encodeParquet(records, c)
		},
	}
}

// CleanedTable partitions the cleaned transactions by fiscal year.
func CleanedTable(rows []domain.Transaction) Table {
	return partitioned(TableCleaned, "processed/retail_cleaned", []string{PartitionFiscalYear}, rows,
		func(tx domain.Transaction) []string { return []string{tx.FiscalPeriod} },
		toCleanedRecord)
}

// EnrichedTable partitions the enriched transactions by fiscal year and month.
func EnrichedTable(rows []domain.EnrichedTransaction) Table {
	return partitioned(TableEnriched, "processed/retail_enriched", []string{PartitionFiscalYear, "Month"}, rows,
		func(tx domain.EnrichedTransaction) []string {
			return []string{tx.FiscalPeriod, strconv.Itoa(tx.Month)}
		},
		toEnrichedRecord)
}

// CustomerRFMTable writes the per-customer recency, frequency and monetary
// summary as a single unpartitioned file.
func CustomerRFMTable(rows []domain.CustomerSummary) Table {
	return single(TableCustomerRFM, "analytics/customer_rfm", rows, toCustomerRecord)
}

// ProductPerformanceTable writes the per-product summary as a single
// unpartitioned file.
func ProductPerformanceTable(rows []domain.ProductSummary) Table {
	return single(TableProductPerformance, "analytics/product_performance", rows, toProductRecord)
}

// CountrySalesTable writes the per-country summary as a single unpartitioned
// file.
func CountrySalesTable(rows []domain.CountrySummary) Table {
	return single(TableCountrySales, "analytics/country_sales", rows, toCountryRecord)
}

// MonthlyTrendsTable writes one row per calendar month as a single
// unpartitioned file.
func MonthlyTrendsTable(rows []domain.MonthlyTrend) Table {
	return single(TableMonthlyTrends, "analytics/monthly_trends", rows, toMonthlyRecord)
}

// Tables returns the six outputs of a run in canonical order.
func Tables(cleaned []domain.Transaction, enriched []domain.EnrichedTransaction, aggs domain.Aggregates) []Table {
	return []Table{
		CleanedTable(cleaned),
		EnrichedTable(enriched),
		CustomerRFMTable(aggs.Customers),
		ProductPerformanceTable(aggs.Products),
		CountrySalesTable(aggs.Countries),
		MonthlyTrendsTable(aggs.Monthly),
	}
}
