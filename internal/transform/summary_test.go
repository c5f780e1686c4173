package transform

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestSummarize(t *testing.T) {
	res := Clean(sampleRawRows())

	got := Summarize(res.Rows)

	// 83.40 + 81.00 + 30.60 + 59.50 + 6.95 + 15.30 + 11.10 + 54.08
	assert.True(t, decimal.RequireFromString("341.93").Equal(got.TotalRevenue), "got %s", got.TotalRevenue)
	assert.Equal(t, int64(7), got.TotalOrders)
	assert.Equal(t, int64(5), got.UniqueCustomers)
	assert.Equal(t, int64(7), got.UniqueProducts)
}

func TestSummarize_Empty(t *testing.T) {
	got := Summarize(nil)

	assert.True(t, got.TotalRevenue.IsZero())
	assert.Zero(t, got.TotalOrders)
	assert.Zero(t, got.UniqueCustomers)
	assert.Zero(t, got.UniqueProducts)
}
