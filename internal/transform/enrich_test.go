package transform

import (
	"testing"
	"time"

	"github.com/dvloznov/retail-etl/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnrich_CalendarAttributes(t *testing.T) {
	rows := []domain.Transaction{
		{Invoice: "1", StockCode: "X", InvoiceDate: time.Date(2010, 12, 9, 20, 1, 0, 0, time.UTC)},
		{Invoice: "2", StockCode: "Y", InvoiceDate: time.Date(2011, 4, 1, 0, 30, 0, 0, time.UTC)},
	}

	got, err := Enrich(rows)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, 2010, got[0].Year)
	assert.Equal(t, 12, got[0].Month)
	assert.Equal(t, 4, got[0].Quarter)
	assert.Equal(t, "Thursday", got[0].DayName)
	assert.Equal(t, 20, got[0].Hour)
	assert.Equal(t, "December", got[0].MonthName)

	assert.Equal(t, 2, got[1].Quarter)
	assert.Equal(t, "Friday", got[1].DayName)
	assert.Equal(t, 0, got[1].Hour)
	assert.Equal(t, "April", got[1].MonthName)
}

func TestEnrich_PreservesCountAndIdentity(t *testing.T) {
	res := Clean(sampleRawRows())
	require.NotEmpty(t, res.Rows)

	got, err := Enrich(res.Rows)
	require.NoError(t, err)
	require.Len(t, got, len(res.Rows))
	for i := range got {
		assert.Equal(t, res.Rows[i], got[i].Transaction)
	}
}

func TestEnrich_ZeroTimestampFails(t *testing.T) {
	_, err := Enrich([]domain.Transaction{{Invoice: "1", StockCode: "X", Offset: 4}})

	var invalid *domain.InvalidTimestampError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, 4, invalid.Offset)
}

func TestCleanThenEnrich_ZeroDateIsDroppedNotFatal(t *testing.T) {
	res := Clean([]domain.RawRow{
		rawRow(0, "1", "X", "1", "1", "2010-01-01 10:00:00", "1"),
		rawRow(1, "2", "X", "1", "1", "0001-01-01", "1"),
		rawRow(2, "3", "X", "1", "1", "0001-01-01 00:00:00", "1"),
	})

	assert.Equal(t, 2, res.Stats.DroppedBadTimestamp)
	require.Len(t, res.Rows, 1)

	got, err := Enrich(res.Rows)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
