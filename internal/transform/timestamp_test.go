package transform

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimestamp(t *testing.T) {
	want := time.Date(2009, 12, 1, 7, 45, 0, 0, time.UTC)

	tests := []struct {
		name  string
		value string
		want  time.Time
	}{
		{"iso with seconds", "2009-12-01 07:45:00", want},
		{"iso with T", "2009-12-01T07:45:00", want},
		{"rfc3339", "2009-12-01T07:45:00Z", want},
		{"iso without seconds", "2009-12-01 07:45", want},
		{"us layout", "12/1/2009 07:45", want},
		{"us short year", "12/1/09 7:45", want},
		{"excel serial", "40148.322916666664", want},
		{"date only", "2009-12-01", time.Date(2009, 12, 1, 0, 0, 0, 0, time.UTC)},
		{"surrounding spaces", "  2009-12-01 07:45:00 ", want},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTimestamp(tt.value)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %v", got)
			assert.Equal(t, time.UTC, got.Location())
		})
	}
}

func TestParseTimestamp_Invalid(t *testing.T) {
	for _, v := range []string{"", "   ", "yesterday", "2009-13-45", "-3", "0", "99999999",
		"0001-01-01", "0001-01-01 00:00:00", "1899-12-31 23:59:59"} {
		t.Run(v, func(t *testing.T) {
			_, err := ParseTimestamp(v)
			assert.Error(t, err)
		})
	}
}
