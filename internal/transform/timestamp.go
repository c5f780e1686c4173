package transform

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// maxExcelSerial is 9999-12-31 in the 1900 date system.
const maxExcelSerial = 2958465

// Invoice dates outside the years a workbook can hold are malformed.
const (
	minTimestampYear = 1900
	maxTimestampYear = 9999
)

var errEmptyTimestamp = errors.New("empty invoice date")

// timestampLayouts are the text forms accepted for invoice dates, tried in
// order. Excel serial numbers are handled before any layout.
var timestampLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006-01-02 15:04",
	"1/2/2006 15:04",
	"1/2/2006 15:04:05",
	"1/2/06 15:04",
	"2006-01-02",
}

// ParseTimestamp converts a raw invoice date cell into a UTC timestamp. Serial
// numbers are rounded to the nearest second since the workbook stores them as
// floating point day fractions.
func ParseTimestamp(value string) (time.Time, error) {
	v := strings.TrimSpace(value)
	if v == "" {
		return time.Time{}, errEmptyTimestamp
	}

	if serial, err := strconv.ParseFloat(v, 64); err == nil {
		if serial <= 0 || serial > maxExcelSerial {
			return time.Time{}, fmt.Errorf("excel serial %v out of range", serial)
		}
		t, err := excelize.ExcelDateToTime(serial, false)
		if err != nil {
			return time.Time{}, fmt.Errorf("excel serial %v: %w", serial, err)
		}
		return inRange(t.Round(time.Second).UTC())
	}

	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, v, time.UTC); err == nil {
			return inRange(t.UTC())
		}
	}

	return time.Time{}, fmt.Errorf("unrecognized timestamp format %q", v)
}

func inRange(t time.Time) (time.Time, error) {
	if t.IsZero() || t.Year() < minTimestampYear || t.Year() > maxTimestampYear {
		return time.Time{}, fmt.Errorf("timestamp %s outside %d-%d", t.Format(time.RFC3339), minTimestampYear, maxTimestampYear)
	}
	return t, nil
}
