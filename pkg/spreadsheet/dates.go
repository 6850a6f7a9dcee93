package spreadsheet

import (
	"fmt"
	"math"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	// serial numbers outside this open interval are treated as plain numbers, not dates
	minDateSerial = 10000
	maxDateSerial = 100000
)

// serialEpoch is day zero of the spreadsheet date system. 1899-12-30 instead of 1899-12-31
// compensates for the fictitious 1900-02-29 spreadsheets count.
var serialEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.Local)

type datePattern struct {
	re       *regexp.Regexp
	yearIdx  int
	monthIdx int
	dayIdx   int
}

var datePatterns = []datePattern{
	{re: regexp.MustCompile(`^(\d{4})-(\d{1,2})-(\d{1,2})$`), yearIdx: 1, monthIdx: 2, dayIdx: 3},
	{re: regexp.MustCompile(`^(\d{1,2})-(\d{1,2})-(\d{4})$`), yearIdx: 3, monthIdx: 2, dayIdx: 1},
	{re: regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{4})$`), yearIdx: 3, monthIdx: 2, dayIdx: 1},
	{re: regexp.MustCompile(`^(\d{4})/(\d{1,2})/(\d{1,2})$`), yearIdx: 1, monthIdx: 2, dayIdx: 3},
}

// Month-first layouts are deliberately absent: they would shadow DD/MM input.
var fallbackLayouts = []string{
	time.RFC3339,
	time.RFC3339Nano,
	time.RFC1123,
	time.RFC1123Z,
	time.RFC850,
	time.ANSIC,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
	"2 Jan 2006",
	"02 Jan 2006",
	"2 January 2006",
	"Jan 2 2006",
	"Jan 2, 2006",
	"January 2 2006",
	"January 2, 2006",
	"Mon Jan 2 2006",
	"Mon, 2 Jan 2006",
}

// NormalizeDate converts a cell value into a canonical YYYY-MM-DD string. It accepts strings
// in one of the recognised layouts, time values and spreadsheet serial numbers. The boolean
// is false when the input is empty or not a valid calendar date.
func NormalizeDate(value any) (string, bool) {
	switch v := value.(type) {
	case nil:
		return "", false
	case string:
		return normalizeDateString(v)
	case time.Time:
		return formatLocal(v)
	case *time.Time:
		if v == nil {
			return "", false
		}
		return formatLocal(*v)
	}

	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return fromSerial(float64(rv.Int()))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return fromSerial(float64(rv.Uint()))
	case reflect.Float32, reflect.Float64:
		return fromSerial(rv.Float())
	}
	return "", false
}

// SerialToTime converts a spreadsheet serial day count into a local midnight time.
func SerialToTime(serial float64) time.Time {
	return serialEpoch.AddDate(0, 0, int(math.Floor(serial)))
}

func fromSerial(serial float64) (string, bool) {
	if math.IsNaN(serial) || serial <= minDateSerial || serial >= maxDateSerial {
		return "", false
	}
	return formatLocal(SerialToTime(serial))
}

func formatLocal(t time.Time) (string, bool) {
	if t.IsZero() {
		return "", false
	}
	local := t.In(time.Local)
	return fmt.Sprintf("%04d-%02d-%02d", local.Year(), int(local.Month()), local.Day()), true
}

func normalizeDateString(raw string) (string, bool) {
	s := strings.Join(strings.Fields(raw), " ")
	if s == "" {
		return "", false
	}

	for _, p := range datePatterns {
		m := p.re.FindStringSubmatch(s)
		if m == nil {
			continue
		}
		year, _ := strconv.Atoi(m[p.yearIdx])
		month, _ := strconv.Atoi(m[p.monthIdx])
		day, _ := strconv.Atoi(m[p.dayIdx])
		return calendarDate(year, month, day)
	}

	for _, layout := range fallbackLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return formatLocal(t)
		}
	}
	return "", false
}

// calendarDate rejects dates that time.Date would silently roll over (31 April, 29 Feb 2021).
func calendarDate(year, month, day int) (string, bool) {
	if month < 1 || month > 12 || day < 1 {
		return "", false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.Local)
	if t.Day() != day || int(t.Month()) != month || t.Year() != year {
		return "", false
	}
	return fmt.Sprintf("%04d-%02d-%02d", year, month, day), true
}
