package spreadsheet

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"
)

// Built-in number formats that render as dates or times.
var builtinDateFormats = map[int]struct{}{
	14: {}, 15: {}, 16: {}, 17: {}, 18: {}, 19: {}, 20: {}, 21: {}, 22: {},
	27: {}, 28: {}, 29: {}, 30: {}, 31: {}, 32: {}, 33: {}, 34: {}, 35: {}, 36: {},
	45: {}, 46: {}, 47: {}, 50: {}, 51: {}, 52: {}, 53: {}, 54: {}, 55: {}, 56: {}, 57: {}, 58: {},
}

func parseXLSX(r io.Reader) ([]Row, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: open workbook: %v", ErrParse, err)
	}
	defer f.Close() //nolint:errcheck

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: workbook has no sheets", ErrParse)
	}
	sheet := sheets[0]

	raw, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("%w: read sheet %s: %v", ErrParse, sheet, err)
	}

	dateStyles := make(map[int]bool)
	rows := make([]Row, 0, len(raw))
	for r, cells := range raw {
		row := make(Row, len(cells))
		for c, value := range cells {
			axis, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrParse, err)
			}
			row[c] = xlsxCell(f, sheet, axis, value, dateStyles)
		}
		rows = append(rows, trimTrailingEmpty(row))
	}
	return rows, nil
}

func xlsxCell(f *excelize.File, sheet, axis, value string, dateStyles map[int]bool) any {
	if value == "" {
		return nil
	}
	cellType, err := f.GetCellType(sheet, axis)
	if err != nil {
		return value
	}

	switch cellType {
	case excelize.CellTypeSharedString, excelize.CellTypeInlineString, excelize.CellTypeError:
		return value
	case excelize.CellTypeBool:
		return value == "1" || strings.EqualFold(value, "true")
	case excelize.CellTypeDate:
		if t, err := time.Parse(time.RFC3339, value); err == nil {
			return localWallClock(t)
		}
		return value
	}

	number, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return value
	}
	if isDateStyled(f, sheet, axis, dateStyles) {
		if t, err := excelize.ExcelDateToTime(number, false); err == nil {
			return localWallClock(t)
		}
	}
	return number
}

func isDateStyled(f *excelize.File, sheet, axis string, cache map[int]bool) bool {
	styleID, err := f.GetCellStyle(sheet, axis)
	if err != nil || styleID == 0 {
		return false
	}
	if isDate, ok := cache[styleID]; ok {
		return isDate
	}
	isDate := false
	if style, err := f.GetStyle(styleID); err == nil && style != nil {
		if _, ok := builtinDateFormats[style.NumFmt]; ok {
			isDate = true
		} else if style.CustomNumFmt != nil {
			isDate = looksLikeDateFormat(*style.CustomNumFmt)
		}
	}
	cache[styleID] = isDate
	return isDate
}

// looksLikeDateFormat inspects a custom number format, ignoring quoted literals and
// bracketed sections such as colours or locales.
func looksLikeDateFormat(format string) bool {
	inQuotes, inBrackets := false, false
	for _, ch := range strings.ToLower(format) {
		switch {
		case ch == '"':
			inQuotes = !inQuotes
		case inQuotes:
		case ch == '[':
			inBrackets = true
		case ch == ']':
			inBrackets = false
		case inBrackets:
		case ch == 'y' || ch == 'd':
			return true
		}
	}
	return false
}

// localWallClock keeps the calendar fields the workbook shows, placed in the local zone.
func localWallClock(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.Local)
}

func parseXLS(r io.ReadSeeker) (rows []Row, err error) {
	// the BIFF reader panics on some malformed inputs
	defer func() {
		if rec := recover(); rec != nil {
			rows = nil
			err = fmt.Errorf("%w: corrupt workbook: %v", ErrParse, rec)
		}
	}()

	stream, err := openWorkbookStream(r)
	if err != nil {
		return nil, fmt.Errorf("%w: open workbook: %v", ErrParse, err)
	}
	layout, err := scanBIFF(stream)
	if err != nil {
		return nil, fmt.Errorf("%w: read workbook: %v", ErrParse, err)
	}

	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	wb, err := xls.OpenReader(r, "utf-8")
	if err != nil {
		return nil, fmt.Errorf("%w: open workbook: %v", ErrParse, err)
	}
	sheet := wb.GetSheet(0)
	if sheet == nil {
		return nil, fmt.Errorf("%w: workbook has no sheets", ErrParse)
	}

	rows = make([]Row, 0, layout.maxRow+1)
	for i := 0; i <= layout.maxRow; i++ {
		width := layout.width[uint16(i)]
		row := make(Row, width)
		for c := uint16(0); c < width; c++ {
			cell, ok := layout.cells[cellPos{row: uint16(i), col: c}]
			if !ok {
				continue
			}
			if cell.value == nil {
				row[c] = xlsText(sheet.Row(i).Col(int(c)))
				continue
			}
			row[c] = layout.typed(cell)
		}
		rows = append(rows, trimTrailingEmpty(row))
	}
	return rows, nil
}

// typed turns a decoded record value into a cell, promoting date formatted numbers to
// wall clock times in the local zone.
func (s *biffSheet) typed(cell biffCell) any {
	switch v := cell.value.(type) {
	case float64:
		if s.isDate(cell.xf) {
			if t, err := excelize.ExcelDateToTime(v, s.date1904); err == nil {
				return localWallClock(t)
			}
		}
		return v
	case string:
		return xlsText(v)
	default:
		return v
	}
}

func xlsText(value string) any {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return value
}
