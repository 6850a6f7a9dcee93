// Package spreadsheet reads uploaded tabular files into untyped rows and normalises the
// date representations found in them.
package spreadsheet

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// Row is one line of a sheet. Cells hold string, float64, bool, time.Time or nil.
type Row []any

// Format identifies the serialization of an uploaded file.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatXLS  Format = "xls"
)

var (
	// ErrParse is returned for any unreadable or malformed upload.
	ErrParse = errors.New("failed to parse file")
	// ErrUnsupportedFormat is returned when the filename suffix is not recognised.
	ErrUnsupportedFormat = errors.New("unsupported file type")
)

// DetectFormat maps a filename suffix to a Format. Content is never inspected.
func DetectFormat(filename string) (Format, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return FormatCSV, nil
	case ".xlsx":
		return FormatXLSX, nil
	case ".xls":
		return FormatXLS, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(filename))
	}
}

// Parse reads every row of the upload, header included. Workbooks contribute their first sheet only.
func Parse(filename string, r io.Reader) ([]Row, error) {
	format, err := DetectFormat(filename)
	if err != nil {
		return nil, err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: read upload: %v", ErrParse, err)
	}

	switch format {
	case FormatCSV:
		return ParseCSV(data), nil
	case FormatXLSX:
		return parseXLSX(bytes.NewReader(data))
	default:
		return parseXLS(bytes.NewReader(data))
	}
}

// ParseCSV splits comma separated text line by line. A double quote toggles quoting and a comma
// outside quotes ends a field. Quoted fields cannot span lines. Blank lines inside the file are
// kept as empty rows so row numbers keep matching the source.
func ParseCSV(data []byte) []Row {
	lines := strings.Split(strings.TrimRight(string(data), "\r\n"), "\n")
	rows := make([]Row, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSuffix(line, "\r")
		if strings.TrimSpace(line) == "" {
			rows = append(rows, Row{})
			continue
		}
		rows = append(rows, parseCSVLine(line))
	}
	if len(rows) == 1 && len(rows[0]) == 0 {
		return nil
	}
	return rows
}

// IsBlank reports whether every cell of the row is empty.
func (r Row) IsBlank() bool {
	for _, cell := range r {
		if !isEmptyCell(cell) {
			return false
		}
	}
	return true
}

func parseCSVLine(line string) Row {
	row := make(Row, 0, 8)
	var field strings.Builder
	inQuotes := false
	for _, ch := range line {
		switch {
		case ch == '"':
			inQuotes = !inQuotes
		case ch == ',' && !inQuotes:
			row = append(row, strings.TrimSpace(field.String()))
			field.Reset()
		default:
			field.WriteRune(ch)
		}
	}
	row = append(row, strings.TrimSpace(field.String()))
	return row
}

func trimTrailingEmpty(row Row) Row {
	end := len(row)
	for end > 0 && isEmptyCell(row[end-1]) {
		end--
	}
	return row[:end]
}

func isEmptyCell(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) == ""
}
