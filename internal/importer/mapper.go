package importer

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/noah-isme/academy-import-api/internal/models"
	"github.com/noah-isme/academy-import-api/pkg/spreadsheet"
)

// MappedRow is a candidate record tagged with its 1-based row number in the source file.
type MappedRow struct {
	Row    int
	Record models.CandidateRecord
}

// MapRows skips the header row and maps the remaining rows with schema. Blank rows are dropped
// but keep their place in the numbering, so Row is always the source index plus 2.
func MapRows(schema Schema, rows []spreadsheet.Row) []MappedRow {
	if len(rows) <= 1 {
		return nil
	}
	mapped := make([]MappedRow, 0, len(rows)-1)
	for i, row := range rows[1:] {
		if row.IsBlank() {
			continue
		}
		record := models.CandidateRecord{Kind: schema.Kind}
		if schema.Kind == models.ImportKindStudent {
			student := MapStudentRow(schema, row)
			record.Student = &student
		} else {
			result := MapResultRow(schema, row)
			record.Result = &result
		}
		mapped = append(mapped, MappedRow{Row: i + 2, Record: record})
	}
	return mapped
}

// MapStudentRow builds a student record from the fixed student columns.
func MapStudentRow(schema Schema, row spreadsheet.Row) models.StudentRecord {
	return models.StudentRecord{
		Name:           cellText(fieldCell(schema, row, FieldName)),
		Email:          cellText(fieldCell(schema, row, FieldEmail)),
		Phone:          cellText(fieldCell(schema, row, FieldPhone)),
		WhatsappNumber: optionalText(fieldCell(schema, row, FieldWhatsapp)),
		PhotoReference: optionalText(fieldCell(schema, row, FieldPhoto)),
	}
}

// MapResultRow builds a result record: the base columns first, then subject groups until one
// has an empty subject name.
func MapResultRow(schema Schema, row spreadsheet.Row) models.ResultRecord {
	record := models.ResultRecord{
		StudentName:       cellText(fieldCell(schema, row, FieldStudentName)),
		CourseName:        cellText(fieldCell(schema, row, FieldCourseName)),
		BatchName:         cellText(fieldCell(schema, row, FieldBatchName)),
		RegisterNumber:    cellText(fieldCell(schema, row, FieldRegisterNumber)),
		CertificateNumber: cellText(fieldCell(schema, row, FieldCertificateNumber)),
		Result:            optionalText(fieldCell(schema, row, FieldResult)),
		IsPublished:       cellBool(fieldCell(schema, row, FieldIsPublished)),
		Marks:             []models.MarkEntry{},
	}
	if date, ok := spreadsheet.NormalizeDate(normalizeBlank(fieldCell(schema, row, FieldPublishedDate))); ok {
		record.PublishedDate = &date
	}

	group := schema.Group
	if group == nil || group.Width() == 0 {
		return record
	}
	nameIdx := schema.GroupIndex(FieldSubjectName)
	typeIdx := schema.GroupIndex(FieldSubjectType)
	for start := group.Offset; start < len(row); start += group.Width() {
		name := cellText(cellAt(row, start+nameIdx))
		if name == "" {
			break
		}
		entry := models.MarkEntry{SubjectName: name}
		if typeIdx >= 0 {
			entry.Type = cellText(cellAt(row, start+typeIdx))
		}
		for i, col := range group.Columns {
			if col.Kind != ColumnInteger {
				continue
			}
			value, err := cellInt(cellAt(row, start+i))
			if err != nil {
				record.MappingErrors = append(record.MappingErrors,
					fmt.Sprintf("subject %q: invalid number %q for %s", name, cellText(cellAt(row, start+i)), col.Header))
				continue
			}
			setMark(&entry.Marks, col.Field, value)
		}
		if !entry.HasTheory() && !entry.HasPractical() {
			continue
		}
		record.Marks = append(record.Marks, entry)
	}
	return record
}

func setMark(m *models.Marks, field string, value *int) {
	switch field {
	case FieldTE:
		m.TEObtained = value
	case FieldCE:
		m.CEObtained = value
	case FieldPE:
		m.PEObtained = value
	case FieldPW:
		m.PWObtained = value
	case FieldPR:
		m.PRObtained = value
	case FieldProject:
		m.ProjectObtained = value
	case FieldViva:
		m.VivaObtained = value
	case FieldPL:
		m.PLObtained = value
	}
}

func fieldCell(schema Schema, row spreadsheet.Row, field string) any {
	return cellAt(row, schema.Index(field))
}

func cellAt(row spreadsheet.Row, idx int) any {
	if idx < 0 || idx >= len(row) {
		return nil
	}
	return row[idx]
}

func normalizeBlank(v any) any {
	if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
		return nil
	}
	return v
}

func cellText(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case time.Time:
		if date, ok := spreadsheet.NormalizeDate(val); ok {
			return date
		}
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(val))
	}
}

func optionalText(v any) *string {
	text := cellText(v)
	if text == "" {
		return nil
	}
	return &text
}

func cellBool(v any) bool {
	if b, ok := v.(bool); ok {
		return b
	}
	return strings.EqualFold(cellText(v), "true")
}

// cellInt keeps empty cells as nil so a missing mark never reads as zero. Fractions are truncated.
func cellInt(v any) (*int, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return nil, fmt.Errorf("not a finite number")
		}
		n := int(val)
		return &n, nil
	}
	text := cellText(v)
	if text == "" {
		return nil, nil
	}
	if n, err := strconv.Atoi(text); err == nil {
		return &n, nil
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("invalid integer %q", text)
	}
	n := int(f)
	return &n, nil
}
