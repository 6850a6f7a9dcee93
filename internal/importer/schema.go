// Package importer holds the bulk import pipeline: template schemas, row mapping, reference
// resolution, validation and sequential execution. Nothing in this package touches HTTP
// handlers or storage; collaborators are passed in as interfaces.
package importer

import (
	"fmt"

	"github.com/noah-isme/academy-import-api/internal/models"
)

// ColumnKind describes how a cell is interpreted.
type ColumnKind string

const (
	ColumnText    ColumnKind = "text"
	ColumnInteger ColumnKind = "integer"
	ColumnBoolean ColumnKind = "boolean"
	ColumnDate    ColumnKind = "date"
)

// Field names shared by schemas and the mapper.
const (
	FieldName              = "name"
	FieldEmail             = "email"
	FieldPhone             = "phone"
	FieldWhatsapp          = "whatsapp_number"
	FieldPhoto             = "photo_reference"
	FieldStudentName       = "student_name"
	FieldCourseName        = "course_name"
	FieldBatchName         = "batch_name"
	FieldRegisterNumber    = "register_number"
	FieldCertificateNumber = "certificate_number"
	FieldResult            = "result"
	FieldIsPublished       = "is_published"
	FieldPublishedDate     = "published_date"
	FieldSubjectName       = "subject_name"
	FieldSubjectType       = "type"
	FieldTE                = "te_obtained"
	FieldCE                = "ce_obtained"
	FieldPE                = "pe_obtained"
	FieldPW                = "pw_obtained"
	FieldPR                = "pr_obtained"
	FieldProject           = "project_obtained"
	FieldViva              = "viva_obtained"
	FieldPL                = "pl_obtained"
)

// Column declares one template column.
type Column struct {
	Header   string
	Field    string
	Kind     ColumnKind
	Required bool
}

// Group declares a block of columns repeated once per subject, starting at Offset.
type Group struct {
	Offset  int
	Columns []Column
}

// Width is the number of columns in one repetition.
func (g Group) Width() int {
	return len(g.Columns)
}

// Schema is the column contract between a spreadsheet template and the row mapper.
type Schema struct {
	Kind    models.ImportKind
	Columns []Column
	Group   *Group
}

var studentColumns = []Column{
	{Header: "Student Name", Field: FieldName, Kind: ColumnText, Required: true},
	{Header: "Email", Field: FieldEmail, Kind: ColumnText, Required: true},
	{Header: "Phone", Field: FieldPhone, Kind: ColumnText, Required: true},
	{Header: "WhatsApp Number", Field: FieldWhatsapp, Kind: ColumnText},
	{Header: "Photo File Name", Field: FieldPhoto, Kind: ColumnText},
}

var resultColumns = []Column{
	{Header: "Student Name", Field: FieldStudentName, Kind: ColumnText, Required: true},
	{Header: "Course Name", Field: FieldCourseName, Kind: ColumnText, Required: true},
	{Header: "Batch Name", Field: FieldBatchName, Kind: ColumnText, Required: true},
	{Header: "Register Number", Field: FieldRegisterNumber, Kind: ColumnText, Required: true},
	{Header: "Certificate Number", Field: FieldCertificateNumber, Kind: ColumnText, Required: true},
	{Header: "Result", Field: FieldResult, Kind: ColumnText},
	{Header: "Is Published", Field: FieldIsPublished, Kind: ColumnBoolean},
	{Header: "Published Date", Field: FieldPublishedDate, Kind: ColumnDate},
}

var basicMarkColumns = []Column{
	{Header: "Subject Name", Field: FieldSubjectName, Kind: ColumnText},
	{Header: "Type", Field: FieldSubjectType, Kind: ColumnText},
	{Header: "TE Obtained", Field: FieldTE, Kind: ColumnInteger},
	{Header: "CE Obtained", Field: FieldCE, Kind: ColumnInteger},
	{Header: "PE Obtained", Field: FieldPE, Kind: ColumnInteger},
	{Header: "PW Obtained", Field: FieldPW, Kind: ColumnInteger},
}

var extendedMarkColumns = append(append([]Column{}, basicMarkColumns...),
	Column{Header: "PR Obtained", Field: FieldPR, Kind: ColumnInteger},
	Column{Header: "Project Obtained", Field: FieldProject, Kind: ColumnInteger},
	Column{Header: "Viva Obtained", Field: FieldViva, Kind: ColumnInteger},
	Column{Header: "PL Obtained", Field: FieldPL, Kind: ColumnInteger},
)

var (
	// StudentSchema is the student import template.
	StudentSchema = Schema{Kind: models.ImportKindStudent, Columns: studentColumns}
	// ResultCreateSchema is the result import template: 8 base columns, then 6 per subject.
	ResultCreateSchema = Schema{
		Kind:    models.ImportKindResultCreate,
		Columns: resultColumns,
		Group:   &Group{Offset: len(resultColumns), Columns: basicMarkColumns},
	}
	// ResultUpdateSchema widens each subject group to 10 columns.
	ResultUpdateSchema = Schema{
		Kind:    models.ImportKindResultUpdate,
		Columns: resultColumns,
		Group:   &Group{Offset: len(resultColumns), Columns: extendedMarkColumns},
	}
)

// SchemaFor returns the template declared for an import kind.
func SchemaFor(kind models.ImportKind) (Schema, error) {
	switch kind {
	case models.ImportKindStudent:
		return StudentSchema, nil
	case models.ImportKindResultCreate:
		return ResultCreateSchema, nil
	case models.ImportKindResultUpdate:
		return ResultUpdateSchema, nil
	default:
		return Schema{}, fmt.Errorf("no template for import kind %q", kind)
	}
}

// Index returns the position of a base field, or -1.
func (s Schema) Index(field string) int {
	for i, col := range s.Columns {
		if col.Field == field {
			return i
		}
	}
	return -1
}

// GroupIndex returns the position of a field inside one subject group, or -1.
func (s Schema) GroupIndex(field string) int {
	if s.Group == nil {
		return -1
	}
	for i, col := range s.Group.Columns {
		if col.Field == field {
			return i
		}
	}
	return -1
}

// Headers renders the header row with the subject group repeated groups times.
func (s Schema) Headers(groups int) []string {
	headers := make([]string, 0, len(s.Columns))
	for _, col := range s.Columns {
		headers = append(headers, col.Header)
	}
	if s.Group == nil {
		return headers
	}
	for len(headers) < s.Group.Offset {
		headers = append(headers, "")
	}
	for g := 1; g <= groups; g++ {
		for _, col := range s.Group.Columns {
			headers = append(headers, fmt.Sprintf("%s %d", col.Header, g))
		}
	}
	return headers
}
