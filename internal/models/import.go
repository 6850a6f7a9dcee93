package models

import (
	"strings"
	"time"
)

// ImportKind identifies which spreadsheet template an upload follows.
type ImportKind string

const (
	ImportKindStudent      ImportKind = "student_import"
	ImportKindResultCreate ImportKind = "result_create"
	ImportKindResultUpdate ImportKind = "result_update"
	ImportKindResultDelete ImportKind = "result_delete"
)

// Operation is the write issued per row by a bulk run.
type Operation string

const (
	OperationCreate Operation = "create"
	OperationUpdate Operation = "update"
	OperationDelete Operation = "delete"
)

// Operation returns the write performed for rows of this kind.
func (k ImportKind) Operation() Operation {
	switch k {
	case ImportKindResultUpdate:
		return OperationUpdate
	case ImportKindResultDelete:
		return OperationDelete
	default:
		return OperationCreate
	}
}

// Valid reports whether k is a known kind.
func (k ImportKind) Valid() bool {
	switch k {
	case ImportKindStudent, ImportKindResultCreate, ImportKindResultUpdate, ImportKindResultDelete:
		return true
	}
	return false
}

// StudentRecord is a mapped row of the student template.
type StudentRecord struct {
	Name           string  `json:"name"`
	Email          string  `json:"email"`
	Phone          string  `json:"phone"`
	WhatsappNumber *string `json:"whatsapp_number,omitempty"`
	PhotoReference *string `json:"photo_reference,omitempty"`
	// PhotoFile is the stored path of the uploaded image matched to PhotoReference.
	PhotoFile *string `json:"photo_file,omitempty"`

	PhotoWarning string `json:"-"`
}

// MarkEntry is one subject group of a result row.
type MarkEntry struct {
	SubjectName string `json:"subject_name"`
	Type        string `json:"type,omitempty"`
	Marks
}

// ResultRecord is a mapped row of a result template, annotated with resolved ids.
type ResultRecord struct {
	StudentName       string      `json:"student_name"`
	CourseName        string      `json:"course_name"`
	BatchName         string      `json:"batch_name"`
	RegisterNumber    string      `json:"register_number"`
	CertificateNumber string      `json:"certificate_number"`
	Result            *string     `json:"result"`
	IsPublished       bool        `json:"is_published"`
	PublishedDate     *string     `json:"published_date"`
	Marks             []MarkEntry `json:"marks"`

	StudentID        *int64           `json:"student_id,omitempty"`
	CourseID         *int64           `json:"course_id,omitempty"`
	BatchID          *int64           `json:"batch_id,omitempty"`
	SubjectIDs       map[string]int64 `json:"subject_ids,omitempty"`
	ExistingResultID *int64           `json:"existing_result_id,omitempty"`

	// Notes left by mapping and resolution, turned into messages during validation.
	MappingErrors       []string `json:"-"`
	SubjectsUnavailable bool     `json:"-"`
}

// CandidateRecord wraps the record shape of a single import kind.
type CandidateRecord struct {
	Kind    ImportKind     `json:"kind"`
	Student *StudentRecord `json:"student,omitempty"`
	Result  *ResultRecord  `json:"result,omitempty"`
}

// Identifier is the human readable key reported for a row in bulk outcomes.
func (c CandidateRecord) Identifier() string {
	switch {
	case c.Result != nil:
		return c.Result.RegisterNumber
	case c.Student != nil:
		if c.Student.Email != "" {
			return c.Student.Email
		}
		return c.Student.Name
	}
	return ""
}

// ValidationResult is the verdict for one source row.
type ValidationResult struct {
	Row      int             `json:"row"`
	Data     CandidateRecord `json:"data"`
	Errors   []string        `json:"errors"`
	Warnings []string        `json:"warnings,omitempty"`
	IsValid  bool            `json:"isValid"`
}

// NewValidationResult builds a result whose validity is derived from errs.
func NewValidationResult(row int, data CandidateRecord, errs, warnings []string) ValidationResult {
	if errs == nil {
		errs = []string{}
	}
	return ValidationResult{Row: row, Data: data, Errors: errs, Warnings: warnings, IsValid: len(errs) == 0}
}

// RowError describes a row that failed during a bulk run.
type RowError struct {
	Row        int    `json:"row"`
	Identifier string `json:"identifier"`
	Error      string `json:"error"`
}

// BulkOutcome summarises a finished bulk run.
type BulkOutcome struct {
	Success int        `json:"success"`
	Failed  int        `json:"failed"`
	Errors  []RowError `json:"errors"`
}

// ImportSession holds a validated upload awaiting confirmation.
type ImportSession struct {
	ID           string             `json:"id"`
	Kind         ImportKind         `json:"kind"`
	Filename     string             `json:"filename"`
	Checksum     string             `json:"checksum"`
	Rows         []ValidationResult `json:"rows"`
	ValidCount   int                `json:"valid_count"`
	InvalidCount int                `json:"invalid_count"`
	CreatedBy    string             `json:"created_by"`
	CreatedAt    time.Time          `json:"created_at"`
	ExpiresAt    time.Time          `json:"expires_at"`
}

// ValidRows returns the rows eligible for execution, in source order.
func (s *ImportSession) ValidRows() []ValidationResult {
	valid := make([]ValidationResult, 0, s.ValidCount)
	for _, row := range s.Rows {
		if row.IsValid {
			valid = append(valid, row)
		}
	}
	return valid
}

// Count refreshes ValidCount and InvalidCount from Rows.
func (s *ImportSession) Count() {
	s.ValidCount, s.InvalidCount = 0, 0
	for _, row := range s.Rows {
		if row.IsValid {
			s.ValidCount++
		} else {
			s.InvalidCount++
		}
	}
}

// NormalizeResultStatus maps free text onto a known ResultStatus, case-insensitively.
func NormalizeResultStatus(raw string) (ResultStatus, bool) {
	for _, status := range []ResultStatus{ResultPass, ResultFail, ResultAbsent} {
		if strings.EqualFold(strings.TrimSpace(raw), string(status)) {
			return status, true
		}
	}
	return "", false
}
