package importer

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/academy-import-api/internal/models"
)

// Validate dispatches to the rule set of kind.
func Validate(kind models.ImportKind, rows []MappedRow, refs ReferenceData, validate *validator.Validate) []models.ValidationResult {
	if kind == models.ImportKindStudent {
		return ValidateStudents(rows, refs.Students, validate)
	}
	return ValidateResults(kind, rows, refs.Results)
}

// ValidateResults checks resolved result rows against per-row rules and against each other.
// Every rule runs; the messages of one row keep rule order.
func ValidateResults(kind models.ImportKind, rows []MappedRow, existing []models.Result) []models.ValidationResult {
	existingPairs := make(map[[2]int64]struct{}, len(existing))
	for _, res := range existing {
		existingPairs[[2]int64{res.StudentID, res.CourseID}] = struct{}{}
	}

	out := make([]models.ValidationResult, 0, len(rows))
	for i, row := range rows {
		record := row.Record.Result
		if record == nil {
			out = append(out, models.NewValidationResult(row.Row, row.Record, []string{"row does not hold a result"}, nil))
			continue
		}
		var errs []string

		errs = append(errs, requireText(record.StudentName, "student name is required")...)
		errs = append(errs, requireText(record.CourseName, "course name is required")...)
		errs = append(errs, requireText(record.BatchName, "batch name is required")...)
		errs = append(errs, requireText(record.RegisterNumber, "register number is required")...)
		errs = append(errs, requireText(record.CertificateNumber, "certificate number is required")...)
		if record.Result != nil {
			if _, ok := models.NormalizeResultStatus(*record.Result); !ok {
				errs = append(errs, fmt.Sprintf("invalid result %q (expected Pass, Fail or Absent)", *record.Result))
			}
		}
		errs = append(errs, record.MappingErrors...)

		if record.StudentName != "" && record.StudentID == nil {
			errs = append(errs, fmt.Sprintf("student %q not found", record.StudentName))
		}
		if record.CourseName != "" && record.CourseID == nil {
			errs = append(errs, fmt.Sprintf("course %q not found", record.CourseName))
		}
		if record.CourseID != nil {
			if record.SubjectsUnavailable {
				errs = append(errs, fmt.Sprintf("failed to load subjects for course %q", record.CourseName))
			} else {
				for _, mark := range record.Marks {
					if _, ok := record.SubjectIDs[mark.SubjectName]; !ok {
						errs = append(errs, fmt.Sprintf("subject %q not found for course %q", mark.SubjectName, record.CourseName))
					}
				}
			}
		}

		if record.CourseID != nil && record.BatchName != "" && record.BatchID == nil {
			errs = append(errs, fmt.Sprintf("batch %q not found for course %q", record.BatchName, record.CourseName))
		}

		switch kind {
		case models.ImportKindResultCreate:
			if record.StudentID != nil && record.CourseID != nil {
				pair := [2]int64{*record.StudentID, *record.CourseID}
				if _, ok := existingPairs[pair]; ok {
					errs = append(errs, "result already exists for this student and course")
				}
				if earlier, ok := earlierPair(rows[:i], pair); ok {
					errs = append(errs, fmt.Sprintf("duplicate student and course combination (same as row %d)", earlier))
				}
			}
		case models.ImportKindResultUpdate:
			if record.RegisterNumber != "" && record.ExistingResultID == nil {
				errs = append(errs, fmt.Sprintf("no existing result with register number %q", record.RegisterNumber))
			}
		}

		if other, ok := otherRegisterNumber(rows, i); ok {
			errs = append(errs, fmt.Sprintf("duplicate register number %q (same as row %d)", record.RegisterNumber, other))
		}

		for _, mark := range record.Marks {
			theory, practical := mark.HasTheory(), mark.HasPractical()
			if !theory && !practical {
				errs = append(errs, fmt.Sprintf("subject %q: at least one theory or practical mark is required", mark.SubjectName))
			}
			if theory && practical {
				errs = append(errs, fmt.Sprintf("subject %q: cannot have both theory and practical marks", mark.SubjectName))
			}
		}

		if record.CourseID != nil && len(record.Marks) == 0 {
			errs = append(errs, "at least one subject mark required")
		}

		out = append(out, models.NewValidationResult(row.Row, row.Record, errs, nil))
	}
	return out
}

// ValidateStudents checks student rows. Emails must be well formed, unique within the upload and
// unknown to the backend.
func ValidateStudents(rows []MappedRow, existing []models.Student, validate *validator.Validate) []models.ValidationResult {
	if validate == nil {
		validate = validator.New()
	}
	known := make(map[string]struct{}, len(existing))
	for _, s := range existing {
		if key := nameKey(s.Email); key != "" {
			known[key] = struct{}{}
		}
	}

	out := make([]models.ValidationResult, 0, len(rows))
	for i, row := range rows {
		record := row.Record.Student
		if record == nil {
			out = append(out, models.NewValidationResult(row.Row, row.Record, []string{"row does not hold a student"}, nil))
			continue
		}
		var errs []string
		errs = append(errs, requireText(record.Name, "name is required")...)
		errs = append(errs, requireText(record.Email, "email is required")...)
		errs = append(errs, requireText(record.Phone, "phone is required")...)

		if record.Email != "" {
			if err := validate.Var(record.Email, "email"); err != nil {
				errs = append(errs, fmt.Sprintf("invalid email %q", record.Email))
			} else if _, ok := known[nameKey(record.Email)]; ok {
				errs = append(errs, fmt.Sprintf("student with email %q already exists", record.Email))
			}
			for j, other := range rows {
				if j == i || other.Record.Student == nil {
					continue
				}
				if strings.EqualFold(other.Record.Student.Email, record.Email) {
					errs = append(errs, fmt.Sprintf("duplicate email %q (same as row %d)", record.Email, other.Row))
					break
				}
			}
		}

		var warnings []string
		if record.PhotoWarning != "" {
			warnings = append(warnings, record.PhotoWarning)
		}
		out = append(out, models.NewValidationResult(row.Row, row.Record, errs, warnings))
	}
	return out
}

// ValidateDeletions builds verdicts for a selection of register numbers. Rows are numbered from 1
// in selection order.
func ValidateDeletions(registerNumbers []string, existing []models.Result) []models.ValidationResult {
	byRegister := make(map[string]models.Result, len(existing))
	for _, res := range existing {
		key := nameKey(res.RegisterNumber)
		if _, ok := byRegister[key]; !ok && key != "" {
			byRegister[key] = res
		}
	}

	rows := make([]MappedRow, len(registerNumbers))
	for i, number := range registerNumbers {
		record := &models.ResultRecord{RegisterNumber: strings.TrimSpace(number), Marks: []models.MarkEntry{}}
		if res, ok := byRegister[nameKey(number)]; ok {
			id := res.ID
			record.ExistingResultID = &id
			record.StudentName = res.StudentName
			record.CourseName = res.CourseName
			record.BatchName = res.BatchName
			record.CertificateNumber = res.CertificateNumber
		}
		rows[i] = MappedRow{Row: i + 1, Record: models.CandidateRecord{Kind: models.ImportKindResultDelete, Result: record}}
	}

	out := make([]models.ValidationResult, 0, len(rows))
	for i, row := range rows {
		record := row.Record.Result
		var errs []string
		errs = append(errs, requireText(record.RegisterNumber, "register number is required")...)
		if record.RegisterNumber != "" && record.ExistingResultID == nil {
			errs = append(errs, fmt.Sprintf("no existing result with register number %q", record.RegisterNumber))
		}
		if other, ok := otherRegisterNumber(rows, i); ok {
			errs = append(errs, fmt.Sprintf("duplicate register number %q (same as row %d)", record.RegisterNumber, other))
		}
		out = append(out, models.NewValidationResult(row.Row, row.Record, errs, nil))
	}
	return out
}

func requireText(value, message string) []string {
	if strings.TrimSpace(value) == "" {
		return []string{message}
	}
	return nil
}

func earlierPair(rows []MappedRow, pair [2]int64) (int, bool) {
	for _, row := range rows {
		record := row.Record.Result
		if record == nil || record.StudentID == nil || record.CourseID == nil {
			continue
		}
		if *record.StudentID == pair[0] && *record.CourseID == pair[1] {
			return row.Row, true
		}
	}
	return 0, false
}

// otherRegisterNumber returns the row of the first other record sharing the register number of
// rows[i], ignoring case.
func otherRegisterNumber(rows []MappedRow, i int) (int, bool) {
	number := rows[i].Record.Result.RegisterNumber
	if number == "" {
		return 0, false
	}
	for j, row := range rows {
		if j == i || row.Record.Result == nil {
			continue
		}
		if strings.EqualFold(row.Record.Result.RegisterNumber, number) {
			return row.Row, true
		}
	}
	return 0, false
}
