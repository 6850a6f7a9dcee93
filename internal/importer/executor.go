package importer

import (
	"context"
	"errors"
	"fmt"

	"github.com/noah-isme/academy-import-api/internal/models"
)

// UnknownErrorMessage is reported when a failed write carries no usable text.
const UnknownErrorMessage = "Unknown error occurred"

// Writer performs the backend writes issued by a bulk run.
type Writer interface {
	CreateStudent(ctx context.Context, payload models.StudentPayload, photoPath *string) (*models.Student, error)
	CreateResult(ctx context.Context, payload models.ResultPayload) (*models.Result, error)
	UpdateResult(ctx context.Context, id int64, payload models.ResultPayload) (*models.Result, error)
	DeleteResult(ctx context.Context, id int64) error
}

// ServerMessager is implemented by errors that carry the backend's own explanation.
type ServerMessager interface {
	ServerMessage() string
}

// ProgressFunc receives the completed percentage after every row.
type ProgressFunc func(percent int)

// Execute applies op to every row, one call at a time and in order. Failures are recorded and
// the run moves on; nothing already written is undone. When ctx ends the remaining rows are
// reported as failed so that success plus failed always equals len(rows).
func Execute(ctx context.Context, rows []models.ValidationResult, op models.Operation, writer Writer, progress ProgressFunc) models.BulkOutcome {
	outcome := models.BulkOutcome{Errors: []models.RowError{}}
	total := len(rows)
	for i, row := range rows {
		var err error
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = fmt.Errorf("run interrupted: %w", ctxErr)
		} else {
			err = apply(ctx, row.Data, op, writer)
		}
		outcome = fold(outcome, row, err)
		if progress != nil {
			progress((i + 1) * 100 / total)
		}
	}
	return outcome
}

func fold(acc models.BulkOutcome, row models.ValidationResult, err error) models.BulkOutcome {
	if err == nil {
		acc.Success++
		return acc
	}
	errs := make([]models.RowError, len(acc.Errors), len(acc.Errors)+1)
	copy(errs, acc.Errors)
	acc.Errors = append(errs, models.RowError{
		Row:        row.Row,
		Identifier: row.Data.Identifier(),
		Error:      DescribeError(err),
	})
	acc.Failed++
	return acc
}

func apply(ctx context.Context, record models.CandidateRecord, op models.Operation, writer Writer) error {
	if record.Student != nil {
		if op != models.OperationCreate {
			return fmt.Errorf("students can only be created in bulk")
		}
		_, err := writer.CreateStudent(ctx, StudentPayload(*record.Student), record.Student.PhotoFile)
		return err
	}
	if record.Result == nil {
		return errors.New("row holds no record")
	}
	result := record.Result

	switch op {
	case models.OperationDelete:
		if result.ExistingResultID == nil {
			return fmt.Errorf("no existing result with register number %q", result.RegisterNumber)
		}
		return writer.DeleteResult(ctx, *result.ExistingResultID)
	case models.OperationUpdate:
		if result.ExistingResultID == nil {
			return fmt.Errorf("no existing result with register number %q", result.RegisterNumber)
		}
		payload, err := ResultPayload(*result)
		if err != nil {
			return err
		}
		_, err = writer.UpdateResult(ctx, *result.ExistingResultID, payload)
		return err
	default:
		payload, err := ResultPayload(*result)
		if err != nil {
			return err
		}
		_, err = writer.CreateResult(ctx, payload)
		return err
	}
}

// StudentPayload converts a mapped student row into a create body.
func StudentPayload(record models.StudentRecord) models.StudentPayload {
	return models.StudentPayload{
		Name:           record.Name,
		Email:          record.Email,
		Phone:          record.Phone,
		WhatsappNumber: record.WhatsappNumber,
	}
}

// ResultPayload converts a resolved result row into a create or update body. Subject ids are looked
// up again ignoring case; a subject that still has no id is an error.
func ResultPayload(record models.ResultRecord) (models.ResultPayload, error) {
	if record.StudentID == nil || record.CourseID == nil || record.BatchID == nil {
		return models.ResultPayload{}, errors.New("student, course and batch must be resolved before writing")
	}
	marks := make([]models.ResultMarkPayload, 0, len(record.Marks))
	for _, mark := range record.Marks {
		id, ok := LookupSubjectID(record.SubjectIDs, mark.SubjectName)
		if !ok {
			return models.ResultPayload{}, fmt.Errorf("subject %q could not be mapped to an id", mark.SubjectName)
		}
		marks = append(marks, models.ResultMarkPayload{SubjectID: id, Marks: mark.Marks})
	}

	var status *string
	if record.Result != nil {
		value := *record.Result
		if normalized, ok := models.NormalizeResultStatus(value); ok {
			value = string(normalized)
		}
		status = &value
	}

	return models.ResultPayload{
		StudentID:         *record.StudentID,
		CourseID:          *record.CourseID,
		BatchID:           *record.BatchID,
		RegisterNumber:    record.RegisterNumber,
		CertificateNumber: record.CertificateNumber,
		Result:            status,
		IsPublished:       record.IsPublished,
		PublishedDate:     record.PublishedDate,
		Marks:             marks,
	}, nil
}

// DescribeError picks the text stored for a failed row: the backend's message when it sent one,
// then the error text, then a generic fallback.
func DescribeError(err error) string {
	if err == nil {
		return ""
	}
	var messager ServerMessager
	if errors.As(err, &messager) {
		if msg := messager.ServerMessage(); msg != "" {
			return msg
		}
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return UnknownErrorMessage
}
