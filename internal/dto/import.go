package dto

import (
	"time"

	"github.com/noah-isme/academy-import-api/internal/models"
)

// ResultImportMode selects the result template variant on upload.
type ResultImportMode string

const (
	ResultImportCreate ResultImportMode = "create"
	ResultImportUpdate ResultImportMode = "update"
)

// Kind maps the mode to its import kind.
func (m ResultImportMode) Kind() (models.ImportKind, bool) {
	switch m {
	case "", ResultImportCreate:
		return models.ImportKindResultCreate, true
	case ResultImportUpdate:
		return models.ImportKindResultUpdate, true
	}
	return "", false
}

// ImportSessionResponse is the review table of an upload awaiting confirmation.
type ImportSessionResponse struct {
	ID           string                    `json:"id"`
	Kind         models.ImportKind         `json:"kind"`
	Filename     string                    `json:"filename"`
	ValidCount   int                       `json:"validCount"`
	InvalidCount int                       `json:"invalidCount"`
	ExpiresAt    time.Time                 `json:"expiresAt"`
	Rows         []models.ValidationResult `json:"rows"`
}

// NewImportSessionResponse converts a stored session.
func NewImportSessionResponse(session *models.ImportSession) *ImportSessionResponse {
	return &ImportSessionResponse{
		ID:           session.ID,
		Kind:         session.Kind,
		Filename:     session.Filename,
		ValidCount:   session.ValidCount,
		InvalidCount: session.InvalidCount,
		ExpiresAt:    session.ExpiresAt,
		Rows:         session.Rows,
	}
}

// BulkDeleteRequest captures POST /results/bulk-delete payload.
type BulkDeleteRequest struct {
	RegisterNumbers []string `json:"register_numbers" validate:"required,min=1,dive,required"`
}

// ImportRunResponse exposes run progress and, once finished, its outcome.
type ImportRunResponse struct {
	ID           string                 `json:"id"`
	Kind         models.ImportKind      `json:"kind"`
	Operation    models.Operation       `json:"operation"`
	Status       models.ImportRunStatus `json:"status"`
	Progress     int                    `json:"progress"`
	Total        int                    `json:"total"`
	Outcome      *models.BulkOutcome    `json:"outcome,omitempty"`
	Error        *string                `json:"error,omitempty"`
	CreatedAt    time.Time              `json:"createdAt"`
	StartedAt    *time.Time             `json:"startedAt,omitempty"`
	FinishedAt   *time.Time             `json:"finishedAt,omitempty"`
	ReportURL    string                 `json:"reportUrl,omitempty"`
	SourceDigest *string                `json:"sourceChecksum,omitempty"`
}

// NewImportRunResponse converts a persisted run.
func NewImportRunResponse(run *models.ImportRun) *ImportRunResponse {
	resp := &ImportRunResponse{
		ID:           run.ID,
		Kind:         run.Kind,
		Operation:    run.Operation,
		Status:       run.Status,
		Progress:     run.Progress,
		Total:        run.Total,
		CreatedAt:    run.CreatedAt,
		StartedAt:    run.StartedAt,
		FinishedAt:   run.FinishedAt,
		SourceDigest: run.SourceChecksum,
	}
	if run.Status == models.ImportRunFinished || run.Status == models.ImportRunFailed {
		outcome := run.Outcome()
		resp.Outcome = &outcome
	}
	if run.ErrorMessage != nil && *run.ErrorMessage != "" {
		resp.Error = run.ErrorMessage
	}
	return resp
}

// BulkDeleteResponse reports the queued run and the selections that were rejected.
type BulkDeleteResponse struct {
	Run      *ImportRunResponse        `json:"run,omitempty"`
	Rejected []models.ValidationResult `json:"rejected"`
}

// ExportResponse carries a signed link to a generated workbook.
type ExportResponse struct {
	Filename  string    `json:"filename"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}
