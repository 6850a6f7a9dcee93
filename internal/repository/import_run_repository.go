package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/academy-import-api/internal/models"
	appErrors "github.com/noah-isme/academy-import-api/pkg/errors"
)

const importRunColumns = `id, session_id, kind, operation, status, progress, total, success, failed, errors, source_checksum, error_message, created_by, created_at, started_at, finished_at`

// ImportRunRepository persists bulk run records.
type ImportRunRepository struct {
	db *sqlx.DB
}

// NewImportRunRepository constructs the repository.
func NewImportRunRepository(db *sqlx.DB) *ImportRunRepository {
	return &ImportRunRepository{db: db}
}

// Create inserts a new run with generated defaults.
func (r *ImportRunRepository) Create(ctx context.Context, run *models.ImportRun) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.Status == "" {
		run.Status = models.ImportRunQueued
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	if run.Errors == nil {
		run.Errors = models.RowErrors{}
	}
	const query = `INSERT INTO import_runs (` + importRunColumns + `)
VALUES (:id, :session_id, :kind, :operation, :status, :progress, :total, :success, :failed, :errors, :source_checksum, :error_message, :created_by, :created_at, :started_at, :finished_at)`
	if _, err := r.db.NamedExecContext(ctx, query, run); err != nil {
		return fmt.Errorf("create import run: %w", err)
	}
	return nil
}

// GetByID returns a run by id.
func (r *ImportRunRepository) GetByID(ctx context.Context, id string) (*models.ImportRun, error) {
	query := `SELECT ` + importRunColumns + ` FROM import_runs WHERE id = $1`
	var run models.ImportRun
	if err := r.db.GetContext(ctx, &run, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "import run not found")
		}
		return nil, fmt.Errorf("get import run: %w", err)
	}
	return &run, nil
}

// ListRecent returns the latest runs, newest first.
func (r *ImportRunRepository) ListRecent(ctx context.Context, limit int) ([]models.ImportRun, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT ` + importRunColumns + ` FROM import_runs ORDER BY created_at DESC LIMIT $1`
	var runs []models.ImportRun
	if err := r.db.SelectContext(ctx, &runs, query, limit); err != nil {
		return nil, fmt.Errorf("list import runs: %w", err)
	}
	return runs, nil
}

// UpdateImportRunParams defines the mutable fields.
type UpdateImportRunParams struct {
	Status       *models.ImportRunStatus
	Progress     *int
	Success      *int
	Failed       *int
	Errors       *models.RowErrors
	ErrorMessage *string
	StartedAt    *time.Time
	FinishedAt   *time.Time
}

// Update persists the provided changes for a run.
func (r *ImportRunRepository) Update(ctx context.Context, id string, params UpdateImportRunParams) error {
	set := make([]string, 0, 8)
	args := make([]interface{}, 0, 9)
	add := func(column string, value interface{}) {
		args = append(args, value)
		set = append(set, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if params.Status != nil {
		add("status", *params.Status)
	}
	if params.Progress != nil {
		add("progress", *params.Progress)
	}
	if params.Success != nil {
		add("success", *params.Success)
	}
	if params.Failed != nil {
		add("failed", *params.Failed)
	}
	if params.Errors != nil {
		add("errors", *params.Errors)
	}
	if params.ErrorMessage != nil {
		add("error_message", *params.ErrorMessage)
	}
	if params.StartedAt != nil {
		add("started_at", *params.StartedAt)
	}
	if params.FinishedAt != nil {
		add("finished_at", *params.FinishedAt)
	}

	if len(set) == 0 {
		return nil
	}

	args = append(args, id)
	query := fmt.Sprintf("UPDATE import_runs SET %s WHERE id = $%d", strings.Join(set, ", "), len(args))
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update import run: %w", err)
	}
	return nil
}

// FailInterrupted marks runs left QUEUED or PROCESSING by a previous process as FAILED.
// Rows already written stay written; the run is not replayed.
func (r *ImportRunRepository) FailInterrupted(ctx context.Context, message string, at time.Time) (int64, error) {
	const query = `UPDATE import_runs SET status = 'FAILED', error_message = $1, finished_at = $2
WHERE status IN ('QUEUED', 'PROCESSING')`
	res, err := r.db.ExecContext(ctx, query, message, at)
	if err != nil {
		return 0, fmt.Errorf("fail interrupted import runs: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("fail interrupted import runs: %w", err)
	}
	return affected, nil
}

// DeleteFinishedBefore removes completed runs older than cutoff.
func (r *ImportRunRepository) DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	const query = `DELETE FROM import_runs WHERE status IN ('FINISHED', 'FAILED') AND finished_at IS NOT NULL AND finished_at < $1`
	res, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete finished import runs: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete finished import runs: %w", err)
	}
	return affected, nil
}
