package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/academy-import-api/internal/models"
	appErrors "github.com/noah-isme/academy-import-api/pkg/errors"
)

var importRunColumnNames = []string{"id", "session_id", "kind", "operation", "status", "progress", "total", "success", "failed", "errors", "source_checksum", "error_message", "created_by", "created_at", "started_at", "finished_at"}

func newImportRunRepoMock(t *testing.T) (*ImportRunRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewImportRunRepository(sqlx.NewDb(db, "sqlmock")), mock
}

func TestImportRunRepositoryCreateAndGet(t *testing.T) {
	repo, mock := newImportRunRepoMock(t)
	ctx := context.Background()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO import_runs")).
		WithArgs(sqlmock.AnyArg(), nil, "result_create", "create", "QUEUED", 0, 3, 0, 0, []byte("[]"), nil, nil, "user-1", sqlmock.AnyArg(), nil, nil).
		WillReturnResult(sqlmock.NewResult(1, 1))

	run := &models.ImportRun{Kind: models.ImportKindResultCreate, Operation: models.OperationCreate, Total: 3, CreatedBy: "user-1"}
	require.NoError(t, repo.Create(ctx, run))
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, models.ImportRunQueued, run.Status)

	rows := sqlmock.NewRows(importRunColumnNames).
		AddRow(run.ID, nil, "result_create", "create", "FINISHED", 100, 3, 2, 1, `[{"row":3,"identifier":"REG-2","error":"boom"}]`, nil, nil, "user-1", time.Now(), nil, nil)
	mock.ExpectQuery(regexp.QuoteMeta("FROM import_runs WHERE id = $1")).
		WithArgs(run.ID).
		WillReturnRows(rows)

	fetched, err := repo.GetByID(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ImportRunFinished, fetched.Status)
	require.Len(t, fetched.Errors, 1)
	assert.Equal(t, "REG-2", fetched.Errors[0].Identifier)
	assert.Equal(t, models.BulkOutcome{Success: 2, Failed: 1, Errors: []models.RowError{{Row: 3, Identifier: "REG-2", Error: "boom"}}}, fetched.Outcome())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestImportRunRepositoryGetMissing(t *testing.T) {
	repo, mock := newImportRunRepoMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM import_runs WHERE id = $1")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "missing")

	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestImportRunRepositoryUpdate(t *testing.T) {
	repo, mock := newImportRunRepoMock(t)

	now := time.Now()
	status := models.ImportRunFinished
	progress := 100
	success := 2
	failed := 1
	errs := models.RowErrors{{Row: 3, Identifier: "REG-2", Error: "boom"}}
	mock.ExpectExec(regexp.QuoteMeta("UPDATE import_runs SET status = $1, progress = $2, success = $3, failed = $4, errors = $5, finished_at = $6 WHERE id = $7")).
		WithArgs(status, progress, success, failed, sqlmock.AnyArg(), now, "run-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Update(context.Background(), "run-1", UpdateImportRunParams{
		Status:     &status,
		Progress:   &progress,
		Success:    &success,
		Failed:     &failed,
		Errors:     &errs,
		FinishedAt: &now,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestImportRunRepositoryUpdateWithoutChanges(t *testing.T) {
	repo, mock := newImportRunRepoMock(t)
	require.NoError(t, repo.Update(context.Background(), "run-1", UpdateImportRunParams{}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestImportRunRepositoryFailInterrupted(t *testing.T) {
	repo, mock := newImportRunRepoMock(t)
	now := time.Now()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE import_runs SET status = 'FAILED'")).
		WithArgs("interrupted", now).
		WillReturnResult(sqlmock.NewResult(0, 2))

	affected, err := repo.FailInterrupted(context.Background(), "interrupted", now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), affected)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestImportRunRepositoryListRecent(t *testing.T) {
	repo, mock := newImportRunRepoMock(t)
	rows := sqlmock.NewRows(importRunColumnNames).
		AddRow("run-2", nil, "student_import", "create", "PROCESSING", 40, 5, 2, 0, `[]`, nil, nil, "user-1", time.Now(), time.Now(), nil)
	mock.ExpectQuery(regexp.QuoteMeta("FROM import_runs ORDER BY created_at DESC LIMIT $1")).
		WithArgs(20).
		WillReturnRows(rows)

	runs, err := repo.ListRecent(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, 40, runs[0].Progress)
	require.NoError(t, mock.ExpectationsWereMet())
}
