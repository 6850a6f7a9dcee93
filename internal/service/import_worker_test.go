package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/academy-import-api/internal/models"
	"github.com/noah-isme/academy-import-api/internal/repository"
	"github.com/noah-isme/academy-import-api/pkg/jobs"
)

type writerStub struct {
	failOn  map[string]error
	deleted []int64
	tokens  []string
	cancel  context.CancelFunc
}

func (w *writerStub) CreateStudent(ctx context.Context, payload models.StudentPayload, _ *string) (*models.Student, error) {
	w.tokens = append(w.tokens, repository.BearerToken(ctx))
	if err := w.failOn[payload.Email]; err != nil {
		return nil, err
	}
	return &models.Student{ID: 1, Name: payload.Name}, nil
}

func (w *writerStub) CreateResult(ctx context.Context, payload models.ResultPayload) (*models.Result, error) {
	w.tokens = append(w.tokens, repository.BearerToken(ctx))
	return &models.Result{ID: 1}, nil
}

func (w *writerStub) UpdateResult(ctx context.Context, id int64, _ models.ResultPayload) (*models.Result, error) {
	return &models.Result{ID: id}, nil
}

func (w *writerStub) DeleteResult(ctx context.Context, id int64) error {
	w.deleted = append(w.deleted, id)
	if w.cancel != nil {
		w.cancel()
	}
	return nil
}

type failingRunUpdater struct {
	failures int
	calls    []repository.UpdateImportRunParams
}

func (u *failingRunUpdater) Update(_ context.Context, _ string, params repository.UpdateImportRunParams) error {
	u.calls = append(u.calls, params)
	if len(u.calls) <= u.failures {
		return errors.New("connection reset")
	}
	return nil
}

func studentRows(emails ...string) []models.ValidationResult {
	rows := make([]models.ValidationResult, 0, len(emails))
	for i, email := range emails {
		rows = append(rows, models.NewValidationResult(i+2, models.CandidateRecord{
			Kind:    models.ImportKindStudent,
			Student: &models.StudentRecord{Name: "S", Email: email, Phone: "1"},
		}, nil, nil))
	}
	return rows
}

func TestImportWorkerHandleRecordsOutcome(t *testing.T) {
	runs := newRunStoreStub()
	runs.runs["run-1"] = &models.ImportRun{ID: "run-1", Status: models.ImportRunQueued}
	writer := &writerStub{failOn: map[string]error{"b@x.com": &repository.APIError{Status: 400, Message: "email taken"}}}
	metrics := &metricsStub{}
	worker := NewImportWorker(runs, writer, metrics, nil)

	err := worker.Handle(context.Background(), jobs.Job{ID: "run-1", Payload: BulkJob{
		RunID: "run-1",
		Kind:  models.ImportKindStudent,
		Rows:  studentRows("a@x.com", "b@x.com", "c@x.com", "d@x.com"),
		Token: "caller-token",
	}})

	require.NoError(t, err)
	run := runs.runs["run-1"]
	assert.Equal(t, models.ImportRunFinished, run.Status)
	assert.Equal(t, 100, run.Progress)
	assert.Equal(t, 3, run.Success)
	assert.Equal(t, 1, run.Failed)
	require.Len(t, run.Errors, 1)
	assert.Equal(t, models.RowError{Row: 3, Identifier: "b@x.com", Error: "email taken"}, run.Errors[0])
	assert.NotNil(t, run.StartedAt)
	assert.NotNil(t, run.FinishedAt)
	assert.Equal(t, []string{"caller-token", "caller-token", "caller-token", "caller-token"}, writer.tokens)
	assert.Equal(t, []string{string(models.ImportRunFinished)}, metrics.runs)

	var progress []int
	for _, update := range runs.updates {
		if update.Progress != nil && update.Status == nil {
			progress = append(progress, *update.Progress)
		}
	}
	assert.Equal(t, []int{25, 50, 75, 100}, progress)
}

func TestImportWorkerHandleInterruptedRun(t *testing.T) {
	runs := newRunStoreStub()
	runs.runs["run-1"] = &models.ImportRun{ID: "run-1"}
	ctx, cancel := context.WithCancel(context.Background())
	writer := &writerStub{cancel: cancel}
	worker := NewImportWorker(runs, writer, nil, nil)

	rows := make([]models.ValidationResult, 0, 3)
	for i, id := range []int64{5, 6, 7} {
		existing := id
		rows = append(rows, models.NewValidationResult(i+1, models.CandidateRecord{
			Kind:   models.ImportKindResultDelete,
			Result: &models.ResultRecord{RegisterNumber: "R", ExistingResultID: &existing},
		}, nil, nil))
	}

	err := worker.Handle(ctx, jobs.Job{ID: "run-1", Payload: BulkJob{RunID: "run-1", Kind: models.ImportKindResultDelete, Rows: rows}})

	require.NoError(t, err)
	assert.Equal(t, []int64{5}, writer.deleted)
	run := runs.runs["run-1"]
	assert.Equal(t, models.ImportRunFailed, run.Status)
	assert.Equal(t, 1, run.Success)
	assert.Equal(t, 2, run.Failed)
	require.NotNil(t, run.ErrorMessage)
}

func TestImportWorkerRejectsUnknownPayload(t *testing.T) {
	worker := NewImportWorker(newRunStoreStub(), &writerStub{}, nil, nil)
	err := worker.Handle(context.Background(), jobs.Job{ID: "x", Payload: "nope"})
	assert.Error(t, err)
}

func TestImportWorkerStopsWhenRunCannotBeMarked(t *testing.T) {
	writer := &writerStub{}
	worker := NewImportWorker(newRunStoreStub(), writer, nil, nil)

	err := worker.Handle(context.Background(), jobs.Job{ID: "ghost", Payload: BulkJob{RunID: "ghost", Kind: models.ImportKindStudent, Rows: studentRows("a@x.com")}})

	require.Error(t, err)
	assert.Empty(t, writer.tokens)
}

func TestImportWorkerHandleClosesRunThatCannotStart(t *testing.T) {
	runs := &failingRunUpdater{failures: 1}
	writer := &writerStub{}
	metrics := &metricsStub{}
	worker := NewImportWorker(runs, writer, metrics, nil)

	err := worker.Handle(context.Background(), jobs.Job{ID: "run-1", Payload: BulkJob{
		RunID: "run-1",
		Kind:  models.ImportKindStudent,
		Rows:  studentRows("a@x.com"),
	}})

	require.NoError(t, err)
	require.Len(t, runs.calls, 2)
	closing := runs.calls[1]
	require.NotNil(t, closing.Status)
	assert.Equal(t, models.ImportRunFailed, *closing.Status)
	require.NotNil(t, closing.ErrorMessage)
	assert.Contains(t, *closing.ErrorMessage, "no rows were written")
	assert.NotNil(t, closing.FinishedAt)
	assert.Empty(t, writer.tokens)
	assert.Equal(t, []string{string(models.ImportRunFailed)}, metrics.runs)
}
