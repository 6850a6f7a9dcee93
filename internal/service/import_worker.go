package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/academy-import-api/internal/importer"
	"github.com/noah-isme/academy-import-api/internal/models"
	"github.com/noah-isme/academy-import-api/internal/repository"
	"github.com/noah-isme/academy-import-api/pkg/jobs"
)

type runUpdater interface {
	Update(ctx context.Context, id string, params repository.UpdateImportRunParams) error
}

// ImportWorker executes queued bulk runs against the academy backend.
type ImportWorker struct {
	runs    runUpdater
	writer  importer.Writer
	metrics importMetrics
	logger  *zap.Logger
	now     func() time.Time
}

// NewImportWorker constructs a worker.
func NewImportWorker(runs runUpdater, writer importer.Writer, metrics importMetrics, logger *zap.Logger) *ImportWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ImportWorker{runs: runs, writer: writer, metrics: metrics, logger: logger, now: time.Now}
}

// Handle processes one queue job. Row failures are part of the outcome and never fail the job,
// so a run is not retried.
func (w *ImportWorker) Handle(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(BulkJob)
	if !ok {
		return fmt.Errorf("import job %s: unexpected payload %T", job.ID, job.Payload)
	}
	// Status writes must land even while the queue is shutting down.
	store := context.WithoutCancel(ctx)
	log := w.logger.With(zap.String("run_id", payload.RunID), zap.String("kind", string(payload.Kind)))

	started := w.now().UTC()
	processing := models.ImportRunProcessing
	zero := 0
	if err := w.runs.Update(store, payload.RunID, repository.UpdateImportRunParams{
		Status:    &processing,
		Progress:  &zero,
		StartedAt: &started,
	}); err != nil {
		// the queue does not retry, so the run is closed as failed
		log.Error("failed to mark import run processing", zap.Error(err))
		failed := models.ImportRunFailed
		msg := "run could not be started; no rows were written"
		finished := w.now().UTC()
		if failErr := w.runs.Update(store, payload.RunID, repository.UpdateImportRunParams{
			Status:       &failed,
			ErrorMessage: &msg,
			FinishedAt:   &finished,
		}); failErr != nil {
			log.Error("failed to mark import run failed", zap.Error(failErr))
		}
		if w.metrics != nil {
			w.metrics.ObserveImportRun(string(payload.Kind), string(failed), 0, 0, finished.Sub(started))
		}
		return nil
	}

	last := 0
	progress := func(percent int) {
		if percent == last {
			return
		}
		last = percent
		if err := w.runs.Update(store, payload.RunID, repository.UpdateImportRunParams{Progress: &percent}); err != nil {
			log.Warn("failed to persist import progress", zap.Int("progress", percent), zap.Error(err))
		}
	}

	runCtx := repository.WithBearerToken(ctx, payload.Token)
	outcome := importer.Execute(runCtx, payload.Rows, payload.Kind.Operation(), w.writer, progress)

	status := models.ImportRunFinished
	var message *string
	if ctx.Err() != nil {
		status = models.ImportRunFailed
		msg := "run stopped before every row was processed; rows already written were kept"
		message = &msg
	}
	finished := w.now().UTC()
	full := 100
	errs := models.RowErrors(outcome.Errors)
	if err := w.runs.Update(store, payload.RunID, repository.UpdateImportRunParams{
		Status:       &status,
		Progress:     &full,
		Success:      &outcome.Success,
		Failed:       &outcome.Failed,
		Errors:       &errs,
		ErrorMessage: message,
		FinishedAt:   &finished,
	}); err != nil {
		log.Error("failed to persist import outcome", zap.Int("success", outcome.Success), zap.Int("failed", outcome.Failed), zap.Error(err))
	}

	if w.metrics != nil {
		w.metrics.ObserveImportRun(string(payload.Kind), string(status), outcome.Success, outcome.Failed, finished.Sub(started))
	}
	log.Info("import run completed",
		zap.String("status", string(status)),
		zap.Int("success", outcome.Success),
		zap.Int("failed", outcome.Failed),
		zap.Duration("duration", finished.Sub(started)),
	)
	return nil
}
