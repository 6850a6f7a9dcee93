package service

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"

	"github.com/noah-isme/academy-import-api/internal/dto"
	"github.com/noah-isme/academy-import-api/internal/importer"
	"github.com/noah-isme/academy-import-api/internal/models"
	"github.com/noah-isme/academy-import-api/internal/repository"
	appErrors "github.com/noah-isme/academy-import-api/pkg/errors"
	"github.com/noah-isme/academy-import-api/pkg/export"
	"github.com/noah-isme/academy-import-api/pkg/jobs"
	"github.com/noah-isme/academy-import-api/pkg/spreadsheet"
)

type academyReader interface {
	ListStudents(ctx context.Context) ([]models.Student, error)
	ListCourses(ctx context.Context) ([]models.Course, error)
	ListBatches(ctx context.Context) ([]models.Batch, error)
	ListResults(ctx context.Context) ([]models.Result, error)
	ListSubjectsByCourse(ctx context.Context, courseID int64) ([]models.Subject, error)
}

type importSessionStore interface {
	Save(ctx context.Context, session *models.ImportSession) error
	Get(ctx context.Context, id string) (*models.ImportSession, error)
	Take(ctx context.Context, id string) (*models.ImportSession, error)
}

type importRunStore interface {
	Create(ctx context.Context, run *models.ImportRun) error
	GetByID(ctx context.Context, id string) (*models.ImportRun, error)
	ListRecent(ctx context.Context, limit int) ([]models.ImportRun, error)
	Update(ctx context.Context, id string, params repository.UpdateImportRunParams) error
	FailInterrupted(ctx context.Context, message string, at time.Time) (int64, error)
	DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type jobDispatcher interface {
	Enqueue(job jobs.Job) error
}

type photoStorage interface {
	SaveStream(name string, r io.Reader) (int64, error)
	Path(name string) (string, error)
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type importMetrics interface {
	ObserveImportReview(kind string, valid, invalid int)
	ObserveImportRun(kind, status string, success, failed int, duration time.Duration)
}

type pdfRenderer interface {
	Render(report export.Report) ([]byte, error)
}

// InterruptedRunMessage is stored on runs that a restart cut short.
const InterruptedRunMessage = "run interrupted by service restart; rows already written were kept"

var photoExtensions = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true}

// ImportServiceConfig bounds uploads and sessions.
type ImportServiceConfig struct {
	SessionTTL       time.Duration
	MaxFileSizeBytes int64
	MaxPhotos        int
	RunRetention     time.Duration
}

// FileUpload is one uploaded file handed over by the HTTP layer.
type FileUpload struct {
	Filename string
	Body     io.Reader
}

// PreviewInput describes an upload to review.
type PreviewInput struct {
	Kind   models.ImportKind
	File   FileUpload
	Photos []FileUpload
	Actor  string
}

// BulkJob is the queue payload of a run. The token lets the worker write as the caller.
type BulkJob struct {
	RunID string
	Kind  models.ImportKind
	Rows  []models.ValidationResult
	Token string
}

// ImportService turns uploads into reviewable sessions and confirmed sessions into queued runs.
type ImportService struct {
	academy  academyReader
	sessions importSessionStore
	runs     importRunStore
	queue    jobDispatcher
	photos   photoStorage
	pdf      pdfRenderer
	validate *validator.Validate
	metrics  importMetrics
	logger   *zap.Logger
	cfg      ImportServiceConfig
	now      func() time.Time
}

// NewImportService constructs the service.
func NewImportService(academy academyReader, sessions importSessionStore, runs importRunStore, queue jobDispatcher, photos photoStorage, validate *validator.Validate, metrics importMetrics, logger *zap.Logger, cfg ImportServiceConfig) *ImportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 30 * time.Minute
	}
	if cfg.MaxFileSizeBytes <= 0 {
		cfg.MaxFileSizeBytes = 5 * 1024 * 1024
	}
	if cfg.RunRetention <= 0 {
		cfg.RunRetention = 30 * 24 * time.Hour
	}
	return &ImportService{
		academy:  academy,
		sessions: sessions,
		runs:     runs,
		queue:    queue,
		photos:   photos,
		pdf:      export.NewPDFExporter(),
		validate: validate,
		metrics:  metrics,
		logger:   logger,
		cfg:      cfg,
		now:      time.Now,
	}
}

// Preview parses, resolves and validates an upload, stores the verdicts as a session and
// returns the review table. Nothing is written to the backend.
func (s *ImportService) Preview(ctx context.Context, in PreviewInput) (*dto.ImportSessionResponse, error) {
	if in.Kind == models.ImportKindResultDelete || !in.Kind.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported import kind %q", in.Kind))
	}
	if in.Kind != models.ImportKindStudent && len(in.Photos) > 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "photos are only accepted with student imports")
	}
	if s.cfg.MaxPhotos > 0 && len(in.Photos) > s.cfg.MaxPhotos {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("at most %d photos can be uploaded", s.cfg.MaxPhotos))
	}

	data, err := io.ReadAll(io.LimitReader(in.File.Body, s.cfg.MaxFileSizeBytes+1))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrParseFile.Code, appErrors.ErrParseFile.Status, "failed to read upload")
	}
	if int64(len(data)) > s.cfg.MaxFileSizeBytes {
		return nil, appErrors.ErrPayloadTooLarge
	}

	rows, err := spreadsheet.Parse(in.File.Filename, bytes.NewReader(data))
	if err != nil {
		if errors.Is(err, spreadsheet.ErrUnsupportedFormat) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported file type, expected .csv, .xlsx or .xls")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrParseFile.Code, appErrors.ErrParseFile.Status, appErrors.ErrParseFile.Message)
	}

	sessionID := uuid.NewString()
	photos, err := s.storePhotos(sessionID, in.Photos)
	if err != nil {
		return nil, err
	}

	refs, err := s.loadReferences(ctx, in.Kind)
	if err != nil {
		return nil, err
	}

	pipeline, err := importer.NewPipeline(in.Kind, importer.NewResolver(s.academy, s.logger), s.validate)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to build import pipeline")
	}
	results := pipeline.Review(ctx, rows, photos, refs)

	now := s.now().UTC()
	session := &models.ImportSession{
		ID:        sessionID,
		Kind:      in.Kind,
		Filename:  filepath.Base(in.File.Filename),
		Checksum:  checksum(data),
		Rows:      results,
		CreatedBy: in.Actor,
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.SessionTTL),
	}
	session.Count()
	if err := s.sessions.Save(ctx, session); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store import session")
	}

	if s.metrics != nil {
		s.metrics.ObserveImportReview(string(in.Kind), session.ValidCount, session.InvalidCount)
	}
	s.logger.Info("import reviewed",
		zap.String("session_id", session.ID),
		zap.String("kind", string(in.Kind)),
		zap.String("filename", session.Filename),
		zap.String("summary", importer.Summary(results)),
	)
	return dto.NewImportSessionResponse(session), nil
}

// GetSession returns the review table of a pending session.
func (s *ImportService) GetSession(ctx context.Context, id, actor string) (*dto.ImportSessionResponse, error) {
	session, err := s.ownedSession(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	return dto.NewImportSessionResponse(session), nil
}

// Execute confirms a session: its valid rows become a queued run. The session is consumed, so
// concurrent confirmations of one session queue a single run.
func (s *ImportService) Execute(ctx context.Context, sessionID, actor, token string) (*dto.ImportRunResponse, error) {
	session, err := s.ownedSession(ctx, sessionID, actor)
	if err != nil {
		return nil, err
	}
	if len(session.ValidRows()) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "the upload has no valid rows to import")
	}

	session, err = s.sessions.Take(ctx, session.ID)
	if err != nil {
		return nil, sessionError(err)
	}
	valid := session.ValidRows()

	checksum := session.Checksum
	run := &models.ImportRun{
		SessionID:      &session.ID,
		Kind:           session.Kind,
		Operation:      session.Kind.Operation(),
		Total:          len(valid),
		SourceChecksum: &checksum,
		CreatedBy:      actor,
	}
	if err := s.enqueue(ctx, run, valid, token); err != nil {
		// restore the session for another confirmation
		if saveErr := s.sessions.Save(ctx, session); saveErr != nil {
			s.logger.Warn("failed to restore import session", zap.String("session_id", session.ID), zap.Error(saveErr))
		}
		return nil, err
	}
	return dto.NewImportRunResponse(run), nil
}

// BulkDelete queues a delete run for the selected register numbers. Selections that match no
// stored result are returned as rejected rows and skipped.
func (s *ImportService) BulkDelete(ctx context.Context, req dto.BulkDeleteRequest, actor, token string) (*dto.BulkDeleteResponse, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "register_numbers must list at least one register number")
	}
	selected := dedupe(req.RegisterNumbers)

	existing, err := s.academy.ListResults(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, "failed to load results")
	}
	verdicts := importer.ValidateDeletions(selected, existing)
	valid := importer.ValidOnly(verdicts)

	resp := &dto.BulkDeleteResponse{Rejected: make([]models.ValidationResult, 0, len(verdicts)-len(valid))}
	for _, verdict := range verdicts {
		if !verdict.IsValid {
			resp.Rejected = append(resp.Rejected, verdict)
		}
	}
	if len(valid) == 0 {
		return resp, nil
	}

	run := &models.ImportRun{
		Kind:      models.ImportKindResultDelete,
		Operation: models.OperationDelete,
		Total:     len(valid),
		CreatedBy: actor,
	}
	if err := s.enqueue(ctx, run, valid, token); err != nil {
		return nil, err
	}
	resp.Run = dto.NewImportRunResponse(run)
	return resp, nil
}

// GetRun returns a run by id.
func (s *ImportService) GetRun(ctx context.Context, id string) (*dto.ImportRunResponse, error) {
	run, err := s.runs.GetByID(ctx, id)
	if err != nil {
		return nil, wrapRunError(err)
	}
	return dto.NewImportRunResponse(run), nil
}

// ListRuns returns the latest runs.
func (s *ImportService) ListRuns(ctx context.Context, limit int) ([]*dto.ImportRunResponse, error) {
	runs, err := s.runs.ListRecent(ctx, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list import runs")
	}
	out := make([]*dto.ImportRunResponse, 0, len(runs))
	for i := range runs {
		out = append(out, dto.NewImportRunResponse(&runs[i]))
	}
	return out, nil
}

// RunReport renders the outcome of a completed run as a PDF.
func (s *ImportService) RunReport(ctx context.Context, id string) ([]byte, string, error) {
	run, err := s.runs.GetByID(ctx, id)
	if err != nil {
		return nil, "", wrapRunError(err)
	}
	if run.Status != models.ImportRunFinished && run.Status != models.ImportRunFailed {
		return nil, "", appErrors.Clone(appErrors.ErrConflict, "import run has not completed yet")
	}

	outcome := run.Outcome()
	summary := []string{
		fmt.Sprintf("Run: %s", run.ID),
		fmt.Sprintf("Kind: %s (%s)", run.Kind, run.Operation),
		fmt.Sprintf("Status: %s", run.Status),
		fmt.Sprintf("Rows: %d, succeeded: %d, failed: %d", run.Total, outcome.Success, outcome.Failed),
	}
	if run.FinishedAt != nil {
		summary = append(summary, fmt.Sprintf("Finished: %s", run.FinishedAt.UTC().Format(time.RFC3339)))
	}
	if run.ErrorMessage != nil && *run.ErrorMessage != "" {
		summary = append(summary, fmt.Sprintf("Note: %s", *run.ErrorMessage))
	}
	table := export.Dataset{Headers: []string{"Row", "Identifier", "Error"}}
	for _, rowErr := range outcome.Errors {
		table.Rows = append(table.Rows, []any{rowErr.Row, rowErr.Identifier, rowErr.Error})
	}

	payload, err := s.pdf.Render(export.Report{
		Title:   "Bulk import report",
		Summary: summary,
		Table:   table,
		Widths:  []float64{1, 3, 8},
	})
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render run report")
	}
	return payload, fmt.Sprintf("import_run_%s.pdf", run.ID), nil
}

// RecoverInterrupted fails runs a previous process left unfinished. Bulk runs are never replayed.
func (s *ImportService) RecoverInterrupted(ctx context.Context) {
	affected, err := s.runs.FailInterrupted(ctx, InterruptedRunMessage, s.now().UTC())
	if err != nil {
		s.logger.Warn("failed to close interrupted import runs", zap.Error(err))
		return
	}
	if affected > 0 {
		s.logger.Warn("closed interrupted import runs", zap.Int64("count", affected))
	}
}

// StartCleanup periodically prunes old runs and uploaded photos.
func (s *ImportService) StartCleanup(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.cleanup(ctx)
			}
		}
	}()
}

func (s *ImportService) cleanup(ctx context.Context) {
	cutoff := s.now().Add(-s.cfg.RunRetention)
	if removed, err := s.runs.DeleteFinishedBefore(ctx, cutoff); err != nil {
		s.logger.Warn("import run cleanup failed", zap.Error(err))
	} else if removed > 0 {
		s.logger.Info("import runs pruned", zap.Int64("count", removed))
	}
	if s.photos == nil {
		return
	}
	if _, err := s.photos.CleanupOlderThan(s.cfg.RunRetention); err != nil {
		s.logger.Warn("photo cleanup failed", zap.Error(err))
	}
}

func (s *ImportService) enqueue(ctx context.Context, run *models.ImportRun, rows []models.ValidationResult, token string) error {
	if err := s.runs.Create(ctx, run); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create import run")
	}
	job := jobs.Job{
		ID:      run.ID,
		Type:    string(run.Kind),
		Payload: BulkJob{RunID: run.ID, Kind: run.Kind, Rows: rows, Token: token},
	}
	if err := s.queue.Enqueue(job); err != nil {
		failed := models.ImportRunFailed
		msg := "failed to enqueue import run"
		now := s.now().UTC()
		if updateErr := s.runs.Update(ctx, run.ID, repository.UpdateImportRunParams{
			Status:       &failed,
			ErrorMessage: &msg,
			FinishedAt:   &now,
		}); updateErr != nil {
			s.logger.Warn("failed to mark import run failed", zap.String("run_id", run.ID), zap.Error(updateErr))
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, msg)
	}
	s.logger.Info("import run queued",
		zap.String("run_id", run.ID),
		zap.String("kind", string(run.Kind)),
		zap.Int("rows", run.Total),
	)
	return nil
}

func (s *ImportService) ownedSession(ctx context.Context, id, actor string) (*models.ImportSession, error) {
	session, err := s.sessions.Get(ctx, id)
	if err != nil {
		return nil, sessionError(err)
	}
	if session.CreatedBy != "" && session.CreatedBy != actor {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "import session belongs to another user")
	}
	return session, nil
}

func sessionError(err error) error {
	if errors.Is(err, appErrors.ErrSessionExpired) {
		return appErrors.ErrSessionExpired
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load import session")
}

// loadReferences reads the lookup lists a kind needs, concurrently.
func (s *ImportService) loadReferences(ctx context.Context, kind models.ImportKind) (importer.ReferenceData, error) {
	refs, err := importer.LoadReferences(ctx, s.academy, kind)
	if err != nil {
		return refs, appErrors.Wrap(err, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, "failed to load reference data")
	}
	return refs, nil
}

func (s *ImportService) storePhotos(sessionID string, uploads []FileUpload) ([]importer.Photo, error) {
	if len(uploads) == 0 {
		return nil, nil
	}
	if s.photos == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "photo uploads are not enabled")
	}
	photos := make([]importer.Photo, 0, len(uploads))
	for _, upload := range uploads {
		name := filepath.Base(upload.Filename)
		if !photoExtensions[strings.ToLower(filepath.Ext(name))] {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("%q is not a supported image", name))
		}
		rel := path.Join(sessionID, name)
		if _, err := s.photos.SaveStream(rel, upload.Body); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store photo")
		}
		stored, err := s.photos.Path(rel)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store photo")
		}
		photos = append(photos, importer.Photo{Filename: name, Path: stored})
	}
	return photos, nil
}

func wrapRunError(err error) error {
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load import run")
}

func checksum(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// dedupe trims values and drops repeats, comparing case-insensitively like register number
// lookups do. The first spelling wins.
func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		key := strings.ToLower(v)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, v)
	}
	return out
}
