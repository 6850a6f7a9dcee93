package service

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/academy-import-api/internal/dto"
	"github.com/noah-isme/academy-import-api/internal/importer"
	"github.com/noah-isme/academy-import-api/internal/models"
	appErrors "github.com/noah-isme/academy-import-api/pkg/errors"
	"github.com/noah-isme/academy-import-api/pkg/export"
	"github.com/noah-isme/academy-import-api/pkg/storage"
)

// TemplateSubjectGroups is the number of subject groups laid out in generated result templates.
const TemplateSubjectGroups = 5

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type datasetRenderer interface {
	Render(data export.Dataset) ([]byte, error)
	ContentType() string
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// ExportFile is a rendered file ready to be sent.
type ExportFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Download is an opened export resolved from a signed token.
type Download struct {
	File        *os.File
	Filename    string
	ContentType string
	ExpiresAt   time.Time
}

// ExportService renders results workbooks, import templates and error sheets, and serves
// stored exports through signed links.
type ExportService struct {
	academy academyReader
	storage fileStorage
	xlsx    datasetRenderer
	csv     datasetRenderer
	signer  *storage.SignedURLSigner
	logger  *zap.Logger
	cfg     ExportConfig
	now     func() time.Time
}

// NewExportService constructs an ExportService.
func NewExportService(academy academyReader, store fileStorage, signer *storage.SignedURLSigner, cfg ExportConfig, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	return &ExportService{
		academy: academy,
		storage: store,
		xlsx:    export.NewXLSXExporter("Results"),
		csv:     export.NewCSVExporter(),
		signer:  signer,
		logger:  logger,
		cfg:     cfg,
		now:     time.Now,
	}
}

// ExportResults writes every stored result as a workbook laid out like the create template and
// returns a signed link to it.
func (s *ExportService) ExportResults(ctx context.Context) (*dto.ExportResponse, error) {
	results, err := s.academy.ListResults(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, "failed to load results")
	}
	names, err := s.nameLookups(ctx, results)
	if err != nil {
		return nil, err
	}

	payload, err := s.xlsx.Render(ResultsDataset(results, names))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render results workbook")
	}

	exportID := uuid.NewString()
	filename := fmt.Sprintf("results_%s.xlsx", s.now().Format("2006-01-02"))
	relPath, err := s.storage.Save(path.Join(exportID, filename), payload)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store results workbook")
	}
	token, expiresAt, err := s.signer.Generate(exportID, relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download link")
	}

	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}
	s.logger.Info("results exported", zap.Int("results", len(results)), zap.String("path", relPath))
	return &dto.ExportResponse{
		Filename:  filename,
		URL:       fmt.Sprintf("%s/export/%s", prefix, token),
		ExpiresAt: expiresAt,
	}, nil
}

// ResultNames fills in names the backend left out of result rows.
type ResultNames struct {
	Students map[int64]string
	Courses  map[int64]string
	Batches  map[int64]string
	Subjects map[int64]string
}

// ResultsDataset lays results out in the create template: base columns, then one subject group
// per mark. The header covers the widest result.
func ResultsDataset(results []models.Result, names ResultNames) export.Dataset {
	groups := 0
	for _, r := range results {
		if len(r.Marks) > groups {
			groups = len(r.Marks)
		}
	}
	schema := importer.ResultCreateSchema
	data := export.Dataset{Headers: schema.Headers(groups), Rows: make([][]any, 0, len(results))}

	for _, r := range results {
		row := []any{
			firstNonEmpty(r.StudentName, names.Students[r.StudentID]),
			firstNonEmpty(r.CourseName, names.Courses[r.CourseID]),
			firstNonEmpty(r.BatchName, names.Batches[r.BatchID]),
			r.RegisterNumber,
			r.CertificateNumber,
			r.Result,
			r.IsPublished,
			publishedCell(r.PublishedDate),
		}
		for _, mark := range r.Marks {
			row = append(row,
				firstNonEmpty(mark.SubjectName, names.Subjects[mark.SubjectID]),
				mark.SubjectType,
				mark.TEObtained,
				mark.CEObtained,
				mark.PEObtained,
				mark.PWObtained,
			)
		}
		data.Rows = append(data.Rows, row)
	}
	return data
}

// Template renders the blank template of a kind as xlsx or csv.
func (s *ExportService) Template(kind models.ImportKind, format string) (*ExportFile, error) {
	schema, err := importer.SchemaFor(kind)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("no template for %q", kind))
	}
	groups := 0
	if schema.Group != nil {
		groups = TemplateSubjectGroups
	}
	data := export.Dataset{Headers: schema.Headers(groups)}

	renderer, ext := s.xlsx, "xlsx"
	switch strings.ToLower(format) {
	case "", "xlsx":
	case "csv":
		renderer, ext = s.csv, "csv"
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be xlsx or csv")
	}
	payload, err := renderer.Render(data)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render template")
	}
	return &ExportFile{
		Filename:    fmt.Sprintf("%s_template.%s", kind, ext),
		ContentType: renderer.ContentType(),
		Data:        payload,
	}, nil
}

// SessionErrors renders the rejected rows of a reviewed upload so they can be fixed offline.
func (s *ExportService) SessionErrors(session *dto.ImportSessionResponse) (*ExportFile, error) {
	data := export.Dataset{Headers: []string{"Row", "Identifier", "Errors", "Warnings"}}
	for _, row := range session.Rows {
		if row.IsValid && len(row.Warnings) == 0 {
			continue
		}
		data.Rows = append(data.Rows, []any{
			row.Row,
			row.Data.Identifier(),
			strings.Join(row.Errors, "; "),
			strings.Join(row.Warnings, "; "),
		})
	}
	payload, err := s.xlsx.Render(data)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render error sheet")
	}
	base := strings.TrimSuffix(session.Filename, filepath.Ext(session.Filename))
	if base == "" {
		base = "import"
	}
	return &ExportFile{
		Filename:    fmt.Sprintf("%s_errors.xlsx", base),
		ContentType: s.xlsx.ContentType(),
		Data:        payload,
	}, nil
}

// ResolveDownload validates a signed token and opens the stored export.
func (s *ExportService) ResolveDownload(token string) (*Download, error) {
	_, relPath, expiresAt, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")
	}
	file, err := s.storage.Open(relPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "export no longer available")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open export file")
	}
	contentType := s.xlsx.ContentType()
	if strings.EqualFold(filepath.Ext(relPath), ".csv") {
		contentType = s.csv.ContentType()
	}
	return &Download{
		File:        file,
		Filename:    filepath.Base(relPath),
		ContentType: contentType,
		ExpiresAt:   expiresAt,
	}, nil
}

// StartCleanup boots a goroutine that purges expired exports periodically.
func (s *ExportService) StartCleanup(ctx context.Context, interval time.Duration) {
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
				removed, err := s.storage.CleanupOlderThan(s.cfg.ResultTTL)
				if err != nil {
					s.logger.Warn("export cleanup failed", zap.Error(err))
					continue
				}
				if len(removed) > 0 {
					s.logger.Info("expired exports removed", zap.Int("count", len(removed)))
				}
			}
		}
	}()
}

// nameLookups fetches the lists needed to name results the backend returned without names.
func (s *ExportService) nameLookups(ctx context.Context, results []models.Result) (ResultNames, error) {
	names := ResultNames{
		Students: map[int64]string{},
		Courses:  map[int64]string{},
		Batches:  map[int64]string{},
		Subjects: map[int64]string{},
	}
	var needPeople, needSubjects bool
	courses := map[int64]struct{}{}
	for _, r := range results {
		if r.StudentName == "" || r.CourseName == "" || r.BatchName == "" {
			needPeople = true
		}
		for _, m := range r.Marks {
			if m.SubjectName == "" {
				needSubjects = true
				courses[r.CourseID] = struct{}{}
			}
		}
	}

	if needPeople {
		students, err := s.academy.ListStudents(ctx)
		if err != nil {
			return names, appErrors.Wrap(err, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, "failed to load students")
		}
		for _, st := range students {
			names.Students[st.ID] = st.Name
		}
		courseList, err := s.academy.ListCourses(ctx)
		if err != nil {
			return names, appErrors.Wrap(err, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, "failed to load courses")
		}
		for _, c := range courseList {
			names.Courses[c.ID] = c.Name
		}
		batches, err := s.academy.ListBatches(ctx)
		if err != nil {
			return names, appErrors.Wrap(err, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, "failed to load batches")
		}
		for _, b := range batches {
			names.Batches[b.ID] = b.Name
		}
	}
	if needSubjects {
		for courseID := range courses {
			subjects, err := s.academy.ListSubjectsByCourse(ctx, courseID)
			if err != nil {
				s.logger.Warn("subject names unavailable for export", zap.Int64("course_id", courseID), zap.Error(err))
				continue
			}
			for _, subj := range subjects {
				names.Subjects[subj.ID] = subj.Name
			}
		}
	}
	return names, nil
}

func publishedCell(date *string) any {
	if date == nil || *date == "" {
		return nil
	}
	if t, err := time.Parse("2006-01-02", *date); err == nil {
		return t
	}
	return *date
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
