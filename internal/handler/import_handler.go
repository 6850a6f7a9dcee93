package handler

import (
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/academy-import-api/internal/dto"
	"github.com/noah-isme/academy-import-api/internal/models"
	"github.com/noah-isme/academy-import-api/internal/service"
	appErrors "github.com/noah-isme/academy-import-api/pkg/errors"
	"github.com/noah-isme/academy-import-api/pkg/response"
)

type importService interface {
	Preview(ctx context.Context, in service.PreviewInput) (*dto.ImportSessionResponse, error)
	GetSession(ctx context.Context, id, actor string) (*dto.ImportSessionResponse, error)
	Execute(ctx context.Context, sessionID, actor, token string) (*dto.ImportRunResponse, error)
	BulkDelete(ctx context.Context, req dto.BulkDeleteRequest, actor, token string) (*dto.BulkDeleteResponse, error)
	GetRun(ctx context.Context, id string) (*dto.ImportRunResponse, error)
	ListRuns(ctx context.Context, limit int) ([]*dto.ImportRunResponse, error)
	RunReport(ctx context.Context, id string) ([]byte, string, error)
}

type templateService interface {
	Template(kind models.ImportKind, format string) (*service.ExportFile, error)
	SessionErrors(session *dto.ImportSessionResponse) (*service.ExportFile, error)
}

// ImportHandler exposes the upload, review and bulk execution endpoints.
type ImportHandler struct {
	imports   importService
	templates templateService
	apiPrefix string
}

// NewImportHandler constructs handler.
func NewImportHandler(imports importService, templates templateService, apiPrefix string) *ImportHandler {
	prefix := strings.TrimRight(apiPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}
	return &ImportHandler{imports: imports, templates: templates, apiPrefix: prefix}
}

// PreviewStudents godoc
// @Summary Review a student upload
// @Tags Imports
// @Accept mpfd
// @Produce json
// @Param file formData file true "Student sheet (.xlsx, .xls or .csv)"
// @Param photos formData file false "Photos referenced by the sheet"
// @Success 200 {object} response.Envelope
// @Router /imports/students [post]
func (h *ImportHandler) PreviewStudents(c *gin.Context) {
	h.preview(c, models.ImportKindStudent, true)
}

// PreviewResults godoc
// @Summary Review a result upload
// @Tags Imports
// @Accept mpfd
// @Produce json
// @Param file formData file true "Result sheet (.xlsx, .xls or .csv)"
// @Param mode formData string false "create or update"
// @Success 200 {object} response.Envelope
// @Router /imports/results [post]
func (h *ImportHandler) PreviewResults(c *gin.Context) {
	kind, ok := dto.ResultImportMode(strings.ToLower(c.PostForm("mode"))).Kind()
	if !ok {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "mode must be create or update"))
		return
	}
	h.preview(c, kind, false)
}

func (h *ImportHandler) preview(c *gin.Context, kind models.ImportKind, withPhotos bool) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	form, err := c.MultipartForm()
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "multipart form with a file is required"))
		return
	}
	files := form.File["file"]
	if len(files) == 0 {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "file is required"))
		return
	}

	var opened []multipart.File
	defer func() {
		for _, f := range opened {
			_ = f.Close()
		}
	}()
	open := func(header *multipart.FileHeader) (service.FileUpload, error) {
		src, err := header.Open()
		if err != nil {
			return service.FileUpload{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open file")
		}
		opened = append(opened, src)
		return service.FileUpload{Filename: header.Filename, Body: src}, nil
	}

	input := service.PreviewInput{Kind: kind, Actor: claims.UserID}
	if input.File, err = open(files[0]); err != nil {
		response.Error(c, err)
		return
	}
	if withPhotos {
		for _, header := range form.File["photos"] {
			photo, err := open(header)
			if err != nil {
				response.Error(c, err)
				return
			}
			input.Photos = append(input.Photos, photo)
		}
	}

	session, err := h.imports.Preview(c.Request.Context(), input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, session, nil)
}

// GetSession godoc
// @Summary Get a pending import session
// @Tags Imports
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /imports/sessions/{id} [get]
func (h *ImportHandler) GetSession(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	session, err := h.imports.GetSession(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, session, nil)
}

// SessionErrors godoc
// @Summary Download the rejected rows of a session as a workbook
// @Tags Imports
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param id path string true "Session ID"
// @Success 200 {file} file
// @Router /imports/sessions/{id}/errors [get]
func (h *ImportHandler) SessionErrors(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	session, err := h.imports.GetSession(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	file, err := h.templates.SessionErrors(session)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Data)
}

// Execute godoc
// @Summary Confirm a session and queue its valid rows
// @Tags Imports
// @Produce json
// @Param id path string true "Session ID"
// @Success 202 {object} response.Envelope
// @Router /imports/sessions/{id}/execute [post]
func (h *ImportHandler) Execute(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	run, err := h.imports.Execute(c.Request.Context(), c.Param("id"), claims.UserID, tokenFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, h.withReportURL(run), nil)
}

// BulkDelete godoc
// @Summary Queue deletion of results by register number
// @Tags Results
// @Accept json
// @Produce json
// @Param payload body dto.BulkDeleteRequest true "Register numbers"
// @Success 202 {object} response.Envelope
// @Success 200 {object} response.Envelope
// @Router /results/bulk-delete [post]
func (h *ImportHandler) BulkDelete(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.BulkDeleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid bulk delete payload"))
		return
	}
	result, err := h.imports.BulkDelete(c.Request.Context(), req, claims.UserID, tokenFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	status := http.StatusOK
	if result.Run != nil {
		status = http.StatusAccepted
		result.Run = h.withReportURL(result.Run)
	}
	response.JSON(c, status, result, nil)
}

// ListRuns godoc
// @Summary List recent bulk runs
// @Tags Imports
// @Produce json
// @Param limit query int false "Maximum runs returned"
// @Success 200 {object} response.Envelope
// @Router /imports/runs [get]
func (h *ImportHandler) ListRuns(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 100 {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "limit must be between 1 and 100"))
			return
		}
		limit = parsed
	}
	runs, err := h.imports.ListRuns(c.Request.Context(), limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	for i := range runs {
		runs[i] = h.withReportURL(runs[i])
	}
	response.JSON(c, http.StatusOK, runs, nil)
}

// GetRun godoc
// @Summary Get bulk run progress and outcome
// @Tags Imports
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} response.Envelope
// @Router /imports/runs/{id} [get]
func (h *ImportHandler) GetRun(c *gin.Context) {
	run, err := h.imports.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, h.withReportURL(run), nil)
}

// RunReport godoc
// @Summary Download the outcome of a completed run as PDF
// @Tags Imports
// @Produce application/pdf
// @Param id path string true "Run ID"
// @Success 200 {file} file
// @Router /imports/runs/{id}/report [get]
func (h *ImportHandler) RunReport(c *gin.Context) {
	payload, filename, err := h.imports.RunReport(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, filename, "application/pdf", payload)
}

// Template godoc
// @Summary Download a blank import template
// @Tags Imports
// @Produce octet-stream
// @Param kind path string true "student_import, result_create or result_update"
// @Param format query string false "xlsx (default) or csv"
// @Success 200 {file} file
// @Router /imports/templates/{kind} [get]
func (h *ImportHandler) Template(c *gin.Context) {
	file, err := h.templates.Template(models.ImportKind(c.Param("kind")), c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Data)
}

func (h *ImportHandler) withReportURL(run *dto.ImportRunResponse) *dto.ImportRunResponse {
	if run != nil && run.Outcome != nil {
		run.ReportURL = fmt.Sprintf("%s/imports/runs/%s/report", h.apiPrefix, run.ID)
	}
	return run
}
