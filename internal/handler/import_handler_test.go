package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/academy-import-api/internal/dto"
	"github.com/noah-isme/academy-import-api/internal/middleware"
	"github.com/noah-isme/academy-import-api/internal/models"
	"github.com/noah-isme/academy-import-api/internal/service"
	appErrors "github.com/noah-isme/academy-import-api/pkg/errors"
)

type importServiceMock struct {
	previewIn    service.PreviewInput
	previewBody  string
	photoNames   []string
	previewResp  *dto.ImportSessionResponse
	previewErr   error
	session      *dto.ImportSessionResponse
	sessionErr   error
	executeToken string
	executeResp  *dto.ImportRunResponse
	executeErr   error
	deleteReq    dto.BulkDeleteRequest
	deleteResp   *dto.BulkDeleteResponse
	run          *dto.ImportRunResponse
	runs         []*dto.ImportRunResponse
	listLimit    int
	report       []byte
	reportErr    error
}

func (m *importServiceMock) Preview(ctx context.Context, in service.PreviewInput) (*dto.ImportSessionResponse, error) {
	m.previewIn = in
	body, _ := io.ReadAll(in.File.Body)
	m.previewBody = string(body)
	for _, photo := range in.Photos {
		m.photoNames = append(m.photoNames, photo.Filename)
	}
	return m.previewResp, m.previewErr
}

func (m *importServiceMock) GetSession(ctx context.Context, id, actor string) (*dto.ImportSessionResponse, error) {
	return m.session, m.sessionErr
}

func (m *importServiceMock) Execute(ctx context.Context, sessionID, actor, token string) (*dto.ImportRunResponse, error) {
	m.executeToken = token
	return m.executeResp, m.executeErr
}

func (m *importServiceMock) BulkDelete(ctx context.Context, req dto.BulkDeleteRequest, actor, token string) (*dto.BulkDeleteResponse, error) {
	m.deleteReq = req
	return m.deleteResp, nil
}

func (m *importServiceMock) GetRun(ctx context.Context, id string) (*dto.ImportRunResponse, error) {
	return m.run, nil
}

func (m *importServiceMock) ListRuns(ctx context.Context, limit int) ([]*dto.ImportRunResponse, error) {
	m.listLimit = limit
	return m.runs, nil
}

func (m *importServiceMock) RunReport(ctx context.Context, id string) ([]byte, string, error) {
	return m.report, "import_run_" + id + ".pdf", m.reportErr
}

type templateServiceMock struct {
	kind   models.ImportKind
	format string
}

func (m *templateServiceMock) Template(kind models.ImportKind, format string) (*service.ExportFile, error) {
	m.kind, m.format = kind, format
	if kind == models.ImportKindResultDelete {
		return nil, appErrors.Clone(appErrors.ErrValidation, "no template")
	}
	return &service.ExportFile{Filename: string(kind) + "_template.csv", ContentType: "text/csv", Data: []byte("a,b\n")}, nil
}

func (m *templateServiceMock) SessionErrors(session *dto.ImportSessionResponse) (*service.ExportFile, error) {
	return &service.ExportFile{Filename: "errors.xlsx", ContentType: "application/octet-stream", Data: []byte("xlsx")}, nil
}

func newGinContext(method, path string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	return c, w
}

func authenticate(c *gin.Context) {
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "staff-1", Role: models.RoleStaff})
	c.Set(middleware.ContextTokenKey, "caller-token")
}

func multipartBody(t *testing.T, fields map[string]string, files map[string][]string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for key, value := range fields {
		require.NoError(t, writer.WriteField(key, value))
	}
	for field, names := range files {
		for _, name := range names {
			part, err := writer.CreateFormFile(field, name)
			require.NoError(t, err)
			_, err = part.Write([]byte("content of " + name))
			require.NoError(t, err)
		}
	}
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var envelope map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	return envelope
}

func TestImportHandlerPreviewStudents(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &importServiceMock{previewResp: &dto.ImportSessionResponse{ID: "session-1", ValidCount: 1}}
	h := NewImportHandler(svc, &templateServiceMock{}, "")

	body, contentType := multipartBody(t, nil, map[string][]string{
		"file":   {"students.csv"},
		"photos": {"jane.jpg", "john.png"},
	})
	c, w := newGinContext(http.MethodPost, "/imports/students", nil)
	c.Request, _ = http.NewRequest(http.MethodPost, "/imports/students", body)
	c.Request.Header.Set("Content-Type", contentType)
	authenticate(c)

	h.PreviewStudents(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.ImportKindStudent, svc.previewIn.Kind)
	assert.Equal(t, "staff-1", svc.previewIn.Actor)
	assert.Equal(t, "students.csv", svc.previewIn.File.Filename)
	assert.Equal(t, "content of students.csv", svc.previewBody)
	assert.ElementsMatch(t, []string{"jane.jpg", "john.png"}, svc.photoNames)
	data := decodeEnvelope(t, w)["data"].(map[string]any)
	assert.Equal(t, "session-1", data["id"])
}

func TestImportHandlerPreviewResultsMode(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		mode   string
		kind   models.ImportKind
		status int
	}{
		{mode: "", kind: models.ImportKindResultCreate, status: http.StatusOK},
		{mode: "Update", kind: models.ImportKindResultUpdate, status: http.StatusOK},
		{mode: "delete", status: http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.mode, func(t *testing.T) {
			svc := &importServiceMock{previewResp: &dto.ImportSessionResponse{ID: "s"}}
			h := NewImportHandler(svc, &templateServiceMock{}, "")
			body, contentType := multipartBody(t, map[string]string{"mode": tc.mode}, map[string][]string{
				"file":   {"results.xlsx"},
				"photos": {"ignored.jpg"},
			})
			c, w := newGinContext(http.MethodPost, "/imports/results", nil)
			c.Request, _ = http.NewRequest(http.MethodPost, "/imports/results", body)
			c.Request.Header.Set("Content-Type", contentType)
			authenticate(c)

			h.PreviewResults(c)

			require.Equal(t, tc.status, w.Code)
			if tc.status == http.StatusOK {
				assert.Equal(t, tc.kind, svc.previewIn.Kind)
				assert.Empty(t, svc.photoNames)
			}
		})
	}
}

func TestImportHandlerPreviewRequiresFile(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewImportHandler(&importServiceMock{}, &templateServiceMock{}, "")
	body, contentType := multipartBody(t, map[string]string{"mode": "create"}, nil)
	c, w := newGinContext(http.MethodPost, "/imports/results", nil)
	c.Request, _ = http.NewRequest(http.MethodPost, "/imports/results", body)
	c.Request.Header.Set("Content-Type", contentType)
	authenticate(c)

	h.PreviewResults(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestImportHandlerPreviewPropagatesServiceError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &importServiceMock{previewErr: appErrors.Clone(appErrors.ErrPayloadTooLarge, "too big")}
	h := NewImportHandler(svc, &templateServiceMock{}, "")
	body, contentType := multipartBody(t, nil, map[string][]string{"file": {"students.xlsx"}})
	c, w := newGinContext(http.MethodPost, "/imports/students", nil)
	c.Request, _ = http.NewRequest(http.MethodPost, "/imports/students", body)
	c.Request.Header.Set("Content-Type", contentType)
	authenticate(c)

	h.PreviewStudents(c)

	require.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestImportHandlerRequiresClaims(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewImportHandler(&importServiceMock{}, &templateServiceMock{}, "")
	c, w := newGinContext(http.MethodPost, "/imports/sessions/s/execute", nil)
	c.Params = gin.Params{{Key: "id", Value: "s"}}

	h.Execute(c)

	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestImportHandlerExecute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &importServiceMock{executeResp: &dto.ImportRunResponse{ID: "run-1", Status: models.ImportRunQueued}}
	h := NewImportHandler(svc, &templateServiceMock{}, "/api/v1")
	c, w := newGinContext(http.MethodPost, "/imports/sessions/s/execute", nil)
	c.Params = gin.Params{{Key: "id", Value: "s"}}
	authenticate(c)

	h.Execute(c)

	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "caller-token", svc.executeToken)
	data := decodeEnvelope(t, w)["data"].(map[string]any)
	assert.Equal(t, "run-1", data["id"])
	assert.NotContains(t, data, "reportUrl")
}

func TestImportHandlerExecuteExpiredSession(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &importServiceMock{executeErr: appErrors.ErrSessionExpired}
	h := NewImportHandler(svc, &templateServiceMock{}, "")
	c, w := newGinContext(http.MethodPost, "/imports/sessions/s/execute", nil)
	c.Params = gin.Params{{Key: "id", Value: "s"}}
	authenticate(c)

	h.Execute(c)

	require.Equal(t, appErrors.ErrSessionExpired.Status, w.Code)
}

func TestImportHandlerBulkDelete(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("queued", func(t *testing.T) {
		svc := &importServiceMock{deleteResp: &dto.BulkDeleteResponse{Run: &dto.ImportRunResponse{ID: "run-2"}}}
		h := NewImportHandler(svc, &templateServiceMock{}, "")
		payload, _ := json.Marshal(dto.BulkDeleteRequest{RegisterNumbers: []string{"REG-1", "REG-2"}})
		c, w := newGinContext(http.MethodPost, "/results/bulk-delete", payload)
		authenticate(c)

		h.BulkDelete(c)

		require.Equal(t, http.StatusAccepted, w.Code)
		assert.Equal(t, []string{"REG-1", "REG-2"}, svc.deleteReq.RegisterNumbers)
	})

	t.Run("nothing to delete", func(t *testing.T) {
		svc := &importServiceMock{deleteResp: &dto.BulkDeleteResponse{Rejected: []models.ValidationResult{{Row: 1}}}}
		h := NewImportHandler(svc, &templateServiceMock{}, "")
		payload, _ := json.Marshal(dto.BulkDeleteRequest{RegisterNumbers: []string{"REG-X"}})
		c, w := newGinContext(http.MethodPost, "/results/bulk-delete", payload)
		authenticate(c)

		h.BulkDelete(c)

		require.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("malformed body", func(t *testing.T) {
		h := NewImportHandler(&importServiceMock{}, &templateServiceMock{}, "")
		c, w := newGinContext(http.MethodPost, "/results/bulk-delete", []byte("{"))
		authenticate(c)

		h.BulkDelete(c)

		require.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestImportHandlerGetRunAddsReportURL(t *testing.T) {
	gin.SetMode(gin.TestMode)
	outcome := models.BulkOutcome{Success: 2}
	svc := &importServiceMock{run: &dto.ImportRunResponse{ID: "run-3", Status: models.ImportRunFinished, Outcome: &outcome}}
	h := NewImportHandler(svc, &templateServiceMock{}, "/api/v1/")
	c, w := newGinContext(http.MethodGet, "/imports/runs/run-3", nil)
	c.Params = gin.Params{{Key: "id", Value: "run-3"}}
	authenticate(c)

	h.GetRun(c)

	require.Equal(t, http.StatusOK, w.Code)
	data := decodeEnvelope(t, w)["data"].(map[string]any)
	assert.Equal(t, "/api/v1/imports/runs/run-3/report", data["reportUrl"])
}

func TestImportHandlerListRuns(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &importServiceMock{runs: []*dto.ImportRunResponse{{ID: "a"}, {ID: "b"}}}
	h := NewImportHandler(svc, &templateServiceMock{}, "")

	c, w := newGinContext(http.MethodGet, "/imports/runs?limit=5", nil)
	h.ListRuns(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 5, svc.listLimit)

	c, w = newGinContext(http.MethodGet, "/imports/runs?limit=abc", nil)
	h.ListRuns(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestImportHandlerRunReport(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &importServiceMock{report: []byte("%PDF-1.3")}
	h := NewImportHandler(svc, &templateServiceMock{}, "")
	c, w := newGinContext(http.MethodGet, "/imports/runs/run-4/report", nil)
	c.Params = gin.Params{{Key: "id", Value: "run-4"}}

	h.RunReport(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "import_run_run-4.pdf")
	assert.Equal(t, "%PDF-1.3", w.Body.String())
}

func TestImportHandlerRunReportNotReady(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &importServiceMock{reportErr: appErrors.Clone(appErrors.ErrConflict, "not done")}
	h := NewImportHandler(svc, &templateServiceMock{}, "")
	c, w := newGinContext(http.MethodGet, "/imports/runs/run-4/report", nil)
	c.Params = gin.Params{{Key: "id", Value: "run-4"}}

	h.RunReport(c)

	require.Equal(t, http.StatusConflict, w.Code)
}

func TestImportHandlerTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	templates := &templateServiceMock{}
	h := NewImportHandler(&importServiceMock{}, templates, "")

	c, w := newGinContext(http.MethodGet, "/imports/templates/student_import?format=csv", nil)
	c.Params = gin.Params{{Key: "kind", Value: "student_import"}}
	h.Template(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.ImportKindStudent, templates.kind)
	assert.Equal(t, "csv", templates.format)
	assert.Equal(t, "a,b\n", w.Body.String())

	c, w = newGinContext(http.MethodGet, "/imports/templates/result_delete", nil)
	c.Params = gin.Params{{Key: "kind", Value: "result_delete"}}
	h.Template(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestImportHandlerSessionErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &importServiceMock{session: &dto.ImportSessionResponse{ID: "s"}}
	h := NewImportHandler(svc, &templateServiceMock{}, "")
	c, w := newGinContext(http.MethodGet, "/imports/sessions/s/errors", nil)
	c.Params = gin.Params{{Key: "id", Value: "s"}}
	authenticate(c)

	h.SessionErrors(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "errors.xlsx")
}
