package handler

import (
	"context"
	"errors"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/academy-import-api/internal/dto"
	"github.com/noah-isme/academy-import-api/internal/repository"
	"github.com/noah-isme/academy-import-api/internal/service"
	appErrors "github.com/noah-isme/academy-import-api/pkg/errors"
)

type exportServiceMock struct {
	token       string
	resp        *dto.ExportResponse
	download    *service.Download
	downloadErr error
}

func (m *exportServiceMock) ExportResults(ctx context.Context) (*dto.ExportResponse, error) {
	m.token = repository.BearerToken(ctx)
	return m.resp, nil
}

func (m *exportServiceMock) ResolveDownload(token string) (*service.Download, error) {
	return m.download, m.downloadErr
}

func TestExportHandlerExportResults(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &exportServiceMock{resp: &dto.ExportResponse{Filename: "results_2024-03-15.xlsx", URL: "/api/v1/export/tok"}}
	h := NewExportHandler(svc)

	c, w := newGinContext(http.MethodPost, "/results/export", nil)
	c.Request = c.Request.WithContext(repository.WithBearerToken(c.Request.Context(), "caller-token"))

	h.ExportResults(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "caller-token", svc.token)
	data := decodeEnvelope(t, w)["data"].(map[string]any)
	assert.Equal(t, "/api/v1/export/tok", data["url"])
}

func TestExportHandlerDownload(t *testing.T) {
	gin.SetMode(gin.TestMode)
	file, err := os.CreateTemp(t.TempDir(), "results*.xlsx")
	require.NoError(t, err)
	_, _ = file.WriteString("workbook")
	_, _ = file.Seek(0, 0)

	svc := &exportServiceMock{download: &service.Download{
		File:        file,
		Filename:    "results_2024-03-15.xlsx",
		ContentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		ExpiresAt:   time.Now().Add(time.Hour),
	}}
	h := NewExportHandler(svc)

	c, w := newGinContext(http.MethodGet, "/export/token", nil)
	c.Params = gin.Params{{Key: "token", Value: "token"}}

	h.Download(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "workbook", w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Disposition"), "results_2024-03-15.xlsx")
}

func TestExportHandlerDownloadErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{name: "bad token", err: appErrors.Clone(appErrors.ErrForbidden, "invalid"), status: http.StatusForbidden},
		{name: "gone", err: appErrors.Clone(appErrors.ErrNotFound, "gone"), status: http.StatusNotFound},
		{name: "unexpected", err: errors.New("disk"), status: http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewExportHandler(&exportServiceMock{downloadErr: tc.err})
			c, w := newGinContext(http.MethodGet, "/export/token", nil)
			c.Params = gin.Params{{Key: "token", Value: "token"}}

			h.Download(c)

			require.Equal(t, tc.status, w.Code)
		})
	}
}
