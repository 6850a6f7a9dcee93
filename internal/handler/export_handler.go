package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/academy-import-api/internal/dto"
	"github.com/noah-isme/academy-import-api/internal/service"
	appErrors "github.com/noah-isme/academy-import-api/pkg/errors"
	"github.com/noah-isme/academy-import-api/pkg/response"
)

type exportService interface {
	ExportResults(ctx context.Context) (*dto.ExportResponse, error)
	ResolveDownload(token string) (*service.Download, error)
}

// ExportHandler exposes result exports and their signed downloads.
type ExportHandler struct {
	exports exportService
}

// NewExportHandler constructs handler.
func NewExportHandler(exports exportService) *ExportHandler {
	return &ExportHandler{exports: exports}
}

// ExportResults godoc
// @Summary Export all results as a workbook
// @Tags Results
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /results/export [post]
func (h *ExportHandler) ExportResults(c *gin.Context) {
	resp, err := h.exports.ExportResults(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, resp, nil)
}

// Download godoc
// @Summary Download an export through its signed token
// @Tags Results
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param token path string true "Signed token"
// @Success 200 {file} file
// @Router /export/{token} [get]
func (h *ExportHandler) Download(c *gin.Context) {
	download, err := h.exports.ResolveDownload(c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer download.File.Close() //nolint:errcheck

	info, err := download.File.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read export file"))
		return
	}
	response.Stream(c, download.Filename, download.ContentType, info.Size(), download.File)
}
