package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/isdm-app/isdm-api/internal/models"
	"github.com/isdm-app/isdm-api/internal/service"
	appErrors "github.com/isdm-app/isdm-api/pkg/errors"
	"github.com/isdm-app/isdm-api/pkg/response"
)

type exportJobService interface {
	CreateJob(ctx context.Context, req service.ExportRequest, actorID string) (*models.ExportJob, error)
	GetStatus(ctx context.Context, id, actorID string) (*models.ExportJob, error)
	ResolveDownload(ctx context.Context, token string) (*service.ExportDownload, error)
}

// ExportJobHandler exposes background export endpoints.
type ExportJobHandler struct {
	service exportJobService
}

// NewExportJobHandler constructs ExportJobHandler.
func NewExportJobHandler(svc exportJobService) *ExportJobHandler {
	return &ExportJobHandler{service: svc}
}

// Create godoc
// @Summary Queue a directory export
// @Tags Exports
// @Accept json
// @Produce json
// @Param payload body service.ExportRequest true "Format and directory query"
// @Success 202 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /exports [post]
func (h *ExportJobHandler) Create(c *gin.Context) {
	claims, err := claimsFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req service.ExportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request body"))
		return
	}
	job, err := h.service.CreateJob(c.Request.Context(), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, job)
}

// Status godoc
// @Summary Export job status
// @Tags Exports
// @Produce json
// @Param id path string true "Export job ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /exports/{id} [get]
func (h *ExportJobHandler) Status(c *gin.Context) {
	claims, err := claimsFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	job, err := h.service.GetStatus(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, job)
}

// Download godoc
// @Summary Download a finished export
// @Tags Exports
// @Produce octet-stream
// @Param token path string true "Signed download token"
// @Success 200 {file} file
// @Failure 403 {object} response.Envelope
// @Router /exports/download/{token} [get]
func (h *ExportJobHandler) Download(c *gin.Context) {
	download, err := h.service.ResolveDownload(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer download.File.Close()

	info, err := download.File.Stat()
	if err != nil {
		response.Error(c, appErrors.ErrInternal.With(err, "failed to read export"))
		return
	}
	c.Header("Cache-Control", "no-store")
	c.DataFromReader(http.StatusOK, info.Size(), download.ContentType, download.File, map[string]string{
		"Content-Disposition": `attachment; filename="` + download.Filename + `"`,
	})
}
