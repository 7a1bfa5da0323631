package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/isdm-app/isdm-api/internal/service"
	appErrors "github.com/isdm-app/isdm-api/pkg/errors"
	"github.com/isdm-app/isdm-api/pkg/response"
)

type readiness interface {
	Ready() bool
}

// MetricsHandler exposes observability endpoints.
type MetricsHandler struct {
	metrics   *service.MetricsService
	directory readiness
}

// NewMetricsHandler constructs a metrics handler.
func NewMetricsHandler(metrics *service.MetricsService, dir readiness) *MetricsHandler {
	return &MetricsHandler{metrics: metrics, directory: dir}
}

// Prometheus serves the Prometheus metrics endpoint.
func (h *MetricsHandler) Prometheus(c *gin.Context) {
	if h.metrics == nil {
		c.Status(http.StatusServiceUnavailable)
		return
	}
	h.metrics.Handler().ServeHTTP(c.Writer, c.Request)
}

// Health godoc
// @Summary Liveness probe with process counters
// @Tags Health
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /health [get]
func (h *MetricsHandler) Health(c *gin.Context) {
	response.JSON(c, http.StatusOK, gin.H{"status": "ok", "metrics": h.metrics.Snapshot()})
}

// Ready godoc
// @Summary Readiness probe
// @Description Ready once the directory has received its first snapshot.
// @Tags Health
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /ready [get]
func (h *MetricsHandler) Ready(c *gin.Context) {
	if h.directory == nil || !h.directory.Ready() {
		response.Error(c, appErrors.Clone(appErrors.ErrServiceUnavailable, "waiting for the first student snapshot"))
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"status": "ready"})
}
