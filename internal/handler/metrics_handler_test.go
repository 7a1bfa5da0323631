package handler

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isdm-app/isdm-api/internal/service"
)

type readinessStub bool

func (r readinessStub) Ready() bool { return bool(r) }

func TestMetricsHandlerReady(t *testing.T) {
	handler := NewMetricsHandler(service.NewMetricsService(), readinessStub(false))

	c, w := newStudentContext(http.MethodGet, "/ready", nil)
	handler.Ready(c)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	handler = NewMetricsHandler(service.NewMetricsService(), readinessStub(true))
	c, w = newStudentContext(http.MethodGet, "/ready", nil)
	handler.Ready(c)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMetricsHandlerHealthAndPrometheus(t *testing.T) {
	metrics := service.NewMetricsService()
	metrics.ObserveSnapshot(3)
	handler := NewMetricsHandler(metrics, readinessStub(true))

	c, w := newStudentContext(http.MethodGet, "/health", nil)
	handler.Health(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)

	c, w = newStudentContext(http.MethodGet, "/metrics", nil)
	handler.Prometheus(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "student_directory_size 3")
}
