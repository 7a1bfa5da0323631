package service

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMetricsServiceNilReceiver(t *testing.T) {
	var m *MetricsService
	m.ObserveHTTPRequest("GET", "/", 200, time.Millisecond)
	m.ObserveStoreWrite("remove", errors.New("boom"))
	m.ObserveSnapshot(3)
	m.LiveSessionOpened()
	m.RecordCacheOperation(true, time.Millisecond)

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestMetricsServiceSnapshot(t *testing.T) {
	m := NewMetricsService()
	m.ObserveHTTPRequest("GET", "/api/v1/students", 200, 10*time.Millisecond)
	m.ObserveStoreWrite("create", nil)
	m.ObserveStoreWrite("remove", errors.New("denied"))
	m.ObserveSnapshot(7)
	m.LiveSessionOpened()
	m.LiveSessionOpened()
	m.LiveSessionClosed()

	snap := m.Snapshot()
	assert.Equal(t, uint64(1), snap.RequestsTotal)
	assert.InDelta(t, 10, snap.AverageRequestDurationMs, 0.5)
	assert.Equal(t, uint64(2), snap.StoreWrites)
	assert.Equal(t, uint64(1), snap.StoreWriteErrors)
	assert.Equal(t, int64(7), snap.DirectorySize)
	assert.Equal(t, int64(1), snap.LiveSessions)

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "student_store_writes_total")
}
