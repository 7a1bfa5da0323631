package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isdm-app/isdm-api/internal/models"
	"github.com/isdm-app/isdm-api/internal/repository"
	"github.com/isdm-app/isdm-api/internal/service"
	"github.com/isdm-app/isdm-api/pkg/config"
	"github.com/isdm-app/isdm-api/pkg/export"
)

type routerFixture struct {
	router http.Handler
	store  *repository.MemoryStudentRepository
	token  string
}

func newRouterFixture(t *testing.T) routerFixture {
	t.Helper()
	cfg := &config.Config{
		Env:       config.EnvDevelopment,
		APIPrefix: "/api/v1",
		Metrics:   config.MetricsConfig{Enabled: true},
		Live:      config.LiveConfig{WriteTimeout: time.Second},
		Export: config.ExportConfig{
			Dir:        t.TempDir(),
			URLSecret:  "export-secret",
			ResultTTL:  time.Hour,
			Workers:    1,
			MaxRetries: 1,
		},
	}

	store := repository.NewMemoryStudentRepository()
	store.Seed(models.Student{ID: "luis", FirstName: "Luis", LastName: "Díaz", DNI: "99111222", Status: models.StatusInactive, Career: "Psicopedagogía"})

	metrics := service.NewMetricsService()
	directory := service.NewDirectoryService(store, metrics, nil)
	require.NoError(t, directory.Start(context.Background()))
	t.Cleanup(directory.Close)

	ctx, cancel := context.WithCancel(context.Background())
	resources := NewResources(cfg, nil)
	t.Cleanup(func() {
		cancel()
		resources.Close()
	})
	exports := service.NewExportService(export.NewCSVExporter(), export.NewPDFExporter(), nil)
	exportJobs, err := resources.ExportJobs(ctx, directory, exports)
	require.NoError(t, err)

	verifier := service.NewJWTVerifier("test-secret", "isdm-api")
	token, err := verifier.Issue("staff-1", "staff@isdm.edu.ar", time.Hour)
	require.NoError(t, err)

	router := NewRouter(Dependencies{
		Config:     cfg,
		Metrics:    metrics,
		Store:      store,
		Students:   service.NewStudentService(store, nil, metrics, nil),
		Directory:  directory,
		Exports:    exports,
		ExportJobs: exportJobs,
		Verifier:   verifier,
	})
	return routerFixture{router: router, store: store, token: token}
}

func (f routerFixture) do(method, path string, body []byte, authorized bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if authorized {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestRouterRequiresToken(t *testing.T) {
	f := newRouterFixture(t)
	w := f.do(http.MethodGet, "/api/v1/students", nil, false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRouterPublicEndpoints(t *testing.T) {
	f := newRouterFixture(t)
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/ready", nil, false).Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/v1/careers", nil, false).Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodPost, "/api/v1/auth/signup", nil, false).Code)
}

func TestRouterCreateThenList(t *testing.T) {
	f := newRouterFixture(t)

	payload := []byte(`{"firstName":"Ana","lastName":"Gómez","dni":"12345678","birthDate":"21/03/2001",
		"phoneMobile":"3704000000","email":"ana@isdm.edu.ar","career":"Psicopedagogía","status":"activo"}`)
	w := f.do(http.MethodPost, "/api/v1/students", payload, true)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = f.do(http.MethodGet, "/api/v1/students?sortBy=a-z", nil, true)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Data []models.Student      `json:"data"`
		Meta map[string]interface{} `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Data, 2)
	assert.Equal(t, "Ana", body.Data[0].FirstName)
	assert.Equal(t, "Luis", body.Data[1].FirstName)
	assert.EqualValues(t, 2, body.Meta["total"])
}

func TestRouterDeleteAndExport(t *testing.T) {
	f := newRouterFixture(t)

	w := f.do(http.MethodGet, "/api/v1/students/export?format=csv", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Díaz")

	w = f.do(http.MethodDelete, "/api/v1/students/luis", nil, true)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = f.do(http.MethodGet, "/api/v1/students/luis", nil, true)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouterBackgroundExport(t *testing.T) {
	f := newRouterFixture(t)

	w := f.do(http.MethodPost, "/api/v1/exports", []byte(`{"format":"csv","status":"inactivo"}`), true)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	var created struct {
		Data models.ExportJob `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	require.NotEmpty(t, created.Data.ID)

	var job models.ExportJob
	require.Eventually(t, func() bool {
		w := f.do(http.MethodGet, "/api/v1/exports/"+created.Data.ID, nil, true)
		if w.Code != http.StatusOK {
			return false
		}
		var body struct {
			Data models.ExportJob `json:"data"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			return false
		}
		job = body.Data
		return job.Status == models.ExportStatusFinished
	}, 2*time.Second, 20*time.Millisecond)

	require.NotNil(t, job.ResultURL)
	w = f.do(http.MethodGet, *job.ResultURL, nil, false)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Díaz")
	assert.Contains(t, w.Header().Get("Content-Disposition"), ".csv")

	w = f.do(http.MethodGet, "/api/v1/exports/download/forged.token", nil, false)
	assert.Equal(t, http.StatusForbidden, w.Code)
}
