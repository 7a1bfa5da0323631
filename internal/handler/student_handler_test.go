package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isdm-app/isdm-api/internal/directory"
	"github.com/isdm-app/isdm-api/internal/models"
	"github.com/isdm-app/isdm-api/internal/service"
	appErrors "github.com/isdm-app/isdm-api/pkg/errors"
)

type studentServiceMock struct {
	getResp    *models.Student
	getErr     error
	createResp *models.Student
	createErr  error
	updateResp *models.Student
	updateErr  error
	removeErr  error

	lastInput  service.StudentInput
	lastUpdate service.UpdateStudentRequest
	lastID     string
}

func (m *studentServiceMock) Get(ctx context.Context, id string) (*models.Student, error) {
	m.lastID = id
	return m.getResp, m.getErr
}

func (m *studentServiceMock) Create(ctx context.Context, input service.StudentInput) (*models.Student, error) {
	m.lastInput = input
	return m.createResp, m.createErr
}

func (m *studentServiceMock) Update(ctx context.Context, id string, req service.UpdateStudentRequest) (*models.Student, error) {
	m.lastID = id
	m.lastUpdate = req
	return m.updateResp, m.updateErr
}

func (m *studentServiceMock) Remove(ctx context.Context, id string) error {
	m.lastID = id
	return m.removeErr
}

type directoryReaderMock struct {
	students  []models.Student
	err       error
	lastQuery directory.Query
	called    bool
}

func (m *directoryReaderMock) List(q directory.Query) ([]models.Student, error) {
	m.called = true
	m.lastQuery = q
	return m.students, m.err
}

type exportRendererMock struct {
	file       *service.ExportFile
	err        error
	lastFormat service.ExportFormat
	lastCount  int
}

func (m *exportRendererMock) Render(students []models.Student, q directory.Query, format service.ExportFormat) (*service.ExportFile, error) {
	m.lastFormat = format
	m.lastCount = len(students)
	return m.file, m.err
}

type envelopeBody struct {
	Data  json.RawMessage        `json:"data"`
	Error *appErrors.Error       `json:"error"`
	Meta  map[string]interface{} `json:"meta"`
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) envelopeBody {
	t.Helper()
	var body envelopeBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func newStudentContext(method, target string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(method, target, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	return c, w
}

func TestStudentHandlerListPassesQuery(t *testing.T) {
	dir := &directoryReaderMock{students: []models.Student{{ID: "luis"}}}
	handler := NewStudentHandler(&studentServiceMock{}, dir, &exportRendererMock{})

	c, w := newStudentContext(http.MethodGet, "/students?status=inactivo&sortBy=z-a&search=99", nil)
	handler.List(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "inactivo", dir.lastQuery.Status)
	assert.Equal(t, directory.SortZA, dir.lastQuery.SortBy)
	assert.Equal(t, "99", dir.lastQuery.Search)
	assert.Equal(t, directory.CareerAll, dir.lastQuery.Career)

	body := decodeEnvelope(t, w)
	assert.EqualValues(t, 1, body.Meta["total"])
	var students []models.Student
	require.NoError(t, json.Unmarshal(body.Data, &students))
	assert.Equal(t, "luis", students[0].ID)
}

func TestStudentHandlerListRejectsUnknownSort(t *testing.T) {
	dir := &directoryReaderMock{}
	handler := NewStudentHandler(&studentServiceMock{}, dir, &exportRendererMock{})

	c, w := newStudentContext(http.MethodGet, "/students?sortBy=newest", nil)
	handler.List(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, dir.called)
	assert.Equal(t, appErrors.ErrValidation.Code, decodeEnvelope(t, w).Error.Code)
}

func TestStudentHandlerListBeforeFirstSnapshot(t *testing.T) {
	dir := &directoryReaderMock{err: appErrors.ErrServiceUnavailable}
	handler := NewStudentHandler(&studentServiceMock{}, dir, &exportRendererMock{})

	c, w := newStudentContext(http.MethodGet, "/students", nil)
	handler.List(c)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestStudentHandlerExport(t *testing.T) {
	dir := &directoryReaderMock{students: []models.Student{{ID: "ana"}, {ID: "luis"}}}
	exports := &exportRendererMock{file: &service.ExportFile{Filename: "alumnos.pdf", ContentType: "application/pdf", Body: []byte("%PDF")}}
	handler := NewStudentHandler(&studentServiceMock{}, dir, exports)

	c, w := newStudentContext(http.MethodGet, "/students/export?format=pdf", nil)
	handler.Export(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, service.ExportPDF, exports.lastFormat)
	assert.Equal(t, 2, exports.lastCount)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "alumnos.pdf")
	assert.Equal(t, "%PDF", w.Body.String())
}

func TestStudentHandlerExportUnknownFormat(t *testing.T) {
	handler := NewStudentHandler(&studentServiceMock{}, &directoryReaderMock{}, &exportRendererMock{})

	c, w := newStudentContext(http.MethodGet, "/students/export?format=xlsx", nil)
	handler.Export(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStudentHandlerGetNotFound(t *testing.T) {
	svc := &studentServiceMock{getErr: appErrors.Clone(appErrors.ErrNotFound, "student not found")}
	handler := NewStudentHandler(svc, &directoryReaderMock{}, &exportRendererMock{})

	c, w := newStudentContext(http.MethodGet, "/students/x", nil)
	c.Params = gin.Params{{Key: "id", Value: "x"}}
	handler.Get(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "x", svc.lastID)
}

func TestStudentHandlerCreate(t *testing.T) {
	svc := &studentServiceMock{createResp: &models.Student{ID: "new-id", FirstName: "Ana"}}
	handler := NewStudentHandler(svc, &directoryReaderMock{}, &exportRendererMock{})

	c, w := newStudentContext(http.MethodPost, "/students", []byte(`{"firstName":"Ana","lastName":"Gómez","career":"Psicopedagogía"}`))
	handler.Create(c)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "Ana", svc.lastInput.FirstName)
	assert.Equal(t, "Psicopedagogía", svc.lastInput.Career)
}

func TestStudentHandlerCreateInvalidBody(t *testing.T) {
	handler := NewStudentHandler(&studentServiceMock{}, &directoryReaderMock{}, &exportRendererMock{})

	c, w := newStudentContext(http.MethodPost, "/students", []byte(`{"firstName":`))
	handler.Create(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStudentHandlerCreateStoreFailure(t *testing.T) {
	svc := &studentServiceMock{createErr: appErrors.Clone(appErrors.ErrStoreWrite, "could not create the student")}
	handler := NewStudentHandler(svc, &directoryReaderMock{}, &exportRendererMock{})

	c, w := newStudentContext(http.MethodPost, "/students", []byte(`{}`))
	handler.Create(c)

	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestStudentHandlerUpdatePassesOnlyGivenFields(t *testing.T) {
	svc := &studentServiceMock{updateResp: &models.Student{ID: "ana"}}
	handler := NewStudentHandler(svc, &directoryReaderMock{}, &exportRendererMock{})

	c, w := newStudentContext(http.MethodPatch, "/students/ana", []byte(`{"status":"pendiente"}`))
	c.Params = gin.Params{{Key: "id", Value: "ana"}}
	handler.Update(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ana", svc.lastID)
	assert.Equal(t, models.StudentFields{"status": models.StatusPending}, svc.lastUpdate.Fields())
}

func TestStudentHandlerDelete(t *testing.T) {
	svc := &studentServiceMock{}
	handler := NewStudentHandler(svc, &directoryReaderMock{}, &exportRendererMock{})

	c, w := newStudentContext(http.MethodDelete, "/students/ana", nil)
	c.Params = gin.Params{{Key: "id", Value: "ana"}}
	handler.Delete(c)
	c.Writer.WriteHeaderNow()

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "ana", svc.lastID)
}

func TestStudentHandlerDeleteFailure(t *testing.T) {
	svc := &studentServiceMock{removeErr: appErrors.Clone(appErrors.ErrStoreWrite, "could not delete the student")}
	handler := NewStudentHandler(svc, &directoryReaderMock{}, &exportRendererMock{})

	c, w := newStudentContext(http.MethodDelete, "/students/ana", nil)
	c.Params = gin.Params{{Key: "id", Value: "ana"}}
	handler.Delete(c)

	require.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, "could not delete the student", decodeEnvelope(t, w).Error.Message)
}

func TestCareersListsOfferedCareers(t *testing.T) {
	c, w := newStudentContext(http.MethodGet, "/careers", nil)
	Careers(c)

	require.Equal(t, http.StatusOK, w.Code)
	var careers []string
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &careers))
	assert.Equal(t, models.Careers, careers)
}
