package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/isdm-app/isdm-api/pkg/errors"
)

func newContext() (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	return c, w
}

func TestJSONWithMeta(t *testing.T) {
	c, w := newContext()
	JSON(c, http.StatusOK, []string{"a"}, map[string]interface{}{"total": 1})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, float64(1), body["meta"].(map[string]interface{})["total"])
}

func TestErrorUsesTypedStatus(t *testing.T) {
	c, w := newContext()
	Error(c, appErrors.Clone(appErrors.ErrStoreWrite, "could not delete the student"))

	assert.Equal(t, http.StatusBadGateway, w.Code)
	var body Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.NotNil(t, body.Error)
	assert.Equal(t, "STORE_WRITE_ERROR", body.Error.Code)
}

func TestErrorFallsBackToInternal(t *testing.T) {
	c, w := newContext()
	Error(c, errors.New("boom"))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestAttachment(t *testing.T) {
	c, w := newContext()
	Attachment(c, "students.csv", "text/csv", []byte("a,b\n"))
	assert.Equal(t, `attachment; filename="students.csv"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "a,b\n", w.Body.String())
}
