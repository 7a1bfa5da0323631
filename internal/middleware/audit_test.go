package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/isdm-app/isdm-api/internal/models"
)

func TestAuditLogsSuccessfulMutations(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zap.InfoLevel)
	r := gin.New()
	r.DELETE("/students/:id",
		func(c *gin.Context) { c.Set(ContextUserKey, &models.AuthClaims{UserID: "uid-1"}) },
		Audit(zap.New(core), "delete", "student"),
		func(c *gin.Context) { c.Status(http.StatusNoContent) },
	)
	r.POST("/students", Audit(zap.New(core), "create", "student"), func(c *gin.Context) {
		c.Status(http.StatusBadRequest)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodDelete, "/students/abc", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/students", nil))

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "delete", fields["action"])
	assert.Equal(t, "abc", fields["resource_id"])
	assert.Equal(t, "uid-1", fields["user_id"])
}
