package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isdm-app/isdm-api/internal/models"
	appErrors "github.com/isdm-app/isdm-api/pkg/errors"
)

type stubVerifier struct {
	token string
}

func (s stubVerifier) Verify(ctx context.Context, token string) (*models.AuthClaims, error) {
	if token != s.token {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
	}
	return &models.AuthClaims{UserID: "uid-1"}, nil
}

func newAuthRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/private", Auth(stubVerifier{token: "good"}), func(c *gin.Context) {
		c.String(http.StatusOK, Claims(c).UserID)
	})
	return r
}

func TestAuthAcceptsBearerToken(t *testing.T) {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/private", nil)
	req.Header.Set("Authorization", "Bearer good")
	newAuthRouter().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "uid-1", w.Body.String())
}

func TestAuthAcceptsQueryTokenWithoutHeader(t *testing.T) {
	w := httptest.NewRecorder()
	newAuthRouter().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/private?access_token=good", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthRejects(t *testing.T) {
	cases := map[string]string{
		"missing header": "",
		"wrong scheme":   "Basic good",
		"bad token":      "Bearer nope",
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/private", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			newAuthRouter().ServeHTTP(w, req)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}
}

func TestClaimsWithoutAuth(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.Nil(t, Claims(c))
}
