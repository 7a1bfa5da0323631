package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isdm-app/isdm-api/internal/middleware"
	"github.com/isdm-app/isdm-api/internal/models"
	appErrors "github.com/isdm-app/isdm-api/pkg/errors"
)

type accountServiceMock struct {
	profile    *models.Profile
	err        error
	lastUID    string
	lastSignUp models.SignUpRequest
	lastUpdate models.UpdateProfileRequest
}

func (m *accountServiceMock) SignUp(ctx context.Context, req models.SignUpRequest) (*models.Profile, error) {
	m.lastSignUp = req
	return m.profile, m.err
}

func (m *accountServiceMock) RequestPasswordReset(ctx context.Context, req models.PasswordResetRequest) (*models.PasswordResetResponse, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &models.PasswordResetResponse{Email: req.Email, Link: "https://reset"}, nil
}

func (m *accountServiceMock) Profile(ctx context.Context, uid string) (*models.Profile, error) {
	m.lastUID = uid
	return m.profile, m.err
}

func (m *accountServiceMock) UpdateProfile(ctx context.Context, uid string, req models.UpdateProfileRequest) (*models.Profile, error) {
	m.lastUID = uid
	m.lastUpdate = req
	return m.profile, m.err
}

func TestAccountHandlerSignUp(t *testing.T) {
	svc := &accountServiceMock{profile: &models.Profile{UID: "u1", Email: "a@isdm.edu.ar"}}
	handler := NewAccountHandler(svc)

	c, w := newStudentContext(http.MethodPost, "/auth/signup", []byte(`{"email":"a@isdm.edu.ar","password":"secret1","confirmPassword":"secret1"}`))
	handler.SignUp(c)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "a@isdm.edu.ar", svc.lastSignUp.Email)
}

func TestAccountHandlerSignUpConflict(t *testing.T) {
	svc := &accountServiceMock{err: appErrors.Clone(appErrors.ErrConflict, "email already registered")}
	handler := NewAccountHandler(svc)

	c, w := newStudentContext(http.MethodPost, "/auth/signup", []byte(`{"email":"a@isdm.edu.ar"}`))
	handler.SignUp(c)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestAccountHandlerPasswordResetInvalidBody(t *testing.T) {
	handler := NewAccountHandler(&accountServiceMock{})

	c, w := newStudentContext(http.MethodPost, "/auth/password-reset", []byte(`not json`))
	handler.PasswordReset(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAccountHandlerProfileRequiresClaims(t *testing.T) {
	handler := NewAccountHandler(&accountServiceMock{})

	c, w := newStudentContext(http.MethodGet, "/profile", nil)
	handler.Profile(c)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAccountHandlerUpdateProfileUsesCaller(t *testing.T) {
	svc := &accountServiceMock{profile: &models.Profile{UID: "u1", DisplayName: "Ana"}}
	handler := NewAccountHandler(svc)

	c, w := newStudentContext(http.MethodPut, "/profile", []byte(`{"displayName":"Ana"}`))
	c.Set(middleware.ContextUserKey, &models.AuthClaims{UserID: "u1"})
	handler.UpdateProfile(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "u1", svc.lastUID)
	require.NotNil(t, svc.lastUpdate.DisplayName)
	assert.Equal(t, "Ana", *svc.lastUpdate.DisplayName)
}
